package handlebars

import (
	"log/slog"
	"maps"
)

// ----------------------------- Compile options ------------------------------

// Option configures Compile.
type Option func(*compileOptions)

// HelperResolver supplies helpers that were not registered up front. It is
// consulted at most once per name during a compile.
type HelperResolver func(name string) (HelperFunc, bool)

// PartialResolver supplies partial source that was not registered up front.
type PartialResolver func(name string) (string, bool)

type compileOptions struct {
	noEscape               bool
	strict                 bool
	preventIndent          bool
	ignoreStandalone       bool
	explicitPartialContext bool
	knownHelpersOnly       bool

	helpers         map[string]HelperFunc
	partials        map[string]string
	helperResolver  HelperResolver
	partialResolver PartialResolver
	logger          *slog.Logger
}

func newCompileOptions(opts []Option) *compileOptions {
	co := &compileOptions{
		helpers:  make(map[string]HelperFunc),
		partials: make(map[string]string),
	}
	for _, o := range opts {
		o(co)
	}
	if co.logger == nil {
		co.logger = slog.Default()
	}
	return co
}

// WithNoEscape disables HTML escaping of {{mustache}} output.
func WithNoEscape() Option { return func(co *compileOptions) { co.noEscape = true } }

// WithStrict makes lookups of missing values fail the render.
func WithStrict() Option { return func(co *compileOptions) { co.strict = true } }

// WithPreventIndent stops standalone partials from indenting their output.
func WithPreventIndent() Option { return func(co *compileOptions) { co.preventIndent = true } }

// WithIgnoreStandalone keeps the whitespace around standalone tags.
func WithIgnoreStandalone() Option { return func(co *compileOptions) { co.ignoreStandalone = true } }

// WithExplicitPartialContext gives partials an empty context unless one is
// passed in the partial tag.
func WithExplicitPartialContext() Option {
	return func(co *compileOptions) { co.explicitPartialContext = true }
}

// WithKnownHelpersOnly restricts helper calls to the registered table. The
// helper resolver is not consulted and pathed calls with params are rejected.
func WithKnownHelpersOnly() Option { return func(co *compileOptions) { co.knownHelpersOnly = true } }

// WithHelpers registers helpers; later registrations win.
func WithHelpers(h map[string]HelperFunc) Option {
	return func(co *compileOptions) { maps.Copy(co.helpers, h) }
}

func WithHelper(name string, h HelperFunc) Option {
	return func(co *compileOptions) { co.helpers[name] = h }
}

// WithPartials registers partial sources by name.
func WithPartials(p map[string]string) Option {
	return func(co *compileOptions) { maps.Copy(co.partials, p) }
}

func WithPartial(name, src string) Option {
	return func(co *compileOptions) { co.partials[name] = src }
}

func WithHelperResolver(r HelperResolver) Option {
	return func(co *compileOptions) { co.helperResolver = r }
}

func WithPartialResolver(r PartialResolver) Option {
	return func(co *compileOptions) { co.partialResolver = r }
}

// WithLogger sets the logger used by {{log}} and for compile diagnostics.
func WithLogger(l *slog.Logger) Option { return func(co *compileOptions) { co.logger = l } }

// ----------------------------- Render options -------------------------------

// RenderOption configures a single Render call.
type RenderOption func(*renderOptions)

type renderOptions struct {
	data     *Map
	helpers  map[string]HelperFunc
	partials map[string]string
}

// WithData adds @-variables to the root data frame.
func WithData(data any) RenderOption {
	return func(ro *renderOptions) {
		if m := ValueOf(data).Map(); m != nil {
			ro.data = m
		}
	}
}

// WithRuntimeHelpers overrides helpers for one render. Only names the
// template already calls as helpers are affected.
func WithRuntimeHelpers(h map[string]HelperFunc) RenderOption {
	return func(ro *renderOptions) { ro.helpers = h }
}

// WithRuntimePartials overrides or adds partials for one render. Sources are
// compiled with the template's options on first use and cached.
func WithRuntimePartials(p map[string]string) RenderOption {
	return func(ro *renderOptions) { ro.partials = p }
}
