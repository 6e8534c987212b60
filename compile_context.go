package handlebars

import (
	"maps"
	"strconv"
	"strings"
)

// compileResult is what one compile pass adds to the template: the helpers
// and partials it used, the partial bodies it compiled and its counters. A
// partial is compiled on a child pass whose result is folded back into the
// parent in document order.
type compileResult struct {
	usedHelpers    map[string]bool
	usedPartials   map[string]string
	partialCode    map[string]node
	usedDynPartial int
	partialBlockID int
}

func newCompileResult() *compileResult {
	return &compileResult{
		usedHelpers:  make(map[string]bool),
		usedPartials: make(map[string]string),
		partialCode:  make(map[string]node),
	}
}

func (r *compileResult) clone() *compileResult {
	return &compileResult{
		usedHelpers:    maps.Clone(r.usedHelpers),
		usedPartials:   maps.Clone(r.usedPartials),
		partialCode:    maps.Clone(r.partialCode),
		usedDynPartial: r.usedDynPartial,
		partialBlockID: r.partialBlockID,
	}
}

func (r *compileResult) absorb(child *compileResult) {
	maps.Copy(r.usedHelpers, child.usedHelpers)
	maps.Copy(r.usedPartials, child.usedPartials)
	maps.Copy(r.partialCode, child.partialCode)
	r.usedDynPartial = max(r.usedDynPartial, child.usedDynPartial)
	r.partialBlockID = max(r.partialBlockID, child.partialBlockID)
}

// compileCtx is the state of one compile pass.
type compileCtx struct {
	opts *compileOptions

	// helpers caches resolver lookups on top of the registered helpers.
	helpers map[string]HelperFunc

	// stack names the partials being compiled, outermost first.
	stack []string

	res *compileResult
}

func newCompileCtx(opts *compileOptions) *compileCtx {
	return &compileCtx{
		opts:    opts,
		helpers: maps.Clone(opts.helpers),
		res:     newCompileResult(),
	}
}

// child starts the pass that compiles partial name.
func (cc *compileCtx) child(name string) *compileCtx {
	return &compileCtx{
		opts:    cc.opts,
		helpers: maps.Clone(cc.helpers),
		stack:   append(cc.stack[:len(cc.stack):len(cc.stack)], name),
		res:     cc.res.clone(),
	}
}

func (cc *compileCtx) absorb(child *compileCtx) {
	maps.Copy(cc.helpers, child.helpers)
	cc.res.absorb(child.res)
}

// resolveHelper reports whether name is a helper, asking the resolver for
// names that were not registered.
func (cc *compileCtx) resolveHelper(name string) bool {
	if _, ok := cc.helpers[name]; ok {
		cc.res.usedHelpers[name] = true
		return true
	}
	if cc.opts.knownHelpersOnly || cc.opts.helperResolver == nil {
		return false
	}
	h, ok := cc.opts.helperResolver(name)
	if !ok || h == nil {
		return false
	}
	cc.helpers[name] = h
	cc.res.usedHelpers[name] = true
	return true
}

// resolvePartial returns the source of partial name. A bare @partial-block
// is qualified with the current block id first.
func (cc *compileCtx) resolvePartial(name string) (string, string, bool) {
	if name == partialBlockPrefix {
		name += strconv.Itoa(cc.res.partialBlockID)
	}
	if src, ok := cc.opts.partials[name]; ok {
		return name, src, true
	}
	if cc.opts.partialResolver != nil {
		if src, ok := cc.opts.partialResolver(name); ok {
			return name, src, true
		}
	}
	return name, "", false
}

// inPartialBlock reports whether name is the partial block being compiled.
func (cc *compileCtx) inPartialBlock(name string) bool {
	return len(cc.stack) > 0 && cc.stack[len(cc.stack)-1] == name && strings.HasPrefix(name, partialBlockPrefix)
}
