package handlebars

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// EngineOption configures NewEngine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	layout         string
	reloadInterval time.Duration
	compile        []Option
	metrics        *Metrics
	logger         *slog.Logger
}

// WithLayout renders every template inside the named layout. The layout sees
// the page data plus the rendered page as {{{body}}}.
func WithLayout(name string) EngineOption {
	return func(eo *engineOptions) { eo.layout = name }
}

// WithReloadInterval sets how often template files are polled for changes.
// Zero or a negative interval disables reloading.
func WithReloadInterval(d time.Duration) EngineOption {
	return func(eo *engineOptions) { eo.reloadInterval = d }
}

// WithCompileOptions applies opts to every template the engine compiles.
func WithCompileOptions(opts ...Option) EngineOption {
	return func(eo *engineOptions) { eo.compile = append(eo.compile, opts...) }
}

func WithMetrics(m *Metrics) EngineOption {
	return func(eo *engineOptions) { eo.metrics = m }
}

func WithEngineLogger(l *slog.Logger) EngineOption {
	return func(eo *engineOptions) { eo.logger = l }
}

// Engine serves the templates of one directory by name. Files named
// _name<ext> are partials available to every template.
type Engine struct {
	mu        sync.RWMutex
	templates map[string]*Template

	dir, ext      string
	layout        string
	files         *FileCache
	reloadManager *ReloadManager
	metrics       *Metrics
	logger        *slog.Logger
}

// NewEngine loads every template in dir with extension ext (".hbs"). Unless
// reloading is disabled, changed files are recompiled in the background
// until Close is called.
func NewEngine(dir, ext string, opts ...EngineOption) (*Engine, error) {
	eo := engineOptions{
		reloadInterval: 1 * time.Second,
		logger:         slog.Default(),
	}
	for _, o := range opts {
		o(&eo)
	}

	engine := &Engine{
		templates: make(map[string]*Template),
		dir:       dir,
		ext:       ext,
		layout:    eo.layout,
		files:     NewFileCache(0, append([]Option{WithLogger(eo.logger)}, eo.compile...)...),
		metrics:   eo.metrics,
		logger:    eo.logger,
	}
	if err := engine.Load(); err != nil {
		return nil, err
	}
	if engine.layout != "" {
		if _, ok := engine.Lookup(engine.layout); !ok {
			return nil, fmt.Errorf("layout %q not found in %s", engine.layout, dir)
		}
	}

	if eo.reloadInterval <= 0 {
		return engine, nil
	}
	engine.reloadManager = NewReloadManager(eo.reloadInterval, engine.files, eo.logger)
	engine.reloadManager.AddCallback(engine.reloaded)
	if err := engine.reloadManager.WatchDirectory(dir, ext); err != nil {
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}
	engine.reloadManager.Start()
	return engine, nil
}

// Load compiles every template in the directory and replaces the current
// set. On error the current set is kept.
func (e *Engine) Load() error {
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		return fmt.Errorf("reading directory %q: %w", e.dir, err)
	}

	templates := make(map[string]*Template, len(entries))
	var errs []error
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != e.ext || isPartialFile(name) {
			continue
		}
		start := time.Now()
		tmpl, err := e.files.CompileFile(filepath.Join(e.dir, name))
		e.metrics.observeCompile(start, err)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		templates[e.templateName(name)] = tmpl
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	e.mu.Lock()
	e.templates = templates
	e.mu.Unlock()
	e.logger.Debug("templates loaded", "dir", e.dir, "count", len(templates))
	return nil
}

func (e *Engine) reloaded(filename string, tmpl *Template, err error) {
	switch {
	case err != nil:
		e.logger.Warn("template reload failed", "file", filename, "error", err)
	case tmpl == nil:
		// a partial changed; every template may embed it
		err = e.Load()
		if err != nil {
			e.logger.Warn("template reload failed", "file", filename, "error", err)
		}
	default:
		e.mu.Lock()
		e.templates[e.templateName(filepath.Base(filename))] = tmpl
		e.mu.Unlock()
		e.logger.Info("template reloaded", "file", filename)
	}
	e.metrics.observeReload(err)
}

func (e *Engine) templateName(file string) string {
	return strings.TrimSuffix(file, e.ext)
}

// Lookup returns the template called name.
func (e *Engine) Lookup(name string) (*Template, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.templates[name]
	return t, ok
}

// Names returns the sorted template names.
func (e *Engine) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return sortedKeys(e.templates)
}

// Render executes template name with data into w, wrapped in the layout
// when one is configured.
func (e *Engine) Render(w io.Writer, name string, data any, opts ...RenderOption) error {
	start := time.Now()
	err := e.render(w, name, data, opts)
	e.metrics.observeRender(name, start, err)
	return err
}

func (e *Engine) render(w io.Writer, name string, data any, opts []RenderOption) error {
	tmpl, ok := e.Lookup(name)
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}
	if e.layout == "" || name == e.layout {
		return tmpl.Render(w, data, opts...)
	}
	layout, ok := e.Lookup(e.layout)
	if !ok {
		return fmt.Errorf("layout %q not found", e.layout)
	}
	body, err := tmpl.RenderString(data, opts...)
	if err != nil {
		return err
	}
	return layout.Render(w, merge(ValueOf(data), MapOf("body", SafeString(body))), opts...)
}

// RenderString renders template name and returns the output.
func (e *Engine) RenderString(name string, data any, opts ...RenderOption) (string, error) {
	buf := getBuffer()
	defer putBuffer(buf)
	if err := e.Render(buf, name, data, opts...); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Close stops background reloading.
func (e *Engine) Close() {
	if e.reloadManager != nil {
		e.reloadManager.Stop()
	}
}
