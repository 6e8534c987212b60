package handlebars

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// ----------------------------- Template compilation cache ----------------

// CompileCache memoizes Compile by source and options. Helpers are keyed by
// name, so callers must not register different functions under one name.
type CompileCache struct {
	mu        sync.RWMutex
	templates map[uint64]*Template
	maxSize   int
}

// NewCompileCache returns a cache holding at most maxSize templates.
func NewCompileCache(maxSize int) *CompileCache {
	return &CompileCache{
		templates: make(map[uint64]*Template),
		maxSize:   maxSize,
	}
}

var globalCompileCache = NewCompileCache(500)

// CompileCached compiles a template with in-memory caching.
func CompileCached(src string, opts ...Option) (*Template, error) {
	return globalCompileCache.Compile(src, opts...)
}

func (cc *CompileCache) Compile(src string, opts ...Option) (*Template, error) {
	key := cacheKey(src, newCompileOptions(opts))

	cc.mu.RLock()
	tmpl, exists := cc.templates[key]
	cc.mu.RUnlock()
	if exists {
		return tmpl, nil
	}

	tmpl, err := Compile(src, opts...)
	if err != nil {
		return nil, err
	}

	cc.mu.Lock()
	if cc.maxSize > 0 && len(cc.templates) >= cc.maxSize {
		// evict an arbitrary entry
		for k := range cc.templates {
			delete(cc.templates, k)
			break
		}
		tmpl.opts.logger.Debug("compile cache eviction", "size", len(cc.templates))
	}
	cc.templates[key] = tmpl
	cc.mu.Unlock()
	return tmpl, nil
}

// Len returns the number of cached templates.
func (cc *CompileCache) Len() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.templates)
}

// Clear drops every cached template.
func (cc *CompileCache) Clear() {
	cc.mu.Lock()
	cc.templates = make(map[uint64]*Template)
	cc.mu.Unlock()
}

func cacheKey(src string, co *compileOptions) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(src)
	flags := []bool{co.noEscape, co.strict, co.preventIndent, co.ignoreStandalone,
		co.explicitPartialContext, co.knownHelpersOnly,
		co.helperResolver != nil, co.partialResolver != nil}
	for _, f := range flags {
		if f {
			_, _ = d.Write([]byte{0, 1})
		} else {
			_, _ = d.Write([]byte{0, 0})
		}
	}
	for _, name := range sortedKeys(co.helpers) {
		_, _ = d.WriteString("\x00h" + name)
	}
	for _, name := range sortedKeys(co.partials) {
		_, _ = d.WriteString("\x00p" + name + "\x00" + co.partials[name])
	}
	return d.Sum64()
}

// ----------------------------- File cache -----------------------------------

// FileCache compiles template files, reusing the result until the file or
// one of its partials changes on disk.
type FileCache struct {
	mu        sync.RWMutex
	templates map[string]*cachedTemplate
	maxSize   int
	opts      []Option
}

type cachedTemplate struct {
	template *Template
	modTime  time.Time

	// partials maps each discovered partial file to its modification time.
	partials map[string]time.Time
}

var globalFileCache = NewFileCache(1000)

// NewFileCache creates a file cache with the given max size. opts apply to
// every template it compiles.
func NewFileCache(maxSize int, opts ...Option) *FileCache {
	return &FileCache{
		templates: make(map[string]*cachedTemplate),
		maxSize:   maxSize,
		opts:      opts,
	}
}

// CompileFile compiles a template from file with caching and automatic
// partial discovery.
func CompileFile(filename string, opts ...Option) (*Template, error) {
	return globalFileCache.CompileFile(filename, opts...)
}

// CompileFile compiles filename, registering every sibling file named
// _name<ext> as partial "name". Results are cached only when no extra
// options are passed.
func (fc *FileCache) CompileFile(filename string, opts ...Option) (*Template, error) {
	info, err := os.Stat(filename)
	if err != nil {
		return nil, fmt.Errorf("template file %q: %w", filename, err)
	}

	fc.mu.RLock()
	cached, exists := fc.templates[filename]
	fc.mu.RUnlock()
	if exists && len(opts) == 0 && cached.fresh(info.ModTime()) {
		return cached.template, nil
	}

	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading template %q: %w", filename, err)
	}

	partials, modTimes := discoverPartials(filename)
	all := make([]Option, 0, len(fc.opts)+len(opts)+1)
	all = append(all, fc.opts...)
	all = append(all, WithPartials(partials))
	all = append(all, opts...)

	tmpl, err := Compile(string(content), all...)
	if err != nil {
		return nil, fmt.Errorf("compiling template %q: %w", filename, err)
	}

	if len(opts) == 0 {
		fc.mu.Lock()
		if fc.maxSize > 0 && len(fc.templates) >= fc.maxSize {
			for k := range fc.templates {
				delete(fc.templates, k)
				break
			}
		}
		fc.templates[filename] = &cachedTemplate{
			template: tmpl,
			modTime:  info.ModTime(),
			partials: modTimes,
		}
		fc.mu.Unlock()
	}
	return tmpl, nil
}

// Invalidate drops filename from the cache.
func (fc *FileCache) Invalidate(filename string) {
	fc.mu.Lock()
	delete(fc.templates, filename)
	fc.mu.Unlock()
}

// ClearCache clears the file cache.
func (fc *FileCache) ClearCache() {
	fc.mu.Lock()
	fc.templates = make(map[string]*cachedTemplate)
	fc.mu.Unlock()
}

func (c *cachedTemplate) fresh(modTime time.Time) bool {
	if c.modTime.Before(modTime) {
		return false
	}
	for path, t := range c.partials {
		info, err := os.Stat(path)
		if err != nil || t.Before(info.ModTime()) {
			return false
		}
	}
	return true
}

// discoverPartials reads the _name<ext> siblings of filename. Unreadable
// files are skipped.
func discoverPartials(filename string) (map[string]string, map[string]time.Time) {
	dir := filepath.Dir(filename)
	base := filepath.Base(filename)
	ext := filepath.Ext(base)

	partials := make(map[string]string)
	modTimes := make(map[string]time.Time)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return partials, modTimes
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == base || !strings.HasPrefix(name, "_") || filepath.Ext(name) != ext {
			continue
		}
		path := filepath.Join(dir, name)
		info, err := entry.Info()
		if err != nil {
			continue
		}
		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		partials[partialName(name)] = string(content)
		modTimes[path] = info.ModTime()
	}
	return partials, modTimes
}

// partialName maps "_header.hbs" to "header".
func partialName(file string) string {
	name := strings.TrimPrefix(file, "_")
	return strings.TrimSuffix(name, filepath.Ext(name))
}
