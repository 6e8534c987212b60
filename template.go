package handlebars

import (
	"fmt"
	"io"
	"maps"
	"sort"
	"strings"
	"sync"

	"github.com/oarkflow/handlebars/ast"
	"github.com/oarkflow/handlebars/parser"
)

// ----------------------------- Public API -----------------------------------

// Template is a compiled template. It is read-only once compiled and safe for
// concurrent use; every render gets its own runtime state.
type Template struct {
	root     node
	helpers  map[string]HelperFunc
	partials map[string]node
	opts     *compileOptions

	usedHelpers  map[string]bool
	usedPartials map[string]string

	// runtime holds partials passed with WithRuntimePartials, compiled on
	// first use and keyed by name and source.
	mu      sync.RWMutex
	runtime map[string]*Template
}

// Compile parses and compiles src.
func Compile(src string, opts ...Option) (*Template, error) {
	co := newCompileOptions(opts)
	prog, err := parser.ParseWithOptions(src, parser.Options{IgnoreStandalone: co.ignoreStandalone})
	if err != nil {
		return nil, err
	}
	return compileProgram(prog, co)
}

// CompileAST compiles an already parsed program.
func CompileAST(prog *ast.Program, opts ...Option) (*Template, error) {
	return compileProgram(prog, newCompileOptions(opts))
}

// MustCompile is like Compile but panics on error.
func MustCompile(src string, opts ...Option) *Template {
	t, err := Compile(src, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

func compileProgram(prog *ast.Program, co *compileOptions) (*Template, error) {
	cc := newCompileCtx(co)
	root, err := compileRoot(prog, cc)
	if err != nil {
		return nil, err
	}
	return &Template{
		root:         root,
		helpers:      cc.helpers,
		partials:     cc.res.partialCode,
		opts:         co,
		usedHelpers:  cc.res.usedHelpers,
		usedPartials: cc.res.usedPartials,
		runtime:      make(map[string]*Template),
	}, nil
}

// Render executes the template with data into w. Data may be a struct, map,
// slice, scalar or Value. Output is buffered, so nothing reaches w when the
// render fails.
func (t *Template) Render(w io.Writer, data any, opts ...RenderOption) error {
	var ro renderOptions
	for _, o := range opts {
		o(&ro)
	}
	in := ValueOf(data)
	cx, err := t.newRuntimeCtx(in, &ro)
	if err != nil {
		return err
	}

	buf := getBuffer()
	defer putBuffer(buf)
	if err := t.root.render(cx, in, buf); err != nil {
		return err
	}
	_, err = w.Write(buf.Bytes())
	return err
}

// RenderString renders into a pooled builder and returns a string.
func (t *Template) RenderString(data any, opts ...RenderOption) (string, error) {
	sb := stringBuilderPool.Get().(*strings.Builder)
	sb.Reset()
	defer stringBuilderPool.Put(sb)
	if err := t.Render(sb, data, opts...); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// UsedHelpers returns the sorted names of the helpers the template calls.
func (t *Template) UsedHelpers() []string {
	return sortedKeys(t.usedHelpers)
}

// UsedPartials returns the sorted names of the partials the template
// references, inline partials included.
func (t *Template) UsedPartials() []string {
	return sortedKeys(t.usedPartials)
}

func (t *Template) newRuntimeCtx(in Value, ro *renderOptions) (*runtimeCtx, error) {
	cx := &runtimeCtx{
		helpers:  t.helpers,
		partials: t.partials,
		logger:   t.opts.logger,
	}
	if len(ro.helpers) > 0 {
		cx.helpers = maps.Clone(t.helpers)
		maps.Copy(cx.helpers, ro.helpers)
	}
	if len(ro.partials) > 0 {
		cx.partials = maps.Clone(t.partials)
		for _, name := range sortedKeys(ro.partials) {
			sub, err := t.runtimePartial(name, ro.partials[name])
			if err != nil {
				return nil, err
			}
			for k, p := range sub.partials {
				if _, ok := cx.partials[k]; !ok {
					cx.partials[k] = p
				}
			}
			cx.partials[name] = sub.root
		}
	}

	cx.data = NewMap()
	cx.data.set("root", in)
	ro.data.Range(func(k string, v Value) bool {
		cx.data.set(k, v)
		return true
	})
	cx.ownData = true
	return cx, nil
}

func (t *Template) runtimePartial(name, src string) (*Template, error) {
	key := name + "\x00" + src
	t.mu.RLock()
	sub, ok := t.runtime[key]
	t.mu.RUnlock()
	if ok {
		return sub, nil
	}

	prog, err := parser.ParseWithOptions(src, parser.Options{IgnoreStandalone: t.opts.ignoreStandalone})
	if err != nil {
		return nil, fmt.Errorf("partial %s: %w", name, err)
	}
	sub, err = compileProgram(prog, t.opts)
	if err != nil {
		return nil, fmt.Errorf("partial %s: %w", name, err)
	}
	t.mu.Lock()
	t.runtime[key] = sub
	t.mu.Unlock()
	return sub, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
