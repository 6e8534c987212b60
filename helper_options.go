package handlebars

// HelperOptions is passed to every helper call. It exposes the hash
// arguments, the block bodies and a live view of the render state.
//
// Fn and Inverse return the rendered text. A render failure inside a body is
// recorded and reported once the helper returns, so helpers need not check
// for it.
type HelperOptions struct {
	// Name is the helper name as written in the template; empty for a
	// callable found at a path.
	Name string

	Hash *Map

	// BlockParams is the number of names the block declared with `as |...|`.
	BlockParams int

	// Scope is the context the helper was called in.
	Scope Value

	cx      *runtimeCtx
	fn      node
	inverse node
	bpNames []string
	err     error
}

// Frame overrides the @-variables and block params seen by a body.
type Frame struct {
	Data        *Map
	BlockParams []any
}

// Fn renders the block body in the current context.
func (o *HelperOptions) Fn() string { return o.renderFn(nil, nil) }

// FnWith renders the block body with ctx as its context.
func (o *HelperOptions) FnWith(ctx any) string {
	v := ValueOf(ctx)
	return o.renderFn(&v, nil)
}

// FnWithFrame renders the block body with ctx as its context and f as its
// data frame. A nil ctx keeps the current context.
func (o *HelperOptions) FnWithFrame(ctx any, f Frame) string {
	if ctx == nil {
		return o.renderFn(nil, &f)
	}
	v := ValueOf(ctx)
	return o.renderFn(&v, &f)
}

func (o *HelperOptions) renderFn(ctx *Value, f *Frame) string {
	if o.fn == nil || o.cx == nil {
		return ""
	}
	cx := o.cx.clone()
	if f != nil && f.Data != nil {
		cx.pushFrame(f.Data)
	}
	if f != nil && f.BlockParams != nil && len(o.bpNames) > 0 {
		bp := NewMap()
		for i, name := range o.bpNames {
			if i < len(f.BlockParams) {
				bp.set(name, ValueOf(f.BlockParams[i]))
			} else {
				bp.set(name, Null)
			}
		}
		cx.pushBlockParams(bp)
	}

	var (
		out string
		err error
	)
	if ctx == nil || ctx.IsNull() || same(*ctx, o.Scope) {
		out, err = renderString(cx, o.fn, o.Scope)
	} else {
		out, err = o.renderScoped(cx, *ctx, o.fn)
	}
	o.fail(err)
	return out
}

// Inverse renders the {{else}} body in the current context.
func (o *HelperOptions) Inverse() string { return o.renderInverse(nil) }

// InverseWith renders the {{else}} body with ctx as its context.
func (o *HelperOptions) InverseWith(ctx any) string {
	v := ValueOf(ctx)
	return o.renderInverse(&v)
}

func (o *HelperOptions) renderInverse(ctx *Value) string {
	if o.inverse == nil || o.cx == nil {
		return ""
	}
	var (
		out string
		err error
	)
	if ctx == nil || ctx.IsNull() {
		out, err = renderString(o.cx, o.inverse, o.Scope)
	} else {
		out, err = o.renderScoped(o.cx, *ctx, o.inverse)
	}
	o.fail(err)
	return out
}

func (o *HelperOptions) renderScoped(cx *runtimeCtx, ctx Value, n node) (string, error) {
	buf := getBuffer()
	defer putBuffer(buf)
	if err := cx.withScope(o.Scope, ctx, n, buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (o *HelperOptions) fail(err error) {
	if err != nil && o.err == nil {
		o.err = err
	}
}

// HashValue returns the hash argument key, or Null.
func (o *HelperOptions) HashValue(key string) Value {
	v, _ := o.Hash.Get(key)
	return v
}

// Data returns the @-variable name from the current frame.
func (o *HelperOptions) Data(name string) Value {
	if o.cx == nil {
		return Null
	}
	v, _ := o.cx.data.Get(name)
	return v
}

// SetData assigns an @-variable in the caller's frame. The change is seen by
// the rest of the block the helper was called from.
func (o *HelperOptions) SetData(name string, v any) {
	if o.cx != nil {
		o.cx.setData(name, ValueOf(v))
	}
}

// LookupProperty reads key from a map or list value, returning Null when it
// is absent.
func (o *HelperOptions) LookupProperty(obj Value, key string) Value {
	v, _ := lookupKey(obj, key)
	return v
}
