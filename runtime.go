package handlebars

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
)

// ----------------------------- Output ---------------------------------------

func writeValue(w io.Writer, v Value, escape bool) error {
	s := v.String()
	if escape && v.kind != SafeStringKind {
		s = EscapeExpression(s)
	}
	_, err := io.WriteString(w, s)
	return err
}

// ----------------------------- Callables ------------------------------------

// force invokes a Lambda or data-bound Helper found where a plain value was
// expected. Other values are returned unchanged.
func (cx *runtimeCtx) force(v Value, args []Value, in Value) (Value, error) {
	switch v.kind {
	case LambdaKind:
		res, err := callLambda(v.fn, args)
		if err != nil {
			return Null, runtimeErrorf(ErrHelper, err, "Runtime: lambda error: %v", err)
		}
		return ValueOf(res), nil
	case HelperKind:
		opts := &HelperOptions{Hash: NewMap(), Scope: in, cx: cx}
		res, err := callSafely(v.h, args, opts)
		if err == nil {
			err = opts.err
		}
		if err != nil {
			return Null, runtimeErrorf(ErrHelper, err, "Runtime: lambda error: %v", err)
		}
		return ValueOf(res), nil
	}
	return v, nil
}

// callSafely runs a helper, turning a panic into an error.
func callSafely(h HelperFunc, args []Value, opts *HelperOptions) (res any, err error) {
	defer recoverTo(&err)
	return h(args, opts)
}

// callLambda runs a data lambda, turning a panic into an error.
func callLambda(fn Lambda, args []Value) (res any, err error) {
	defer recoverTo(&err)
	return fn(args...)
}

func recoverTo(err *error) {
	if r := recover(); r != nil {
		if e, ok := r.(error); ok {
			*err = e
			return
		}
		*err = fmt.Errorf("%v", r)
	}
}

// callHelper invokes a registered helper from mustache or sub-expression
// position. An active block param of the same name shadows the helper.
func (cx *runtimeCtx) callHelper(name string, args []Value, hash *Map, in Value) (Value, error) {
	if v, ok := cx.blockParam(0, name); ok {
		return v, nil
	}
	opts := &HelperOptions{Name: name, Hash: hash, Scope: in, cx: cx}
	return cx.exec(name, args, opts)
}

func (cx *runtimeCtx) exec(name string, args []Value, opts *HelperOptions) (Value, error) {
	h, ok := cx.helpers[name]
	if !ok {
		return Null, runtimeErrorf(ErrMissingHelper, nil, "Runtime: call custom helper '%s' error: helper is not registered", name)
	}
	res, err := callSafely(h, args, opts)
	if err == nil {
		err = opts.err
	}
	if err != nil {
		return Null, runtimeErrorf(ErrHelper, err, "Runtime: call custom helper '%s' error: %v", name, err)
	}
	return ValueOf(res), nil
}

// callBlockHelper invokes a registered helper in block position. An inverted
// block ({{^helper}}) swaps the bodies.
func (cx *runtimeCtx) callBlockHelper(name string, args []Value, hash *Map, bp []string, in Value, inverted bool, body, inverse node, w io.Writer) error {
	if inverted {
		body, inverse = inverse, body
	}
	opts := &HelperOptions{
		Name:        name,
		Hash:        hash,
		BlockParams: len(bp),
		Scope:       in,
		cx:          cx,
		fn:          body,
		inverse:     inverse,
		bpNames:     bp,
	}
	res, err := cx.exec(name, args, opts)
	if err != nil {
		return err
	}
	return cx.blockHelperMissing(res, in, body, inverse, w)
}

// callDynamic invokes a callable found at a path in block position. A value
// that cannot be called is rendered as a section instead.
func (cx *runtimeCtx) callDynamic(target Value, args []Value, hash *Map, bp []string, in Value, body, inverse node, w io.Writer) error {
	if !target.Callable() {
		return cx.section(target, nil, in, false, body, inverse, w)
	}
	var (
		res any
		err error
	)
	if target.kind == LambdaKind {
		res, err = callLambda(target.fn, args)
	} else {
		opts := &HelperOptions{
			Hash:        hash,
			BlockParams: len(bp),
			Scope:       in,
			cx:          cx,
			fn:          body,
			inverse:     inverse,
			bpNames:     bp,
		}
		res, err = callSafely(target.h, args, opts)
		if err == nil {
			err = opts.err
		}
	}
	if err != nil {
		return runtimeErrorf(ErrHelper, err, "Runtime: dynamic block helper error: %v", err)
	}
	return cx.blockHelperMissing(ValueOf(res), in, body, inverse, w)
}

// blockHelperMissing writes string results as they are and renders anything
// else as the subject of a section.
func (cx *runtimeCtx) blockHelperMissing(res Value, in Value, body, inverse node, w io.Writer) error {
	if res.kind == StringKind || res.kind == SafeStringKind {
		_, err := io.WriteString(w, res.s)
		return err
	}
	if body == nil {
		body = emptyNode{}
	}
	return cx.section(res, nil, in, false, body, inverse, w)
}

// ----------------------------- Sections -------------------------------------

// section renders {{#x}}, {{#each}} and helper results. Lists, and anything
// when each is set, are iterated; a keyed map or a plain value renders the
// body once.
func (cx *runtimeCtx) section(v Value, bp []string, in Value, each bool, body, inverse node, w io.Writer) error {
	push := !same(in, v) || each
	isAry := v.collection()

	if isAry && inverse != nil && v.Len() == 0 {
		return inverse.render(cx, in, w)
	}

	loop := each
	isObj := false
	if isAry {
		isObj = v.object()
		if !each {
			loop = !isObj
		}
	}

	if loop && isAry {
		return cx.iterate(v, isObj, bp, in, push, body, w)
	}

	if each {
		if inverse != nil {
			return inverse.render(cx, in, w)
		}
		return nil
	}

	if isAry {
		if push {
			return cx.withScope(in, v, body, w)
		}
		return body.render(cx, v, w)
	}

	if v.kind == BoolKind && v.b {
		return body.render(cx, in, w)
	}

	if !v.IsNull() && !(v.kind == BoolKind && !v.b) {
		return body.render(cx, v, w)
	}

	if inverse != nil {
		return inverse.render(cx, in, w)
	}
	return nil
}

func (cx *runtimeCtx) iterate(v Value, isObj bool, bp []string, in Value, push bool, body node, w io.Writer) error {
	cx = cx.clone()
	if push {
		cx.scopes = append(cx.scopes, in)
	}
	cx.pushFrame(cx.data)

	sparse := isObj && v.m.sparse
	n := v.Len()
	each := func(i int, key, item Value) error {
		cx.setData("first", BoolValue(i == 0))
		cx.setData("last", BoolValue(i == n-1))
		cx.setData("key", key)
		if sparse {
			cx.setData("index", key)
		} else {
			cx.setData("index", NumberValue(float64(i)))
		}

		ctx := item
		if len(bp) > 0 {
			ctx = merge(ctx, MapOf(bp[0], item))
		}
		if len(bp) > 1 {
			ctx = merge(ctx, MapOf(bp[1], key))
		}
		if len(bp) == 0 {
			return body.render(cx, ctx, w)
		}

		frame := NewMap()
		frame.set(bp[0], item)
		if len(bp) > 1 {
			frame.set(bp[1], key)
		}
		saved := cx.blockParams
		cx.pushBlockParams(frame)
		err := body.render(cx, ctx, w)
		cx.blockParams = saved
		return err
	}

	if v.kind == ListKind {
		for i, item := range v.list {
			if err := each(i, NumberValue(float64(i)), item); err != nil {
				return err
			}
		}
		return nil
	}
	for i, k := range v.m.Keys() {
		key := StringValue(k)
		if sparse {
			if f, err := strconv.ParseFloat(k, 64); err == nil {
				key = NumberValue(f)
			}
		}
		item, _ := v.m.Get(k)
		if err := each(i, key, item); err != nil {
			return err
		}
	}
	return nil
}

// with renders {{#with}}. Partials registered inside the body are dropped
// when it returns.
func (cx *runtimeCtx) with(v Value, bp []string, in Value, body, inverse node, w io.Writer) error {
	if len(bp) > 0 {
		v = merge(v, MapOf(bp[0], v))
	}
	if v.empty() {
		if inverse != nil {
			return inverse.render(cx, in, w)
		}
		return nil
	}

	saved, own := cx.partials, cx.ownPartials
	cx.ownPartials = false
	defer func() { cx.partials, cx.ownPartials = saved, own }()

	if same(v, in) {
		return body.render(cx, v, w)
	}
	return cx.withScope(in, v, body, w)
}

func (cx *runtimeCtx) withScope(scope, ctx Value, body node, w io.Writer) error {
	saved := cx.scopes
	cx.scopes = append(cx.scopes[:len(saved):len(saved)], scope)
	err := body.render(cx, ctx, w)
	cx.scopes = saved
	return err
}

// merge overlays b onto a. A scalar a is boxed so b's keys can be attached
// to it while it still renders as itself.
func merge(a Value, b *Map) Value {
	if b.Len() == 0 {
		if a.IsNull() {
			return MapValue(NewMap())
		}
		return a
	}
	switch {
	case a.IsNull():
		return MapValue(b)
	case a.kind == ListKind:
		m := NewMap()
		for i, e := range a.list {
			m.set(strconv.Itoa(i), e)
		}
		b.Range(func(k string, v Value) bool {
			m.set(k, v)
			return true
		})
		return MapValue(m)
	case a.kind == MapKind:
		m := a.m.clone()
		b.Range(func(k string, v Value) bool {
			m.set(k, v)
			return true
		})
		return MapValue(m)
	}
	boxed := a
	m := b.clone()
	m.sparse = false
	m.boxed = &boxed
	return MapValue(m)
}

// ----------------------------- Partials -------------------------------------

// callPartial renders the partial registered as name. pid is the partial
// block id of a {{#> name}} call and 0 for a plain {{> name}}.
func (cx *runtimeCtx) callPartial(name string, ctx Value, hash *Map, pid int, indent string, w io.Writer) error {
	isBlock := name == partialBlockPrefix
	key := name
	if isBlock {
		id := cx.partialID
		if pid > 0 {
			id = pid
		}
		key += strconv.Itoa(id)
	}
	p, ok := cx.partials[key]
	if !ok {
		return runtimeErrorf(ErrMissingPartial, nil, "Runtime: the partial %s could not be found", name)
	}

	c := cx.clone()
	switch {
	case !isBlock:
		c.partialID = pid
	case pid > 0:
		c.partialID = pid
	case c.partialID > 0:
		c.partialID--
	}
	c.depth++
	if c.depth > maxPartialDepth {
		return runtimeErrorf(ErrPartialDepth, nil, "Runtime: the partial %s could not be found", name)
	}

	in := merge(ctx, hash)
	if indent == "" {
		return p.render(c, in, w)
	}
	buf := getBuffer()
	defer putBuffer(buf)
	if err := p.render(c, in, buf); err != nil {
		return err
	}
	_, err := io.WriteString(w, indentLines(buf.String(), indent))
	return err
}

// registerPartial backs {{#*inline}} and partial block bodies. A partial
// block body restores the partial id that was current when it was
// registered, so a nested {{> @partial-block}} reaches the enclosing block.
func (cx *runtimeCtx) registerPartial(name string, body node) {
	if !strings.HasPrefix(name, partialBlockPrefix) {
		cx.setPartial(name, body)
		return
	}
	outer := cx.partialID
	cx.setPartial(name, renderFunc(func(c *runtimeCtx, in Value, w io.Writer) error {
		c.partialID = outer
		return body.render(c, in, w)
	}))
}

// ----------------------------- Misc -----------------------------------------

func (cx *runtimeCtx) log(args []Value, hash *Map) {
	level := slog.LevelInfo
	if lv, ok := hash.Get("level"); ok {
		if err := level.UnmarshalText([]byte(lv.String())); err != nil {
			cx.logger.Warn("unknown log level, logging at info", "level", lv.String())
			level = slog.LevelInfo
		}
	}
	attrs := make([]any, 0, len(args))
	for i, a := range args {
		attrs = append(attrs, slog.Any("arg"+strconv.Itoa(i), a.Interface()))
	}
	cx.logger.Log(context.Background(), level, "template log", attrs...)
}

func missing(name string) error {
	return runtimeErrorf(ErrMissingValue, nil, "Runtime: %s does not exist", name)
}

// renderString renders n into a string, used where a helper needs a body's
// output rather than a stream.
func renderString(cx *runtimeCtx, n node, in Value) (string, error) {
	buf := getBuffer()
	defer putBuffer(buf)
	if err := n.render(cx, in, buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
