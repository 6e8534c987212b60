package handlebars

import (
	"io"
)

// ----------------------------- Render tree ----------------------------------

// node is one compiled fragment of a template. in is the current context.
type node interface {
	render(cx *runtimeCtx, in Value, w io.Writer) error
}

type renderFunc func(cx *runtimeCtx, in Value, w io.Writer) error

func (f renderFunc) render(cx *runtimeCtx, in Value, w io.Writer) error { return f(cx, in, w) }

type emptyNode struct{}

func (emptyNode) render(*runtimeCtx, Value, io.Writer) error { return nil }

type textNode struct{ text string }

func (n textNode) render(_ *runtimeCtx, _ Value, w io.Writer) error {
	_, err := io.WriteString(w, n.text)
	return err
}

type seqNode []node

func (s seqNode) render(cx *runtimeCtx, in Value, w io.Writer) error {
	for _, n := range s {
		if err := n.render(cx, in, w); err != nil {
			return err
		}
	}
	return nil
}

// scopedNode gives a program that declares partials its own runtime
// context, so the declarations end with the block.
type scopedNode struct{ body node }

func (n scopedNode) render(cx *runtimeCtx, in Value, w io.Writer) error {
	return n.body.render(cx.clone(), in, w)
}

type outputNode struct {
	expr   expr
	escape bool
}

func (n outputNode) render(cx *runtimeCtx, in Value, w io.Writer) error {
	v, err := n.expr.eval(cx, in)
	if err != nil {
		return err
	}
	return writeValue(w, v, n.escape)
}

type ifNode struct {
	cond        expr
	includeZero expr
	negate      bool
	then, els   node
}

func (n ifNode) render(cx *runtimeCtx, in Value, w io.Writer) error {
	v, err := n.cond.eval(cx, in)
	if err != nil {
		return err
	}
	zero := false
	if n.includeZero != nil {
		z, err := n.includeZero.eval(cx, in)
		if err != nil {
			return err
		}
		zero = z.truthy(false)
	}
	if v.truthy(zero) != n.negate {
		return n.then.render(cx, in, w)
	}
	if n.els != nil {
		return n.els.render(cx, in, w)
	}
	return nil
}

// sectionNode backs {{#each}} and {{#path}} blocks.
type sectionNode struct {
	subject expr
	bp      []string
	each    bool
	body    node
	inverse node
}

func (n sectionNode) render(cx *runtimeCtx, in Value, w io.Writer) error {
	v, err := n.subject.eval(cx, in)
	if err != nil {
		return err
	}
	return cx.section(v, n.bp, in, n.each, n.body, n.inverse, w)
}

// invertedNode is {{^path}}: the body renders only for null, false or an
// empty collection.
type invertedNode struct {
	subject expr
	body    node
}

func (n invertedNode) render(cx *runtimeCtx, in Value, w io.Writer) error {
	v, err := n.subject.eval(cx, in)
	if err != nil {
		return err
	}
	if v.empty() {
		return n.body.render(cx, in, w)
	}
	return nil
}

type withNode struct {
	subject expr
	bp      []string
	body    node
	inverse node
}

func (n withNode) render(cx *runtimeCtx, in Value, w io.Writer) error {
	v, err := n.subject.eval(cx, in)
	if err != nil {
		return err
	}
	return cx.with(v, n.bp, in, n.body, n.inverse, w)
}

type blockHelperNode struct {
	name     string
	args     []expr
	hash     hashExpr
	bp       []string
	inverted bool
	body     node
	inverse  node
}

func (n blockHelperNode) render(cx *runtimeCtx, in Value, w io.Writer) error {
	args, err := evalArgs(cx, in, n.args)
	if err != nil {
		return err
	}
	hash, err := n.hash.eval(cx, in)
	if err != nil {
		return err
	}
	return cx.callBlockHelper(n.name, args, hash, n.bp, in, n.inverted, n.body, n.inverse, w)
}

// dynBlockNode is a block whose head is a path with params, such as
// {{#../fn arg}}.
type dynBlockNode struct {
	target  expr
	args    []expr
	hash    hashExpr
	bp      []string
	body    node
	inverse node
}

func (n dynBlockNode) render(cx *runtimeCtx, in Value, w io.Writer) error {
	target, err := n.target.eval(cx, in)
	if err != nil {
		return err
	}
	args, err := evalArgs(cx, in, n.args)
	if err != nil {
		return err
	}
	hash, err := n.hash.eval(cx, in)
	if err != nil {
		return err
	}
	return cx.callDynamic(target, args, hash, n.bp, in, n.body, n.inverse, w)
}

type inlinePartialNode struct {
	name string
	body node
}

func (n inlinePartialNode) render(cx *runtimeCtx, _ Value, _ io.Writer) error {
	cx.registerPartial(n.name, n.body)
	return nil
}

type partialNode struct {
	name     string
	nameExpr expr
	ctx      expr
	hash     hashExpr
	pid      int
	indent   string
}

func (n partialNode) render(cx *runtimeCtx, in Value, w io.Writer) error {
	name := n.name
	if n.nameExpr != nil {
		v, err := n.nameExpr.eval(cx, in)
		if err != nil {
			return err
		}
		name = v.String()
	}
	ctx := in
	if n.ctx != nil {
		v, err := n.ctx.eval(cx, in)
		if err != nil {
			return err
		}
		ctx = v
	}
	hash, err := n.hash.eval(cx, in)
	if err != nil {
		return err
	}
	return cx.callPartial(name, ctx, hash, n.pid, n.indent, w)
}

type logNode struct {
	args []expr
	hash hashExpr
}

func (n logNode) render(cx *runtimeCtx, in Value, _ io.Writer) error {
	args, err := evalArgs(cx, in, n.args)
	if err != nil {
		return err
	}
	hash, err := n.hash.eval(cx, in)
	if err != nil {
		return err
	}
	cx.log(args, hash)
	return nil
}

// ----------------------------- Expressions ----------------------------------

type expr interface {
	eval(cx *runtimeCtx, in Value) (Value, error)
}

type literalExpr struct{ v Value }

func (e literalExpr) eval(*runtimeCtx, Value) (Value, error) { return e.v, nil }

// pathExpr reads a value relative to the context, an ancestor scope, the
// @-data frame or a block param slot.
type pathExpr struct {
	data     bool
	depth    int
	parts    []string
	original string
	bpSlot   int
	length   bool
	strict   bool
}

func (e *pathExpr) eval(cx *runtimeCtx, in Value) (Value, error) {
	base := e.base(cx, in)
	if len(e.parts) == 0 {
		return base, nil
	}
	if e.bpSlot >= 0 {
		if v, ok := cx.blockParam(e.bpSlot, e.parts[0]); ok && !v.IsNull() {
			if v = lookupPath(v, e.parts[1:]); !v.IsNull() {
				return v, nil
			}
		}
		return e.miss()
	}
	if v := lookupPath(base, e.parts); !v.IsNull() {
		return v, nil
	}
	if e.length {
		if parent := lookupPath(base, e.parts[:len(e.parts)-1]); parent.collection() {
			return NumberValue(float64(parent.Len())), nil
		}
	}
	return e.miss()
}

func (e *pathExpr) base(cx *runtimeCtx, in Value) Value {
	switch {
	case e.data:
		v := MapValue(cx.data)
		for i := 0; i < e.depth; i++ {
			v, _ = lookupKey(v, "_parent")
		}
		return v
	case e.depth > 0:
		return cx.scope(e.depth)
	}
	return in
}

func (e *pathExpr) miss() (Value, error) {
	if e.strict {
		return Null, missing(e.original)
	}
	return Null, nil
}

// partialBlockExpr is @partial-block used as a value: true when a partial
// block is active.
type partialBlockExpr struct{}

func (partialBlockExpr) eval(cx *runtimeCtx, _ Value) (Value, error) {
	if cx.hasPartialBlock() {
		return BoolValue(true), nil
	}
	return Null, nil
}

// keyExpr is a literal in head position, read as a key of the context.
type keyExpr struct {
	key    string
	strict bool
}

func (e keyExpr) eval(_ *runtimeCtx, in Value) (Value, error) {
	if v, ok := lookupKey(in, e.key); ok && !v.IsNull() {
		return v, nil
	}
	if e.strict {
		return Null, missing(e.key)
	}
	return Null, nil
}

type helperCallExpr struct {
	name string
	args []expr
	hash hashExpr
}

func (e helperCallExpr) eval(cx *runtimeCtx, in Value) (Value, error) {
	args, err := evalArgs(cx, in, e.args)
	if err != nil {
		return Null, err
	}
	hash, err := e.hash.eval(cx, in)
	if err != nil {
		return Null, err
	}
	return cx.callHelper(e.name, args, hash, in)
}

// lookupExpr is the lookup helper: items[idx].
type lookupExpr struct {
	items    expr
	idx      expr
	missName string
	strict   bool
}

func (e lookupExpr) eval(cx *runtimeCtx, in Value) (Value, error) {
	items, err := e.items.eval(cx, in)
	if err != nil {
		return Null, err
	}
	idx, err := e.idx.eval(cx, in)
	if err != nil {
		return Null, err
	}
	if v, ok := lookupKey(items, idx.String()); ok && !v.IsNull() {
		return v, nil
	}
	if e.strict {
		return Null, missing(e.missName)
	}
	return Null, nil
}

// forceExpr evaluates target and invokes it when it is callable. Block
// subjects pass the current context as the only argument.
type forceExpr struct {
	target    expr
	args      []expr
	passInput bool
}

func (e forceExpr) eval(cx *runtimeCtx, in Value) (Value, error) {
	v, err := e.target.eval(cx, in)
	if err != nil || !v.Callable() {
		return v, err
	}
	args, err := evalArgs(cx, in, e.args)
	if err != nil {
		return Null, err
	}
	if e.passInput {
		args = append(args, in)
	}
	return cx.force(v, args, in)
}

type hashPair struct {
	key   string
	value expr
}

type hashExpr []hashPair

// eval always returns a map, empty when the tag had no hash arguments.
func (h hashExpr) eval(cx *runtimeCtx, in Value) (*Map, error) {
	m := NewMap()
	for _, p := range h {
		v, err := p.value.eval(cx, in)
		if err != nil {
			return nil, err
		}
		m.set(p.key, v)
	}
	return m, nil
}

func evalArgs(cx *runtimeCtx, in Value, exprs []expr) ([]Value, error) {
	if len(exprs) == 0 {
		return nil, nil
	}
	args := make([]Value, len(exprs))
	for i, e := range exprs {
		v, err := e.eval(cx, in)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}
