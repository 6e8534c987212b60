package handlebars

import (
	"log/slog"
	"strconv"
)

const (
	maxPartialDepth     = 100
	partialBlockPrefix  = "@partial-block"
	partialBlockDataKey = "partial-block"
)

// runtimeCtx is the state threaded through one render. Sections, with blocks,
// helper bodies and partials clone it before descending so siblings never see
// each other's scope, data or partial changes.
type runtimeCtx struct {
	helpers map[string]HelperFunc

	// partials is shared with the parent until the first registration.
	partials    map[string]node
	ownPartials bool

	// scopes holds the ancestor contexts; len(scopes) is the number of
	// enclosing contexts reachable with ../
	scopes []Value

	// blockParams holds one frame per active `as |a b|` binding, innermost last.
	blockParams []*Map

	// data is the @-variable frame. Loop frames link to their parent via _parent.
	data    *Map
	ownData bool

	partialID int
	depth     int

	logger *slog.Logger
}

func (cx *runtimeCtx) clone() *runtimeCtx {
	c := *cx
	c.scopes = cx.scopes[:len(cx.scopes):len(cx.scopes)]
	c.blockParams = cx.blockParams[:len(cx.blockParams):len(cx.blockParams)]
	c.ownPartials = false
	c.ownData = false
	return &c
}

func (cx *runtimeCtx) setPartial(name string, n node) {
	if !cx.ownPartials {
		p := make(map[string]node, len(cx.partials)+1)
		for k, v := range cx.partials {
			p[k] = v
		}
		cx.partials = p
		cx.ownPartials = true
	}
	cx.partials[name] = n
}

func (cx *runtimeCtx) setData(name string, v Value) {
	if !cx.ownData {
		cx.data = cx.data.clone()
		cx.ownData = true
	}
	cx.data.set(name, v)
}

// pushFrame starts a new @-variable frame holding @root, the entries of vars
// and a _parent link to the current frame.
func (cx *runtimeCtx) pushFrame(vars *Map) {
	old := cx.data
	frame := NewMap()
	if root, ok := old.Get("root"); ok {
		frame.set("root", root)
	}
	vars.Range(func(k string, v Value) bool {
		frame.set(k, v)
		return true
	})
	frame.set("_parent", MapValue(old))
	cx.data = frame
	cx.ownData = true
}

func (cx *runtimeCtx) pushBlockParams(frame *Map) {
	cx.blockParams = append(cx.blockParams[:len(cx.blockParams):len(cx.blockParams)], frame)
}

// blockParam reads the frame at slot, counted from the innermost binding.
func (cx *runtimeCtx) blockParam(slot int, name string) (Value, bool) {
	i := len(cx.blockParams) - 1 - slot
	if i < 0 {
		return Null, false
	}
	return cx.blockParams[i].Get(name)
}

func (cx *runtimeCtx) scope(depth int) Value {
	i := len(cx.scopes) - depth
	if i < 0 || i >= len(cx.scopes) {
		return Null
	}
	return cx.scopes[i]
}

func (cx *runtimeCtx) hasPartialBlock() bool {
	_, ok := cx.partials[partialBlockPrefix+strconv.Itoa(cx.partialID)]
	return ok
}
