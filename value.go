package handlebars

import (
	"strconv"
	"strings"
)

// ----------------------------- Values ---------------------------------------

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	NullKind Kind = iota
	BoolKind
	NumberKind
	StringKind
	SafeStringKind
	ListKind
	MapKind
	LambdaKind
	HelperKind
)

var kindNames = [...]string{"null", "bool", "number", "string", "safestring", "list", "map", "lambda", "helper"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// SafeString is output verbatim, never HTML escaped.
type SafeString string

// Lambda is a data value that is invoked when read. Mustaches pass their
// params as args; #if, #each and #with pass the current context.
type Lambda func(args ...Value) (any, error)

// HelperFunc implements a helper. args holds the positional params, opts
// gives access to the hash, the block bodies and the live render state.
// Returning a string or SafeString from a block helper writes it out; any
// other value is rendered as if it were the subject of a section.
type HelperFunc func(args []Value, opts *HelperOptions) (any, error)

// Value is the tagged union every template lookup produces.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	list []Value
	m    *Map
	fn   Lambda
	h    HelperFunc
}

var Null = Value{}

func BoolValue(b bool) Value { return Value{kind: BoolKind, b: b} }
func NumberValue(f float64) Value { return Value{kind: NumberKind, n: f} }
func StringValue(s string) Value { return Value{kind: StringKind, s: s} }
func SafeValue(s string) Value { return Value{kind: SafeStringKind, s: s} }
func ListValue(vs []Value) Value { return Value{kind: ListKind, list: vs} }
func LambdaValue(fn Lambda) Value { return Value{kind: LambdaKind, fn: fn} }
func HelperValue(h HelperFunc) Value { return Value{kind: HelperKind, h: h} }

// MapValue wraps m; a nil map is Null.
func MapValue(m *Map) Value {
	if m == nil {
		return Null
	}
	return Value{kind: MapKind, m: m}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == NullKind }
func (v Value) Bool() bool { return v.b }
func (v Value) Float() float64 { return v.n }
func (v Value) List() []Value { return v.list }
func (v Value) Map() *Map { return v.m }
func (v Value) Lambda() Lambda { return v.fn }
func (v Value) Helper() HelperFunc { return v.h }

// Str returns the text of a String or SafeString value.
func (v Value) Str() string { return v.s }

// Callable reports whether the value is a Lambda or a Helper.
func (v Value) Callable() bool { return v.kind == LambdaKind || v.kind == HelperKind }

// Len is the element count of a list or map, 0 otherwise.
func (v Value) Len() int {
	switch v.kind {
	case ListKind:
		return len(v.list)
	case MapKind:
		return v.m.Len()
	}
	return 0
}

// collection reports whether v is a list or an unboxed map.
func (v Value) collection() bool {
	return v.kind == ListKind || (v.kind == MapKind && v.m.boxed == nil)
}

// object reports whether v is a keyed map rather than an ordered list.
func (v Value) object() bool {
	return v.kind == MapKind && v.m.boxed == nil && v.m.Len() > 0
}

// String renders v the way a mustache outputs it.
func (v Value) String() string {
	switch v.kind {
	case BoolKind:
		if v.b {
			return "true"
		}
		return "false"
	case NumberKind:
		return formatNumber(v.n)
	case StringKind, SafeStringKind:
		return v.s
	case ListKind:
		var sb strings.Builder
		for i, e := range v.list {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(e.String())
		}
		return sb.String()
	case MapKind:
		if v.m.boxed != nil {
			return v.m.boxed.String()
		}
		if v.m.Len() == 0 {
			return ""
		}
		return "[object Object]"
	}
	return ""
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Interface converts v back to plain Go values.
func (v Value) Interface() any {
	switch v.kind {
	case BoolKind:
		return v.b
	case NumberKind:
		return v.n
	case StringKind:
		return v.s
	case SafeStringKind:
		return SafeString(v.s)
	case ListKind:
		out := make([]any, len(v.list))
		for i, e := range v.list {
			out[i] = e.Interface()
		}
		return out
	case MapKind:
		if v.m.boxed != nil {
			return v.m.boxed.Interface()
		}
		out := make(map[string]any, v.m.Len())
		for _, k := range v.m.keys {
			out[k] = v.m.values[k].Interface()
		}
		return out
	case LambdaKind:
		return v.fn
	case HelperKind:
		return v.h
	}
	return nil
}

// truthy is the #if test. Zero counts as true only with includeZero.
func (v Value) truthy(includeZero bool) bool {
	switch v.kind {
	case NullKind:
		return false
	case BoolKind:
		return v.b
	case NumberKind:
		return includeZero || v.n != 0
	case StringKind, SafeStringKind:
		return v.s != ""
	case ListKind:
		return len(v.list) > 0
	case MapKind:
		if v.m.boxed != nil {
			return v.m.boxed.String() != ""
		}
		return v.m.Len() > 0
	}
	return true
}

// Truthy reports whether v passes {{#if v}}.
func (v Value) Truthy() bool { return v.truthy(false) }

// empty is the {{^x}} test: null, false or an empty collection.
func (v Value) empty() bool {
	switch v.kind {
	case NullKind:
		return true
	case BoolKind:
		return !v.b
	case ListKind:
		return len(v.list) == 0
	case MapKind:
		return v.m.boxed == nil && v.m.Len() == 0
	}
	return false
}

// same reports whether a and b are the same context. Scalars compare by
// value, collections by identity.
func same(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case NullKind:
		return true
	case BoolKind:
		return a.b == b.b
	case NumberKind:
		return a.n == b.n
	case StringKind, SafeStringKind:
		return a.s == b.s
	case ListKind:
		if len(a.list) != len(b.list) {
			return false
		}
		return len(a.list) == 0 || &a.list[0] == &b.list[0]
	case MapKind:
		return a.m == b.m
	}
	return false
}

// ----------------------------- Ordered map ----------------------------------

// Map is an insertion-ordered string-keyed map. Sparse maps were built from
// integer keys; iterating them reports the key as @index.
type Map struct {
	keys   []string
	values map[string]Value
	sparse bool
	boxed  *Value
}

func NewMap() *Map {
	return &Map{values: make(map[string]Value)}
}

// MapOf builds a Map from alternating key, value arguments.
func MapOf(kv ...any) *Map {
	m := NewMap()
	for i := 0; i+1 < len(kv); i += 2 {
		k, _ := kv[i].(string)
		m.Set(k, kv[i+1])
	}
	return m
}

// Set stores v under key, keeping the original position of existing keys.
func (m *Map) Set(key string, v any) *Map {
	m.set(key, ValueOf(v))
	return m
}

func (m *Map) set(key string, v Value) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

func (m *Map) Get(key string) (Value, bool) {
	if m == nil {
		return Null, false
	}
	v, ok := m.values[key]
	return v, ok
}

// Delete removes key.
func (m *Map) Delete(key string) {
	if _, ok := m.values[key]; !ok {
		return
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i:i], m.keys[i+1:]...)
			break
		}
	}
}

func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

// Range calls fn for each entry in order until fn returns false.
func (m *Map) Range(fn func(key string, v Value) bool) {
	if m == nil {
		return
	}
	for _, k := range m.keys {
		if !fn(k, m.values[k]) {
			return
		}
	}
}

func (m *Map) clone() *Map {
	if m == nil {
		return NewMap()
	}
	c := &Map{
		keys:   make([]string, len(m.keys), len(m.keys)+4),
		values: make(map[string]Value, len(m.values)+4),
		sparse: m.sparse,
		boxed:  m.boxed,
	}
	copy(c.keys, m.keys)
	for k, v := range m.values {
		c.values[k] = v
	}
	return c
}
