package handlebars

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cast"
)

// ----------------------------- Go data conversion ---------------------------

// ValueOf converts Go data into a Value. Maps with string keys are ordered by
// key, integer-keyed maps become sparse maps, structs become maps of their
// exported fields (honoring json tags) and types implementing fmt.Stringer
// render as their String form.
func ValueOf(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null
	case Value:
		return x
	case *Value:
		if x == nil {
			return Null
		}
		return *x
	case *Map:
		return MapValue(x)
	case SafeString:
		return SafeValue(string(x))
	case string:
		return StringValue(x)
	case []byte:
		return StringValue(string(x))
	case bool:
		return BoolValue(x)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return NumberValue(cast.ToFloat64(x))
	case Lambda:
		return LambdaValue(x)
	case func(args ...Value) (any, error):
		return LambdaValue(x)
	case func() any:
		return LambdaValue(func(...Value) (any, error) { return x(), nil })
	case HelperFunc:
		return HelperValue(x)
	case func(args []Value, opts *HelperOptions) (any, error):
		return HelperValue(x)
	case []Value:
		return ListValue(x)
	case []any:
		out := make([]Value, len(x))
		for i, e := range x {
			out[i] = ValueOf(e)
		}
		return ListValue(out)
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		m := &Map{keys: keys, values: make(map[string]Value, len(x))}
		for _, k := range keys {
			m.values[k] = ValueOf(x[k])
		}
		return MapValue(m)
	case fmt.Stringer:
		return StringValue(x.String())
	}
	return reflectValue(reflect.ValueOf(v))
}

func reflectValue(rv reflect.Value) Value {
	switch rv.Kind() {
	case reflect.Invalid:
		return Null
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null
		}
		return ValueOf(rv.Elem().Interface())
	case reflect.Bool:
		return BoolValue(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return NumberValue(float64(rv.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return NumberValue(float64(rv.Uint()))
	case reflect.Float32, reflect.Float64:
		return NumberValue(rv.Float())
	case reflect.String:
		return StringValue(rv.String())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return Null
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return StringValue(string(rv.Bytes()))
		}
		out := make([]Value, rv.Len())
		for i := range out {
			out[i] = ValueOf(rv.Index(i).Interface())
		}
		return ListValue(out)
	case reflect.Map:
		if rv.IsNil() {
			return Null
		}
		return reflectMap(rv)
	case reflect.Struct:
		return MapValue(structMap(rv))
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return Null
	}
	return StringValue(fmt.Sprint(rv.Interface()))
}

func reflectMap(rv reflect.Value) Value {
	keys := rv.MapKeys()
	switch rv.Type().Key().Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		ints := make([]int64, len(keys))
		for i, k := range keys {
			ints[i] = cast.ToInt64(k.Interface())
		}
		sort.Slice(keys, func(i, j int) bool { return cast.ToInt64(keys[i].Interface()) < cast.ToInt64(keys[j].Interface()) })
		sort.Slice(ints, func(i, j int) bool { return ints[i] < ints[j] })
		sequential := true
		for i, n := range ints {
			if n != int64(i) {
				sequential = false
				break
			}
		}
		if sequential {
			out := make([]Value, len(keys))
			for i, k := range keys {
				out[i] = ValueOf(rv.MapIndex(k).Interface())
			}
			return ListValue(out)
		}
		m := NewMap()
		m.sparse = true
		for i, k := range keys {
			m.set(strconv.FormatInt(ints[i], 10), ValueOf(rv.MapIndex(k).Interface()))
		}
		return MapValue(m)
	}
	names := make([]string, len(keys))
	byName := make(map[string]reflect.Value, len(keys))
	for i, k := range keys {
		names[i] = fmt.Sprint(k.Interface())
		byName[names[i]] = k
	}
	sort.Strings(names)
	m := &Map{keys: names, values: make(map[string]Value, len(keys))}
	for _, n := range names {
		m.values[n] = ValueOf(rv.MapIndex(byName[n]).Interface())
	}
	return MapValue(m)
}

// ----------------------------- Struct field cache ---------------------------

type fieldCache struct {
	mu    sync.RWMutex
	cache map[reflect.Type][]fieldInfo
}

type fieldInfo struct {
	name  string
	index []int
}

var structFields = &fieldCache{cache: make(map[reflect.Type][]fieldInfo)}

func (fc *fieldCache) fields(t reflect.Type) []fieldInfo {
	fc.mu.RLock()
	fs, ok := fc.cache[t]
	fc.mu.RUnlock()
	if ok {
		return fs
	}
	fs = collectFields(t, nil)
	fc.mu.Lock()
	fc.cache[t] = fs
	fc.mu.Unlock()
	return fs
}

func collectFields(t reflect.Type, prefix []int) []fieldInfo {
	var fs []fieldInfo
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		index := append(append([]int(nil), prefix...), i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct && f.Tag.Get("json") == "" {
			fs = append(fs, collectFields(f.Type, index)...)
			continue
		}
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		fs = append(fs, fieldInfo{name: name, index: index})
	}
	return fs
}

func structMap(rv reflect.Value) *Map {
	fs := structFields.fields(rv.Type())
	m := &Map{keys: make([]string, 0, len(fs)), values: make(map[string]Value, len(fs))}
	for _, f := range fs {
		fv := rv.FieldByIndex(f.index)
		m.set(f.name, ValueOf(fv.Interface()))
	}
	return m
}

// ----------------------------- Lookups --------------------------------------

// lookupKey reads key from a map, or a numeric index from a list.
func lookupKey(v Value, key string) (Value, bool) {
	switch v.kind {
	case MapKind:
		return v.m.Get(key)
	case ListKind:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(v.list) {
			return Null, false
		}
		return v.list[i], true
	}
	return Null, false
}

// lookupPath walks parts from base. A missing or null step ends the walk.
func lookupPath(base Value, parts []string) Value {
	cur := base
	for _, p := range parts {
		next, ok := lookupKey(cur, p)
		if !ok || next.IsNull() {
			return Null
		}
		cur = next
	}
	return cur
}
