package graph

import (
	"reflect"
	"sort"
)

// Reference points at another node. An empty Attribute is the node's primary
// reference (its physical ID for resources, its value for parameters and
// external nodes).
type Reference struct {
	Target    ID
	Attribute string
	Kind      EdgeKind
}

// Join concatenates literal strings and references with a delimiter.
type Join struct {
	Delimiter string
	Parts     []any
}

// Ref builds a primary reference to id.
func Ref(id ID, kind EdgeKind) Reference {
	return Reference{Target: id, Kind: kind}
}

// Attr builds an attribute reference to id.
func Attr(id ID, attribute string, kind EdgeKind) Reference {
	return Reference{Target: id, Attribute: attribute, Kind: kind}
}

// Walk calls fn for every Reference reachable from v, including references
// nested inside Join values, maps, slices and pointers.
func Walk(v any, fn func(Reference)) {
	Transform(v, func(r Reference) any {
		fn(r)
		return r
	})
}

// Transform returns a copy of v where every Reference is replaced by fn(ref)
// and every Join by {"Fn::Join": [delimiter, parts]}. Maps become
// map[string]any and slices become []any; other values are returned as is.
// Map entries are visited in key order.
func Transform(v any, fn func(Reference) any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case Reference:
		return fn(val)
	case *Reference:
		if val == nil {
			return nil
		}
		return fn(*val)
	case Join:
		parts := make([]any, 0, len(val.Parts))
		for _, p := range val.Parts {
			parts = append(parts, Transform(p, fn))
		}
		return map[string]any{"Fn::Join": []any{val.Delimiter, parts}}
	case string, bool, int, int32, int64, float64:
		return val
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return Transform(rv.Elem().Interface(), fn)
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = Transform(rv.Index(i).Interface(), fn)
		}
		return out
	case reflect.Map:
		if rv.IsNil() {
			return nil
		}
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
		out := make(map[string]any, len(keys))
		for _, k := range keys {
			out[k.String()] = Transform(rv.MapIndex(k).Interface(), fn)
		}
		return out
	}
	return v
}
