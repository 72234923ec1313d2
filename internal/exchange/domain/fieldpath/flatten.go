package fieldpath

import (
	"reflect"
	"slices"
	"strconv"
	"strings"
)

// Flatten returns every scalar leaf of root keyed by the path that resolves it,
// so Resolve(root, p) == Flatten(root)[p] for every returned p. Map keys that
// cannot be spelled as a path segment are skipped.
func Flatten(root any) map[string]string {
	out := make(map[string]string)
	flatten(reflect.ValueOf(root), "", out)
	return out
}

func flatten(v reflect.Value, prefix string, out map[string]string) {
	v, ok := deref(v)
	if !ok {
		return
	}
	switch {
	case v.Kind() == reflect.Struct && !isLeaf(v):
		for _, f := range fieldsOf(v) {
			flatten(f.value, join(prefix, f.name), out)
		}
	case v.Kind() == reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return
		}
		keys := make([]string, 0, v.Len())
		for _, k := range v.MapKeys() {
			keys = append(keys, k.String())
		}
		slices.Sort(keys)
		for _, k := range keys {
			if k == "" || strings.ContainsAny(k, ".[]") {
				continue
			}
			flatten(v.MapIndex(reflect.ValueOf(k).Convert(v.Type().Key())), join(prefix, k), out)
		}
	case (v.Kind() == reflect.Slice || v.Kind() == reflect.Array) && v.Type().Elem().Kind() != reflect.Uint8:
		for i := 0; i < v.Len(); i++ {
			flatten(v.Index(i), prefix+"["+strconv.Itoa(i)+"]", out)
		}
	default:
		if prefix == "" {
			return
		}
		if s, ok := Stringify(v.Interface()); ok {
			out[prefix] = s
		}
	}
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
