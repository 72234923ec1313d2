package fieldpath

import (
	"reflect"
	"strings"
	"time"
)

// Reflect implements Accessor for Go values: structs (matched by json tag, then
// field name), string-keyed maps, slices, arrays, pointers and interfaces.
//
// A struct field tagged omitempty that holds its zero value is reported as
// absent, mirroring what the JSON encoding of the record would contain.
type Reflect struct{}

var (
	timeType     = reflect.TypeOf(time.Time{})
	isoFormatter = reflect.TypeOf((*interface{ ISOFormat() string })(nil)).Elem()
)

// Child implements Accessor.
func (Reflect) Child(node any, name string) (any, bool) {
	v, ok := deref(reflect.ValueOf(node))
	if !ok {
		return nil, false
	}
	switch v.Kind() {
	case reflect.Struct:
		if isLeaf(v) {
			return nil, false
		}
		f, ok := structField(v, name)
		if !ok {
			return nil, false
		}
		return f.Interface(), true
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		mv := v.MapIndex(reflect.ValueOf(name).Convert(v.Type().Key()))
		if !mv.IsValid() {
			return nil, false
		}
		return mv.Interface(), true
	}
	return nil, false
}

// Index implements Accessor.
func (Reflect) Index(node any, i int) (any, bool) {
	v, ok := deref(reflect.ValueOf(node))
	if !ok {
		return nil, false
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if i < 0 || i >= v.Len() {
			return nil, false
		}
		return v.Index(i).Interface(), true
	}
	return nil, false
}

func deref(v reflect.Value) (reflect.Value, bool) {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}
	return v, v.IsValid()
}

func isLeaf(v reflect.Value) bool {
	t := v.Type()
	return t == timeType || t.Implements(isoFormatter)
}

// structField finds the exported field whose JSON name (or Go name) is name,
// descending into untagged embedded structs the way encoding/json promotes them.
func structField(v reflect.Value, name string) (reflect.Value, bool) {
	for _, f := range fieldsOf(v) {
		if f.name == name {
			return f.value, true
		}
	}
	return reflect.Value{}, false
}

type namedField struct {
	name  string
	value reflect.Value
}

// fieldsOf lists the fields of a struct value that would appear in its JSON form.
func fieldsOf(v reflect.Value) []namedField {
	t := v.Type()
	var out []namedField
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag := sf.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		fv := v.Field(i)
		if sf.Anonymous && name == "" {
			inner, ok := deref(fv)
			if ok && inner.Kind() == reflect.Struct && !isLeaf(inner) {
				out = append(out, fieldsOf(inner)...)
			}
			continue
		}
		if name == "" {
			name = sf.Name
		}
		if strings.Contains(opts, "omitempty") && fv.IsZero() {
			continue
		}
		out = append(out, namedField{name: name, value: fv})
	}
	return out
}
