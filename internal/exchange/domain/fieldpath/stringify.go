package fieldpath

import (
	"encoding/json"
	"reflect"
	"strconv"
	"time"
)

const dateLayout = "2006-01-02"

// Stringify renders a resolved leaf.
//
// Dates and midnight-UTC timestamps become YYYY-MM-DD, other timestamps RFC 3339,
// scalars their canonical strconv form. Composite values (structs, maps, slices)
// fall back to their encoding/json form. That fallback is deterministic in Go
// (map keys are sorted) but is not a stable contract across representations.
func Stringify(node any) (string, bool) {
	v, ok := deref(reflect.ValueOf(node))
	if !ok {
		return "", false
	}
	if v.Type().Implements(isoFormatter) {
		return v.Interface().(interface{ ISOFormat() string }).ISOFormat(), true
	}
	if v.Type() == timeType {
		t := v.Interface().(time.Time)
		if u := t.UTC(); u.Hour() == 0 && u.Minute() == 0 && u.Second() == 0 && u.Nanosecond() == 0 {
			return u.Format(dateLayout), true
		}
		return t.Format(time.RFC3339), true
	}
	switch v.Kind() {
	case reflect.String:
		return v.String(), true
	case reflect.Bool:
		return strconv.FormatBool(v.Bool()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(v.Uint(), 10), true
	case reflect.Float32:
		return strconv.FormatFloat(v.Float(), 'f', -1, 32), true
	case reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'f', -1, 64), true
	case reflect.Struct, reflect.Map, reflect.Slice, reflect.Array:
		raw, err := json.Marshal(v.Interface())
		if err != nil {
			return "", false
		}
		return string(raw), true
	}
	return "", false
}
