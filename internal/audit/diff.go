package audit

import (
	"fmt"
	"reflect"
	"time"

	"github.com/shopspring/decimal"
)

// Diff compares two snapshots of the same struct type and returns the changed
// fields. Values are normalised so the payload stays stable and comparable
// across time: times become RFC3339 strings, decimals become numeric strings,
// pointers are dereferenced, and anything else falls back to fmt.Sprint.
func Diff(old, new any) map[string]Change {
	changes := make(map[string]Change)
	oldVal := reflect.Indirect(reflect.ValueOf(old))
	newVal := reflect.Indirect(reflect.ValueOf(new))
	if !oldVal.IsValid() || !newVal.IsValid() || oldVal.Type() != newVal.Type() || oldVal.Kind() != reflect.Struct {
		return changes
	}
	t := oldVal.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		before := Normalise(oldVal.Field(i).Interface())
		after := Normalise(newVal.Field(i).Interface())
		if before != after {
			changes[field.Name] = Change{Old: before, New: after}
		}
	}
	return changes
}

// Normalise reduces a value to a JSON-safe comparable primitive.
func Normalise(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case decimal.Decimal:
		return val.String()
	case *decimal.Decimal:
		if val == nil {
			return nil
		}
		return val.String()
	case time.Time:
		if val.IsZero() {
			return nil
		}
		return val.UTC().Format(time.RFC3339)
	case *time.Time:
		if val == nil {
			return nil
		}
		return Normalise(*val)
	case string, bool, int, int32, int64, float64:
		return val
	case *int64:
		if val == nil {
			return nil
		}
		return *val
	case fmt.Stringer:
		return val.String()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return nil
		}
		return Normalise(rv.Elem().Interface())
	case reflect.Slice, reflect.Map, reflect.Struct:
		return fmt.Sprint(v)
	case reflect.String:
		return rv.String()
	}
	return fmt.Sprint(v)
}
