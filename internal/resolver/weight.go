package resolver

import "reflect"

const (
	// maxPenalty disqualifies a candidate.
	maxPenalty = int(^uint(0) >> 1)

	// rawBias is subtracted from the raw-value distance in lenient mode so
	// a raw exact match beats any converted match of equal nominal
	// distance. The magnitude is not load-bearing beyond that ordering.
	rawBias = 1024
)

// typeDistance scores how well the values fit the parameter types; lower is
// better. Any unmatchable position yields maxPenalty.
func typeDistance(paramTypes []reflect.Type, values []any) int {
	total := 0
	for i, t := range paramTypes {
		d := argDistance(t, values[i])
		if d == maxPenalty {
			return maxPenalty
		}
		total += d
	}
	return total
}

// argDistance scores one value against one parameter type.
func argDistance(t reflect.Type, value any) int {
	if value == nil {
		if nilable(t) {
			return 1
		}
		return maxPenalty
	}

	vt := reflect.TypeOf(value)
	switch {
	case vt == t:
		return 0
	case vt.AssignableTo(t):
		// Interface satisfaction or named-type assignability.
		return 2
	case vt.ConvertibleTo(t):
		return 4
	default:
		return maxPenalty
	}
}

// assignableAll reports whether every value is directly assignable to its
// parameter type, the strict-mode qualification requirement.
func assignableAll(paramTypes []reflect.Type, values []any) bool {
	for i, t := range paramTypes {
		v := values[i]
		if v == nil {
			if !nilable(t) {
				return false
			}
			continue
		}
		if !reflect.TypeOf(v).AssignableTo(t) {
			return false
		}
	}
	return true
}

func nilable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map,
		reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return true
	}
	return false
}

// emptyCollection builds the degraded empty value for collection-shaped
// parameter types used by the single-candidate fallback.
func emptyCollection(t reflect.Type) (any, bool) {
	switch t.Kind() {
	case reflect.Slice:
		return reflect.MakeSlice(t, 0, 0).Interface(), true
	case reflect.Map:
		return reflect.MakeMap(t).Interface(), true
	case reflect.Array:
		return reflect.New(t).Elem().Interface(), true
	}
	return nil, false
}
