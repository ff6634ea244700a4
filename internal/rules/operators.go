// internal/rules/operators.go
package rules

import (
	"time"

	"github.com/reachpoint/reachpoint/internal/types"
)

/*
 * Operator comparison logic.
 *
 * Implements the six leaf comparators with type-aware comparison rules.
 * Values reach these functions already coerced per field identity
 * (coercion.go); generic fields arrive uncoerced and use the loose
 * policy below.
 *
 * Loose equality for generic fields: if either side is a number and the
 * other parses as a number, compare numerically (so "5" equals 5);
 * otherwise Go equality on identical basic types. Ordering on generic
 * fields is numeric when both sides promote, lexical when both are
 * strings, and false for anything else.
 *
 * Why function-based: six comparators via switch statement is cleaner
 * than six interface implementations with minimal behavior variation.
 */

// compareOrdered applies an ordering comparator to a three-way comparison
// result. Unknown operators return false rather than raising.
func compareOrdered(op string, cmp int) bool {
	switch op {
	case types.OpGt:
		return cmp > 0
	case types.OpLt:
		return cmp < 0
	case types.OpEq:
		return cmp == 0
	case types.OpNeq:
		return cmp != 0
	case types.OpGte:
		return cmp >= 0
	case types.OpLte:
		return cmp <= 0
	default:
		return false
	}
}

// compareNumeric applies op to two already-coerced numbers.
func compareNumeric(op string, value, target float64) bool {
	switch {
	case value < target:
		return compareOrdered(op, -1)
	case value > target:
		return compareOrdered(op, 1)
	default:
		return compareOrdered(op, 0)
	}
}

// compareInstant applies op chronologically. Equality uses time.Equal so
// differing zone representations of the same instant compare equal.
func compareInstant(op string, value, target time.Time) bool {
	switch {
	case value.Before(target):
		return compareOrdered(op, -1)
	case value.After(target):
		return compareOrdered(op, 1)
	default:
		return compareOrdered(op, 0)
	}
}

// compareGeneric applies op to a field with no dedicated semantics.
// Equality operators use looseEqual; ordering operators require both sides
// to promote to numbers or both to be strings.
func compareGeneric(op string, value, target any) bool {
	switch op {
	case types.OpEq:
		return looseEqual(value, target)
	case types.OpNeq:
		return !looseEqual(value, target)
	}

	if vn, tn, ok := asNumbers(value, target); ok {
		return compareNumeric(op, vn, tn)
	}
	vs, ok1 := value.(string)
	ts, ok2 := target.(string)
	if ok1 && ok2 {
		switch {
		case vs < ts:
			return compareOrdered(op, -1)
		case vs > ts:
			return compareOrdered(op, 1)
		default:
			return compareOrdered(op, 0)
		}
	}
	return false
}

// looseEqual implements the documented cross-type equality policy:
// numeric promotion first, then Go equality. Go equality on uncomparable
// values (maps, slices) panics; the engine recovers per record.
func looseEqual(a, b any) bool {
	if na, nb, ok := asNumbers(a, b); ok {
		return na == nb
	}
	return a == b
}

// asNumbers attempts to convert both values to float64 for numeric
// comparison. Promotion succeeds only when at least one side is already a
// number; two numeric strings stay strings.
func asNumbers(a, b any) (float64, float64, bool) {
	_, aIsNum := toFloat64(a)
	_, bIsNum := toFloat64(b)
	if !aIsNum && !bIsNum {
		return 0, 0, false
	}
	na, oka := coerceNumeric(a)
	nb, okb := coerceNumeric(b)
	return na, nb, oka && okb
}

// toFloat64 converts value to float64 if it is a numeric type.
// Handles float64 from JSON unmarshaling plus int/int64 from in-process values.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
