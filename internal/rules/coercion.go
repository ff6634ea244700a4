// internal/rules/coercion.go
package rules

import (
	"strconv"
	"strings"
	"time"

	"github.com/reachpoint/reachpoint/internal/types"
)

/*
 * Type coercion for rule evaluation.
 *
 * Coercion is driven by field identity, not by any type declared on the
 * rule: totalSpend and visits are numeric, lastActive is an instant, and
 * every other field compares by its native stored type. A value that fails
 * coercion makes the leaf evaluate to false rather than raising.
 *
 * Instants arrive in several shapes: time.Time on the rule side when built
 * in-process, RFC3339(/date-only) strings from JSON documents, and epoch
 * seconds as numbers. Both sides normalize to time.Time (UTC) before
 * comparison.
 */

// fieldKind classifies a field's comparison semantics.
type fieldKind int

const (
	kindGeneric fieldKind = iota
	kindNumeric
	kindInstant
)

func classifyField(field string) fieldKind {
	switch field {
	case types.FieldTotalSpend, types.FieldVisits:
		return kindNumeric
	case types.FieldLastActive:
		return kindInstant
	default:
		return kindGeneric
	}
}

// coerceNumeric converts value to float64 for numeric comparison.
// Accepts float64, int, int64, and numeric strings. Whitespace-only strings
// are not valid numbers. Booleans are rejected.
func coerceNumeric(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// instantLayouts are tried in order when parsing instant strings.
// RFC3339Nano subsumes RFC3339; the date-only layout matches rule values
// entered as calendar dates.
var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// coerceInstant normalizes value to a UTC time.Time. Accepts time.Time,
// instant strings, and epoch seconds as a number.
func coerceInstant(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC(), true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range instantLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
		return time.Time{}, false
	case float64:
		return time.Unix(int64(v), 0).UTC(), true
	case int:
		return time.Unix(int64(v), 0).UTC(), true
	case int64:
		return time.Unix(v, 0).UTC(), true
	default:
		return time.Time{}, false
	}
}
