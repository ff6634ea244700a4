// internal/rules/coercion_test.go
package rules

import (
	"testing"
	"time"
)

func TestCoerceNumeric(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  float64
		ok    bool
	}{
		{name: "float64 passthrough", value: float64(42.5), want: 42.5, ok: true},
		{name: "int converts", value: 7, want: 7, ok: true},
		{name: "int64 converts", value: int64(9), want: 9, ok: true},
		{name: "numeric string", value: "123.25", want: 123.25, ok: true},
		{name: "padded numeric string", value: "  10 ", want: 10, ok: true},
		{name: "empty string rejected", value: "", ok: false},
		{name: "whitespace string rejected", value: "   ", ok: false},
		{name: "non-numeric string rejected", value: "abc", ok: false},
		{name: "bool rejected", value: true, ok: false},
		{name: "nil rejected", value: nil, ok: false},
		{name: "slice rejected", value: []any{1}, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := coerceNumeric(tt.value)
			if ok != tt.ok {
				t.Fatalf("coerceNumeric(%v) ok = %v, want %v", tt.value, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("coerceNumeric(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestCoerceInstant(t *testing.T) {
	ref := time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value any
		want  time.Time
		ok    bool
	}{
		{name: "time.Time passthrough", value: ref, want: ref, ok: true},
		{name: "RFC3339 string", value: "2025-01-15T10:30:00Z", want: ref, ok: true},
		{name: "RFC3339 with offset normalizes to UTC", value: "2025-01-15T12:30:00+02:00", want: ref, ok: true},
		{name: "no-zone layout", value: "2025-01-15T10:30:00", want: ref, ok: true},
		{name: "date-only layout", value: "2025-01-15", want: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), ok: true},
		{name: "epoch seconds float", value: float64(ref.Unix()), want: ref, ok: true},
		{name: "epoch seconds int", value: int(ref.Unix()), want: ref, ok: true},
		{name: "empty string rejected", value: "", ok: false},
		{name: "garbage string rejected", value: "not-a-date", ok: false},
		{name: "bool rejected", value: false, ok: false},
		{name: "nil rejected", value: nil, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := coerceInstant(tt.value)
			if ok != tt.ok {
				t.Fatalf("coerceInstant(%v) ok = %v, want %v", tt.value, ok, tt.ok)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("coerceInstant(%v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestClassifyField(t *testing.T) {
	if classifyField("totalSpend") != kindNumeric {
		t.Error("totalSpend should classify numeric")
	}
	if classifyField("visits") != kindNumeric {
		t.Error("visits should classify numeric")
	}
	if classifyField("lastActive") != kindInstant {
		t.Error("lastActive should classify instant")
	}
	if classifyField("email") != kindGeneric {
		t.Error("email should classify generic")
	}
}
