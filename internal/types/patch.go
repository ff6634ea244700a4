package types

// Patch is one pending mutation for a document, keyed by entity id in the
// write coalescer's queue. Exactly one write style applies per use:
//
//   - Doc replaces the whole document (creating it if absent).
//   - Set assigns individual fields; Inc adds deltas to numeric fields.
//
// Doc and Set/Inc may be combined; Doc forms the base, then Set, then Inc.
// Two patches for the same id are never merged in the queue: both apply in
// enqueue order during flush, so overlapping fields resolve last-wins.
type Patch struct {
	Doc map[string]any
	Set map[string]any
	Inc map[string]float64
}

// IsZero reports whether the patch carries no mutation at all.
func (p Patch) IsZero() bool {
	return p.Doc == nil && len(p.Set) == 0 && len(p.Inc) == 0
}

// Apply produces the next document state from current (nil when the
// document does not exist yet, making the write an upsert-create).
// The input map is not mutated.
func (p Patch) Apply(current map[string]any) map[string]any {
	var next map[string]any
	switch {
	case p.Doc != nil:
		next = make(map[string]any, len(p.Doc))
		for k, v := range p.Doc {
			next[k] = v
		}
	case current != nil:
		next = make(map[string]any, len(current)+len(p.Set))
		for k, v := range current {
			next[k] = v
		}
	default:
		next = make(map[string]any, len(p.Set)+len(p.Inc))
	}
	for k, v := range p.Set {
		next[k] = v
	}
	for k, delta := range p.Inc {
		next[k] = numeric(next[k]) + delta
	}
	return next
}

// numeric reads a stored field as float64 for increment application.
// Missing or non-numeric fields increment from zero.
func numeric(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}
