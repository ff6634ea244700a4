// internal/rules/engine.go
package rules

import (
	"github.com/rs/zerolog"

	"github.com/reachpoint/reachpoint/internal/types"
)

/*
 * Engine: the rule-evaluation surface consumed by the controller layer.
 *
 * Two operations only:
 *
 *   Evaluate(rule, record)          -> bool
 *   MatchingSubset(rule, records)   -> ordered subsequence of records
 *
 * Audience size is always len(MatchingSubset(...)) - there is no separate
 * counting path, so size and membership cannot diverge.
 *
 * Failure semantics: a record whose evaluation panics (corrupt data hitting
 * an uncomparable equality) counts as a non-match and is logged; the scan
 * continues. The engine never surfaces per-record errors to its caller.
 */

// Engine evaluates rule trees against customer records.
type Engine struct {
	log zerolog.Logger
}

// NewEngine creates an engine logging scan failures to log.
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{log: log.With().Str("component", "rules").Logger()}
}

// Evaluate reports whether rec matches rule. Never panics; corrupt data
// degrades to a non-match.
func (e *Engine) Evaluate(rule *types.RuleNode, rec types.Record) bool {
	return e.safeEvaluate(rule, rec)
}

// MatchingSubset returns the records matching rule, preserving population
// order. Per-record failures are logged and treated as non-matches.
func (e *Engine) MatchingSubset(rule *types.RuleNode, population []types.Record) []types.Record {
	if rule == nil {
		return nil
	}
	matched := make([]types.Record, 0, len(population))
	for _, rec := range population {
		if e.safeEvaluate(rule, rec) {
			matched = append(matched, rec)
		}
	}
	return matched
}

func (e *Engine) safeEvaluate(rule *types.RuleNode, rec types.Record) (result bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Msg("rule evaluation failed for record")
			result = false
		}
	}()
	return evaluate(rule, rec)
}
