// internal/rules/evaluate.go
package rules

import (
	"github.com/reachpoint/reachpoint/internal/types"
)

/*
 * Rule evaluation.
 *
 * Evaluates a rule tree against a single record with recursive AND/OR
 * semantics and comparison leaves. Evaluation is pure and never signals an
 * error: malformed leaves degrade to false so one bad rule cannot abort a
 * population-wide scan.
 *
 * Leaf evaluation flow:
 *   1. Resolve the field. Absent field -> false, unconditionally - a
 *      missing field never satisfies any comparison, including "!=".
 *   2. Coerce by field identity (totalSpend/visits numeric, lastActive
 *      instant); an uncoercible rule or record value -> false.
 *   3. Apply the comparator with the ordering of the value's semantic
 *      type. Unknown operators -> false.
 *
 * Empty composites follow the identity-element convention: an AND of no
 * conditions is true (all-of-none), an OR of no conditions is false
 * (any-of-none).
 */

// evaluate walks the tree. Pathological generic-field values (maps, slices
// under "="/"!=") can panic inside looseEqual; Engine recovers per record.
func evaluate(rule *types.RuleNode, rec types.Record) bool {
	if rule == nil {
		return false
	}

	switch rule.Operator {
	case types.OpAnd:
		for _, cond := range rule.Conditions {
			if !evaluate(cond, rec) {
				return false
			}
		}
		return true
	case types.OpOr:
		for _, cond := range rule.Conditions {
			if evaluate(cond, rec) {
				return true
			}
		}
		return false
	default:
		return evaluateLeaf(rule, rec)
	}
}

func evaluateLeaf(rule *types.RuleNode, rec types.Record) bool {
	value, ok := rec[rule.Field]
	if !ok {
		return false
	}

	switch classifyField(rule.Field) {
	case kindNumeric:
		target, ok := coerceNumeric(rule.Value)
		if !ok {
			return false
		}
		v, ok := coerceNumeric(value)
		if !ok {
			return false
		}
		return compareNumeric(rule.Operator, v, target)

	case kindInstant:
		target, ok := coerceInstant(rule.Value)
		if !ok {
			return false
		}
		v, ok := coerceInstant(value)
		if !ok {
			return false
		}
		return compareInstant(rule.Operator, v, target)

	default:
		return compareGeneric(rule.Operator, value, rule.Value)
	}
}
