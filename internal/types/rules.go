// internal/types/rules.go
package types

import (
	"encoding/json"
	"fmt"
)

/*
 * Rule tree for segment membership.
 *
 * A rule tree is a tagged union over two node shapes, authoritative for
 * interop with API clients:
 *
 *   Composite: { "operator": "AND" | "OR", "conditions": [RuleNode, ...] }
 *   Leaf:      { "field": string, "operator": ">"|"<"|"="|"!="|">="|"<=", "value": number|string }
 *
 * The operator discriminates: AND/OR nodes carry conditions, everything
 * else is a comparison leaf. Structural validation happens at the API
 * boundary via Validate; evaluation itself never errors (internal/rules).
 */

// Composite operators.
const (
	OpAnd = "AND"
	OpOr  = "OR"
)

// Comparison operators for leaf nodes.
const (
	OpGt  = ">"
	OpLt  = "<"
	OpEq  = "="
	OpNeq = "!="
	OpGte = ">="
	OpLte = "<="
)

// RuleNode is one node of a rule tree: either a composite (AND/OR over
// conditions) or a comparison leaf (field operator value).
type RuleNode struct {
	Operator   string
	Conditions []*RuleNode
	Field      string
	Value      any
}

// IsComposite reports whether the node is an AND/OR node.
func (n *RuleNode) IsComposite() bool {
	return n.Operator == OpAnd || n.Operator == OpOr
}

// ValidComparisonOp reports whether op is a known leaf comparator.
func ValidComparisonOp(op string) bool {
	switch op {
	case OpGt, OpLt, OpEq, OpNeq, OpGte, OpLte:
		return true
	}
	return false
}

// ruleNodeJSON is the wire shape for both node kinds. Field presence
// disambiguates after the operator check.
type ruleNodeJSON struct {
	Operator   string          `json:"operator"`
	Conditions []*RuleNode     `json:"conditions,omitempty"`
	Field      string          `json:"field,omitempty"`
	Value      json.RawMessage `json:"value,omitempty"`
}

// MarshalJSON emits the tagged-union wire shape: composites carry
// operator+conditions, leaves carry field+operator+value.
func (n *RuleNode) MarshalJSON() ([]byte, error) {
	out := ruleNodeJSON{Operator: n.Operator}
	if n.IsComposite() {
		// Conditions serialize as [] rather than null for empty composites
		conds := n.Conditions
		if conds == nil {
			conds = []*RuleNode{}
		}
		return json.Marshal(struct {
			Operator   string      `json:"operator"`
			Conditions []*RuleNode `json:"conditions"`
		}{n.Operator, conds})
	}
	out.Field = n.Field
	raw, err := json.Marshal(n.Value)
	if err != nil {
		return nil, err
	}
	out.Value = raw
	return json.Marshal(out)
}

// UnmarshalJSON decodes either node shape, classifying by operator.
func (n *RuleNode) UnmarshalJSON(data []byte) error {
	var wire ruleNodeJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	n.Operator = wire.Operator
	n.Conditions = wire.Conditions
	n.Field = wire.Field
	n.Value = nil
	if len(wire.Value) > 0 {
		var v any
		if err := json.Unmarshal(wire.Value, &v); err != nil {
			return err
		}
		n.Value = v
	}
	return nil
}

// Validate checks the tree's structure: composites may only carry known
// comparators or nested composites beneath them, leaves need a field and a
// recognized operator. It does not type-check values; uncoercible values
// degrade to non-matches at evaluation time.
func (n *RuleNode) Validate() error {
	if n == nil {
		return fmt.Errorf("%w: nil node", ErrInvalidRule)
	}
	if n.IsComposite() {
		for i, cond := range n.Conditions {
			if cond == nil {
				return fmt.Errorf("%w: %s condition %d is null", ErrInvalidRule, n.Operator, i)
			}
			if err := cond.Validate(); err != nil {
				return err
			}
		}
		return nil
	}
	if n.Field == "" {
		return fmt.Errorf("%w: leaf missing field", ErrInvalidRule)
	}
	if !ValidComparisonOp(n.Operator) {
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidRule, n.Operator)
	}
	return nil
}
