// Package segment implements the customer segmentation engine: a typed
// boolean filter tree, a pure in-memory evaluator, the preset catalog the
// dashboard exposes, and the compiler that turns a preset selection into a
// single filter tree.
package segment

import (
	"encoding/json"
	"fmt"
)

// Operator is a comparison operator on a single filter condition.
type Operator string

const (
	OpEquals      Operator = "="
	OpNotEquals   Operator = "!="
	OpGt          Operator = ">"
	OpLt          Operator = "<"
	OpGte         Operator = ">="
	OpLte         Operator = "<="
	OpIn          Operator = "IN"
	OpBetween     Operator = "BETWEEN"
	OpContains    Operator = "CONTAINS"
	OpNotContains Operator = "NOT_CONTAINS"
)

// LogicOperator combines the children of a FilterGroup.
type LogicOperator string

const (
	LogicAnd LogicOperator = "AND"
	LogicOr  LogicOperator = "OR"
)

// ValueKind discriminates the FilterValue union.
type ValueKind int

const (
	ValueNumber ValueKind = iota
	ValueString
	ValueBool
	ValueRange
	ValueList
)

// FilterValue is a tagged union for condition operands. The dashboard's
// filter form produces loosely typed values; they are validated into this
// union at the API boundary so the evaluator never type-sniffs.
type FilterValue struct {
	Kind   ValueKind
	Number float64
	Str    string
	Bool   bool
	Range  [2]float64 // [min, max], inclusive both ends
	List   []string
}

// Number returns a numeric filter value.
func Number(f float64) FilterValue { return FilterValue{Kind: ValueNumber, Number: f} }

// String returns a string filter value.
func String(s string) FilterValue { return FilterValue{Kind: ValueString, Str: s} }

// Bool returns a boolean filter value.
func Bool(b bool) FilterValue { return FilterValue{Kind: ValueBool, Bool: b} }

// Range returns an inclusive [min, max] filter value for BETWEEN.
func Range(min, max float64) FilterValue {
	return FilterValue{Kind: ValueRange, Range: [2]float64{min, max}}
}

// List returns a list filter value for IN.
func List(items ...string) FilterValue { return FilterValue{Kind: ValueList, List: items} }

// MarshalJSON keeps the original loose wire shape (scalar or array) so the
// SPA's filter payloads stay unchanged.
func (v FilterValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ValueNumber:
		return json.Marshal(v.Number)
	case ValueString:
		return json.Marshal(v.Str)
	case ValueBool:
		return json.Marshal(v.Bool)
	case ValueRange:
		return json.Marshal([2]float64{v.Range[0], v.Range[1]})
	case ValueList:
		return json.Marshal(v.List)
	}
	return nil, fmt.Errorf("unknown value kind %d", v.Kind)
}

// UnmarshalJSON validates the loose wire value into the union. Arrays of two
// numbers become ranges; other arrays become lists; scalars keep their type.
func (v *FilterValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch val := raw.(type) {
	case float64:
		*v = Number(val)
	case string:
		*v = String(val)
	case bool:
		*v = Bool(val)
	case []any:
		nums := make([]float64, 0, len(val))
		strs := make([]string, 0, len(val))
		allNum := true
		for _, item := range val {
			switch it := item.(type) {
			case float64:
				nums = append(nums, it)
				strs = append(strs, fmt.Sprintf("%v", it))
			case string:
				allNum = false
				strs = append(strs, it)
			default:
				return fmt.Errorf("unsupported array element %T in filter value", item)
			}
		}
		if allNum && len(nums) == 2 {
			*v = Range(nums[0], nums[1])
		} else {
			*v = List(strs...)
		}
	default:
		return fmt.Errorf("unsupported filter value type %T", raw)
	}
	return nil
}

// Node is either a FilterCondition or a nested FilterGroup.
type Node interface {
	isNode()
}

// FilterCondition compares one customer field against a value.
type FilterCondition struct {
	Field    string      `json:"field"`
	Operator Operator    `json:"operator"`
	Value    FilterValue `json:"value"`
}

func (FilterCondition) isNode() {}

// FilterGroup combines child nodes with AND/OR. An empty AND group matches
// every record and an empty OR group matches none; the asymmetry is load
// bearing ("no filter selected" compiles to an empty top-level AND).
type FilterGroup struct {
	Operator   LogicOperator `json:"operator"`
	Conditions []Node        `json:"conditions"`
}

func (FilterGroup) isNode() {}

// Validate checks operator/value pairings on the whole tree.
func (g *FilterGroup) Validate() error {
	if g.Operator != LogicAnd && g.Operator != LogicOr {
		return fmt.Errorf("unknown group operator %q", g.Operator)
	}
	for _, n := range g.Conditions {
		switch c := n.(type) {
		case FilterCondition:
			if err := c.Validate(); err != nil {
				return err
			}
		case *FilterGroup:
			if err := c.Validate(); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown node type %T", n)
		}
	}
	return nil
}

// Validate checks the operator/value pairing for a single condition.
func (c FilterCondition) Validate() error {
	switch c.Operator {
	case OpBetween:
		if c.Value.Kind != ValueRange {
			return fmt.Errorf("field %s: BETWEEN requires a [min, max] pair", c.Field)
		}
		if c.Value.Range[0] > c.Value.Range[1] {
			return fmt.Errorf("field %s: BETWEEN range is not ordered", c.Field)
		}
	case OpIn:
		// A two-element all-numeric array decodes as a range; for IN it is
		// just a list of two numbers.
		if c.Value.Kind != ValueList && c.Value.Kind != ValueRange {
			return fmt.Errorf("field %s: IN requires an array value", c.Field)
		}
	case OpContains, OpNotContains:
		if c.Value.Kind != ValueString {
			return fmt.Errorf("field %s: %s requires a scalar value", c.Field, c.Operator)
		}
	case OpEquals, OpNotEquals, OpGt, OpLt, OpGte, OpLte:
		// any scalar kind is fine
	default:
		return fmt.Errorf("field %s: unknown operator %q", c.Field, c.Operator)
	}
	return nil
}

// groupWire mirrors FilterGroup for (un)marshaling the recursive tree.
type groupWire struct {
	Operator   LogicOperator     `json:"operator"`
	Conditions []json.RawMessage `json:"conditions"`
}

// MarshalJSON emits the recursive {operator, conditions} wire form.
func (g FilterGroup) MarshalJSON() ([]byte, error) {
	wire := groupWire{Operator: g.Operator, Conditions: make([]json.RawMessage, 0, len(g.Conditions))}
	for _, n := range g.Conditions {
		b, err := json.Marshal(n)
		if err != nil {
			return nil, err
		}
		wire.Conditions = append(wire.Conditions, b)
	}
	return json.Marshal(wire)
}

// UnmarshalJSON rebuilds the tree, distinguishing nested groups from
// conditions by the presence of a "conditions" key.
func (g *FilterGroup) UnmarshalJSON(data []byte) error {
	var wire groupWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	g.Operator = wire.Operator
	g.Conditions = g.Conditions[:0]
	for _, raw := range wire.Conditions {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(raw, &probe); err != nil {
			return err
		}
		if _, isGroup := probe["conditions"]; isGroup {
			child := &FilterGroup{}
			if err := json.Unmarshal(raw, child); err != nil {
				return err
			}
			g.Conditions = append(g.Conditions, child)
			continue
		}
		var cond FilterCondition
		if err := json.Unmarshal(raw, &cond); err != nil {
			return err
		}
		g.Conditions = append(g.Conditions, cond)
	}
	return nil
}

// ParseGroup decodes a serialized filter tree (e.g. a segment's
// filters_json column) and validates it.
func ParseGroup(data []byte) (*FilterGroup, error) {
	g := &FilterGroup{}
	if err := json.Unmarshal(data, g); err != nil {
		return nil, fmt.Errorf("parse filter group: %w", err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}
