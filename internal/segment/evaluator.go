package segment

import "strconv"

// Record is anything the evaluator can read filter fields from.
// domain.Customer satisfies it.
type Record interface {
	Field(name string) (any, bool)
}

// Evaluate reports whether rec matches the filter tree. It is pure and
// fail-closed: unknown fields, unknown operators, and type mismatches make
// the individual condition false rather than erroring out.
func Evaluate(g *FilterGroup, rec Record) bool {
	if g == nil {
		return true
	}
	if g.Operator == LogicOr {
		for _, n := range g.Conditions {
			if evalNode(n, rec) {
				return true
			}
		}
		return false
	}
	// AND, vacuously true when empty
	for _, n := range g.Conditions {
		if !evalNode(n, rec) {
			return false
		}
	}
	return true
}

func evalNode(n Node, rec Record) bool {
	switch node := n.(type) {
	case FilterCondition:
		return evalCondition(node, rec)
	case *FilterGroup:
		return Evaluate(node, rec)
	}
	return false
}

func evalCondition(c FilterCondition, rec Record) bool {
	field, ok := rec.Field(c.Field)
	if !ok {
		return false
	}
	switch c.Operator {
	case OpEquals:
		return scalarEquals(field, c.Value)
	case OpNotEquals:
		return !scalarEquals(field, c.Value)
	case OpGt, OpLt, OpGte, OpLte:
		fn, okF := toNumber(field)
		if !okF || c.Value.Kind != ValueNumber {
			return false
		}
		switch c.Operator {
		case OpGt:
			return fn > c.Value.Number
		case OpLt:
			return fn < c.Value.Number
		case OpGte:
			return fn >= c.Value.Number
		default:
			return fn <= c.Value.Number
		}
	case OpIn:
		switch c.Value.Kind {
		case ValueList:
			for _, item := range c.Value.List {
				if scalarEquals(field, String(item)) {
					return true
				}
			}
		case ValueRange:
			// two numeric candidates that decoded as a range
			return scalarEquals(field, Number(c.Value.Range[0])) ||
				scalarEquals(field, Number(c.Value.Range[1]))
		}
		return false
	case OpBetween:
		fn, okF := toNumber(field)
		if !okF || c.Value.Kind != ValueRange {
			return false
		}
		return fn >= c.Value.Range[0] && fn <= c.Value.Range[1]
	case OpContains:
		return listContains(field, c.Value.Str)
	case OpNotContains:
		items, ok := toStringList(field)
		if !ok {
			return false
		}
		for _, it := range items {
			if it == c.Value.Str {
				return false
			}
		}
		return true
	}
	return false
}

// scalarEquals compares a record field to a filter value with strict
// semantics: mismatched types never compare equal, except that numeric
// fields compare against the numeric parse of a string value (the form
// serializes select options as strings).
func scalarEquals(field any, v FilterValue) bool {
	switch v.Kind {
	case ValueNumber:
		fn, ok := toNumber(field)
		return ok && fn == v.Number
	case ValueString:
		if s, ok := field.(string); ok {
			return s == v.Str
		}
		if fn, ok := toNumber(field); ok {
			if pv, err := strconv.ParseFloat(v.Str, 64); err == nil {
				return fn == pv
			}
		}
		return false
	case ValueBool:
		b, ok := field.(bool)
		return ok && b == v.Bool
	}
	return false
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toStringList(v any) ([]string, bool) {
	items, ok := v.([]string)
	return items, ok
}

func listContains(field any, want string) bool {
	items, ok := toStringList(field)
	if !ok {
		return false
	}
	for _, it := range items {
		if it == want {
			return true
		}
	}
	return false
}
