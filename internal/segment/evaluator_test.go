package segment

import (
	"encoding/json"
	"testing"

	"github.com/velora/crm-server/internal/domain"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func testCustomer() *domain.Customer {
	return &domain.Customer{
		ID:                  "c1",
		Name:                "Ana Souza",
		Email:               "ana@example.com",
		Status:              domain.CustomerActive,
		DaysSinceLastOrder:  10,
		TotalSpent:          620.50,
		AverageTicket:       120,
		OrderCount:          5,
		PurchasedCategories: []string{"skincare", "maquiagem"},
		WishlistItems:       2,
		HasActiveCart:       true,
		MarketingEmails:     true,
	}
}

func cond(field string, op Operator, v FilterValue) FilterCondition {
	return FilterCondition{Field: field, Operator: op, Value: v}
}

// =============================================================================
// GROUP SEMANTICS
// =============================================================================

func TestEvaluate_EmptyANDMatchesAll(t *testing.T) {
	g := &FilterGroup{Operator: LogicAnd}
	if !Evaluate(g, testCustomer()) {
		t.Error("empty AND group should match every record")
	}
}

func TestEvaluate_EmptyORMatchesNone(t *testing.T) {
	g := &FilterGroup{Operator: LogicOr}
	if Evaluate(g, testCustomer()) {
		t.Error("empty OR group should match no record")
	}
}

func TestEvaluate_NilGroupMatchesAll(t *testing.T) {
	if !Evaluate(nil, testCustomer()) {
		t.Error("nil group means no filtering and should match")
	}
}

func TestEvaluate_ANDEquivalence(t *testing.T) {
	c := testCustomer()
	conds := []FilterCondition{
		cond("dias_sem_comprar", OpLte, Number(30)),
		cond("valor_total_gasto", OpGt, Number(500)),
		cond("numero_pedidos", OpEquals, Number(99)),
	}
	for _, c1 := range conds {
		for _, c2 := range conds {
			combined := Evaluate(&FilterGroup{Operator: LogicAnd, Conditions: []Node{c1, c2}}, c)
			separate := Evaluate(&FilterGroup{Operator: LogicAnd, Conditions: []Node{c1}}, c) &&
				Evaluate(&FilterGroup{Operator: LogicAnd, Conditions: []Node{c2}}, c)
			if combined != separate {
				t.Errorf("AND(%v, %v) = %v, want %v", c1, c2, combined, separate)
			}
		}
	}
}

func TestEvaluate_NestedGroups(t *testing.T) {
	// vip shape: spent > 500 OR avg order > 150, nested under AND with status
	g := &FilterGroup{
		Operator: LogicAnd,
		Conditions: []Node{
			cond("status", OpEquals, String("active")),
			&FilterGroup{
				Operator: LogicOr,
				Conditions: []Node{
					cond("valor_total_gasto", OpGt, Number(500)),
					cond("ticket_medio", OpGt, Number(150)),
				},
			},
		},
	}
	c := testCustomer()
	if !Evaluate(g, c) {
		t.Error("active customer with total spent 620.50 should match")
	}
	c.TotalSpent = 100
	c.AverageTicket = 50
	if Evaluate(g, c) {
		t.Error("neither OR branch holds, should not match")
	}
}

// =============================================================================
// OPERATORS
// =============================================================================

func TestEvaluate_Operators(t *testing.T) {
	tests := []struct {
		name string
		cond FilterCondition
		want bool
	}{
		{"equals number", cond("numero_pedidos", OpEquals, Number(5)), true},
		{"equals number miss", cond("numero_pedidos", OpEquals, Number(6)), false},
		{"equals string", cond("status", OpEquals, String("active")), true},
		{"equals bool", cond("tem_carrinho_ativo", OpEquals, Bool(true)), true},
		{"equals numeric string", cond("numero_pedidos", OpEquals, String("5")), true},
		{"not equals", cond("status", OpNotEquals, String("inactive")), true},
		{"not equals type mismatch", cond("numero_pedidos", OpNotEquals, Bool(true)), true},
		{"gt", cond("valor_total_gasto", OpGt, Number(600)), true},
		{"gt equal boundary", cond("valor_total_gasto", OpGt, Number(620.50)), false},
		{"gte boundary", cond("valor_total_gasto", OpGte, Number(620.50)), true},
		{"lt", cond("dias_sem_comprar", OpLt, Number(11)), true},
		{"lte boundary", cond("dias_sem_comprar", OpLte, Number(10)), true},
		{"in hit", cond("status", OpIn, List("active", "inactive")), true},
		{"in miss", cond("status", OpIn, List("churned")), false},
		{"contains hit", cond("categorias_compradas", OpContains, String("skincare")), true},
		{"contains miss", cond("categorias_compradas", OpContains, String("perfume")), false},
		{"not contains hit", cond("categorias_compradas", OpNotContains, String("perfume")), true},
		{"not contains miss", cond("categorias_compradas", OpNotContains, String("skincare")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &FilterGroup{Operator: LogicAnd, Conditions: []Node{tt.cond}}
			if got := Evaluate(g, testCustomer()); got != tt.want {
				t.Errorf("Evaluate(%s %s) = %v, want %v", tt.cond.Field, tt.cond.Operator, got, tt.want)
			}
		})
	}
}

func TestEvaluate_BetweenInclusive(t *testing.T) {
	g := &FilterGroup{
		Operator:   LogicAnd,
		Conditions: []Node{cond("dias_sem_comprar", OpBetween, Range(8, 15))},
	}
	tests := []struct {
		days int
		want bool
	}{
		{7, false},
		{8, true},
		{12, true},
		{15, true},
		{16, false},
	}
	for _, tt := range tests {
		c := testCustomer()
		c.DaysSinceLastOrder = tt.days
		if got := Evaluate(g, c); got != tt.want {
			t.Errorf("BETWEEN [8,15] with %d days = %v, want %v", tt.days, got, tt.want)
		}
	}
}

// =============================================================================
// FAIL-CLOSED BEHAVIOR
// =============================================================================

func TestEvaluate_FailClosed(t *testing.T) {
	tests := []struct {
		name string
		cond FilterCondition
	}{
		{"unknown field", cond("campo_inexistente", OpEquals, Number(1))},
		{"unknown operator", cond("numero_pedidos", Operator("LIKE"), Number(1))},
		{"ordered compare on string field", cond("status", OpGt, Number(1))},
		{"ordered compare on string value", cond("numero_pedidos", OpGt, String("x"))},
		{"contains on scalar field", cond("status", OpContains, String("a"))},
		{"between with non-range value", cond("numero_pedidos", OpBetween, Number(5))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &FilterGroup{Operator: LogicAnd, Conditions: []Node{tt.cond}}
			if Evaluate(g, testCustomer()) {
				t.Error("malformed condition should evaluate false, not match")
			}
		})
	}
}

// =============================================================================
// WIRE FORMAT
// =============================================================================

func TestFilterGroup_JSONRoundTrip(t *testing.T) {
	src := &FilterGroup{
		Operator: LogicAnd,
		Conditions: []Node{
			cond("dias_sem_comprar", OpBetween, Range(8, 15)),
			&FilterGroup{
				Operator: LogicOr,
				Conditions: []Node{
					cond("categorias_compradas", OpContains, String("skincare")),
					cond("status", OpIn, List("active", "inactive")),
				},
			},
		},
	}
	data, err := json.Marshal(src)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	parsed, err := ParseGroup(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	// Semantic equivalence over a sample of records, not byte equality.
	for _, days := range []int{5, 8, 15, 40} {
		c := testCustomer()
		c.DaysSinceLastOrder = days
		if Evaluate(src, c) != Evaluate(parsed, c) {
			t.Errorf("round-tripped tree diverges for dias_sem_comprar=%d", days)
		}
	}
}

func TestParseGroup_RejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"bad group operator", `{"operator":"XOR","conditions":[]}`},
		{"between without range", `{"operator":"AND","conditions":[{"field":"x","operator":"BETWEEN","value":5}]}`},
		{"unordered range", `{"operator":"AND","conditions":[{"field":"x","operator":"BETWEEN","value":[15,8]}]}`},
		{"in without array", `{"operator":"AND","conditions":[{"field":"x","operator":"IN","value":"a"}]}`},
		{"unknown operator", `{"operator":"AND","conditions":[{"field":"x","operator":"LIKE","value":"a"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseGroup([]byte(tt.json)); err == nil {
				t.Errorf("ParseGroup accepted malformed input %s", tt.json)
			}
		})
	}
}

func TestParseGroup_InWithTwoNumbers(t *testing.T) {
	// [2,5] decodes as a range; IN must still treat it as two candidates.
	g, err := ParseGroup([]byte(`{"operator":"AND","conditions":[{"field":"numero_pedidos","operator":"IN","value":[2,5]}]}`))
	if err != nil {
		t.Fatalf("ParseGroup: %v", err)
	}
	if !Evaluate(g, testCustomer()) {
		t.Error("customer with 5 orders should match IN [2,5]")
	}

	g, err = ParseGroup([]byte(`{"operator":"AND","conditions":[{"field":"numero_pedidos","operator":"IN","value":[2,3]}]}`))
	if err != nil {
		t.Fatalf("ParseGroup: %v", err)
	}
	if Evaluate(g, testCustomer()) {
		t.Error("customer with 5 orders should not match IN [2,3]")
	}
}

func TestFilterValue_UnmarshalShapes(t *testing.T) {
	tests := []struct {
		name string
		json string
		want ValueKind
	}{
		{"number", `42`, ValueNumber},
		{"string", `"vip"`, ValueString},
		{"bool", `true`, ValueBool},
		{"two numbers become range", `[8,15]`, ValueRange},
		{"strings become list", `["a","b","c"]`, ValueList},
		{"three numbers become list", `[1,2,3]`, ValueList},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v FilterValue
			if err := json.Unmarshal([]byte(tt.json), &v); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if v.Kind != tt.want {
				t.Errorf("kind = %d, want %d", v.Kind, tt.want)
			}
		})
	}
}
