package segment

// PresetFilter is a named shortcut the dashboard offers in the filter
// drawer. Compound presets (e.g. VIP) carry a nested group instead of a
// single condition; Node covers both.
type PresetFilter struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Node  Node   `json:"-"`
}

// Category groups presets under a label and the operator used to combine
// multiple selections from the same category.
type Category struct {
	ID      string         `json:"id"`
	Label   string         `json:"label"`
	Logic   LogicOperator  `json:"logic_operator"`
	Filters []PresetFilter `json:"filters"`
}

// Catalog returns the static preset catalog. Field names and thresholds
// match the customer projection the storefront backend exposes.
func Catalog() []Category {
	return []Category{
		{
			ID:    "segmento",
			Label: "Segmento",
			Logic: LogicOr,
			Filters: []PresetFilter{
				{ID: "vip", Label: "VIP", Node: &FilterGroup{
					Operator: LogicOr,
					Conditions: []Node{
						FilterCondition{Field: "valor_total_gasto", Operator: OpGt, Value: Number(500)},
						FilterCondition{Field: "ticket_medio", Operator: OpGt, Value: Number(150)},
					},
				}},
				{ID: "fiel", Label: "Cliente Fiel", Node: FilterCondition{
					Field: "numero_pedidos", Operator: OpGte, Value: Number(5),
				}},
				{ID: "novo", Label: "Cliente Novo", Node: FilterCondition{
					Field: "numero_pedidos", Operator: OpLte, Value: Number(1),
				}},
			},
		},
		{
			ID:    "status",
			Label: "Status",
			Logic: LogicOr,
			Filters: []PresetFilter{
				{ID: "ativo", Label: "Ativo", Node: FilterCondition{
					Field: "status", Operator: OpEquals, Value: String("active"),
				}},
				{ID: "inativo", Label: "Inativo", Node: FilterCondition{
					Field: "status", Operator: OpEquals, Value: String("inactive"),
				}},
				{ID: "perdido", Label: "Perdido", Node: FilterCondition{
					Field: "status", Operator: OpEquals, Value: String("churned"),
				}},
			},
		},
		{
			ID:    "recencia",
			Label: "Última Compra",
			Logic: LogicOr,
			Filters: []PresetFilter{
				{ID: "compra_recente", Label: "Comprou esta semana", Node: FilterCondition{
					Field: "dias_sem_comprar", Operator: OpLte, Value: Number(7),
				}},
				{ID: "compra_quinzena", Label: "8 a 15 dias", Node: FilterCondition{
					Field: "dias_sem_comprar", Operator: OpBetween, Value: Range(8, 15),
				}},
				{ID: "compra_mes", Label: "16 a 30 dias", Node: FilterCondition{
					Field: "dias_sem_comprar", Operator: OpBetween, Value: Range(16, 30),
				}},
				{ID: "em_risco", Label: "31 a 60 dias", Node: FilterCondition{
					Field: "dias_sem_comprar", Operator: OpBetween, Value: Range(31, 60),
				}},
				{ID: "sumido", Label: "Mais de 60 dias", Node: FilterCondition{
					Field: "dias_sem_comprar", Operator: OpGte, Value: Number(60),
				}},
			},
		},
		{
			ID:    "valor",
			Label: "Valor Gasto",
			Logic: LogicOr,
			Filters: []PresetFilter{
				{ID: "alto_valor", Label: "Acima de R$ 500", Node: FilterCondition{
					Field: "valor_total_gasto", Operator: OpGt, Value: Number(500),
				}},
				{ID: "medio_valor", Label: "R$ 150 a R$ 500", Node: FilterCondition{
					Field: "valor_total_gasto", Operator: OpBetween, Value: Range(150, 500),
				}},
				{ID: "baixo_valor", Label: "Abaixo de R$ 150", Node: FilterCondition{
					Field: "valor_total_gasto", Operator: OpLt, Value: Number(150),
				}},
			},
		},
		{
			ID:    "engajamento",
			Label: "Engajamento",
			Logic: LogicAnd,
			Filters: []PresetFilter{
				{ID: "carrinho_ativo", Label: "Carrinho abandonado", Node: FilterCondition{
					Field: "tem_carrinho_ativo", Operator: OpEquals, Value: Bool(true),
				}},
				{ID: "com_wishlist", Label: "Tem itens na wishlist", Node: FilterCondition{
					Field: "itens_wishlist", Operator: OpGt, Value: Number(0),
				}},
				{ID: "comprou_skincare", Label: "Comprou skincare", Node: FilterCondition{
					Field: "categorias_compradas", Operator: OpContains, Value: String("skincare"),
				}},
			},
		},
	}
}

// CatalogCategory returns one category by id.
func CatalogCategory(id string) (Category, bool) {
	for _, cat := range Catalog() {
		if cat.ID == id {
			return cat, true
		}
	}
	return Category{}, false
}

// CatalogPreset returns one preset by category and filter id.
func CatalogPreset(categoryID, filterID string) (PresetFilter, bool) {
	cat, ok := CatalogCategory(categoryID)
	if !ok {
		return PresetFilter{}, false
	}
	for _, f := range cat.Filters {
		if f.ID == filterID {
			return f, true
		}
	}
	return PresetFilter{}, false
}
