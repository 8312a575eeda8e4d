package segment

// SelectedFilter is one preset the user has toggled on in the filter
// drawer. The Filter node is resolved from the catalog at selection time so
// stale catalog edits cannot change an in-flight selection.
type SelectedFilter struct {
	CategoryID string `json:"category_id"`
	FilterID   string `json:"filter_id"`
	Filter     PresetFilter
}

// Compile turns a preset selection into a single filter tree.
//
// It returns nil only when both selected and tagIDs are empty, meaning "no
// filtering requested". Tag membership is not encoded in the tree: tags are
// resolved to customer id sets by the store and intersected with the
// evaluator's result, so a tags-only selection compiles to an empty AND
// group (match all, then intersect).
//
// Presets sharing a category are combined with that category's logic
// operator; a category with a single selection contributes its node
// directly. Categories are ANDed together.
func Compile(selected []SelectedFilter, tagIDs []string) *FilterGroup {
	if len(selected) == 0 && len(tagIDs) == 0 {
		return nil
	}

	byCategory := make(map[string][]SelectedFilter)
	order := make([]string, 0, len(selected))
	for _, s := range selected {
		if _, seen := byCategory[s.CategoryID]; !seen {
			order = append(order, s.CategoryID)
		}
		byCategory[s.CategoryID] = append(byCategory[s.CategoryID], s)
	}

	top := &FilterGroup{Operator: LogicAnd}
	for _, catID := range order {
		sels := byCategory[catID]
		if len(sels) == 1 {
			top.Conditions = append(top.Conditions, sels[0].Filter.Node)
			continue
		}
		logic := LogicOr
		if cat, ok := CatalogCategory(catID); ok {
			logic = cat.Logic
		}
		sub := &FilterGroup{Operator: logic}
		for _, s := range sels {
			sub.Conditions = append(sub.Conditions, s.Filter.Node)
		}
		top.Conditions = append(top.Conditions, sub)
	}

	// A single contributing group needs no extra AND wrapper.
	if len(top.Conditions) == 1 {
		if g, ok := top.Conditions[0].(*FilterGroup); ok {
			return g
		}
	}
	return top
}

// ResolveSelection looks up catalog nodes for raw {category, filter} pairs
// coming off the wire, dropping pairs that no longer exist in the catalog.
func ResolveSelection(pairs []SelectedFilter) []SelectedFilter {
	out := make([]SelectedFilter, 0, len(pairs))
	for _, p := range pairs {
		preset, ok := CatalogPreset(p.CategoryID, p.FilterID)
		if !ok {
			continue
		}
		p.Filter = preset
		out = append(out, p)
	}
	return out
}
