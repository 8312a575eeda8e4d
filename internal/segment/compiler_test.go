package segment

import (
	"testing"

	"github.com/velora/crm-server/internal/domain"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func mustPreset(t *testing.T, categoryID, filterID string) SelectedFilter {
	t.Helper()
	preset, ok := CatalogPreset(categoryID, filterID)
	if !ok {
		t.Fatalf("catalog is missing preset %s/%s", categoryID, filterID)
	}
	return SelectedFilter{CategoryID: categoryID, FilterID: filterID, Filter: preset}
}

func sampleCustomers() []domain.Customer {
	return []domain.Customer{
		{ID: "vip", TotalSpent: 800, AverageTicket: 200, OrderCount: 4, DaysSinceLastOrder: 3, Status: domain.CustomerActive},
		{ID: "fiel", TotalSpent: 300, AverageTicket: 60, OrderCount: 8, DaysSinceLastOrder: 20, Status: domain.CustomerActive},
		{ID: "novo", TotalSpent: 90, AverageTicket: 90, OrderCount: 1, DaysSinceLastOrder: 2, Status: domain.CustomerActive},
		{ID: "sumido", TotalSpent: 150, AverageTicket: 75, OrderCount: 2, DaysSinceLastOrder: 90, Status: domain.CustomerChurned},
	}
}

// =============================================================================
// COMPILE
// =============================================================================

func TestCompile_EmptySelectionReturnsNil(t *testing.T) {
	if g := Compile(nil, nil); g != nil {
		t.Errorf("Compile(nil, nil) = %+v, want nil", g)
	}
}

func TestCompile_TagsOnlyReturnsMatchAll(t *testing.T) {
	g := Compile(nil, []string{"tag-1"})
	if g == nil {
		t.Fatal("tags-only selection must still signal that filtering was requested")
	}
	if g.Operator != LogicAnd || len(g.Conditions) != 0 {
		t.Errorf("tags-only selection should compile to an empty AND group, got %+v", g)
	}
	if !Evaluate(g, &domain.Customer{}) {
		t.Error("empty AND group should match all records before tag intersection")
	}
}

func TestCompile_SameCategoryUsesCategoryLogic(t *testing.T) {
	// Two Segmento presets: compiled group ORs them; single contributing
	// category means no extra AND wrapper around the OR group.
	g := Compile([]SelectedFilter{
		mustPreset(t, "segmento", "vip"),
		mustPreset(t, "segmento", "fiel"),
	}, nil)
	if g == nil {
		t.Fatal("expected a group")
	}
	if g.Operator != LogicOr || len(g.Conditions) != 2 {
		t.Fatalf("expected OR group with 2 children, got %s with %d", g.Operator, len(g.Conditions))
	}

	for _, c := range sampleCustomers() {
		c := c
		want := c.ID == "vip" || c.ID == "fiel"
		if got := Evaluate(g, &c); got != want {
			t.Errorf("customer %s: match = %v, want %v", c.ID, got, want)
		}
	}
}

func TestCompile_CrossCategoryANDs(t *testing.T) {
	g := Compile([]SelectedFilter{
		mustPreset(t, "segmento", "fiel"),
		mustPreset(t, "status", "ativo"),
	}, nil)
	if g == nil {
		t.Fatal("expected a group")
	}
	if g.Operator != LogicAnd || len(g.Conditions) != 2 {
		t.Fatalf("expected top-level AND with 2 children, got %s with %d", g.Operator, len(g.Conditions))
	}

	for _, c := range sampleCustomers() {
		c := c
		want := c.ID == "fiel"
		if got := Evaluate(g, &c); got != want {
			t.Errorf("customer %s: match = %v, want %v", c.ID, got, want)
		}
	}
}

func TestCompile_SingleSelectionSkipsWrapping(t *testing.T) {
	// Compiling one preset must evaluate identically to compiling the same
	// preset ORed with itself, where the wrapper group is forced.
	single := Compile([]SelectedFilter{mustPreset(t, "recencia", "sumido")}, nil)
	doubled := Compile([]SelectedFilter{
		mustPreset(t, "recencia", "sumido"),
		mustPreset(t, "recencia", "sumido"),
	}, nil)

	for days := 0; days <= 120; days += 10 {
		c := &domain.Customer{DaysSinceLastOrder: days}
		if Evaluate(single, c) != Evaluate(doubled, c) {
			t.Errorf("unwrapped and wrapped compile diverge at %d days", days)
		}
	}
}

func TestCompile_CompoundPresetStaysNested(t *testing.T) {
	// VIP is itself an OR group; selected alone it is returned directly.
	g := Compile([]SelectedFilter{mustPreset(t, "segmento", "vip")}, nil)
	if g == nil {
		t.Fatal("expected a group")
	}
	if g.Operator != LogicOr || len(g.Conditions) != 2 {
		t.Fatalf("expected the VIP OR group itself, got %s with %d children", g.Operator, len(g.Conditions))
	}
	if !Evaluate(g, &domain.Customer{AverageTicket: 200}) {
		t.Error("high average ticket alone should qualify as VIP")
	}
}

// =============================================================================
// SELECTION RESOLUTION
// =============================================================================

func TestResolveSelection_DropsUnknownPresets(t *testing.T) {
	resolved := ResolveSelection([]SelectedFilter{
		{CategoryID: "segmento", FilterID: "vip"},
		{CategoryID: "segmento", FilterID: "removido"},
		{CategoryID: "inexistente", FilterID: "vip"},
	})
	if len(resolved) != 1 {
		t.Fatalf("resolved %d presets, want 1", len(resolved))
	}
	if resolved[0].Filter.Node == nil {
		t.Error("resolved selection should carry the catalog node")
	}
}
