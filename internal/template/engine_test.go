package template

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velora/crm-server/internal/domain"
	"github.com/velora/crm-server/internal/resend"
)

// =============================================================================
// RENDERING
// =============================================================================

func TestEngine_Render(t *testing.T) {
	e := NewEngine()

	out, err := e.Render("", "Olá {{nome}}, você tem {{numero_pedidos}} pedidos", map[string]interface{}{
		"nome":           "Ana",
		"numero_pedidos": 3,
	})
	require.NoError(t, err)
	assert.Equal(t, "Olá Ana, você tem 3 pedidos", out)
}

func TestEngine_RenderMissingVariableIsEmpty(t *testing.T) {
	e := NewEngine()

	out, err := e.Render("", "Olá {{nome}}, tudo bem?", map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, "Olá , tudo bem?", out, "missing variables render empty, never the literal placeholder")
}

func TestEngine_RenderCachesParsedTemplate(t *testing.T) {
	e := NewEngine()

	src := "Oi {{nome}}"
	for _, name := range []string{"Ana", "Bia"} {
		out, err := e.Render("campaign-1", src, map[string]interface{}{"nome": name})
		require.NoError(t, err)
		assert.Equal(t, "Oi "+name, out)
	}
	if _, ok := e.cache.Load("campaign-1"); !ok {
		t.Error("parsed template should be cached under the campaign key")
	}
}

func TestEngine_RenderParseErrorReturnsSource(t *testing.T) {
	e := NewEngine()

	src := "Oi {% if %}"
	out, err := e.Render("", src, nil)
	assert.Error(t, err)
	assert.Equal(t, src, out)
}

func TestEngine_Filters(t *testing.T) {
	e := NewEngine()

	tests := []struct {
		name string
		src  string
		vars map[string]interface{}
		want string
	}{
		{"default fills blank", `Olá {{ nome | default: "cliente" }}`, map[string]interface{}{}, "Olá cliente"},
		{"first name", `{{ nome | first_name }}`, map[string]interface{}{"nome": "Ana Clara Souza"}, "Ana"},
		{"brl currency", `{{ total | brl }}`, map[string]interface{}{"total": 620.5}, "R$ 620,50"},
		{"mask email", `{{ email | mask_email }}`, map[string]interface{}{"email": "anaclara@example.com"}, "an***@example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := e.Render("", tt.src, tt.vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

// =============================================================================
// VARIABLE EXTRACTION
// =============================================================================

func TestExtractVariables(t *testing.T) {
	vars := ExtractVariables("Olá {{nome}}, {{ nome }} tem {{numero_pedidos}} pedidos e {{ total | brl }}")
	assert.Equal(t, []string{"nome", "numero_pedidos", "total"}, vars)
}

func TestMissingVariables(t *testing.T) {
	missing := MissingVariables("Olá {{nome}}, cupom {{cupom}}", map[string]interface{}{"nome": "Ana"})
	assert.Equal(t, []string{"cupom"}, missing)
}

// =============================================================================
// PROVIDER SYNC
// =============================================================================

type fakeProvider struct {
	templates []resend.Template
	err       error
}

func (p *fakeProvider) ListTemplates(ctx context.Context) ([]resend.Template, error) {
	return p.templates, p.err
}

type fakeUpserter struct {
	saved  []domain.EmailTemplate
	failOn string
}

func (u *fakeUpserter) UpsertFromProvider(ctx context.Context, tpl *domain.EmailTemplate) error {
	if tpl.ProviderID == u.failOn {
		return errors.New("constraint violation")
	}
	u.saved = append(u.saved, *tpl)
	return nil
}

func TestSyncer_Sync(t *testing.T) {
	provider := &fakeProvider{templates: []resend.Template{
		{ID: "tpl-1", Name: "Boas-vindas", Subject: "Bem-vinda, {{nome}}", HTML: "<p>Olá {{nome}}, use {{cupom}}</p>"},
		{ID: "tpl-2", Name: "Carrinho", Subject: "Esqueceu algo?", HTML: "<p>Oi {{nome}}</p>"},
	}}
	store := &fakeUpserter{}

	n, err := NewSyncer(provider, store).Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, store.saved, 2)
	assert.Equal(t, []string{"nome", "cupom"}, store.saved[0].Variables)
}

func TestSyncer_SyncContinuesPastUpsertFailure(t *testing.T) {
	provider := &fakeProvider{templates: []resend.Template{
		{ID: "tpl-1", Name: "A"},
		{ID: "tpl-2", Name: "B"},
	}}
	store := &fakeUpserter{failOn: "tpl-1"}

	n, err := NewSyncer(provider, store).Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSyncer_SyncProviderError(t *testing.T) {
	provider := &fakeProvider{err: errors.New("api down")}
	_, err := NewSyncer(provider, &fakeUpserter{}).Sync(context.Background())
	assert.Error(t, err)
}
