package resend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velora/crm-server/internal/config"
)

func newTestClient(server *httptest.Server) *Client {
	base := &http.Client{Timeout: 5 * time.Second}
	return &Client{
		baseURL:    server.URL,
		apiKey:     "test-api-key",
		sendClient: base,
		readClient: base,
	}
}

func TestNewClient(t *testing.T) {
	cfg := config.ResendConfig{
		APIKey:         "test-key",
		BaseURL:        "https://api.resend.com",
		TimeoutSeconds: 30,
	}

	client := NewClient(cfg)

	assert.NotNil(t, client)
	assert.Equal(t, "test-key", client.apiKey)
	assert.Equal(t, "https://api.resend.com", client.baseURL)
}

func TestSend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))

		var req SendRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"ana@example.com"}, req.To)
		assert.Equal(t, "Promo de setembro", req.Subject)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(SendResponse{ID: "msg-123"})
	}))
	defer server.Close()

	client := newTestClient(server)

	resp, err := client.Send(context.Background(), SendRequest{
		From:    "Velora <contato@velora.com.br>",
		To:      []string{"ana@example.com"},
		Subject: "Promo de setembro",
		HTML:    "<p>Olá Ana</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, "msg-123", resp.ID)
}

func TestSend_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"message":"invalid to address"}`))
	}))
	defer server.Close()

	client := newTestClient(server)

	_, err := client.Send(context.Background(), SendRequest{To: []string{"not-an-email"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 422")
}

func TestListTemplates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/templates", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"id":"tpl-1","name":"Boas-vindas","subject":"Bem-vinda, {{nome}}","html":"<p>Olá {{nome}}</p>"}]}`))
	}))
	defer server.Close()

	client := newTestClient(server)

	templates, err := client.ListTemplates(context.Background())
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, "tpl-1", templates[0].ID)
	assert.Equal(t, "Boas-vindas", templates[0].Name)
}
