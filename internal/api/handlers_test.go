package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velora/crm-server/internal/api"
	"github.com/velora/crm-server/internal/auth"
	"github.com/velora/crm-server/internal/campaign"
	"github.com/velora/crm-server/internal/config"
	"github.com/velora/crm-server/internal/domain"
	"github.com/velora/crm-server/internal/segment"
)

type staticCustomers struct {
	customers []domain.Customer
}

func (s *staticCustomers) EligibleCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.customers, nil
}

func newTestRouter(t *testing.T, src segment.CustomerSource) http.Handler {
	t.Helper()
	handlers := api.NewHandlers(nil,
		campaign.NewService(campaign.NewStore(nil), nil, nil, nil),
		nil, nil,
		segment.NewPreviewer(src),
		nil, nil)
	return api.SetupRoutes(handlers, nil)
}

func TestHealthCheck(t *testing.T) {
	router := newTestRouter(t, &staticCustomers{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestFilterCatalog(t *testing.T) {
	router := newTestRouter(t, &staticCustomers{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/segments/catalog", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Categories []segment.Category `json:"categories"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Categories)

	ids := make([]string, 0, len(body.Categories))
	for _, c := range body.Categories {
		ids = append(ids, c.ID)
	}
	assert.Contains(t, ids, "segmento")
	assert.Contains(t, ids, "recencia")
}

func TestPreviewSegmentCounts(t *testing.T) {
	src := &staticCustomers{customers: []domain.Customer{
		{ID: "c1", DaysSinceLastOrder: 90},
		{ID: "c2", DaysSinceLastOrder: 10},
		{ID: "c3", DaysSinceLastOrder: 75},
	}}
	router := newTestRouter(t, src)

	payload := `{"filters":{"logic_operator":"AND","conditions":[{"field":"dias_sem_comprar","operator":">=","value":60}]}}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/segments/preview", strings.NewReader(payload)))

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body["count"])
}

func TestPreviewSegmentRejectsBadFilters(t *testing.T) {
	router := newTestRouter(t, &staticCustomers{})

	payload := `{"filters":{"logic_operator":"AND","conditions":[{"field":"dias_sem_comprar","operator":"BETWEEN","value":5}]}}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/segments/preview", strings.NewReader(payload)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateCampaignValidation(t *testing.T) {
	router := newTestRouter(t, &staticCustomers{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/campaigns/", strings.NewReader(`{"subject":"Oi"}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIRequiresAuthentication(t *testing.T) {
	manager := auth.NewManager(&config.AuthConfig{
		CookieName:    "velora_session",
		CookieMaxAge:  3600,
		AllowedDomain: "velora.com.br",
	}, "http://localhost:8080")

	handlers := api.NewHandlers(nil, nil, nil, nil, segment.NewPreviewer(&staticCustomers{}), nil, nil)
	router := api.SetupRoutes(handlers, manager)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/tags/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Health stays open
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
