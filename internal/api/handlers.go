package api

import (
	"context"
	"net/http"
	"time"

	"github.com/velora/crm-server/internal/campaign"
	"github.com/velora/crm-server/internal/crm"
	"github.com/velora/crm-server/internal/domain"
	"github.com/velora/crm-server/internal/pkg/httputil"
	"github.com/velora/crm-server/internal/segment"
	"github.com/velora/crm-server/internal/template"
)

// NavigationSource reports page navigation stats from the data lake.
type NavigationSource interface {
	NavigationStats(ctx context.Context, days int) ([]domain.NavigationStat, error)
}

// Exporter writes CSV snapshots to the compliance bucket.
type Exporter interface {
	ExportAudience(ctx context.Context, c *domain.Campaign, logs []domain.CampaignLog) (string, error)
	ExportCustomers(ctx context.Context, customers []domain.Customer) (string, error)
}

// Handlers bundles the services the HTTP layer exposes.
type Handlers struct {
	crm       *crm.Store
	campaigns *campaign.Service
	templates *template.Store
	syncer    *template.Syncer
	previewer *segment.Previewer
	analytics NavigationSource
	exporter  Exporter

	startedAt time.Time
}

// NewHandlers creates the handler set.
func NewHandlers(
	crmStore *crm.Store,
	campaigns *campaign.Service,
	templates *template.Store,
	syncer *template.Syncer,
	previewer *segment.Previewer,
	analytics NavigationSource,
	exporter Exporter,
) *Handlers {
	return &Handlers{
		crm:       crmStore,
		campaigns: campaigns,
		templates: templates,
		syncer:    syncer,
		previewer: previewer,
		analytics: analytics,
		exporter:  exporter,
		startedAt: time.Now(),
	}
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
	})
}
