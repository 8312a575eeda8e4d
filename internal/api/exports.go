package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/velora/crm-server/internal/pkg/httputil"
)

// ExportCampaignAudience writes a CSV snapshot of a campaign's delivery rows
// to the compliance bucket and returns the object key.
func (h *Handlers) ExportCampaignAudience(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "exports not configured")
		return
	}
	id := chi.URLParam(r, "id")

	c, err := h.campaigns.Get(r.Context(), id)
	if err != nil {
		campaignError(w, err)
		return
	}
	logs, err := h.campaigns.Logs(r.Context(), id)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	key, err := h.exporter.ExportAudience(r.Context(), c, logs)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"key": key, "rows": len(logs)})
}

// ExportCustomers dumps the customer base as CSV to the compliance bucket.
func (h *Handlers) ExportCustomers(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "exports not configured")
		return
	}

	customers, err := h.crm.AllCustomers(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	key, err := h.exporter.ExportCustomers(r.Context(), customers)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"key": key, "rows": len(customers)})
}
