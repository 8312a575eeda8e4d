package api

import (
	"net/http"
	"strconv"

	"github.com/velora/crm-server/internal/pkg/httputil"
)

// ListTemplates returns the locally stored email templates.
func (h *Handlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.templates.List(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"templates": templates})
}

// SyncTemplates pulls the provider's template list into the local store.
func (h *Handlers) SyncTemplates(w http.ResponseWriter, r *http.Request) {
	synced, err := h.syncer.Sync(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]int{"synced": synced})
}

// GetNavigationStats returns page navigation analytics from the data lake.
// Query param: days (default 30).
func (h *Handlers) GetNavigationStats(w http.ResponseWriter, r *http.Request) {
	if h.analytics == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "analytics source not configured")
		return
	}

	days, _ := strconv.Atoi(r.URL.Query().Get("days"))
	if days <= 0 {
		days = 30
	}

	stats, err := h.analytics.NavigationStats(r.Context(), days)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"stats": stats, "days": days})
}
