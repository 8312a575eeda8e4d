package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/velora/crm-server/internal/crm"
	"github.com/velora/crm-server/internal/domain"
	"github.com/velora/crm-server/internal/pkg/httputil"
)

// ListCustomers returns a paginated customer listing with optional filters.
// Query params: status, search, tag_ids (comma separated), limit, offset.
func (h *Handlers) ListCustomers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	opts := crm.ListOptions{
		Status: q.Get("status"),
		Search: q.Get("search"),
	}
	if raw := q.Get("tag_ids"); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				opts.TagIDs = append(opts.TagIDs, id)
			}
		}
	}
	opts.Limit, _ = strconv.Atoi(q.Get("limit"))
	opts.Offset, _ = strconv.Atoi(q.Get("offset"))

	customers, total, err := h.crm.ListCustomers(r.Context(), opts)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	httputil.OK(w, map[string]any{
		"customers": customers,
		"total":     total,
	})
}

// GetCustomer returns a single customer by id.
func (h *Handlers) GetCustomer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	customer, err := h.crm.GetCustomer(r.Context(), id)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if customer == nil {
		httputil.NotFound(w, "customer not found")
		return
	}

	httputil.OK(w, customer)
}

// BlockCustomer marks a customer as blocked for all communications.
func (h *Handlers) BlockCustomer(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, true)
}

// UnblockCustomer clears the communications block.
func (h *Handlers) UnblockCustomer(w http.ResponseWriter, r *http.Request) {
	h.setBlocked(w, r, false)
}

func (h *Handlers) setBlocked(w http.ResponseWriter, r *http.Request, blocked bool) {
	id := chi.URLParam(r, "id")

	if err := h.crm.SetBlocked(r.Context(), id, blocked); err != nil {
		httputil.NotFound(w, "customer not found")
		return
	}

	httputil.OK(w, map[string]any{"id": id, "blocked_communications": blocked})
}

// ListTags returns all tags with member counts.
func (h *Handlers) ListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.crm.ListTags(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"tags": tags})
}

// CreateTag creates a new customer tag.
func (h *Handlers) CreateTag(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Color string `json:"color"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		httputil.BadRequest(w, "name is required")
		return
	}

	tag := &domain.Tag{Name: strings.TrimSpace(req.Name), Color: req.Color}
	if err := h.crm.CreateTag(r.Context(), tag); err != nil {
		httputil.InternalError(w, err)
		return
	}

	httputil.Created(w, tag)
}

// DeleteTag removes a tag and its customer assignments.
func (h *Handlers) DeleteTag(w http.ResponseWriter, r *http.Request) {
	if err := h.crm.DeleteTag(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.NotFound(w, "tag not found")
		return
	}
	httputil.NoContent(w)
}

// AssignTag attaches a tag to a customer.
func (h *Handlers) AssignTag(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "id")

	var req struct {
		TagID string `json:"tag_id"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.TagID == "" {
		httputil.BadRequest(w, "tag_id is required")
		return
	}

	if err := h.crm.AssignTag(r.Context(), customerID, req.TagID); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"customer_id": customerID, "tag_id": req.TagID})
}

// UnassignTag detaches a tag from a customer.
func (h *Handlers) UnassignTag(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "id")
	tagID := chi.URLParam(r, "tagId")

	if err := h.crm.UnassignTag(r.Context(), customerID, tagID); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.NoContent(w)
}
