package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/velora/crm-server/internal/domain"
	"github.com/velora/crm-server/internal/pkg/httputil"
	"github.com/velora/crm-server/internal/pkg/logger"
	"github.com/velora/crm-server/internal/segment"
)

// GetFilterCatalog returns the preset filter catalog the segment builder
// renders, grouped by category.
func (h *Handlers) GetFilterCatalog(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]any{"categories": segment.Catalog()})
}

// ListSegments returns all active segments.
func (h *Handlers) ListSegments(w http.ResponseWriter, r *http.Request) {
	segments, err := h.crm.ListSegments(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"segments": segments})
}

// GetSegment returns one segment by id.
func (h *Handlers) GetSegment(w http.ResponseWriter, r *http.Request) {
	seg, err := h.crm.GetSegment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if seg == nil {
		httputil.NotFound(w, "segment not found")
		return
	}
	httputil.OK(w, seg)
}

type segmentRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Filters     json.RawMessage `json:"filters"`

	// Alternative to Filters: a preset selection compiled server side.
	Selected []segment.SelectedFilter `json:"selected,omitempty"`
	TagIDs   []string                 `json:"tag_ids,omitempty"`
}

// resolveFilters returns the filter tree for a segment request, compiling a
// preset selection when no raw tree was sent.
func (req *segmentRequest) resolveFilters() (json.RawMessage, error) {
	if len(req.Filters) > 0 {
		if _, err := segment.ParseGroup(req.Filters); err != nil {
			return nil, err
		}
		return req.Filters, nil
	}
	group := segment.Compile(segment.ResolveSelection(req.Selected), req.TagIDs)
	if group == nil {
		// No presets selected: persist an empty AND group, which matches
		// every eligible customer.
		group = &segment.FilterGroup{Operator: segment.LogicAnd}
	}
	return json.Marshal(group)
}

// CreateSegment persists a new segment from a raw filter tree or a preset
// selection.
func (h *Handlers) CreateSegment(w http.ResponseWriter, r *http.Request) {
	var req segmentRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		httputil.BadRequest(w, "name is required")
		return
	}

	filters, err := req.resolveFilters()
	if err != nil {
		httputil.BadRequest(w, "invalid filters: "+err.Error())
		return
	}

	seg := &domain.Segment{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		FiltersJSON: filters,
	}
	if err := h.crm.CreateSegment(r.Context(), seg); err != nil {
		httputil.InternalError(w, err)
		return
	}
	h.refreshSegmentCount(r.Context(), seg)

	httputil.Created(w, seg)
}

// refreshSegmentCount recomputes the cached audience size after a segment
// write. Best effort: a failed count never fails the write.
func (h *Handlers) refreshSegmentCount(ctx context.Context, seg *domain.Segment) {
	if h.previewer == nil {
		return
	}
	group, err := segment.ParseGroup(seg.FiltersJSON)
	if err != nil {
		return
	}
	count, err := h.previewer.Count(ctx, group, nil)
	if err != nil {
		logger.Warn("segment count refresh failed", "segment_id", seg.ID, "error", err.Error())
		return
	}
	seg.CustomerCount = count
	if err := h.crm.UpdateSegmentCount(ctx, seg.ID, count); err != nil {
		logger.Warn("segment count persist failed", "segment_id", seg.ID, "error", err.Error())
	}
}

// UpdateSegment replaces a segment's name, description, and filter tree.
func (h *Handlers) UpdateSegment(w http.ResponseWriter, r *http.Request) {
	var req segmentRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	filters, err := req.resolveFilters()
	if err != nil {
		httputil.BadRequest(w, "invalid filters: "+err.Error())
		return
	}

	seg := &domain.Segment{
		ID:          chi.URLParam(r, "id"),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		FiltersJSON: filters,
	}
	if err := h.crm.UpdateSegment(r.Context(), seg); err != nil {
		httputil.NotFound(w, err.Error())
		return
	}
	h.refreshSegmentCount(r.Context(), seg)

	httputil.OK(w, seg)
}

// ArchiveSegment soft deletes a segment.
func (h *Handlers) ArchiveSegment(w http.ResponseWriter, r *http.Request) {
	if err := h.crm.ArchiveSegment(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.NotFound(w, "segment not found")
		return
	}
	httputil.NoContent(w)
}

// PreviewSegment counts how many eligible customers match a filter tree
// without persisting anything. The dashboard calls this as the user edits
// filters.
func (h *Handlers) PreviewSegment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filters  json.RawMessage          `json:"filters"`
		Selected []segment.SelectedFilter `json:"selected,omitempty"`
		TagIDs   []string                 `json:"tag_ids,omitempty"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}

	var group *segment.FilterGroup
	if len(req.Filters) > 0 {
		var err error
		group, err = segment.ParseGroup(req.Filters)
		if err != nil {
			httputil.BadRequest(w, "invalid filters: "+err.Error())
			return
		}
	} else {
		group = segment.Compile(segment.ResolveSelection(req.Selected), req.TagIDs)
	}

	var tagSet map[string]struct{}
	if len(req.TagIDs) > 0 {
		var err error
		tagSet, err = h.crm.TagMembers(r.Context(), req.TagIDs)
		if err != nil {
			httputil.InternalError(w, err)
			return
		}
	}

	count, err := h.previewer.Count(r.Context(), group, tagSet)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	httputil.OK(w, map[string]int{"count": count})
}
