package api

import (
	"errors"
	"net/http"
	"net/mail"

	"github.com/go-chi/chi/v5"

	"github.com/velora/crm-server/internal/campaign"
	"github.com/velora/crm-server/internal/domain"
	"github.com/velora/crm-server/internal/pkg/httputil"
)

// campaignError maps campaign service errors onto HTTP statuses.
func campaignError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, campaign.ErrNotFound):
		httputil.NotFound(w, "campaign not found")
	case errors.Is(err, campaign.ErrNotSendable),
		errors.Is(err, campaign.ErrInvalidTransition),
		errors.Is(err, campaign.ErrDispatchInProgress):
		httputil.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, campaign.ErrEmptyAudience):
		httputil.Error(w, http.StatusUnprocessableEntity, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}

// ListCampaigns returns campaigns, optionally filtered by ?status=.
func (h *Handlers) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	status := domain.CampaignStatus(r.URL.Query().Get("status"))

	campaigns, err := h.campaigns.List(r.Context(), status)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"campaigns": campaigns})
}

// CreateCampaign creates a draft or scheduled campaign.
func (h *Handlers) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var input campaign.CreateInput
	if !httputil.Decode(w, r, &input) {
		return
	}

	c, err := h.campaigns.Create(r.Context(), input)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.Created(w, c)
}

// UpdateCampaign rewrites a draft or scheduled campaign. The RSS worker and
// the dashboard both produce drafts that get edited here before sending.
func (h *Handlers) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var input campaign.CreateInput
	if !httputil.Decode(w, r, &input) {
		return
	}

	c, err := h.campaigns.Update(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		if errors.Is(err, campaign.ErrNotFound) || errors.Is(err, campaign.ErrInvalidTransition) {
			campaignError(w, err)
			return
		}
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.OK(w, c)
}

// GetCampaign returns one campaign.
func (h *Handlers) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		campaignError(w, err)
		return
	}
	httputil.OK(w, c)
}

// SendCampaign builds the audience and runs one dispatch batch.
func (h *Handlers) SendCampaign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TagIDs []string `json:"tag_ids"`
	}
	// Body is optional; an empty body means no tag filter.
	if r.ContentLength > 0 && !httputil.Decode(w, r, &req) {
		return
	}

	result, err := h.campaigns.Send(r.Context(), chi.URLParam(r, "id"), req.TagIDs)
	if err != nil {
		campaignError(w, err)
		return
	}
	httputil.OK(w, result)
}

// PauseCampaign stops further dispatch batches.
func (h *Handlers) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.campaigns.Pause(r.Context(), chi.URLParam(r, "id")); err != nil {
		campaignError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": string(domain.CampaignPaused)})
}

// ResumeCampaign puts a paused campaign back into sending.
func (h *Handlers) ResumeCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.campaigns.Resume(r.Context(), chi.URLParam(r, "id")); err != nil {
		campaignError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": string(domain.CampaignSending)})
}

// CancelCampaign terminally stops a campaign.
func (h *Handlers) CancelCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.campaigns.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		campaignError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"status": string(domain.CampaignCancelled)})
}

// GetCampaignLogs returns the per-recipient delivery rows.
func (h *Handlers) GetCampaignLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.campaigns.Logs(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"logs": logs})
}

// TestSendCampaign renders the campaign against sample variables and sends
// it to one address.
func (h *Handlers) TestSendCampaign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		To string `json:"to"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	if _, err := mail.ParseAddress(req.To); err != nil {
		httputil.BadRequest(w, "invalid recipient address")
		return
	}

	if err := h.campaigns.TestSend(r.Context(), chi.URLParam(r, "id"), req.To); err != nil {
		campaignError(w, err)
		return
	}
	httputil.OK(w, map[string]string{"sent_to": req.To})
}
