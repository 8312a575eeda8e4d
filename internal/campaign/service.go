package campaign

import (
	"context"
	"fmt"
	"time"

	"github.com/velora/crm-server/internal/domain"
	"github.com/velora/crm-server/internal/pkg/logger"
	"github.com/velora/crm-server/internal/resend"
)

// Service implements campaign business logic: lifecycle transitions,
// audience building, and dispatch triggering.
type Service struct {
	store      *Store
	enqueuer   *Enqueuer
	dispatcher *Dispatcher
	sender     Sender
}

// NewService creates a campaign service.
func NewService(store *Store, enqueuer *Enqueuer, dispatcher *Dispatcher, sender Sender) *Service {
	return &Service{store: store, enqueuer: enqueuer, dispatcher: dispatcher, sender: sender}
}

// CreateInput holds the fields for creating a new campaign.
type CreateInput struct {
	Name         string     `json:"name"`
	Subject      string     `json:"subject"`
	FromName     string     `json:"from_name"`
	FromEmail    string     `json:"from_email"`
	BodyHTML     string     `json:"body_html"`
	SegmentID    string     `json:"segment_id"`
	TemplateID   string     `json:"template_id"`
	ScheduledAt  *time.Time `json:"scheduled_at"`
	FrequencyCap *int       `json:"frequency_cap"`
}

// Create validates and persists a new campaign. With a schedule it starts
// out scheduled, otherwise draft.
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.Campaign, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if input.Subject == "" {
		return nil, fmt.Errorf("subject is required")
	}
	if input.FromEmail == "" {
		return nil, fmt.Errorf("from_email is required")
	}
	if input.ScheduledAt != nil && input.ScheduledAt.Before(time.Now()) {
		return nil, fmt.Errorf("scheduled_at is in the past")
	}
	if input.FrequencyCap != nil && *input.FrequencyCap < 1 {
		return nil, fmt.Errorf("frequency_cap must be at least 1")
	}

	c := &domain.Campaign{
		Name:         input.Name,
		Subject:      input.Subject,
		FromName:     input.FromName,
		FromEmail:    input.FromEmail,
		BodyHTML:     input.BodyHTML,
		ScheduledAt:  input.ScheduledAt,
		FrequencyCap: input.FrequencyCap,
		Status:       domain.CampaignDraft,
	}
	if input.SegmentID != "" {
		c.SegmentID = &input.SegmentID
	}
	if input.TemplateID != "" {
		c.TemplateID = &input.TemplateID
	}
	if input.ScheduledAt != nil {
		c.Status = domain.CampaignScheduled
	}

	if err := s.store.CreateCampaign(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Update rewrites an editable campaign. Only drafts and scheduled campaigns
// can change; anything already sending or finished is immutable.
func (s *Service) Update(ctx context.Context, id string, input CreateInput) (*domain.Campaign, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != domain.CampaignDraft && c.Status != domain.CampaignScheduled {
		return nil, ErrInvalidTransition
	}
	if input.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if input.Subject == "" {
		return nil, fmt.Errorf("subject is required")
	}
	if input.FromEmail == "" {
		return nil, fmt.Errorf("from_email is required")
	}
	if input.ScheduledAt != nil && input.ScheduledAt.Before(time.Now()) {
		return nil, fmt.Errorf("scheduled_at is in the past")
	}
	if input.FrequencyCap != nil && *input.FrequencyCap < 1 {
		return nil, fmt.Errorf("frequency_cap must be at least 1")
	}

	c.Name = input.Name
	c.Subject = input.Subject
	c.FromName = input.FromName
	c.FromEmail = input.FromEmail
	c.BodyHTML = input.BodyHTML
	c.ScheduledAt = input.ScheduledAt
	c.FrequencyCap = input.FrequencyCap
	c.SegmentID = nil
	if input.SegmentID != "" {
		c.SegmentID = &input.SegmentID
	}
	c.TemplateID = nil
	if input.TemplateID != "" {
		c.TemplateID = &input.TemplateID
	}
	c.Status = domain.CampaignDraft
	if input.ScheduledAt != nil {
		c.Status = domain.CampaignScheduled
	}

	ok, err := s.store.UpdateCampaign(ctx, c)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidTransition
	}
	return c, nil
}

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	c, err := s.store.GetCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotFound
	}
	return c, nil
}

// List returns campaigns, optionally restricted by status.
func (s *Service) List(ctx context.Context, status domain.CampaignStatus) ([]domain.Campaign, error) {
	return s.store.ListCampaigns(ctx, status)
}

// Logs returns the per-recipient rows for a campaign.
func (s *Service) Logs(ctx context.Context, id string) ([]domain.CampaignLog, error) {
	return s.store.CampaignLogs(ctx, id)
}

// Send builds the audience (when not yet built), moves the campaign to
// sending, and runs one dispatch batch. The scheduler drains the rest.
func (s *Service) Send(ctx context.Context, id string, tagIDs []string) (*Result, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.CanSend() {
		return nil, ErrNotSendable
	}

	queued, err := s.store.CountQueued(ctx, id)
	if err != nil {
		return nil, err
	}
	if queued == 0 && c.TotalRecipients == 0 {
		if _, err := s.enqueuer.Enqueue(ctx, c, tagIDs); err != nil {
			return nil, err
		}
	}

	if _, err := s.store.SetStatus(ctx, id, domain.CampaignSending,
		domain.CampaignDraft, domain.CampaignScheduled, domain.CampaignSending); err != nil {
		return nil, err
	}

	return s.dispatcher.Dispatch(ctx, id)
}

// Pause stops further dispatch batches for a sending or scheduled campaign.
// Rows already handed to the provider are not recalled.
func (s *Service) Pause(ctx context.Context, id string) error {
	ok, err := s.store.SetStatus(ctx, id, domain.CampaignPaused,
		domain.CampaignScheduled, domain.CampaignSending)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidTransition
	}
	return nil
}

// Resume puts a paused campaign back into sending.
func (s *Service) Resume(ctx context.Context, id string) error {
	ok, err := s.store.SetStatus(ctx, id, domain.CampaignSending, domain.CampaignPaused)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidTransition
	}
	return nil
}

// Cancel terminally stops a campaign that has not finished.
func (s *Service) Cancel(ctx context.Context, id string) error {
	ok, err := s.store.SetStatus(ctx, id, domain.CampaignCancelled,
		domain.CampaignDraft, domain.CampaignScheduled, domain.CampaignSending, domain.CampaignPaused)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidTransition
	}
	return nil
}

// TestSend renders the campaign against sample variables and sends it to a
// single address, without touching logs or status.
func (s *Service) TestSend(ctx context.Context, id, to string) error {
	c, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	vars := map[string]any{
		"nome":              "Cliente Teste",
		"email":             to,
		"dias_sem_comprar":  7,
		"valor_total_gasto": 350.0,
		"ticket_medio":      117.0,
		"numero_pedidos":    3,
	}
	subject, err := s.dispatcher.engine.Render("", c.Subject, vars)
	if err != nil {
		return err
	}
	body, err := s.dispatcher.engine.Render("", c.BodyHTML, vars)
	if err != nil {
		return err
	}

	_, err = s.sender.Send(ctx, resend.SendRequest{
		From:    fmt.Sprintf("%s <%s>", c.FromName, c.FromEmail),
		To:      []string{to},
		Subject: "[TESTE] " + subject,
		HTML:    body,
		Text:    stripHTML(body),
	})
	if err != nil {
		return err
	}
	logger.Info("test send delivered", "campaign_id", id, "email", to)
	return nil
}
