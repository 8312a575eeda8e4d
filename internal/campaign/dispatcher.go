package campaign

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/velora/crm-server/internal/domain"
	"github.com/velora/crm-server/internal/pkg/logger"
	"github.com/velora/crm-server/internal/resend"
	"github.com/velora/crm-server/internal/template"
)

const (
	// DefaultBatchSize caps how many queued rows one dispatch drains.
	DefaultBatchSize = 100
	// DefaultPacing is the fixed delay between individual sends.
	DefaultPacing = 100 * time.Millisecond
)

// Repository is the persistence surface the dispatcher needs. *Store
// satisfies it; tests use an in-memory double.
type Repository interface {
	GetCampaign(ctx context.Context, id string) (*domain.Campaign, error)
	MarkCampaignSent(ctx context.Context, id string, at time.Time) error
	RefreshCampaignStats(ctx context.Context, id string) error
	QueuedLogs(ctx context.Context, campaignID string, limit int) ([]domain.CampaignLog, error)
	MarkLogSent(ctx context.Context, logID, messageID string) error
	MarkLogFailed(ctx context.Context, logID, errMsg string) error
	CountQueued(ctx context.Context, campaignID string) (int, error)
}

// Sender submits one email to the delivery provider.
type Sender interface {
	Send(ctx context.Context, req resend.SendRequest) (*resend.SendResponse, error)
}

// Lock is a per-campaign mutual exclusion handle.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LockFactory builds the dispatch lock for one campaign. A nil factory
// disables locking.
type LockFactory func(campaignID string) Lock

// Result summarizes one dispatch batch.
type Result struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Dispatcher drains queued campaign logs through the delivery provider,
// one message at a time with fixed pacing.
type Dispatcher struct {
	repo      Repository
	sender    Sender
	engine    *template.Engine
	locks     LockFactory
	batchSize int
	pacing    time.Duration
}

// NewDispatcher creates a dispatcher with the default batch size and pacing.
func NewDispatcher(repo Repository, sender Sender, engine *template.Engine, locks LockFactory) *Dispatcher {
	return &Dispatcher{
		repo:      repo,
		sender:    sender,
		engine:    engine,
		locks:     locks,
		batchSize: DefaultBatchSize,
		pacing:    DefaultPacing,
	}
}

// SetBatchSize overrides the batch cap (used by config wiring and tests).
func (d *Dispatcher) SetBatchSize(n int) {
	if n > 0 {
		d.batchSize = n
	}
}

// SetPacing overrides the inter-send delay (tests set it to zero).
func (d *Dispatcher) SetPacing(p time.Duration) {
	d.pacing = p
}

// Dispatch processes one batch of queued recipients for a campaign.
//
// Each row is rendered from its frozen metadata snapshot and sent
// individually; a failed send marks only that row failed and the loop
// continues. When the batch leaves no queued rows behind, the campaign is
// finalized as sent with sent_at. If queued rows remain (batch cap hit),
// the campaign status is left untouched so the scheduler picks it up again.
func (d *Dispatcher) Dispatch(ctx context.Context, campaignID string) (*Result, error) {
	if d.locks != nil {
		lock := d.locks(campaignID)
		acquired, err := lock.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire dispatch lock: %w", err)
		}
		if !acquired {
			return nil, ErrDispatchInProgress
		}
		defer func() {
			if err := lock.Release(context.Background()); err != nil {
				logger.Warn("dispatch lock release failed", "campaign_id", campaignID, "error", err.Error())
			}
		}()
	}

	c, err := d.repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotFound
	}
	if !c.CanSend() {
		return nil, ErrNotSendable
	}

	logs, err := d.repo.QueuedLogs(ctx, campaignID, d.batchSize)
	if err != nil {
		return nil, fmt.Errorf("load queued logs: %w", err)
	}

	result := &Result{}
	for i := range logs {
		if ctx.Err() != nil {
			// Remaining rows stay queued; the next dispatch resumes.
			break
		}
		row := &logs[i]
		if err := d.sendOne(ctx, c, row); err != nil {
			result.Failed++
			if markErr := d.repo.MarkLogFailed(ctx, row.ID, err.Error()); markErr != nil {
				logger.Error("mark log failed errored", "log_id", row.ID, "error", markErr.Error())
			}
			logger.Warn("campaign send failed",
				"campaign_id", campaignID, "email", row.Email, "error", err.Error())
		} else {
			result.Sent++
		}

		time.Sleep(d.pacing)
	}

	if err := d.repo.RefreshCampaignStats(ctx, campaignID); err != nil {
		logger.Error("refresh campaign stats failed", "campaign_id", campaignID, "error", err.Error())
	}

	remaining, err := d.repo.CountQueued(ctx, campaignID)
	if err != nil {
		return result, fmt.Errorf("count remaining: %w", err)
	}
	if remaining == 0 {
		if err := d.repo.MarkCampaignSent(ctx, campaignID, time.Now()); err != nil {
			return result, fmt.Errorf("finalize campaign: %w", err)
		}
		logger.Info("campaign fully dispatched",
			"campaign_id", campaignID, "sent", result.Sent, "failed", result.Failed)
	}

	return result, nil
}

func (d *Dispatcher) sendOne(ctx context.Context, c *domain.Campaign, row *domain.CampaignLog) error {
	subject, err := d.engine.Render(c.ID+":subject", c.Subject, row.Metadata)
	if err != nil {
		return fmt.Errorf("render subject: %w", err)
	}
	body, err := d.engine.Render(c.ID+":body", c.BodyHTML, row.Metadata)
	if err != nil {
		return fmt.Errorf("render body: %w", err)
	}

	resp, err := d.sender.Send(ctx, resend.SendRequest{
		From:    fmt.Sprintf("%s <%s>", c.FromName, c.FromEmail),
		To:      []string{row.Email},
		Subject: subject,
		HTML:    body,
		Text:    stripHTML(body),
		Headers: map[string]string{
			"List-Unsubscribe":      fmt.Sprintf("<mailto:unsubscribe@%s>", emailDomain(c.FromEmail)),
			"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
		},
		Tags: []resend.Tag{{Name: "campaign_id", Value: c.ID}},
	})
	if err != nil {
		return err
	}

	if err := d.repo.MarkLogSent(ctx, row.ID, resp.ID); err != nil {
		// The mail is out; a bookkeeping failure must not flip the row
		// to failed and risk a duplicate send later.
		logger.Error("mark log sent errored", "log_id", row.ID, "error", err.Error())
	}
	return nil
}

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// stripHTML produces the plain-text fallback body.
func stripHTML(s string) string {
	s = htmlTagPattern.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

func emailDomain(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 {
		return email[i+1:]
	}
	return email
}
