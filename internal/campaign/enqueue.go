package campaign

import (
	"context"
	"fmt"
	"time"

	"github.com/velora/crm-server/internal/domain"
	"github.com/velora/crm-server/internal/pkg/logger"
	"github.com/velora/crm-server/internal/segment"
)

// FrequencyCapWindow is the lookback window for the per-recipient send cap.
const FrequencyCapWindow = 7 * 24 * time.Hour

// AudienceSource resolves a campaign's recipient set. *crm.Store satisfies
// it.
type AudienceSource interface {
	// SegmentByID must also resolve archived segments: a campaign keeps
	// its audience definition even after the segment leaves the pickers.
	SegmentByID(ctx context.Context, id string) (*domain.Segment, error)
	FilterCustomers(ctx context.Context, group *segment.FilterGroup, tagIDs []string) ([]domain.Customer, error)
}

// EnqueueRepository is the persistence surface for audience building.
type EnqueueRepository interface {
	InsertLogs(ctx context.Context, logs []domain.CampaignLog) error
	RecentSendCount(ctx context.Context, customerID string, since time.Time) (int, error)
	RefreshCampaignStats(ctx context.Context, id string) error
}

// EnqueueResult reports what audience building produced.
type EnqueueResult struct {
	Queued     int `json:"queued"`
	Suppressed int `json:"suppressed"`
}

// Enqueuer freezes a campaign's audience into queued log rows.
type Enqueuer struct {
	repo     EnqueueRepository
	audience AudienceSource
}

// NewEnqueuer creates an audience builder.
func NewEnqueuer(repo EnqueueRepository, audience AudienceSource) *Enqueuer {
	return &Enqueuer{repo: repo, audience: audience}
}

// Enqueue resolves the campaign's segment to its current eligible match set
// and inserts one log row per recipient, snapshotting the personalization
// variables so later customer edits cannot change an already-committed
// send. The frequency cap is enforced here, not in the dispatch loop:
// capped recipients get a suppressed row for auditability and are never
// queued.
func (e *Enqueuer) Enqueue(ctx context.Context, c *domain.Campaign, tagIDs []string) (*EnqueueResult, error) {
	var group *segment.FilterGroup
	if c.SegmentID != nil {
		seg, err := e.audience.SegmentByID(ctx, *c.SegmentID)
		if err != nil {
			return nil, err
		}
		if seg == nil {
			return nil, fmt.Errorf("segment %s not found", *c.SegmentID)
		}
		group, err = segment.ParseGroup(seg.FiltersJSON)
		if err != nil {
			return nil, err
		}
	}

	customers, err := e.audience.FilterCustomers(ctx, group, tagIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve audience: %w", err)
	}
	if len(customers) == 0 {
		return nil, ErrEmptyAudience
	}

	capSince := time.Now().Add(-FrequencyCapWindow)
	result := &EnqueueResult{}
	logs := make([]domain.CampaignLog, 0, len(customers))
	seen := make(map[string]struct{}, len(customers))
	for i := range customers {
		cust := &customers[i]

		// A customer can reach the audience twice when a segment filter and
		// a tag override both match them; one log row per recipient.
		if _, dup := seen[cust.ID]; dup {
			continue
		}
		seen[cust.ID] = struct{}{}

		status := domain.LogQueued
		if c.FrequencyCap != nil {
			recent, err := e.repo.RecentSendCount(ctx, cust.ID, capSince)
			if err != nil {
				return nil, fmt.Errorf("frequency cap check: %w", err)
			}
			if recent >= *c.FrequencyCap {
				status = domain.LogSuppressed
			}
		}

		logs = append(logs, domain.CampaignLog{
			CampaignID: c.ID,
			CustomerID: cust.ID,
			Email:      cust.Email,
			Status:     status,
			Metadata:   snapshotVars(cust),
		})
		if status == domain.LogQueued {
			result.Queued++
		} else {
			result.Suppressed++
		}
	}

	if err := e.repo.InsertLogs(ctx, logs); err != nil {
		return nil, fmt.Errorf("insert logs: %w", err)
	}
	if err := e.repo.RefreshCampaignStats(ctx, c.ID); err != nil {
		return nil, fmt.Errorf("refresh stats: %w", err)
	}

	logger.Info("campaign audience enqueued",
		"campaign_id", c.ID, "queued", result.Queued, "suppressed", result.Suppressed)
	return result, nil
}

// snapshotVars captures the personalization variables templates may
// reference.
func snapshotVars(c *domain.Customer) map[string]any {
	return map[string]any{
		"nome":              c.Name,
		"email":             c.Email,
		"dias_sem_comprar":  c.DaysSinceLastOrder,
		"valor_total_gasto": c.TotalSpent,
		"ticket_medio":      c.AverageTicket,
		"numero_pedidos":    c.OrderCount,
	}
}
