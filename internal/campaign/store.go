// Package campaign implements campaign lifecycle management, audience
// building, and the dispatch loop that drains queued recipients through the
// email delivery provider.
package campaign

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/velora/crm-server/internal/domain"
)

// Store provides database operations for campaigns and their send logs.
type Store struct {
	db *sql.DB
}

// NewStore creates a new campaign store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const campaignColumns = `id, name, subject, from_name, from_email, body_html,
	segment_id, template_id, status, scheduled_at, frequency_cap,
	total_recipients, sent_count, failed_count, sent_at, created_at, updated_at`

// ==========================================
// CAMPAIGN OPERATIONS
// ==========================================

// CreateCampaign persists a new campaign.
func (s *Store) CreateCampaign(ctx context.Context, c *domain.Campaign) error {
	c.ID = uuid.New().String()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crm_campaigns (id, name, subject, from_name, from_email, body_html,
			segment_id, template_id, status, scheduled_at, frequency_cap, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		c.ID, c.Name, c.Subject, c.FromName, c.FromEmail, c.BodyHTML,
		c.SegmentID, c.TemplateID, c.Status, c.ScheduledAt, c.FrequencyCap,
		c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

// UpdateCampaign rewrites a campaign's editable fields. The caller is
// responsible for checking the campaign is still editable; the WHERE guard
// only protects against racing a concurrent dispatch start.
func (s *Store) UpdateCampaign(ctx context.Context, c *domain.Campaign) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE crm_campaigns SET name = $1, subject = $2, from_name = $3, from_email = $4,
			body_html = $5, segment_id = $6, template_id = $7, scheduled_at = $8,
			frequency_cap = $9, status = $10, updated_at = NOW()
		WHERE id = $11 AND status IN ($12, $13)`,
		c.Name, c.Subject, c.FromName, c.FromEmail, c.BodyHTML,
		c.SegmentID, c.TemplateID, c.ScheduledAt, c.FrequencyCap, c.Status,
		c.ID, domain.CampaignDraft, domain.CampaignScheduled)
	if err != nil {
		return false, fmt.Errorf("update campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// GetCampaign returns one campaign, or (nil, nil) when not found.
func (s *Store) GetCampaign(ctx context.Context, id string) (*domain.Campaign, error) {
	query := fmt.Sprintf(`SELECT %s FROM crm_campaigns WHERE id = $1`, campaignColumns)
	c, err := scanCampaign(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

// ListCampaigns returns campaigns newest first, optionally restricted by
// status ("" means all).
func (s *Store) ListCampaigns(ctx context.Context, status domain.CampaignStatus) ([]domain.Campaign, error) {
	query := fmt.Sprintf(`SELECT %s FROM crm_campaigns`, campaignColumns)
	args := []interface{}{}
	if status != "" {
		query += " WHERE status = $1"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// DueCampaigns returns scheduled campaigns whose scheduled_at has passed.
func (s *Store) DueCampaigns(ctx context.Context, now time.Time) ([]domain.Campaign, error) {
	query := fmt.Sprintf(`SELECT %s FROM crm_campaigns
		WHERE status = $1 AND scheduled_at IS NOT NULL AND scheduled_at <= $2
		ORDER BY scheduled_at`, campaignColumns)
	rows, err := s.db.QueryContext(ctx, query, domain.CampaignScheduled, now)
	if err != nil {
		return nil, fmt.Errorf("due campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// SetStatus moves a campaign to a new status, guarded by the set of
// statuses the move is legal from. Returns false when the row was in none
// of the allowed states (or does not exist).
func (s *Store) SetStatus(ctx context.Context, id string, to domain.CampaignStatus, from ...domain.CampaignStatus) (bool, error) {
	allowed := make([]string, len(from))
	for i, st := range from {
		allowed[i] = string(st)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE crm_campaigns SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = ANY($3)`,
		to, id, pq.Array(allowed))
	if err != nil {
		return false, fmt.Errorf("set campaign status: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// MarkCampaignSent finalizes a fully drained campaign.
func (s *Store) MarkCampaignSent(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE crm_campaigns SET status = $1, sent_at = $2, updated_at = NOW() WHERE id = $3`,
		domain.CampaignSent, at, id)
	if err != nil {
		return fmt.Errorf("mark campaign sent: %w", err)
	}
	return nil
}

// RefreshCampaignStats recomputes the cached counters from the log table.
func (s *Store) RefreshCampaignStats(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE crm_campaigns SET
			total_recipients = (SELECT COUNT(*) FROM crm_campaign_logs WHERE campaign_id = $1 AND status != 'suppressed'),
			sent_count = (SELECT COUNT(*) FROM crm_campaign_logs WHERE campaign_id = $1 AND status IN ('sent','delivered','opened','clicked')),
			failed_count = (SELECT COUNT(*) FROM crm_campaign_logs WHERE campaign_id = $1 AND status IN ('failed','bounced')),
			updated_at = NOW()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("refresh campaign stats: %w", err)
	}
	return nil
}

// ==========================================
// LOG OPERATIONS
// ==========================================

// InsertLogs bulk-inserts enqueue results inside one transaction.
func (s *Store) InsertLogs(ctx context.Context, logs []domain.CampaignLog) error {
	if len(logs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO crm_campaign_logs (id, campaign_id, customer_id, email, status, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return fmt.Errorf("prepare log insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for i := range logs {
		l := &logs[i]
		if l.ID == "" {
			l.ID = uuid.New().String()
		}
		l.CreatedAt = now
		meta, err := json.Marshal(l.Metadata)
		if err != nil {
			return fmt.Errorf("marshal log metadata: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, l.ID, l.CampaignID, l.CustomerID, l.Email, l.Status, meta, now); err != nil {
			return fmt.Errorf("insert log: %w", err)
		}
	}
	return tx.Commit()
}

// QueuedLogs returns up to limit queued rows for a campaign in enqueue
// order.
func (s *Store) QueuedLogs(ctx context.Context, campaignID string, limit int) ([]domain.CampaignLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, campaign_id, customer_id, email, status, metadata, message_id, error_message, sent_at, created_at
		FROM crm_campaign_logs
		WHERE campaign_id = $1 AND status = $2
		ORDER BY created_at, id
		LIMIT $3`, campaignID, domain.LogQueued, limit)
	if err != nil {
		return nil, fmt.Errorf("queued logs: %w", err)
	}
	defer rows.Close()

	var out []domain.CampaignLog
	for rows.Next() {
		var l domain.CampaignLog
		var meta []byte
		var messageID, errMsg sql.NullString
		if err := rows.Scan(&l.ID, &l.CampaignID, &l.CustomerID, &l.Email, &l.Status,
			&meta, &messageID, &errMsg, &l.SentAt, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &l.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal log metadata: %w", err)
			}
		}
		l.MessageID = messageID.String
		l.ErrorMessage = errMsg.String
		out = append(out, l)
	}
	return out, rows.Err()
}

// MarkLogSent records a successful send.
func (s *Store) MarkLogSent(ctx context.Context, logID, messageID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE crm_campaign_logs SET status = $1, message_id = $2, sent_at = NOW()
		WHERE id = $3`, domain.LogSent, messageID, logID)
	if err != nil {
		return fmt.Errorf("mark log sent: %w", err)
	}
	return nil
}

// MarkLogFailed records a failed send.
func (s *Store) MarkLogFailed(ctx context.Context, logID, errMsg string) error {
	if len(errMsg) > 500 {
		errMsg = errMsg[:500]
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE crm_campaign_logs SET status = $1, error_message = $2
		WHERE id = $3`, domain.LogFailed, errMsg, logID)
	if err != nil {
		return fmt.Errorf("mark log failed: %w", err)
	}
	return nil
}

// CountQueued returns how many rows are still queued for a campaign.
func (s *Store) CountQueued(ctx context.Context, campaignID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM crm_campaign_logs WHERE campaign_id = $1 AND status = $2`,
		campaignID, domain.LogQueued).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count queued: %w", err)
	}
	return n, nil
}

// RecentSendCount returns how many campaign emails a customer received
// within the lookback window, for frequency-cap checks at enqueue time.
func (s *Store) RecentSendCount(ctx context.Context, customerID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM crm_campaign_logs
		WHERE customer_id = $1 AND sent_at >= $2
		AND status IN ('sent','delivered','opened','clicked')`,
		customerID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("recent send count: %w", err)
	}
	return n, nil
}

// CampaignLogs returns all log rows for one campaign, newest first.
func (s *Store) CampaignLogs(ctx context.Context, campaignID string) ([]domain.CampaignLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, campaign_id, customer_id, email, status, metadata, message_id, error_message, sent_at, created_at
		FROM crm_campaign_logs WHERE campaign_id = $1 ORDER BY created_at DESC`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("campaign logs: %w", err)
	}
	defer rows.Close()

	var out []domain.CampaignLog
	for rows.Next() {
		var l domain.CampaignLog
		var meta []byte
		var messageID, errMsg sql.NullString
		if err := rows.Scan(&l.ID, &l.CampaignID, &l.CustomerID, &l.Email, &l.Status,
			&meta, &messageID, &errMsg, &l.SentAt, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &l.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal log metadata: %w", err)
			}
		}
		l.MessageID = messageID.String
		l.ErrorMessage = errMsg.String
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanCampaign(row interface{ Scan(...interface{}) error }) (*domain.Campaign, error) {
	var c domain.Campaign
	err := row.Scan(&c.ID, &c.Name, &c.Subject, &c.FromName, &c.FromEmail, &c.BodyHTML,
		&c.SegmentID, &c.TemplateID, &c.Status, &c.ScheduledAt, &c.FrequencyCap,
		&c.TotalRecipients, &c.SentCount, &c.FailedCount, &c.SentAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
