package domain

import "time"

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignSent      CampaignStatus = "sent"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCancelled CampaignStatus = "cancelled"
)

// Campaign represents an email broadcast tied to a recipient list,
// a subject/body and an optional schedule.
type Campaign struct {
	ID           string         `json:"id" db:"id"`
	Name         string         `json:"name" db:"name"`
	Subject      string         `json:"subject" db:"subject"`
	FromName     string         `json:"from_name" db:"from_name"`
	FromEmail    string         `json:"from_email" db:"from_email"`
	BodyHTML     string         `json:"body_html" db:"body_html"`
	SegmentID    *string        `json:"segment_id" db:"segment_id"`
	TemplateID   *string        `json:"template_id" db:"template_id"`
	Status       CampaignStatus `json:"status" db:"status"`
	ScheduledAt  *time.Time     `json:"scheduled_at" db:"scheduled_at"`
	FrequencyCap *int           `json:"frequency_cap" db:"frequency_cap"`

	// Stats (read-only, maintained by the dispatcher)
	TotalRecipients int `json:"total_recipients" db:"total_recipients"`
	SentCount       int `json:"sent_count" db:"sent_count"`
	FailedCount     int `json:"failed_count" db:"failed_count"`

	SentAt    *time.Time `json:"sent_at" db:"sent_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignSent || c.Status == CampaignCancelled
}

// CanSend reports whether a dispatch may be started for this campaign.
func (c *Campaign) CanSend() bool {
	return c.Status == CampaignDraft || c.Status == CampaignScheduled || c.Status == CampaignSending
}

// LogStatus enumerates the lifecycle of a single (campaign, recipient) row.
type LogStatus string

const (
	LogQueued     LogStatus = "queued"
	LogSent       LogStatus = "sent"
	LogDelivered  LogStatus = "delivered"
	LogOpened     LogStatus = "opened"
	LogClicked    LogStatus = "clicked"
	LogBounced    LogStatus = "bounced"
	LogFailed     LogStatus = "failed"
	LogSuppressed LogStatus = "suppressed"
)

// CampaignLog is one row per (campaign, recipient) pair. Metadata is the
// personalization snapshot captured at enqueue time; dispatch renders from
// it rather than from live customer data.
type CampaignLog struct {
	ID           string         `json:"id" db:"id"`
	CampaignID   string         `json:"campaign_id" db:"campaign_id"`
	CustomerID   string         `json:"customer_id" db:"customer_id"`
	Email        string         `json:"email" db:"email"`
	Status       LogStatus      `json:"status" db:"status"`
	Metadata     map[string]any `json:"metadata" db:"metadata"`
	MessageID    string         `json:"message_id" db:"message_id"`
	ErrorMessage string         `json:"error_message" db:"error_message"`
	SentAt       *time.Time     `json:"sent_at" db:"sent_at"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
}
