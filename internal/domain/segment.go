package domain

import (
	"encoding/json"
	"time"
)

// Segment is a saved, named filter definition over the customer population.
// FiltersJSON holds the serialized FilterGroup; CustomerCount is a cached
// preview count refreshed on save. Segments are soft-deleted via IsActive.
type Segment struct {
	ID            string          `json:"id" db:"id"`
	Name          string          `json:"name" db:"name"`
	Description   string          `json:"description" db:"description"`
	FiltersJSON   json.RawMessage `json:"filters_json" db:"filters_json"`
	CustomerCount int             `json:"customer_count" db:"customer_count"`
	IsActive      bool            `json:"is_active" db:"is_active"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// EmailTemplate is a locally stored template, optionally mirrored from the
// email provider's template store by the one-way sync.
type EmailTemplate struct {
	ID         string    `json:"id" db:"id"`
	ProviderID string    `json:"provider_id" db:"provider_id"`
	Name       string    `json:"name" db:"name"`
	Subject    string    `json:"subject" db:"subject"`
	BodyHTML   string    `json:"body_html" db:"body_html"`
	Variables  []string  `json:"variables" db:"variables"`
	SyncedAt   *time.Time `json:"synced_at" db:"synced_at"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// NavigationStat is one row of the navigation analytics view: aggregated
// page-view counts per path over a time window.
type NavigationStat struct {
	Path        string  `json:"path"`
	Views       int64   `json:"views"`
	UniqueUsers int64   `json:"unique_users"`
	AvgSeconds  float64 `json:"avg_seconds"`
}
