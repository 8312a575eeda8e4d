package template

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/velora/crm-server/internal/domain"
)

// Store provides database operations for locally mirrored templates.
type Store struct {
	db *sql.DB
}

// NewStore creates a new template store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Get returns one template, or (nil, nil) when not found.
func (s *Store) Get(ctx context.Context, id string) (*domain.EmailTemplate, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, provider_id, name, subject, body_html, variables, synced_at, created_at, updated_at
		FROM crm_templates WHERE id = $1`, id)
	tpl, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return tpl, nil
}

// List returns all templates ordered by name.
func (s *Store) List(ctx context.Context) ([]domain.EmailTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, provider_id, name, subject, body_html, variables, synced_at, created_at, updated_at
		FROM crm_templates ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []domain.EmailTemplate
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, *tpl)
	}
	return out, rows.Err()
}

// UpsertFromProvider inserts or refreshes a provider-mirrored template,
// keyed by provider_id. Local edits lose to the provider copy; the sync is
// one-way.
func (s *Store) UpsertFromProvider(ctx context.Context, tpl *domain.EmailTemplate) error {
	now := time.Now()
	if tpl.ID == "" {
		tpl.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crm_templates (id, provider_id, name, subject, body_html, variables, synced_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (provider_id) DO UPDATE SET
			name = EXCLUDED.name,
			subject = EXCLUDED.subject,
			body_html = EXCLUDED.body_html,
			variables = EXCLUDED.variables,
			synced_at = EXCLUDED.synced_at,
			updated_at = EXCLUDED.updated_at`,
		tpl.ID, tpl.ProviderID, tpl.Name, tpl.Subject, tpl.BodyHTML,
		pq.Array(tpl.Variables), now, now, now)
	if err != nil {
		return fmt.Errorf("upsert template: %w", err)
	}
	tpl.SyncedAt = &now
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTemplate(row rowScanner) (*domain.EmailTemplate, error) {
	var tpl domain.EmailTemplate
	var vars pq.StringArray
	err := row.Scan(&tpl.ID, &tpl.ProviderID, &tpl.Name, &tpl.Subject, &tpl.BodyHTML,
		&vars, &tpl.SyncedAt, &tpl.CreatedAt, &tpl.UpdatedAt)
	if err != nil {
		return nil, err
	}
	tpl.Variables = []string(vars)
	return &tpl, nil
}
