package crm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/velora/crm-server/internal/domain"
)

// ==========================================
// TAG OPERATIONS
// ==========================================

// CreateTag creates a custom tag.
func (s *Store) CreateTag(ctx context.Context, tag *domain.Tag) error {
	tag.ID = uuid.New().String()
	tag.CreatedAt = time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO crm_tags (id, name, color, created_at) VALUES ($1, $2, $3, $4)`,
		tag.ID, tag.Name, tag.Color, tag.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert tag: %w", err)
	}
	return nil
}

// ListTags returns all tags with their member counts, ordered by name.
func (s *Store) ListTags(ctx context.Context) ([]domain.Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.color, t.created_at, COUNT(ct.customer_id)
		FROM crm_tags t
		LEFT JOIN crm_customer_tags ct ON ct.tag_id = t.id
		GROUP BY t.id, t.name, t.color, t.created_at
		ORDER BY t.name`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var out []domain.Tag
	for rows.Next() {
		var t domain.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Color, &t.CreatedAt, &t.CustomerCount); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteTag removes a tag and its assignments.
func (s *Store) DeleteTag(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM crm_customer_tags WHERE tag_id = $1`, id); err != nil {
		return fmt.Errorf("delete tag assignments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM crm_tags WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	return tx.Commit()
}

// AssignTag tags a customer. Re-assigning is a no-op.
func (s *Store) AssignTag(ctx context.Context, customerID, tagID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crm_customer_tags (customer_id, tag_id, created_at)
		VALUES ($1, $2, NOW()) ON CONFLICT DO NOTHING`,
		customerID, tagID)
	if err != nil {
		return fmt.Errorf("assign tag: %w", err)
	}
	return nil
}

// UnassignTag removes a tag from a customer.
func (s *Store) UnassignTag(ctx context.Context, customerID, tagID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM crm_customer_tags WHERE customer_id = $1 AND tag_id = $2`,
		customerID, tagID)
	if err != nil {
		return fmt.Errorf("unassign tag: %w", err)
	}
	return nil
}

// TagMembers returns the id set of customers carrying any of the given
// tags. Filter compilation keeps tags out of the condition tree; callers
// intersect this set with the evaluator's result instead.
func (s *Store) TagMembers(ctx context.Context, tagIDs []string) (map[string]struct{}, error) {
	if len(tagIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT customer_id FROM crm_customer_tags WHERE tag_id = ANY($1)`,
		pq.Array(tagIDs))
	if err != nil {
		return nil, fmt.Errorf("tag members: %w", err)
	}
	defer rows.Close()

	members := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tag member: %w", err)
		}
		members[id] = struct{}{}
	}
	return members, rows.Err()
}
