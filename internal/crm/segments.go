package crm

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/velora/crm-server/internal/domain"
	"github.com/velora/crm-server/internal/segment"
)

// ==========================================
// SEGMENT OPERATIONS
// ==========================================

// CreateSegment persists a named filter tree. The tree is validated before
// it is stored so filters_json never holds an unparseable payload.
func (s *Store) CreateSegment(ctx context.Context, seg *domain.Segment) error {
	if _, err := segment.ParseGroup(seg.FiltersJSON); err != nil {
		return err
	}
	seg.ID = uuid.New().String()
	seg.IsActive = true
	seg.CreatedAt = time.Now()
	seg.UpdatedAt = seg.CreatedAt

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crm_segments (id, name, description, filters_json, customer_count, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		seg.ID, seg.Name, seg.Description, []byte(seg.FiltersJSON),
		seg.CustomerCount, seg.IsActive, seg.CreatedAt, seg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert segment: %w", err)
	}
	return nil
}

// UpdateSegment replaces a segment's name, description, and filter tree.
func (s *Store) UpdateSegment(ctx context.Context, seg *domain.Segment) error {
	if _, err := segment.ParseGroup(seg.FiltersJSON); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE crm_segments
		SET name = $1, description = $2, filters_json = $3, updated_at = NOW()
		WHERE id = $4 AND is_active = TRUE`,
		seg.Name, seg.Description, []byte(seg.FiltersJSON), seg.ID)
	if err != nil {
		return fmt.Errorf("update segment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("segment %s not found", seg.ID)
	}
	return nil
}

// GetSegment returns one active segment, or (nil, nil) when not found.
func (s *Store) GetSegment(ctx context.Context, id string) (*domain.Segment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, filters_json, customer_count, is_active, created_at, updated_at
		FROM crm_segments WHERE id = $1 AND is_active = TRUE`, id)
	seg, err := scanSegment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get segment: %w", err)
	}
	return seg, nil
}

// SegmentByID returns a segment whether or not it has been archived.
// The send path uses it so archiving a segment does not break campaigns
// that still reference it.
func (s *Store) SegmentByID(ctx context.Context, id string) (*domain.Segment, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, filters_json, customer_count, is_active, created_at, updated_at
		FROM crm_segments WHERE id = $1`, id)
	seg, err := scanSegment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("segment by id: %w", err)
	}
	return seg, nil
}

// ListSegments returns active segments, newest first.
func (s *Store) ListSegments(ctx context.Context) ([]domain.Segment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, filters_json, customer_count, is_active, created_at, updated_at
		FROM crm_segments WHERE is_active = TRUE ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()

	var out []domain.Segment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		out = append(out, *seg)
	}
	return out, rows.Err()
}

// ArchiveSegment soft-deletes a segment. Campaigns that already reference
// it keep working; it just disappears from pickers.
func (s *Store) ArchiveSegment(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE crm_segments SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("archive segment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("segment %s not found", id)
	}
	return nil
}

// UpdateSegmentCount refreshes the cached customer_count.
func (s *Store) UpdateSegmentCount(ctx context.Context, id string, count int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE crm_segments SET customer_count = $1, updated_at = NOW() WHERE id = $2`, count, id)
	if err != nil {
		return fmt.Errorf("update segment count: %w", err)
	}
	return nil
}

func scanSegment(row rowScanner) (*domain.Segment, error) {
	var seg domain.Segment
	var filters []byte
	err := row.Scan(&seg.ID, &seg.Name, &seg.Description, &filters,
		&seg.CustomerCount, &seg.IsActive, &seg.CreatedAt, &seg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	seg.FiltersJSON = filters
	return &seg, nil
}
