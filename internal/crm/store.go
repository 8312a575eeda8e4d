// Package crm provides the Postgres read and write paths for customers,
// tags, and saved segments.
package crm

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/velora/crm-server/internal/domain"
	"github.com/velora/crm-server/internal/segment"
)

// Store provides database operations for the CRM.
type Store struct {
	db *sql.DB
}

// NewStore creates a new CRM store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const customerColumns = `id, email, email_hash, nome, telefone, status,
	dias_sem_comprar, valor_total_gasto, ticket_medio, numero_pedidos,
	categorias_compradas, itens_wishlist, tem_carrinho_ativo,
	marketing_emails, blocked_communications, ultima_compra_at,
	created_at, updated_at`

// ListOptions narrows ListCustomers. Zero values mean "no restriction";
// Limit defaults to 50 and is capped at 500.
type ListOptions struct {
	Status string
	Search string
	TagIDs []string
	Limit  int
	Offset int
}

// ==========================================
// CUSTOMER OPERATIONS
// ==========================================

// GetCustomer returns one customer, or (nil, nil) when not found.
func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	query := fmt.Sprintf(`SELECT %s FROM crm_customers WHERE id = $1`, customerColumns)
	c, err := scanCustomer(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return c, nil
}

// ListCustomers returns a page of customers matching opts plus the total
// row count for the same restriction.
func (s *Store) ListCustomers(ctx context.Context, opts ListOptions) ([]domain.Customer, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}

	if opts.Status != "" {
		args = append(args, opts.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if opts.Search != "" {
		args = append(args, "%"+strings.ToLower(opts.Search)+"%")
		where = append(where, fmt.Sprintf("(LOWER(nome) LIKE $%d OR LOWER(email) LIKE $%d)", len(args), len(args)))
	}
	if len(opts.TagIDs) > 0 {
		args = append(args, pq.Array(opts.TagIDs))
		where = append(where, fmt.Sprintf(
			"id IN (SELECT customer_id FROM crm_customer_tags WHERE tag_id = ANY($%d))", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM crm_customers WHERE %s", clause)
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count customers: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	args = append(args, limit, opts.Offset)
	query := fmt.Sprintf(`SELECT %s FROM crm_customers WHERE %s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		customerColumns, clause, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	customers, err := collectCustomers(rows)
	if err != nil {
		return nil, 0, err
	}
	return customers, total, nil
}

// EligibleCustomers returns every customer who currently accepts marketing
// mail and is not blocked. It backs segment previews and campaign audience
// building, so it deliberately has no pagination.
func (s *Store) EligibleCustomers(ctx context.Context) ([]domain.Customer, error) {
	query := fmt.Sprintf(`SELECT %s FROM crm_customers
		WHERE marketing_emails = TRUE AND blocked_communications = FALSE`, customerColumns)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("eligible customers: %w", err)
	}
	defer rows.Close()
	return collectCustomers(rows)
}

// AllCustomers returns the entire base without pagination. Only the CSV
// export path uses it.
func (s *Store) AllCustomers(ctx context.Context) ([]domain.Customer, error) {
	query := fmt.Sprintf(`SELECT %s FROM crm_customers ORDER BY created_at`, customerColumns)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("all customers: %w", err)
	}
	defer rows.Close()
	return collectCustomers(rows)
}

// FilterCustomers applies a compiled filter tree plus an optional tag
// restriction over the eligible set.
func (s *Store) FilterCustomers(ctx context.Context, group *segment.FilterGroup, tagIDs []string) ([]domain.Customer, error) {
	customers, err := s.EligibleCustomers(ctx)
	if err != nil {
		return nil, err
	}
	var tagSet map[string]struct{}
	if len(tagIDs) > 0 {
		tagSet, err = s.TagMembers(ctx, tagIDs)
		if err != nil {
			return nil, err
		}
	}

	matched := customers[:0]
	for i := range customers {
		c := customers[i]
		if tagSet != nil {
			if _, ok := tagSet[c.ID]; !ok {
				continue
			}
		}
		if segment.Evaluate(group, &c) {
			matched = append(matched, c)
		}
	}
	return matched, nil
}

// SetBlocked flips the governance block flag on a customer.
func (s *Store) SetBlocked(ctx context.Context, id string, blocked bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE crm_customers SET blocked_communications = $1, updated_at = NOW() WHERE id = $2`,
		blocked, id)
	if err != nil {
		return fmt.Errorf("set blocked: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("customer %s not found", id)
	}
	return nil
}

// ==========================================
// SCANNING
// ==========================================

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCustomer(row rowScanner) (*domain.Customer, error) {
	var c domain.Customer
	var categories pq.StringArray
	err := row.Scan(
		&c.ID, &c.Email, &c.EmailHash, &c.Name, &c.Phone, &c.Status,
		&c.DaysSinceLastOrder, &c.TotalSpent, &c.AverageTicket, &c.OrderCount,
		&categories, &c.WishlistItems, &c.HasActiveCart,
		&c.MarketingEmails, &c.BlockedCommunications, &c.LastOrderAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.PurchasedCategories = []string(categories)
	return &c, nil
}

func collectCustomers(rows *sql.Rows) ([]domain.Customer, error) {
	var out []domain.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate customers: %w", err)
	}
	return out, nil
}
