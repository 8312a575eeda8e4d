package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/snowflakedb/gosnowflake" // Snowflake driver

	"github.com/velora/crm-server/internal/config"
	"github.com/velora/crm-server/internal/domain"
)

// Client reads navigation analytics from the storefront data lake.
type Client struct {
	db *sql.DB
}

// NewClient opens a connection to the Snowflake data lake.
func NewClient(cfg config.SnowflakeConfig) (*Client, error) {
	// DSN format: user:password@account/database/schema?warehouse=xxx
	dsn := fmt.Sprintf("%s:%s@%s/%s/%s",
		cfg.User,
		cfg.Password,
		cfg.Account,
		cfg.Database,
		cfg.Schema,
	)
	if cfg.Warehouse != "" {
		dsn += "?warehouse=" + cfg.Warehouse
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("open snowflake connection: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Client{db: db}, nil
}

// NewClientWithDB wraps an existing connection. Used by tests.
func NewClientWithDB(db *sql.DB) *Client {
	return &Client{db: db}
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Ping tests the data lake connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// NavigationStats returns per-path page view aggregates over the last n days,
// most viewed first.
func (c *Client) NavigationStats(ctx context.Context, days int) ([]domain.NavigationStat, error) {
	query := `
		SELECT PAGE_PATH,
		       COUNT(*) AS VIEWS,
		       COUNT(DISTINCT VISITOR_ID) AS UNIQUE_USERS,
		       AVG(TIME_ON_PAGE_SECONDS) AS AVG_SECONDS
		FROM PAGE_VIEWS
		WHERE VIEWED_AT >= DATEADD(day, ?, CURRENT_TIMESTAMP())
		GROUP BY PAGE_PATH
		ORDER BY VIEWS DESC
		LIMIT 100`

	rows, err := c.db.QueryContext(ctx, query, -days)
	if err != nil {
		return nil, fmt.Errorf("query navigation stats: %w", err)
	}
	defer rows.Close()

	var stats []domain.NavigationStat
	for rows.Next() {
		var s domain.NavigationStat
		if err := rows.Scan(&s.Path, &s.Views, &s.UniqueUsers, &s.AvgSeconds); err != nil {
			return nil, fmt.Errorf("scan navigation row: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
