package analytics

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNavigationStats(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"PAGE_PATH", "VIEWS", "UNIQUE_USERS", "AVG_SECONDS"}).
		AddRow("/produtos/serum-vitamina-c", int64(1520), int64(980), 42.5).
		AddRow("/carrinho", int64(640), int64(510), 18.2)
	mock.ExpectQuery("SELECT PAGE_PATH").WithArgs(-30).WillReturnRows(rows)

	client := NewClientWithDB(db)
	stats, err := client.NavigationStats(context.Background(), 30)
	require.NoError(t, err)

	require.Len(t, stats, 2)
	assert.Equal(t, "/produtos/serum-vitamina-c", stats[0].Path)
	assert.Equal(t, int64(1520), stats[0].Views)
	assert.Equal(t, int64(980), stats[0].UniqueUsers)
	assert.InDelta(t, 42.5, stats[0].AvgSeconds, 0.001)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNavigationStatsQueryError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT PAGE_PATH").WillReturnError(assert.AnError)

	client := NewClientWithDB(db)
	_, err = client.NavigationStats(context.Background(), 7)
	assert.Error(t, err)
}
