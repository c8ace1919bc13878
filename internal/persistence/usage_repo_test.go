package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*UsageRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewUsageRepo(sqlx.NewDb(db, "postgres"), 5*time.Second)
	now, err := time.Parse(time.RFC3339, "2024-06-15T00:00:00Z")
	require.NoError(t, err)
	repo.now = func() time.Time { return now }
	return repo, mock
}

func TestUsageRepo_Aggregate(t *testing.T) {
	repo, mock := newMockRepo(t)

	cutoff, _ := time.Parse(time.RFC3339, "2024-06-08T00:00:00Z")
	rows := sqlmock.NewRows([]string{"subgraph_deployment_ipfs_hash", "query_count", "total_query_fees"}).
		AddRow("QmA", int64(1500), 2.0).
		AddRow("QmB", int64(250), 0.25)

	mock.ExpectQuery(`SELECT subgraph_deployment_ipfs_hash`).
		WithArgs(cutoff).
		WillReturnRows(rows)

	totals, err := repo.Aggregate(context.Background(), 7*24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, int64(1500), totals.QueryCounts["QmA"])
	assert.Equal(t, int64(250), totals.QueryCounts["QmB"])
	assert.InDelta(t, 2.0, totals.QueryFees["QmA"], 1e-9)
	assert.Equal(t, cutoff, totals.WindowStart)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageRepo_QueryFailureFatal(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT subgraph_deployment_ipfs_hash`).
		WillReturnError(assert.AnError)

	_, err := repo.Aggregate(context.Background(), 7*24*time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hourly_query_volume")
}

func TestUsageRepo_EmptyResult(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(`SELECT subgraph_deployment_ipfs_hash`).
		WillReturnRows(sqlmock.NewRows([]string{"subgraph_deployment_ipfs_hash", "query_count", "total_query_fees"}))

	totals, err := repo.Aggregate(context.Background(), 7*24*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, totals.QueryCounts)
	assert.Empty(t, totals.QueryFees)
}
