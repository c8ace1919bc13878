// Package persistence provides the Postgres-backed usage source for
// deployments whose hourly query volume lands in a database instead of CSV
// drops.
package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/curatorops/signalrun/internal/datasources"
)

const usageQuery = `
	SELECT subgraph_deployment_ipfs_hash,
	       SUM(query_count)      AS query_count,
	       SUM(total_query_fees) AS total_query_fees
	FROM hourly_query_volume
	WHERE end_epoch > $1
	GROUP BY subgraph_deployment_ipfs_hash`

// Open connects to Postgres and verifies the connection.
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return db, nil
}

// UsageRepo aggregates hourly query volume from Postgres. It implements the
// same contract as the CSV source: trailing-window sums of query counts and
// fee totals per deployment.
type UsageRepo struct {
	db      *sqlx.DB
	timeout time.Duration
	now     func() time.Time
}

// NewUsageRepo creates a repository with a per-query timeout.
func NewUsageRepo(db *sqlx.DB, timeout time.Duration) *UsageRepo {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &UsageRepo{db: db, timeout: timeout, now: time.Now}
}

type usageRow struct {
	IpfsHash   string  `db:"subgraph_deployment_ipfs_hash"`
	QueryCount int64   `db:"query_count"`
	QueryFees  float64 `db:"total_query_fees"`
}

// Aggregate sums query volume over the trailing window.
func (r *UsageRepo) Aggregate(ctx context.Context, window time.Duration) (*datasources.UsageTotals, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cutoff := r.now().Add(-window)

	rows, err := r.db.QueryxContext(ctx, usageQuery, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query hourly_query_volume: %w", err)
	}
	defer rows.Close()

	totals := &datasources.UsageTotals{
		QueryCounts: make(map[string]int64),
		QueryFees:   make(map[string]float64),
		WindowStart: cutoff,
	}

	for rows.Next() {
		var row usageRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("scan usage row: %w", err)
		}
		totals.QueryCounts[row.IpfsHash] = row.QueryCount
		totals.QueryFees[row.IpfsHash] = row.QueryFees
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage rows: %w", err)
	}

	log.Debug().
		Int("deployments", len(totals.QueryCounts)).
		Time("window_start", cutoff).
		Msg("Aggregated query volume from postgres")

	return totals, nil
}
