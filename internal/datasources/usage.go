package datasources

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Expected columns in the hourly query-volume exports.
const (
	colEndEpoch  = "end_epoch"
	colIpfsHash  = "subgraph_deployment_ipfs_hash"
	colQueries   = "query_count"
	colQueryFees = "total_query_fees"
)

// Timestamp layouts seen in gateway exports.
var epochLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// UsageTotals is aggregated query volume over a trailing window, keyed by
// deployment id. QueryFees is carried for the usage-source contract but does
// not participate in the APR formula.
type UsageTotals struct {
	QueryCounts map[string]int64   `json:"query_counts"`
	QueryFees   map[string]float64 `json:"query_fees"`
	WindowStart time.Time          `json:"window_start"`
	Files       int                `json:"files"`
}

// CSVUsageSource aggregates hourly query-volume CSV drops from a directory.
type CSVUsageSource struct {
	Dir string
	Now func() time.Time // test seam; defaults to time.Now
}

// NewCSVUsageSource creates a usage source reading from dir.
func NewCSVUsageSource(dir string) *CSVUsageSource {
	return &CSVUsageSource{Dir: dir, Now: time.Now}
}

// Aggregate sums query counts and fee totals per deployment across every
// *.csv file in the directory, keeping only rows whose end_epoch falls
// inside the trailing window. An unreadable directory or a malformed file is
// fatal: partial usage data would silently skew every downstream APR.
func (s *CSVUsageSource) Aggregate(ctx context.Context, window time.Duration) (*UsageTotals, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	cutoff := now().Add(-window)

	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("read usage directory %s: %w", s.Dir, err)
	}

	totals := &UsageTotals{
		QueryCounts: make(map[string]int64),
		QueryFees:   make(map[string]float64),
		WindowStart: cutoff,
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".csv") {
			continue
		}

		path := filepath.Join(s.Dir, entry.Name())
		if err := s.aggregateFile(path, cutoff, totals); err != nil {
			return nil, fmt.Errorf("usage file %s: %w", entry.Name(), err)
		}
		totals.Files++
	}

	log.Debug().
		Int("files", totals.Files).
		Int("deployments", len(totals.QueryCounts)).
		Time("window_start", cutoff).
		Msg("Aggregated query volume")

	return totals, nil
}

func (s *CSVUsageSource) aggregateFile(path string, cutoff time.Time, totals *UsageTotals) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{colEndEpoch, colIpfsHash, colQueries, colQueryFees} {
		if _, ok := cols[required]; !ok {
			return fmt.Errorf("missing column %q", required)
		}
	}

	line := 1
	for {
		record, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", line+1, err)
		}
		line++

		endEpoch, err := parseEpoch(record[cols[colEndEpoch]])
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if !endEpoch.After(cutoff) {
			continue
		}

		hash := record[cols[colIpfsHash]]
		count, err := parseCount(record[cols[colQueries]])
		if err != nil {
			return fmt.Errorf("line %d: bad query_count: %w", line, err)
		}
		fees, err := strconv.ParseFloat(strings.TrimSpace(record[cols[colQueryFees]]), 64)
		if err != nil {
			return fmt.Errorf("line %d: bad total_query_fees: %w", line, err)
		}

		totals.QueryCounts[hash] += count
		totals.QueryFees[hash] += fees
	}
}

// parseEpoch accepts the datetime layouts seen in gateway exports, plus bare
// integer Unix seconds for exports that leave the epoch column numeric.
func parseEpoch(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range epochLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("bad end_epoch %q", raw)
}

// parseCount accepts integer counts, also in float form ("123.0") since the
// exports come out of dataframe tooling.
func parseCount(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}
