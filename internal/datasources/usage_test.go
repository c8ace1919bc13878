package datasources

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usageHeader = "end_epoch,subgraph_deployment_ipfs_hash,query_count,total_query_fees\n"

func writeUsageFile(t *testing.T, dir, name, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644))
}

func fixedClock(t *testing.T) func() time.Time {
	t.Helper()
	now, err := time.Parse(time.RFC3339, "2024-06-15T00:00:00Z")
	require.NoError(t, err)
	return func() time.Time { return now }
}

func TestCSVUsageSource_AggregatesWithinWindow(t *testing.T) {
	dir := t.TempDir()
	writeUsageFile(t, dir, "volume_a.csv", usageHeader+
		"2024-06-14T12:00:00Z,QmA,1000,1.5\n"+ // in window
		"2024-06-01T12:00:00Z,QmA,9999,9.9\n"+ // too old
		"2024-06-14T13:00:00Z,QmB,250,0.25\n")
	writeUsageFile(t, dir, "volume_b.csv", usageHeader+
		"2024-06-13T00:00:00Z,QmA,500,0.5\n")
	writeUsageFile(t, dir, "notes.txt", "not a csv, ignored")

	src := NewCSVUsageSource(dir)
	src.Now = fixedClock(t)

	totals, err := src.Aggregate(context.Background(), 7*24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 2, totals.Files)
	assert.Equal(t, int64(1500), totals.QueryCounts["QmA"], "sums across files")
	assert.Equal(t, int64(250), totals.QueryCounts["QmB"])
	assert.InDelta(t, 2.0, totals.QueryFees["QmA"], 1e-9)
	assert.NotContains(t, totals.QueryCounts, "QmOld")
}

func TestCSVUsageSource_FloatCountsAccepted(t *testing.T) {
	dir := t.TempDir()
	writeUsageFile(t, dir, "v.csv", usageHeader+
		"2024-06-14T12:00:00Z,QmA,1000.0,0\n")

	src := NewCSVUsageSource(dir)
	src.Now = fixedClock(t)

	totals, err := src.Aggregate(context.Background(), 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), totals.QueryCounts["QmA"])
}

func TestCSVUsageSource_UnixEpochsAccepted(t *testing.T) {
	dir := t.TempDir()
	// 1718366400 = 2024-06-14T12:00:00Z, 1717200000 = 2024-06-01T00:00:00Z.
	writeUsageFile(t, dir, "v.csv", usageHeader+
		"1718366400,QmA,700,0.7\n"+
		"1717200000,QmA,9999,9.9\n")

	src := NewCSVUsageSource(dir)
	src.Now = fixedClock(t)

	totals, err := src.Aggregate(context.Background(), 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(700), totals.QueryCounts["QmA"], "stale unix-epoch rows filtered like datetime rows")
}

func TestCSVUsageSource_MissingColumnFatal(t *testing.T) {
	dir := t.TempDir()
	writeUsageFile(t, dir, "bad.csv", "end_epoch,query_count\n2024-06-14T12:00:00Z,5\n")

	src := NewCSVUsageSource(dir)
	src.Now = fixedClock(t)

	_, err := src.Aggregate(context.Background(), 7*24*time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing column")
}

func TestCSVUsageSource_MalformedRowFatal(t *testing.T) {
	dir := t.TempDir()
	writeUsageFile(t, dir, "bad.csv", usageHeader+
		"2024-06-14T12:00:00Z,QmA,not-a-count,0\n")

	src := NewCSVUsageSource(dir)
	src.Now = fixedClock(t)

	_, err := src.Aggregate(context.Background(), 7*24*time.Hour)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad query_count")
}

func TestCSVUsageSource_MissingDirectoryFatal(t *testing.T) {
	src := NewCSVUsageSource(filepath.Join(t.TempDir(), "does-not-exist"))

	_, err := src.Aggregate(context.Background(), 7*24*time.Hour)
	assert.Error(t, err)
}

func TestCSVUsageSource_EmptyDirectoryIsNotAnError(t *testing.T) {
	src := NewCSVUsageSource(t.TempDir())
	src.Now = fixedClock(t)

	totals, err := src.Aggregate(context.Background(), 7*24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, totals.Files)
	assert.Empty(t, totals.QueryCounts)
}
