package curation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluatePositions_Math(t *testing.T) {
	opps := []Opportunity{
		{ID: "QmA", SignalledTokens: 1000, CuratorShare: 145.6, WeeklyQueries: 700000, APR: 1456},
		{ID: "QmB", SignalledTokens: 500, CuratorShare: 50, WeeklyQueries: 20000, APR: 90},
	}
	signals := map[string]float64{
		"QmA": 100, // 10% of the pool
		"QmC": 42,  // not in the scored list, must be ignored
	}

	positions := EvaluatePositions(signals, opps, 0.10)
	require.Len(t, positions, 1)

	p := positions[0]
	assert.Equal(t, "QmA", p.ID)
	assert.InDelta(t, 0.1, p.PortionOwned, 1e-9)
	assert.InDelta(t, 14.56, p.EstimatedEarnings, 1e-9)
	assert.InDelta(t, 145.6, p.APR, 1e-9, "14.56 / (100 * 0.10) * 100")
	assert.Equal(t, int64(700000), p.WeeklyQueries)
}

func TestEvaluatePositions_ZeroDenominators(t *testing.T) {
	opps := []Opportunity{
		{ID: "QmEmpty", SignalledTokens: 0, CuratorShare: 100},
		{ID: "QmDust", SignalledTokens: 1000, CuratorShare: 100},
	}
	signals := map[string]float64{"QmEmpty": 50, "QmDust": 0}

	positions := EvaluatePositions(signals, opps, 0.10)
	require.Len(t, positions, 2)

	for _, p := range positions {
		assert.Zero(t, p.APR, "%s should have zero APR", p.ID)
	}
	assert.Zero(t, positions[0].EstimatedEarnings+positions[1].EstimatedEarnings)
}

func TestEvaluatePositions_SortedByAPR(t *testing.T) {
	opps := []Opportunity{
		{ID: "QmLow", SignalledTokens: 10000, CuratorShare: 10},
		{ID: "QmHigh", SignalledTokens: 100, CuratorShare: 500},
	}
	signals := map[string]float64{"QmLow": 100, "QmHigh": 10}

	positions := EvaluatePositions(signals, opps, 0.10)
	require.Len(t, positions, 2)
	assert.Equal(t, "QmHigh", positions[0].ID)
	assert.Greater(t, positions[0].APR, positions[1].APR)
}

func TestSummarize(t *testing.T) {
	positions := []Position{
		{UserSignal: 1000, EstimatedEarnings: 145.6},
		{UserSignal: 500, EstimatedEarnings: 10},
	}

	s := Summarize(positions, 0.10)
	assert.InDelta(t, 1500.0, s.TotalSignal, 1e-9)
	assert.InDelta(t, 150.0, s.TotalValue, 1e-9)
	assert.InDelta(t, 155.6, s.TotalEarnings, 1e-9)
	assert.InDelta(t, 155.6/150.0*100, s.OverallAPR, 1e-9)
}

func TestSummarize_EmptyPortfolio(t *testing.T) {
	s := Summarize(nil, 0.10)
	assert.Zero(t, s.TotalSignal)
	assert.Zero(t, s.OverallAPR)
}
