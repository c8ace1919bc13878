package curation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawTokens(tokens int64) decimal.Decimal {
	return decimal.New(tokens, 18)
}

func TestScoreOpportunities_ReferenceNumbers(t *testing.T) {
	deployments := []Deployment{
		{ID: "QmScenarioA", SignalAmount: rawTokens(1000), SignalledTokens: rawTokens(1000)},
	}
	queries := map[string]int64{"QmScenarioA": 700000}

	opps := ScoreOpportunities(deployments, queries, 0.10)
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, "QmScenarioA", opp.ID)
	assert.Equal(t, int64(36400000), opp.AnnualQueries)
	assert.InDelta(t, 1456.0, opp.TotalEarnings, 1e-9)
	assert.InDelta(t, 145.6, opp.CuratorShare, 1e-9)
	assert.InDelta(t, 145.6, opp.EstimatedEarnings, 1e-9)
	assert.InDelta(t, 145.6, opp.APR, 1e-9, "145.6 / (1000 * 0.10) * 100")
}

func TestScoreOpportunities_ZeroSignalledTokens(t *testing.T) {
	deployments := []Deployment{
		{ID: "QmEmptyPool", SignalAmount: rawTokens(500), SignalledTokens: decimal.Zero},
	}
	queries := map[string]int64{"QmEmptyPool": 100000}

	opps := ScoreOpportunities(deployments, queries, 0.10)
	require.Len(t, opps, 1)
	assert.Zero(t, opps[0].EstimatedEarnings)
	assert.Zero(t, opps[0].APR)
}

func TestScoreOpportunities_ExcludesZeroSignal(t *testing.T) {
	deployments := []Deployment{
		{ID: "QmHeld", SignalAmount: rawTokens(10), SignalledTokens: rawTokens(100)},
		{ID: "QmUnheld", SignalAmount: decimal.Zero, SignalledTokens: rawTokens(100)},
	}
	queries := map[string]int64{"QmHeld": 1000, "QmUnheld": 999999}

	opps := ScoreOpportunities(deployments, queries, 0.10)
	require.Len(t, opps, 1)
	assert.Equal(t, "QmHeld", opps[0].ID)
}

func TestScoreOpportunities_DropsUnobservedDeployments(t *testing.T) {
	deployments := []Deployment{
		{ID: "QmQuiet", SignalAmount: rawTokens(10), SignalledTokens: rawTokens(100)},
		{ID: "QmBusy", SignalAmount: rawTokens(10), SignalledTokens: rawTokens(100)},
	}
	queries := map[string]int64{"QmBusy": 5000}

	opps := ScoreOpportunities(deployments, queries, 0.10)
	require.Len(t, opps, 1)
	assert.Equal(t, "QmBusy", opps[0].ID)
}

func TestScoreOpportunities_SortedByAPRStableOnTies(t *testing.T) {
	// Identical economics across three deployments: exact APR ties.
	deployments := []Deployment{
		{ID: "QmFirst", SignalAmount: rawTokens(100), SignalledTokens: rawTokens(1000)},
		{ID: "QmSecond", SignalAmount: rawTokens(100), SignalledTokens: rawTokens(1000)},
		{ID: "QmThird", SignalAmount: rawTokens(100), SignalledTokens: rawTokens(1000)},
		{ID: "QmHot", SignalAmount: rawTokens(100), SignalledTokens: rawTokens(1000)},
	}
	queries := map[string]int64{
		"QmFirst":  7000,
		"QmSecond": 7000,
		"QmThird":  7000,
		"QmHot":    700000,
	}

	opps := ScoreOpportunities(deployments, queries, 0.10)
	require.Len(t, opps, 4)
	assert.Equal(t, "QmHot", opps[0].ID)
	assert.Equal(t, "QmFirst", opps[1].ID)
	assert.Equal(t, "QmSecond", opps[2].ID)
	assert.Equal(t, "QmThird", opps[3].ID)

	for i := 1; i < len(opps); i++ {
		assert.GreaterOrEqual(t, opps[i-1].APR, opps[i].APR)
	}
	for _, opp := range opps {
		assert.GreaterOrEqual(t, opp.APR, 0.0)
		assert.Positive(t, opp.SignalAmount)
	}
}

func TestScoreOpportunities_Idempotent(t *testing.T) {
	deployments := []Deployment{
		{ID: "QmA", SignalAmount: rawTokens(123), SignalledTokens: rawTokens(4567)},
		{ID: "QmB", SignalAmount: rawTokens(89), SignalledTokens: rawTokens(200)},
	}
	queries := map[string]int64{"QmA": 41000, "QmB": 977}

	first := ScoreOpportunities(deployments, queries, 0.0832)
	second := ScoreOpportunities(deployments, queries, 0.0832)
	assert.Equal(t, first, second)
}

func TestFilterByQueries(t *testing.T) {
	opps := []Opportunity{
		{ID: "QmA", WeeklyQueries: 100},
		{ID: "QmB", WeeklyQueries: 5000},
		{ID: "QmC", WeeklyQueries: 4999},
	}

	filtered := FilterByQueries(opps, 5000)
	require.Len(t, filtered, 1)
	assert.Equal(t, "QmB", filtered[0].ID)

	assert.Len(t, FilterByQueries(opps, 0), 3)
}

func TestTokensFromRaw(t *testing.T) {
	raw, err := decimal.NewFromString("1500000000000000000000")
	require.NoError(t, err)
	assert.InDelta(t, 1500.0, TokensFromRaw(raw), 1e-9)
	assert.Zero(t, TokensFromRaw(decimal.Zero))
}
