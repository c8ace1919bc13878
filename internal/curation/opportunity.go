package curation

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Protocol economics. Query revenue is priced at a flat $4 per 100k queries
// and curators collectively receive 10% of it. Both values come from the
// network's fee schedule, not from chain state.
const (
	DollarsPer100kQueries = 4.0
	CuratorRevenueShare   = 0.10
	WeeksPerYear          = 52
)

// tokenUnit is the minor-unit scale of on-chain signal values (10^18).
var tokenUnit = decimal.New(1, 18)

// Deployment is one row from the deployment source. Signal values are raw
// minor units exactly as the network subgraph reports them.
type Deployment struct {
	ID              string          `json:"id"`
	SignalAmount    decimal.Decimal `json:"signal_amount"`
	SignalledTokens decimal.Decimal `json:"signalled_tokens"`
}

// Opportunity is a scored deployment: projected curator economics for one
// deployment under current signal and trailing query volume.
type Opportunity struct {
	ID                string  `json:"id"`
	SignalAmount      float64 `json:"signal_amount"`
	SignalledTokens   float64 `json:"signalled_tokens"`
	WeeklyQueries     int64   `json:"weekly_queries"`
	AnnualQueries     int64   `json:"annual_queries"`
	TotalEarnings     float64 `json:"total_earnings"`
	CuratorShare      float64 `json:"curator_share"`
	EstimatedEarnings float64 `json:"estimated_earnings"`
	APR               float64 `json:"apr"`
}

// TokensFromRaw converts a raw minor-unit amount to decimal token units.
// The exact division happens in decimal space so 1e18-scale strings survive
// the trip into float64 yield math without parse-time precision loss.
func TokensFromRaw(raw decimal.Decimal) float64 {
	f, _ := raw.Div(tokenUnit).Float64()
	return f
}

// ScoreOpportunities turns deployments plus trailing weekly query counts and
// a token price into a ranked opportunity list.
//
// Deployments absent from weeklyQueries are excluded: zero observed usage
// means "not an opportunity", which is distinct from a scored opportunity
// with zero APR. Deployments carrying no signal at all are dropped after
// scoring: with nothing staked there is no stake value to earn against.
// Output is sorted descending by APR; ties keep input order.
func ScoreOpportunities(deployments []Deployment, weeklyQueries map[string]int64, price float64) []Opportunity {
	opportunities := make([]Opportunity, 0, len(deployments))

	for _, d := range deployments {
		queries, observed := weeklyQueries[d.ID]
		if !observed {
			continue
		}

		signal := TokensFromRaw(d.SignalAmount)
		signalled := TokensFromRaw(d.SignalledTokens)

		annualQueries := queries * WeeksPerYear
		totalEarnings := float64(annualQueries) / 100000 * DollarsPer100kQueries
		curatorShare := totalEarnings * CuratorRevenueShare

		portionOwned := 0.0
		if signalled > 0 {
			portionOwned = signal / signalled
		}
		estimated := curatorShare * portionOwned

		apr := 0.0
		if stakeValue := signal * price; stakeValue > 0 {
			apr = estimated / stakeValue * 100
		}

		opportunities = append(opportunities, Opportunity{
			ID:                d.ID,
			SignalAmount:      signal,
			SignalledTokens:   signalled,
			WeeklyQueries:     queries,
			AnnualQueries:     annualQueries,
			TotalEarnings:     totalEarnings,
			CuratorShare:      curatorShare,
			EstimatedEarnings: estimated,
			APR:               apr,
		})
	}

	filtered := opportunities[:0]
	for _, opp := range opportunities {
		if opp.SignalAmount > 0 {
			filtered = append(filtered, opp)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].APR > filtered[j].APR
	})

	return filtered
}

// FilterByQueries returns the opportunities with at least minWeeklyQueries,
// preserving order.
func FilterByQueries(opportunities []Opportunity, minWeeklyQueries int64) []Opportunity {
	out := make([]Opportunity, 0, len(opportunities))
	for _, opp := range opportunities {
		if opp.WeeklyQueries >= minWeeklyQueries {
			out = append(out, opp)
		}
	}
	return out
}
