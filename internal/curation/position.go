package curation

import "sort"

// Position is a wallet's realized stake in one scored opportunity.
type Position struct {
	ID                string  `json:"id"`
	UserSignal        float64 `json:"user_signal"`
	TotalSignal       float64 `json:"total_signal"`
	PortionOwned      float64 `json:"portion_owned"`
	EstimatedEarnings float64 `json:"estimated_earnings"`
	APR               float64 `json:"apr"`
	WeeklyQueries     int64   `json:"weekly_queries"`
}

// PortfolioSummary aggregates a wallet's positions.
type PortfolioSummary struct {
	TotalSignal   float64 `json:"total_signal"`
	TotalValue    float64 `json:"total_value"`
	TotalEarnings float64 `json:"total_earnings"`
	OverallAPR    float64 `json:"overall_apr"`
}

// EvaluatePositions joins a wallet's signal map (decimal token units) against
// the scored opportunity list. Only deployments present in both appear.
// Zero denominators resolve to zero, never to an error: a deployment with no
// pooled signal yields nothing, a stake worth nothing has no return to
// annualize. Sorted descending by APR, ties keep the scored list's order.
func EvaluatePositions(signals map[string]float64, opportunities []Opportunity, price float64) []Position {
	positions := make([]Position, 0, len(signals))

	for _, opp := range opportunities {
		userSignal, held := signals[opp.ID]
		if !held {
			continue
		}

		portionOwned := 0.0
		if opp.SignalledTokens > 0 {
			portionOwned = userSignal / opp.SignalledTokens
		}
		estimated := opp.CuratorShare * portionOwned

		apr := 0.0
		if stakeValue := userSignal * price; stakeValue > 0 {
			apr = estimated / stakeValue * 100
		}

		positions = append(positions, Position{
			ID:                opp.ID,
			UserSignal:        userSignal,
			TotalSignal:       opp.SignalledTokens,
			PortionOwned:      portionOwned,
			EstimatedEarnings: estimated,
			APR:               apr,
			WeeklyQueries:     opp.WeeklyQueries,
		})
	}

	sort.SliceStable(positions, func(i, j int) bool {
		return positions[i].APR > positions[j].APR
	})

	return positions
}

// Summarize computes portfolio totals and the blended APR across positions.
func Summarize(positions []Position, price float64) PortfolioSummary {
	var s PortfolioSummary
	for _, p := range positions {
		s.TotalSignal += p.UserSignal
		s.TotalEarnings += p.EstimatedEarnings
	}
	s.TotalValue = s.TotalSignal * price
	if s.TotalValue > 0 {
		s.OverallAPR = s.TotalEarnings / s.TotalValue * 100
	}
	return s
}
