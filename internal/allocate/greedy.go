// Package allocate distributes a fixed signal budget across the top-ranked
// curation opportunities using an iterative marginal-APR heuristic.
package allocate

import (
	"fmt"
	"math"
	"sort"

	"github.com/curatorops/signalrun/internal/curation"
)

// Config controls one allocation run.
type Config struct {
	Budget           float64 `json:"budget"`             // total signal to add, token units
	MaxDeployments   int     `json:"max_deployments"`    // candidate set size (top-K by APR)
	MinWeeklyQueries int64   `json:"min_weekly_queries"` // eligibility filter
	Step             float64 `json:"step"`               // discrete allocation increment
}

// DefaultConfig mirrors the protocol defaults: 10k tokens across the top 5
// deployments in 100-token steps, no query floor.
func DefaultConfig() Config {
	return Config{
		Budget:           10000,
		MaxDeployments:   5,
		MinWeeklyQueries: 0,
		Step:             100,
	}
}

// Validate rejects configs the allocator cannot run with.
func (c Config) Validate() error {
	if c.Budget < 0 || math.IsNaN(c.Budget) || math.IsInf(c.Budget, 0) {
		return fmt.Errorf("budget must be finite and >= 0, got %v", c.Budget)
	}
	if c.MaxDeployments < 1 {
		return fmt.Errorf("max deployments must be >= 1, got %d", c.MaxDeployments)
	}
	if c.MinWeeklyQueries < 0 {
		return fmt.Errorf("min weekly queries must be >= 0, got %d", c.MinWeeklyQueries)
	}
	if c.Step <= 0 || math.IsNaN(c.Step) || math.IsInf(c.Step, 0) {
		return fmt.Errorf("step must be finite and > 0, got %v", c.Step)
	}
	return nil
}

// Row is the before/after picture for one candidate deployment.
type Row struct {
	ID            string   `json:"id"`
	SignalBefore  float64  `json:"signal_before"`
	SignalAfter   float64  `json:"signal_after"`
	APRBefore     float64  `json:"apr_before"`
	APRAfter      *float64 `json:"apr_after,omitempty"` // nil when nothing was allocated
	EarningsAfter float64  `json:"earnings_after"`
	Allocated     float64  `json:"allocated"`
	WeeklyQueries int64    `json:"weekly_queries"`
}

// Plan is the allocator's output: per-candidate rows plus aggregate
// post-allocation earnings decomposed into simple calendar rates.
type Plan struct {
	Rows             []Row   `json:"rows"`
	Requested        int     `json:"requested"` // candidate count asked for
	Eligible         int     `json:"eligible"`  // candidates surviving the query filter
	Budget           float64 `json:"budget"`
	Step             float64 `json:"step"`
	TotalAllocated   float64 `json:"total_allocated"`
	EarningsPerDay   float64 `json:"earnings_per_day"`
	EarningsPerWeek  float64 `json:"earnings_per_week"`
	EarningsPerMonth float64 `json:"earnings_per_month"`
	EarningsPerYear  float64 `json:"earnings_per_year"`
	OverallAPR       float64 `json:"overall_apr"`
}

// Reduced reports whether fewer candidates were available than requested.
// That is a warning condition for the caller, not a failure.
func (p *Plan) Reduced() bool {
	return p.Eligible < p.Requested
}

// Build filters and ranks the opportunity list, takes the top-K by APR, and
// greedily distributes the budget across them.
func Build(opportunities []curation.Opportunity, price float64, cfg Config) (*Plan, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return nil, fmt.Errorf("token price must be finite and > 0, got %v", price)
	}

	eligible := curation.FilterByQueries(opportunities, cfg.MinWeeklyQueries)
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].APR > eligible[j].APR
	})

	count := cfg.MaxDeployments
	if len(eligible) < count {
		count = len(eligible)
	}
	candidates := eligible[:count]

	allocations := distribute(candidates, price, cfg.Budget, cfg.Step)

	plan := &Plan{
		Rows:      make([]Row, 0, len(candidates)),
		Requested: cfg.MaxDeployments,
		Eligible:  len(eligible),
		Budget:    cfg.Budget,
		Step:      cfg.Step,
	}

	for _, opp := range candidates {
		allocated := allocations[opp.ID]

		signalAfter := opp.SignalAmount + allocated
		signalledAfter := opp.SignalledTokens + allocated
		portionAfter := 0.0
		if signalledAfter > 0 {
			portionAfter = signalAfter / signalledAfter
		}
		earningsAfter := opp.CuratorShare * portionAfter

		row := Row{
			ID:            opp.ID,
			SignalBefore:  opp.SignalAmount,
			SignalAfter:   signalAfter,
			APRBefore:     opp.APR,
			EarningsAfter: earningsAfter,
			Allocated:     allocated,
			WeeklyQueries: opp.WeeklyQueries,
		}
		if allocated > 0 {
			aprAfter := 0.0
			if stakeValue := signalAfter * price; stakeValue > 0 {
				aprAfter = earningsAfter / stakeValue * 100
			}
			row.APRAfter = &aprAfter
		}

		plan.Rows = append(plan.Rows, row)
		plan.TotalAllocated += allocated
		plan.EarningsPerYear += earningsAfter
	}

	plan.EarningsPerDay = plan.EarningsPerYear / 365
	plan.EarningsPerWeek = plan.EarningsPerYear / 52
	plan.EarningsPerMonth = plan.EarningsPerYear / 12
	if budgetValue := cfg.Budget * price; budgetValue > 0 {
		plan.OverallAPR = plan.EarningsPerYear / budgetValue * 100
	}

	return plan, nil
}

// distribute runs the greedy loop. Each pass simulates adding one full step
// on top of every candidate's running allocation and commits the step to the
// candidate whose post-step APR is highest (first candidate wins exact ties).
//
// The loop is deliberately myopic: it never looks more than one step ahead,
// so when two candidates' diminishing-return curves cross it can land short
// of the true optimum. That one-step horizon is the contract, not an
// accident of implementation.
//
// The final iteration commits min(step, remaining) but still decrements the
// remaining budget by a full step, so a budget that is not a multiple of the
// step terminates the loop on a negative remainder after exactly
// ceil(budget/step) passes.
func distribute(candidates []curation.Opportunity, price, budget, step float64) map[string]float64 {
	allocations := make(map[string]float64, len(candidates))
	for _, opp := range candidates {
		allocations[opp.ID] = 0
	}

	remaining := budget
	for remaining > 0 {
		best := -1
		bestAPR := -1.0

		for i, opp := range candidates {
			current := allocations[opp.ID]
			newSignal := opp.SignalAmount + current + step
			newSignalled := opp.SignalledTokens + current + step
			portion := newSignal / newSignalled
			marginalAPR := opp.CuratorShare * portion / (newSignal * price) * 100

			if marginalAPR > bestAPR {
				bestAPR = marginalAPR
				best = i
			}
		}

		if best < 0 {
			break
		}
		allocations[candidates[best].ID] += math.Min(step, remaining)
		remaining -= step
	}

	return allocations
}
