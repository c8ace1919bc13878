// Package application orchestrates scoring passes: fetch inputs from the
// collaborators, run the pure scoring/allocation/recommendation core, and
// hand structured results to whichever surface asked (CLI or HTTP).
package application

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/curatorops/signalrun/internal/allocate"
	"github.com/curatorops/signalrun/internal/curation"
	"github.com/curatorops/signalrun/internal/datasources"
	"github.com/curatorops/signalrun/internal/recommend"
	"github.com/curatorops/signalrun/internal/telemetry"
)

// DeploymentSource lists signalled subgraph deployments.
type DeploymentSource interface {
	FetchDeployments(ctx context.Context) ([]curation.Deployment, error)
}

// UsageSource aggregates query volume over a trailing window.
type UsageSource interface {
	Aggregate(ctx context.Context, window time.Duration) (*datasources.UsageTotals, error)
}

// PriceOracle returns the current token price in USD.
type PriceOracle interface {
	FetchPrice(ctx context.Context) (float64, error)
}

// WalletSignalSource returns a wallet's signal per deployment.
type WalletSignalSource interface {
	FetchWalletSignals(ctx context.Context, wallet string) (map[string]float64, error)
}

// Pipeline wires the collaborators into scoring passes. Every pass fetches
// fresh inputs; nothing is mutated across passes.
type Pipeline struct {
	deployments DeploymentSource
	usage       UsageSource
	price       PriceOracle
	wallets     WalletSignalSource

	window time.Duration
	topN   int
}

// NewPipeline assembles a pipeline. wallets may be nil if position lookups
// are not needed.
func NewPipeline(deployments DeploymentSource, usage UsageSource, price PriceOracle, wallets WalletSignalSource, window time.Duration, topN int) *Pipeline {
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	if topN <= 0 {
		topN = 5
	}
	return &Pipeline{
		deployments: deployments,
		usage:       usage,
		price:       price,
		wallets:     wallets,
		window:      window,
		topN:        topN,
	}
}

// ScanResult is one completed scoring pass.
type ScanResult struct {
	RunID         string                 `json:"run_id"`
	Timestamp     time.Time              `json:"timestamp"`
	Price         float64                `json:"price"`
	WindowStart   time.Time              `json:"window_start"`
	Opportunities []curation.Opportunity `json:"opportunities"`
}

// PositionsResult is a wallet's evaluated positions against one pass.
type PositionsResult struct {
	*ScanResult
	Wallet      string                    `json:"wallet"`
	Positions   []curation.Position       `json:"positions"`
	Summary     curation.PortfolioSummary `json:"summary"`
	Suggestions []recommend.Suggestion    `json:"suggestions"`
}

// AllocationResult is an allocation plan against one pass.
type AllocationResult struct {
	*ScanResult
	Plan *allocate.Plan `json:"plan"`
}

// Scan runs one scoring pass. Any collaborator failure aborts the pass with
// a wrapped cause; the pass never substitutes defaults for missing upstream
// data.
func (p *Pipeline) Scan(ctx context.Context) (*ScanResult, error) {
	result := &ScanResult{
		RunID:     uuid.NewString(),
		Timestamp: time.Now().UTC(),
	}
	logger := log.With().Str("run_id", result.RunID).Logger()

	var deployments []curation.Deployment
	if err := p.step(logger, "fetch_deployments", func() error {
		var err error
		deployments, err = p.deployments.FetchDeployments(ctx)
		return err
	}); err != nil {
		return nil, err
	}

	var usage *datasources.UsageTotals
	if err := p.step(logger, "aggregate_usage", func() error {
		var err error
		usage, err = p.usage.Aggregate(ctx, p.window)
		return err
	}); err != nil {
		return nil, err
	}
	result.WindowStart = usage.WindowStart

	if err := p.step(logger, "fetch_price", func() error {
		price, err := p.price.FetchPrice(ctx)
		if err != nil {
			return err
		}
		if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
			return fmt.Errorf("oracle returned unusable price %v", price)
		}
		result.Price = price
		return nil
	}); err != nil {
		return nil, err
	}

	if err := p.step(logger, "score", func() error {
		result.Opportunities = curation.ScoreOpportunities(deployments, usage.QueryCounts, result.Price)
		return validateFinite(result.Opportunities)
	}); err != nil {
		return nil, err
	}

	telemetry.RecordPass(len(result.Opportunities))
	logger.Info().
		Int("deployments", len(deployments)).
		Int("opportunities", len(result.Opportunities)).
		Float64("price", result.Price).
		Msg("Scoring pass complete")

	return result, nil
}

// Positions runs a pass and evaluates one wallet against it.
func (p *Pipeline) Positions(ctx context.Context, wallet string) (*PositionsResult, error) {
	if p.wallets == nil {
		return nil, fmt.Errorf("no wallet signal source configured")
	}

	scan, err := p.Scan(ctx)
	if err != nil {
		return nil, err
	}
	logger := log.With().Str("run_id", scan.RunID).Str("wallet", wallet).Logger()

	var signals map[string]float64
	if err := p.step(logger, "fetch_wallet_signals", func() error {
		var err error
		signals, err = p.wallets.FetchWalletSignals(ctx, wallet)
		return err
	}); err != nil {
		return nil, err
	}

	positions := curation.EvaluatePositions(signals, scan.Opportunities, scan.Price)
	summary := curation.Summarize(positions, scan.Price)
	suggestions := recommend.Compare(positions, scan.Opportunities, p.topN)

	logger.Info().
		Int("positions", len(positions)).
		Int("suggestions", len(suggestions)).
		Float64("overall_apr", summary.OverallAPR).
		Msg("Wallet evaluation complete")

	return &PositionsResult{
		ScanResult:  scan,
		Wallet:      wallet,
		Positions:   positions,
		Summary:     summary,
		Suggestions: suggestions,
	}, nil
}

// Allocation runs a pass and builds an allocation plan against it.
func (p *Pipeline) Allocation(ctx context.Context, cfg allocate.Config) (*AllocationResult, error) {
	scan, err := p.Scan(ctx)
	if err != nil {
		return nil, err
	}

	plan, err := allocate.Build(scan.Opportunities, scan.Price, cfg)
	if err != nil {
		return nil, fmt.Errorf("build allocation plan: %w", err)
	}

	logger := log.With().Str("run_id", scan.RunID).Logger()
	if plan.Reduced() {
		logger.Warn().
			Int("requested", plan.Requested).
			Int("eligible", plan.Eligible).
			Msg("Fewer eligible deployments than requested, allocating across the reduced set")
	}
	logger.Info().
		Float64("allocated", plan.TotalAllocated).
		Float64("earnings_per_year", plan.EarningsPerYear).
		Msg("Allocation plan complete")

	return &AllocationResult{ScanResult: scan, Plan: plan}, nil
}

// Window returns the pipeline's trailing usage window.
func (p *Pipeline) Window() time.Duration { return p.window }

func (p *Pipeline) step(logger zerolog.Logger, name string, fn func() error) error {
	started := time.Now()
	err := fn()
	telemetry.RecordStep(name, time.Since(started), err)
	if err != nil {
		logger.Error().Err(err).Str("step", name).Msg("Scoring pass step failed")
		return fmt.Errorf("%s: %w", name, err)
	}
	logger.Debug().Str("step", name).Dur("elapsed", time.Since(started)).Msg("Step complete")
	return nil
}

// validateFinite rejects non-finite values escaping the scoring math. Zero
// substitutions are legitimate; NaN or Inf means an upstream fed us garbage.
func validateFinite(opportunities []curation.Opportunity) error {
	for _, opp := range opportunities {
		for _, v := range []float64{opp.APR, opp.EstimatedEarnings, opp.TotalEarnings, opp.SignalAmount, opp.SignalledTokens} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("non-finite value scored for %s", opp.ID)
			}
		}
	}
	return nil
}
