package main

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/curatorops/signalrun/internal/allocate"
	"github.com/curatorops/signalrun/internal/ui"
)

func runAllocate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	alloc := allocate.Config{
		Budget:           cfg.Allocation.Budget,
		MaxDeployments:   cfg.Allocation.MaxDeployments,
		MinWeeklyQueries: cfg.Allocation.MinWeeklyQueries,
		Step:             cfg.Allocation.Step,
	}
	if v, _ := cmd.Flags().GetFloat64("budget"); v > 0 {
		alloc.Budget = v
	}
	if v, _ := cmd.Flags().GetInt("max-deployments"); v > 0 {
		alloc.MaxDeployments = v
	}
	if v, _ := cmd.Flags().GetInt64("min-queries"); v >= 0 {
		alloc.MinWeeklyQueries = v
	}
	if v, _ := cmd.Flags().GetFloat64("step"); v > 0 {
		alloc.Step = v
	}
	if err := alloc.Validate(); err != nil {
		return err
	}

	pipeline, cleanup, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(cmd.Context(), passTimeout)
	defer cancel()

	result, err := pipeline.Allocation(ctx, alloc)
	if err != nil {
		return err
	}

	log.Info().
		Str("run_id", result.RunID).
		Float64("allocated", result.Plan.TotalAllocated).
		Msg("Allocation planned")

	if wantJSON(cmd) {
		return printJSON(result)
	}
	ui.RenderPlan(os.Stdout, result)
	return nil
}
