package main

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/curatorops/signalrun/internal/curation"
	"github.com/curatorops/signalrun/internal/ui"
)

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	minQueries, _ := cmd.Flags().GetInt64("min-queries")
	limit, _ := cmd.Flags().GetInt("limit")

	pipeline, cleanup, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(cmd.Context(), passTimeout)
	defer cancel()

	result, err := pipeline.Scan(ctx)
	if err != nil {
		return err
	}
	if minQueries > 0 {
		result.Opportunities = curation.FilterByQueries(result.Opportunities, minQueries)
	}

	log.Info().
		Str("run_id", result.RunID).
		Int("opportunities", len(result.Opportunities)).
		Msg("Scan complete")

	if wantJSON(cmd) {
		return printJSON(result)
	}
	ui.RenderOpportunities(os.Stdout, result, limit)
	return nil
}
