package main

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/curatorops/signalrun/internal/ui"
)

func runPositions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	wallet := args[0]

	pipeline, cleanup, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(cmd.Context(), passTimeout)
	defer cancel()

	result, err := pipeline.Positions(ctx, wallet)
	if err != nil {
		return err
	}

	log.Info().
		Str("run_id", result.RunID).
		Str("wallet", wallet).
		Int("positions", len(result.Positions)).
		Msg("Positions evaluated")

	if wantJSON(cmd) {
		return printJSON(result)
	}
	ui.RenderPositions(os.Stdout, result)
	return nil
}
