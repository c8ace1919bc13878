package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/curatorops/signalrun/internal/telemetry"
	"github.com/curatorops/signalrun/internal/ui"
)

const (
	appName = "SignalRun"
	version = "v1.0.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	telemetry.Init()
	ui.ConfigureColors(os.Stdout.Fd())

	rootCmd := &cobra.Command{
		Use:     "signalrun",
		Short:   "Curation signal scanner for The Graph",
		Version: version,
		Long: `SignalRun ranks subgraph deployments by curation APR using live signal
data from The Graph gateway and recent query volume, then suggests where a
fixed GRT budget earns the most.`,
	}
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().Bool("json", false, "Emit results as JSON instead of tables")

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Rank curation opportunities by APR",
		Long:  "Fetches signalled deployments, query volume, and the GRT price, then prints deployments ranked by estimated curation APR",
		RunE:  runScan,
	}
	scanCmd.Flags().Int64("min-queries", 0, "Hide deployments below this weekly query count")
	scanCmd.Flags().Int("limit", 0, "Show at most this many rows (0 = all)")

	positionsCmd := &cobra.Command{
		Use:   "positions <wallet>",
		Short: "Evaluate a wallet's curation positions",
		Long:  "Scores the wallet's existing signal against the current ranking and suggests moves",
		Args:  cobra.ExactArgs(1),
		RunE:  runPositions,
	}

	allocateCmd := &cobra.Command{
		Use:   "allocate",
		Short: "Plan a greedy signal allocation",
		Long:  "Distributes a GRT budget across the top deployments in fixed steps, always adding where the marginal APR is highest",
		RunE:  runAllocate,
	}
	allocateCmd.Flags().Float64("budget", 0, "GRT budget to allocate (default from config)")
	allocateCmd.Flags().Int("max-deployments", 0, "Candidate pool size (default from config)")
	allocateCmd.Flags().Int64("min-queries", -1, "Exclude deployments below this weekly query count (default from config)")
	allocateCmd.Flags().Float64("step", 0, "Allocation step in GRT (default from config)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only HTTP API",
		Long:  "Starts the HTTP server with /health, /metrics, and /v1 scoring endpoints",
		RunE:  runServe,
	}
	serveCmd.Flags().String("addr", "", "Listen address (default from config)")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(positionsCmd)
	rootCmd.AddCommand(allocateCmd)
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
