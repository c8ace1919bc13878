package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/curatorops/signalrun/internal/allocate"
	httpapi "github.com/curatorops/signalrun/internal/interfaces/http"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	pipeline, cleanup, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	serverCfg := httpapi.DefaultServerConfig()
	serverCfg.Addr = cfg.HTTP.Addr
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		serverCfg.Addr = addr
	}

	server := httpapi.NewServer(serverCfg, pipeline, allocate.Config{
		Budget:           cfg.Allocation.Budget,
		MaxDeployments:   cfg.Allocation.MaxDeployments,
		MinWeeklyQueries: cfg.Allocation.MinWeeklyQueries,
		Step:             cfg.Allocation.Step,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
