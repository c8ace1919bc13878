package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/curatorops/signalrun/internal/application"
	"github.com/curatorops/signalrun/internal/config"
	"github.com/curatorops/signalrun/internal/datasources"
	"github.com/curatorops/signalrun/internal/persistence"
)

const passTimeout = 2 * time.Minute

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}

// buildPipeline wires the collaborators from config. The returned cleanup
// closes whatever connections were opened; it is safe to call once.
func buildPipeline(cfg *config.Config) (*application.Pipeline, func(), error) {
	var closers []func()
	cleanup := func() {
		for _, fn := range closers {
			fn()
		}
	}

	var cache *datasources.FetchCache
	if cfg.Cache.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		closers = append(closers, func() { rdb.Close() })
		cache = datasources.NewFetchCache(rdb, cfg.Cache.TTL())
		log.Info().Str("addr", cfg.Cache.RedisAddr).Msg("Fetch cache enabled")
	}

	gateway := datasources.NewGatewayClient(datasources.GatewayConfig{
		BaseURL:         cfg.Gateway.BaseURL,
		APIKey:          cfg.Gateway.APIKey,
		NetworkSubgraph: cfg.Gateway.NetworkSubgraph,
		PriceSubgraph:   cfg.Gateway.PriceSubgraph,
		Timeout:         cfg.Gateway.Timeout(),
		RPS:             cfg.Gateway.RPS,
		Burst:           cfg.Gateway.Burst,
	}, cache)

	var usage application.UsageSource
	switch cfg.Usage.Source {
	case "postgres":
		db, err := persistence.Open(cfg.Usage.PostgresDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect usage database: %w", err)
		}
		closers = append(closers, func() { db.Close() })
		usage = persistence.NewUsageRepo(db, cfg.Gateway.Timeout())
	default:
		usage = datasources.NewCSVUsageSource(cfg.Usage.Dir)
	}

	pipeline := application.NewPipeline(gateway, usage, gateway, gateway,
		cfg.Usage.Window(), cfg.Allocation.TopN)
	return pipeline, cleanup, nil
}

func wantJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(payload interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
