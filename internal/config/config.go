// Package config loads SignalRun configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the complete runtime configuration.
type Config struct {
	Gateway    GatewayConfig    `yaml:"gateway"`
	Usage      UsageConfig      `yaml:"usage"`
	Cache      CacheConfig      `yaml:"cache"`
	Allocation AllocationConfig `yaml:"allocation"`
	HTTP       HTTPConfig       `yaml:"http"`
}

// GatewayConfig configures The Graph gateway client.
type GatewayConfig struct {
	BaseURL         string  `yaml:"base_url" env:"SIGNALRUN_GATEWAY_URL"`
	APIKey          string  `yaml:"api_key" env:"SIGNALRUN_GATEWAY_API_KEY"`
	NetworkSubgraph string  `yaml:"network_subgraph" env:"SIGNALRUN_NETWORK_SUBGRAPH"`
	PriceSubgraph   string  `yaml:"price_subgraph" env:"SIGNALRUN_PRICE_SUBGRAPH"`
	TimeoutSecs     int     `yaml:"timeout_secs"`
	RPS             float64 `yaml:"rps"`
	Burst           int     `yaml:"burst"`
}

// Timeout returns the per-request timeout.
func (g GatewayConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSecs) * time.Second
}

// UsageConfig selects and configures the query-volume source.
type UsageConfig struct {
	Source      string `yaml:"source" env:"SIGNALRUN_USAGE_SOURCE"` // csv | postgres
	Dir         string `yaml:"dir" env:"SIGNALRUN_USAGE_DIR"`
	PostgresDSN string `yaml:"postgres_dsn" env:"SIGNALRUN_USAGE_DSN"`
	WindowDays  int    `yaml:"window_days" env:"SIGNALRUN_USAGE_WINDOW_DAYS"`
}

// Window returns the trailing aggregation window.
func (u UsageConfig) Window() time.Duration {
	return time.Duration(u.WindowDays) * 24 * time.Hour
}

// CacheConfig configures the optional Redis fetch cache. An empty address
// disables caching.
type CacheConfig struct {
	RedisAddr string `yaml:"redis_addr" env:"SIGNALRUN_REDIS_ADDR"`
	TTLSecs   int    `yaml:"ttl_secs"`
}

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSecs) * time.Second
}

// AllocationConfig holds allocation defaults.
type AllocationConfig struct {
	Budget           float64 `yaml:"budget"`
	MaxDeployments   int     `yaml:"max_deployments"`
	MinWeeklyQueries int64   `yaml:"min_weekly_queries"`
	Step             float64 `yaml:"step"`
	TopN             int     `yaml:"top_n"`
}

// HTTPConfig configures the serve mode listener.
type HTTPConfig struct {
	Addr string `yaml:"addr" env:"SIGNALRUN_HTTP_ADDR"`
}

// Default returns the protocol defaults. The gateway API key must come from
// config or environment; it has no default on purpose.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			BaseURL:         "https://gateway.thegraph.com",
			NetworkSubgraph: "DZz4kDTdmzWLWsV373w2bSmoar3umKKH9y82SUKr5qmp",
			PriceSubgraph:   "4RTrnxLZ4H8EBdpAQTcVc7LQY9kk85WNLyVzg5iXFQCH",
			TimeoutSecs:     15,
			RPS:             4,
			Burst:           2,
		},
		Usage: UsageConfig{
			Source:     "csv",
			Dir:        "data/hourly_query_volume",
			WindowDays: 7,
		},
		Cache: CacheConfig{
			TTLSecs: 300,
		},
		Allocation: AllocationConfig{
			Budget:           10000,
			MaxDeployments:   5,
			MinWeeklyQueries: 0,
			Step:             100,
			TopN:             5,
		},
		HTTP: HTTPConfig{
			Addr: "127.0.0.1:8080",
		},
	}
}

// Load builds the config: defaults, then the YAML file (if given), then
// environment overrides, then validation.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks structural invariants.
func (c *Config) Validate() error {
	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway.base_url is required")
	}
	if c.Gateway.NetworkSubgraph == "" || c.Gateway.PriceSubgraph == "" {
		return fmt.Errorf("gateway subgraph ids are required")
	}

	switch c.Usage.Source {
	case "csv":
		if c.Usage.Dir == "" {
			return fmt.Errorf("usage.dir is required for the csv source")
		}
	case "postgres":
		if c.Usage.PostgresDSN == "" {
			return fmt.Errorf("usage.postgres_dsn is required for the postgres source")
		}
	default:
		return fmt.Errorf("usage.source must be csv or postgres, got %q", c.Usage.Source)
	}
	if c.Usage.WindowDays < 1 {
		return fmt.Errorf("usage.window_days must be >= 1, got %d", c.Usage.WindowDays)
	}

	if c.Allocation.Budget < 0 {
		return fmt.Errorf("allocation.budget must be >= 0, got %v", c.Allocation.Budget)
	}
	if c.Allocation.MaxDeployments < 1 {
		return fmt.Errorf("allocation.max_deployments must be >= 1, got %d", c.Allocation.MaxDeployments)
	}
	if c.Allocation.MinWeeklyQueries < 0 {
		return fmt.Errorf("allocation.min_weekly_queries must be >= 0, got %d", c.Allocation.MinWeeklyQueries)
	}
	if c.Allocation.Step <= 0 {
		return fmt.Errorf("allocation.step must be > 0, got %v", c.Allocation.Step)
	}
	if c.Allocation.TopN < 1 {
		return fmt.Errorf("allocation.top_n must be >= 1, got %d", c.Allocation.TopN)
	}

	return nil
}
