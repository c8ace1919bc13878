// Package datasources implements the collaborators the scoring pass consumes:
// The Graph gateway client (deployments, wallet signals, token price), the
// hourly query-volume CSV aggregator, and the optional Redis fetch cache.
package datasources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/curatorops/signalrun/internal/curation"
	"github.com/curatorops/signalrun/internal/net/ratelimit"
	"github.com/curatorops/signalrun/internal/telemetry"
)

// GRT token and USD reference asset on the price-pair subgraph.
const (
	grtAssetAddress  = "0xc944e90c64b2c07662a292be6244bdf05cda44a7"
	usdComparedAsset = "0x0000000000000000000000000000000000000348"
)

const deploymentsQuery = `{
  subgraphDeployments(first: 1000, orderBy: signalAmount, orderDirection: desc) {
    ipfsHash
    signalAmount
    signalledTokens
  }
}`

const priceQuery = `{
  assetPairs(
    first: 1
    where: {asset: "` + grtAssetAddress + `", comparedAsset: "` + usdComparedAsset + `"}
  ) {
    currentPrice
  }
}`

const walletSignalsQueryTmpl = `{
  nameSignals(where: {curator: %q}) {
    subgraph {
      currentVersion {
        subgraphDeployment {
          ipfsHash
        }
      }
    }
    signal
  }
}`

// GatewayConfig configures the gateway client.
type GatewayConfig struct {
	BaseURL         string        // e.g. https://gateway.thegraph.com
	APIKey          string
	NetworkSubgraph string        // network subgraph id (deployments, signals)
	PriceSubgraph   string        // price-pair subgraph id
	Timeout         time.Duration // per-request timeout
	RPS             float64
	Burst           int
}

// GatewayClient talks GraphQL to The Graph gateway. Requests go through a
// per-host token bucket and a circuit breaker; responses are optionally
// memoized in the fetch cache. A missing or malformed payload is an error,
// never a default: the scoring pass must fail rather than score on
// fabricated data.
type GatewayClient struct {
	cfg     GatewayConfig
	client  *http.Client
	limiter *ratelimit.Limiter
	breaker *gobreaker.CircuitBreaker
	cache   *FetchCache
}

// NewGatewayClient builds a gateway client. cache may be nil.
func NewGatewayClient(cfg GatewayConfig, cache *FetchCache) *GatewayClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 4
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 2
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "graph-gateway",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Gateway circuit state change")
		},
	})

	return &GatewayClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: ratelimit.NewLimiter(cfg.RPS, cfg.Burst),
		breaker: breaker,
		cache:   cache,
	}
}

// FetchDeployments returns all signalled subgraph deployments with raw
// minor-unit signal values.
func (c *GatewayClient) FetchDeployments(ctx context.Context) ([]curation.Deployment, error) {
	var payload struct {
		SubgraphDeployments []struct {
			IpfsHash        string `json:"ipfsHash"`
			SignalAmount    string `json:"signalAmount"`
			SignalledTokens string `json:"signalledTokens"`
		} `json:"subgraphDeployments"`
	}
	if err := c.query(ctx, "network", c.cfg.NetworkSubgraph, deploymentsQuery, &payload); err != nil {
		return nil, fmt.Errorf("fetch deployments: %w", err)
	}

	deployments := make([]curation.Deployment, 0, len(payload.SubgraphDeployments))
	for _, d := range payload.SubgraphDeployments {
		signal, err := decimal.NewFromString(d.SignalAmount)
		if err != nil {
			return nil, fmt.Errorf("deployment %s: malformed signalAmount %q: %w", d.IpfsHash, d.SignalAmount, err)
		}
		signalled, err := decimal.NewFromString(d.SignalledTokens)
		if err != nil {
			return nil, fmt.Errorf("deployment %s: malformed signalledTokens %q: %w", d.IpfsHash, d.SignalledTokens, err)
		}
		deployments = append(deployments, curation.Deployment{
			ID:              d.IpfsHash,
			SignalAmount:    signal,
			SignalledTokens: signalled,
		})
	}

	log.Debug().Int("deployments", len(deployments)).Msg("Fetched subgraph deployments")
	return deployments, nil
}

// FetchWalletSignals returns a wallet's curation signal per deployment, in
// decimal token units. Name signals whose subgraph has no current version
// are skipped; they cannot be attributed to a deployment.
func (c *GatewayClient) FetchWalletSignals(ctx context.Context, wallet string) (map[string]float64, error) {
	var payload struct {
		NameSignals []struct {
			Subgraph struct {
				CurrentVersion *struct {
					SubgraphDeployment struct {
						IpfsHash string `json:"ipfsHash"`
					} `json:"subgraphDeployment"`
				} `json:"currentVersion"`
			} `json:"subgraph"`
			Signal string `json:"signal"`
		} `json:"nameSignals"`
	}

	query := fmt.Sprintf(walletSignalsQueryTmpl, wallet)
	if err := c.query(ctx, "network", c.cfg.NetworkSubgraph, query, &payload); err != nil {
		return nil, fmt.Errorf("fetch wallet signals for %s: %w", wallet, err)
	}

	signals := make(map[string]float64, len(payload.NameSignals))
	for _, ns := range payload.NameSignals {
		if ns.Subgraph.CurrentVersion == nil {
			log.Debug().Str("wallet", wallet).Msg("Name signal without current version skipped")
			continue
		}
		raw, err := decimal.NewFromString(ns.Signal)
		if err != nil {
			return nil, fmt.Errorf("wallet %s: malformed signal %q: %w", wallet, ns.Signal, err)
		}
		id := ns.Subgraph.CurrentVersion.SubgraphDeployment.IpfsHash
		signals[id] += curation.TokensFromRaw(raw)
	}

	return signals, nil
}

// FetchPrice returns the current GRT/USD price.
func (c *GatewayClient) FetchPrice(ctx context.Context) (float64, error) {
	var payload struct {
		AssetPairs []struct {
			CurrentPrice string `json:"currentPrice"`
		} `json:"assetPairs"`
	}
	if err := c.query(ctx, "price", c.cfg.PriceSubgraph, priceQuery, &payload); err != nil {
		return 0, fmt.Errorf("fetch price: %w", err)
	}
	if len(payload.AssetPairs) == 0 {
		return 0, fmt.Errorf("fetch price: empty assetPairs response")
	}

	price, err := decimal.NewFromString(payload.AssetPairs[0].CurrentPrice)
	if err != nil {
		return 0, fmt.Errorf("fetch price: malformed currentPrice %q: %w", payload.AssetPairs[0].CurrentPrice, err)
	}
	f, _ := price.Float64()
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0, fmt.Errorf("fetch price: non-positive or non-finite price %v", f)
	}
	return f, nil
}

type graphqlRequest struct {
	Query string `json:"query"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *GatewayClient) query(ctx context.Context, upstream, subgraphID, query string, out interface{}) error {
	if c.cache != nil {
		if c.cache.Get(ctx, upstream, query, out) {
			telemetry.RecordCacheHit(upstream)
			return nil
		}
		telemetry.RecordCacheMiss(upstream)
	}

	endpoint := fmt.Sprintf("%s/api/%s/subgraphs/id/%s", c.cfg.BaseURL, c.cfg.APIKey, subgraphID)
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid gateway URL: %w", err)
	}
	if err := c.limiter.Wait(ctx, parsed.Host); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(graphqlRequest{Query: query})
	if err != nil {
		return fmt.Errorf("marshal query: %w", err)
	}

	started := time.Now()
	raw, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, endpoint, body)
	})
	telemetry.RecordGatewayRequest(upstream, err)
	if err != nil {
		return err
	}

	log.Debug().
		Str("upstream", upstream).
		Dur("elapsed", time.Since(started)).
		Msg("Gateway query complete")

	data := raw.(json.RawMessage)
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s payload: %w", upstream, err)
	}

	if c.cache != nil {
		c.cache.Set(ctx, upstream, query, out)
	}
	return nil
}

func (c *GatewayClient) post(ctx context.Context, endpoint string, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, snippet)
	}

	var envelope graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", envelope.Errors[0].Message)
	}
	if len(envelope.Data) == 0 {
		return nil, fmt.Errorf("empty data in response")
	}
	return envelope.Data, nil
}
