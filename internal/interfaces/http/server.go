// Package http exposes scoring passes over a read-only JSON API, plus
// health and Prometheus metrics endpoints.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/curatorops/signalrun/internal/allocate"
	"github.com/curatorops/signalrun/internal/application"
	"github.com/curatorops/signalrun/internal/telemetry"
)

// PassRunner is the surface the API needs from the pipeline.
type PassRunner interface {
	Scan(ctx context.Context) (*application.ScanResult, error)
	Positions(ctx context.Context, wallet string) (*application.PositionsResult, error)
	Allocation(ctx context.Context, cfg allocate.Config) (*application.AllocationResult, error)
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig returns local-only defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         "127.0.0.1:8080",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server is the read-only HTTP server.
type Server struct {
	router   *mux.Router
	server   *http.Server
	runner   PassRunner
	defaults allocate.Config
	started  time.Time
}

// NewServer builds the server and its routes. allocDefaults fills in any
// allocation parameters a request omits.
func NewServer(cfg ServerConfig, runner PassRunner, allocDefaults allocate.Config) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		runner:   runner,
		defaults: allocDefaults,
		started:  time.Now(),
	}
	s.routes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Router exposes the handler for tests and embedding.
func (s *Server) Router() http.Handler { return s.router }

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", telemetry.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/debug/metrics", s.handleMetricsSnapshot).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/opportunities", s.handleOpportunities).Methods(http.MethodGet)
	v1.HandleFunc("/positions/{wallet}", s.handlePositions).Methods(http.MethodGet)
	v1.HandleFunc("/allocation", s.handleAllocation).Methods(http.MethodGet)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleMetricsSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := telemetry.Snapshot()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleOpportunities(w http.ResponseWriter, r *http.Request) {
	result, err := s.runner.Scan(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}

	opportunities := result.Opportunities
	if minQueries, ok, err := queryInt(r, "min_queries"); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	} else if ok {
		filtered := opportunities[:0:0]
		for _, opp := range opportunities {
			if opp.WeeklyQueries >= minQueries {
				filtered = append(filtered, opp)
			}
		}
		opportunities = filtered
	}
	// limit=0 means unlimited, same as the CLI's --limit.
	if limit, ok, err := queryInt(r, "limit"); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	} else if ok && limit > 0 && int(limit) < len(opportunities) {
		opportunities = opportunities[:limit]
	}

	result.Opportunities = opportunities
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	wallet := mux.Vars(r)["wallet"]
	result, err := s.runner.Positions(r.Context(), wallet)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAllocation(w http.ResponseWriter, r *http.Request) {
	cfg := s.defaults

	if budget := r.URL.Query().Get("budget"); budget != "" {
		v, err := strconv.ParseFloat(budget, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("bad budget: %w", err))
			return
		}
		cfg.Budget = v
	}
	if maxDeployments, ok, err := queryInt(r, "max_deployments"); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	} else if ok {
		cfg.MaxDeployments = int(maxDeployments)
	}
	if minQueries, ok, err := queryInt(r, "min_queries"); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	} else if ok {
		cfg.MinWeeklyQueries = minQueries
	}
	if step := r.URL.Query().Get("step"); step != "" {
		v, err := strconv.ParseFloat(step, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("bad step: %w", err))
			return
		}
		cfg.Step = v
	}

	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := s.runner.Allocation(r.Context(), cfg)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func queryInt(r *http.Request, name string) (int64, bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("bad %s: %w", name, err)
	}
	return v, true, nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	log.Warn().Err(err).Int("status", status).Msg("Request failed")
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
