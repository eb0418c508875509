package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/archon-research/spotrate/internal/ports/inbound"
)

// HealthServerConfig holds configuration for the health server.
type HealthServerConfig struct {
	// Addr is the address to listen on (e.g., ":8081")
	Addr string

	Logger *slog.Logger

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// HealthServerConfigDefaults returns a config with default values.
func HealthServerConfigDefaults() HealthServerConfig {
	return HealthServerConfig{
		Addr:         ":8081",
		Logger:       slog.Default(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

// HealthServer exposes probes for processes that run ingestion.
//
// Endpoints:
//   - /health/ready - 200 once the first ingestion run has succeeded
//   - /health/live  - 200 while runs keep succeeding within the staleness window
//   - /health       - combined status
//
// All endpoints return 503 once shuttingDown is set, so a replacement task takes over
// before this one stops ingesting.
type HealthServer struct {
	server       *http.Server
	checker      inbound.HealthChecker
	shuttingDown *atomic.Bool
	logger       *slog.Logger
}

// NewHealthServer creates a new health server.
func NewHealthServer(config HealthServerConfig, checker inbound.HealthChecker, shuttingDown *atomic.Bool) (*HealthServer, error) {
	if checker == nil {
		return nil, fmt.Errorf("health checker cannot be nil")
	}
	if shuttingDown == nil {
		shuttingDown = new(atomic.Bool)
	}

	defaults := HealthServerConfigDefaults()
	if config.Addr == "" {
		config.Addr = defaults.Addr
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}

	hs := &HealthServer{
		checker:      checker,
		shuttingDown: shuttingDown,
		logger:       config.Logger.With("component", "health-server"),
	}
	hs.server = &http.Server{
		Addr:         config.Addr,
		Handler:      hs.Routes(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return hs, nil
}

// Routes returns the probe router.
func (hs *HealthServer) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/health/ready", hs.handleReady)
	r.Get("/health/live", hs.handleLive)
	r.Get("/health", hs.handleHealth)
	return r
}

// Start serves probes in a background goroutine.
func (hs *HealthServer) Start() {
	go func() {
		hs.logger.Info("starting health server", "addr", hs.server.Addr)
		if err := hs.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			hs.logger.Error("health server failed", "error", err)
		}
	}()
}

// Shutdown gracefully stops the health server.
func (hs *HealthServer) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return hs.server.Shutdown(ctx)
}

func (hs *HealthServer) handleReady(w http.ResponseWriter, _ *http.Request) {
	if hs.shuttingDown.Load() {
		hs.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
		return
	}
	if hs.checker.IsReady() {
		hs.respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	} else {
		hs.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
	}
}

func (hs *HealthServer) handleLive(w http.ResponseWriter, _ *http.Request) {
	if hs.shuttingDown.Load() {
		hs.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
		return
	}
	if hs.checker.IsHealthy() {
		hs.respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	} else {
		hs.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
	}
}

func (hs *HealthServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if hs.shuttingDown.Load() {
		hs.respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":       "shutting_down",
			"ready":        false,
			"healthy":      false,
			"shuttingDown": true,
		})
		return
	}

	ready := hs.checker.IsReady()
	healthy := hs.checker.IsHealthy()
	status, code := "ok", http.StatusOK
	if !ready || !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	hs.respondJSON(w, code, map[string]any{
		"status":       status,
		"ready":        ready,
		"healthy":      healthy,
		"shuttingDown": false,
	})
}

func (hs *HealthServer) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		hs.logger.Error("failed to encode JSON response", "error", err)
	}
}
