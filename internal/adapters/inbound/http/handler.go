// Package http provides the inbound HTTP adapters: the conversion API and the health
// server.
//
// API routes:
//   - GET /v1/api/prices/convert?currency1=BTC&currency2=ETH&timestamp=...
//   - GET /health
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/archon-research/spotrate/internal/domain/entity"
	"github.com/archon-research/spotrate/internal/ports/inbound"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HandlerConfig holds configuration for the API handler.
type HandlerConfig struct {
	// CacheMaxAge is advertised in Cache-Control on successful conversions.
	CacheMaxAge time.Duration

	// RateLimitRequests per client IP in each RateLimitWindow. Zero disables the limit.
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// AllowedOrigin is returned in Access-Control-Allow-Origin.
	AllowedOrigin string

	Logger *slog.Logger
}

// HandlerConfigDefaults returns a config with default values.
func HandlerConfigDefaults() HandlerConfig {
	return HandlerConfig{
		CacheMaxAge:       60 * time.Second,
		RateLimitRequests: 100,
		RateLimitWindow:   15 * time.Minute,
		AllowedOrigin:     "*",
		Logger:            slog.Default(),
	}
}

// Handler implements the HTTP API.
type Handler struct {
	config    HandlerConfig
	converter inbound.Converter
	store     Pinger
	limiter   *ipRateLimiter
	logger    *slog.Logger
	now       func() time.Time
}

// NewHandler creates a new API handler.
func NewHandler(config HandlerConfig, converter inbound.Converter, store Pinger) *Handler {
	defaults := HandlerConfigDefaults()
	if config.CacheMaxAge <= 0 {
		config.CacheMaxAge = defaults.CacheMaxAge
	}
	if config.RateLimitWindow <= 0 {
		config.RateLimitWindow = defaults.RateLimitWindow
	}
	if config.AllowedOrigin == "" {
		config.AllowedOrigin = defaults.AllowedOrigin
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	h := &Handler{
		config:    config,
		converter: converter,
		store:     store,
		logger:    config.Logger.With("component", "http-api"),
		now:       time.Now,
	}
	if config.RateLimitRequests > 0 {
		h.limiter = newIPRateLimiter(config.RateLimitRequests, config.RateLimitWindow)
	}
	return h
}

// Routes returns the API router with its middleware stack.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&slogFormatter{logger: h.logger}))
	r.Use(middleware.Recoverer)
	r.Use(cors(h.config.AllowedOrigin))

	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		if h.limiter != nil {
			r.Use(h.rateLimit)
		}
		r.Get("/v1/api/prices/convert", h.Convert)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		h.respondError(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		h.respondError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	return r
}

type convertResponse struct {
	From           string               `json:"from"`
	To             string               `json:"to"`
	Rate           json.Number          `json:"rate"`
	Timestamp      time.Time            `json:"timestamp"`
	DataTimestamps map[string]time.Time `json:"data_timestamps"`
}

// Convert handles GET /v1/api/prices/convert.
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	conv, err := h.converter.Convert(r.Context(), inbound.ConvertRequest{
		From: q.Get("currency1"),
		To:   q.Get("currency2"),
		At:   q.Get("timestamp"),
	})
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(int(h.config.CacheMaxAge.Seconds())))
	h.respondJSON(w, http.StatusOK, convertResponse{
		From:           conv.From,
		To:             conv.To,
		Rate:           json.Number(conv.Rate.String()),
		Timestamp:      conv.QueryTimestamp,
		DataTimestamps: conv.DataTimestamps,
	})
}

// Health handles GET /health. It reports 503 when the price store is unreachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	now := h.now().UTC()
	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			h.logger.Error("health check failed", "error", err)
			h.respondJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "UNAVAILABLE", "timestamp": now})
			return
		}
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"status": "OK", "timestamp": now})
}

// respondDomainError maps error kinds to status codes. Only validation and not-found
// messages reach the caller; everything else is logged and replaced.
func (h *Handler) respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status  int
		message string
	)
	switch entity.KindOf(err) {
	case entity.KindValidation:
		status, message = http.StatusBadRequest, publicMessage(err)
	case entity.KindNotFound:
		status, message = http.StatusNotFound, publicMessage(err)
	default:
		status, message = http.StatusInternalServerError, "Internal Server Error"
		h.logger.Error("conversion failed",
			"requestId", middleware.GetReqID(r.Context()),
			"query", r.URL.RawQuery,
			"error", err)
	}
	h.respondError(w, status, message)
}

func publicMessage(err error) string {
	if de := asDomainError(err); de != nil {
		return de.Message
	}
	return "Internal Server Error"
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
