// Package http assembles the HTTP surface: system endpoints plus every
// resource route in the registry.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/artpar/calm/adapters/metrics"
	"github.com/artpar/calm/core/httpapi"
	"github.com/artpar/calm/core/registry"
)

// VersionResponse represents the version endpoint response.
type VersionResponse struct {
	Version string `json:"version"`
	Service string `json:"service"`
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	db Pinger
}

// Pinger checks a backing connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHealthHandler creates a new health handler. db may be nil.
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// Liveness returns a simple liveness check.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness reports whether the database answers.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// VersionHandler returns a handler reporting version.
func VersionHandler(version string) http.HandlerFunc {
	if version == "" {
		version = "dev"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, VersionResponse{Version: version, Service: "calm"})
	}
}

// RouterConfig holds optional configuration for the router.
type RouterConfig struct {
	Metrics        *metrics.Collector
	MetricsHandler http.Handler // Serves MetricsPath; promhttp.Handler() when nil and Metrics is set
	MetricsPath    string       // Default: /metrics

	// Development exposes error stacks in responses.
	Development bool

	// RequestTimeout bounds each request. Default: 60s.
	RequestTimeout time.Duration

	Version string
}

// NewRouter creates the main HTTP router with every registered resource
// mounted. System endpoints are registered last and win over resource
// routes with the same path.
func NewRouter(reg *registry.Registry, health *HealthHandler, logger zerolog.Logger, cfg RouterConfig) chi.Router {
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger, cfg.MetricsPath))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}

	stage := &httpapi.ErrorStage{Development: cfg.Development, Logger: logger}
	r.Use(stage.Middleware)

	// Resources
	if reg != nil {
		warnReserved(reg, logger, cfg.MetricsPath)
		reg.MountAll(r)
	}

	// Health endpoints
	r.Get("/health", health.Liveness)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Metrics endpoint (prefer the given handler, fall back to promhttp)
	if cfg.MetricsHandler != nil {
		r.Handle(cfg.MetricsPath, cfg.MetricsHandler)
	} else if cfg.Metrics != nil {
		r.Handle(cfg.MetricsPath, promhttp.Handler())
	}

	r.Get("/version", VersionHandler(cfg.Version))

	r.NotFound(httpapi.NotFound)
	r.MethodNotAllowed(httpapi.MethodNotAllowed)

	return r
}

// ReservedPaths lists the system endpoints that resource routes cannot
// take over.
func ReservedPaths(metricsPath string) []string {
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	return []string{"/health", "/health/live", "/health/ready", metricsPath, "/version"}
}

func warnReserved(reg *registry.Registry, logger zerolog.Logger, metricsPath string) {
	reserved := make(map[string]bool)
	for _, p := range ReservedPaths(metricsPath) {
		reserved[p] = true
	}
	for _, t := range reg.Tables() {
		for _, rt := range t.Routes() {
			if reserved[rt.Path] {
				logger.Warn().
					Str("resource", t.Name()).
					Str("route", rt.String()).
					Msg("route shadowed by a system endpoint")
			}
		}
	}
}

// NewLoggingMiddleware creates a new logging middleware. Health checks and
// metrics scrapes are not logged.
func NewLoggingMiddleware(logger zerolog.Logger, metricsPath string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			if strings.HasPrefix(r.URL.Path, "/health") || r.URL.Path == metricsPath {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
