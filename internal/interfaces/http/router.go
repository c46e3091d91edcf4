// Package http assembles the GraphChem HTTP API: routing, middleware, and
// the server lifecycle.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/molforge/graphchem/internal/infrastructure/monitoring/logging"
	"github.com/molforge/graphchem/internal/infrastructure/monitoring/metrics"
	"github.com/molforge/graphchem/internal/interfaces/http/handlers"
	"github.com/molforge/graphchem/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handlers and infrastructure the route tree
// needs.  Nil handlers leave their routes unregistered.
type RouterConfig struct {
	PredictHandler *handlers.PredictHandler
	RunsHandler    *handlers.RunsHandler
	HealthHandler  *handlers.HealthHandler

	Metrics *metrics.Metrics
	Logger  logging.Logger

	// Mode selects the gin mode: "debug", "release", or "test".
	Mode string
}

// NewRouter constructs the full route tree as an http.Handler.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}

	r := gin.New()
	r.Use(middleware.RequestLogger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))

	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.Liveness)
		r.GET("/readyz", cfg.HealthHandler.Readiness)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api/v1")
	if cfg.PredictHandler != nil {
		api.POST("/predict", cfg.PredictHandler.Predict)
		api.POST("/similar", cfg.PredictHandler.Similar)
	}
	if cfg.RunsHandler != nil {
		api.POST("/runs", cfg.RunsHandler.Start)
		api.GET("/runs", cfg.RunsHandler.List)
		api.GET("/runs/:runID", cfg.RunsHandler.Get)
	}

	return r
}
