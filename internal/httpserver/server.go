// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package httpserver

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Thermoquad/webcontrol/internal/config"
	"github.com/Thermoquad/webcontrol/internal/health"
	"github.com/Thermoquad/webcontrol/internal/metrics"
	"github.com/Thermoquad/webcontrol/pkg/desk"
)

// Deps are the collaborators the HTTP front-end serves
type Deps struct {
	Dispatcher *desk.Dispatcher
	Health     *health.Aggregator
	Limiter    *RateLimiter // nil disables rate limiting
	Metrics    *metrics.AppMetrics
	Logger     *zap.Logger

	MetricsPath    string       // defaults to /metrics
	MetricsHandler http.Handler // nil disables the metrics route

	// OnLinkLost is called when a request finds a desk link gone
	OnLinkLost func(desk string, err error)
}

// Server wraps the gin engine and http.Server
type Server struct {
	srv *http.Server
	h   *handlers
}

// New builds the router and server
func New(cfg config.HTTPConfig, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Health == nil {
		deps.Health = health.NewAggregator()
	}

	h := &handlers{
		dispatcher: deps.Dispatcher,
		limiter:    deps.Limiter,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		onLinkLost: deps.OnLinkLost,
		static:     staticHandler(cfg.Static),
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog(deps.Logger))

	health.RegisterHTTPRoutes(r, deps.Health)
	if deps.MetricsHandler != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(deps.MetricsHandler))
	}

	r.GET("/api/desks", h.listDesks)
	r.PUT("/:desk", h.command)
	r.POST("/:desk", h.command)
	r.GET("/:desk", h.getHeight)
	r.NoRoute(h.noRoute)

	return &Server{
		srv: &http.Server{
			Addr:         cfg.Addr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		h: h,
	}
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Addr returns the configured listen address
func (s *Server) Addr() string {
	return s.srv.Addr
}

// Start serves until Shutdown (blocking)
func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
