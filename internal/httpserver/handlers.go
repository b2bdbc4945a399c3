// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package httpserver

import (
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Thermoquad/webcontrol/internal/metrics"
	"github.com/Thermoquad/webcontrol/pkg/desk"
)

const (
	reasonUnknownResource = "unknown resource"
	reasonRateLimited     = "rate limited"
)

type handlers struct {
	dispatcher *desk.Dispatcher
	limiter    *RateLimiter
	metrics    *metrics.AppMetrics
	logger     *zap.Logger
	onLinkLost func(desk string, err error)
	static     http.Handler
}

// command handles PUT/POST /:desk
func (h *handlers) command(c *gin.Context) {
	name := c.Param("desk")
	if _, ok := h.dispatcher.Controller(name); !ok {
		render(c, http.StatusNotFound, gin.H{"error": reasonUnknownResource})
		return
	}
	if !h.allow(name) {
		render(c, http.StatusTooManyRequests, gin.H{"error": reasonRateLimited})
		return
	}

	req, err := decodeBody(c.Request)
	if err != nil {
		reply := desk.ErrorReply(&desk.ParseError{Kind: desk.Malformed, Detail: err.Error()})
		render(c, http.StatusBadRequest, reply.Map())
		return
	}

	reply, err := h.dispatcher.Handle(c.Request.Context(), name, req)
	h.respond(c, name, reply, err)
}

// getHeight handles GET /:desk. Names that are not desks fall through to
// static files so the control page can be served from the same root.
func (h *handlers) getHeight(c *gin.Context) {
	name := c.Param("desk")
	if _, ok := h.dispatcher.Controller(name); !ok {
		h.noRoute(c)
		return
	}
	if !h.allow(name) {
		render(c, http.StatusTooManyRequests, gin.H{"error": reasonRateLimited})
		return
	}
	reply, err := h.dispatcher.HandleCommand(c.Request.Context(), name, desk.GetHeight{})
	h.respond(c, name, reply, err)
}

func (h *handlers) respond(c *gin.Context, name string, reply desk.Reply, err error) {
	switch {
	case errors.Is(err, desk.ErrUnknownResource):
		render(c, http.StatusNotFound, gin.H{"error": reasonUnknownResource})
		return
	case errors.Is(err, desk.ErrLinkClosed):
		_ = c.Error(err)
		if h.onLinkLost != nil {
			h.onLinkLost(name, err)
		}
	case err != nil:
		_ = c.Error(err)
	}
	render(c, http.StatusOK, reply.Map())
}

func (h *handlers) allow(name string) bool {
	if h.limiter == nil || h.limiter.Allow(name) {
		return true
	}
	if h.metrics != nil {
		h.metrics.RateLimited.WithLabelValues(name).Inc()
	}
	return false
}

// DeskInfo describes one desk in /api/desks
type DeskInfo struct {
	Name        string              `json:"name"`
	HeightRange desk.HeightRange    `json:"height_range"`
	Link        desk.HealthSnapshot `json:"link"`
}

func (h *handlers) listDesks(c *gin.Context) {
	names := h.dispatcher.Resources()
	out := make([]DeskInfo, 0, len(names))
	for _, name := range names {
		ctrl, _ := h.dispatcher.Controller(name)
		out = append(out, DeskInfo{
			Name:        name,
			HeightRange: ctrl.HeightRange(),
			Link:        ctrl.Health().Snapshot(),
		})
	}
	resp := gin.H{"desks": out}
	if h.limiter != nil {
		resp["rate_limit"] = h.limiter.Stats()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) noRoute(c *gin.Context) {
	if h.static != nil && (c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead) {
		h.static.ServeHTTP(c.Writer, c.Request)
		return
	}
	render(c, http.StatusNotFound, gin.H{"error": reasonUnknownResource})
}

// staticHandler serves dir, or returns nil when dir is unset or missing
func staticHandler(dir string) http.Handler {
	if dir == "" {
		return nil
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return nil
	}
	return http.FileServer(http.Dir(dir))
}
