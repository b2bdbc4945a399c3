// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package health

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterHTTPRoutes adds /healthz (liveness), /readyz (readiness) and
// /health (full report)
func RegisterHTTPRoutes(r gin.IRoutes, aggregator *Aggregator) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/readyz", func(c *gin.Context) {
		if !aggregator.Ready(c.Request.Context()) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "ready": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "ready": true})
	})

	r.GET("/health", func(c *gin.Context) {
		report := aggregator.Report(c.Request.Context())
		code := http.StatusOK
		if report.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, report)
	})
}
