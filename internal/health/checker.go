// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package health

import (
	"context"
	"time"
)

// Status is the health of one component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded" // still serving, but failures seen
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is the outcome of one check
type CheckResult struct {
	Status  Status                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
	Latency time.Duration          `json:"latency"`
}

// Checker checks one component
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}
