// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package health

import (
	"context"
	"fmt"

	"github.com/Thermoquad/webcontrol/pkg/desk"
)

// ConnectedFunc reports whether a link currently holds an open connection
type ConnectedFunc func() bool

// DeskChecker reports the link health of one desk
type DeskChecker struct {
	name      string
	health    *desk.LinkHealth
	connected ConnectedFunc
}

// NewDeskChecker creates a checker for a desk. connected may be nil for
// links that are always attached, such as dry-run recorders.
func NewDeskChecker(name string, h *desk.LinkHealth, connected ConnectedFunc) *DeskChecker {
	return &DeskChecker{name: name, health: h, connected: connected}
}

// Name returns "desk:<name>"
func (c *DeskChecker) Name() string {
	return "desk:" + c.name
}

// Check implements Checker
func (c *DeskChecker) Check(ctx context.Context) CheckResult {
	snap := c.health.Snapshot()
	details := map[string]interface{}{
		"consecutive_failures": snap.ConsecutiveFailures,
	}
	if !snap.LastSuccess.IsZero() {
		details["last_success"] = snap.LastSuccess
	}

	if c.connected != nil && !c.connected() {
		details["connected"] = false
		return CheckResult{Status: StatusUnhealthy, Message: "link disconnected", Details: details}
	}
	switch {
	case !snap.Healthy:
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("%d consecutive send failures: %s", snap.ConsecutiveFailures, snap.LastError),
			Details: details,
		}
	case snap.ConsecutiveFailures > 0:
		return CheckResult{Status: StatusDegraded, Message: snap.LastError, Details: details}
	default:
		return CheckResult{Status: StatusHealthy, Details: details}
	}
}
