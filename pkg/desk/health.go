// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package desk

import (
	"sync"
	"time"
)

// DefaultFailureThreshold is the number of consecutive failed sends after
// which a link is reported unhealthy
const DefaultFailureThreshold = 3

// LinkHealth tracks the outcome of recent sends on one link
type LinkHealth struct {
	mu                  sync.Mutex
	threshold           int
	consecutiveFailures int
	lastErr             error
	lastSuccess         time.Time
	lastFailure         time.Time
}

// HealthSnapshot is a point-in-time copy of LinkHealth
type HealthSnapshot struct {
	Healthy             bool      `json:"healthy"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
	LastSuccess         time.Time `json:"last_success,omitzero"`
	LastFailure         time.Time `json:"last_failure,omitzero"`
}

// NewLinkHealth creates a tracker. threshold <= 0 uses DefaultFailureThreshold.
func NewLinkHealth(threshold int) *LinkHealth {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	return &LinkHealth{threshold: threshold}
}

// RecordSuccess resets the failure streak
func (h *LinkHealth) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutiveFailures = 0
	h.lastErr = nil
	h.lastSuccess = time.Now()
}

// RecordFailure extends the failure streak
func (h *LinkHealth) RecordFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutiveFailures++
	h.lastErr = err
	h.lastFailure = time.Now()
}

// Healthy reports whether the failure streak is below the threshold
func (h *LinkHealth) Healthy() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.consecutiveFailures < h.threshold
}

// Snapshot returns a copy of the current state
func (h *LinkHealth) Snapshot() HealthSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := HealthSnapshot{
		Healthy:             h.consecutiveFailures < h.threshold,
		ConsecutiveFailures: h.consecutiveFailures,
		LastSuccess:         h.lastSuccess,
		LastFailure:         h.lastFailure,
	}
	if h.lastErr != nil {
		s.LastError = h.lastErr.Error()
	}
	return s
}
