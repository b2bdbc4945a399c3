// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package httpserver

import (
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// RateLimiter is a set of token buckets, one per desk
type RateLimiter struct {
	limit    rate.Limit
	burst    int
	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	allowedCount  atomic.Int64
	rejectedCount atomic.Int64
}

// NewRateLimiter creates per-desk buckets refilled at perSecond with the
// given burst. perSecond <= 0 disables limiting.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &RateLimiter{
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow takes a token from desk's bucket without blocking
func (l *RateLimiter) Allow(desk string) bool {
	if l.limiter(desk).Allow() {
		l.allowedCount.Add(1)
		return true
	}
	l.rejectedCount.Add(1)
	return false
}

func (l *RateLimiter) limiter(desk string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[desk]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[desk] = lim
	}
	return lim
}

// RateLimiterStats are cumulative counters
type RateLimiterStats struct {
	PerSecond     float64 `json:"per_second"`
	Burst         int     `json:"burst"`
	AllowedTotal  int64   `json:"allowed_total"`
	RejectedTotal int64   `json:"rejected_total"`
}

// Stats returns the cumulative counters. PerSecond is 0 when unlimited.
func (l *RateLimiter) Stats() RateLimiterStats {
	perSecond := float64(l.limit)
	if l.limit == rate.Inf {
		perSecond = 0
	}
	return RateLimiterStats{
		PerSecond:     perSecond,
		Burst:         l.burst,
		AllowedTotal:  l.allowedCount.Load(),
		RejectedTotal: l.rejectedCount.Load(),
	}
}
