// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package health

import (
	"context"
	"sync"
	"time"
)

// Aggregator runs a set of checkers and combines their results
type Aggregator struct {
	checkers []Checker
	mu       sync.RWMutex
}

// NewAggregator creates an aggregator over checkers
func NewAggregator(checkers ...Checker) *Aggregator {
	return &Aggregator{
		checkers: checkers,
	}
}

// AddChecker adds a checker
func (a *Aggregator) AddChecker(checker Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checkers = append(a.checkers, checker)
}

// CheckAll runs every checker concurrently
func (a *Aggregator) CheckAll(ctx context.Context) map[string]CheckResult {
	a.mu.RLock()
	defer a.mu.RUnlock()

	results := make(map[string]CheckResult, len(a.checkers))
	var resultsMu sync.Mutex
	var wg sync.WaitGroup

	for _, checker := range a.checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()

			start := time.Now()
			result := c.Check(ctx)
			if result.Latency == 0 {
				result.Latency = time.Since(start)
			}

			resultsMu.Lock()
			results[c.Name()] = result
			resultsMu.Unlock()
		}(checker)
	}

	wg.Wait()
	return results
}

// Overall folds results into one status: any unhealthy wins, then degraded
func Overall(results map[string]CheckResult) Status {
	status := StatusHealthy
	for _, result := range results {
		switch result.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

// OverallStatus runs every check and folds the results
func (a *Aggregator) OverallStatus(ctx context.Context) Status {
	return Overall(a.CheckAll(ctx))
}

// Ready reports whether the service can take requests. Degraded is ready.
func (a *Aggregator) Ready(ctx context.Context) bool {
	return a.OverallStatus(ctx) != StatusUnhealthy
}

// Report is the full health document
type Report struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

// Report runs every check and builds a report
func (a *Aggregator) Report(ctx context.Context) Report {
	results := a.CheckAll(ctx)
	return Report{
		Status:    Overall(results),
		Timestamp: time.Now(),
		Checks:    results,
	}
}
