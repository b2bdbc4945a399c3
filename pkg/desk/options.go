// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package desk

import (
	"time"

	"go.uber.org/zap"
)

type options struct {
	logger      *zap.Logger
	observer    Observer
	health      *LinkHealth
	heightRange HeightRange
	sendTimeout time.Duration
}

func defaultOptions() options {
	return options{
		logger:      zap.NewNop(),
		observer:    NopObserver{},
		heightRange: DefaultHeightRange,
		sendTimeout: DefaultSendTimeout,
	}
}

// Option configures a Controller or Dispatcher.
// Options that do not apply to the value being built are ignored.
type Option func(*options)

// WithLogger sets the structured logger
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver sets the event observer
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithHealth sets the link health tracker (Controller only)
func WithHealth(h *LinkHealth) Option {
	return func(o *options) {
		o.health = h
	}
}

// WithHeightRange sets the raw height range used for percent conversion (Controller only)
func WithHeightRange(r HeightRange) Option {
	return func(o *options) {
		o.heightRange = r
	}
}

// WithSendTimeout bounds each transport write (Controller only)
func WithSendTimeout(d time.Duration) Option {
	return func(o *options) {
		o.sendTimeout = d
	}
}
