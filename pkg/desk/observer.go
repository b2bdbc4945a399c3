// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package desk

import (
	"time"

	"github.com/Thermoquad/webcontrol/pkg/deskproto"
)

// Observer receives controller and dispatcher events, typically for metrics
type Observer interface {
	FrameSent(desk string, frame deskproto.Frame, elapsed time.Duration)
	SendFailed(desk string, err error)
	RequestHandled(desk, command, result string)
}

// NopObserver discards all events
type NopObserver struct{}

func (NopObserver) FrameSent(string, deskproto.Frame, time.Duration) {}
func (NopObserver) SendFailed(string, error)                         {}
func (NopObserver) RequestHandled(string, string, string)            {}
