// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package desk

import (
	"context"
	"sync"

	"github.com/Thermoquad/webcontrol/pkg/deskproto"
)

// Recorder is an in-memory Transport that keeps every frame it is sent
type Recorder struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
	onSend func(frame []byte)
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Send records a copy of frame, or returns the injected error
func (r *Recorder) Send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	r.frames = append(r.frames, cp)
	if r.onSend != nil {
		r.onSend(cp)
	}
	return nil
}

// SetError makes subsequent sends fail with err (nil restores success)
func (r *Recorder) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// OnSend registers a callback run for every recorded frame
func (r *Recorder) OnSend(fn func(frame []byte)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onSend = fn
}

// Len returns the number of recorded frames
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// Raw returns copies of the recorded frames as sent
func (r *Recorder) Raw() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.frames))
	for i, f := range r.frames {
		out[i] = append([]byte(nil), f...)
	}
	return out
}

// Frames decodes the recorded frames. Frames that fail to decode are skipped.
func (r *Recorder) Frames() []deskproto.Frame {
	raw := r.Raw()
	frames := make([]deskproto.Frame, 0, len(raw))
	for _, b := range raw {
		var f deskproto.Frame
		if err := f.UnmarshalBinary(b); err == nil {
			frames = append(frames, f)
		}
	}
	return frames
}

// Reset drops all recorded frames
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = nil
}
