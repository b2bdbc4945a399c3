// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package desk

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Transport is an exclusive byte channel to one device.
// Implementations should return an error wrapping ErrLinkClosed when the
// link itself is gone.
type Transport interface {
	Send(ctx context.Context, frame []byte) error
}

// WriterTransport sends frames over an io.Writer such as a serial port.
//
// Writes cannot be cancelled once started. When ctx expires Send returns
// ErrSendTimeout, but the write keeps its slot until the writer returns, so
// a later frame is never interleaved with a timed-out one.
type WriterTransport struct {
	w   io.Writer
	sem chan struct{}
}

// NewWriterTransport creates a transport over w
func NewWriterTransport(w io.Writer) *WriterTransport {
	return &WriterTransport{
		w:   w,
		sem: make(chan struct{}, 1),
	}
}

// Send writes frame in a single Write call
func (t *WriterTransport) Send(ctx context.Context, frame []byte) error {
	select {
	case t.sem <- struct{}{}:
	case <-ctx.Done():
		return sendContextErr(ctx)
	}

	done := make(chan error, 1)
	go func() {
		defer func() { <-t.sem }()
		n, err := t.w.Write(frame)
		if err == nil && n != len(frame) {
			err = fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, n, len(frame))
		}
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return sendContextErr(ctx)
	}
}

func sendContextErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrSendTimeout, ctx.Err())
	}
	return ctx.Err()
}
