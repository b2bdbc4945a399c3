// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/webcontrol/pkg/desk"
	"github.com/Thermoquad/webcontrol/pkg/deskproto"
)

// pipeConn is an in-memory Connection. Reads block until data is pushed or
// the connection is closed.
type pipeConn struct {
	mu       sync.Mutex
	written  bytes.Buffer
	incoming chan []byte
	closed   chan struct{}
	once     sync.Once
}

func newPipeConn() *pipeConn {
	return &pipeConn{incoming: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *pipeConn) Read(p []byte) (int, error) {
	select {
	case data := <-c.incoming:
		return copy(p, data), nil
	case <-c.closed:
		return 0, fmt.Errorf("pipe: %w", desk.ErrLinkClosed)
	}
}

func (c *pipeConn) Write(p []byte) (int, error) {
	select {
	case <-c.closed:
		return 0, fmt.Errorf("pipe: %w", desk.ErrLinkClosed)
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written.Write(p)
}

func (c *pipeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *pipeConn) Written() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.written.Bytes()...)
}

// pipeDialer hands out fresh pipeConns and can be told to fail
type pipeDialer struct {
	mu    sync.Mutex
	conns []*pipeConn
	fail  atomic.Bool
	dials atomic.Int32
}

func (d *pipeDialer) dial(ctx context.Context) (Connection, string, error) {
	n := d.dials.Add(1)
	if d.fail.Load() {
		return nil, "", errors.New("no such device")
	}
	c := newPipeConn()
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, fmt.Sprintf("pipe #%d", n), nil
}

func (d *pipeDialer) last() *pipeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func TestLink_SendAndReconnect(t *testing.T) {
	dialer := &pipeDialer{}
	var ups, downs atomic.Int32
	link := NewLink("desk", dialer.dial,
		withBackoff(5*time.Millisecond, 20*time.Millisecond),
		WithStateHook(func(up bool, info string) {
			if up {
				ups.Add(1)
			} else {
				downs.Add(1)
			}
		}),
	)
	defer link.Close()

	require.Eventually(t, link.Connected, time.Second, 5*time.Millisecond)
	assert.Equal(t, "pipe #1", link.Info())

	frame := deskproto.NewMoveUp(500).Bytes()
	require.NoError(t, link.Send(context.Background(), frame))
	assert.Equal(t, []byte{0x03, 0x00, 0xF4, 0x01}, dialer.last().Written())

	// Drop the connection underneath the link
	first := dialer.last()
	first.Close()

	require.Eventually(t, func() bool {
		return dialer.dials.Load() >= 2 && link.Connected()
	}, time.Second, 5*time.Millisecond)
	assert.NotSame(t, first, dialer.last())

	require.NoError(t, link.Send(context.Background(), frame))
	assert.Equal(t, frame, dialer.last().Written())
	assert.GreaterOrEqual(t, ups.Load(), int32(2))
	assert.GreaterOrEqual(t, downs.Load(), int32(1))
}

func TestLink_FailsFastWhileDown(t *testing.T) {
	dialer := &pipeDialer{}
	dialer.fail.Store(true)
	link := NewLink("desk", dialer.dial, withBackoff(5*time.Millisecond, 10*time.Millisecond))
	defer link.Close()

	err := link.Send(context.Background(), deskproto.NewMoveDown(1).Bytes())
	assert.ErrorIs(t, err, desk.ErrLinkClosed)
	assert.False(t, link.Connected())

	require.Eventually(t, func() bool { return dialer.dials.Load() >= 3 }, time.Second, 5*time.Millisecond)

	dialer.fail.Store(false)
	require.Eventually(t, link.Connected, time.Second, 5*time.Millisecond)
}

func TestLink_WriteFailureTriggersReconnect(t *testing.T) {
	dialer := &pipeDialer{}
	link := NewLink("desk", dialer.dial, withBackoff(5*time.Millisecond, 10*time.Millisecond))
	defer link.Close()
	require.Eventually(t, link.Connected, time.Second, 5*time.Millisecond)

	// Keep the link down so the send cannot land on a fresh connection
	dialer.fail.Store(true)
	dialer.last().Close()
	err := link.Send(context.Background(), deskproto.NewSetHeight(300).Bytes())
	assert.ErrorIs(t, err, desk.ErrLinkClosed)

	dialer.fail.Store(false)
	require.Eventually(t, func() bool {
		return dialer.dials.Load() >= 2 && link.Connected()
	}, time.Second, 5*time.Millisecond)
}

func TestLink_FrameHook(t *testing.T) {
	dialer := &pipeDialer{}
	frames := make(chan deskproto.DecodedFrame, 4)
	link := NewLink("desk", dialer.dial, WithFrameHook(func(f deskproto.DecodedFrame) { frames <- f }))
	defer link.Close()
	require.Eventually(t, link.Connected, time.Second, 5*time.Millisecond)

	// Split across reads, with a junk byte in front
	conn := dialer.last()
	conn.incoming <- []byte{0xFF, 0x02, 0x00}
	conn.incoming <- []byte{0x2C, 0x01}

	select {
	case f := <-frames:
		assert.Equal(t, deskproto.NewSetHeight(300), f.Frame)
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
	}
}

func TestLink_CloseStopsReconnecting(t *testing.T) {
	dialer := &pipeDialer{}
	link := NewLink("desk", dialer.dial, withBackoff(5*time.Millisecond, 10*time.Millisecond))
	require.Eventually(t, link.Connected, time.Second, 5*time.Millisecond)

	require.NoError(t, link.Close())
	dials := dialer.dials.Load()
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, dials, dialer.dials.Load())
	assert.False(t, link.Connected())
	assert.ErrorIs(t, link.Send(context.Background(), []byte{1, 0, 0, 0}), desk.ErrLinkClosed)
}

func TestLink_WithController(t *testing.T) {
	dialer := &pipeDialer{}
	link := NewLink("desk", dialer.dial)
	defer link.Close()
	require.Eventually(t, link.Connected, time.Second, 5*time.Millisecond)

	ctrl, err := desk.NewController("desk", link)
	require.NoError(t, err)
	d := desk.NewDispatcher(map[string]*desk.Controller{"desk": ctrl})

	req, err := decodeRequest(`{"height": {"percent": 0}}`)
	require.NoError(t, err)
	reply, err := d.Handle(context.Background(), "desk", req)
	require.NoError(t, err)
	assert.True(t, reply.OK())
	assert.Equal(t, []byte{0x02, 0x00, 0xF2, 0x00}, dialer.last().Written())
}
