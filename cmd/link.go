// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/webcontrol/pkg/desk"
	"github.com/Thermoquad/webcontrol/pkg/deskproto"
)

const (
	reconnectInitialBackoff = 1 * time.Second
	reconnectMaxBackoff     = 30 * time.Second
)

// Link is a desk.Transport that keeps a connection open, reopening it with
// exponential backoff whenever it is lost. While disconnected, sends fail
// immediately with desk.ErrLinkClosed.
type Link struct {
	name    string
	dial    Dialer
	logger  *zap.Logger
	onState func(up bool, info string)
	onFrame func(deskproto.DecodedFrame)

	mu        sync.RWMutex
	conn      Connection
	transport *desk.WriterTransport
	connInfo  string

	initialBackoff time.Duration
	maxBackoff     time.Duration

	lost      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// LinkOption configures a Link
type LinkOption func(*Link)

// WithLinkLogger sets the link logger
func WithLinkLogger(l *zap.Logger) LinkOption {
	return func(k *Link) { k.logger = l }
}

// WithStateHook is called after every connect and disconnect
func WithStateHook(fn func(up bool, info string)) LinkOption {
	return func(k *Link) { k.onState = fn }
}

// WithFrameHook receives frames read back from the link
func WithFrameHook(fn func(deskproto.DecodedFrame)) LinkOption {
	return func(k *Link) { k.onFrame = fn }
}

// withBackoff overrides the reconnect backoff bounds
func withBackoff(initial, max time.Duration) LinkOption {
	return func(k *Link) {
		k.initialBackoff = initial
		k.maxBackoff = max
	}
}

// NewLink starts a link supervisor for the named desk. The first dial
// happens in the background, so the link may start out disconnected.
func NewLink(name string, dial Dialer, opts ...LinkOption) *Link {
	l := &Link{
		name:           name,
		dial:           dial,
		logger:         zap.NewNop(),
		initialBackoff: reconnectInitialBackoff,
		maxBackoff:     reconnectMaxBackoff,
		lost:           make(chan struct{}, 1),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(zap.String("desk", name))

	l.wg.Add(1)
	go l.supervise()
	return l
}

// Send implements desk.Transport
func (l *Link) Send(ctx context.Context, frame []byte) error {
	l.mu.RLock()
	t, info := l.transport, l.connInfo
	l.mu.RUnlock()

	if t == nil {
		return fmt.Errorf("desk %s: %w", l.name, desk.ErrLinkClosed)
	}
	err := t.Send(ctx, frame)
	if errors.Is(err, desk.ErrLinkClosed) {
		l.logger.Warn("link lost on write", zap.String("conn", info), zap.Error(err))
		l.markLost()
	}
	return err
}

// Connected reports whether the link currently holds an open connection
func (l *Link) Connected() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.conn != nil
}

// Info describes the current connection, or "" while disconnected
func (l *Link) Info() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.connInfo
}

// Close stops reconnecting and closes the connection
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
	})
	l.detach()
	l.wg.Wait()
	return nil
}

func (l *Link) markLost() {
	select {
	case l.lost <- struct{}{}:
	default:
	}
}

// supervise owns the connection lifecycle: connect, watch, reconnect
func (l *Link) supervise() {
	defer l.wg.Done()

	immediate := true
	for {
		if !l.connect(immediate) {
			return
		}
		immediate = false

		readerDone := make(chan struct{})
		conn := l.currentConn()
		go func() {
			defer close(readerDone)
			l.readLoop(conn)
		}()

		select {
		case <-l.done:
			l.detach()
			<-readerDone
			return
		case <-l.lost:
		case <-readerDone:
		}

		l.detach()
		<-readerDone
	}
}

// connect dials until it succeeds or the link is closed. Unless immediate,
// it waits one backoff interval before the first attempt.
func (l *Link) connect(immediate bool) bool {
	backoff := l.initialBackoff
	first := immediate

	for {
		if !first {
			select {
			case <-l.done:
				return false
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > l.maxBackoff {
				backoff = l.maxBackoff
			}
		}
		first = false

		select {
		case <-l.done:
			return false
		default:
		}

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			select {
			case <-l.done:
				cancel()
			case <-ctx.Done():
			}
		}()
		conn, info, err := l.dial(ctx)
		cancel()
		if err != nil {
			l.logger.Warn("link connect failed", zap.Duration("retry_in", backoff), zap.Error(err))
			continue
		}

		// drain a stale loss signal from the previous connection
		select {
		case <-l.lost:
		default:
		}

		l.mu.Lock()
		l.conn = conn
		l.transport = desk.NewWriterTransport(conn)
		l.connInfo = info
		l.mu.Unlock()

		l.logger.Info("link connected", zap.String("conn", info))
		if l.onState != nil {
			l.onState(true, info)
		}
		return true
	}
}

func (l *Link) currentConn() Connection {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.conn
}

// detach closes and forgets the current connection
func (l *Link) detach() {
	l.mu.Lock()
	conn, info := l.conn, l.connInfo
	l.conn = nil
	l.transport = nil
	l.connInfo = ""
	l.mu.Unlock()

	if conn == nil {
		return
	}
	conn.Close()
	l.logger.Info("link disconnected", zap.String("conn", info))
	if l.onState != nil {
		l.onState(false, info)
	}
}

// readLoop consumes bytes from conn until it is lost. Reading keeps
// WebSocket control frames flowing and surfaces closed links early.
func (l *Link) readLoop(conn Connection) {
	if conn == nil {
		return
	}
	decoder := deskproto.NewDecoder()
	buf := make([]byte, 128)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			select {
			case <-l.done:
				return
			default:
			}
			if errors.Is(err, desk.ErrLinkClosed) || errors.Is(err, io.EOF) {
				return
			}
			if l.currentConn() != conn {
				return
			}
			// Brief pause before retry on transient errors (e.g., serial)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		for i := 0; i < n; i++ {
			frame, decodeErr := decoder.DecodeByte(buf[i])
			if decodeErr != nil {
				l.logger.Debug("undecodable byte from device", zap.Error(decodeErr))
				continue
			}
			if frame != nil {
				l.logger.Debug("frame from device", zap.String("frame", deskproto.FormatFrame(frame.Frame)))
				if l.onFrame != nil {
					l.onFrame(*frame)
				}
			}
		}
	}
}
