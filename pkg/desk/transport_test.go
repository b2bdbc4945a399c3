// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package desk

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Thermoquad/webcontrol/pkg/deskproto"
)

// tricklePort writes one byte at a time and yields between bytes, so any
// overlapping writers would interleave in buf
type tricklePort struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	active  atomic.Int32
	overlap atomic.Bool
}

func (p *tricklePort) Write(b []byte) (int, error) {
	if p.active.Add(1) > 1 {
		p.overlap.Store(true)
	}
	defer p.active.Add(-1)
	for _, c := range b {
		p.mu.Lock()
		p.buf.WriteByte(c)
		p.mu.Unlock()
		runtime.Gosched()
	}
	return len(b), nil
}

func TestConcurrentRequestsDoNotInterleave(t *testing.T) {
	port := &tricklePort{}
	c, err := NewController("desk", NewWriterTransport(port))
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}
	d := NewDispatcher(map[string]*Controller{"desk": c})

	const workers = 16
	const perWorker = 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				req := map[string]interface{}{"height": map[string]interface{}{"const": 1000 + w}}
				if i%2 == 1 {
					req = map[string]interface{}{"height": map[string]interface{}{
						"move": map[string]interface{}{"duration": 2000 + w, "direction": "up"},
					}}
				}
				reply, err := d.Handle(context.Background(), "desk", req)
				if err != nil || !reply.OK() {
					t.Errorf("worker %d: reply=%+v err=%v", w, reply, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	if port.overlap.Load() {
		t.Fatal("transport saw overlapping writes")
	}
	frames, err := deskproto.Decode(port.buf.Bytes())
	if err != nil {
		t.Fatalf("written stream is not a sequence of whole frames: %v", err)
	}
	if len(frames) != workers*perWorker {
		t.Fatalf("got %d frames, want %d", len(frames), workers*perWorker)
	}
	for _, f := range frames {
		switch f.Opcode {
		case deskproto.OpSetHeight:
			if f.Argument < 1000 || f.Argument >= 1000+workers {
				t.Errorf("corrupted set height frame %+v", f)
			}
		case deskproto.OpMoveUp:
			if f.Argument < 2000 || f.Argument >= 2000+workers {
				t.Errorf("corrupted move frame %+v", f)
			}
		default:
			t.Errorf("unexpected frame %+v", f)
		}
	}
}

type shortWriter struct{}

func (shortWriter) Write(b []byte) (int, error) { return len(b) - 1, nil }

type blockingWriter struct {
	started chan struct{}
	release chan struct{}
	writes  atomic.Int32
}

func (w *blockingWriter) Write(b []byte) (int, error) {
	if w.writes.Add(1) == 1 {
		close(w.started)
		<-w.release
	}
	return len(b), nil
}

func TestWriterTransport_ShortWrite(t *testing.T) {
	tr := NewWriterTransport(shortWriter{})
	err := tr.Send(context.Background(), deskproto.NewMoveUp(1).Bytes())
	if !errors.Is(err, ErrShortWrite) {
		t.Errorf("error = %v, want ErrShortWrite", err)
	}
}

func TestWriterTransport_TimeoutKeepsSlot(t *testing.T) {
	w := &blockingWriter{started: make(chan struct{}), release: make(chan struct{})}
	tr := NewWriterTransport(w)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := tr.Send(ctx, deskproto.NewMoveUp(1).Bytes()); !errors.Is(err, ErrSendTimeout) {
		t.Fatalf("first send error = %v, want ErrSendTimeout", err)
	}
	<-w.started

	// The first write is still in flight, so a second send must not start.
	ctx2, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	if err := tr.Send(ctx2, deskproto.NewMoveDown(1).Bytes()); !errors.Is(err, ErrSendTimeout) {
		t.Fatalf("second send error = %v, want ErrSendTimeout", err)
	}
	if n := w.writes.Load(); n != 1 {
		t.Fatalf("writer saw %d writes while the first was blocked, want 1", n)
	}

	close(w.release)
	if err := tr.Send(context.Background(), deskproto.NewMoveDown(1).Bytes()); err != nil {
		t.Fatalf("send after release failed: %v", err)
	}
	if n := w.writes.Load(); n != 2 {
		t.Errorf("writer saw %d writes, want 2", n)
	}
}

func TestRecorder(t *testing.T) {
	rec := NewRecorder()
	var seen int
	rec.OnSend(func([]byte) { seen++ })

	frame := deskproto.NewSetHeight(300).Bytes()
	if err := rec.Send(context.Background(), frame); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	frame[0] = 0xFF // recorder must have copied
	if got := rec.Frames(); len(got) != 1 || got[0] != deskproto.NewSetHeight(300) {
		t.Errorf("Frames() = %+v", got)
	}
	if seen != 1 {
		t.Errorf("OnSend called %d times, want 1", seen)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rec.Send(ctx, frame); !errors.Is(err, context.Canceled) {
		t.Errorf("Send with cancelled ctx error = %v", err)
	}

	rec.Reset()
	if rec.Len() != 0 {
		t.Errorf("Len() after Reset = %d", rec.Len())
	}
}

func TestLinkHealthSnapshot(t *testing.T) {
	h := NewLinkHealth(0)
	for i := 0; i < DefaultFailureThreshold; i++ {
		h.RecordFailure(errors.New("boom"))
	}
	s := h.Snapshot()
	if s.Healthy || s.ConsecutiveFailures != DefaultFailureThreshold || s.LastError != "boom" {
		t.Errorf("Snapshot() = %+v", s)
	}
	h.RecordSuccess()
	if s := h.Snapshot(); !s.Healthy || s.LastError != "" || s.LastSuccess.IsZero() {
		t.Errorf("Snapshot() after success = %+v", s)
	}
}
