// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package desk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Thermoquad/webcontrol/pkg/deskproto"
	"github.com/google/go-cmp/cmp"
)

func newTestController(t *testing.T, opts ...Option) (*Controller, *Recorder) {
	t.Helper()
	rec := NewRecorder()
	c, err := NewController("testdesk", rec, opts...)
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}
	return c, rec
}

func TestNewController_Validation(t *testing.T) {
	if _, err := NewController("d", nil); err == nil {
		t.Error("nil transport should be rejected")
	}
	if _, err := NewController("d", NewRecorder(), WithHeightRange(HeightRange{MinRaw: 500, MaxRaw: 400})); err == nil {
		t.Error("inverted height range should be rejected")
	}
	if _, err := NewController("d", NewRecorder(), WithSendTimeout(0)); err == nil {
		t.Error("zero send timeout should be rejected")
	}
}

func TestController_SetConst(t *testing.T) {
	c, rec := newTestController(t)

	fields, err := c.SetConst(context.Background(), 321)
	if err != nil {
		t.Fatalf("SetConst failed: %v", err)
	}
	if diff := cmp.Diff(map[string]interface{}{"raw_height": uint16(321)}, fields); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]deskproto.Frame{deskproto.NewSetHeight(321)}, rec.Frames()); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
}

func TestController_SetPercentBounds(t *testing.T) {
	c, rec := newTestController(t)
	ctx := context.Background()

	if _, err := c.SetPercent(ctx, 0); err != nil {
		t.Fatalf("SetPercent(0) failed: %v", err)
	}
	if _, err := c.SetPercent(ctx, 100); err != nil {
		t.Fatalf("SetPercent(100) failed: %v", err)
	}

	want := []deskproto.Frame{
		deskproto.NewSetHeight(DefaultHeightRange.MinRaw),
		deskproto.NewSetHeight(DefaultHeightRange.MaxRaw),
	}
	if diff := cmp.Diff(want, rec.Frames()); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
}

func TestController_SetPercentTruncates(t *testing.T) {
	c, rec := newTestController(t, WithHeightRange(HeightRange{MinRaw: 0, MaxRaw: 3}))

	fields, err := c.SetPercent(context.Background(), 50)
	if err != nil {
		t.Fatalf("SetPercent failed: %v", err)
	}
	// 0 + 50/100*3 = 1.5, truncated to 1
	if fields["raw_height"] != uint16(1) {
		t.Errorf("raw_height = %v, want 1", fields["raw_height"])
	}
	if got := rec.Frames()[0].Argument; got != 1 {
		t.Errorf("frame argument = %d, want 1", got)
	}
}

func TestHeightRange_Monotonic(t *testing.T) {
	ranges := []HeightRange{DefaultHeightRange, {MinRaw: 0, MaxRaw: 65535}, {MinRaw: 10, MaxRaw: 10}, {MinRaw: 0, MaxRaw: 7}}
	for _, r := range ranges {
		prev := r.Raw(0)
		if prev != r.MinRaw {
			t.Errorf("%+v: Raw(0) = %d, want %d", r, prev, r.MinRaw)
		}
		for p := 1; p <= 100; p++ {
			got := r.Raw(p)
			if got < prev {
				t.Fatalf("%+v: Raw(%d) = %d < Raw(%d) = %d", r, p, got, p-1, prev)
			}
			prev = got
		}
		if prev != r.MaxRaw {
			t.Errorf("%+v: Raw(100) = %d, want %d", r, prev, r.MaxRaw)
		}
	}
}

func TestController_SetPercentOutOfRange(t *testing.T) {
	c, rec := newTestController(t)

	for _, p := range []int{-1, 101, 1000} {
		_, err := c.SetPercent(context.Background(), p)
		if !errors.Is(err, ErrOutOfRange) {
			t.Errorf("SetPercent(%d) error = %v, want out of range", p, err)
		}
	}
	if rec.Len() != 0 {
		t.Errorf("transport received %d frames, want 0", rec.Len())
	}
}

func TestController_Move(t *testing.T) {
	c, rec := newTestController(t)
	ctx := context.Background()

	up, err := c.Move(ctx, 500, DirectionUp)
	if err != nil {
		t.Fatalf("Move up failed: %v", err)
	}
	if _, err := c.Move(ctx, 2000, DirectionDown); err != nil {
		t.Fatalf("Move down failed: %v", err)
	}

	if diff := cmp.Diff(map[string]interface{}{"direction": "up", "duration": uint16(500)}, up); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
	want := [][]byte{{0x03, 0x00, 0xF4, 0x01}, {0x04, 0x00, 0xD0, 0x07}}
	if diff := cmp.Diff(want, rec.Raw()); diff != "" {
		t.Errorf("raw frames mismatch (-want +got):\n%s", diff)
	}
}

func TestController_NotImplemented(t *testing.T) {
	c, rec := newTestController(t)
	ctx := context.Background()

	if _, err := c.SetPreset(ctx, 2); !errors.Is(err, ErrNotImplemented) {
		t.Errorf("SetPreset error = %v, want not implemented", err)
	}
	if _, err := c.GetHeight(ctx); !errors.Is(err, ErrNotImplemented) {
		t.Errorf("GetHeight error = %v, want not implemented", err)
	}
	if rec.Len() != 0 {
		t.Errorf("transport received %d frames, want 0", rec.Len())
	}
}

func TestController_DeviceUnavailable(t *testing.T) {
	c, rec := newTestController(t, WithHealth(NewLinkHealth(2)))
	cause := errors.New("port unplugged")
	rec.SetError(cause)

	_, err := c.SetConst(context.Background(), 300)
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("error = %v, want device unavailable", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("error %v should wrap the transport error", err)
	}
	if !c.Health().Healthy() {
		t.Error("one failure should not mark the link unhealthy")
	}

	_, _ = c.Move(context.Background(), 10, DirectionUp)
	if c.Health().Healthy() {
		t.Error("two consecutive failures should mark the link unhealthy")
	}

	rec.SetError(nil)
	if _, err := c.SetConst(context.Background(), 300); err != nil {
		t.Fatalf("SetConst after recovery failed: %v", err)
	}
	if !c.Health().Healthy() {
		t.Error("a success should restore health")
	}
}

// waitTransport blocks until ctx is done and reports why
type waitTransport struct{}

func (waitTransport) Send(ctx context.Context, frame []byte) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestController_CallerCancelIsNotALinkFailure(t *testing.T) {
	obs := &countingObserver{}
	c, err := NewController("testdesk", waitTransport{}, WithHealth(NewLinkHealth(3)), WithObserver(obs))
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 5; i++ {
		_, err := c.SetConst(ctx, 300)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("error = %v, want context.Canceled", err)
		}
		if errors.Is(err, ErrDeviceUnavailable) {
			t.Fatalf("error %v should not be device unavailable", err)
		}
	}

	snap := c.Health().Snapshot()
	if !snap.Healthy || snap.ConsecutiveFailures != 0 {
		t.Errorf("health = %+v, want untouched", snap)
	}
	if obs.failed != 0 {
		t.Errorf("observer saw %d send failures, want 0", obs.failed)
	}

	// the controller's own deadline still counts against the link
	c, err = NewController("testdesk", waitTransport{}, WithSendTimeout(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}
	if _, err := c.SetConst(context.Background(), 300); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("error = %v, want device unavailable on send timeout", err)
	}
	if c.Health().Snapshot().ConsecutiveFailures != 1 {
		t.Error("send timeout should be recorded as a link failure")
	}
}

// stallTransport blocks until released, ignoring ctx like a stuck serial write
type stallTransport struct {
	release chan struct{}
}

func (s *stallTransport) Send(ctx context.Context, frame []byte) error {
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ErrSendTimeout
	}
}

func TestController_SendTimeout(t *testing.T) {
	st := &stallTransport{release: make(chan struct{})}
	defer close(st.release)
	c, err := NewController("slow", st, WithSendTimeout(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewController failed: %v", err)
	}

	start := time.Now()
	_, err = c.SetConst(context.Background(), 1)
	if !errors.Is(err, ErrDeviceUnavailable) || !errors.Is(err, ErrSendTimeout) {
		t.Fatalf("error = %v, want device unavailable wrapping send timeout", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("send took %v, timeout not applied", elapsed)
	}
}

func TestController_Execute(t *testing.T) {
	c, rec := newTestController(t)
	ctx := context.Background()

	for _, cmd := range []Command{
		SetHeightConst{RawHeight: 300},
		SetHeightPercent{Percent: 50},
		MoveHeight{DurationMs: 100, Direction: DirectionDown},
	} {
		if _, err := c.Execute(ctx, cmd); err != nil {
			t.Fatalf("Execute(%#v) failed: %v", cmd, err)
		}
	}
	want := []deskproto.Frame{
		deskproto.NewSetHeight(300),
		deskproto.NewSetHeight(370),
		deskproto.NewMoveDown(100),
	}
	if diff := cmp.Diff(want, rec.Frames()); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
}

func TestEncode(t *testing.T) {
	tests := []struct {
		cmd  Command
		want deskproto.Frame
	}{
		{GetHeight{}, deskproto.Frame{Opcode: 1, Argument: 0}},
		{SetHeightConst{RawHeight: 410}, deskproto.Frame{Opcode: 2, Argument: 410}},
		{MoveHeight{DurationMs: 750, Direction: DirectionUp}, deskproto.Frame{Opcode: 3, Argument: 750}},
		{MoveHeight{DurationMs: 750, Direction: DirectionDown}, deskproto.Frame{Opcode: 4, Argument: 750}},
	}
	for _, tt := range tests {
		got, err := Encode(tt.cmd)
		if err != nil {
			t.Fatalf("Encode(%#v) failed: %v", tt.cmd, err)
		}
		if got != tt.want {
			t.Errorf("Encode(%#v) = %+v, want %+v", tt.cmd, got, tt.want)
		}
	}

	for _, cmd := range []Command{SetHeightPercent{Percent: 10}, SetHeightPreset{PresetID: 1}} {
		if _, err := Encode(cmd); !errors.Is(err, ErrNotEncodable) {
			t.Errorf("Encode(%#v) error = %v, want ErrNotEncodable", cmd, err)
		}
	}
}
