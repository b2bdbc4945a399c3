// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package desk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/webcontrol/pkg/deskproto"
	"go.uber.org/zap"
)

// DefaultSendTimeout bounds a single frame write
const DefaultSendTimeout = 3 * time.Second

// HeightRange is the device's raw height span used for percent conversion
type HeightRange struct {
	MinRaw uint16 `json:"min_raw"`
	MaxRaw uint16 `json:"max_raw"`
}

// DefaultHeightRange matches the reference desk
var DefaultHeightRange = HeightRange{MinRaw: 242, MaxRaw: 498}

// Validate checks that the range is not inverted
func (r HeightRange) Validate() error {
	if r.MinRaw > r.MaxRaw {
		return fmt.Errorf("invalid height range: min %d > max %d", r.MinRaw, r.MaxRaw)
	}
	return nil
}

// Raw converts a percentage in [0,100] to a raw height, truncating toward zero
func (r HeightRange) Raw(percent int) uint16 {
	span := uint32(r.MaxRaw - r.MinRaw)
	return r.MinRaw + uint16(span*uint32(percent)/100)
}

// Controller drives one desk. All transport access is serialized.
type Controller struct {
	name        string
	transport   Transport
	heightRange HeightRange
	sendTimeout time.Duration
	health      *LinkHealth
	logger      *zap.Logger
	observer    Observer

	mu sync.Mutex // held for encode+send
}

// NewController creates a controller for the desk called name
func NewController(name string, t Transport, opts ...Option) (*Controller, error) {
	if t == nil {
		return nil, errors.New("transport is required")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.heightRange.Validate(); err != nil {
		return nil, err
	}
	if o.sendTimeout <= 0 {
		return nil, fmt.Errorf("invalid send timeout: %v", o.sendTimeout)
	}
	if o.health == nil {
		o.health = NewLinkHealth(DefaultFailureThreshold)
	}

	return &Controller{
		name:        name,
		transport:   t,
		heightRange: o.heightRange,
		sendTimeout: o.sendTimeout,
		health:      o.health,
		logger:      o.logger.With(zap.String("desk", name)),
		observer:    o.observer,
	}, nil
}

// Name returns the desk name
func (c *Controller) Name() string {
	return c.name
}

// HeightRange returns the configured raw height range
func (c *Controller) HeightRange() HeightRange {
	return c.heightRange
}

// Health returns the link health tracker
func (c *Controller) Health() *LinkHealth {
	return c.health
}

// Execute runs a parsed command
func (c *Controller) Execute(ctx context.Context, cmd Command) (map[string]interface{}, error) {
	switch cmd := cmd.(type) {
	case SetHeightConst:
		return c.SetConst(ctx, cmd.RawHeight)
	case SetHeightPercent:
		return c.SetPercent(ctx, cmd.Percent)
	case MoveHeight:
		return c.Move(ctx, cmd.DurationMs, cmd.Direction)
	case SetHeightPreset:
		return c.SetPreset(ctx, cmd.PresetID)
	case GetHeight:
		return c.GetHeight(ctx)
	default:
		return nil, fmt.Errorf("unsupported command %T", cmd)
	}
}

// SetConst moves the desk to a raw height
func (c *Controller) SetConst(ctx context.Context, raw uint16) (map[string]interface{}, error) {
	if err := c.send(ctx, SetHeightConst{RawHeight: raw}); err != nil {
		return nil, err
	}
	return map[string]interface{}{"raw_height": raw}, nil
}

// SetPercent moves the desk to percent of its height range
func (c *Controller) SetPercent(ctx context.Context, percent int) (map[string]interface{}, error) {
	if percent < 0 || percent > 100 {
		return nil, &ControllerError{Kind: OutOfRange, Detail: fmt.Sprintf("percent %d is outside 0..100", percent)}
	}
	raw := c.heightRange.Raw(percent)
	if err := c.send(ctx, SetHeightConst{RawHeight: raw}); err != nil {
		return nil, err
	}
	return map[string]interface{}{"percent": percent, "raw_height": raw}, nil
}

// Move runs the motor for durationMs. It returns once the frame is written,
// not when the motion completes.
func (c *Controller) Move(ctx context.Context, durationMs uint16, dir Direction) (map[string]interface{}, error) {
	if dir != DirectionUp && dir != DirectionDown {
		return nil, &ControllerError{Kind: OutOfRange, Detail: fmt.Sprintf("direction %v", dir)}
	}
	if err := c.send(ctx, MoveHeight{DurationMs: durationMs, Direction: dir}); err != nil {
		return nil, err
	}
	return map[string]interface{}{"direction": dir.String(), "duration": durationMs}, nil
}

// SetPreset is not supported: the device preset table is undefined
func (c *Controller) SetPreset(ctx context.Context, presetID uint16) (map[string]interface{}, error) {
	return nil, &ControllerError{Kind: NotImplemented, Detail: fmt.Sprintf("preset %d: presets are not defined for this device", presetID)}
}

// GetHeight is not supported: the device has no height readback
func (c *Controller) GetHeight(ctx context.Context) (map[string]interface{}, error) {
	return nil, &ControllerError{Kind: NotImplemented, Detail: "height readback is not available"}
}

// send encodes and writes one frame. Failures are never retried here.
func (c *Controller) send(ctx context.Context, cmd Command) error {
	frame, elapsed, err := c.transmit(ctx, cmd)
	if errors.Is(err, ErrNotEncodable) {
		return err
	}
	// A caller that gave up says nothing about the link
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		c.logger.Debug("send abandoned by caller",
			zap.Stringer("opcode", frame.Opcode),
			zap.Error(err),
		)
		return ctx.Err()
	}
	if err != nil {
		c.health.RecordFailure(err)
		c.observer.SendFailed(c.name, err)
		c.logger.Warn("device send failed",
			zap.Stringer("opcode", frame.Opcode),
			zap.Uint16("argument", frame.Argument),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return &ControllerError{Kind: DeviceUnavailable, Err: err}
	}

	c.health.RecordSuccess()
	c.observer.FrameSent(c.name, frame, elapsed)
	c.logger.Debug("frame sent",
		zap.Stringer("opcode", frame.Opcode),
		zap.Uint16("argument", frame.Argument),
		zap.Duration("elapsed", elapsed),
	)
	return nil
}

func (c *Controller) transmit(ctx context.Context, cmd Command) (deskproto.Frame, time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	frame, err := Encode(cmd)
	if err != nil {
		return frame, 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()

	start := time.Now()
	err = c.transport.Send(ctx, frame.Bytes())
	return frame, time.Since(start), err
}
