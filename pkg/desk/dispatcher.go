// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package desk

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Dispatcher routes requests for named resources to their controllers
type Dispatcher struct {
	controllers map[string]*Controller
	logger      *zap.Logger
	observer    Observer
}

// NewDispatcher creates a dispatcher over a fixed resource table
func NewDispatcher(controllers map[string]*Controller, opts ...Option) *Dispatcher {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	table := make(map[string]*Controller, len(controllers))
	for name, c := range controllers {
		table[name] = c
	}
	return &Dispatcher{
		controllers: table,
		logger:      o.logger,
		observer:    o.observer,
	}
}

// Resources returns the resource names in sorted order
func (d *Dispatcher) Resources() []string {
	names := make([]string, 0, len(d.controllers))
	for name := range d.controllers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Controller looks up the controller for a resource
func (d *Dispatcher) Controller(resource string) (*Controller, bool) {
	c, ok := d.controllers[resource]
	return c, ok
}

// Handle parses and executes a raw request for resource.
//
// Parse and controller failures are always returned as error replies. The
// error result is non-nil only for an unknown resource (ErrUnknownResource)
// or when the device link is gone (ErrLinkClosed); in the latter case the
// reply is still valid and should be sent to the caller.
func (d *Dispatcher) Handle(ctx context.Context, resource string, raw interface{}) (Reply, error) {
	c, ok := d.controllers[resource]
	if !ok {
		return Reply{}, fmt.Errorf("%w: %q", ErrUnknownResource, resource)
	}

	cmd, err := Parse(raw)
	if err != nil {
		reply := ErrorReply(err)
		d.observer.RequestHandled(resource, "invalid", reply.Reason)
		d.logger.Debug("request rejected",
			zap.String("desk", resource),
			zap.String("reason", reply.Reason),
			zap.String("detail", reply.Detail),
		)
		return reply, nil
	}
	return d.execute(ctx, c, cmd)
}

// HandleCommand executes an already parsed command for resource
func (d *Dispatcher) HandleCommand(ctx context.Context, resource string, cmd Command) (Reply, error) {
	c, ok := d.controllers[resource]
	if !ok {
		return Reply{}, fmt.Errorf("%w: %q", ErrUnknownResource, resource)
	}
	return d.execute(ctx, c, cmd)
}

func (d *Dispatcher) execute(ctx context.Context, c *Controller, cmd Command) (Reply, error) {
	fields, err := c.Execute(ctx, cmd)
	if err == nil {
		d.observer.RequestHandled(c.Name(), cmd.Name(), "ok")
		d.logger.Info("request handled", zap.String("desk", c.Name()), zap.String("command", cmd.Name()))
		return OKReply(fields), nil
	}

	reply := ErrorReply(err)
	d.observer.RequestHandled(c.Name(), cmd.Name(), reply.Reason)
	if errors.Is(err, ErrLinkClosed) {
		d.logger.Error("device link lost", zap.String("desk", c.Name()), zap.String("command", cmd.Name()), zap.Error(err))
		return reply, fmt.Errorf("desk %s: %w", c.Name(), err)
	}
	d.logger.Info("request failed",
		zap.String("desk", c.Name()),
		zap.String("command", cmd.Name()),
		zap.String("reason", reply.Reason),
		zap.String("detail", reply.Detail),
	)
	return reply, nil
}
