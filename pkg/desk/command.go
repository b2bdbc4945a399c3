// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package desk translates structured desk requests into device frames.
//
// A request flows through Parse (untyped request to Command), a Controller
// (validation, unit conversion, serialized transport access) and a
// Dispatcher, which renders every outcome as a Reply.
package desk

import "fmt"

// Command is one parsed request. The set of implementations is closed.
type Command interface {
	// Name returns the request subcommand the command was parsed from
	Name() string
	isCommand()
}

// SetHeightConst moves the desk to a raw device height
type SetHeightConst struct {
	RawHeight uint16
}

// SetHeightPercent moves the desk to a percentage of its height range.
// Percent is not range checked until the controller sees it.
type SetHeightPercent struct {
	Percent int
}

// MoveHeight runs the motor in one direction for a fixed duration
type MoveHeight struct {
	DurationMs uint16
	Direction  Direction
}

// SetHeightPreset moves the desk to a device-defined preset
type SetHeightPreset struct {
	PresetID uint16
}

// GetHeight queries the current height
type GetHeight struct{}

func (SetHeightConst) Name() string   { return "const" }
func (SetHeightPercent) Name() string { return "percent" }
func (MoveHeight) Name() string       { return "move" }
func (SetHeightPreset) Name() string  { return "preset" }
func (GetHeight) Name() string        { return "get" }

func (SetHeightConst) isCommand()   {}
func (SetHeightPercent) isCommand() {}
func (MoveHeight) isCommand()       {}
func (SetHeightPreset) isCommand()  {}
func (GetHeight) isCommand()        {}

// Direction of a timed move
type Direction int

// Direction values
const (
	DirectionUp Direction = iota
	DirectionDown
)

// String returns the request spelling of the direction
func (d Direction) String() string {
	switch d {
	case DirectionUp:
		return "up"
	case DirectionDown:
		return "down"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// ParseDirection accepts exactly "up" or "down"
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "up":
		return DirectionUp, true
	case "down":
		return DirectionDown, true
	}
	return 0, false
}
