// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package desk

import (
	"fmt"

	"github.com/Thermoquad/webcontrol/pkg/deskproto"
)

// Encode maps a command to its device frame.
//
// SetHeightPercent must be converted to SetHeightConst by a Controller
// first, and presets have no frame; both return ErrNotEncodable.
func Encode(cmd Command) (deskproto.Frame, error) {
	switch cmd := cmd.(type) {
	case GetHeight:
		return deskproto.NewGetHeight(), nil
	case SetHeightConst:
		return deskproto.NewSetHeight(cmd.RawHeight), nil
	case MoveHeight:
		switch cmd.Direction {
		case DirectionUp:
			return deskproto.NewMoveUp(cmd.DurationMs), nil
		case DirectionDown:
			return deskproto.NewMoveDown(cmd.DurationMs), nil
		}
		return deskproto.Frame{}, fmt.Errorf("%w: direction %v", ErrNotEncodable, cmd.Direction)
	default:
		return deskproto.Frame{}, fmt.Errorf("%w: %T", ErrNotEncodable, cmd)
	}
}
