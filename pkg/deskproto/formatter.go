// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deskproto

import (
	"fmt"
	"strings"
)

// FormatOpcode returns the protocol name for an opcode
func FormatOpcode(o Opcode) string {
	switch o {
	case OpGetHeight:
		return "GET_HEIGHT"
	case OpSetHeight:
		return "SET_HEIGHT"
	case OpMoveUp:
		return "MOVE_UP"
	case OpMoveDown:
		return "MOVE_DOWN"
	default:
		return "UNKNOWN"
	}
}

// FormatArgument describes a frame's argument in the units of its opcode
func FormatArgument(f Frame) string {
	switch f.Opcode {
	case OpGetHeight:
		return "(no argument)"
	case OpSetHeight:
		return fmt.Sprintf("Height: %d raw", f.Argument)
	case OpMoveUp, OpMoveDown:
		return fmt.Sprintf("Duration: %d ms (%.2f sec)", f.Argument, float64(f.Argument)/1000.0)
	default:
		return fmt.Sprintf("Argument: %d", f.Argument)
	}
}

// FormatHex renders bytes as space separated hex pairs
func FormatHex(data []byte) string {
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}

// FormatFrame formats a frame as a single human-readable line
func FormatFrame(f Frame) string {
	return fmt.Sprintf("%s (0x%04X) [%s] %s",
		FormatOpcode(f.Opcode), uint16(f.Opcode), FormatHex(f.Bytes()), FormatArgument(f))
}

// FormatDecodedFrame formats a frame with its receive timestamp
func FormatDecodedFrame(f *DecodedFrame) string {
	return fmt.Sprintf("[%s] %s\n", f.Timestamp.Format("15:04:05.000"), FormatFrame(f.Frame))
}
