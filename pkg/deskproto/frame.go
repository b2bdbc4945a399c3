// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deskproto

import (
	"encoding/binary"
	"fmt"
)

// Frame is one encoded device command
type Frame struct {
	Opcode   Opcode
	Argument uint16
}

// NewGetHeight creates a GET_HEIGHT frame (0x01).
// The argument is unused and always zero.
func NewGetHeight() Frame {
	return Frame{Opcode: OpGetHeight}
}

// NewSetHeight creates a SET_HEIGHT frame (0x02) targeting a raw height.
func NewSetHeight(raw uint16) Frame {
	return Frame{Opcode: OpSetHeight, Argument: raw}
}

// NewMoveUp creates a MOVE_UP frame (0x03).
// The motor runs upwards for durationMs milliseconds.
func NewMoveUp(durationMs uint16) Frame {
	return Frame{Opcode: OpMoveUp, Argument: durationMs}
}

// NewMoveDown creates a MOVE_DOWN frame (0x04).
// The motor runs downwards for durationMs milliseconds.
func NewMoveDown(durationMs uint16) Frame {
	return Frame{Opcode: OpMoveDown, Argument: durationMs}
}

// AppendBinary appends the wire encoding of f to b
func (f Frame) AppendBinary(b []byte) ([]byte, error) {
	b = binary.LittleEndian.AppendUint16(b, uint16(f.Opcode))
	b = binary.LittleEndian.AppendUint16(b, f.Argument)
	return b, nil
}

// MarshalBinary implements encoding.BinaryMarshaler
func (f Frame) MarshalBinary() ([]byte, error) {
	return f.AppendBinary(make([]byte, 0, FrameSize))
}

// Bytes returns the 4-byte wire encoding of the frame
func (f Frame) Bytes() []byte {
	b, _ := f.MarshalBinary()
	return b
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
// Opcodes outside the table are accepted; use Opcode.Known to check them.
func (f *Frame) UnmarshalBinary(data []byte) error {
	if len(data) != FrameSize {
		return fmt.Errorf("invalid frame length: %d (want %d)", len(data), FrameSize)
	}
	f.Opcode = Opcode(binary.LittleEndian.Uint16(data[0:2]))
	f.Argument = binary.LittleEndian.Uint16(data[2:4])
	return nil
}

// UnmarshalFrame decodes a single frame and rejects unknown opcodes
func UnmarshalFrame(data []byte) (Frame, error) {
	var f Frame
	if err := f.UnmarshalBinary(data); err != nil {
		return Frame{}, err
	}
	if !f.Opcode.Known() {
		return Frame{}, fmt.Errorf("unknown opcode: 0x%04X", uint16(f.Opcode))
	}
	return f, nil
}
