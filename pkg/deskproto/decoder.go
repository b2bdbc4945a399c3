// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deskproto

import (
	"encoding/binary"
	"fmt"
	"time"
)

// DecodedFrame is a frame observed on the link
type DecodedFrame struct {
	Frame
	Timestamp time.Time
}

// Decoder reassembles frames from a byte stream.
//
// The protocol has no start marker, so the decoder synchronizes on the
// opcode: if the first two buffered bytes do not form a known opcode, the
// oldest byte is dropped and an error is returned.
type Decoder struct {
	buffer      [FrameSize]byte
	bufferIndex int
	dropped     uint64
}

// NewDecoder creates a new frame decoder
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Reset discards any partially received frame
func (d *Decoder) Reset() {
	d.bufferIndex = 0
}

// Dropped returns the number of bytes discarded while resynchronizing
func (d *Decoder) Dropped() uint64 {
	return d.dropped
}

// DecodeByte processes a single byte.
// Returns a completed frame, or nil if the frame is incomplete.
// Returns an error when a byte had to be discarded to resynchronize.
func (d *Decoder) DecodeByte(b byte) (*DecodedFrame, error) {
	d.buffer[d.bufferIndex] = b
	d.bufferIndex++

	if d.bufferIndex == OpcodeSize {
		op := Opcode(binary.LittleEndian.Uint16(d.buffer[:OpcodeSize]))
		if !op.Known() {
			// Shift by one byte and keep looking for an opcode boundary
			dropped := d.buffer[0]
			d.buffer[0] = d.buffer[1]
			d.bufferIndex = 1
			d.dropped++
			return nil, fmt.Errorf("unknown opcode 0x%04X, dropped byte 0x%02X", uint16(op), dropped)
		}
	}

	if d.bufferIndex < FrameSize {
		return nil, nil
	}

	var f Frame
	// Length is always FrameSize here
	_ = f.UnmarshalBinary(d.buffer[:])
	d.Reset()
	return &DecodedFrame{Frame: f, Timestamp: time.Now()}, nil
}

// Decode decodes every complete frame in data.
// Trailing bytes that do not form a complete frame are an error.
func Decode(data []byte) ([]Frame, error) {
	if len(data)%FrameSize != 0 {
		return nil, fmt.Errorf("data length %d is not a multiple of %d", len(data), FrameSize)
	}
	frames := make([]Frame, 0, len(data)/FrameSize)
	for off := 0; off < len(data); off += FrameSize {
		f, err := UnmarshalFrame(data[off : off+FrameSize])
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", off/FrameSize, err)
		}
		frames = append(frames, f)
	}
	return frames, nil
}
