// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package deskproto implements the desk motor controller wire protocol.
//
// Every command is a single fixed-size frame of two little-endian 16-bit
// unsigned integers: the opcode followed by its argument. There is no
// framing delimiter, padding or checksum; the controller consumes exactly
// FrameSize bytes per command.
package deskproto

// Frame layout
const (
	FrameSize   = 4
	OpcodeSize  = 2
	ArgumentMax = 0xFFFF
)

// Opcode identifies the device action a frame requests.
type Opcode uint16

// Opcode table. Fixed and versionless.
const (
	OpGetHeight Opcode = 1
	OpSetHeight Opcode = 2
	OpMoveUp    Opcode = 3
	OpMoveDown  Opcode = 4
)

// Known reports whether the opcode is in the opcode table
func (o Opcode) Known() bool {
	return o >= OpGetHeight && o <= OpMoveDown
}

// String returns the protocol name of the opcode
func (o Opcode) String() string {
	return FormatOpcode(o)
}
