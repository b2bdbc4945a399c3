// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package deskproto

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func decodeAll(t *testing.T, d *Decoder, data []byte) ([]Frame, int) {
	t.Helper()
	var frames []Frame
	errs := 0
	for _, b := range data {
		f, err := d.DecodeByte(b)
		if err != nil {
			errs++
			continue
		}
		if f != nil {
			frames = append(frames, f.Frame)
		}
	}
	return frames, errs
}

func TestDecoder_Stream(t *testing.T) {
	want := []Frame{NewSetHeight(300), NewMoveUp(500), NewMoveDown(65535), NewGetHeight()}
	var stream []byte
	for _, f := range want {
		stream = append(stream, f.Bytes()...)
	}

	got, errs := decodeAll(t, NewDecoder(), stream)
	if errs != 0 {
		t.Errorf("got %d decode errors, want 0", errs)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decoded frames mismatch (-want +got):\n%s", diff)
	}
}

func TestDecoder_Resync(t *testing.T) {
	d := NewDecoder()
	stream := append([]byte{0xFF, 0x7E}, NewMoveUp(42).Bytes()...)

	got, errs := decodeAll(t, d, stream)
	if errs != 2 {
		t.Errorf("errors = %d, want 2", errs)
	}
	if d.Dropped() != 2 {
		t.Errorf("Dropped() = %d, want 2", d.Dropped())
	}
	if diff := cmp.Diff([]Frame{NewMoveUp(42)}, got); diff != "" {
		t.Errorf("decoded frames mismatch (-want +got):\n%s", diff)
	}
}

func TestDecoder_Partial(t *testing.T) {
	d := NewDecoder()
	b := NewSetHeight(1).Bytes()
	for i := 0; i < FrameSize-1; i++ {
		f, err := d.DecodeByte(b[i])
		if err != nil || f != nil {
			t.Fatalf("byte %d: got frame=%v err=%v, want incomplete", i, f, err)
		}
	}
	d.Reset()
	f, err := d.DecodeByte(b[FrameSize-1])
	if err == nil && f != nil {
		t.Fatalf("Reset should discard the partial frame, got %v", f)
	}
}

func TestDecode(t *testing.T) {
	data := append(NewSetHeight(250).Bytes(), NewMoveDown(10).Bytes()...)
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if diff := cmp.Diff([]Frame{NewSetHeight(250), NewMoveDown(10)}, got); diff != "" {
		t.Errorf("Decode mismatch (-want +got):\n%s", diff)
	}

	if _, err := Decode(data[:5]); err == nil {
		t.Error("Decode of truncated data should fail")
	}
	if _, err := Decode([]byte{0x07, 0x00, 0x00, 0x00}); err == nil || !strings.Contains(err.Error(), "frame 0") {
		t.Errorf("Decode of unknown opcode: err = %v", err)
	}
}

func TestFormatFrame(t *testing.T) {
	tests := []struct {
		frame Frame
		want  string
	}{
		{NewGetHeight(), "GET_HEIGHT (0x0001) [01 00 00 00] (no argument)"},
		{NewSetHeight(370), "SET_HEIGHT (0x0002) [02 00 72 01] Height: 370 raw"},
		{NewMoveUp(2000), "MOVE_UP (0x0003) [03 00 D0 07] Duration: 2000 ms (2.00 sec)"},
		{Frame{Opcode: 9, Argument: 1}, "UNKNOWN (0x0009) [09 00 01 00] Argument: 1"},
	}
	for _, tt := range tests {
		if got := FormatFrame(tt.frame); got != tt.want {
			t.Errorf("FormatFrame(%+v) = %q, want %q", tt.frame, got, tt.want)
		}
	}
}
