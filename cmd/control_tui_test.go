// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/webcontrol/pkg/desk"
	"github.com/Thermoquad/webcontrol/pkg/deskproto"
)

func newTestControlModel(t *testing.T) (controlModel, *desk.Recorder) {
	t.Helper()
	rec := desk.NewRecorder()
	ctrl, err := desk.NewController("sarahsdesk", rec)
	require.NoError(t, err)
	d := desk.NewDispatcher(map[string]*desk.Controller{"sarahsdesk": ctrl})
	m := initialControlModel(d, "sarahsdesk", "test", 500)
	m.linkUp = true
	return m, rec
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press feeds a key and runs the resulting command, feeding its message back
func press(t *testing.T, m controlModel, key tea.KeyMsg) controlModel {
	t.Helper()
	next, cmd := m.Update(key)
	m = next.(controlModel)
	if cmd != nil {
		if msg := cmd(); msg != nil {
			next, _ = m.Update(msg)
			m = next.(controlModel)
		}
	}
	return m
}

func lastFrame(t *testing.T, rec *desk.Recorder) deskproto.Frame {
	t.Helper()
	frames := rec.Frames()
	require.NotEmpty(t, frames)
	return frames[len(frames)-1]
}

func TestControlModel_Keys(t *testing.T) {
	m, rec := newTestControlModel(t)

	m = press(t, m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, deskproto.NewMoveUp(500), lastFrame(t, rec))

	m = press(t, m, runes("+"))
	assert.Equal(t, uint16(750), m.step)
	m = press(t, m, runes("j"))
	assert.Equal(t, deskproto.NewMoveDown(750), lastFrame(t, rec))

	m = press(t, m, runes("5"))
	assert.Equal(t, deskproto.NewSetHeight(370), lastFrame(t, rec))
	assert.Equal(t, 50, m.lastPercent)
	assert.Equal(t, 370, m.lastRaw)

	m = press(t, m, runes("m"))
	assert.Equal(t, deskproto.NewSetHeight(498), lastFrame(t, rec))
	assert.Equal(t, 100, m.lastPercent)

	assert.Equal(t, 4, rec.Len())
	assert.Zero(t, m.pending)
	assert.Contains(t, m.View(), "100% (raw 498)")
}

func TestControlModel_RawRequest(t *testing.T) {
	m, rec := newTestControlModel(t)

	// Focusing the input returns a cursor blink command, which is not run here
	next, _ := m.Update(runes("/"))
	m = next.(controlModel)
	require.True(t, m.inputActive)

	m.input.SetValue(`{"height": {"preset": 3}}`)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.False(t, m.inputActive)
	assert.Zero(t, rec.Len())

	require.NotEmpty(t, m.eventLog)
	last := m.eventLog[len(m.eventLog)-1]
	assert.True(t, last.isError)
	assert.Contains(t, last.message, "not implemented")

	next, _ = m.Update(runes("/"))
	m = next.(controlModel)
	m.input.SetValue(`{"height": {"const": 300}}`)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, deskproto.NewSetHeight(300), lastFrame(t, rec))
	assert.Equal(t, 300, m.lastRaw)
}

func TestControlModel_LinkDown(t *testing.T) {
	m, rec := newTestControlModel(t)

	next, _ := m.Update(linkStateMsg{up: false})
	m = next.(controlModel)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Zero(t, rec.Len())
	assert.Contains(t, m.View(), "RECONNECTING")

	next, _ = m.Update(linkStateMsg{up: true, info: "Serial: /dev/ttyUSB0 @ 115200 baud"})
	m = next.(controlModel)
	m = press(t, m, tea.KeyMsg{Type: tea.KeyUp})
	assert.Equal(t, 1, rec.Len())
	assert.Contains(t, m.View(), "/dev/ttyUSB0")
}

func TestControlModel_Quit(t *testing.T) {
	m, _ := newTestControlModel(t)
	next, cmd := m.Update(runes("q"))
	require.NotNil(t, cmd)
	assert.True(t, next.(controlModel).quitting)
}
