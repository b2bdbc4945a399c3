// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/webcontrol/pkg/desk"
)

var controlStep uint16

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for controlling a desk",
	Long: `Control a desk via an interactive terminal UI.

Keys:
  up/k, down/j  move the desk for the current step duration
  +/-           change the step duration by 250 ms
  0-9           set height to 0%..90%
  m             set height to 100%
  /             type a raw JSON request, Enter to send, Esc to cancel
  q             quit

Every reply is shown in the event log. The link reconnects automatically if
the serial port or WebSocket bridge goes away.

Supports both serial and WebSocket connections.`,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
	controlCmd.Flags().Uint16Var(&controlStep, "step", 500, "Move duration in milliseconds for arrow keys")
	controlCmd.Flags().Bool("dry-run", false, "Log frames instead of writing to the device")
}

// programSink forwards messages to the TUI once it exists. Link hooks can
// fire before the program is started.
type programSink struct {
	mu sync.Mutex
	p  *tea.Program
}

func (s *programSink) set(p *tea.Program) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p = p
}

func (s *programSink) send(msg tea.Msg) {
	s.mu.Lock()
	p := s.p
	s.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func runControl(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dc, err := selectDesk(cfg)
	if err != nil {
		return err
	}

	sink := &programSink{}
	var transport desk.Transport
	var connected func() bool
	connInfo := "dry run"

	if cfg.Link.DryRun {
		rec := desk.NewRecorder()
		rec.OnSend(func(frame []byte) {
			sink.send(frameSentMsg{frame: append([]byte(nil), frame...)})
		})
		transport = rec
	} else {
		dial, err := NewDialer(dc)
		if err != nil {
			return err
		}
		link := NewLink(dc.Name, dial, WithStateHook(func(up bool, info string) {
			sink.send(linkStateMsg{up: up, info: info})
		}))
		defer link.Close()
		transport = link
		connected = link.Connected
		connInfo = "connecting..."
	}

	ctrl, err := desk.NewController(dc.Name, transport,
		desk.WithHeightRange(dc.HeightRange()),
		desk.WithSendTimeout(cfg.Link.SendTimeout),
	)
	if err != nil {
		return err
	}
	d := desk.NewDispatcher(map[string]*desk.Controller{dc.Name: ctrl})

	m := initialControlModel(d, dc.Name, connInfo, controlStep)
	m.connected = connected
	m.linkUp = connected == nil || connected()

	p := tea.NewProgram(m, tea.WithAltScreen())
	sink.set(p)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
