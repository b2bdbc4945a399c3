// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/webcontrol/pkg/deskproto"
)

var linkCheckDuration int

var linkCheckCmd = &cobra.Command{
	Use:   "link_check",
	Short: "Test desk link stability",
	Long: `Hold the desk link open without sending any frames and report every
connect and disconnect.

The link reconnects with the same backoff as "serve", so this shows how a
serial adapter or WebSocket bridge behaves over time. Frames read back from the
link are printed as they arrive.

Exit codes:
  0 - Connected for the whole test
  1 - The link dropped, or never connected
  2 - Connection configuration error`,
	RunE: runLinkCheck,
}

func init() {
	rootCmd.AddCommand(linkCheckCmd)
	linkCheckCmd.Flags().IntVar(&linkCheckDuration, "duration", 30, "Test duration in seconds")
}

// linkCheckStats counts link events
type linkCheckStats struct {
	connects    atomic.Int32
	disconnects atomic.Int32
	frames      atomic.Int32
}

func runLinkCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dc, err := selectDesk(cfg)
	if err != nil {
		return err
	}
	dial, err := NewDialer(dc)
	if err != nil {
		return exitError{code: 2, err: err}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Desk Link Stability Test\n")
	fmt.Fprintf(out, "Desk: %s\n", dc.Name)
	fmt.Fprintf(out, "Duration: %d seconds\n\n", linkCheckDuration)

	stats := &linkCheckStats{}
	link := NewLink(dc.Name, dial,
		WithStateHook(linkCheckStateHook(out, stats)),
		WithFrameHook(func(f deskproto.DecodedFrame) {
			stats.frames.Add(1)
			fmt.Fprint(out, deskproto.FormatDecodedFrame(&f))
		}),
	)
	defer link.Close()

	endTime := time.Now().Add(time.Duration(linkCheckDuration) * time.Second)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for time.Now().Before(endTime) {
		<-ticker.C
		remaining := time.Until(endTime).Seconds()
		state := "connected"
		if !link.Connected() {
			state = "disconnected"
		}
		fmt.Fprintf(out, "[%s] Still %s... (%.0fs remaining)\n",
			time.Now().Format("15:04:05.000"), state, remaining)
	}

	return linkCheckResult(out, stats, linkCheckDuration)
}

func linkCheckStateHook(out io.Writer, stats *linkCheckStats) func(bool, string) {
	return func(up bool, info string) {
		ts := time.Now().Format("15:04:05.000")
		if up {
			stats.connects.Add(1)
			fmt.Fprintf(out, "[%s] Connected: %s\n", ts, info)
			return
		}
		stats.disconnects.Add(1)
		fmt.Fprintf(out, "[%s] Disconnected: %s\n", ts, info)
	}
}

func linkCheckResult(out io.Writer, stats *linkCheckStats, seconds int) error {
	fmt.Fprintf(out, "\n--- Test Results ---\n")
	fmt.Fprintf(out, "Duration: %d seconds\n", seconds)
	fmt.Fprintf(out, "Connects: %d\n", stats.connects.Load())
	fmt.Fprintf(out, "Disconnects: %d\n", stats.disconnects.Load())
	fmt.Fprintf(out, "Frames received: %d\n", stats.frames.Load())

	switch {
	case stats.connects.Load() == 0:
		fmt.Fprintf(out, "Result: FAILED (never connected)\n")
		return exitError{code: 1, err: fmt.Errorf("link never connected")}
	case stats.disconnects.Load() > 0:
		fmt.Fprintf(out, "Result: FAILED (link dropped)\n")
		return exitError{code: 1, err: fmt.Errorf("link dropped %d times", stats.disconnects.Load())}
	}
	fmt.Fprintf(out, "Result: PASSED (connection stable)\n")
	return nil
}
