// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/webcontrol/pkg/desk"
	"github.com/Thermoquad/webcontrol/pkg/deskproto"
)

var (
	monitorCount   int
	monitorTimeout int
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Display desk frames in human-readable format",
	Long: `Continuously decode and display desk frames as they arrive on the link.

Desk controllers do not normally talk back, so this is mostly useful against a
WebSocket bridge that echoes traffic, a loopback adapter, or a second serial
port tapped onto the controller line. Bytes that do not start a known opcode
are reported and skipped until the stream resynchronizes.

Exit codes:
  0 - Stopped normally or --count frames received
  1 - --timeout reached before --count frames were received
  2 - Connection error`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().IntVar(&monitorCount, "count", 0, "Exit after this many frames (0 = run forever)")
	monitorCmd.Flags().IntVar(&monitorTimeout, "timeout", 0, "Give up after this many seconds (0 = no limit)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dc, err := selectDesk(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if monitorTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(monitorTimeout)*time.Second)
		defer cancel()
	}

	conn, connInfo, err := OpenConnection(ctx, dc)
	if err != nil {
		return exitError{code: 2, err: err}
	}
	defer conn.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Webcontrol - Frame Monitor\n")
	fmt.Fprintf(out, "Connection: %s\n", connInfo)
	fmt.Fprintf(out, "Press Ctrl+C to exit\n\n")

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	received, err := monitorFrames(conn, out, monitorCount)
	switch {
	case monitorCount > 0 && received >= monitorCount:
		return nil
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return exitError{code: 1, err: fmt.Errorf("timeout after %d frames", received)}
	case ctx.Err() != nil:
		return nil
	}
	return err
}

// monitorFrames decodes frames from r and prints them until r fails or
// count frames have been seen (count <= 0 means no limit)
func monitorFrames(r io.Reader, out io.Writer, count int) (int, error) {
	decoder := deskproto.NewDecoder()
	buf := make([]byte, 128)
	received := 0

	for {
		n, err := r.Read(buf)
		for i := 0; i < n; i++ {
			frame, decodeErr := decoder.DecodeByte(buf[i])
			if decodeErr != nil {
				fmt.Fprintf(out, "[ERROR] %v\n", decodeErr)
				continue
			}
			if frame != nil {
				fmt.Fprint(out, deskproto.FormatDecodedFrame(frame))
				received++
				if count > 0 && received >= count {
					return received, nil
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, desk.ErrLinkClosed) {
				log.Printf("Connection closed")
				return received, nil
			}
			log.Printf("Read error: %v", err)
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// exitError carries a process exit code out of a command
type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string { return e.err.Error() }
func (e exitError) Unwrap() error { return e.err }

// ExitCode returns the process exit code for err
func ExitCode(err error) int {
	var ee exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}
