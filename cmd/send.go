// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/webcontrol/internal/config"
	"github.com/Thermoquad/webcontrol/pkg/desk"
	"github.com/Thermoquad/webcontrol/pkg/deskproto"
)

var sendCmd = &cobra.Command{
	Use:   "send <request>",
	Short: "Send one height request to a desk",
	Long: `Parse a single JSON request, send the resulting frame to the desk and
print the reply.

Examples:
  webcontrol send --port /dev/ttyUSB0 '{"height": {"percent": 40}}'
  webcontrol send --url ws://bridge.local/ws '{"height": {"move": {"duration": 2000, "direction": "up"}}}'
  webcontrol send --dry-run '{"height": {"const": 300}}'

With --dry-run no device is opened; the frame bytes are printed instead.

Exit codes:
  0 - Request succeeded
  1 - Request was rejected or the device could not be reached`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().Bool("dry-run", false, "Print the frame instead of writing it")
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dc, err := selectDesk(cfg)
	if err != nil {
		return err
	}

	req, err := decodeRequest(args[0])
	if err != nil {
		return err
	}

	transport, closer, err := openSendTransport(cmd.Context(), cfg, dc)
	if err != nil {
		return err
	}
	defer closer.Close()

	reply, err := sendRequest(cmd.Context(), cfg, dc, transport, req)
	if err != nil {
		return err
	}

	if rec, ok := transport.(*desk.Recorder); ok {
		for _, frame := range rec.Raw() {
			fmt.Fprintf(cmd.OutOrStdout(), "Frame: %s  %s\n", deskproto.FormatHex(frame), describeFrame(frame))
		}
	}

	out, err := json.Marshal(reply)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if !reply.OK() {
		return fmt.Errorf("%s: %s", reply.Reason, reply.Detail)
	}
	return nil
}

// decodeRequest parses a request the same way the HTTP front-end does
func decodeRequest(s string) (interface{}, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid request JSON: %w", err)
	}
	if dec.More() {
		return nil, errors.New("invalid request JSON: trailing data")
	}
	return v, nil
}

func openSendTransport(ctx context.Context, cfg *config.Config, dc config.DeskConfig) (desk.Transport, io.Closer, error) {
	if cfg.Link.DryRun {
		return desk.NewRecorder(), io.NopCloser(nil), nil
	}
	conn, _, err := OpenConnection(ctx, dc)
	if err != nil {
		return nil, nil, err
	}
	return desk.NewWriterTransport(conn), conn, nil
}

// sendRequest runs req through a single-desk dispatcher
func sendRequest(ctx context.Context, cfg *config.Config, dc config.DeskConfig, t desk.Transport, req interface{}) (desk.Reply, error) {
	ctrl, err := desk.NewController(dc.Name, t,
		desk.WithHeightRange(dc.HeightRange()),
		desk.WithSendTimeout(cfg.Link.SendTimeout),
	)
	if err != nil {
		return desk.Reply{}, err
	}
	d := desk.NewDispatcher(map[string]*desk.Controller{dc.Name: ctrl})

	reply, err := d.Handle(ctx, dc.Name, req)
	if err != nil && !errors.Is(err, desk.ErrLinkClosed) {
		return desk.Reply{}, err
	}
	return reply, nil
}
