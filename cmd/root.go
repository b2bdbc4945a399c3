// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/webcontrol/internal/config"
)

var (
	configFile string

	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Desk flags
	deskName string
	minRaw   uint16
	maxRaw   uint16
)

var rootCmd = &cobra.Command{
	Use:   "webcontrol",
	Short: "Desk height controller",
	Long: `Webcontrol - translate height requests into desk controller frames.

Requests are small JSON documents such as {"height": {"percent": 40}}. They
are validated, converted to 4-byte little-endian frames and written to the
desk over a serial port or a WebSocket serial bridge.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

Multiple desks can be served from a config file (--config or WEBCONTROL_CONFIG).
Connection flags describe a single desk named by --desk and take precedence
over desks in the config file.

For WebSocket authentication, the password is read from the WEBCONTROL_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:      "1.0.0",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (YAML, TOML or JSON)")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", config.DefaultBaudRate, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Desk flags
	rootCmd.PersistentFlags().StringVar(&deskName, "desk", config.DefaultDeskName, "Desk resource name")
	rootCmd.PersistentFlags().Uint16Var(&minRaw, "min-raw", 0, "Raw height at 0% (default 242)")
	rootCmd.PersistentFlags().Uint16Var(&maxRaw, "max-raw", 0, "Raw height at 100% (default 498)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// flagDesk describes the desk given by the connection flags
func flagDesk() config.DeskConfig {
	return config.DeskConfig{
		Name:        deskName,
		Port:        portName,
		Baud:        baudRate,
		URL:         wsURL,
		Username:    wsUsername,
		NoSSLVerify: wsNoSSLVerify,
		MinRaw:      minRaw,
		MaxRaw:      maxRaw,
	}
}

// loadConfig loads the config file and applies the connection flags
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if portName != "" || wsURL != "" || len(cfg.Desks) == 0 {
		cfg.Desks = []config.DeskConfig{flagDesk()}
	}
	return cfg, nil
}

// selectDesk picks the desk named by --desk, or the only configured desk
func selectDesk(cfg *config.Config) (config.DeskConfig, error) {
	for _, d := range cfg.Desks {
		if d.Name == deskName {
			return d, nil
		}
	}
	if len(cfg.Desks) == 1 && !rootCmd.PersistentFlags().Changed("desk") {
		return cfg.Desks[0], nil
	}
	return config.DeskConfig{}, fmt.Errorf("desk %q is not configured", deskName)
}
