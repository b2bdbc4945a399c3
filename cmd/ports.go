// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"
)

var portsUSBOnly bool

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	Long: `List serial ports that a desk controller could be attached to.

USB adapters are shown with their vendor and product IDs and serial number,
which is usually the easiest way to tell several adapters apart.

Exit codes:
  0 - At least one port found
  1 - No ports found or enumeration failed`,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
	portsCmd.Flags().BoolVar(&portsUSBOnly, "usb", false, "Only list USB serial adapters")
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	if n := printPorts(cmd.OutOrStdout(), ports, portsUSBOnly); n == 0 {
		return fmt.Errorf("no serial ports found")
	}
	return nil
}

// printPorts writes one line per port and returns how many were printed
func printPorts(out io.Writer, ports []*enumerator.PortDetails, usbOnly bool) int {
	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })

	printed := 0
	for _, p := range ports {
		if usbOnly && !p.IsUSB {
			continue
		}
		if p.IsUSB {
			fmt.Fprintf(out, "%-24s USB %s:%s", p.Name, p.VID, p.PID)
			if p.SerialNumber != "" {
				fmt.Fprintf(out, "  serial=%s", p.SerialNumber)
			}
			if p.Product != "" {
				fmt.Fprintf(out, "  %s", p.Product)
			}
			fmt.Fprintln(out)
		} else {
			fmt.Fprintf(out, "%-24s\n", p.Name)
		}
		printed++
	}
	return printed
}
