// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Webcontrol - Desk Height Controller
//
// Serves height requests over HTTP and translates them into 4-byte frames
// for a desk controller on a serial port or WebSocket bridge.

package main

import (
	"os"

	"github.com/Thermoquad/webcontrol/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.ExitCode(err))
	}
}
