// Copyright 2026 The Pulsehub Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"github.com/relay-foundation/pulsehub/cmd/pulsehub/commands"
	"github.com/relay-foundation/pulsehub/lib/process"
)

func main() {
	if err := commands.Root().Execute(); err != nil {
		// Commands that need a specific exit code (daemon unreachable,
		// broker error) return an exitError satisfying this interface.
		// Everything else — bad usage, I/O failures — gets the standard
		// exit 1 treatment.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		process.Fatal(err)
	}
}
