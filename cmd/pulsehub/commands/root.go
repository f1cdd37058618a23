// Copyright 2026 The Pulsehub Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the pulsehub CLI command tree with cobra,
// following the subcommand set of the original hydra-mail binary:
// init, start, stop, status, emit, subscribe.
package commands

import (
	"github.com/spf13/cobra"
)

// Root builds and returns the complete pulsehub CLI command tree.
func Root() *cobra.Command {
	root := &cobra.Command{
		Use:   "pulsehub",
		Short: "Local pub/sub broker for cooperating agent processes",
		Long: `pulsehub is a local, single-host publish/subscribe broker.

Agents emit and subscribe to named channels over a Unix domain socket
scoped to one project directory. Late joiners replay recent history
from a bounded buffer; an append-only log recovers state across daemon
restarts.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		initCommand(),
		startCommand(),
		stopCommand(),
		statusCommand(),
		emitCommand(),
		subscribeCommand(),
	)

	return root
}
