// Copyright 2026 The Pulsehub Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/relay-foundation/pulsehub/lib/project"
)

// stopGrace bounds how long stop waits for SIGTERM to take effect before
// escalating to SIGKILL, matching project.Stop's documented fallback.
const stopGrace = 3 * time.Second

func stopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running pulsehub daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop()
		},
	}
}

func runStop() error {
	_, cfg, err := project.Resolve(".")
	if err != nil {
		return fmt.Errorf("resolving project state: %w", err)
	}

	if err := project.Stop(cfg.PIDPath(), stopGrace); err != nil {
		return daemonUnreachable(fmt.Errorf("stopping daemon: %w", err))
	}

	fmt.Println("daemon stopped")
	return nil
}
