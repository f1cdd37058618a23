// Copyright 2026 The Pulsehub Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/relay-foundation/pulsehub/lib/project"
)

func statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether the daemon is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
}

// runStatus inspects files only, per spec §9's resolved ambiguity: no RPC
// to the daemon is attempted, so status stays useful even when the
// daemon is wedged.
func runStatus() error {
	_, cfg, err := project.Resolve(".")
	if err != nil {
		return fmt.Errorf("resolving project state: %w", err)
	}

	fmt.Printf("project UUID: %s\n", cfg.ProjectUUID)
	fmt.Printf("socket path: %s\n", cfg.SocketPath)

	running, pid := project.IsDaemonRunning(cfg.PIDPath())
	if !running {
		fmt.Println("daemon: not running")
		return nil
	}
	fmt.Printf("daemon: running (PID %d)\n", pid)

	if _, err := os.Stat(cfg.SocketPath); err != nil {
		fmt.Println("socket: missing (daemon PID is live but socket file is absent)")
	} else {
		fmt.Println("socket: present")
	}
	return nil
}
