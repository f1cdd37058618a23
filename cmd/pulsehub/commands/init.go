// Copyright 2026 The Pulsehub Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/relay-foundation/pulsehub/lib/project"
)

func initCommand() *cobra.Command {
	var spawnDaemon bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize pulsehub state in the current project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(spawnDaemon)
		},
	}

	cmd.Flags().BoolVar(&spawnDaemon, "daemon", false, "spawn the daemon after initializing")
	return cmd
}

func runInit(spawnDaemon bool) error {
	root := "."

	if stateDir, err := project.StateDir(root); err == nil {
		if _, statErr := os.Stat(stateDir); statErr == nil {
			cfg, loadErr := project.Load(root)
			if loadErr != nil {
				return fmt.Errorf(".hydra exists but config.toml is invalid: %w (remove .hydra to reinitialize)", loadErr)
			}
			fmt.Printf("pulsehub is already initialized (project UUID: %s)\n", cfg.ProjectUUID)
			fmt.Printf("Socket path: %s\n", cfg.SocketPath)
			printDaemonStatusLine(cfg)
			return nil
		}
	}

	cfg, err := project.Init(root)
	if err != nil {
		return fmt.Errorf("initializing project: %w", err)
	}
	fmt.Printf("pulsehub initialized (project UUID: %s)\n", cfg.ProjectUUID)
	fmt.Printf("Socket path: %s\n", cfg.SocketPath)

	if !spawnDaemon {
		fmt.Println("To start the daemon, run: pulsehub start")
		return nil
	}

	return spawnDaemonBinary(cfg)
}

// spawnDaemonBinary copies the currently running executable into the
// state directory and execs it as "pulsehub start" detached from this
// process, mirroring the original hydra-mail init --daemon flow: a
// stable, self-contained copy survives the source binary being
// replaced by a later `go install`/package upgrade while the daemon is
// still running.
func spawnDaemonBinary(cfg *project.Config) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating current executable: %w", err)
	}

	daemonBinary := filepath.Join(filepath.Dir(cfg.SocketPath), "pulsehub-daemon")
	data, err := os.ReadFile(exe)
	if err != nil {
		return fmt.Errorf("reading current executable: %w", err)
	}
	if err := os.WriteFile(daemonBinary, data, 0o700); err != nil {
		return fmt.Errorf("writing daemon binary: %w", err)
	}

	child := exec.Command(daemonBinary, "start")
	child.Stdout = nil
	child.Stderr = nil
	if err := child.Start(); err != nil {
		return fmt.Errorf("spawning daemon: %w", err)
	}

	fmt.Printf("Daemon spawned with PID: %d\n", child.Process.Pid)
	return nil
}

func printDaemonStatusLine(cfg *project.Config) {
	running, pid := project.IsDaemonRunning(cfg.PIDPath())
	if running {
		fmt.Printf("Daemon is running with PID: %d\n", pid)
	} else {
		fmt.Println("Daemon is not running (no live daemon.pid)")
	}
}
