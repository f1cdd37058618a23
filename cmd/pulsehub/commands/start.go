// Copyright 2026 The Pulsehub Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/relay-foundation/pulsehub/lib/daemon"
	"github.com/relay-foundation/pulsehub/lib/project"
)

func startCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the pulsehub daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart()
		},
	}
}

func runStart() error {
	_, cfg, err := project.Resolve(".")
	if err != nil {
		return fmt.Errorf("resolving project state: %w (run `pulsehub init` first)", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d := daemon.New(cfg, logger)
	if err := d.Run(ctx); err != nil {
		return fmt.Errorf("daemon exited: %w", err)
	}
	return nil
}
