// Copyright 2026 The Pulsehub Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/relay-foundation/pulsehub/lib/client"
	"github.com/relay-foundation/pulsehub/lib/project"
)

func subscribeCommand() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "subscribe <channel>",
		Short: "Stream a channel's replay history and live pulses to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubscribe(args[0], once)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "print the first body received and exit")
	return cmd
}

func runSubscribe(channel string, once bool) error {
	_, cfg, err := project.Resolve(".")
	if err != nil {
		return fmt.Errorf("resolving project state: %w", err)
	}

	if _, err := os.Stat(cfg.SocketPath); err != nil {
		return daemonUnreachable(fmt.Errorf("socket %s not found (is the daemon running? try `pulsehub start`)", cfg.SocketPath))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := client.New(cfg.SocketPath)
	bodies, errs := c.Subscribe(ctx, channel)

	for body := range bodies {
		if _, err := fmt.Println(string(body)); err != nil {
			return err
		}
		if once {
			stop()
			break
		}
	}

	select {
	case err := <-errs:
		if err != nil && ctx.Err() == nil {
			var opErr *net.OpError
			if errors.As(err, &opErr) {
				return daemonUnreachable(err)
			}
			return brokerError(err)
		}
	default:
	}
	return nil
}
