// Copyright 2026 The Pulsehub Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/relay-foundation/pulsehub/lib/client"
	"github.com/relay-foundation/pulsehub/lib/project"
	"github.com/relay-foundation/pulsehub/lib/pulse"
)

// emitTimeout bounds the whole emit round trip, including the dial.
const emitTimeout = 15 * time.Second

func emitCommand() *cobra.Command {
	var pulseType string
	var metadataRaw string

	cmd := &cobra.Command{
		Use:   "emit <channel> <data>",
		Short: "Publish one pulse to a channel",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEmit(args[0], args[1], pulseType, metadataRaw)
		},
	}

	cmd.Flags().StringVar(&pulseType, "type", "pulse", "pulse_type field of the emitted body")
	cmd.Flags().StringVar(&metadataRaw, "metadata", "", "optional JSON metadata attached to the pulse")
	return cmd
}

func runEmit(channel, dataRaw, pulseType, metadataRaw string) error {
	_, cfg, err := project.Resolve(".")
	if err != nil {
		return fmt.Errorf("resolving project state: %w", err)
	}

	data := decodeJSONOrString(dataRaw)

	var metadata any
	if metadataRaw != "" {
		metadata = decodeJSONOrString(metadataRaw)
	}

	maxSize := cfg.Limits.MaxMessageSize
	if maxSize <= 0 {
		maxSize = pulse.DefaultMaxMessageSize
	}

	body, err := pulse.BuildBody(pulseType, channel, data, metadata, maxSize)
	if err != nil {
		return brokerError(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
	defer cancel()

	c := client.New(cfg.SocketPath)
	result, err := c.Emit(ctx, channel, body)
	if err != nil {
		var clientErr *client.ClientError
		if errors.As(err, &clientErr) {
			return brokerError(clientErr)
		}
		if isConnectionRefused(err) {
			return daemonUnreachable(fmt.Errorf("%w (is the daemon running? try `pulsehub start`)", err))
		}
		return daemonUnreachable(err)
	}

	fmt.Printf("ok: %d bytes, %d receiver(s)\n", result.Size, result.Receivers)
	return nil
}

// decodeJSONOrString tries to parse raw as JSON; if that fails, the value
// is carried as a plain string. This lets `pulsehub emit ch hello` and
// `pulsehub emit ch '{"a":1}'` both work without a separate flag.
func decodeJSONOrString(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

func isConnectionRefused(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
