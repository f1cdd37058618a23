// Copyright 2026 The Pulsehub Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorPredicates(t *testing.T) {
	err := New(TooLarge, "body of %d bytes exceeds cap of %d", 2048, 1024)

	require.True(t, IsTooLarge(err))
	require.False(t, IsRateLimited(err))
	require.Equal(t, "broker: TooLarge: body of 2048 bytes exceeds cap of 1024", err.Error())
}

func TestErrorPredicatesThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("publishing to channel a:b: %w", New(LogFailed, "write /tmp/messages.log: disk full"))

	require.True(t, IsLogFailed(wrapped))
	require.False(t, IsLagged(wrapped))
}

func TestErrorPredicatesOnPlainError(t *testing.T) {
	plain := fmt.Errorf("some unrelated failure")

	require.False(t, IsTooLarge(plain))
	require.False(t, IsUnknownCommand(plain))
}
