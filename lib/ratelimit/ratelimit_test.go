// Copyright 2026 The Pulsehub Authors
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relay-foundation/pulsehub/lib/broker"
)

func TestZeroDisablesRateLimiting(t *testing.T) {
	l := New(0)
	for i := 0; i < 1000; i++ {
		require.NoError(t, l.Allow())
	}
}

func TestLowRateRejectsBurst(t *testing.T) {
	l := New(1)

	require.NoError(t, l.Allow(), "the first emit should consume the initial burst token")

	err := l.Allow()
	require.Error(t, err)
	require.True(t, broker.IsRateLimited(err))
}
