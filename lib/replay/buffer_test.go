// Copyright 2026 The Pulsehub Authors
// SPDX-License-Identifier: Apache-2.0

package replay

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relay-foundation/pulsehub/lib/pulse"
)

func TestBufferStoresMessagesInOrder(t *testing.T) {
	buf := New(100)

	buf.Push(pulse.Body("msg1"))
	buf.Push(pulse.Body("msg2"))
	buf.Push(pulse.Body("msg3"))

	snapshot := buf.Snapshot()
	require.Len(t, snapshot, 3)
	require.Equal(t, pulse.Body("msg1"), snapshot[0])
	require.Equal(t, pulse.Body("msg2"), snapshot[1])
	require.Equal(t, pulse.Body("msg3"), snapshot[2])
}

func TestBufferCapacityLimitEvictsOldest(t *testing.T) {
	buf := New(100)

	for i := 0; i < 150; i++ {
		buf.Push(pulse.Body(fmt.Sprintf("msg%d", i)))
	}

	snapshot := buf.Snapshot()
	require.Len(t, snapshot, 100)
	require.Equal(t, pulse.Body("msg50"), snapshot[0])
	require.Equal(t, pulse.Body("msg149"), snapshot[99])
}

func TestBufferSnapshotIsIndependentCopy(t *testing.T) {
	buf := New(4)
	buf.Push(pulse.Body("a"))

	snapshot := buf.Snapshot()
	buf.Push(pulse.Body("b"))

	require.Len(t, snapshot, 1, "earlier snapshot must not observe later pushes")
}

func TestBufferLenNeverExceedsCapacity(t *testing.T) {
	buf := New(3)
	for i := 0; i < 10; i++ {
		buf.Push(pulse.Body(fmt.Sprintf("%d", i)))
		require.LessOrEqual(t, buf.Len(), buf.Capacity())
	}
}
