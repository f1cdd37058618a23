// Copyright 2026 The Pulsehub Authors
// SPDX-License-Identifier: Apache-2.0

package messagelog

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relay-foundation/pulsehub/lib/pulse"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	path := filepath.Join(t.TempDir(), "messages.log")
	log, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })
	return log
}

func TestAppendThenReplayRoundTrips(t *testing.T) {
	log := openTestLog(t)

	require.NoError(t, log.Append("r:r", pulse.Body("body-alpha")))
	require.NoError(t, log.Append("r:r", pulse.Body("body-beta")))

	records, err := log.Replay()
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "r:r", records[0].Topic)
	require.Equal(t, pulse.Body("body-alpha"), records[0].Body)
	require.Equal(t, pulse.Body("body-beta"), records[1].Body)
}

func TestReplayOnMissingFileReturnsEmpty(t *testing.T) {
	records, err := replayFile(filepath.Join(t.TempDir(), "does-not-exist.log"))
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestCompactKeepsOnlyLastNPerTopic(t *testing.T) {
	log := openTestLog(t)

	for i := 0; i < 150; i++ {
		require.NoError(t, log.Append("c:c", pulse.Body(fmt.Sprintf("msg%d", i))))
	}

	require.NoError(t, log.Compact(100))

	records, err := log.Replay()
	require.NoError(t, err)
	require.Len(t, records, 100)
	require.Equal(t, pulse.Body("msg50"), records[0].Body)
	require.Equal(t, pulse.Body("msg149"), records[99].Body)
}

func TestCompactPreservesMultipleTopicsIndependently(t *testing.T) {
	log := openTestLog(t)

	require.NoError(t, log.Append("a", pulse.Body("a1")))
	require.NoError(t, log.Append("b", pulse.Body("b1")))
	require.NoError(t, log.Append("a", pulse.Body("a2")))

	require.NoError(t, log.Compact(1))

	records, err := log.Replay()
	require.NoError(t, err)
	require.Len(t, records, 2)

	byTopic := map[string]pulse.Body{}
	for _, rec := range records {
		byTopic[rec.Topic] = rec.Body
	}
	require.Equal(t, pulse.Body("a2"), byTopic["a"])
	require.Equal(t, pulse.Body("b1"), byTopic["b"])
}

func TestAppendAfterCompactStillWorks(t *testing.T) {
	log := openTestLog(t)

	require.NoError(t, log.Append("t", pulse.Body("before")))
	require.NoError(t, log.Compact(100))
	require.NoError(t, log.Append("t", pulse.Body("after")))

	records, err := log.Replay()
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, pulse.Body("before"), records[0].Body)
	require.Equal(t, pulse.Body("after"), records[1].Body)
}

func TestCrashRecoveryReopeningLogPreservesEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.log")

	log, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, log.Append("r:r", pulse.Body("body-alpha")))
	require.NoError(t, log.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	records, err := reopened.Replay()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, pulse.Body("body-alpha"), records[0].Body)
}
