// Copyright 2026 The Pulsehub Authors
// SPDX-License-Identifier: Apache-2.0

// Package messagelog implements the append-only crash-recovery record
// used to rebuild replay buffers when the daemon restarts, plus periodic
// compaction.
package messagelog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/relay-foundation/pulsehub/lib/pulse"
)

// entry is one record in the log file: a newline-delimited JSON object
// carrying the topic and base64-wrapped body. ProjectId is implicit —
// each project owns its own log file (spec §4.4).
type entry struct {
	Topic     string    `json:"topic"`
	Body      string    `json:"body"` // base64, reusing lib/pulse's wire convention
	Timestamp time.Time `json:"timestamp"`
}

// Record is a decoded log entry returned by Replay.
type Record struct {
	Topic string
	Body  pulse.Body
}

// Log is an append-only file of published bodies. One Log instance is
// owned exclusively by the daemon; all appends are serialized through its
// mutex, matching spec §5's "one writer... serialized appends."
type Log struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// Open opens (creating if absent) the log file at path for appending.
func Open(path string) (*Log, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening message log %s: %w", path, err)
	}
	return &Log{path: path, file: file}, nil
}

// Append writes one record and flushes it to disk before returning. Called
// from the channel engine's publish path before fan-out (spec §4.3 step
// 3); any error here aborts the publish with broker.LogFailed at the
// caller.
func (l *Log) Append(topic string, body pulse.Body) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	line, err := json.Marshal(entry{
		Topic:     topic,
		Body:      pulse.Base64Wrap(body),
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encoding log entry: %w", err)
	}
	line = append(line, '\n')

	if _, err := l.file.Write(line); err != nil {
		return fmt.Errorf("writing to message log: %w", err)
	}
	return l.file.Sync()
}

// Replay re-reads the log file from the beginning and returns every
// record in append order. Called once at daemon startup, before accepting
// connections, to rebuild replay buffers.
func (l *Log) Replay() ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return replayFile(l.path)
}

func replayFile(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening message log %s for replay: %w", path, err)
	}
	defer file.Close()

	var records []Record
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var e entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("parsing message log line: %w", err)
		}

		body, err := pulse.Base64Unwrap(e.Body)
		if err != nil {
			return nil, fmt.Errorf("decoding message log body: %w", err)
		}

		records = append(records, Record{Topic: e.Topic, Body: body})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading message log: %w", err)
	}

	return records, nil
}

// Compact rewrites the log to retain only the last keepPerTopic bodies per
// topic, then atomically swaps it in via temp-file-plus-rename so no
// concurrent Append ever observes a half-written file. The records that
// survive are written back out in their original relative order (not
// grouped by topic) so Replay's output stays close to publish order.
func (l *Log) Compact(keepPerTopic int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := replayFile(l.path)
	if err != nil {
		return fmt.Errorf("reading message log for compaction: %w", err)
	}

	kept := keepLastPerTopic(records, keepPerTopic)

	tmpPath := l.path + ".tmp"
	tmpFile, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating compaction temp file: %w", err)
	}

	writer := bufio.NewWriter(tmpFile)
	for _, rec := range kept {
		line, err := json.Marshal(entry{
			Topic: rec.Topic,
			Body:  pulse.Base64Wrap(rec.Body),
		})
		if err != nil {
			tmpFile.Close()
			return fmt.Errorf("encoding compacted entry: %w", err)
		}
		if _, err := writer.Write(append(line, '\n')); err != nil {
			tmpFile.Close()
			return fmt.Errorf("writing compacted entry: %w", err)
		}
	}
	if err := writer.Flush(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("flushing compacted log: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("syncing compacted log: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing compacted log: %w", err)
	}

	// Close and reopen the live file descriptor after the rename so the
	// writer that holds l.file keeps appending to the correct inode.
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("closing live log before rename: %w", err)
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		return fmt.Errorf("renaming compacted log into place: %w", err)
	}

	newFile, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("reopening message log after compaction: %w", err)
	}
	l.file = newFile

	return nil
}

// keepLastPerTopic groups records by topic, keeps the last n of each (by
// original order), then re-sorts the combined result back into original
// relative order so topics interleave the way they were originally
// published.
func keepLastPerTopic(records []Record, n int) []Record {
	byTopic := make(map[string][]int) // topic -> indices into records
	for i, rec := range records {
		byTopic[rec.Topic] = append(byTopic[rec.Topic], i)
	}

	keepIndex := make(map[int]bool)
	for _, indices := range byTopic {
		start := 0
		if len(indices) > n {
			start = len(indices) - n
		}
		for _, idx := range indices[start:] {
			keepIndex[idx] = true
		}
	}

	kept := make([]Record, 0, len(keepIndex))
	order := make([]int, 0, len(keepIndex))
	for idx := range keepIndex {
		order = append(order, idx)
	}
	sort.Ints(order)
	for _, idx := range order {
		kept = append(kept, records[idx])
	}
	return kept
}

// Close flushes and closes the log file. Called during daemon shutdown.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
