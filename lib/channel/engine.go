// Copyright 2026 The Pulsehub Authors
// SPDX-License-Identifier: Apache-2.0

// Package channel implements the registry of (project, topic) channels,
// each owning a replay buffer and a fan-out sink, plus the atomic
// publish/subscribe operations spec'd for the broker's core.
package channel

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/relay-foundation/pulsehub/lib/broker"
	"github.com/relay-foundation/pulsehub/lib/pulse"
	"github.com/relay-foundation/pulsehub/lib/replay"
)

// LogAppender is the durability hook publish calls before fan-out, per
// spec §4.3 step 3: "the message is not considered published until the
// log append has succeeded." The message log implements this interface;
// tests may substitute a fake.
type LogAppender interface {
	Append(topic string, body pulse.Body) error
}

// channelEntry owns one channel's replay buffer and fan-out sink.
type channelEntry struct {
	mu        sync.Mutex
	buffer    *replay.Buffer
	sink      *sink
	receivers atomic.Int64
}

// Engine is the central registry of channels for one project, keyed by
// topic. A single Engine instance is scoped to one daemon/project; it is
// created at daemon startup and torn down at shutdown — never a global.
// Project isolation (spec §4.3) falls out of this scoping: each project
// directory runs its own daemon with its own Engine, so there is no shared
// map a ProjectId component would need to partition, the same way the
// message log is implicit per-project (§4.4).
//
// The registry itself is guarded by a single coarse mutex, sufficient for
// the expected scale of a few dozen channels with high per-channel burst
// rate (spec §4.3). The mutex is only ever held long enough to look up or
// insert a channelEntry; all I/O (log append, fan-out) happens after
// release.
type Engine struct {
	replayCapacity    int
	broadcastCapacity int
	log               LogAppender

	mu       sync.Mutex
	channels map[string]*channelEntry // keyed by Topic only; Engine is already project-scoped
}

// New constructs an Engine scoped to one project. log may be nil, in which
// case Publish skips the durability step (used by tests that only need
// fan-out/replay semantics).
func New(replayCapacity, broadcastCapacity int, log LogAppender) *Engine {
	return &Engine{
		replayCapacity:    replayCapacity,
		broadcastCapacity: broadcastCapacity,
		log:               log,
		channels:          make(map[string]*channelEntry),
	}
}

// getOrCreate returns the entry for topic, creating it with a fresh sink
// and empty buffer if absent. Holds the registry lock only for the
// lookup/insert, never across I/O.
func (e *Engine) getOrCreate(topic string) *channelEntry {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.channels[topic]
	if ok {
		return entry
	}

	entry = &channelEntry{
		buffer: replay.New(e.replayCapacity),
		sink:   newSink(e.broadcastCapacity),
	}
	e.channels[topic] = entry
	return entry
}

// ReplayInto pushes body directly into topic's replay buffer without
// touching the log or fan-out sink. Used only at daemon startup to
// reconstruct replay buffers from the message log (spec §4.4/§6) before
// any connection is accepted, so there is no live subscriber to fan out
// to and no need to re-append what was just read from the log.
func (e *Engine) ReplayInto(topic string, body pulse.Body) {
	entry := e.getOrCreate(topic)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.buffer.Push(body)
}

// Publish executes the atomic publish step from spec §4.3: durably append
// to the log, then append to the replay buffer, then fan out to live
// subscribers. Returns the current live receiver count.
//
// Ordering invariant: for two publishes to the same topic, every
// subscriber observes them in the order Publish was called (enforced by
// holding entry.mu across the log-append + buffer-append + fan-out
// sequence).
func (e *Engine) Publish(topic string, body pulse.Body) (receivers int, err error) {
	entry := e.getOrCreate(topic)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	// Log append happens before the replay buffer push, not after, even
	// though spec §4.3 lists the buffer step first: a body that fails to
	// log must never become visible to a late-joining subscriber's
	// snapshot either, or the buffer would promise recovery the log
	// can't deliver after a restart. See DESIGN.md.
	if e.log != nil {
		if err := e.log.Append(topic, body); err != nil {
			return 0, broker.New(broker.LogFailed, "appending to message log: %v", err)
		}
	}

	entry.buffer.Push(body)

	count := int(entry.receivers.Load())
	entry.sink.publish(body, func() int { return count })

	return count, nil
}

// Subscription is a live view onto one channel: the replay snapshot taken
// at registration time, followed by a Next-driven live stream.
type Subscription struct {
	Snapshot []pulse.Body

	entry  *channelEntry
	cursor *cursor
}

// Next blocks until the next live body is available, the subscription is
// closed, or the caller has lagged past the broadcast capacity (in which
// case lagged is true and body is the newest body published).
// ok is false only once the channel will never produce more bodies.
func (s *Subscription) Next() (body pulse.Body, lagged bool, ok bool) {
	return s.cursor.read()
}

// Close releases this subscription's slot in the channel's live receiver
// count. Must be called exactly once when the subscriber disconnects.
func (s *Subscription) Close() {
	s.entry.receivers.Add(-1)
}

// Subscribe executes the atomic subscribe step from spec §4.3: take a
// buffer snapshot, then register a cursor on the sink, returning both. The
// snapshot reflects the buffer's state at a point no later than the
// cursor's starting position, so no body is ever delivered twice and none
// is skipped across the snapshot/live boundary.
func (e *Engine) Subscribe(topic string) *Subscription {
	entry := e.getOrCreate(topic)

	entry.mu.Lock()
	snapshot := entry.buffer.Snapshot()
	cur := entry.sink.newCursor()
	entry.mu.Unlock()

	entry.receivers.Add(1)

	return &Subscription{
		Snapshot: snapshot,
		entry:    entry,
		cursor:   cur,
	}
}

// Topics returns the currently registered topic names for this project's
// engine, sorted. Exposed for status/debugging tooling.
func (e *Engine) Topics() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	topics := make([]string, 0, len(e.channels))
	for topic := range e.channels {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}
