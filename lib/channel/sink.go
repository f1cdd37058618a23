// Copyright 2026 The Pulsehub Authors
// SPDX-License-Identifier: Apache-2.0

package channel

import (
	"sync"

	"github.com/relay-foundation/pulsehub/lib/pulse"
)

// DefaultBroadcastCapacity is the broadcast_channel_capacity applied when a
// project's config.toml does not override it.
const DefaultBroadcastCapacity = 1024

// sink is the fan-out broadcast primitive described in spec §9:
// conceptually a bounded ring buffer the publisher advances, with each
// subscriber holding an independent read cursor that lags no more than
// capacity. When a cursor would be overwritten it is fast-forwarded to
// newest and the subscriber observes a lag on its next read.
//
// No publisher ever blocks on a slow subscriber — publish only appends to
// the ring and wakes waiters; it never waits for a cursor to catch up.
type sink struct {
	mu        sync.Mutex
	cond      *sync.Cond
	ring      []pulse.Body
	capacity  int
	nextWrite uint64 // total number of bodies ever published (monotonic sequence)
	closed    bool
}

func newSink(capacity int) *sink {
	s := &sink{
		ring:     make([]pulse.Body, capacity),
		capacity: capacity,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// publish appends body to the ring and wakes any blocked subscribers.
// Returns the current live receiver count.
func (s *sink) publish(body pulse.Body, receivers func() int) int {
	s.mu.Lock()
	s.ring[s.nextWrite%uint64(s.capacity)] = body
	s.nextWrite++
	s.mu.Unlock()
	s.cond.Broadcast()
	return receivers()
}

// close wakes every blocked subscriber so their reads return with closed=true.
func (s *sink) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// cursor tracks one subscriber's position in a sink's sequence.
type cursor struct {
	s    *sink
	next uint64
}

// newCursor registers a cursor starting at the sink's current write
// position — i.e. it will observe only bodies published after this call.
func (s *sink) newCursor() *cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &cursor{s: s, next: s.nextWrite}
}

// read blocks until a body is available, the sink closes, or the cursor
// has lagged past the ring's capacity. Returns (body, lagged, ok). ok is
// false only when the sink has been closed and no more bodies remain.
func (c *cursor) read() (body pulse.Body, lagged bool, ok bool) {
	s := c.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for c.next == s.nextWrite && !s.closed {
		s.cond.Wait()
	}

	if c.next == s.nextWrite && s.closed {
		return nil, false, false
	}

	oldestAvailable := uint64(0)
	if s.nextWrite > uint64(s.capacity) {
		oldestAvailable = s.nextWrite - uint64(s.capacity)
	}

	if c.next < oldestAvailable {
		// This cursor fell behind by more than the ring's capacity;
		// fast-forward to the newest body in the ring and surface a
		// lag signal on this read.
		c.next = s.nextWrite - 1
		body = s.ring[c.next%uint64(s.capacity)]
		c.next++
		return body, true, true
	}

	body = s.ring[c.next%uint64(s.capacity)]
	c.next++
	return body, false, true
}

// The live receiver count is tracked separately from cursors because a
// subscriber that has disconnected stops calling read but its cursor
// struct may still exist briefly during cleanup. channelEntry.receivers in
// engine.go tracks the count explicitly via Subscribe/Subscription.Close
// rather than len(cursors),
// since cursors here are not registered in a shared slice (each reader
// owns its own *cursor and polls independently, avoiding a second lock
// ordering concern).
