// Copyright 2026 The Pulsehub Authors
// SPDX-License-Identifier: Apache-2.0

// Package replay implements the bounded FIFO that retains the last N
// published bodies per channel, giving late subscribers history without
// unbounded memory growth.
package replay

import "github.com/relay-foundation/pulsehub/lib/pulse"

// DefaultCapacity is the replay_buffer_capacity applied when a project's
// config.toml does not override it.
const DefaultCapacity = 100

// Buffer is a bounded FIFO of recent message bodies. Capacity is fixed at
// construction. Only the channel engine's publish path should call Push;
// all other callers should treat a Buffer as read-only via Snapshot.
//
// Buffer is not safe for concurrent use on its own — the channel engine
// serializes access to a channel's Buffer under its registry entry.
type Buffer struct {
	messages []pulse.Body
	capacity int
	start    int // index of the oldest element within messages
	count    int // number of valid elements
}

// New constructs an empty Buffer with the given capacity. Panics if
// capacity <= 0.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		panic("replay: non-positive capacity")
	}
	return &Buffer{
		messages: make([]pulse.Body, capacity),
		capacity: capacity,
	}
}

// Push appends body, evicting the oldest element first if the buffer is at
// capacity. O(1).
func (b *Buffer) Push(body pulse.Body) {
	writeIndex := (b.start + b.count) % b.capacity

	if b.count == b.capacity {
		// At capacity: overwrite the oldest slot and advance start,
		// which is equivalent to evict-then-append.
		b.messages[writeIndex] = body
		b.start = (b.start + 1) % b.capacity
		return
	}

	b.messages[writeIndex] = body
	b.count++
}

// Snapshot returns a consistent copy of the buffer's current contents in
// publish order (oldest first).
func (b *Buffer) Snapshot() []pulse.Body {
	out := make([]pulse.Body, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.messages[(b.start+i)%b.capacity]
	}
	return out
}

// Len returns the number of bodies currently retained.
func (b *Buffer) Len() int {
	return b.count
}

// Capacity returns the buffer's fixed capacity.
func (b *Buffer) Capacity() int {
	return b.capacity
}
