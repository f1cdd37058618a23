// Copyright 2026 The Pulsehub Authors
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit enforces the per-connection publish rate described in
// spec §4.8. The per-message size cap is checked separately by
// lib/pulse.CheckSize. Subscribers are never rate-limited; only emits pass
// through a Limiter.
package ratelimit

import (
	"golang.org/x/time/rate"

	"github.com/relay-foundation/pulsehub/lib/broker"
)

// Limiter gates one connection's emit rate. A Limiter constructed with
// perSecond <= 0 allows every emit (rate limiting off, matching config's
// "0 = off" convention).
type Limiter struct {
	limiter *rate.Limiter
}

// New constructs a Limiter allowing perSecond emits per second, bursting
// up to perSecond. perSecond <= 0 disables limiting entirely.
func New(perSecond int) *Limiter {
	if perSecond <= 0 {
		return &Limiter{limiter: nil}
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(perSecond), perSecond)}
}

// Allow reports whether an emit on this connection may proceed right now.
// It never blocks — a denied emit is rejected with RateLimited rather than
// queued, since the protocol has no notion of waiting for capacity.
func (l *Limiter) Allow() error {
	if l.limiter == nil {
		return nil
	}
	if !l.limiter.Allow() {
		return broker.New(broker.RateLimited, "emit rate exceeds configured rate_limit_per_second")
	}
	return nil
}
