// Copyright 2026 The Pulsehub Authors
// SPDX-License-Identifier: Apache-2.0

// Package pulse builds and size-checks MessageBody values from caller
// fields, and wraps/unwraps them for transport inside the line-delimited
// JSON command protocol.
//
// The broker itself never inspects a body's contents once built; this
// package exists for clients and tests that want the reference Pulse
// shape rather than hand-assembling bytes.
package pulse

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/relay-foundation/pulsehub/lib/broker"
)

// DefaultMaxMessageSize is the default max_message_size, in bytes, applied
// when a project's config.toml does not override it.
const DefaultMaxMessageSize = 10240

// Body is an opaque byte sequence carrying one message. The engine never
// parses it; it only stores, forwards, and counts bytes.
type Body []byte

// Pulse is the reference structured shape of a body. It is recommended but
// not required by the broker — any byte sequence within the size cap is
// accepted on the wire.
type Pulse struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"pulse_type"`
	Channel   string    `json:"channel"`
	Data      any       `json:"data"`
	Metadata  any       `json:"metadata,omitempty"`
}

// BuildBody assembles a Pulse from caller-provided fields, serializes it,
// and rejects the result if it exceeds maxSize. Assigns a fresh id and the
// current timestamp.
func BuildBody(pulseType, channel string, data, metadata any, maxSize int) (Body, error) {
	p := Pulse{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC(),
		Type:      pulseType,
		Channel:   channel,
		Data:      data,
		Metadata:  metadata,
	}

	encoded, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding pulse: %w", err)
	}

	if err := CheckSize(encoded, maxSize); err != nil {
		return nil, err
	}

	return Body(encoded), nil
}

// CheckSize returns a broker.Error of kind TooLarge when body exceeds
// maxSize; otherwise returns nil.
func CheckSize(body []byte, maxSize int) error {
	if len(body) > maxSize {
		return broker.New(broker.TooLarge, "body of %d bytes exceeds max_message_size of %d", len(body), maxSize)
	}
	return nil
}

// Base64Wrap losslessly wraps a body for embedding inside a JSON command
// line, so raw bytes never need escaping.
func Base64Wrap(body []byte) string {
	return base64.StdEncoding.EncodeToString(body)
}

// Base64Unwrap reverses Base64Wrap. Returns a broker.Error of kind
// BadEncoding on malformed input.
func Base64Unwrap(encoded string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, broker.New(broker.BadEncoding, "invalid base64 data: %v", err)
	}
	return decoded, nil
}

// Parse attempts to decode body as a reference-shaped Pulse. Callers that
// only need raw bytes should not call this — the broker itself never does.
func Parse(body []byte) (Pulse, error) {
	var p Pulse
	if err := json.Unmarshal(body, &p); err != nil {
		return Pulse{}, fmt.Errorf("decoding pulse: %w", err)
	}
	return p, nil
}
