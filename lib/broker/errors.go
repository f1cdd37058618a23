// Copyright 2026 The Pulsehub Authors
// SPDX-License-Identifier: Apache-2.0

// Package broker defines the error vocabulary shared by the channel
// engine, the message log, and the daemon's connection handler.
package broker

import (
	"errors"
	"fmt"
)

// ErrorKind identifies one of the broker's well-known failure modes. The
// daemon surfaces the kind to clients as a string inside the "msg" field
// of an error response; the CLI exits with code 3 for any error response
// from the daemon, whatever its kind.
type ErrorKind string

const (
	// UnknownCommand means the "cmd" field of a request was not recognized.
	UnknownCommand ErrorKind = "UnknownCommand"

	// UnknownChannel means a subscribe targeted a channel with no prior
	// emits and implicit creation was disabled. Implicit creation is the
	// default; this kind exists for the optional policy described in
	// spec §7.
	UnknownChannel ErrorKind = "UnknownChannel"

	// TooLarge means a body exceeded max_message_size.
	TooLarge ErrorKind = "TooLarge"

	// RateLimited means a connection's publish rate exceeded its
	// configured per-second allowance.
	RateLimited ErrorKind = "RateLimited"

	// BadEncoding means a request's base64 data failed to decode, or a
	// frame was not valid UTF-8.
	BadEncoding ErrorKind = "BadEncoding"

	// LogFailed means the message log's append failed with an I/O error.
	LogFailed ErrorKind = "LogFailed"

	// Lagged means a subscriber fell behind the broadcast capacity and
	// had its cursor fast-forwarded to the newest body.
	Lagged ErrorKind = "Lagged"

	// DaemonUnreachable is client-side only: the socket is missing or the
	// connection was refused.
	DaemonUnreachable ErrorKind = "DaemonUnreachable"
)

// Error is a structured broker failure. Callers use errors.As to recover
// the Kind:
//
//	var brokerErr *broker.Error
//	if errors.As(err, &brokerErr) {
//	    switch brokerErr.Kind { ... }
//	}
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("broker: %s: %s", e.Kind, e.Message)
}

// New constructs an *Error with the given kind and a formatted message.
func New(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func isKind(err error, kind ErrorKind) bool {
	var brokerErr *Error
	if errors.As(err, &brokerErr) {
		return brokerErr.Kind == kind
	}
	return false
}

// IsUnknownCommand reports whether err is a broker.Error of kind UnknownCommand.
func IsUnknownCommand(err error) bool { return isKind(err, UnknownCommand) }

// IsUnknownChannel reports whether err is a broker.Error of kind UnknownChannel.
func IsUnknownChannel(err error) bool { return isKind(err, UnknownChannel) }

// IsTooLarge reports whether err is a broker.Error of kind TooLarge.
func IsTooLarge(err error) bool { return isKind(err, TooLarge) }

// IsRateLimited reports whether err is a broker.Error of kind RateLimited.
func IsRateLimited(err error) bool { return isKind(err, RateLimited) }

// IsBadEncoding reports whether err is a broker.Error of kind BadEncoding.
func IsBadEncoding(err error) bool { return isKind(err, BadEncoding) }

// IsLogFailed reports whether err is a broker.Error of kind LogFailed.
func IsLogFailed(err error) bool { return isKind(err, LogFailed) }

// IsLagged reports whether err is a broker.Error of kind Lagged.
func IsLagged(err error) bool { return isKind(err, Lagged) }

// IsDaemonUnreachable reports whether err is a broker.Error of kind DaemonUnreachable.
func IsDaemonUnreachable(err error) bool { return isKind(err, DaemonUnreachable) }
