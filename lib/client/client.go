// Copyright 2026 The Pulsehub Authors
// SPDX-License-Identifier: Apache-2.0

// Package client implements the broker's wire protocol from the caller
// side: connect to a project's Unix socket, emit one pulse and read its
// response, or open a long-lived subscribe stream.
//
// Heavily adapted from bureau-foundation-bureau's lib/service.ServiceClient:
// that client speaks one CBOR request/response per connection with an
// auth token injected into every request; this one speaks line-delimited
// JSON, carries no token (the broker has no auth model), and Subscribe
// is a streaming read loop rather than a single Call.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/relay-foundation/pulsehub/lib/pulse"
)

// dialTimeout bounds only the connect phase, separate from any read/write
// deadline applied after the connection is established.
const dialTimeout = 5 * time.Second

// emitResponseTimeout bounds how long Emit waits for the single response
// line after writing a request.
const emitResponseTimeout = 10 * time.Second

// ClientError is returned by Emit when the daemon responds with
// status=="error". It carries the raw message the daemon sent, which is
// usually "<ErrorKind>: <detail>" (see lib/broker.Error), but Client makes
// no assumption about its shape beyond that.
type ClientError struct {
	Message string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("broker returned error: %s", e.Message)
}

// Client sends commands to one project's daemon over its Unix socket.
// Each call opens its own connection, matching the daemon's
// one-goroutine-per-connection model; a Client holds no persistent state
// beyond the socket path.
type Client struct {
	socketPath string
}

// New constructs a Client bound to socketPath. It does not dial; dialing
// happens lazily on the first Emit or Subscribe call.
func New(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

type request struct {
	Cmd     string `json:"cmd"`
	Channel string `json:"channel"`
	Format  string `json:"format,omitempty"`
	Data    string `json:"data,omitempty"`
}

type emitResponse struct {
	Status    string `json:"status"`
	Format    string `json:"format,omitempty"`
	Size      int    `json:"size,omitempty"`
	Receivers int    `json:"receivers,omitempty"`
	Msg       string `json:"msg,omitempty"`
}

// EmitResult reports what the daemon accepted.
type EmitResult struct {
	Size      int
	Receivers int
}

// Emit opens a connection, sends one emit request carrying body, and
// returns once the daemon's single response line has been read. body is
// the raw pulse bytes; Emit handles the base64 wrapping the wire protocol
// requires.
//
// Returns *ClientError if the daemon responded with status=="error".
// Returns a plain error for connection failures, which callers can match
// against net errors to distinguish "daemon unreachable" from other
// failure modes.
func (c *Client) Emit(ctx context.Context, channel string, body []byte) (EmitResult, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return EmitResult{}, err
	}
	defer conn.Close()

	req := request{
		Cmd:     "emit",
		Channel: channel,
		Format:  "toon",
		Data:    pulse.Base64Wrap(body),
	}
	if err := writeRequest(conn, req); err != nil {
		return EmitResult{}, fmt.Errorf("writing emit request: %w", err)
	}
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	conn.SetReadDeadline(time.Now().Add(emitResponseTimeout))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return EmitResult{}, fmt.Errorf("reading emit response: %w", err)
	}

	var resp emitResponse
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		return EmitResult{}, fmt.Errorf("decoding emit response: %w", err)
	}
	if resp.Status != "ok" {
		return EmitResult{}, &ClientError{Message: resp.Msg}
	}

	return EmitResult{Size: resp.Size, Receivers: resp.Receivers}, nil
}

// Subscribe opens a connection, sends a subscribe request for channel,
// and streams decoded bodies onto the returned channel until ctx is
// cancelled or the daemon closes the connection. The error channel
// receives at most one value, sent just before both channels close.
//
// The connection is closed when ctx is cancelled, so callers that want
// "read one message and stop" should cancel ctx after receiving their
// first value from the bodies channel.
func (c *Client) Subscribe(ctx context.Context, channel string) (<-chan []byte, <-chan error) {
	bodies := make(chan []byte)
	errs := make(chan error, 1)

	go func() {
		defer close(bodies)
		defer close(errs)

		conn, err := c.dial(ctx)
		if err != nil {
			errs <- err
			return
		}

		go func() {
			<-ctx.Done()
			conn.Close()
		}()

		req := request{Cmd: "subscribe", Channel: channel}
		if err := writeRequest(conn, req); err != nil {
			conn.Close()
			errs <- fmt.Errorf("writing subscribe request: %w", err)
			return
		}

		scanner := bufio.NewScanner(conn)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			body, err := pulse.Base64Unwrap(line)
			if err != nil {
				conn.Close()
				errs <- fmt.Errorf("decoding subscribed body: %w", err)
				return
			}
			select {
			case bodies <- body:
			case <-ctx.Done():
				conn.Close()
				return
			}
		}
		conn.Close()
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			errs <- fmt.Errorf("reading subscribe stream: %w", err)
		}
	}()

	return bodies, errs
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", c.socketPath, err)
	}
	return conn, nil
}

func writeRequest(conn net.Conn, req request) error {
	encoded, err := json.Marshal(req)
	if err != nil {
		return err
	}
	encoded = append(encoded, '\n')
	_, err = conn.Write(encoded)
	return err
}
