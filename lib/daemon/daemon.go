// Copyright 2026 The Pulsehub Authors
// SPDX-License-Identifier: Apache-2.0

// Package daemon implements the long-lived broker process: it owns the
// channel engine and message log, accepts connections on a Unix socket,
// and multiplexes concurrent publishers and subscribers, one goroutine per
// connection.
//
// Heavily adapted from bureau-foundation-bureau's lib/service.SocketServer:
// that server is a one-CBOR-value-per-connection request/response model,
// while this one speaks line-delimited JSON over a connection that a
// subscriber may hold open indefinitely. The accept-loop shutdown pattern
// (closing the listener from a context-done goroutine, waiting on a
// sync.WaitGroup for in-flight connections) is kept unchanged.
package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/relay-foundation/pulsehub/lib/broker"
	"github.com/relay-foundation/pulsehub/lib/channel"
	"github.com/relay-foundation/pulsehub/lib/clock"
	"github.com/relay-foundation/pulsehub/lib/messagelog"
	"github.com/relay-foundation/pulsehub/lib/project"
	"github.com/relay-foundation/pulsehub/lib/pulse"
	"github.com/relay-foundation/pulsehub/lib/ratelimit"
)

// shutdownGrace is how long the accept loop waits for in-flight
// connections (mainly long-lived subscribers) to notice shutdown before
// the daemon returns anyway.
const shutdownGrace = 2 * time.Second

// compactionInterval is the default period between message log
// compactions, matching spec §4.4's "periodic (default every 10 minutes)."
const compactionInterval = 10 * time.Minute

// Daemon is the process-wide object described in spec §9: a scoped,
// explicitly constructed and torn-down holder of the channel registry and
// log handle, passed by reference to every connection handler. Never a
// package-level global.
type Daemon struct {
	config *project.Config
	engine *channel.Engine
	log    *messagelog.Log
	logger *slog.Logger
	clock  clock.Clock

	activeConnections sync.WaitGroup
	listener          net.Listener
}

// Option configures a Daemon at construction time.
type Option func(*Daemon)

// WithClock sets the clock used for the compaction timer. The default is
// clock.Real(). Tests inject clock.Fake() to drive compaction
// deterministically instead of waiting on compactionInterval.
func WithClock(c clock.Clock) Option {
	return func(d *Daemon) {
		d.clock = c
	}
}

// New constructs a Daemon from a loaded project config. Call Run to start
// serving; the returned Daemon owns no OS resources until Run is called.
func New(cfg *project.Config, logger *slog.Logger, opts ...Option) *Daemon {
	d := &Daemon{
		config: cfg,
		logger: logger,
		clock:  clock.Real(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes the full startup sequence from spec §4.5, then serves until
// ctx is cancelled, then performs the shutdown sequence from spec §4.5/§5.
func (d *Daemon) Run(ctx context.Context) error {
	pidPath := d.config.PIDPath()
	socketPath := d.config.SocketPath

	if err := project.ReclaimStale(pidPath, socketPath); err != nil {
		return fmt.Errorf("starting daemon: %w", err)
	}

	log, err := messagelog.Open(d.config.LogPath())
	if err != nil {
		return fmt.Errorf("opening message log: %w", err)
	}
	d.log = log
	defer d.log.Close()

	d.engine = channel.New(
		d.config.Limits.ReplayBufferCapacity,
		d.config.Limits.BroadcastChannelCapacity,
		d.log,
	)

	if err := d.replayLog(); err != nil {
		return fmt.Errorf("replaying message log: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", socketPath, err)
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("setting socket permissions: %w", err)
	}
	d.listener = listener
	defer func() {
		listener.Close()
		os.Remove(socketPath)
	}()

	if err := project.WritePID(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer project.RemovePID(pidPath)

	compactionDone := d.runCompactionTimer(ctx)
	defer func() { <-compactionDone }()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	d.logger.Info("daemon listening", "socket", socketPath, "project", d.config.ProjectUUID)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			d.logger.Error("accept failed", "error", err)
			continue
		}

		d.activeConnections.Add(1)
		go func() {
			defer d.activeConnections.Done()
			d.handleConnection(ctx, conn)
		}()
	}

	d.waitForConnectionsWithGrace()
	return nil
}

func (d *Daemon) waitForConnectionsWithGrace() {
	done := make(chan struct{})
	go func() {
		d.activeConnections.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownGrace):
		d.logger.Warn("shutdown grace period elapsed with connections still active")
	}
}

// replayLog implements spec §6's reclaim rule (c): rebuild replay buffers
// from the log before accepting connections.
func (d *Daemon) replayLog() error {
	records, err := d.log.Replay()
	if err != nil {
		return err
	}
	for _, rec := range records {
		d.engine.ReplayInto(rec.Topic, rec.Body)
	}
	d.logger.Info("replayed message log", "records", len(records))
	return nil
}

func (d *Daemon) runCompactionTimer(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	ticker := d.clock.NewTicker(compactionInterval)

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := d.log.Compact(d.config.Limits.ReplayBufferCapacity); err != nil {
					d.logger.Error("log compaction failed", "error", err)
				} else {
					d.logger.Info("log compaction completed")
				}
			}
		}
	}()

	return done
}

// handleConnection owns one client socket for its entire lifetime: a
// single emit is one read + one write, but a subscribe holds the
// connection open for a live stream until the client disconnects or the
// daemon shuts down.
func (d *Daemon) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	limiter := ratelimit.New(d.config.Limits.RateLimitPerSecond)
	reader := bufio.NewScanner(conn)
	reader.Buffer(make([]byte, 0, 64*1024), d.config.Limits.MaxMessageSize*2+4096)

	for reader.Scan() {
		line := reader.Bytes()
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			writeEmitError(conn, broker.New(broker.BadEncoding, "malformed request line: %v", err))
			continue
		}

		switch req.Cmd {
		case "emit":
			d.handleEmit(conn, req, limiter)
		case "subscribe":
			d.handleSubscribe(ctx, conn, req)
			return // subscribe owns the connection until it returns
		default:
			writeEmitError(conn, broker.New(broker.UnknownCommand, "unknown cmd %q", req.Cmd))
		}
	}
}

// request is the wire shape of one line-delimited JSON command (spec §6).
type request struct {
	Cmd     string `json:"cmd"`
	Channel string `json:"channel"`
	Format  string `json:"format"`
	Data    string `json:"data"`
}

type emitResponse struct {
	Status    string `json:"status"`
	Format    string `json:"format,omitempty"`
	Size      int    `json:"size,omitempty"`
	Receivers int    `json:"receivers,omitempty"`
	Msg       string `json:"msg,omitempty"`
}

func (d *Daemon) handleEmit(conn net.Conn, req request, limiter *ratelimit.Limiter) {
	if err := limiter.Allow(); err != nil {
		writeEmitError(conn, err)
		return
	}

	body, err := pulse.Base64Unwrap(req.Data)
	if err != nil {
		writeEmitError(conn, err)
		return
	}

	maxSize := d.config.Limits.MaxMessageSize
	if maxSize <= 0 {
		maxSize = pulse.DefaultMaxMessageSize
	}
	if err := pulse.CheckSize(body, maxSize); err != nil {
		writeEmitError(conn, err)
		return
	}

	receivers, err := d.engine.Publish(req.Channel, pulse.Body(body))
	if err != nil {
		writeEmitError(conn, err)
		return
	}

	writeJSONLine(conn, emitResponse{
		Status:    "ok",
		Format:    req.Format,
		Size:      len(body),
		Receivers: receivers,
	})
}

func (d *Daemon) handleSubscribe(ctx context.Context, conn net.Conn, req request) {
	sub := d.engine.Subscribe(req.Channel)
	defer sub.Close()

	for _, body := range sub.Snapshot {
		if !writeBodyLine(conn, body) {
			return
		}
	}

	for {
		done := make(chan struct{})
		var body pulse.Body
		var lagged, ok bool
		go func() {
			body, lagged, ok = sub.Next()
			close(done)
		}()

		select {
		case <-ctx.Done():
			return
		case <-done:
		}

		if !ok {
			return
		}
		if lagged {
			d.logger.Debug("subscriber lagged", "channel", req.Channel)
		}
		if !writeBodyLine(conn, body) {
			return
		}
	}
}

func writeBodyLine(conn net.Conn, body pulse.Body) bool {
	line := pulse.Base64Wrap(body) + "\n"
	if _, err := io.WriteString(conn, line); err != nil {
		return false
	}
	return true
}

func writeJSONLine(conn net.Conn, v any) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return
	}
	encoded = append(encoded, '\n')
	_, _ = conn.Write(encoded)
}

func writeEmitError(conn net.Conn, err error) {
	var brokerErr *broker.Error
	message := err.Error()
	if errors.As(err, &brokerErr) {
		message = fmt.Sprintf("%s: %s", brokerErr.Kind, brokerErr.Message)
	}
	writeJSONLine(conn, emitResponse{Status: "error", Msg: message})
}
