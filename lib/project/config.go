// Copyright 2026 The Pulsehub Authors
// SPDX-License-Identifier: Apache-2.0

// Package project implements the per-project state directory: its
// filesystem layout, config.toml, PID file lifecycle, and socket lifecycle
// described in spec §4.6.
package project

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
)

// StateDirName is the hidden directory created under a project root on
// init. Kept as ".hydra" to match the documented on-disk layout's external
// interface, even though the Go module and binary carry a different name.
const StateDirName = ".hydra"

const (
	configFileName = "config.toml"
	socketFileName = "hydra.sock"
	logFileName    = "messages.log"
	pidFileName    = "daemon.pid"
	errFileName    = "daemon.err"
	envFileName    = "env.sh"
)

// Limits holds the [limits] section of config.toml.
type Limits struct {
	MaxMessageSize           int `toml:"max_message_size"`
	ReplayBufferCapacity     int `toml:"replay_buffer_capacity"`
	BroadcastChannelCapacity int `toml:"broadcast_channel_capacity"`
	RateLimitPerSecond       int `toml:"rate_limit_per_second"`
}

// DefaultLimits returns the defaults named in spec §4.6.
func DefaultLimits() Limits {
	return Limits{
		MaxMessageSize:           10240,
		ReplayBufferCapacity:     100,
		BroadcastChannelCapacity: 1024,
		RateLimitPerSecond:       0,
	}
}

// Config is the full contents of config.toml.
type Config struct {
	ProjectUUID   uuid.UUID `toml:"project_uuid"`
	SocketPath    string    `toml:"socket_path"`
	DefaultTopics []string  `toml:"default_topics"`
	Limits        Limits    `toml:"limits"`
}

// DefaultTopics returns the default_topics written on init, matching
// original_source/hydra-mail/src/config.rs.
func DefaultTopics() []string {
	return []string{"repo:delta", "agent:presence"}
}

// StateDir returns the absolute path to the state directory under
// projectRoot.
func StateDir(projectRoot string) (string, error) {
	abs, err := filepath.Abs(projectRoot)
	if err != nil {
		return "", fmt.Errorf("resolving project root %s: %w", projectRoot, err)
	}
	return filepath.Join(abs, StateDirName), nil
}

// Init creates the state directory layout and writes config.toml. Returns
// an error if the state directory already exists (callers that want
// idempotent init should check first with Load).
func Init(projectRoot string) (*Config, error) {
	stateDir, err := StateDir(projectRoot)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(stateDir); err == nil {
		return nil, fmt.Errorf("state directory %s already exists", stateDir)
	}

	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating state directory %s: %w", stateDir, err)
	}
	// MkdirAll's mode is reduced by the umask; set it explicitly.
	if err := os.Chmod(stateDir, 0o700); err != nil {
		return nil, fmt.Errorf("setting state directory permissions: %w", err)
	}

	cfg := &Config{
		ProjectUUID:   uuid.New(),
		SocketPath:    filepath.Join(stateDir, socketFileName),
		DefaultTopics: DefaultTopics(),
		Limits:        DefaultLimits(),
	}

	if err := writeConfig(stateDir, cfg); err != nil {
		return nil, err
	}

	if err := writeEnvFile(stateDir, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func writeConfig(stateDir string, cfg *Config) error {
	encoded, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config.toml: %w", err)
	}
	path := filepath.Join(stateDir, configFileName)
	if err := os.WriteFile(path, encoded, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// writeEnvFile writes a sourceable shell snippet exporting the
// informational environment surface named in spec §6. The broker never
// reads this file back; it exists for downstream tooling convenience,
// following original_source/hydra-mail/src/config.rs's generate_config_sh.
func writeEnvFile(stateDir string, cfg *Config) error {
	content := fmt.Sprintf(
		"# generated by pulsehub init — informational only, the broker does not read this file\n"+
			"export HYDRA_UUID=%q\n"+
			"export HYDRA_SOCKET=%q\n"+
			"export HYDRA_FORMAT=%q\n",
		cfg.ProjectUUID.String(), cfg.SocketPath, "toon",
	)
	path := filepath.Join(stateDir, envFileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Load reads config.toml from the state directory under projectRoot.
func Load(projectRoot string) (*Config, error) {
	stateDir, err := StateDir(projectRoot)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(stateDir, configFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

// Resolve walks upward from startDir looking for a state directory,
// mirroring the client library's "cwd or ancestors" resolution in spec
// §4.7. Returns the project root that owns the found state directory.
func Resolve(startDir string) (projectRoot string, cfg *Config, err error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", nil, fmt.Errorf("resolving start directory: %w", err)
	}

	for {
		candidate := filepath.Join(dir, StateDirName)
		if info, statErr := os.Stat(candidate); statErr == nil && info.IsDir() {
			loaded, loadErr := Load(dir)
			if loadErr != nil {
				return "", nil, loadErr
			}
			return dir, loaded, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil, fmt.Errorf("no %s state directory found in %s or any ancestor", StateDirName, startDir)
		}
		dir = parent
	}
}

// stateDirFromSocket returns the state directory, which is the directory
// holding the socket file.
func (c *Config) stateDirFromSocket() string {
	return filepath.Dir(c.SocketPath)
}

// LogPath returns the path to messages.log for this project.
func (c *Config) LogPath() string {
	return filepath.Join(c.stateDirFromSocket(), logFileName)
}

// PIDPath returns the path to daemon.pid for this project.
func (c *Config) PIDPath() string {
	return filepath.Join(c.stateDirFromSocket(), pidFileName)
}

// ErrPath returns the path to daemon.err for this project.
func (c *Config) ErrPath() string {
	return filepath.Join(c.stateDirFromSocket(), errFileName)
}
