// Copyright 2026 The Pulsehub Authors
// SPDX-License-Identifier: Apache-2.0

package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsDaemonRunningFalseWhenFileMissing(t *testing.T) {
	running, pid := IsDaemonRunning(filepath.Join(t.TempDir(), "daemon.pid"))
	require.False(t, running)
	require.Zero(t, pid)
}

func TestIsDaemonRunningTrueForOwnProcess(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "daemon.pid")
	require.NoError(t, WritePID(pidPath))

	running, pid := IsDaemonRunning(pidPath)
	require.True(t, running)
	require.Equal(t, os.Getpid(), pid)
}

func TestIsDaemonRunningFalseForStaleEntry(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "daemon.pid")
	require.NoError(t, os.WriteFile(pidPath, []byte("999999999\n"), 0o600))

	running, _ := IsDaemonRunning(pidPath)
	require.False(t, running)
}

func TestReclaimStaleRemovesStaleFiles(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "daemon.pid")
	socketPath := filepath.Join(dir, "hydra.sock")

	require.NoError(t, os.WriteFile(pidPath, []byte("999999999\n"), 0o600))
	require.NoError(t, os.WriteFile(socketPath, []byte{}, 0o600))

	require.NoError(t, ReclaimStale(pidPath, socketPath))

	_, err := os.Stat(pidPath)
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(socketPath)
	require.True(t, os.IsNotExist(err))
}

func TestReclaimStaleRefusesWhenProcessIsLive(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "daemon.pid")
	require.NoError(t, WritePID(pidPath))

	err := ReclaimStale(pidPath, filepath.Join(dir, "hydra.sock"))
	require.Error(t, err)
}

func TestWritePIDRefusesDuplicateCreation(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "daemon.pid")
	require.NoError(t, WritePID(pidPath))

	err := WritePID(pidPath)
	require.Error(t, err, "O_EXCL must reject a second daemon writing the same PID file")
}
