// Copyright (C) 2026 Meridian Score (engineering@meridianscore.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLevelString(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.level.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warn":    LevelWarn,
		"Warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
	}
	for name, want := range cases {
		got, err := ParseLevel(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestConfigUnmarshalsFromYAML(t *testing.T) {
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(`
level: warn
log_dir: /var/log/meridian
service: signal
quiet: true
`), &cfg))

	assert.Equal(t, LevelWarn, cfg.Level)
	assert.Equal(t, "/var/log/meridian", cfg.LogDir)
	assert.Equal(t, "signal", cfg.Service)
	assert.True(t, cfg.Quiet)

	var bad Config
	assert.Error(t, yaml.Unmarshal([]byte("level: loud"), &bad))
}

func TestLevelToSlog(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LevelDebug.toSlogLevel())
	assert.Equal(t, slog.LevelInfo, LevelInfo.toSlogLevel())
	assert.Equal(t, slog.LevelWarn, LevelWarn.toSlogLevel())
	assert.Equal(t, slog.LevelError, LevelError.toSlogLevel())
	assert.Equal(t, slog.LevelInfo, Level(99).toSlogLevel())
}

func TestDefaultLoggerNeverNil(t *testing.T) {
	logger := Default()
	require.NotNil(t, logger)
	require.NotNil(t, logger.Slog())

	// Close without a file is a no-op.
	assert.NoError(t, logger.Close())
	assert.NoError(t, logger.Close())
}

func TestFileLogging(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Level:   LevelDebug,
		LogDir:  dir,
		Service: "signal",
		Quiet:   true,
	})
	defer logger.Close()

	logger.Info("collection cycle started", "cycle_id", "abc123")
	logger.Debug("detail line")
	require.NoError(t, logger.Close())

	name := "signal_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	// File entries are JSON with the service attribute attached.
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "collection cycle started", entry["msg"])
	assert.Equal(t, "signal", entry["service"])
	assert.Equal(t, "abc123", entry["cycle_id"])
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Level:  LevelWarn,
		LogDir: dir,
		Quiet:  true,
	})
	defer logger.Close()

	logger.Info("dropped")
	logger.Warn("kept")
	require.NoError(t, logger.Close())

	name := "meridian_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)

	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), "kept")
}

func TestQuietWithoutFileDiscards(t *testing.T) {
	logger := New(Config{Quiet: true})
	defer logger.Close()

	// Must not panic with no destinations.
	logger.Error("nowhere to go")
	assert.False(t, logger.Slog().Enabled(nil, slog.LevelError)) //nolint:staticcheck
}

func TestBadLogDirDegradesToStderr(t *testing.T) {
	logger := New(Config{LogDir: "/proc/definitely/not/writable"})
	defer logger.Close()

	// Construction still succeeds and logging doesn't panic.
	logger.Info("still alive")
}

func TestWithAttachesAttributes(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{LogDir: dir, Service: "signal", Quiet: true})
	defer logger.Close()

	child := logger.With(slog.String("component", "orchestrator"))
	child.Info("wired")
	require.NoError(t, logger.Close())

	name := "signal_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"orchestrator"`)
}
