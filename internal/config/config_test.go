package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
source_root: /recordings
destination_root: /archive
check_interval: 5s
stable_time: 90
extensions: [".MP4", "wav", " "]
exclude_patterns: ["*.tmp", ""]
min_size: 1024
collision_mode: Skip
verify_copies: false
retry_count: 4
retry_delay: 1.5
recursive: true
mirror_subdirectories: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/recordings", cfg.SourceRoot)
	assert.Equal(t, "/archive", cfg.DestinationRoot)
	assert.Equal(t, 5*time.Second, cfg.CheckInterval)
	assert.Equal(t, 90*time.Second, cfg.StableTime)
	assert.Equal(t, []string{"mp4", "wav"}, cfg.Extensions)
	assert.Equal(t, []string{"*.tmp"}, cfg.ExcludePatterns)
	assert.Equal(t, int64(1024), cfg.MinSize)
	assert.Equal(t, "skip", cfg.CollisionMode)
	assert.False(t, cfg.VerifyCopies)
	assert.Equal(t, 4, cfg.RetryCount)
	assert.Equal(t, 5, cfg.MaxAttempts())
	assert.Equal(t, 1500*time.Millisecond, cfg.RetryDelay)
	assert.True(t, cfg.Recursive)
	assert.True(t, cfg.MirrorSubdirs)

	// untouched keys keep their defaults
	assert.Equal(t, DefaultRenamePattern, cfg.RenamePattern)
	assert.Equal(t, Default.Workers, cfg.Workers)
	assert.Equal(t, Default.ShutdownGrace, cfg.ShutdownGrace)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "source_root: /from-file\nstable_time: 30s\n")

	t.Setenv("STREAMWATCH_SOURCE_ROOT", "/from-env")
	t.Setenv("STREAMWATCH_STABLE_TIME", "120")
	t.Setenv("STREAMWATCH_EXTENSIONS", "flac,MP3")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/from-env", cfg.SourceRoot)
	assert.Equal(t, 2*time.Minute, cfg.StableTime)
	assert.Equal(t, []string{"flac", "mp3"}, cfg.Extensions)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("USERPROFILE", os.Getenv("HOME"))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, Default.CheckInterval, cfg.CheckInterval)
	assert.Equal(t, Default.StableTime, cfg.StableTime)
	assert.Equal(t, "rename", cfg.CollisionMode)
	assert.True(t, cfg.VerifyCopies)
	assert.Equal(t, Default.ExcludePatterns, cfg.ExcludePatterns)
}

func TestNormalize(t *testing.T) {
	cfg := Config{
		CheckInterval: 10 * time.Millisecond,
		MinSize:       -5,
		MaxSize:       -1,
		RetryCount:    -3,
		RetryDelay:    -time.Second,
		Workers:       0,
		CollisionMode: " OVERWRITE ",
		RenamePattern: "  ",
	}
	cfg.Normalize()

	assert.Equal(t, time.Second, cfg.CheckInterval)
	assert.Zero(t, cfg.MinSize)
	assert.Zero(t, cfg.MaxSize)
	assert.Zero(t, cfg.RetryCount)
	assert.Zero(t, cfg.RetryDelay)
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, 1, cfg.QueueSize)
	assert.Equal(t, "overwrite", cfg.CollisionMode)
	assert.Equal(t, DefaultRenamePattern, cfg.RenamePattern)
	assert.Equal(t, Default.HistoryLimit, cfg.HistoryLimit)
}

func TestValidate(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	file := filepath.Join(src, "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	valid := func() Config {
		c := Default
		c.SourceRoot, c.DestinationRoot = src, dst
		return c
	}

	c := valid()
	assert.NoError(t, c.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing roots", func(c *Config) { c.SourceRoot = "" }},
		{"source does not exist", func(c *Config) { c.SourceRoot = filepath.Join(src, "missing") }},
		{"destination is a file", func(c *Config) { c.DestinationRoot = file }},
		{"unknown mode", func(c *Config) { c.CollisionMode = "merge" }},
		{"min above max", func(c *Config) { c.MinSize, c.MaxSize = 10, 5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalid)
		})
	}
}

func TestDBFile(t *testing.T) {
	c := Config{DBPath: "/var/lib/streamwatch.db"}
	path, err := c.DBFile()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/streamwatch.db", path)

	c.DBPath = "history.db"
	path, err = c.DBFile()
	require.NoError(t, err)
	assert.Equal(t, "history.db", filepath.Base(path))
	assert.True(t, filepath.IsAbs(path))
}
