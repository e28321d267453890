package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFileMissingReturnsDefaults(t *testing.T) {
	cfg, err := ReadFile(filepath.Join(t.TempDir(), "nope", "config.build"))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Build.Parallelism)
	assert.False(t, cfg.Build.DryRun)
	assert.NotNil(t, cfg.Variable)
}

func TestWriteFileThenReadFileRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", FileName)

	cfg := NewConfiguration()
	cfg.Build.Parallelism = 8
	cfg.Build.DryRun = true
	cfg.Build.KeepGoing = true
	cfg.Variable["cxx.std"] = "c++20"
	cfg.Variable["with spaces"] = "value with spaces"

	require.NoError(t, WriteFile(path, cfg))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 8, got.Build.Parallelism)
	assert.True(t, got.Build.DryRun)
	assert.True(t, got.Build.KeepGoing)
	assert.Equal(t, "c++20", got.Variable["cxx.std"])
	assert.Equal(t, "value with spaces", got.Variable["with spaces"])
}

func TestWriteFileOmitsVariableSectionWhenEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, WriteFile(path, NewConfiguration()))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, got.Variable)
}

func TestWriteFileLeavesPreviousFileIntactOnRewrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	first := NewConfiguration()
	first.Build.Parallelism = 1
	require.NoError(t, WriteFile(path, first))

	second := NewConfiguration()
	second.Build.Parallelism = 2
	require.NoError(t, WriteFile(path, second))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Build.Parallelism)

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, matches, "no leftover temp file after a successful write")
}
