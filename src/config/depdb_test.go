package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepdbWriteThenReadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foo.o.d")

	d := New()
	d.Append(HashStanza([]byte{1, 2, 3, 4}))
	d.Append(StringStanza("-DFOO=1"))
	d.Append(EnvHashStanza([]byte{5, 6, 7, 8}))

	require.NoError(t, Write(path, d))

	got, ok, err := Read(path)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got.Stanzas, 4)
	assert.Equal(t, KindVersion, got.Stanzas[0].Kind)
	assert.Equal(t, CurrentVersion, got.Stanzas[0].Data[0])
	assert.Equal(t, KindHash, got.Stanzas[1].Kind)
	assert.Equal(t, []byte{1, 2, 3, 4}, got.Stanzas[1].Data)
	assert.Equal(t, KindString, got.Stanzas[2].Kind)
	assert.Equal(t, "-DFOO=1", string(got.Stanzas[2].Data))
	assert.Equal(t, KindEnvHash, got.Stanzas[3].Kind)
}

func TestDepdbReadMissingFileIsNotFoundNotError(t *testing.T) {
	got, ok, err := Read(filepath.Join(t.TempDir(), "missing.d"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestDepdbReadCorruptFileErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.d")
	require.NoError(t, os.WriteFile(path, []byte("not a gob stream"), 0o644))

	_, _, err := Read(path)
	assert.Error(t, err)
}

func TestDepdbInterruptedWhenMissing(t *testing.T) {
	stale, err := Interrupted(filepath.Join(t.TempDir(), "missing.d"), time.Now())
	require.NoError(t, err)
	assert.True(t, stale)
}

func TestDepdbInterruptedWhenOlderThanOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foo.o.d")
	require.NoError(t, Write(path, New()))

	future := time.Now().Add(time.Hour)
	stale, err := Interrupted(path, future)
	require.NoError(t, err)
	assert.True(t, stale, "a depdb written before the output's update started signals a crashed write")
}

func TestDepdbNotInterruptedWhenNewerThanOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foo.o.d")
	require.NoError(t, Write(path, New()))

	past := time.Now().Add(-time.Hour)
	stale, err := Interrupted(path, past)
	require.NoError(t, err)
	assert.False(t, stale)
}

func TestDepdbWriteLeavesNoTempFileBehind(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foo.o.d")
	require.NoError(t, Write(path, New()))

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}
