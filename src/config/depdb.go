package config

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// StanzaKind tags one depdb record. The core treats every kind as opaque
// payload bytes (spec.md §6: "Depdb records are opaque to the core"); rules
// decide what a hash, string, or environment stanza actually means for
// their own staleness checks.
type StanzaKind byte

const (
	KindVersion StanzaKind = iota
	KindHash
	KindString
	KindEnvHash
)

func (k StanzaKind) String() string {
	switch k {
	case KindVersion:
		return "version"
	case KindHash:
		return "hash"
	case KindString:
		return "string"
	case KindEnvHash:
		return "envhash"
	default:
		return "unknown"
	}
}

// Stanza is one depdb record: a kind tag plus its payload. A version
// stanza's payload is a small integer encoded as a single byte; everything
// else carries whatever bytes the writer chose (a sha1 sum for Hash/EnvHash,
// a literal path or command line for String).
type Stanza struct {
	Kind StanzaKind
	Data []byte
}

// HashStanza wraps a hash sum as a Stanza.
func HashStanza(sum []byte) Stanza { return Stanza{Kind: KindHash, Data: sum} }

// StringStanza wraps a literal string as a Stanza.
func StringStanza(s string) Stanza { return Stanza{Kind: KindString, Data: []byte(s)} }

// EnvHashStanza wraps an environment-checksum as a Stanza.
func EnvHashStanza(sum []byte) Stanza { return Stanza{Kind: KindEnvHash, Data: sum} }

// versionStanza is always the first record of a well-formed depdb file.
func versionStanza(v byte) Stanza { return Stanza{Kind: KindVersion, Data: []byte{v}} }

// CurrentVersion is written as the depdb's leading version stanza; bumped
// whenever the Stanza encoding itself changes shape.
const CurrentVersion byte = 1

// DB is one target's depdb file: an ordered list of stanzas recording the
// inputs (hashes, environment, recipe command lines) its last successful
// update observed, used on the next build to decide whether anything
// relevant has changed.
type DB struct {
	Stanzas []Stanza
}

// New returns an empty depdb with just the leading version stanza.
func New() *DB {
	return &DB{Stanzas: []Stanza{versionStanza(CurrentVersion)}}
}

// Append adds s to the db in memory; call Write to persist.
func (d *DB) Append(s Stanza) { d.Stanzas = append(d.Stanzas, s) }

// Write persists d to path via a temp-file-then-rename, so a crash mid-write
// never leaves a partially-written depdb in place -- the rename either
// completes, leaving a fresh file whose mtime is at least the update's start
// time, or doesn't happen at all, leaving the previous (older) depdb, which
// per spec.md §6 is exactly the signal that forces a rebuild. Grounded on
// please's encoding/gob-based config hashing (ContainerisationHash) for the
// wire format, and its WriteFile utility for the atomic-rename discipline.
func Write(path string, d *DB) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(d); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// Read loads the depdb at path. A missing file is reported as (nil, false,
// nil) rather than an error, the state a target that has never been built
// is expected to be in.
func Read(path string) (*DB, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	var d DB
	if err := gob.NewDecoder(f).Decode(&d); err != nil {
		return nil, false, fmt.Errorf("depdb %s is corrupt: %w", path, err)
	}
	if len(d.Stanzas) == 0 || d.Stanzas[0].Kind != KindVersion {
		return nil, false, fmt.Errorf("depdb %s: missing version stanza", path)
	}
	return &d, true, nil
}

// Interrupted reports whether the depdb at path is older than since, the
// "interrupted update" signal spec.md §6 describes: a depdb left behind by
// a crash mid-update predates the output it was meant to describe, so the
// target must be rebuilt rather than trusted.
func Interrupted(path string, since time.Time) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, err
	}
	return info.ModTime().Before(since), nil
}
