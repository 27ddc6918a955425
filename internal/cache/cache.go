// Package cache remembers which files were already clean so batch runs can
// skip them. A clean run echoes its input byte for byte, so an unchanged
// file under an unchanged format spec needs no reprocessing.
package cache

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/varalys/blockscrub/internal/types"
)

// FileName is the cache file written in the batch root.
const FileName = ".blockscrubcache.json"

// Entry records the last clean run of one file.
type Entry struct {
	Digest string `json:"digest"` // xxhash of the file contents
	Spec   string `json:"spec"`   // SpecDigest of the format used
}

// DB maps files to their last clean run. Keys are absolute paths with
// forward slashes, so one cache file serves every argument of a run.
type DB struct {
	mu      sync.Mutex
	Entries map[string]Entry `json:"entries"`
}

func defaultPath(root string) string {
	return filepath.Join(root, FileName)
}

// Load reads the cache from root. A missing or corrupt file yields an empty
// DB together with the error.
func Load(root string) (*DB, error) {
	db := &DB{Entries: map[string]Entry{}}
	f, err := os.ReadFile(defaultPath(root))
	if err != nil {
		return db, err
	}
	if err := json.Unmarshal(f, db); err != nil {
		return &DB{Entries: map[string]Entry{}}, err
	}
	if db.Entries == nil {
		db.Entries = map[string]Entry{}
	}
	return db, nil
}

// Save writes db to root.
func Save(root string, db *DB) error {
	if db == nil || db.Entries == nil {
		return errors.New("empty cache")
	}
	db.mu.Lock()
	b, err := json.MarshalIndent(db, "", "  ")
	db.mu.Unlock()
	if err != nil {
		return err
	}
	return os.WriteFile(defaultPath(root), b, 0644)
}

// Clean reports whether path was clean last time with the same contents
// and format.
func (db *DB) Clean(path, digest, spec string) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	e, ok := db.Entries[path]
	return ok && e.Digest == digest && e.Spec == spec
}

// Record stores the outcome of a run. Only clean runs are remembered.
func (db *DB) Record(path, digest, spec string, clean bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if clean {
		db.Entries[path] = Entry{Digest: digest, Spec: spec}
	} else {
		delete(db.Entries, path)
	}
}

// Digest hashes everything r yields.
func Digest(r io.Reader) (string, error) {
	h := xxhash.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DigestFile hashes the file at path.
func DigestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	return Digest(f)
}

// SpecDigest fingerprints every field of spec that affects output.
func SpecDigest(spec types.FormatSpec) string {
	h := xxhash.New()
	for _, part := range [][]byte{
		[]byte(spec.Extension),
		spec.Prefix,
		spec.Suffix,
		[]byte(spec.BlockPattern),
		spec.Replacement,
		[]byte(strconv.Itoa(spec.MaxBlockBytes)),
		[]byte(spec.Processor),
	} {
		_, _ = fmt.Fprintf(h, "%d:", len(part))
		_, _ = h.Write(part)
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
