// Package cache persists the last successful observation per site to disk.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/airpulse/airpulse/internal/airquality"
)

// Version is the cache file schema version. Files carrying any other
// version are treated as corrupt; there is no migration.
const Version = 1

// Cache errors.
var (
	ErrNoCache     = errors.New("no cache file")
	ErrCorruptData = errors.New("cache file corrupt")
	ErrEmptyRecord = errors.New("record has no last updated timestamp")
)

// Record is the persisted form of one site's last known observation plus
// fetch-attempt bookkeeping.
type Record struct {
	Version     int                    `json:"version"`
	SiteID      string                 `json:"site_id"`
	Observation airquality.Observation `json:"observation"`
	LastUpdated time.Time              `json:"last_updated"`
	LastAttempt time.Time              `json:"last_attempt"`
}

// Store reads and writes one site's cache file. All writers of a file
// must share the same Store so saves cannot interleave.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a store for the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the cache file path.
func (s *Store) Path() string {
	return s.path
}

// Save persists the record. It refuses records whose LastUpdated is the
// epoch-zero sentinel, so an empty bootstrap record can never overwrite
// good cached data. The record is serialized fully in memory and written
// to a temp file that is renamed into place, so a kill mid-write never
// leaves a truncated file.
func (s *Store) Save(rec Record) error {
	if isEpochZero(rec.LastUpdated) {
		return ErrEmptyRecord
	}
	rec.Version = Version

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".cache-*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close cache file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}

// Load reads the cache file. It returns ErrNoCache when no file exists
// yet and ErrCorruptData when the file cannot be parsed or carries an
// unrecognized schema version.
func (s *Store) Load() (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, fmt.Errorf("%w: %s", ErrNoCache, s.path)
		}
		return Record{}, fmt.Errorf("read cache file: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	if rec.Version != Version {
		return Record{}, fmt.Errorf("%w: unrecognized schema version %d", ErrCorruptData, rec.Version)
	}
	return rec, nil
}

// isEpochZero reports whether t is one of the empty-record sentinels:
// the zero time or the Unix epoch.
func isEpochZero(t time.Time) bool {
	return t.IsZero() || t.Unix() == 0
}
