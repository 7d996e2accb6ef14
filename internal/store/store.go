// Package store persists per-application discovery state as a single JSON
// document with atomic whole-file replacement.
//
// The store assumes single-writer access per file: in-process callers are
// serialized by an internal mutex, but concurrent writers in separate
// processes must coordinate externally (see Lock for the advisory lock the
// CLI takes around multi-application runs).
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/RogerCibrian/notapkgtool-sub000/internal/logging"
	"github.com/RogerCibrian/notapkgtool-sub000/internal/version"
)

// SchemaVersion tags the on-disk document layout. A mismatch triggers the
// same quarantine-and-reset path as a parse failure: this pre-stable format
// favors a clean reset over migration logic.
const SchemaVersion = "2"

// BackupSuffix is appended to a corrupt store file when it is quarantined.
const BackupSuffix = ".backup"

// Record is the durable per-application state: last known version, where the
// artifact lives, its digest, and the transport validators for conditional
// refetching.
type Record struct {
	// ApplicationID is the record key. It is carried on the struct for
	// callers but persisted as the map key, not a field.
	ApplicationID    string            `json:"-"`
	KnownVersion     *version.Record   `json:"known_version,omitempty"`
	Validators       map[string]string `json:"validators,omitempty"`
	ResolvedFilePath string            `json:"resolved_file_path,omitempty"`
	ContentHash      string            `json:"content_hash,omitempty"`
	LastCheckedAt    time.Time         `json:"last_checked_at"`
	LastChangedAt    time.Time         `json:"last_changed_at"`
}

// Clone returns a deep copy so callers can read-modify-write without
// mutating store state in place.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.KnownVersion != nil {
		kv := *r.KnownVersion
		out.KnownVersion = &kv
	}
	if r.Validators != nil {
		out.Validators = make(map[string]string, len(r.Validators))
		for k, v := range r.Validators {
			out.Validators[k] = v
		}
	}
	return &out
}

// document is the persisted JSON shape.
type document struct {
	SchemaVersion string             `json:"schema_version"`
	Records       map[string]*Record `json:"records"`
}

// Store holds the record collection for one store file.
type Store struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	records map[string]*Record
}

// Load reads the store file at path. A missing file yields an empty store.
// A structurally invalid file (bad JSON, invalid records, or a mismatched
// schema version) is quarantined to a sibling .backup path and replaced with
// a fresh empty store; corruption is a logged warning, never a fatal error.
func Load(path string) (*Store, error) {
	s := &Store{
		path:    path,
		logger:  logging.New("store"),
		records: make(map[string]*Record),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read store file: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		if qerr := s.quarantine(err); qerr != nil {
			return nil, qerr
		}
		return s, nil
	}

	if doc.SchemaVersion != SchemaVersion {
		cause := fmt.Errorf("schema version %q, want %q", doc.SchemaVersion, SchemaVersion)
		if qerr := s.quarantine(cause); qerr != nil {
			return nil, qerr
		}
		return s, nil
	}

	for id, rec := range doc.Records {
		if rec == nil || id == "" {
			continue
		}
		rec.ApplicationID = id
		s.records[id] = rec
	}

	return s, nil
}

// quarantine moves the bad store file aside, overwriting any prior backup.
func (s *Store) quarantine(cause error) error {
	backupPath := s.path + BackupSuffix
	if err := os.Rename(s.path, backupPath); err != nil {
		return fmt.Errorf("quarantine corrupt store: %w", err)
	}
	s.logger.Warn("store file is invalid; quarantined and reset",
		"path", s.path, "backup", backupPath, "cause", cause.Error())
	return nil
}

// Get returns a copy of the record for applicationID, or false if absent.
func (s *Store) Get(applicationID string) (*Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[applicationID]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Put upserts the record keyed by its ApplicationID. The full record is
// replaced with no field merging, so callers must read-modify-write.
func (s *Store) Put(rec *Record) error {
	if rec == nil {
		return fmt.Errorf("store: record is nil")
	}
	if rec.ApplicationID == "" {
		return fmt.Errorf("store: record has no application id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ApplicationID] = rec.Clone()
	return nil
}

// All returns copies of every record, ordered by application id.
func (s *Store) All() []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ApplicationID < out[j].ApplicationID
	})
	return out
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Path returns the store file location.
func (s *Store) Path() string {
	return s.path
}

// Flush serializes the full store to a temporary file in the same directory,
// renames it over the destination, then syncs the directory. A reader never
// observes a half-written store.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	doc := document{SchemaVersion: SchemaVersion, Records: s.records}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}
	data = append(data, '\n')

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write temporary store file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath) // Clean up temp file on error
		return fmt.Errorf("rename store file: %w", err)
	}

	// Sync directory for durability
	df, err := os.Open(dir)
	if err == nil {
		if syncErr := df.Sync(); syncErr != nil {
			df.Close()
			return fmt.Errorf("sync store directory: %w", syncErr)
		}
		df.Close()
	}

	return nil
}
