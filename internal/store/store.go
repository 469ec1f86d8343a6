package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"

	"github.com/wardend/warden/internal/record"
)

// SchemaVersion is written into every state file. Load refuses files whose
// version falls outside the supported constraint so a newer on-disk format is
// reported instead of silently misread.
const SchemaVersion = "1.0.0"

var supportedSchema = mustConstraint("^1")

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// document is the on-disk shape of the state file.
type document struct {
	Version   string                           `json:"version"`
	Processes map[string]*record.ProcessRecord `json:"processes"`
}

// FileStore persists the full process record set in a single JSON file.
// Saves are atomic (write temp, rename). It performs no cross-process
// locking: a CLI command racing the watch daemon is last-writer-wins, and
// callers must treat each read-modify-Save span as the unit of mutation.
type FileStore struct {
	path string
}

// New returns a store backed by the given file path.
func New(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Load reads the full record set. A missing state file yields an empty set.
func (s *FileStore) Load() (map[string]*record.ProcessRecord, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]*record.ProcessRecord{}, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse state file %s: %w", s.path, err)
	}
	if doc.Version != "" {
		v, err := semver.NewVersion(doc.Version)
		if err != nil {
			return nil, fmt.Errorf("state file %s: bad schema version %q: %w", s.path, doc.Version, err)
		}
		if !supportedSchema.Check(v) {
			return nil, fmt.Errorf("state file %s: schema version %s not supported (want %s)", s.path, doc.Version, supportedSchema)
		}
	}
	if doc.Processes == nil {
		doc.Processes = map[string]*record.ProcessRecord{}
	}
	for name, rec := range doc.Processes {
		if rec.Name == "" {
			rec.Name = name
		}
	}
	return doc.Processes, nil
}

// Save persists the full record set, replacing the state file atomically so
// a crash mid-save cannot leave a corrupt file behind.
func (s *FileStore) Save(records map[string]*record.ProcessRecord) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	doc := document{Version: SchemaVersion, Processes: records}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Mutate runs fn over a freshly loaded record set and saves the result.
// It is the read-modify-persist helper every engine operation goes through.
func (s *FileStore) Mutate(fn func(records map[string]*record.ProcessRecord) error) error {
	records, err := s.Load()
	if err != nil {
		return err
	}
	if err := fn(records); err != nil {
		return err
	}
	return s.Save(records)
}
