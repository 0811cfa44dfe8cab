package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Store persists catalog records.
type Store interface {
	// Load returns the stored records. A missing store yields no records and no error.
	Load() ([]CityRecord, error)

	// Save replaces the stored records.
	Save(records []CityRecord) error
}

// FileStore keeps the catalog as a single indented JSON array on disk.
type FileStore struct {
	path string
}

// NewFileStore creates a FileStore for the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file backing the store.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the catalog file. Content that is not a JSON array of records
// yields ErrCorruptStore.
func (s *FileStore) Load() ([]CityRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var records []CityRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptStore, s.path, err)
	}
	return records, nil
}

// Save writes the records to a temp file next to the catalog and renames it
// into place, so readers never observe a partially written file.
func (s *FileStore) Save(records []CityRecord) error {
	if records == nil {
		records = []CityRecord{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp catalog: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp catalog: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod temp catalog: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp catalog: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace catalog: %w", err)
	}
	return nil
}
