package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"flat-aggregator/models"
)

// CanonicalStore reads and writes the merged dataset document.
type CanonicalStore struct {
	path string
}

// NewCanonicalStore returns a store for the dataset file at path.
func NewCanonicalStore(path string) *CanonicalStore {
	return &CanonicalStore{path: path}
}

// Path returns the dataset file location.
func (s *CanonicalStore) Path() string { return s.path }

// Save replaces the dataset file. The new document is written to a
// temporary file first, so a failed write leaves the old dataset intact.
func (s *CanonicalStore) Save(listings []*models.Listing) error {
	if listings == nil {
		listings = []*models.Listing{}
	}
	if err := writeJSONAtomic(s.path, listings); err != nil {
		return fmt.Errorf("canonical: %w", err)
	}
	return nil
}

// Load reads the dataset. A missing file is an empty dataset.
func (s *CanonicalStore) Load() ([]*models.Listing, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("canonical: read %q: %w", s.path, err)
	}

	var listings []*models.Listing
	if err := json.Unmarshal(data, &listings); err != nil {
		return nil, fmt.Errorf("canonical: decode %q: %w", s.path, err)
	}
	return listings, nil
}

func writeJSONAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create dir %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode %q: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %q: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %q: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %q: %w", path, err)
	}
	return nil
}
