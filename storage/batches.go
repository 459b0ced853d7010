package storage

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"flat-aggregator/models"
)

//go:embed schema/batch.schema.json
var schemaFS embed.FS

const batchSchemaURL = "batch.schema.json"

// ErrNotArray is returned for a batch document whose top level is not an array.
var ErrNotArray = errors.New("batch is not a JSON array")

// Batch is one source document and the listings decoded from it.
type Batch struct {
	Path     string
	Listings []*models.Listing
}

// BatchReader discovers and decodes per-source batch files in a directory.
type BatchReader struct {
	dir     string
	exclude string
	schema  *jsonschema.Schema
}

// NewBatchReader returns a reader over every *.json file in dir except the
// file named exclude (the canonical dataset lives next to the batches).
func NewBatchReader(dir, exclude string) (*BatchReader, error) {
	schema, err := compileBatchSchema()
	if err != nil {
		return nil, err
	}
	return &BatchReader{dir: dir, exclude: exclude, schema: schema}, nil
}

func compileBatchSchema() (*jsonschema.Schema, error) {
	f, err := schemaFS.Open("schema/batch.schema.json")
	if err != nil {
		return nil, fmt.Errorf("batches: open schema: %w", err)
	}
	defer f.Close()

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(batchSchemaURL, f); err != nil {
		return nil, fmt.Errorf("batches: add schema: %w", err)
	}
	schema, err := compiler.Compile(batchSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("batches: compile schema: %w", err)
	}
	return schema, nil
}

// List returns the batch file paths in lexical order, which is the order
// their records are merged in.
func (r *BatchReader) List() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(r.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("batches: glob %q: %w", r.dir, err)
	}
	paths := matches[:0]
	for _, p := range matches {
		if filepath.Base(p) == r.exclude {
			continue
		}
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

// Read loads and validates a single batch file.
func (r *BatchReader) Read(path string) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("batches: read %q: %w", path, err)
	}
	listings, err := r.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("batches: %q: %w", path, err)
	}
	return &Batch{Path: path, Listings: listings}, nil
}

// Decode validates a batch document against the batch schema and decodes
// its records.
func (r *BatchReader) Decode(data []byte) ([]*models.Listing, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrNotArray
	}

	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := r.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	var listings []*models.Listing
	if err := json.Unmarshal(trimmed, &listings); err != nil {
		return nil, fmt.Errorf("decode listings: %w", err)
	}
	return listings, nil
}

// WriteBatch writes listings as the batch file <name>.json in dir.
func WriteBatch(dir, name string, listings []*models.Listing) (string, error) {
	if strings.ContainsAny(name, `/\`) || name == "" {
		return "", fmt.Errorf("batches: invalid batch name %q", name)
	}
	path := filepath.Join(dir, name+".json")
	if err := writeJSONAtomic(path, listings); err != nil {
		return "", fmt.Errorf("batches: %w", err)
	}
	return path, nil
}

// DeleteBatches removes consumed batch files. It keeps going past failures
// and reports how many files were removed.
func DeleteBatches(paths []string) (int, []error) {
	var errs []error
	deleted := 0
	for _, p := range paths {
		if err := os.Remove(p); err != nil {
			errs = append(errs, fmt.Errorf("batches: delete %q: %w", p, err))
			continue
		}
		deleted++
	}
	return deleted, errs
}
