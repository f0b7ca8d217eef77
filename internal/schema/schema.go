// Package schema extracts, persists and renders table metadata used as
// prompt context for SQL generation.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var ErrNotFound = errors.New("schema metadata not found")

type Column struct {
	Name        string   `json:"name"`
	DataType    string   `json:"data_type"`
	Nullable    bool     `json:"nullable"`
	Description string   `json:"description,omitempty"`
	KnownValues []string `json:"known_values,omitempty"`
}

type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

type Metadata struct {
	Dialect     string    `json:"dialect"`
	Schema      string    `json:"schema"`
	GeneratedAt time.Time `json:"generated_at"`
	Tables      []Table   `json:"tables"`
}

func (m Metadata) Empty() bool {
	return len(m.Tables) == 0
}

func (m Metadata) Table(name string) (Table, bool) {
	for _, table := range m.Tables {
		if strings.EqualFold(table.Name, name) {
			return table, true
		}
	}
	return Table{}, false
}

// Render produces the compact plain-text schema listing embedded in prompts.
func (m Metadata) Render() string {
	var b strings.Builder
	for i, table := range m.Tables {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "Table: %s\n", table.Name)
		for _, column := range table.Columns {
			fmt.Fprintf(&b, "  - %s (%s)", column.Name, column.DataType)
			if column.Description != "" {
				fmt.Fprintf(&b, ": %s", column.Description)
			}
			if len(column.KnownValues) > 0 {
				fmt.Fprintf(&b, " [known values: %s]", strings.Join(column.KnownValues, ", "))
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Save writes metadata as indented JSON through a temp file and rename.
func Save(path string, metadata Metadata) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("schema file path is required")
	}
	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema metadata: %w", err)
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".schema-*.json")
	if err != nil {
		return fmt.Errorf("create temp schema file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write schema metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close schema metadata: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace schema file: %w", err)
	}
	return nil
}

// Load reads metadata written by Save. A missing file yields ErrNotFound.
func Load(path string) (Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Metadata{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return Metadata{}, fmt.Errorf("read schema file: %w", err)
	}
	var metadata Metadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("decode schema file %s: %w", path, err)
	}
	return metadata, nil
}
