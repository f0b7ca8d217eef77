package schema

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

type countingExtractor struct {
	metadata Metadata
	err      error
	calls    int
}

func (c *countingExtractor) Introspect(context.Context) (Metadata, error) {
	c.calls++
	return c.metadata, c.err
}

func TestSourceInitPrefersExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema_metadata.json")
	if err := Save(path, sampleMetadata()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	extractor := &countingExtractor{}
	source := NewSource(extractor, path, nil)

	metadata, err := source.Init(context.Background(), false)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if extractor.calls != 0 {
		t.Fatalf("extractor calls = %d, want 0", extractor.calls)
	}
	if len(metadata.Tables) != 2 || len(source.Current().Tables) != 2 {
		t.Fatalf("metadata = %+v", metadata)
	}
}

func TestSourceInitIntrospectsAndWritesSameFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema_metadata.json")
	extractor := &countingExtractor{metadata: sampleMetadata()}
	source := NewSource(extractor, path, nil)

	if _, err := source.Init(context.Background(), false); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if extractor.calls != 1 {
		t.Fatalf("extractor calls = %d, want 1", extractor.calls)
	}
	saved, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if saved.Render() != sampleMetadata().Render() {
		t.Fatalf("saved metadata = %+v", saved)
	}

	if _, err := source.Init(context.Background(), true); err != nil {
		t.Fatalf("Init(refresh) error = %v", err)
	}
	if extractor.calls != 2 {
		t.Fatalf("extractor calls = %d, want 2", extractor.calls)
	}
}

func TestSourceRefreshKeepsPreviousMetadataOnFailure(t *testing.T) {
	extractor := &countingExtractor{metadata: sampleMetadata()}
	source := NewSource(extractor, "", nil)
	if _, err := source.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	extractor.err = errors.New("db down")
	if _, err := source.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
	if len(source.Current().Tables) != 2 {
		t.Fatalf("Current() = %+v", source.Current())
	}
}
