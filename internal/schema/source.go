package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/asksql/asksql/internal/observability"
)

type Extractor interface {
	Introspect(ctx context.Context) (Metadata, error)
}

// Source holds the current metadata for the process and keeps the side file
// in sync. Writer and reader always use the same path.
type Source struct {
	extractor Extractor
	path      string
	logger    *slog.Logger

	mu      sync.RWMutex
	current Metadata
}

func NewSource(extractor Extractor, path string, logger *slog.Logger) *Source {
	if logger == nil {
		logger = observability.DiscardLogger()
	}
	return &Source{extractor: extractor, path: path, logger: logger}
}

// Init loads the side file, introspecting only when it is missing or when
// refresh is requested.
func (s *Source) Init(ctx context.Context, refresh bool) (Metadata, error) {
	if !refresh && s.path != "" {
		metadata, err := Load(s.path)
		switch {
		case err == nil && !metadata.Empty():
			s.set(metadata)
			s.logger.Info("schema metadata loaded", slog.String("path", s.path), slog.Int("tables", len(metadata.Tables)))
			return metadata, nil
		case err != nil && !errors.Is(err, ErrNotFound):
			s.logger.Warn("schema metadata unreadable, re-introspecting", slog.String("path", s.path), slog.Any("error", err))
		}
	}
	return s.Refresh(ctx)
}

// Refresh re-runs introspection and rewrites the side file.
func (s *Source) Refresh(ctx context.Context) (Metadata, error) {
	if s.extractor == nil {
		return Metadata{}, fmt.Errorf("schema extractor is required")
	}
	metadata, err := s.extractor.Introspect(ctx)
	if err != nil {
		return Metadata{}, fmt.Errorf("introspect schema: %w", err)
	}
	if s.path != "" {
		if err := Save(s.path, metadata); err != nil {
			return Metadata{}, err
		}
	}
	s.set(metadata)
	return metadata, nil
}

func (s *Source) Current() Metadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Source) set(metadata Metadata) {
	s.mu.Lock()
	s.current = metadata
	s.mu.Unlock()
}
