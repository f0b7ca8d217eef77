// Package archive exports conversation memory to Parquet files in object storage.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/asksql/asksql/internal/memory"
	"github.com/asksql/asksql/internal/observability"
	"github.com/asksql/asksql/internal/storage"
)

const (
	DefaultPrefix = "history"
	ContentType   = "application/vnd.apache.parquet"
)

var (
	ErrNothingToArchive = errors.New("no conversation entries to archive")
	ErrInvalidKey       = errors.New("not an archive key")
)

type EntrySource interface {
	Entries() []memory.Entry
}

type Archiver struct {
	Source      EntrySource
	ObjectStore storage.ObjectStore
	Prefix      string
	Logger      *slog.Logger
	Clock       func() time.Time
}

type Options struct {
	// Since keeps only entries created at or after it. Zero keeps all.
	Since time.Time
}

type Result struct {
	Key          string     `json:"key"`
	Entries      int64      `json:"entries"`
	SizeBytes    int64      `json:"size_bytes"`
	ETag         string     `json:"etag,omitempty"`
	MinCreatedAt *time.Time `json:"min_created_at,omitempty"`
	MaxCreatedAt *time.Time `json:"max_created_at,omitempty"`
}

// Archive writes a snapshot of the selected entries as one Parquet object.
// The cache itself is left untouched.
func (a *Archiver) Archive(ctx context.Context, opts Options) (Result, error) {
	if a.Source == nil || a.ObjectStore == nil {
		return Result{}, fmt.Errorf("archive source and object store are required")
	}
	logger := observability.LoggerWithTrace(ctx, a.Logger)

	entries := a.Source.Entries()
	if !opts.Since.IsZero() {
		var kept []memory.Entry
		for _, entry := range entries {
			if !entry.CreatedAt.Before(opts.Since) {
				kept = append(kept, entry)
			}
		}
		entries = kept
	}
	if len(entries) == 0 {
		return Result{}, ErrNothingToArchive
	}

	encoded, err := EncodeEntries(entries)
	if err != nil {
		return Result{}, fmt.Errorf("encode entries to parquet: %w", err)
	}

	key, err := storage.BuildArchivePath(a.prefix(), a.now(), uuid.NewString())
	if err != nil {
		return Result{}, fmt.Errorf("build archive path: %w", err)
	}
	put, err := a.ObjectStore.Put(ctx, key, bytes.NewReader(encoded.Data), int64(len(encoded.Data)), storage.PutOptions{
		ContentType: ContentType,
		Metadata:    map[string]string{"entries": strconv.FormatInt(encoded.RecordCount, 10)},
	})
	if err != nil {
		return Result{}, fmt.Errorf("put parquet object: %w", err)
	}
	info, err := a.ObjectStore.Stat(ctx, put.Key)
	if err != nil {
		return Result{}, fmt.Errorf("confirm parquet object %s: %w", put.Key, err)
	}
	if info.Size != int64(len(encoded.Data)) {
		return Result{}, fmt.Errorf("confirm parquet object %s: stored %d bytes, wrote %d", put.Key, info.Size, len(encoded.Data))
	}

	logger.InfoContext(ctx, "conversation history archived",
		slog.String("key", info.Key),
		slog.Int64("entries", encoded.RecordCount),
		slog.Int64("size_bytes", info.Size),
	)
	return Result{
		Key:          info.Key,
		Entries:      encoded.RecordCount,
		SizeBytes:    info.Size,
		ETag:         info.ETag,
		MinCreatedAt: encoded.MinCreatedAt,
		MaxCreatedAt: encoded.MaxCreatedAt,
	}, nil
}

// List returns the archives written under the configured prefix.
func (a *Archiver) List(ctx context.Context) ([]storage.ObjectInfo, error) {
	if a.ObjectStore == nil {
		return nil, fmt.Errorf("object store is required")
	}
	return a.ObjectStore.List(ctx, a.prefix()+"/")
}

// Open returns a reader over one archive and its stored attributes. The
// caller closes the reader.
func (a *Archiver) Open(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	if err := a.checkKey(key); err != nil {
		return nil, storage.ObjectInfo{}, err
	}
	info, err := a.ObjectStore.Stat(ctx, key)
	if err != nil {
		return nil, storage.ObjectInfo{}, fmt.Errorf("stat archive %s: %w", key, err)
	}
	body, err := a.ObjectStore.Get(ctx, key)
	if err != nil {
		return nil, storage.ObjectInfo{}, fmt.Errorf("open archive %s: %w", key, err)
	}
	return body, info, nil
}

// Delete removes one archive. A missing archive is reported as
// storage.ErrObjectNotFound.
func (a *Archiver) Delete(ctx context.Context, key string) error {
	if err := a.checkKey(key); err != nil {
		return err
	}
	if _, err := a.ObjectStore.Stat(ctx, key); err != nil {
		return fmt.Errorf("stat archive %s: %w", key, err)
	}
	if err := a.ObjectStore.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete archive %s: %w", key, err)
	}
	observability.LoggerWithTrace(ctx, a.Logger).InfoContext(ctx, "conversation history archive deleted", slog.String("key", key))
	return nil
}

// checkKey accepts only Parquet keys below the archive prefix.
func (a *Archiver) checkKey(key string) error {
	if a.ObjectStore == nil {
		return fmt.Errorf("object store is required")
	}
	if key == "" || path.Clean(key) != key || !strings.HasPrefix(key, a.prefix()+"/") || path.Ext(key) != ".parquet" {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

func (a *Archiver) prefix() string {
	prefix := strings.Trim(strings.TrimSpace(a.Prefix), "/")
	if prefix == "" {
		return DefaultPrefix
	}
	return prefix
}

func (a *Archiver) now() time.Time {
	if a.Clock != nil {
		return a.Clock()
	}
	return time.Now()
}
