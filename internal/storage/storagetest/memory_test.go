package storagetest

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/asksql/asksql/internal/storage"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	info, err := store.Put(ctx, "history/b.parquet", strings.NewReader("payload"), 7, storage.PutOptions{
		ContentType: "application/vnd.apache.parquet",
		Metadata:    map[string]string{"Entries": "3"},
	})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if info.Size != 7 || info.ETag == "" {
		t.Fatalf("Put() info = %+v", info)
	}
	if _, err := store.Put(ctx, "history/a.parquet", strings.NewReader("x"), 1, storage.PutOptions{}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := store.Put(ctx, "other/c.parquet", strings.NewReader("y"), 1, storage.PutOptions{}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	reader, err := store.Get(ctx, "history/b.parquet")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	data, _ := io.ReadAll(reader)
	if string(data) != "payload" {
		t.Fatalf("Get() = %q", data)
	}

	stat, err := store.Stat(ctx, "history/b.parquet")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if stat.ContentType != "application/vnd.apache.parquet" || stat.Metadata["entries"] != "3" || stat.ETag != info.ETag {
		t.Fatalf("Stat() = %+v", stat)
	}

	listed, err := store.List(ctx, "history/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(listed) != 2 || listed[0].Key != "history/a.parquet" {
		t.Fatalf("List() = %+v", listed)
	}

	if err := store.Delete(ctx, "history/b.parquet"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Stat(ctx, "history/b.parquet"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Stat() after delete error = %v", err)
	}
	if _, err := store.Get(ctx, "history/b.parquet"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get() after delete error = %v", err)
	}
	if store.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", store.Len())
	}
}
