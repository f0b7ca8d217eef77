package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/asksql/asksql/internal/memory"
	"github.com/asksql/asksql/internal/storage"
	"github.com/asksql/asksql/internal/storage/storagetest"
)

func TestEncodeEntriesToParquet(t *testing.T) {
	entries := testEntries()
	result, err := EncodeEntries(entries)
	if err != nil {
		t.Fatalf("EncodeEntries() error = %v", err)
	}
	if result.RecordCount != 2 {
		t.Fatalf("RecordCount = %d", result.RecordCount)
	}
	if result.MinCreatedAt == nil || !result.MinCreatedAt.Equal(entries[0].CreatedAt) {
		t.Fatalf("MinCreatedAt = %v", result.MinCreatedAt)
	}
	if result.MaxCreatedAt == nil || !result.MaxCreatedAt.Equal(entries[1].CreatedAt) {
		t.Fatalf("MaxCreatedAt = %v", result.MaxCreatedAt)
	}

	rows := readRows(t, result.Data, 2)
	if rows[0].ID != "entry-1" || rows[1].Question != "revenue per category" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if rows[0].RowCount != 2 || !rows[0].Truncated || rows[1].Truncated {
		t.Fatalf("RowCount = %d truncated = %v/%v", rows[0].RowCount, rows[0].Truncated, rows[1].Truncated)
	}
	var decoded [][]any
	if err := json.Unmarshal([]byte(rows[0].RowsJSON), &decoded); err != nil {
		t.Fatalf("rows_json is not JSON: %v", err)
	}
	if len(decoded) != 2 || decoded[0][0] != "Chai" {
		t.Fatalf("rows_json = %s", rows[0].RowsJSON)
	}
	if rows[1].ChartJSON != `{"chart_type":"bar","x_axis":"category_name","y_axis":"revenue"}` {
		t.Fatalf("chart_json = %s", rows[1].ChartJSON)
	}
}

func TestEncodeEntriesRequiresEntries(t *testing.T) {
	if _, err := EncodeEntries(nil); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestArchiveUploadsParquetSnapshot(t *testing.T) {
	store := storagetest.NewMemoryStore()
	archiver := &Archiver{
		Source:      staticEntries(testEntries()),
		ObjectStore: store,
		Prefix:      "exports",
		Clock:       func() time.Time { return time.Date(2026, time.October, 19, 8, 0, 0, 0, time.UTC) },
	}

	result, err := archiver.Archive(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if !strings.HasPrefix(result.Key, "exports/date=2026-10-19/history-") || !strings.HasSuffix(result.Key, ".parquet") {
		t.Fatalf("Key = %q", result.Key)
	}
	if result.Entries != 2 || result.SizeBytes == 0 {
		t.Fatalf("Result = %+v", result)
	}

	reader, err := store.Get(context.Background(), result.Key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	rows := readRows(t, data, 2)
	if rows[0].SQL != "SELECT product_name FROM products" {
		t.Fatalf("sql_query = %q", rows[0].SQL)
	}

	listed, err := archiver.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(listed) != 1 || listed[0].Key != result.Key {
		t.Fatalf("List() = %+v", listed)
	}

	stat, err := store.Stat(context.Background(), result.Key)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if stat.ContentType != ContentType || stat.Metadata["entries"] != "2" || result.ETag != stat.ETag {
		t.Fatalf("Stat() = %+v, result = %+v", stat, result)
	}
}

func TestArchiveFailsWhenStoredObjectDiffers(t *testing.T) {
	archiver := &Archiver{
		Source:      staticEntries(testEntries()),
		ObjectStore: shortStatStore{storagetest.NewMemoryStore()},
	}
	if _, err := archiver.Archive(context.Background(), Options{}); err == nil || !strings.Contains(err.Error(), "confirm parquet object") {
		t.Fatalf("Archive() error = %v, want size mismatch", err)
	}
}

func TestOpenAndDeleteArchive(t *testing.T) {
	ctx := context.Background()
	store := storagetest.NewMemoryStore()
	archiver := &Archiver{Source: staticEntries(testEntries()), ObjectStore: store}
	result, err := archiver.Archive(ctx, Options{})
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}

	body, info, err := archiver.Open(ctx, result.Key)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	data, err := io.ReadAll(body)
	_ = body.Close()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if info.Size != int64(len(data)) || info.ContentType != ContentType {
		t.Fatalf("Open() info = %+v, read %d bytes", info, len(data))
	}
	readRows(t, data, 2)

	if err := archiver.Delete(ctx, result.Key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("objects left = %d", store.Len())
	}
	if err := archiver.Delete(ctx, result.Key); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Delete() again error = %v, want ErrObjectNotFound", err)
	}
	if _, _, err := archiver.Open(ctx, result.Key); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Open() after delete error = %v, want ErrObjectNotFound", err)
	}
}

func TestArchiveKeysMustSitUnderPrefix(t *testing.T) {
	store := storagetest.NewMemoryStore()
	if _, err := store.Put(context.Background(), "memory.json", strings.NewReader("{}"), 2, storage.PutOptions{}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	archiver := &Archiver{ObjectStore: store, Prefix: "/exports/"}
	for _, key := range []string{
		"",
		"memory.json",
		"exports/date=2026-10-19/notes.txt",
		"exports/../memory.json",
		"history/date=2026-10-19/history-1-a.parquet",
	} {
		if _, _, err := archiver.Open(context.Background(), key); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("Open(%q) error = %v, want ErrInvalidKey", key, err)
		}
		if err := archiver.Delete(context.Background(), key); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("Delete(%q) error = %v, want ErrInvalidKey", key, err)
		}
	}
	if store.Len() != 1 {
		t.Fatal("rejected key reached the object store")
	}
}

func TestArchiveFiltersBySince(t *testing.T) {
	entries := testEntries()
	archiver := &Archiver{Source: staticEntries(entries), ObjectStore: storagetest.NewMemoryStore()}

	result, err := archiver.Archive(context.Background(), Options{Since: entries[1].CreatedAt})
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if result.Entries != 1 {
		t.Fatalf("Entries = %d, want 1", result.Entries)
	}
	if !strings.HasPrefix(result.Key, DefaultPrefix+"/") {
		t.Fatalf("Key = %q", result.Key)
	}

	_, err = archiver.Archive(context.Background(), Options{Since: entries[1].CreatedAt.Add(time.Hour)})
	if !errors.Is(err, ErrNothingToArchive) {
		t.Fatalf("Archive() error = %v, want ErrNothingToArchive", err)
	}
}

func readRows(t *testing.T, data []byte, want int) []historyRow {
	t.Helper()
	reader := parquet.NewGenericReader[historyRow](bytes.NewReader(data))
	defer func() { _ = reader.Close() }()
	rows := make([]historyRow, want)
	count, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("reader.Read() error = %v", err)
	}
	if count != want {
		t.Fatalf("read rows = %d, want %d", count, want)
	}
	return rows
}

func testEntries() []memory.Entry {
	return []memory.Entry{
		{
			ID:        "entry-1",
			Question:  "top products",
			SQL:       "SELECT product_name FROM products",
			Summary:   "Chai and Chang.",
			Columns:   []string{"product_name"},
			Rows:      [][]any{{"Chai"}, {"Chang"}},
			Truncated: true,
			CreatedAt: time.Date(2026, time.October, 18, 9, 0, 0, 0, time.UTC),
		},
		{
			ID:        "entry-2",
			Question:  "revenue per category",
			SQL:       "SELECT category_name, SUM(unit_price) AS revenue FROM products GROUP BY 1",
			Summary:   "Seafood earns most.",
			Columns:   []string{"category_name", "revenue"},
			Chart:     json.RawMessage(`{"chart_type":"bar","x_axis":"category_name","y_axis":"revenue"}`),
			CreatedAt: time.Date(2026, time.October, 18, 10, 0, 0, 0, time.UTC),
		},
	}
}

// shortStatStore reports one byte less than was stored.
type shortStatStore struct {
	*storagetest.MemoryStore
}

func (s shortStatStore) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	info, err := s.MemoryStore.Stat(ctx, key)
	info.Size--
	return info, err
}

type staticEntries []memory.Entry

func (s staticEntries) Entries() []memory.Entry {
	return s
}
