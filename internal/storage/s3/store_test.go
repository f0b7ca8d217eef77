package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/asksql/asksql/internal/storage"
)

func TestPutResolvesKeyUnderPrefix(t *testing.T) {
	fake := &fakeBucket{}
	store := newStore("bucket-a", "/asksql/prod/", fake)

	info, err := store.Put(context.Background(), "/history/date=2026-10-19/history-1-a.parquet", bytes.NewBufferString("abc"), 3, storage.PutOptions{})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if fake.lastPutKey != "asksql/prod/history/date=2026-10-19/history-1-a.parquet" {
		t.Fatalf("key = %q", fake.lastPutKey)
	}
	if fake.lastPutOptions.ContentType != defaultContentType {
		t.Fatalf("content type = %q", fake.lastPutOptions.ContentType)
	}
	if info.Key != "history/date=2026-10-19/history-1-a.parquet" {
		t.Fatalf("info.Key = %q, want key relative to prefix", info.Key)
	}
}

func TestResolveRejectsKeysOutsidePrefix(t *testing.T) {
	store := newStore("bucket-a", "asksql", &fakeBucket{})
	for _, key := range []string{"", "  ", "../secrets.txt", "history/../../secrets.txt", ".."} {
		if _, err := store.Put(context.Background(), key, bytes.NewBufferString("x"), 1, storage.PutOptions{}); err == nil {
			t.Fatalf("Put(%q) expected key validation error", key)
		}
		if _, err := store.Get(context.Background(), key); err == nil {
			t.Fatalf("Get(%q) expected key validation error", key)
		}
	}
}

func TestListScopesAndStripsPrefix(t *testing.T) {
	fake := &fakeBucket{listed: []storage.ObjectInfo{
		{Key: "asksql/history/b.parquet", Size: 2},
		{Key: "asksql/history/a.parquet", Size: 1},
	}}
	store := newStore("bucket-a", "asksql", fake)

	objects, err := store.List(context.Background(), "history/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if fake.lastListPrefix != "asksql/history/" {
		t.Fatalf("list prefix = %q", fake.lastListPrefix)
	}
	if len(objects) != 2 || objects[0].Key != "history/a.parquet" || objects[1].Key != "history/b.parquet" {
		t.Fatalf("List() = %+v", objects)
	}
}

func TestStatReturnsContentTypeAndMetadata(t *testing.T) {
	fake := &fakeBucket{}
	store := newStore("bucket-a", "asksql", fake)

	info, err := store.Stat(context.Background(), "history/x.parquet")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Key != "history/x.parquet" || info.ContentType != "application/vnd.apache.parquet" || info.Metadata["entries"] != "4" {
		t.Fatalf("Stat() = %+v", info)
	}

	reader, err := store.Get(context.Background(), "history/x.parquet")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	data, _ := io.ReadAll(reader)
	if string(data) != "asksql/history/x.parquet" {
		t.Fatalf("Get() = %q", data)
	}
}

func TestMissingObjectsMapToErrObjectNotFound(t *testing.T) {
	store := newStore("bucket-a", "", &fakeBucket{missing: true})
	_, err := store.Get(context.Background(), "history/x.parquet")
	if !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get() error = %v", err)
	}
	if !strings.Contains(err.Error(), "s3://bucket-a/history/x.parquet") {
		t.Fatalf("Get() error = %q, want object location", err)
	}
	if _, err := store.Stat(context.Background(), "history/x.parquet"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Stat() error = %v", err)
	}
	if err := store.Delete(context.Background(), "history/x.parquet"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
}

func TestBucketFailuresKeepCause(t *testing.T) {
	cause := errors.New("connection reset")
	store := newStore("bucket-a", "", &fakeBucket{err: cause})
	if _, err := store.Stat(context.Background(), "history/x.parquet"); !errors.Is(err, cause) || errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Stat() error = %v", err)
	}
	if err := store.Delete(context.Background(), "history/x.parquet"); !errors.Is(err, cause) {
		t.Fatalf("Delete() error = %v", err)
	}
}

func TestEnsureBucketCreatesWhenMissing(t *testing.T) {
	fake := &fakeBucket{}
	store := newStore("bucket-a", "", fake)
	if err := store.ensureBucket(context.Background(), "us-east-1"); err != nil {
		t.Fatalf("ensureBucket() error = %v", err)
	}
	if fake.createdRegion != "us-east-1" {
		t.Fatalf("created region = %q", fake.createdRegion)
	}

	fake = &fakeBucket{bucketExists: true}
	if err := newStore("bucket-a", "", fake).ensureBucket(context.Background(), "us-east-1"); err != nil {
		t.Fatalf("ensureBucket() error = %v", err)
	}
	if fake.createdRegion != "" {
		t.Fatal("existing bucket should not be created")
	}
}

func TestNewKeyspace(t *testing.T) {
	tests := map[string]string{
		"":              "",
		"/":             "",
		" asksql/prod/": "asksql/prod",
		"/../asksql":    "asksql",
	}
	for prefix, want := range tests {
		if got := newKeyspace(prefix).root; got != want {
			t.Fatalf("newKeyspace(%q).root = %q, want %q", prefix, got, want)
		}
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		raw        string
		useSSL     bool
		wantHost   string
		wantSecure bool
	}{
		{raw: "https://minio.example.com", wantHost: "minio.example.com", wantSecure: true},
		{raw: "http://localhost:9000", useSSL: false, wantHost: "localhost:9000"},
		{raw: "localhost:9000", useSSL: true, wantHost: "localhost:9000", wantSecure: true},
	}
	for _, tt := range tests {
		endpoint, secure, err := parseEndpoint(tt.raw, tt.useSSL)
		if err != nil {
			t.Fatalf("parseEndpoint(%q) error = %v", tt.raw, err)
		}
		if endpoint != tt.wantHost || secure != tt.wantSecure {
			t.Fatalf("parseEndpoint(%q) = %q/%v", tt.raw, endpoint, secure)
		}
	}
	for _, raw := range []string{"  ", "ftp://minio.example.com", "https://"} {
		if _, _, err := parseEndpoint(raw, false); err == nil {
			t.Fatalf("parseEndpoint(%q) expected error", raw)
		}
	}
}

type fakeBucket struct {
	lastPutKey     string
	lastPutOptions storage.PutOptions
	lastListPrefix string
	listed         []storage.ObjectInfo
	bucketExists   bool
	createdRegion  string
	missing        bool
	err            error
}

func (f *fakeBucket) fail() error {
	if f.missing {
		return storage.ErrObjectNotFound
	}
	return f.err
}

func (f *fakeBucket) putObject(_ context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	f.lastPutKey = key
	f.lastPutOptions = opts
	_, _ = io.Copy(io.Discard, body)
	return storage.ObjectInfo{Key: key, Size: size, ETag: "etag-1"}, f.fail()
}

func (f *fakeBucket) getObject(_ context.Context, key string) (io.ReadCloser, error) {
	if err := f.fail(); err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(key)), nil
}

func (f *fakeBucket) statObject(_ context.Context, key string) (storage.ObjectInfo, error) {
	if err := f.fail(); err != nil {
		return storage.ObjectInfo{}, err
	}
	return storage.ObjectInfo{
		Key:          key,
		Size:         10,
		LastModified: time.Now().UTC(),
		ContentType:  "application/vnd.apache.parquet",
		Metadata:     map[string]string{"entries": "4"},
	}, nil
}

func (f *fakeBucket) listObjects(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	f.lastListPrefix = prefix
	return append([]storage.ObjectInfo(nil), f.listed...), f.fail()
}

func (f *fakeBucket) removeObject(context.Context, string) error {
	return f.fail()
}

func (f *fakeBucket) exists(context.Context) (bool, error) {
	return f.bucketExists, nil
}

func (f *fakeBucket) create(_ context.Context, region string) error {
	f.createdRegion = region
	return nil
}
