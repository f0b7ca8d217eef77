// Package s3 keeps history archives in an S3-compatible bucket through the
// MinIO client. Keys passed to and returned by Store are relative to the
// configured prefix.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"slices"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/asksql/asksql/internal/storage"
)

const defaultContentType = "application/octet-stream"

type Config struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

// bucket is the part of the MinIO API the store uses, bound to one bucket.
type bucket interface {
	putObject(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error)
	getObject(ctx context.Context, key string) (io.ReadCloser, error)
	statObject(ctx context.Context, key string) (storage.ObjectInfo, error)
	listObjects(ctx context.Context, prefix string) ([]storage.ObjectInfo, error)
	removeObject(ctx context.Context, key string) error
	exists(ctx context.Context) (bool, error)
	create(ctx context.Context, region string) error
}

type Store struct {
	name   string
	bucket bucket
	keys   keyspace
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	name := strings.TrimSpace(cfg.Bucket)
	switch {
	case strings.TrimSpace(cfg.Endpoint) == "":
		return nil, errors.New("s3 endpoint is required")
	case name == "":
		return nil, errors.New("s3 bucket is required")
	}

	client, err := dial(cfg)
	if err != nil {
		return nil, err
	}
	store := newStore(name, cfg.Prefix, &minioBucket{client: client, name: name})
	if cfg.AutoCreateBucket {
		if err := store.ensureBucket(ctx, strings.TrimSpace(cfg.Region)); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func newStore(name, prefix string, b bucket) *Store {
	return &Store{name: name, bucket: b, keys: newKeyspace(prefix)}
}

func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	full, err := s.keys.resolve(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	if opts.ContentType == "" {
		opts.ContentType = defaultContentType
	}
	info, err := s.bucket.putObject(ctx, full, body, size, opts)
	if err != nil {
		return storage.ObjectInfo{}, s.wrap("put", full, err)
	}
	return s.keys.strip(info), nil
}

// Get opens the object for reading. The caller closes the reader.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	full, err := s.keys.resolve(key)
	if err != nil {
		return nil, err
	}
	body, err := s.bucket.getObject(ctx, full)
	if err != nil {
		return nil, s.wrap("get", full, err)
	}
	return body, nil
}

func (s *Store) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	full, err := s.keys.resolve(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := s.bucket.statObject(ctx, full)
	if err != nil {
		return storage.ObjectInfo{}, s.wrap("stat", full, err)
	}
	return s.keys.strip(info), nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	scoped := s.keys.scope(prefix)
	objects, err := s.bucket.listObjects(ctx, scoped)
	if err != nil {
		return nil, s.wrap("list", scoped, err)
	}
	out := make([]storage.ObjectInfo, 0, len(objects))
	for _, object := range objects {
		out = append(out, s.keys.strip(object))
	}
	slices.SortFunc(out, func(a, b storage.ObjectInfo) int { return strings.Compare(a.Key, b.Key) })
	return out, nil
}

// Delete succeeds for keys that are already gone.
func (s *Store) Delete(ctx context.Context, key string) error {
	full, err := s.keys.resolve(key)
	if err != nil {
		return err
	}
	if err := s.bucket.removeObject(ctx, full); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return s.wrap("delete", full, err)
	}
	return nil
}

func (s *Store) ensureBucket(ctx context.Context, region string) error {
	found, err := s.bucket.exists(ctx)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.name, err)
	}
	if found {
		return nil
	}
	if err := s.bucket.create(ctx, region); err != nil {
		return fmt.Errorf("create bucket %q: %w", s.name, err)
	}
	return nil
}

// wrap names the object in the error and keeps ErrObjectNotFound matchable.
func (s *Store) wrap(op, full string, err error) error {
	location := "s3://" + s.name + "/" + full
	if errors.Is(err, storage.ErrObjectNotFound) {
		return fmt.Errorf("%w: %s", storage.ErrObjectNotFound, location)
	}
	return fmt.Errorf("%s %s: %w", op, location, err)
}

// keyspace maps caller keys to bucket keys under an optional root.
type keyspace struct {
	root string
}

func newKeyspace(prefix string) keyspace {
	root := path.Clean("/" + strings.TrimSpace(prefix))
	return keyspace{root: strings.TrimPrefix(root, "/")}
}

func (k keyspace) resolve(key string) (string, error) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if key == "" {
		return "", errors.New("object key is required")
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return path.Join(k.root, cleaned), nil
}

func (k keyspace) scope(prefix string) string {
	prefix = strings.TrimPrefix(strings.TrimSpace(prefix), "/")
	if k.root == "" {
		return prefix
	}
	return k.root + "/" + prefix
}

func (k keyspace) strip(info storage.ObjectInfo) storage.ObjectInfo {
	if k.root != "" {
		info.Key = strings.TrimPrefix(info.Key, k.root+"/")
	}
	return info
}

func dial(cfg Config) (*minio.Client, error) {
	host, secure, err := parseEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return client, nil
}

// parseEndpoint accepts host[:port] or an http(s) URL. An https URL turns TLS
// on regardless of useSSL.
func parseEndpoint(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, errors.New("endpoint is required")
	}
	if !strings.Contains(raw, "://") {
		return raw, useSSL, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse endpoint URL: %w", err)
	}
	switch {
	case parsed.Host == "":
		return "", false, errors.New("endpoint host is required")
	case parsed.Scheme == "https":
		return parsed.Host, true, nil
	case parsed.Scheme == "http":
		return parsed.Host, useSSL, nil
	default:
		return "", false, fmt.Errorf("unsupported endpoint scheme %q", parsed.Scheme)
	}
}

type minioBucket struct {
	client *minio.Client
	name   string
}

func (b *minioBucket) putObject(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	uploaded, err := b.client.PutObject(ctx, b.name, key, body, size, minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		UserMetadata: opts.Metadata,
	})
	if err != nil {
		return storage.ObjectInfo{}, translateErr(err)
	}
	return storage.ObjectInfo{Key: uploaded.Key, Size: uploaded.Size, ETag: uploaded.ETag, LastModified: uploaded.LastModified}, nil
}

func (b *minioBucket) getObject(ctx context.Context, key string) (io.ReadCloser, error) {
	object, err := b.client.GetObject(ctx, b.name, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateErr(err)
	}
	// GetObject is lazy; Stat reports a missing key before the first read.
	if _, err := object.Stat(); err != nil {
		_ = object.Close()
		return nil, translateErr(err)
	}
	return object, nil
}

func (b *minioBucket) statObject(ctx context.Context, key string) (storage.ObjectInfo, error) {
	object, err := b.client.StatObject(ctx, b.name, key, minio.StatObjectOptions{})
	if err != nil {
		return storage.ObjectInfo{}, translateErr(err)
	}
	info := objectInfo(object)
	info.ContentType = object.ContentType
	if len(object.UserMetadata) > 0 {
		info.Metadata = make(map[string]string, len(object.UserMetadata))
		for k, v := range object.UserMetadata {
			info.Metadata[strings.ToLower(k)] = v
		}
	}
	return info, nil
}

func (b *minioBucket) listObjects(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	// Cancelling stops the listing goroutine when we return early.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var out []storage.ObjectInfo
	for object := range b.client.ListObjects(ctx, b.name, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if object.Err != nil {
			return nil, translateErr(object.Err)
		}
		out = append(out, objectInfo(object))
	}
	return out, nil
}

func (b *minioBucket) removeObject(ctx context.Context, key string) error {
	return translateErr(b.client.RemoveObject(ctx, b.name, key, minio.RemoveObjectOptions{}))
}

func (b *minioBucket) exists(ctx context.Context) (bool, error) {
	found, err := b.client.BucketExists(ctx, b.name)
	return found, translateErr(err)
}

func (b *minioBucket) create(ctx context.Context, region string) error {
	return translateErr(b.client.MakeBucket(ctx, b.name, minio.MakeBucketOptions{Region: region}))
}

func objectInfo(object minio.ObjectInfo) storage.ObjectInfo {
	return storage.ObjectInfo{Key: object.Key, Size: object.Size, ETag: object.ETag, LastModified: object.LastModified}
}

func translateErr(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return storage.ErrObjectNotFound
	}
	return err
}
