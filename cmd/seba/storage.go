// cmd/seba/storage.go
// Copyright(c) 2025 seba contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	fpath "path/filepath"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// StorageBackend provides access to field sets and results, wherever
// they are stored. Paths are relative to the backend's root or bucket.
type StorageBackend interface {
	List(path string) (map[string]int64, error)
	OpenRead(path string) (io.ReadCloser, error)
	Store(path string, r io.Reader) (int64, error)
	// StoreObject stores object as zstd-compressed msgpack.
	StoreObject(path string, object any) (int64, error)
	Close()
}

// Pool a limited number of them to keep memory use under control.
var zstdEncoders chan *zstd.Encoder

func init() {
	const nenc = 4
	zstdEncoders = make(chan *zstd.Encoder, nenc)
	for range nenc {
		ze, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression), zstd.WithEncoderConcurrency(1))
		if err != nil {
			panic(err)
		}
		zstdEncoders <- ze
	}
}

type CountingWriter struct {
	io.Writer
	N int64
}

func (w *CountingWriter) Write(b []byte) (int, error) {
	n, err := w.Writer.Write(b)
	w.N += int64(n)
	return n, err
}

// encodeObject writes object to w as zstd-compressed msgpack and returns
// the number of compressed bytes written.
func encodeObject(w io.Writer, object any) (int64, error) {
	cw := &CountingWriter{Writer: w}

	zw := <-zstdEncoders
	defer func() { zstdEncoders <- zw }()
	zw.Reset(cw)

	if err := msgpack.NewEncoder(zw).Encode(object); err != nil {
		return 0, err
	} else if err := zw.Close(); err != nil {
		return 0, err
	}
	return cw.N, nil
}

// ParsePath splits a path of the form gs://bucket/key or s3://bucket/key
// into its scheme, bucket and key. Other paths are local and are
// returned as the key with empty scheme and bucket.
func ParsePath(path string) (scheme, bucket, key string) {
	for _, s := range []string{"gs", "s3"} {
		if rest, ok := strings.CutPrefix(path, s+"://"); ok {
			bucket, key, _ = strings.Cut(rest, "/")
			return s, bucket, key
		}
	}
	return "", "", path
}

///////////////////////////////////////////////////////////////////////////
// Backends

// Backends opens backends on demand and keeps one per bucket.
type Backends struct {
	ctx    context.Context
	dryRun bool

	mu       sync.Mutex
	backends map[string]StorageBackend
}

func NewBackends(ctx context.Context, dryRun bool) *Backends {
	return &Backends{ctx: ctx, dryRun: dryRun, backends: make(map[string]StorageBackend)}
}

// Get returns the backend for path and the path's key within it.
func (b *Backends) Get(path string) (StorageBackend, string, error) {
	scheme, bucket, key := ParsePath(path)

	b.mu.Lock()
	defer b.mu.Unlock()

	id := scheme + "://" + bucket
	if sb, ok := b.backends[id]; ok {
		return sb, key, nil
	}

	var sb StorageBackend
	var err error
	switch scheme {
	case "gs":
		sb, err = MakeGCSBackend(b.ctx, bucket)
	case "s3":
		sb, err = MakeS3Backend(b.ctx, bucket)
	default:
		sb = LocalBackend{}
	}
	if err != nil {
		return nil, "", err
	}
	if b.dryRun {
		sb = DryRunBackend{g: sb}
	}
	b.backends[id] = sb
	return sb, key, nil
}

func (b *Backends) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sb := range b.backends {
		sb.Close()
	}
	clear(b.backends)
}

///////////////////////////////////////////////////////////////////////////
// LocalBackend

type LocalBackend struct{}

func (LocalBackend) List(path string) (map[string]int64, error) {
	m := make(map[string]int64)
	err := fpath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			m[p] = info.Size()
		}
		return nil
	})
	return m, err
}

func (LocalBackend) OpenRead(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

func (LocalBackend) create(path string) (*os.File, error) {
	if dir := fpath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.Create(path)
}

func (l LocalBackend) Store(path string, r io.Reader) (int64, error) {
	f, err := l.create(path)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		return n, err
	}
	return n, f.Close()
}

func (l LocalBackend) StoreObject(path string, object any) (int64, error) {
	f, err := l.create(path)
	if err != nil {
		return 0, err
	}
	n, err := encodeObject(f, object)
	if err != nil {
		f.Close()
		return n, err
	}
	return n, f.Close()
}

func (LocalBackend) Close() {}

///////////////////////////////////////////////////////////////////////////
// DryRunBackend

type SinkWriter struct{}

func (w *SinkWriter) Write(b []byte) (int, error) {
	return len(b), nil
}

// DryRunBackend reads from the underlying backend but discards
// everything stored to it.
type DryRunBackend struct {
	g StorageBackend // for read-only operations
}

func (d DryRunBackend) List(path string) (map[string]int64, error) {
	return d.g.List(path)
}

func (d DryRunBackend) OpenRead(path string) (io.ReadCloser, error) {
	return d.g.OpenRead(path)
}

func (d DryRunBackend) Store(path string, r io.Reader) (int64, error) {
	return io.Copy(&SinkWriter{}, r)
}

func (d DryRunBackend) StoreObject(path string, object any) (int64, error) {
	return encodeObject(&SinkWriter{}, object)
}

func (d DryRunBackend) Close() { d.g.Close() }

///////////////////////////////////////////////////////////////////////////
// GCSBackend

type GCSBackend struct {
	ctx    context.Context
	client *storage.Client
	bucket *storage.BucketHandle
}

// MakeGCSBackend returns a backend for the given Google Cloud Storage
// bucket. Credentials are taken from SEBA_GCS_CREDENTIALS if it is set
// and from the application default credentials otherwise.
func MakeGCSBackend(ctx context.Context, bucketName string) (StorageBackend, error) {
	var opts []option.ClientOption
	if credsJSON := os.Getenv("SEBA_GCS_CREDENTIALS"); credsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credsJSON)))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gs://%s: %w", bucketName, err)
	}

	return &GCSBackend{
		ctx:    ctx,
		client: client,
		bucket: client.Bucket(bucketName),
	}, nil
}

func (g GCSBackend) List(path string) (map[string]int64, error) {
	path = fpath.Clean(path)
	query := storage.Query{
		Projection: storage.ProjectionNoACL,
		Prefix:     path,
	}

	m := make(map[string]int64)
	it := g.bucket.Objects(g.ctx, &query)
	for {
		if obj, err := it.Next(); err == iterator.Done {
			break
		} else if err != nil {
			return nil, err
		} else if fpath.Clean(obj.Name) != path { // don't return the root ~folder
			m[obj.Name] = obj.Size
		}
	}

	return m, nil
}

func (g GCSBackend) OpenRead(path string) (io.ReadCloser, error) {
	return g.bucket.Object(path).NewReader(g.ctx)
}

func (g GCSBackend) Store(path string, r io.Reader) (int64, error) {
	objw := g.bucket.Object(path).NewWriter(g.ctx)
	n, err := io.Copy(objw, r)
	if err != nil {
		return n, err
	}
	return n, objw.Close()
}

func (g GCSBackend) StoreObject(path string, object any) (int64, error) {
	objw := g.bucket.Object(path).NewWriter(g.ctx)
	n, err := encodeObject(objw, object)
	if err != nil {
		return 0, err
	}
	return n, objw.Close()
}

func (g GCSBackend) Close() { g.client.Close() }

///////////////////////////////////////////////////////////////////////////
// S3Backend

type S3Backend struct {
	ctx    context.Context
	client *s3.Client
	bucket string
}

// MakeS3Backend returns a backend for the given S3 bucket. The standard
// AWS configuration sources are used unless SEBA_S3_ACCESS_KEY_ID and
// SEBA_S3_SECRET_ACCESS_KEY are set; SEBA_S3_ENDPOINT selects an
// S3-compatible service.
func MakeS3Backend(ctx context.Context, bucketName string) (StorageBackend, error) {
	var opts []func(*config.LoadOptions) error
	if id, secret := os.Getenv("SEBA_S3_ACCESS_KEY_ID"), os.Getenv("SEBA_S3_SECRET_ACCESS_KEY"); id != "" && secret != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(id, secret, "")))
	}
	if region := os.Getenv("SEBA_S3_REGION"); region != "" {
		opts = append(opts, config.WithRegion(region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3://%s: %w", bucketName, err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if ep := os.Getenv("SEBA_S3_ENDPOINT"); ep != "" {
			o.BaseEndpoint = aws.String(ep)
			o.UsePathStyle = true
		}
	})
	return &S3Backend{ctx: ctx, client: client, bucket: bucketName}, nil
}

func (s S3Backend) List(path string) (map[string]int64, error) {
	m := make(map[string]int64)
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(path),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(s.ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			m[aws.ToString(obj.Key)] = aws.ToInt64(obj.Size)
		}
	}
	return m, nil
}

func (s S3Backend) OpenRead(path string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(s.ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

// put uploads b; PutObject needs a seekable body of known length.
func (s S3Backend) put(path string, b []byte) error {
	_, err := s.client.PutObject(s.ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(path),
		Body:          bytes.NewReader(b),
		ContentLength: aws.Int64(int64(len(b))),
	})
	return err
}

func (s S3Backend) Store(path string, r io.Reader) (int64, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	return int64(len(b)), s.put(path, b)
}

func (s S3Backend) StoreObject(path string, object any) (int64, error) {
	var buf bytes.Buffer
	n, err := encodeObject(&buf, object)
	if err != nil {
		return 0, err
	}
	return n, s.put(path, buf.Bytes())
}

func (s S3Backend) Close() {}
