package storage

import (
	"context"
	"fmt"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// driver
	_ "gocloud.dev/blob/gcsblob"  // GCS driver
	_ "gocloud.dev/blob/memblob"  // mem:// driver
	_ "gocloud.dev/blob/s3blob"   // S3 driver
)

// BlobArchive mirrors raw objects into any gocloud.dev bucket: s3:// (also
// B2, R2 and MinIO through endpoint parameters), gs://, file:// or mem://.
type BlobArchive struct {
	bucket    *blob.Bucket
	bucketURL string
	prefix    string
}

// NewArchive opens the bucket at bucketURL. An empty URL disables archiving.
func NewArchive(ctx context.Context, bucketURL, prefix string) (Archive, error) {
	if bucketURL == "" {
		return noopArchive{}, nil
	}
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open archive bucket %s: %w", bucketURL, err)
	}
	return &BlobArchive{
		bucket:    bucket,
		bucketURL: bucketURL,
		prefix:    prefix,
	}, nil
}

// Key returns the object key for a raw log file.
func (a *BlobArchive) Key(solution, date, name string) string {
	return a.prefix + solution + "/" + date + "/" + name
}

// Put writes data to the archive. Objects are keyed by partition and name,
// so reprocessing a file overwrites its earlier copy.
func (a *BlobArchive) Put(ctx context.Context, solution, date, name string, data []byte) error {
	key := a.Key(solution, date, name)

	w, err := a.bucket.NewWriter(ctx, key, &blob.WriterOptions{ContentType: "application/gzip"})
	if err != nil {
		return fmt.Errorf("create writer for %s: %w", key, err)
	}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write data to %s: %w", key, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", key, err)
	}

	return nil
}

// URI returns the canonical URI for the given key.
func (a *BlobArchive) URI(key string) string {
	base, _, _ := strings.Cut(a.bucketURL, "?")
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + key
}

// Close closes the bucket.
func (a *BlobArchive) Close() error {
	return a.bucket.Close()
}

type noopArchive struct{}

func (noopArchive) Put(context.Context, string, string, string, []byte) error { return nil }
func (noopArchive) Key(string, string, string) string { return "" }
func (noopArchive) URI(string) string { return "" }
func (noopArchive) Close() error { return nil }
