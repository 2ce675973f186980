package storage

import (
	"context"
	"fmt"
	"path"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// driver
	_ "gocloud.dev/blob/memblob"  // mem:// driver
	_ "gocloud.dev/blob/s3blob"   // s3:// driver
)

// BlobSink writes images into a gocloud.dev bucket (s3://, file://, mem://).
type BlobSink struct {
	bucket      *blob.Bucket
	url         string
	contentType string
}

// NewBlobSink opens the bucket at url.
func NewBlobSink(ctx context.Context, url, contentType string) (*BlobSink, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", url, err)
	}
	return &BlobSink{bucket: bucket, url: url, contentType: contentType}, nil
}

// Prepare checks that the bucket is reachable. Buckets have no directories to
// create, so calling it repeatedly is harmless.
func (s *BlobSink) Prepare(ctx context.Context) error {
	ok, err := s.bucket.IsAccessible(ctx)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.url, err)
	}
	if !ok {
		return fmt.Errorf("bucket %s is not accessible", s.url)
	}
	return nil
}

func (s *BlobSink) Write(ctx context.Context, name string, data []byte) error {
	key := path.Base(name)
	opts := &blob.WriterOptions{ContentType: s.contentType}
	if err := s.bucket.WriteAll(ctx, key, data, opts); err != nil {
		return fmt.Errorf("write %s to %s: %w", key, s.url, err)
	}
	return nil
}

func (s *BlobSink) Location() string {
	return s.url
}

func (s *BlobSink) Close() error {
	return s.bucket.Close()
}
