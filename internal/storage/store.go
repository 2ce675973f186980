// Package storage writes encoded output images to a local directory or a
// gocloud blob bucket.
package storage

import (
	"context"
	"fmt"
	"strings"
)

// Sink abstracts where processed images are written.
type Sink interface {
	// Prepare makes the destination ready. It is idempotent.
	Prepare(ctx context.Context) error

	// Write stores data under name, replacing any previous object.
	Write(ctx context.Context, name string, data []byte) error

	// Location describes the destination for reporting.
	Location() string

	Close() error
}

// Config selects the sink. URL wins over Dir when set.
type Config struct {
	Dir         string
	URL         string
	ContentType string
}

// Open builds the sink described by cfg without preparing it.
func Open(ctx context.Context, cfg Config) (Sink, error) {
	if strings.TrimSpace(cfg.URL) != "" {
		return NewBlobSink(ctx, cfg.URL, cfg.ContentType)
	}
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("storage: neither output dir nor output url configured")
	}
	return NewLocalSink(cfg.Dir), nil
}
