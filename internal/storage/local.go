package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalSink writes images into a directory on the local filesystem.
type LocalSink struct {
	dir string
}

func NewLocalSink(dir string) *LocalSink {
	return &LocalSink{dir: dir}
}

// Prepare creates the output directory recursively if it is absent.
func (s *LocalSink) Prepare(ctx context.Context) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create output directory %s: %w", s.dir, err)
	}
	return nil
}

// Write stores data atomically using a temp file and rename. A done ctx
// leaves the destination untouched.
func (s *LocalSink) Write(ctx context.Context, name string, data []byte) error {
	path := filepath.Join(s.dir, filepath.Base(name))
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+filepath.Base(name)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tempPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tempPath)
		return fmt.Errorf("write temp file %s: %w", tempPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("close temp file %s: %w", tempPath, err)
	}

	if err := ctx.Err(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename %s to %s: %w", tempPath, path, err)
	}
	return nil
}

func (s *LocalSink) Location() string {
	return s.dir
}

// Close is a no-op for local storage.
func (s *LocalSink) Close() error {
	return nil
}
