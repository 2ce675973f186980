package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalSinkPrepareIsIdempotent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	sink := NewLocalSink(dir)
	ctx := context.Background()

	if err := sink.Prepare(ctx); err != nil {
		t.Fatalf("first Prepare: %v", err)
	}
	if err := sink.Prepare(ctx); err != nil {
		t.Fatalf("second Prepare on existing dir: %v", err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("stat output dir: %v", err)
	}
	if !info.IsDir() {
		t.Fatalf("%s is not a directory", dir)
	}
}

func TestLocalSinkPrepareFailsWhenPathIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "taken")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if err := NewLocalSink(file).Prepare(context.Background()); err == nil {
		t.Fatal("expected error when output path is a regular file")
	}
}

func TestLocalSinkWriteReplacesAndLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	sink := NewLocalSink(dir)
	ctx := context.Background()

	if err := sink.Write(ctx, "gris_a.png", []byte("first")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := sink.Write(ctx, "gris_a.png", []byte("second")); err != nil {
		t.Fatalf("second Write: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dir, "gris_a.png"))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(got) != "second" {
		t.Fatalf("unexpected content: %q", got)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the output file, got %d entries", len(entries))
	}
}

func TestLocalSinkWriteMissingDir(t *testing.T) {
	sink := NewLocalSink(filepath.Join(t.TempDir(), "never-created"))
	if err := sink.Write(context.Background(), "x.png", []byte("x")); err == nil {
		t.Fatal("expected error writing into a missing directory")
	}
}

func TestOpenSelectsSink(t *testing.T) {
	ctx := context.Background()

	local, err := Open(ctx, Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("Open local: %v", err)
	}
	if _, ok := local.(*LocalSink); !ok {
		t.Fatalf("expected *LocalSink, got %T", local)
	}

	remote, err := Open(ctx, Config{Dir: t.TempDir(), URL: "mem://"})
	if err != nil {
		t.Fatalf("Open blob: %v", err)
	}
	defer remote.Close()
	if _, ok := remote.(*BlobSink); !ok {
		t.Fatalf("expected *BlobSink, got %T", remote)
	}

	if _, err := Open(ctx, Config{}); err == nil {
		t.Fatal("expected error with empty config")
	}
}

func TestLocalSinkWriteCancelledLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	sink := NewLocalSink(dir)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sink.Write(ctx, "gris_a.png", []byte("late")); err == nil {
		t.Fatal("expected error for cancelled write")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("cancelled write left %d entries behind", len(entries))
	}
}
