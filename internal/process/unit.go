package process

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/tendant/simple-grayscaler/internal/img"
)

// Writer is the part of a storage sink the unit needs.
type Writer interface {
	Write(ctx context.Context, name string, data []byte) error
}

// Unit runs the per-task pipeline: read, decode, filter, encode, write.
// Failures are recorded on the task and never returned to the caller.
type Unit struct {
	codec  img.Codec
	filter img.Filter
	out    Writer
	logger *slog.Logger
}

func NewUnit(codec img.Codec, filter img.Filter, out Writer, logger *slog.Logger) *Unit {
	if logger == nil {
		logger = slog.Default()
	}
	return &Unit{codec: codec, filter: filter, out: out, logger: logger}
}

// Execute claims t and drives it to a terminal status. A task that is not
// pending is left as is. Nothing is written once ctx is done.
func (u *Unit) Execute(ctx context.Context, t *ImageTask) (snap Snapshot) {
	if !t.Claim() {
		return t.Snapshot()
	}

	start := time.Now()
	taskLogger := u.logger.With("task_id", t.ID, "source", filepath.Base(t.Source))

	defer func() {
		if r := recover(); r != nil {
			u.fail(taskLogger, t, FailurePanic, fmt.Errorf("recovered: %v", r), start)
			snap = t.Snapshot()
		}
	}()

	data, err := os.ReadFile(t.Source)
	if err != nil {
		u.fail(taskLogger, t, FailureIO, fmt.Errorf("read source: %w", err), start)
		return t.Snapshot()
	}

	src, err := u.codec.Decode(bytes.NewReader(data))
	if err != nil {
		u.fail(taskLogger, t, FailureDecode, err, start)
		return t.Snapshot()
	}

	out := u.filter.Apply(src, img.FullHeight(src))

	var buf bytes.Buffer
	if err := u.codec.Encode(&buf, out); err != nil {
		u.fail(taskLogger, t, FailureEncode, err, start)
		return t.Snapshot()
	}

	// A cancelled ctx means the run has already been reported.
	if err := ctx.Err(); err != nil {
		u.fail(taskLogger, t, FailureIO, fmt.Errorf("skip write: %w", err), start)
		return t.Snapshot()
	}
	if err := u.out.Write(ctx, t.Dest, buf.Bytes()); err != nil {
		u.fail(taskLogger, t, FailureIO, fmt.Errorf("write output: %w", err), start)
		return t.Snapshot()
	}

	elapsed := time.Since(start)
	t.Succeed(elapsed)
	taskLogger.Info("processed", "dest", t.Dest, "filter", u.filter.Name(), "elapsed_ms", elapsed.Milliseconds())
	return t.Snapshot()
}

func (u *Unit) fail(logger *slog.Logger, t *ImageTask, kind FailureKind, err error, start time.Time) {
	cause := &TaskError{Kind: kind, Source: t.Source, Err: err}
	t.Fail(cause, time.Since(start))
	logger.Error("task failed", "kind", kind, "err", err)
}
