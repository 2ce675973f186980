package coordinator

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tendant/simple-grayscaler/internal/img"
	"github.com/tendant/simple-grayscaler/internal/process"
	"github.com/tendant/simple-grayscaler/internal/storage"
	"github.com/tendant/simple-grayscaler/pkg/schema"
)

// fakeExec marks every task succeeded after an optional delay and counts
// how often each task index was executed.
type fakeExec struct {
	delay time.Duration

	mu     sync.Mutex
	counts map[int]int
	active atomic.Int32
	peak   atomic.Int32
}

func (e *fakeExec) Execute(ctx context.Context, t *process.ImageTask) process.Snapshot {
	if !t.Claim() {
		return t.Snapshot()
	}
	n := e.active.Add(1)
	for {
		p := e.peak.Load()
		if n <= p || e.peak.CompareAndSwap(p, n) {
			break
		}
	}
	defer e.active.Add(-1)

	e.mu.Lock()
	if e.counts == nil {
		e.counts = make(map[int]int)
	}
	e.counts[t.Index]++
	e.mu.Unlock()

	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	t.Succeed(e.delay)
	return t.Snapshot()
}

type eventRecorder struct {
	mu      sync.Mutex
	tasks   []schema.TaskEvent
	workers map[int]bool
	runs    []schema.RunSummary
}

func (r *eventRecorder) TaskFinished(ev schema.TaskEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.workers == nil {
		r.workers = make(map[int]bool)
	}
	r.tasks = append(r.tasks, ev)
	r.workers[ev.WorkerID] = true
}

func (r *eventRecorder) RunFinished(sum schema.RunSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, sum)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSet(n int) *process.Set {
	refs := make([]process.Ref, n)
	for i := range refs {
		refs[i] = process.Ref{Source: fmt.Sprintf("img-%03d.png", i), Dest: fmt.Sprintf("gris_img-%03d.png", i)}
	}
	return process.NewSet(refs)
}

var strategies = []Strategy{Static{}, Pool{}}

func TestRunExecutesEveryTaskOnce(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(strategy.Name(), func(t *testing.T) {
			exec := &fakeExec{}
			obs := &eventRecorder{}
			c := New(strategy, exec, WithObserver(obs), WithLogger(discardLogger()))
			set := newSet(500)

			res := c.Run(context.Background(), set, 7, time.Minute)

			if res.State != Completed {
				t.Fatalf("state = %s, want completed", res.State)
			}
			if res.TotalTasks != 500 || res.Succeeded != 500 || res.Failed != 0 || res.Unfinished != 0 {
				t.Fatalf("unexpected result: %+v", res)
			}
			if res.Workers != 7 {
				t.Fatalf("workers = %d, want 7", res.Workers)
			}
			if len(exec.counts) != 500 {
				t.Fatalf("executed %d distinct tasks, want 500", len(exec.counts))
			}
			for idx, n := range exec.counts {
				if n != 1 {
					t.Fatalf("task %d executed %d times", idx, n)
				}
			}
			if len(obs.tasks) != 500 || len(obs.runs) != 1 {
				t.Fatalf("observer saw %d task events and %d summaries", len(obs.tasks), len(obs.runs))
			}
			if obs.runs[0].State != schema.RunCompleted || obs.runs[0].RunID != res.RunID {
				t.Fatalf("unexpected summary: %+v", obs.runs[0])
			}
			if c.State() != Completed {
				t.Fatalf("coordinator state = %s", c.State())
			}
		})
	}
}

func TestRunCapsWorkersAtTaskCount(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(strategy.Name(), func(t *testing.T) {
			exec := &fakeExec{delay: 20 * time.Millisecond}
			obs := &eventRecorder{}
			c := New(strategy, exec, WithObserver(obs), WithLogger(discardLogger()))

			res := c.Run(context.Background(), newSet(5), 8, time.Minute)

			if res.Workers != 5 {
				t.Fatalf("effective workers = %d, want 5", res.Workers)
			}
			if len(obs.workers) > 5 {
				t.Fatalf("%d distinct workers reported, want at most 5", len(obs.workers))
			}
			if peak := exec.peak.Load(); peak > 5 {
				t.Fatalf("peak concurrency %d exceeds 5", peak)
			}
			if res.Succeeded != 5 {
				t.Fatalf("succeeded = %d, want 5", res.Succeeded)
			}
		})
	}
}

func TestRunEmptySetIsNoop(t *testing.T) {
	c := New(Static{}, &fakeExec{}, WithLogger(discardLogger()))
	if c.State() != NotStarted {
		t.Fatalf("initial state = %s", c.State())
	}

	res := c.Run(context.Background(), newSet(0), 4, time.Minute)

	if res.State != Completed || res.TotalTasks != 0 || res.Workers != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Elapsed < 0 {
		t.Fatalf("negative elapsed: %v", res.Elapsed)
	}
}

func TestRunWithoutWorkersLeavesTasksUnfinished(t *testing.T) {
	exec := &fakeExec{}
	obs := &eventRecorder{}
	c := New(Pool{}, exec, WithObserver(obs), WithLogger(discardLogger()))

	res := c.Run(context.Background(), newSet(5), 0, time.Minute)

	if res.State != Completed || res.Workers != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.TotalTasks != 5 || res.Unfinished != 5 || res.Succeeded != 0 {
		t.Fatalf("tally = %+v, want all 5 unfinished", res)
	}
	if len(exec.counts) != 0 {
		t.Fatalf("executed %d tasks without workers", len(exec.counts))
	}
	if len(obs.runs) != 1 || obs.runs[0].TotalTasks != 5 || obs.runs[0].Unfinished != 5 {
		t.Fatalf("unexpected summaries: %+v", obs.runs)
	}
}

func TestRunEmitsNoTaskEventsAfterSummary(t *testing.T) {
	exec := &fakeExec{delay: 200 * time.Millisecond}
	obs := &eventRecorder{}
	c := New(Static{}, exec, WithObserver(obs), WithLogger(discardLogger()), WithDrainGrace(0))
	set := newSet(4)

	res := c.Run(context.Background(), set, 2, 50*time.Millisecond)

	if res.State != TimedOut || res.Unfinished != 4 {
		t.Fatalf("unexpected result: %+v", res)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Wait(ctx); err != nil {
		t.Fatalf("workers did not stop: %v", err)
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.runs) != 1 {
		t.Fatalf("got %d summaries, want 1", len(obs.runs))
	}
	if len(obs.tasks) != 0 {
		t.Fatalf("got %d task events after the summary", len(obs.tasks))
	}
	for _, task := range set.Tasks() {
		if task.Status() == process.StatusProcessing {
			t.Fatalf("task %d still processing after Wait", task.Index)
		}
	}
}

func TestWaitWithoutRunReturnsImmediately(t *testing.T) {
	c := New(Static{}, &fakeExec{}, WithLogger(discardLogger()))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestRunTimesOutWithPartialResults(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(strategy.Name(), func(t *testing.T) {
			exec := &fakeExec{delay: 20 * time.Millisecond}
			obs := &eventRecorder{}
			c := New(strategy, exec, WithObserver(obs), WithLogger(discardLogger()), WithDrainGrace(5*time.Second))
			set := newSet(40)

			res := c.Run(context.Background(), set, 2, 70*time.Millisecond)

			if res.State != TimedOut {
				t.Fatalf("state = %s, want timed_out", res.State)
			}
			if res.Succeeded == 0 || res.Succeeded >= 40 {
				t.Fatalf("succeeded = %d, want a partial count", res.Succeeded)
			}
			if res.Succeeded+res.Failed+res.Unfinished != res.TotalTasks {
				t.Fatalf("tally does not add up: %+v", res)
			}
			if res.Elapsed > 2*time.Second {
				t.Fatalf("run took %v, expected to stop near the bound", res.Elapsed)
			}
			for _, task := range set.Tasks() {
				if task.Status() == process.StatusProcessing {
					t.Fatalf("task %d still processing after drain", task.Index)
				}
			}
			if len(obs.runs) != 1 || obs.runs[0].State != schema.RunTimedOut {
				t.Fatalf("unexpected summaries: %+v", obs.runs)
			}
		})
	}
}

func TestRunInterrupted(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(strategy.Name(), func(t *testing.T) {
			exec := &fakeExec{delay: 20 * time.Millisecond}
			c := New(strategy, exec, WithLogger(discardLogger()))
			ctx, cancel := context.WithCancel(context.Background())
			time.AfterFunc(50*time.Millisecond, cancel)

			res := c.Run(ctx, newSet(40), 2, time.Minute)

			if res.State != Interrupted {
				t.Fatalf("state = %s, want interrupted", res.State)
			}
			if res.Succeeded == 0 {
				t.Fatal("completed work was not preserved")
			}
			if res.Unfinished == 0 {
				t.Fatal("expected unclaimed tasks after interruption")
			}
		})
	}
}

func TestRunAlreadyCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := New(Pool{}, &fakeExec{}, WithLogger(discardLogger())).Run(ctx, newSet(10), 3, time.Minute)

	if res.State != Interrupted {
		t.Fatalf("state = %s, want interrupted", res.State)
	}
	if res.Succeeded+res.Unfinished != 10 {
		t.Fatalf("unexpected tally: %+v", res)
	}
}

func TestStrategyFor(t *testing.T) {
	tests := []struct {
		mode    string
		want    string
		wantErr bool
	}{
		{"static", "static", false},
		{"", "static", false},
		{"POOL", "pool", false},
		{"round-robin", "", true},
	}
	for _, tt := range tests {
		s, err := StrategyFor(tt.mode)
		if tt.wantErr {
			if err == nil {
				t.Errorf("StrategyFor(%q): expected error", tt.mode)
			}
			continue
		}
		if err != nil {
			t.Errorf("StrategyFor(%q): %v", tt.mode, err)
			continue
		}
		if s.Name() != tt.want {
			t.Errorf("StrategyFor(%q) = %s, want %s", tt.mode, s.Name(), tt.want)
		}
	}
}

// --- end to end with the real execution unit ---

func writeImages(t *testing.T, dir string, n int) []process.Ref {
	t.Helper()
	refs := make([]process.Ref, 0, n+1)
	for i := 0; i < n; i++ {
		src := image.NewRGBA(image.Rect(0, 0, 16, 8))
		for y := 0; y < 8; y++ {
			for x := 0; x < 16; x++ {
				src.Set(x, y, color.RGBA{R: uint8(10 * i), G: 120, B: 200, A: 255})
			}
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, src); err != nil {
			t.Fatalf("encode png: %v", err)
		}
		name := fmt.Sprintf("img-%02d.png", i)
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		refs = append(refs, process.Ref{Source: path, Dest: "gris_" + name})
	}
	return refs
}

func TestRunIsolatesCorruptInput(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(strategy.Name(), func(t *testing.T) {
			in := t.TempDir()
			out := filepath.Join(t.TempDir(), "out")
			refs := writeImages(t, in, 10)

			corrupt := filepath.Join(in, "broken.png")
			if err := os.WriteFile(corrupt, []byte("garbage"), 0o644); err != nil {
				t.Fatalf("write corrupt file: %v", err)
			}
			refs = append(refs[:5], append([]process.Ref{{Source: corrupt, Dest: "gris_broken.png"}}, refs[5:]...)...)

			sink := storage.NewLocalSink(out)
			if err := sink.Prepare(context.Background()); err != nil {
				t.Fatalf("prepare sink: %v", err)
			}
			unit := process.NewUnit(img.NewCodec(), &img.GrayscaleFilter{}, sink, discardLogger())
			set := process.NewSet(refs)

			res := New(strategy, unit, WithLogger(discardLogger())).Run(context.Background(), set, 3, time.Minute)

			if res.Succeeded != 10 || res.Failed != 1 || res.State != Completed {
				t.Fatalf("unexpected result: %+v", res)
			}
			for _, task := range set.Tasks() {
				snap := task.Snapshot()
				if snap.Source == corrupt {
					if snap.Status != process.StatusFailed || process.KindOf(snap.Err) != process.FailureDecode {
						t.Fatalf("corrupt task: %+v", snap)
					}
					continue
				}
				if snap.Status != process.StatusSucceeded {
					t.Fatalf("task %s affected by corrupt sibling: %+v", snap.Source, snap)
				}
				if _, err := os.Stat(filepath.Join(out, snap.Dest)); err != nil {
					t.Fatalf("output for %s missing: %v", snap.Source, err)
				}
			}
		})
	}
}

func TestStaticAndPoolAgree(t *testing.T) {
	in := t.TempDir()
	refs := writeImages(t, in, 12)

	results := make(map[string]RunResult)
	for _, strategy := range strategies {
		out := t.TempDir()
		unit := process.NewUnit(img.NewCodec(), &img.GrayscaleFilter{}, storage.NewLocalSink(out), discardLogger())
		results[strategy.Name()] = New(strategy, unit, WithLogger(discardLogger())).
			Run(context.Background(), process.NewSet(refs), 4, time.Minute)
	}

	static, pool := results["static"], results["pool"]
	if static.Succeeded != pool.Succeeded || static.Failed != pool.Failed {
		t.Fatalf("strategies disagree: static %+v pool %+v", static, pool)
	}
	if static.Succeeded != 12 {
		t.Fatalf("succeeded = %d, want 12", static.Succeeded)
	}
}

type slowFilter struct {
	img.GrayscaleFilter
	delay time.Duration
}

func (f *slowFilter) Apply(src image.Image, rows img.Rows) *image.NRGBA {
	time.Sleep(f.delay)
	return f.GrayscaleFilter.Apply(src, rows)
}

func TestRunAbandonedTasksDoNotWriteOutput(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	refs := writeImages(t, in, 2)

	unit := process.NewUnit(img.NewCodec(), &slowFilter{delay: 150 * time.Millisecond}, storage.NewLocalSink(out), discardLogger())
	c := New(Static{}, unit, WithLogger(discardLogger()), WithDrainGrace(0))

	res := c.Run(context.Background(), process.NewSet(refs), 1, 30*time.Millisecond)
	if res.State != TimedOut {
		t.Fatalf("state = %s, want timed_out", res.State)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Wait(ctx); err != nil {
		t.Fatalf("workers did not stop: %v", err)
	}

	entries, err := os.ReadDir(out)
	if err != nil {
		t.Fatalf("read output dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("abandoned tasks left %d entries in the output dir", len(entries))
	}
}
