// Package coordinator owns worker lifecycle for a batch run: dispatch,
// bounded waiting, cancellation and result aggregation.
package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-grayscaler/internal/observe"
	"github.com/tendant/simple-grayscaler/internal/partition"
	"github.com/tendant/simple-grayscaler/internal/process"
	"github.com/tendant/simple-grayscaler/pkg/schema"
)

// DefaultDrainGrace bounds how long a cancelled run waits for in-flight tasks.
const DefaultDrainGrace = 30 * time.Second

// State is the lifecycle state of a run.
type State string

const (
	NotStarted  State = "not_started"
	Dispatching State = "dispatching"
	Awaiting    State = "awaiting"
	Completed   State = "completed"
	TimedOut    State = "timed_out"
	Interrupted State = "interrupted"
)

// Executor drives one task to a terminal status.
type Executor interface {
	Execute(ctx context.Context, t *process.ImageTask) process.Snapshot
}

// RunResult is produced once per Run and is read-only afterwards.
type RunResult struct {
	RunID      string
	Strategy   string
	State      State
	Workers    int
	TotalTasks int
	Succeeded  int
	Failed     int
	Unfinished int
	Elapsed    time.Duration
}

type Coordinator struct {
	strategy Strategy
	exec     Executor
	observer observe.Observer
	logger   *slog.Logger
	grace    time.Duration
	location string

	mu      sync.Mutex
	state   State
	stopped chan struct{}
}

type Option func(*Coordinator)

func WithObserver(o observe.Observer) Option {
	return func(c *Coordinator) { c.observer = o }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithDrainGrace sets how long a timed out or interrupted run waits for
// in-flight tasks. Zero or negative means do not wait.
func WithDrainGrace(d time.Duration) Option {
	return func(c *Coordinator) { c.grace = d }
}

// WithOutputLocation sets the output location reported in run summaries.
func WithOutputLocation(loc string) Option {
	return func(c *Coordinator) { c.location = loc }
}

func New(strategy Strategy, exec Executor, opts ...Option) *Coordinator {
	c := &Coordinator{
		strategy: strategy,
		exec:     exec,
		observer: observe.Nop{},
		logger:   slog.Default(),
		grace:    DefaultDrainGrace,
		state:    NotStarted,
		stopped:  make(chan struct{}),
	}
	close(c.stopped)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the state of the current or most recent run.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Wait blocks until every worker of the most recent run has returned or ctx
// is done. Run may return before that when the drain grace runs out.
func (c *Coordinator) Wait(ctx context.Context) error {
	c.mu.Lock()
	stopped := c.stopped
	c.mu.Unlock()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Run processes set with min(workers, set.Len()) workers. It returns when all
// workers finish, when timeout elapses, or when ctx is cancelled; every
// outcome yields a RunResult covering the tasks that reached a terminal
// status. A non-positive timeout disables the bound.
//
// Workers still busy when Run returns are not told to stop mid-task, but
// they no longer write outputs and their task events are dropped: the run
// summary is always the last event of a run.
func (c *Coordinator) Run(ctx context.Context, set *process.Set, workers int, timeout time.Duration) RunResult {
	runID := uuid.NewString()
	logger := c.logger.With("run_id", runID, "strategy", c.strategy.Name())
	tasks := set.Tasks()
	effective := partition.Effective(len(tasks), workers)

	start := time.Now()
	gate := &eventGate{}
	if effective == 0 {
		if len(tasks) > 0 {
			logger.Warn("no workers requested, leaving all tasks unfinished", "tasks", len(tasks), "requested_workers", workers)
		} else {
			logger.Info("nothing to dispatch", "requested_workers", workers)
		}
		return c.finish(logger, runID, set, effective, Completed, start, gate, func() {})
	}

	c.setState(Dispatching)
	logger.Info("dispatching", "tasks", len(tasks), "workers", effective, "timeout", timeout)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Cancelling runCtx only stops claiming. Claimed tasks run under execCtx,
	// which ends once the run has been reported.
	execCtx, abandon := context.WithCancel(context.WithoutCancel(ctx))

	work := func(_ context.Context, workerID int, t *process.ImageTask) {
		snap := c.exec.Execute(execCtx, t)
		gate.emit(func() {
			c.observer.TaskFinished(taskEvent(runID, workerID, snap))
		})
	}

	done := make(chan error, 1)
	stopped := make(chan struct{})
	c.mu.Lock()
	c.stopped = stopped
	c.mu.Unlock()
	go func() {
		defer close(stopped)
		done <- c.strategy.Dispatch(runCtx, tasks, effective, work)
	}()
	c.setState(Awaiting)

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	final := Completed
	select {
	case err := <-done:
		if err != nil {
			final = Interrupted
			logger.Warn("run interrupted", "err", err)
		}
	case <-deadline:
		final = TimedOut
		logger.Error("run timed out, cancelling workers", "timeout", timeout)
		cancel()
		c.drain(logger, done)
	case <-ctx.Done():
		final = Interrupted
		logger.Warn("run interrupted, cancelling workers", "err", context.Cause(ctx))
		cancel()
		c.drain(logger, done)
	}

	return c.finish(logger, runID, set, effective, final, start, gate, abandon)
}

// drain waits up to the grace period for workers to return.
func (c *Coordinator) drain(logger *slog.Logger, done <-chan error) {
	if c.grace <= 0 {
		return
	}
	timer := time.NewTimer(c.grace)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			logger.Info("workers stopped", "err", err)
		}
	case <-timer.C:
		logger.Warn("workers still busy after drain grace, reporting partial results", "grace", c.grace)
	}
}

func (c *Coordinator) finish(logger *slog.Logger, runID string, set *process.Set, workers int, final State, start time.Time, gate *eventGate, abandon context.CancelFunc) RunResult {
	gate.close()
	abandon()

	elapsed := time.Since(start)
	tally := set.Tally()
	c.setState(final)

	res := RunResult{
		RunID:      runID,
		Strategy:   c.strategy.Name(),
		State:      final,
		Workers:    workers,
		TotalTasks: set.Len(),
		Succeeded:  tally.Succeeded,
		Failed:     tally.Failed,
		Unfinished: tally.Unfinished,
		Elapsed:    elapsed,
	}
	logger.Debug("run state", "state", final, "elapsed_ms", elapsed.Milliseconds())
	c.observer.RunFinished(c.summary(res))
	return res
}

func (c *Coordinator) summary(res RunResult) schema.RunSummary {
	return schema.RunSummary{
		RunID:          res.RunID,
		Strategy:       res.Strategy,
		State:          runState(res.State),
		Workers:        res.Workers,
		TotalTasks:     res.TotalTasks,
		Succeeded:      res.Succeeded,
		Failed:         res.Failed,
		Unfinished:     res.Unfinished,
		ElapsedMs:      res.Elapsed.Milliseconds(),
		OutputLocation: c.location,
		HappenedAt:     time.Now().Unix(),
	}
}

func runState(s State) schema.RunState {
	switch s {
	case TimedOut:
		return schema.RunTimedOut
	case Interrupted:
		return schema.RunInterrupted
	default:
		return schema.RunCompleted
	}
}

func taskEvent(runID string, workerID int, snap process.Snapshot) schema.TaskEvent {
	ev := schema.TaskEvent{
		RunID:      runID,
		TaskID:     snap.ID,
		WorkerID:   workerID,
		SourcePath: snap.Source,
		OutputName: snap.Dest,
		ElapsedMs:  snap.Elapsed.Milliseconds(),
		HappenedAt: time.Now().Unix(),
	}
	switch snap.Status {
	case process.StatusSucceeded:
		ev.Status = schema.TaskSucceeded
	case process.StatusFailed:
		ev.Status = schema.TaskFailed
	default:
		ev.Status = schema.TaskUnfinished
	}
	if snap.Err != nil {
		ev.FailureKind = string(snap.Err.Kind)
		ev.Error = snap.Err.Error()
	}
	return ev
}

// eventGate drops task events once the run summary is about to be emitted.
type eventGate struct {
	mu     sync.RWMutex
	closed bool
}

func (g *eventGate) emit(fn func()) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.closed {
		fn()
	}
}

func (g *eventGate) close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}
