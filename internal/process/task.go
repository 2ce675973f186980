// internal/process/task.go
package process

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a single image task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusProcessing TaskStatus = "processing"
	StatusSucceeded  TaskStatus = "succeeded"
	StatusFailed     TaskStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s TaskStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// FailureKind classifies why a task failed.
type FailureKind string

const (
	FailureDecode FailureKind = "decode"
	FailureIO     FailureKind = "io"
	FailureEncode FailureKind = "encode"
	FailurePanic  FailureKind = "panic"
)

// TaskError is the typed outcome of a failed task. It never escapes the
// execution unit; it is recorded on the task instead.
type TaskError struct {
	Kind   FailureKind
	Source string
	Err    error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Kind, filepath.Base(e.Source), e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// KindOf returns the failure kind carried by err, or "" when err is not a TaskError.
func KindOf(err error) FailureKind {
	var te *TaskError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

// Ref points at one input file and the output name derived from it.
type Ref struct {
	Source string
	Dest   string
}

// ImageTask is one unit of work. Status fields are guarded so the coordinator
// can read them while the owning worker is still running.
type ImageTask struct {
	ID     string
	Index  int
	Source string
	Dest   string

	mu      sync.Mutex
	status  TaskStatus
	err     *TaskError
	elapsed time.Duration
}

// Snapshot is a consistent copy of a task's mutable state.
type Snapshot struct {
	ID      string
	Index   int
	Source  string
	Dest    string
	Status  TaskStatus
	Err     *TaskError
	Elapsed time.Duration
}

func NewTask(index int, ref Ref) *ImageTask {
	return &ImageTask{
		ID:     uuid.NewString(),
		Index:  index,
		Source: ref.Source,
		Dest:   ref.Dest,
		status: StatusPending,
	}
}

// Claim moves a pending task to processing. It returns false if the task was
// already claimed.
func (t *ImageTask) Claim() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusPending {
		return false
	}
	t.status = StatusProcessing
	return true
}

// Succeed marks the task succeeded. Terminal states are never overwritten.
func (t *ImageTask) Succeed(elapsed time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Terminal() {
		return false
	}
	t.status = StatusSucceeded
	t.elapsed = elapsed
	return true
}

// Fail marks the task failed with the given cause.
func (t *ImageTask) Fail(cause *TaskError, elapsed time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Terminal() {
		return false
	}
	t.status = StatusFailed
	t.err = cause
	t.elapsed = elapsed
	return true
}

func (t *ImageTask) Status() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *ImageTask) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		ID:      t.ID,
		Index:   t.Index,
		Source:  t.Source,
		Dest:    t.Dest,
		Status:  t.status,
		Err:     t.err,
		Elapsed: t.elapsed,
	}
}

// Set is the ordered, structurally immutable collection of tasks for one run.
type Set struct {
	tasks []*ImageTask
}

func NewSet(refs []Ref) *Set {
	tasks := make([]*ImageTask, len(refs))
	for i, ref := range refs {
		tasks[i] = NewTask(i, ref)
	}
	return &Set{tasks: tasks}
}

// Tasks returns the tasks in index order. Callers must not reslice or append.
func (s *Set) Tasks() []*ImageTask { return s.tasks }

func (s *Set) Len() int { return len(s.tasks) }

// Tally holds counts of tasks per status.
type Tally struct {
	Succeeded  int
	Failed     int
	Unfinished int
}

// Tally counts final statuses. Tasks still pending or processing are unfinished.
func (s *Set) Tally() Tally {
	var tally Tally
	for _, t := range s.tasks {
		switch t.Status() {
		case StatusSucceeded:
			tally.Succeeded++
		case StatusFailed:
			tally.Failed++
		default:
			tally.Unfinished++
		}
	}
	return tally
}
