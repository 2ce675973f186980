// Package queue provides the shared work queue drained by the pooled
// dispatch model.
package queue

import (
	"sync"

	"github.com/tendant/simple-grayscaler/internal/process"
)

// WorkQueue is a FIFO of tasks populated once up front. Every task is handed
// out at most once, to exactly one caller. All methods are goroutine-safe.
type WorkQueue struct {
	mu    sync.Mutex
	tasks []*process.ImageTask
	head  int
}

// New copies tasks into a new queue.
func New(tasks []*process.ImageTask) *WorkQueue {
	return &WorkQueue{tasks: append([]*process.ImageTask(nil), tasks...)}
}

// Pop removes and returns the next task. ok is false once the queue is empty,
// which for a pre-filled queue means all work has been handed out.
func (q *WorkQueue) Pop() (t *process.ImageTask, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head >= len(q.tasks) {
		return nil, false
	}
	t = q.tasks[q.head]
	q.tasks[q.head] = nil
	q.head++
	return t, true
}

// Len returns the number of tasks not yet handed out.
func (q *WorkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks) - q.head
}

// Drain removes and returns every remaining task.
func (q *WorkQueue) Drain() []*process.ImageTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	rest := append([]*process.ImageTask(nil), q.tasks[q.head:]...)
	q.tasks = nil
	q.head = 0
	return rest
}
