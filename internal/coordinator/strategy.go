package coordinator

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/tendant/simple-grayscaler/internal/partition"
	"github.com/tendant/simple-grayscaler/internal/process"
	"github.com/tendant/simple-grayscaler/internal/queue"
)

// WorkFunc processes one task on behalf of a worker.
type WorkFunc func(ctx context.Context, workerID int, t *process.ImageTask)

// Strategy distributes tasks among a fixed number of workers.
type Strategy interface {
	Name() string

	// Dispatch runs exactly workers goroutines and blocks until all of them
	// return. Workers stop claiming tasks once ctx is done; in that case the
	// context error is returned.
	Dispatch(ctx context.Context, tasks []*process.ImageTask, workers int, work WorkFunc) error
}

// StrategyFor maps a dispatch mode name to its strategy.
func StrategyFor(mode string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "static":
		return Static{}, nil
	case "pool":
		return Pool{}, nil
	default:
		return nil, fmt.Errorf("unsupported dispatch mode: %q (supported: static, pool)", mode)
	}
}

// Static gives each worker a contiguous, disjoint range of the task list.
type Static struct{}

func (Static) Name() string { return "static" }

func (Static) Dispatch(ctx context.Context, tasks []*process.ImageTask, workers int, work WorkFunc) error {
	var g errgroup.Group
	for _, p := range partition.Split(len(tasks), workers) {
		g.Go(func() error {
			for i := p.Start; i < p.End; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				work(ctx, p.WorkerID, tasks[i])
			}
			return nil
		})
	}
	return g.Wait()
}

// Pool runs workers that pull tasks from a shared queue until it is empty.
// On cancellation the queue is drained and the error reports how many tasks
// were never claimed.
type Pool struct{}

func (Pool) Name() string { return "pool" }

func (Pool) Dispatch(ctx context.Context, tasks []*process.ImageTask, workers int, work WorkFunc) error {
	q := queue.New(tasks)

	var g errgroup.Group
	for id := range partition.Effective(len(tasks), workers) {
		g.Go(func() error {
			for {
				if err := ctx.Err(); err != nil {
					// First worker to notice empties the queue for everyone.
					if rest := q.Drain(); len(rest) > 0 {
						return fmt.Errorf("%d tasks never claimed: %w", len(rest), err)
					}
					return nil
				}
				t, ok := q.Pop()
				if !ok {
					return nil
				}
				work(ctx, id, t)
			}
		})
	}
	return g.Wait()
}
