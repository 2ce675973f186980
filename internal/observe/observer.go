// Package observe defines the capability through which the coordinator
// reports task and run outcomes.
package observe

import (
	"log/slog"

	"github.com/tendant/simple-grayscaler/pkg/schema"
)

// Observer receives task and run events. Implementations must be safe for
// concurrent use; TaskFinished is called from worker goroutines.
type Observer interface {
	TaskFinished(ev schema.TaskEvent)
	RunFinished(sum schema.RunSummary)
}

// Multi fans events out to every non-nil observer in order.
type Multi []Observer

func (m Multi) TaskFinished(ev schema.TaskEvent) {
	for _, o := range m {
		if o != nil {
			o.TaskFinished(ev)
		}
	}
}

func (m Multi) RunFinished(sum schema.RunSummary) {
	for _, o := range m {
		if o != nil {
			o.RunFinished(sum)
		}
	}
}

// Nop discards all events.
type Nop struct{}

func (Nop) TaskFinished(schema.TaskEvent)  {}
func (Nop) RunFinished(schema.RunSummary) {}

// LogObserver writes run summaries to a structured logger. Task outcomes are
// logged at debug level since the execution unit already logs them.
type LogObserver struct {
	logger *slog.Logger
}

func NewLogObserver(logger *slog.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

func (o *LogObserver) TaskFinished(ev schema.TaskEvent) {
	o.logger.Debug("task finished",
		"run_id", ev.RunID,
		"task_id", ev.TaskID,
		"worker_id", ev.WorkerID,
		"status", ev.Status,
		"elapsed_ms", ev.ElapsedMs)
}

func (o *LogObserver) RunFinished(sum schema.RunSummary) {
	attrs := []any{
		"run_id", sum.RunID,
		"strategy", sum.Strategy,
		"state", sum.State,
		"workers", sum.Workers,
		"total", sum.TotalTasks,
		"succeeded", sum.Succeeded,
		"failed", sum.Failed,
		"unfinished", sum.Unfinished,
		"elapsed_ms", sum.ElapsedMs,
	}
	if sum.State == schema.RunCompleted {
		o.logger.Info("run finished", attrs...)
		return
	}
	o.logger.Warn("run finished early", attrs...)
}
