// pkg/schema/events.go
package schema

type TaskStatus string

const (
	TaskSucceeded  TaskStatus = "succeeded"
	TaskFailed     TaskStatus = "failed"
	TaskUnfinished TaskStatus = "unfinished"
)

type RunState string

const (
	RunCompleted   RunState = "completed"
	RunTimedOut    RunState = "timed_out"
	RunInterrupted RunState = "interrupted"
)

// TaskEvent is emitted once per task that reaches a terminal status.
type TaskEvent struct {
	RunID       string     `json:"run_id"`
	TaskID      string     `json:"task_id"`
	WorkerID    int        `json:"worker_id"`
	SourcePath  string     `json:"source_path"`
	OutputName  string     `json:"output_name"`
	Status      TaskStatus `json:"status"`
	FailureKind string     `json:"failure_kind,omitempty"`
	Error       string     `json:"error,omitempty"`
	ElapsedMs   int64      `json:"elapsed_ms"`
	HappenedAt  int64      `json:"happened_at"`
}

// RunSummary is emitted once at the end of every run, whatever its outcome.
type RunSummary struct {
	RunID          string   `json:"run_id"`
	Strategy       string   `json:"strategy"`
	State          RunState `json:"state"`
	Workers        int      `json:"workers"`
	TotalTasks     int      `json:"total_tasks"`
	Succeeded      int      `json:"succeeded"`
	Failed         int      `json:"failed"`
	Unfinished     int      `json:"unfinished"`
	ElapsedMs      int64    `json:"elapsed_ms"`
	OutputLocation string   `json:"output_location,omitempty"`
	HappenedAt     int64    `json:"happened_at"`
}
