package core

import "time"

// NodeStatus is the execution status of a single node within a run.
type NodeStatus string

// Node statuses.
const (
	NodeStatusPending NodeStatus = "pending"
	NodeStatusRunning NodeStatus = "running"
	NodeStatusSuccess NodeStatus = "success"
	NodeStatusFailed  NodeStatus = "failed"
	NodeStatusSkipped NodeStatus = "skipped"
)

// Terminal reports whether the status is final.
func (s NodeStatus) Terminal() bool {
	return s == NodeStatusSuccess || s == NodeStatusFailed || s == NodeStatusSkipped
}

// RunStatus is the overall status of a run.
type RunStatus string

// Run statuses. A run is partial when it was cancelled before every node
// reached a terminal state through normal scheduling.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusPartial   RunStatus = "partial"
)

// NodeResult records the outcome of one node's execution.
type NodeResult struct {
	Name         string
	Status       NodeStatus
	Error        string
	RowsAffected int64
	StartedAt    time.Time
	CompletedAt  time.Time
}

// Duration returns the wall-clock execution time of the node.
func (r *NodeResult) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.CompletedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// Run is one invocation of the scheduler over a compiled graph. It exists
// only for the duration of the invocation; nothing about it is persisted
// beyond the report it carries.
type Run struct {
	ID          string
	Environment string
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt time.Time
	Error       string

	// Results maps node name to its execution result. Populated as the
	// scheduler drives nodes to terminal states.
	Results map[string]*NodeResult
}

// Counts returns the number of nodes per terminal status.
func (r *Run) Counts() (success, failed, skipped int) {
	for _, res := range r.Results {
		switch res.Status {
		case NodeStatusSuccess:
			success++
		case NodeStatusFailed:
			failed++
		case NodeStatusSkipped:
			skipped++
		}
	}
	return success, failed, skipped
}

// Failed reports whether any node in the run failed.
func (r *Run) Failed() bool {
	_, failed, _ := r.Counts()
	return failed > 0
}

// TestResult is the outcome of evaluating one test specification.
type TestResult struct {
	Model    string
	Column   string
	Kind     TestKind
	Relation string
	Passed   bool
	// FailingRows is the number of offending rows. For unique tests this
	// is the count of distinct duplicated values, not the total number of
	// duplicate rows.
	FailingRows int64
	// Error is set when the test query itself failed to execute.
	Error    string
	Duration time.Duration
}
