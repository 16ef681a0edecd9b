package executor

import (
	"time"

	"github.com/skysweep/skysweep/pkg/domain"
)

// State is the lifecycle state of one check execution
type State string

const (
	StatePending   State = "PENDING"
	StateRunning   State = "RUNNING"
	StateCompleted State = "COMPLETED"
	// StateFailed marks an engine-level failure of the evaluator itself.
	// It is not a finding verdict; failed executions never produce findings.
	StateFailed State = "FAILED"
	// StateSkipped marks a check whose prerequisite resource kind could not
	// be collected in any in-scope region
	StateSkipped State = "SKIPPED"
)

// Execution is the record of one check's run within a scan
type Execution struct {
	CheckID     string               `json:"check_id"`
	State       State                `json:"state"`
	Err         error                `json:"-"`
	Error       string               `json:"error,omitempty"`
	StartedAt   time.Time            `json:"started_at,omitempty"`
	CompletedAt time.Time            `json:"completed_at,omitempty"`
	Results     []domain.CheckResult `json:"-"`
}

// ProgressFunc is invoked after every execution reaches a terminal state
type ProgressFunc func(Execution)
