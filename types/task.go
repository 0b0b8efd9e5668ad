package types

import "time"

// TaskPriority orders tasks across queue levels. Higher values are dequeued
// first.
type TaskPriority int

const (
	PriorityLow TaskPriority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// String returns the lowercase name of the priority.
func (p TaskPriority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskAssigned  TaskStatus = "assigned"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Terminal reports whether the status is final. A terminal task is never
// reassigned.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// Task is a unit of opaque work tracked through its lifecycle by the
// scheduler. The payload is never interpreted by the core.
type Task struct {
	// ID uniquely identifies the task. Generated when empty at submission.
	ID string `json:"id"`

	// Type is the capability tag an agent must declare to execute this task.
	Type string `json:"type"`

	// Requires lists additional capability tags beyond Type. Used by the
	// capability_match strategy for superset filtering.
	Requires []string `json:"requires,omitempty"`

	// Priority orders the task relative to other pending tasks.
	Priority TaskPriority `json:"priority"`

	// Payload is the opaque work description handed to the executor.
	Payload any `json:"payload,omitempty"`

	// Context holds arbitrary caller-supplied key/value context.
	Context map[string]any `json:"context,omitempty"`

	// MaxRetries bounds execution-failure retries. Assignment starvation is
	// never counted against it.
	MaxRetries int `json:"max_retries"`

	// RetryCount is the number of execution retries performed so far.
	// Invariant: RetryCount <= MaxRetries.
	RetryCount int `json:"retry_count"`

	// Status is the current lifecycle state.
	Status TaskStatus `json:"status"`

	// AssignedTo is the ID of the agent the task is assigned to, empty when
	// unassigned. At most one agent at any instant.
	AssignedTo string `json:"assigned_to,omitempty"`

	SubmittedAt time.Time `json:"submitted_at"`
	AssignedAt  time.Time `json:"assigned_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of the task. The payload is shared, matching its
// opaque-by-reference contract.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	if t.Requires != nil {
		cp.Requires = make([]string, len(t.Requires))
		copy(cp.Requires, t.Requires)
	}
	if t.Context != nil {
		cp.Context = make(map[string]any, len(t.Context))
		for k, v := range t.Context {
			cp.Context[k] = v
		}
	}
	return &cp
}

// TaskResult is the outcome an agent reports for an executed task.
type TaskResult struct {
	TaskID   string        `json:"task_id"`
	Success  bool          `json:"success"`
	Output   any           `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}
