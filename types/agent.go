package types

import (
	"context"
	"time"
)

// AgentStatus represents the lifecycle state of a registered agent.
type AgentStatus string

const (
	AgentAvailable AgentStatus = "available"
	AgentBusy      AgentStatus = "busy"
	AgentOffline   AgentStatus = "offline"
	AgentError     AgentStatus = "error"
)

// AgentMetrics holds cumulative execution statistics for an agent.
type AgentMetrics struct {
	TasksCompleted  int64         `json:"tasks_completed"`
	TasksFailed     int64         `json:"tasks_failed"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
}

// Agent is a registered worker capable of executing tasks whose type matches
// one of its capability tags.
//
// CurrentLoad is mutated only through the registry's slot bookkeeping, which
// preserves 0 <= CurrentLoad <= MaxLoad.
type Agent struct {
	// ID uniquely identifies the agent. Generated when empty at registration.
	ID string `json:"id"`

	// Capabilities are the task-type tags this agent can execute.
	Capabilities []string `json:"capabilities"`

	// MaxLoad is the maximum number of concurrently assigned tasks.
	MaxLoad int `json:"max_load"`

	// CurrentLoad is the number of tasks currently assigned.
	CurrentLoad int `json:"current_load"`

	// Status is the current lifecycle state.
	Status AgentStatus `json:"status"`

	// ActiveTasks holds the IDs of tasks currently assigned to this agent.
	ActiveTasks []string `json:"active_tasks,omitempty"`

	// Metadata holds arbitrary key/value annotations.
	Metadata map[string]string `json:"metadata,omitempty"`

	// Metrics holds cumulative execution statistics.
	Metrics AgentMetrics `json:"metrics"`

	RegisteredAt  time.Time `json:"registered_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// HasCapability reports whether the agent declares the given capability tag.
func (a *Agent) HasCapability(tag string) bool {
	for _, c := range a.Capabilities {
		if c == tag {
			return true
		}
	}
	return false
}

// HasCapabilities reports whether the agent's capability set is a superset
// of the given tags.
func (a *Agent) HasCapabilities(tags []string) bool {
	for _, tag := range tags {
		if !a.HasCapability(tag) {
			return false
		}
	}
	return true
}

// LoadRatio returns CurrentLoad / MaxLoad.
func (a *Agent) LoadRatio() float64 {
	if a.MaxLoad <= 0 {
		return 1.0
	}
	return float64(a.CurrentLoad) / float64(a.MaxLoad)
}

// SpareCapacity returns the number of free task slots.
func (a *Agent) SpareCapacity() int {
	return a.MaxLoad - a.CurrentLoad
}

// Clone returns a deep copy of the agent.
func (a *Agent) Clone() *Agent {
	if a == nil {
		return nil
	}
	cp := *a
	if a.Capabilities != nil {
		cp.Capabilities = make([]string, len(a.Capabilities))
		copy(cp.Capabilities, a.Capabilities)
	}
	if a.ActiveTasks != nil {
		cp.ActiveTasks = make([]string, len(a.ActiveTasks))
		copy(cp.ActiveTasks, a.ActiveTasks)
	}
	if a.Metadata != nil {
		cp.Metadata = make(map[string]string, len(a.Metadata))
		for k, v := range a.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// AgentSnapshot is a versioned view of an agent's mutable fields used for
// cross-agent state synchronization. Versions increase monotonically per
// agent; a consumer holding version N ignores snapshots with version <= N.
type AgentSnapshot struct {
	AgentID     string            `json:"agent_id"`
	Version     int64             `json:"version"`
	Status      AgentStatus       `json:"status"`
	CurrentLoad int               `json:"current_load"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Clone returns a deep copy of the snapshot.
func (s *AgentSnapshot) Clone() *AgentSnapshot {
	if s == nil {
		return nil
	}
	cp := *s
	if s.Metadata != nil {
		cp.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// Executor is the boundary through which business logic enters the core.
// The scheduler invokes it with an assigned task and treats the outcome as
// opaque success or failure.
type Executor interface {
	// Execute runs the task and returns its result. A non-nil error or a
	// result with Success=false both count as an execution failure.
	Execute(ctx context.Context, task *Task) (*TaskResult, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, task *Task) (*TaskResult, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, task *Task) (*TaskResult, error) {
	return f(ctx, task)
}
