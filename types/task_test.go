package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskStatus_Terminal(t *testing.T) {
	tests := []struct {
		status   TaskStatus
		terminal bool
	}{
		{TaskPending, false},
		{TaskAssigned, false},
		{TaskRunning, false},
		{TaskCompleted, true},
		{TaskFailed, true},
		{TaskCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.Terminal())
		})
	}
}

func TestTaskPriority_Ordering(t *testing.T) {
	assert.True(t, PriorityCritical > PriorityHigh)
	assert.True(t, PriorityHigh > PriorityNormal)
	assert.True(t, PriorityNormal > PriorityLow)
}

func TestTaskPriority_String(t *testing.T) {
	assert.Equal(t, "low", PriorityLow.String())
	assert.Equal(t, "normal", PriorityNormal.String())
	assert.Equal(t, "high", PriorityHigh.String())
	assert.Equal(t, "critical", PriorityCritical.String())
	assert.Equal(t, "unknown", TaskPriority(42).String())
}

func TestTask_Clone(t *testing.T) {
	task := &Task{
		ID:       "t-1",
		Type:     "scan",
		Requires: []string{"scan", "web"},
		Context:  map[string]any{"target": "example.com"},
	}

	cp := task.Clone()
	cp.Requires[0] = "changed"
	cp.Context["target"] = "other"

	assert.Equal(t, "scan", task.Requires[0])
	assert.Equal(t, "example.com", task.Context["target"])
}

func TestAgent_Capabilities(t *testing.T) {
	a := &Agent{Capabilities: []string{"scan", "browse", "generate"}}

	assert.True(t, a.HasCapability("scan"))
	assert.False(t, a.HasCapability("deploy"))
	assert.True(t, a.HasCapabilities([]string{"scan", "browse"}))
	assert.False(t, a.HasCapabilities([]string{"scan", "deploy"}))
	assert.True(t, a.HasCapabilities(nil))
}

func TestAgent_LoadRatio(t *testing.T) {
	a := &Agent{MaxLoad: 4, CurrentLoad: 1}
	assert.InDelta(t, 0.25, a.LoadRatio(), 1e-9)
	assert.Equal(t, 3, a.SpareCapacity())

	zero := &Agent{MaxLoad: 0}
	assert.Equal(t, 1.0, zero.LoadRatio())
}
