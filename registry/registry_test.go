package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcore/events"
	"github.com/BaSui01/agentcore/types"
)

func newTestRegistry(t *testing.T) (*Registry, *events.Bus) {
	t.Helper()
	bus := events.NewBus(64, zap.NewNop())
	t.Cleanup(bus.Close)
	return New(bus, zap.NewNop()), bus
}

func drainEvents(sub *events.Subscription) []types.Event {
	var out []types.Event
	for {
		select {
		case evt := <-sub.Events():
			out = append(out, evt)
		case <-time.After(100 * time.Millisecond):
			return out
		}
	}
}

func TestRegistry_Register(t *testing.T) {
	reg, bus := newTestRegistry(t)
	sub := bus.Subscribe(types.EventAgentRegistered)

	id, err := reg.Register(&types.Agent{
		ID:           "agent-a",
		Capabilities: []string{"scan"},
		MaxLoad:      2,
	})
	require.NoError(t, err)
	assert.Equal(t, "agent-a", id)

	got, err := reg.Get("agent-a")
	require.NoError(t, err)
	assert.Equal(t, types.AgentAvailable, got.Status)
	assert.Equal(t, 0, got.CurrentLoad)
	assert.False(t, got.RegisteredAt.IsZero())
	assert.False(t, got.LastHeartbeat.IsZero())

	evts := drainEvents(sub)
	require.Len(t, evts, 1)
	assert.Equal(t, "agent-a", evts[0].AgentID)
}

func TestRegistry_RegisterGeneratesID(t *testing.T) {
	reg, _ := newTestRegistry(t)

	id, err := reg.Register(&types.Agent{MaxLoad: 1})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Register(&types.Agent{ID: "agent-a", MaxLoad: 1})
	require.NoError(t, err)

	_, err = reg.Register(&types.Agent{ID: "agent-a", MaxLoad: 1})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrDuplicateAgent))
}

func TestRegistry_RegisterInvalidCapacity(t *testing.T) {
	reg, _ := newTestRegistry(t)

	for _, maxLoad := range []int{0, -1} {
		_, err := reg.Register(&types.Agent{ID: "agent-a", MaxLoad: maxLoad})
		require.Error(t, err)
		assert.True(t, types.IsCode(err, types.ErrInvalidCapacity))
	}
}

func TestRegistry_Unregister(t *testing.T) {
	reg, bus := newTestRegistry(t)
	sub := bus.Subscribe(types.EventAgentUnregistered)

	_, err := reg.Register(&types.Agent{ID: "agent-a", MaxLoad: 1})
	require.NoError(t, err)

	require.NoError(t, reg.Unregister("agent-a"))

	_, err = reg.Get("agent-a")
	assert.True(t, types.IsCode(err, types.ErrAgentNotFound))

	err = reg.Unregister("agent-a")
	assert.True(t, types.IsCode(err, types.ErrAgentNotFound))

	evts := drainEvents(sub)
	require.Len(t, evts, 1)
}

func TestRegistry_ListOrder(t *testing.T) {
	reg, _ := newTestRegistry(t)

	for _, id := range []string{"c", "a", "b"} {
		_, err := reg.Register(&types.Agent{ID: id, MaxLoad: 1})
		require.NoError(t, err)
	}

	agents := reg.List()
	require.Len(t, agents, 3)
	assert.Equal(t, "c", agents[0].ID)
	assert.Equal(t, "a", agents[1].ID)
	assert.Equal(t, "b", agents[2].ID)
}

func TestRegistry_GetReturnsCopy(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Register(&types.Agent{ID: "agent-a", MaxLoad: 2, Capabilities: []string{"scan"}})
	require.NoError(t, err)

	got, err := reg.Get("agent-a")
	require.NoError(t, err)
	got.Capabilities[0] = "mutated"
	got.CurrentLoad = 99

	fresh, err := reg.Get("agent-a")
	require.NoError(t, err)
	assert.Equal(t, "scan", fresh.Capabilities[0])
	assert.Equal(t, 0, fresh.CurrentLoad)
}

func TestRegistry_UpdateState(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Register(&types.Agent{ID: "agent-a", MaxLoad: 1})
	require.NoError(t, err)

	status := types.AgentError
	err = reg.UpdateState("agent-a", StateUpdate{
		Status:   &status,
		Metadata: map[string]string{"region": "eu-1"},
	})
	require.NoError(t, err)

	got, err := reg.Get("agent-a")
	require.NoError(t, err)
	assert.Equal(t, types.AgentError, got.Status)
	assert.Equal(t, "eu-1", got.Metadata["region"])

	err = reg.UpdateState("missing", StateUpdate{})
	assert.True(t, types.IsCode(err, types.ErrAgentNotFound))
}

func TestRegistry_HeartbeatRevives(t *testing.T) {
	reg, bus := newTestRegistry(t)
	sub := bus.Subscribe(types.EventAgentOnline)

	_, err := reg.Register(&types.Agent{ID: "agent-a", MaxLoad: 1})
	require.NoError(t, err)

	offline := types.AgentOffline
	require.NoError(t, reg.UpdateState("agent-a", StateUpdate{Status: &offline}))

	require.NoError(t, reg.Heartbeat("agent-a"))

	got, err := reg.Get("agent-a")
	require.NoError(t, err)
	assert.Equal(t, types.AgentAvailable, got.Status)

	evts := drainEvents(sub)
	require.Len(t, evts, 1)
	assert.Equal(t, "agent-a", evts[0].AgentID)
}

func TestRegistry_ReserveRelease(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Register(&types.Agent{ID: "agent-a", MaxLoad: 2})
	require.NoError(t, err)

	require.NoError(t, reg.ReserveSlot("agent-a", "t-1"))
	require.NoError(t, reg.ReserveSlot("agent-a", "t-2"))

	got, err := reg.Get("agent-a")
	require.NoError(t, err)
	assert.Equal(t, 2, got.CurrentLoad)
	assert.Equal(t, types.AgentBusy, got.Status)
	assert.ElementsMatch(t, []string{"t-1", "t-2"}, got.ActiveTasks)

	// Full agent rejects further reservations.
	err = reg.ReserveSlot("agent-a", "t-3")
	require.Error(t, err)

	reg.ReleaseSlot("agent-a", "t-1")
	got, err = reg.Get("agent-a")
	require.NoError(t, err)
	assert.Equal(t, 1, got.CurrentLoad)
	assert.Equal(t, types.AgentAvailable, got.Status)
	assert.Equal(t, []string{"t-2"}, got.ActiveTasks)
}

func TestRegistry_ReleaseBelowZeroPanics(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Register(&types.Agent{ID: "agent-a", MaxLoad: 1})
	require.NoError(t, err)

	assert.Panics(t, func() {
		reg.ReleaseSlot("agent-a", "t-1")
	})
}

func TestRegistry_ReleaseUnknownAgent(t *testing.T) {
	reg, _ := newTestRegistry(t)

	// Unregistered mid-flight: release is a no-op, not a panic.
	assert.NotPanics(t, func() {
		reg.ReleaseSlot("gone", "t-1")
	})
}

func TestRegistry_RecordResult(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Register(&types.Agent{ID: "agent-a", MaxLoad: 1})
	require.NoError(t, err)

	reg.RecordResult("agent-a", true, 100*time.Millisecond)
	got, err := reg.Get("agent-a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Metrics.TasksCompleted)
	assert.Equal(t, 100*time.Millisecond, got.Metrics.AvgResponseTime)

	reg.RecordResult("agent-a", false, 200*time.Millisecond)
	got, err = reg.Get("agent-a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Metrics.TasksFailed)
	// EMA with alpha 0.2: 0.8*100ms + 0.2*200ms = 120ms.
	assert.Equal(t, 120*time.Millisecond, got.Metrics.AvgResponseTime)
}

func TestRegistry_SnapshotsVersionBump(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Register(&types.Agent{ID: "agent-a", MaxLoad: 2})
	require.NoError(t, err)

	before := reg.Snapshots()
	require.Len(t, before, 1)

	require.NoError(t, reg.ReserveSlot("agent-a", "t-1"))

	after := reg.Snapshots()
	require.Len(t, after, 1)
	assert.Greater(t, after[0].Version, before[0].Version)
	assert.Equal(t, 1, after[0].CurrentLoad)
}

func TestRegistry_ExportImport(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Register(&types.Agent{ID: "agent-a", MaxLoad: 2, Capabilities: []string{"scan"}})
	require.NoError(t, err)
	require.NoError(t, reg.ReserveSlot("agent-a", "t-1"))

	exported := reg.Export()

	fresh, _ := newTestRegistry(t)
	restored := fresh.Import(exported)
	assert.Equal(t, 1, restored)

	got, err := fresh.Get("agent-a")
	require.NoError(t, err)
	// Assignments do not survive a restart.
	assert.Equal(t, 0, got.CurrentLoad)
	assert.Equal(t, types.AgentOffline, got.Status)
	assert.Equal(t, []string{"scan"}, got.Capabilities)

	// Import never clobbers an already-registered agent.
	assert.Equal(t, 0, fresh.Import(exported))
}
