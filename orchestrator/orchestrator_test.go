package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcore/config"
	"github.com/BaSui01/agentcore/registry"
	"github.com/BaSui01/agentcore/types"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Scheduler.Tick = 10 * time.Millisecond
	cfg.Registry.MonitorInterval = 10 * time.Millisecond
	cfg.Metrics.GaugeInterval = 10 * time.Millisecond
	cfg.Comms.InitialDelay = time.Millisecond
	cfg.Comms.MaxDelay = 5 * time.Millisecond
	return cfg
}

func TestOrchestrator_TaskRoundTrip(t *testing.T) {
	orch, err := New(testConfig(), WithLogger(zap.NewNop()))
	require.NoError(t, err)

	sub := orch.Events(types.EventTaskCompleted)

	require.NoError(t, orch.Start(context.Background()))
	defer orch.Stop()

	agentID, err := orch.RegisterAgent(&types.Agent{
		ID:           "worker-1",
		MaxLoad:      4,
		Capabilities: []string{"scan"},
	})
	require.NoError(t, err)
	orch.BindExecutor(agentID, types.ExecutorFunc(func(ctx context.Context, task *types.Task) (*types.TaskResult, error) {
		return &types.TaskResult{TaskID: task.ID, Success: true}, nil
	}))

	taskID, err := orch.SubmitTask(&types.Task{Type: "scan", Priority: types.PriorityHigh})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		task, err := orch.TaskStatus(taskID)
		return err == nil && task.Status == types.TaskCompleted
	}, 2*time.Second, 5*time.Millisecond)

	select {
	case evt := <-sub.Events():
		assert.Equal(t, taskID, evt.TaskID)
		assert.Equal(t, agentID, evt.AgentID)
	case <-time.After(time.Second):
		t.Fatal("no task-completed event observed")
	}

	stats := orch.QueueStatistics()
	assert.Equal(t, 1, stats.ByStatus[types.TaskCompleted])

	health, err := orch.AgentHealth(agentID)
	require.NoError(t, err)
	assert.Equal(t, 0, health.CurrentLoad)
	assert.Equal(t, int64(1), health.Metrics.TasksCompleted)
	assert.Len(t, orch.Agents(), 1)
}

func TestOrchestrator_MessagingAndCollaboration(t *testing.T) {
	orch, err := New(testConfig(), WithLogger(zap.NewNop()))
	require.NoError(t, err)
	require.NoError(t, orch.Start(context.Background()))
	defer orch.Stop()

	orch.RegisterHandler("analyst-1", func(ctx context.Context, msg *types.Message) (any, error) {
		return "approve", nil
	})
	orch.RegisterHandler("analyst-2", func(ctx context.Context, msg *types.Message) (any, error) {
		return "approve", nil
	})
	orch.RegisterHandler("analyst-3", func(ctx context.Context, msg *types.Message) (any, error) {
		return "reject", nil
	})

	msgID, err := orch.Send(context.Background(), &types.Message{
		From:    "coordinator",
		To:      "analyst-1",
		Type:    types.MessageRequest,
		Payload: "ping",
	}, 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		msg, err := orch.MessageStatus(msgID)
		return err == nil && msg.Status == types.MessageDelivered
	}, time.Second, time.Millisecond)

	collabID, err := orch.RequestCollaboration(context.Background(), "coordinator",
		[]string{"analyst-1", "analyst-2", "analyst-3"}, "verdict?",
		types.CollaborationConfig{Strategy: types.AggregateMajority, Timeout: time.Second})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		collab, err := orch.Collaboration(collabID)
		return err == nil && collab.Status == types.CollaborationCompleted
	}, 2*time.Second, time.Millisecond)

	collab, err := orch.Collaboration(collabID)
	require.NoError(t, err)
	assert.Equal(t, "approve", collab.Result)
}

func TestOrchestrator_CancelNotifiesAgent(t *testing.T) {
	orch, err := New(testConfig(), WithLogger(zap.NewNop()))
	require.NoError(t, err)
	require.NoError(t, orch.Start(context.Background()))
	defer orch.Stop()

	notified := make(chan string, 1)
	orch.RegisterHandler("worker-1", func(ctx context.Context, msg *types.Message) (any, error) {
		if data, ok := msg.Payload.(map[string]any); ok {
			if id, ok := data["cancelled_task"].(string); ok {
				notified <- id
			}
		}
		return nil, nil
	})

	// No executor bound: the task stays assigned until cancelled.
	_, err = orch.RegisterAgent(&types.Agent{ID: "worker-1", MaxLoad: 1, Capabilities: []string{"scan"}})
	require.NoError(t, err)

	taskID, err := orch.SubmitTask(&types.Task{Type: "scan"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		task, err := orch.TaskStatus(taskID)
		return err == nil && task.Status == types.TaskAssigned
	}, time.Second, time.Millisecond)

	require.NoError(t, orch.CancelTask(taskID))

	select {
	case id := <-notified:
		assert.Equal(t, taskID, id)
	case <-time.After(time.Second):
		t.Fatal("agent never saw the cancellation notice")
	}

	health, err := orch.AgentHealth("worker-1")
	require.NoError(t, err)
	assert.Equal(t, 0, health.CurrentLoad)
}

func TestOrchestrator_StateSync(t *testing.T) {
	orch, err := New(testConfig(), WithLogger(zap.NewNop()))
	require.NoError(t, err)
	require.NoError(t, orch.Start(context.Background()))
	defer orch.Stop()

	synced := make(chan struct{}, 1)
	orch.RegisterHandler("worker-1", func(ctx context.Context, msg *types.Message) (any, error) {
		if msg.Type == types.MessageStateSync {
			synced <- struct{}{}
		}
		return nil, nil
	})

	orch.UpdateSharedState("worker-2", map[string]any{"phase": "report"})
	require.NoError(t, orch.SynchronizeStates(context.Background(), []string{"worker-1"}))

	select {
	case <-synced:
	case <-time.After(time.Second):
		t.Fatal("state sync never reached the agent")
	}
}

func TestOrchestrator_SnapshotRestore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	store := registry.NewRedisSnapshotStore(client, registry.RedisSnapshotConfig{}, zap.NewNop())

	cfg := testConfig()

	first, err := New(cfg, WithLogger(zap.NewNop()), WithSnapshotStore(store))
	require.NoError(t, err)
	require.NoError(t, first.Start(context.Background()))

	_, err = first.RegisterAgent(&types.Agent{ID: "worker-1", MaxLoad: 2, Capabilities: []string{"scan"}})
	require.NoError(t, err)
	first.Stop()

	// A fresh orchestrator on the same store sees the persisted fleet.
	second, err := New(cfg, WithLogger(zap.NewNop()), WithSnapshotStore(store))
	require.NoError(t, err)
	require.NoError(t, second.Start(context.Background()))
	defer second.Stop()

	agents := second.Agents()
	require.Len(t, agents, 1)
	assert.Equal(t, "worker-1", agents[0].ID)
	// Restored agents wait for a heartbeat before taking work.
	assert.Equal(t, types.AgentOffline, agents[0].Status)
}

func TestOrchestrator_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Scheduler.Strategy = "coin_flip"

	_, err := New(cfg)
	require.Error(t, err)
}

func TestOrchestrator_StartStopIdempotent(t *testing.T) {
	orch, err := New(testConfig(), WithLogger(zap.NewNop()))
	require.NoError(t, err)

	require.NoError(t, orch.Start(context.Background()))
	require.NoError(t, orch.Start(context.Background()))
	orch.Stop()
	orch.Stop()
}

func TestOrchestrator_StopUnblocksWaitingExecutor(t *testing.T) {
	orch, err := New(testConfig(), WithLogger(zap.NewNop()))
	require.NoError(t, err)
	require.NoError(t, orch.Start(context.Background()))

	agentID, err := orch.RegisterAgent(&types.Agent{
		ID:           "worker-1",
		MaxLoad:      1,
		Capabilities: []string{"work"},
	})
	require.NoError(t, err)

	started := make(chan struct{})
	orch.BindExecutor(agentID, types.ExecutorFunc(func(ctx context.Context, task *types.Task) (*types.TaskResult, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}))

	_, err = orch.SubmitTask(&types.Task{Type: "work"})
	require.NoError(t, err)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("executor never started")
	}

	// The executor only returns once Stop cancels the run context, so a
	// bounded Stop proves shutdown is not serialized behind it.
	done := make(chan struct{})
	go func() {
		orch.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked behind an executor waiting for cancellation")
	}
}
