package scheduler

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/BaSui01/agentcore/balancer"
	"github.com/BaSui01/agentcore/events"
	"github.com/BaSui01/agentcore/registry"
	"github.com/BaSui01/agentcore/types"
)

// TestScheduler_InvariantsUnderRandomOps drives the scheduler with a random
// interleaving of submissions, assignment passes, result reports, and
// cancellations, then checks the structural invariants that must hold after
// any such sequence:
//
//   - agent load stays within [0, MaxLoad]
//   - every agent's load equals the number of tasks assigned to it
//   - RetryCount never exceeds MaxRetries
//   - terminal tasks keep no agent binding
//   - queue depth equals the number of pending tasks
func TestScheduler_InvariantsUnderRandomOps(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		bus := events.NewBus(1024, zap.NewNop())
		defer bus.Close()
		reg := registry.New(bus, zap.NewNop())

		strategy := rapid.SampledFrom([]string{
			balancer.StrategyRoundRobin,
			balancer.StrategyLeastLoaded,
			balancer.StrategyCapabilityMatch,
			balancer.StrategyPriorityBased,
		}).Draw(rt, "strategy")

		sched, err := New(reg, Config{Strategy: strategy}, bus, zap.NewNop())
		require.NoError(t, err)

		numAgents := rapid.IntRange(1, 4).Draw(rt, "numAgents")
		maxLoads := make(map[string]int, numAgents)
		for i := 0; i < numAgents; i++ {
			id := fmt.Sprintf("agent-%d", i)
			maxLoad := rapid.IntRange(1, 3).Draw(rt, fmt.Sprintf("maxLoad%d", i))
			_, err := reg.Register(&types.Agent{
				ID:           id,
				MaxLoad:      maxLoad,
				Capabilities: []string{"work"},
			})
			require.NoError(t, err)
			maxLoads[id] = maxLoad
		}

		var submitted []string
		numOps := rapid.IntRange(1, 40).Draw(rt, "numOps")
		for op := 0; op < numOps; op++ {
			switch rapid.IntRange(0, 4).Draw(rt, fmt.Sprintf("op%d", op)) {
			case 0: // submit
				priority := types.TaskPriority(rapid.IntRange(0, 3).Draw(rt, fmt.Sprintf("prio%d", op)))
				maxRetries := rapid.IntRange(0, 3).Draw(rt, fmt.Sprintf("retries%d", op))
				id, err := sched.Submit(&types.Task{
					Type:       "work",
					Priority:   priority,
					MaxRetries: maxRetries,
				})
				require.NoError(t, err)
				submitted = append(submitted, id)
			case 1: // assignment pass
				sched.AssignPending()
			case 2, 3: // report on a random submitted task
				if len(submitted) == 0 {
					continue
				}
				id := submitted[rapid.IntRange(0, len(submitted)-1).Draw(rt, fmt.Sprintf("pick%d", op))]
				task, err := sched.Get(id)
				require.NoError(t, err)
				if task.Status != types.TaskAssigned && task.Status != types.TaskRunning {
					// Reports on terminal tasks must be accepted no-ops.
					if task.Status.Terminal() {
						require.NoError(t, sched.ReportResult(&types.TaskResult{TaskID: id, Success: true}))
					}
					continue
				}
				success := rapid.Bool().Draw(rt, fmt.Sprintf("success%d", op))
				require.NoError(t, sched.ReportResult(&types.TaskResult{
					TaskID:  id,
					Success: success,
					Error:   "induced failure",
				}))
			case 4: // cancel a random submitted task
				if len(submitted) == 0 {
					continue
				}
				id := submitted[rapid.IntRange(0, len(submitted)-1).Draw(rt, fmt.Sprintf("cancel%d", op))]
				task, err := sched.Get(id)
				require.NoError(t, err)
				if task.Status.Terminal() {
					err := sched.Cancel(id)
					require.True(t, types.IsCode(err, types.ErrInvalidTransition))
					continue
				}
				require.NoError(t, sched.Cancel(id))
			}
		}

		// Invariant checks over the final state.
		assignedPerAgent := make(map[string]int)
		pending := 0
		for _, id := range submitted {
			task, err := sched.Get(id)
			require.NoError(t, err)

			require.LessOrEqual(t, task.RetryCount, task.MaxRetries,
				"task %s retry count exceeds budget", id)

			if task.Status.Terminal() {
				require.Empty(t, task.AssignedTo,
					"terminal task %s still bound to an agent", id)
			}
			switch task.Status {
			case types.TaskPending:
				pending++
			case types.TaskAssigned, types.TaskRunning:
				require.NotEmpty(t, task.AssignedTo)
				assignedPerAgent[task.AssignedTo]++
			}
		}

		for id, maxLoad := range maxLoads {
			agent, err := reg.Get(id)
			require.NoError(t, err)
			require.GreaterOrEqual(t, agent.CurrentLoad, 0)
			require.LessOrEqual(t, agent.CurrentLoad, maxLoad)
			require.Equal(t, assignedPerAgent[id], agent.CurrentLoad,
				"agent %s load disagrees with its assigned tasks", id)
		}

		require.Equal(t, pending, sched.Stats().QueueDepth)
	})
}
