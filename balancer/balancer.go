package balancer

import (
	"fmt"
	"sync"

	"github.com/BaSui01/agentcore/types"
)

// Strategy names accepted by New.
const (
	StrategyRoundRobin      = "round_robin"
	StrategyLeastLoaded     = "least_loaded"
	StrategyCapabilityMatch = "capability_match"
	StrategyPriorityBased   = "priority_based"
)

// Strategy chooses an agent for a task from a set of eligible candidates.
type Strategy interface {
	// Name returns the strategy's registered name.
	Name() string

	// Select returns the chosen agent ID, or false when no candidate
	// suits. Candidates arrive in registration order with eligibility
	// already established.
	Select(task *types.Task, candidates []*types.Agent) (string, bool)
}

// New creates a strategy by name. The strategy is selected once at
// orchestrator construction.
func New(name string) (Strategy, error) {
	switch name {
	case StrategyRoundRobin:
		return &roundRobin{}, nil
	case StrategyLeastLoaded:
		return leastLoaded{}, nil
	case StrategyCapabilityMatch:
		return capabilityMatch{}, nil
	case StrategyPriorityBased:
		return priorityBased{}, nil
	default:
		return nil, fmt.Errorf("unknown load-balancing strategy %q", name)
	}
}

// roundRobin cycles through eligible candidates in registration order,
// independent of load. The cursor is the only state a strategy carries.
type roundRobin struct {
	mu   sync.Mutex
	next int
}

func (r *roundRobin) Name() string { return StrategyRoundRobin }

func (r *roundRobin) Select(_ *types.Task, candidates []*types.Agent) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	chosen := candidates[r.next%len(candidates)]
	r.next++
	return chosen.ID, true
}

// leastLoaded picks the candidate with the smallest load ratio; ties break
// toward the earliest registration, which is first in candidate order.
type leastLoaded struct{}

func (leastLoaded) Name() string { return StrategyLeastLoaded }

func (leastLoaded) Select(_ *types.Task, candidates []*types.Agent) (string, bool) {
	return pickLeastLoaded(candidates)
}

func pickLeastLoaded(candidates []*types.Agent) (string, bool) {
	var best *types.Agent
	for _, c := range candidates {
		if best == nil || c.LoadRatio() < best.LoadRatio() {
			best = c
		}
	}
	if best == nil {
		return "", false
	}
	return best.ID, true
}

// capabilityMatch restricts candidates to agents whose capability set is a
// superset of the task's required tags, then falls back to least_loaded
// among the restricted set.
type capabilityMatch struct{}

func (capabilityMatch) Name() string { return StrategyCapabilityMatch }

func (capabilityMatch) Select(task *types.Task, candidates []*types.Agent) (string, bool) {
	matched := candidates[:0:0]
	for _, c := range candidates {
		if c.HasCapabilities(task.Requires) {
			matched = append(matched, c)
		}
	}
	return pickLeastLoaded(matched)
}

// priorityBased reserves headroom for urgent work: critical and high
// priority tasks only go to agents with at least half their capacity free;
// other priorities behave as least_loaded.
type priorityBased struct{}

func (priorityBased) Name() string { return StrategyPriorityBased }

func (priorityBased) Select(task *types.Task, candidates []*types.Agent) (string, bool) {
	if task.Priority < types.PriorityHigh {
		return pickLeastLoaded(candidates)
	}
	spare := candidates[:0:0]
	for _, c := range candidates {
		if float64(c.SpareCapacity()) >= 0.5*float64(c.MaxLoad) {
			spare = append(spare, c)
		}
	}
	return pickLeastLoaded(spare)
}
