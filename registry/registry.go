package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcore/events"
	"github.com/BaSui01/agentcore/types"
)

// StateUpdate carries a partial agent-state mutation for UpdateState. Nil
// fields are left untouched.
type StateUpdate struct {
	// Status replaces the agent's status when non-nil.
	Status *types.AgentStatus

	// Metadata entries are merged into the agent's metadata map.
	Metadata map[string]string
}

// Registry holds the set of known agents. All reads return deep copies;
// all mutations are serialized behind a single lock.
type Registry struct {
	mu sync.RWMutex

	// agents stores registered agents by ID.
	agents map[string]*types.Agent

	// order preserves registration order for round-robin cycling and
	// least-loaded tie-breaking.
	order []string

	// versions counts state-affecting mutations per agent, feeding the
	// snapshot version numbers used by state synchronization.
	versions map[string]int64

	bus    *events.Bus
	logger *zap.Logger
}

// New creates an agent registry publishing lifecycle events on bus.
func New(bus *events.Bus, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		agents:   make(map[string]*types.Agent),
		versions: make(map[string]int64),
		bus:      bus,
		logger:   logger.With(zap.String("component", "registry")),
	}
}

// Register adds an agent and returns its ID, generating one when the caller
// did not supply it. Registration fails with ErrDuplicateAgent when the ID is
// already active and with ErrInvalidCapacity when MaxLoad is not positive.
func (r *Registry) Register(agent *types.Agent) (string, error) {
	if agent == nil {
		return "", types.NewError(types.ErrInvalidCapacity, "agent is nil")
	}
	if agent.MaxLoad <= 0 {
		return "", types.Errorf(types.ErrInvalidCapacity, "max load must be positive, got %d", agent.MaxLoad)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if agent.ID == "" {
		agent.ID = uuid.New().String()
	}
	if _, exists := r.agents[agent.ID]; exists {
		return "", types.Errorf(types.ErrDuplicateAgent, "agent %s already registered", agent.ID)
	}

	now := time.Now()
	stored := agent.Clone()
	stored.CurrentLoad = 0
	stored.ActiveTasks = nil
	if stored.Status == "" {
		stored.Status = types.AgentAvailable
	}
	stored.RegisteredAt = now
	stored.LastHeartbeat = now

	r.agents[stored.ID] = stored
	r.order = append(r.order, stored.ID)
	r.versions[stored.ID]++

	r.logger.Info("agent registered",
		zap.String("agent_id", stored.ID),
		zap.Int("max_load", stored.MaxLoad),
		zap.Strings("capabilities", stored.Capabilities),
	)

	r.publish(types.Event{Type: types.EventAgentRegistered, AgentID: stored.ID})
	return stored.ID, nil
}

// Unregister removes an agent.
func (r *Registry) Unregister(agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.removeLocked(agentID); err != nil {
		return err
	}

	r.logger.Info("agent unregistered", zap.String("agent_id", agentID))
	r.publish(types.Event{Type: types.EventAgentUnregistered, AgentID: agentID})
	return nil
}

func (r *Registry) removeLocked(agentID string) error {
	if _, exists := r.agents[agentID]; !exists {
		return types.Errorf(types.ErrAgentNotFound, "agent %s not found", agentID)
	}
	delete(r.agents, agentID)
	delete(r.versions, agentID)
	for i, id := range r.order {
		if id == agentID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get retrieves a copy of an agent by ID.
func (r *Registry) Get(agentID string) (*types.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, exists := r.agents[agentID]
	if !exists {
		return nil, types.Errorf(types.ErrAgentNotFound, "agent %s not found", agentID)
	}
	return agent.Clone(), nil
}

// List returns copies of all registered agents in registration order.
func (r *Registry) List() []*types.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := make([]*types.Agent, 0, len(r.agents))
	for _, id := range r.order {
		if agent, ok := r.agents[id]; ok {
			agents = append(agents, agent.Clone())
		}
	}
	return agents
}

// UpdateState applies a partial state mutation. It is the only mutation path
// for status and metadata outside the scheduler's slot bookkeeping.
func (r *Registry) UpdateState(agentID string, update StateUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, exists := r.agents[agentID]
	if !exists {
		return types.Errorf(types.ErrAgentNotFound, "agent %s not found", agentID)
	}

	if update.Status != nil {
		agent.Status = *update.Status
	}
	if len(update.Metadata) > 0 {
		if agent.Metadata == nil {
			agent.Metadata = make(map[string]string, len(update.Metadata))
		}
		for k, v := range update.Metadata {
			agent.Metadata[k] = v
		}
	}
	r.versions[agentID]++

	r.logger.Debug("agent state updated",
		zap.String("agent_id", agentID),
		zap.String("status", string(agent.Status)),
	)
	return nil
}

// Heartbeat records a liveness signal. A heartbeat from an offline agent
// brings it back online and emits agent-online.
func (r *Registry) Heartbeat(agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, exists := r.agents[agentID]
	if !exists {
		return types.Errorf(types.ErrAgentNotFound, "agent %s not found", agentID)
	}

	agent.LastHeartbeat = time.Now()
	if agent.Status == types.AgentOffline {
		if agent.CurrentLoad >= agent.MaxLoad {
			agent.Status = types.AgentBusy
		} else {
			agent.Status = types.AgentAvailable
		}
		r.versions[agentID]++

		r.logger.Info("agent back online", zap.String("agent_id", agentID))
		r.publish(types.Event{Type: types.EventAgentOnline, AgentID: agentID})
	}
	return nil
}

// MarkStale transitions every non-offline agent whose last heartbeat is
// older than window to offline, returning the IDs that changed. Called by
// the health monitor on each tick.
func (r *Registry) MarkStale(window time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-window)
	var stale []string
	for id, agent := range r.agents {
		if agent.Status == types.AgentOffline {
			continue
		}
		if agent.LastHeartbeat.Before(cutoff) {
			agent.Status = types.AgentOffline
			r.versions[id]++
			stale = append(stale, id)
		}
	}
	return stale
}

// EvictOffline removes agents that have been offline with no heartbeat for
// longer than maxAge, returning the evicted IDs.
func (r *Registry) EvictOffline(maxAge time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	var evicted []string
	for id, agent := range r.agents {
		if agent.Status == types.AgentOffline && agent.LastHeartbeat.Before(cutoff) {
			evicted = append(evicted, id)
		}
	}
	for _, id := range evicted {
		_ = r.removeLocked(id)
		r.logger.Info("offline agent evicted", zap.String("agent_id", id))
		r.publish(types.Event{Type: types.EventAgentUnregistered, AgentID: id,
			Data: map[string]any{"reason": "offline_eviction"}})
	}
	return evicted
}

// ReserveSlot atomically claims a task slot on the agent and records the
// task ID. It fails when the agent is not available or has no spare
// capacity, leaving the caller to re-queue the task.
func (r *Registry) ReserveSlot(agentID, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, exists := r.agents[agentID]
	if !exists {
		return types.Errorf(types.ErrAgentNotFound, "agent %s not found", agentID)
	}
	if agent.Status != types.AgentAvailable {
		return types.Errorf(types.ErrInvalidTransition, "agent %s is %s", agentID, agent.Status)
	}
	if agent.CurrentLoad >= agent.MaxLoad {
		return types.Errorf(types.ErrInvalidTransition, "agent %s has no spare capacity", agentID)
	}

	agent.CurrentLoad++
	agent.ActiveTasks = append(agent.ActiveTasks, taskID)
	if agent.CurrentLoad >= agent.MaxLoad {
		agent.Status = types.AgentBusy
	}
	r.versions[agentID]++
	return nil
}

// ReleaseSlot frees a previously reserved slot. A release that would drive
// the load negative is a programming bug and panics rather than being
// silently corrected.
func (r *Registry) ReleaseSlot(agentID, taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, exists := r.agents[agentID]
	if !exists {
		// The agent was unregistered while the task was in flight.
		return
	}

	agent.CurrentLoad--
	if agent.CurrentLoad < 0 {
		panic(fmt.Sprintf("registry: load invariant violated for agent %s", agentID))
	}
	for i, id := range agent.ActiveTasks {
		if id == taskID {
			agent.ActiveTasks = append(agent.ActiveTasks[:i], agent.ActiveTasks[i+1:]...)
			break
		}
	}
	if agent.Status == types.AgentBusy && agent.CurrentLoad < agent.MaxLoad {
		agent.Status = types.AgentAvailable
	}
	r.versions[agentID]++
}

// RecordResult folds an execution outcome into the agent's cumulative
// metrics. The average response time is an exponential moving average.
func (r *Registry) RecordResult(agentID string, success bool, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, exists := r.agents[agentID]
	if !exists {
		return
	}

	if success {
		agent.Metrics.TasksCompleted++
	} else {
		agent.Metrics.TasksFailed++
	}

	total := agent.Metrics.TasksCompleted + agent.Metrics.TasksFailed
	if total == 1 {
		agent.Metrics.AvgResponseTime = latency
	} else {
		const alpha = 0.2
		agent.Metrics.AvgResponseTime = time.Duration(
			float64(agent.Metrics.AvgResponseTime)*(1-alpha) + float64(latency)*alpha,
		)
	}
}

// Snapshots returns a versioned lightweight view of every agent, used for
// cross-agent state synchronization.
func (r *Registry) Snapshots() []*types.AgentSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snaps := make([]*types.AgentSnapshot, 0, len(r.agents))
	for _, id := range r.order {
		agent, ok := r.agents[id]
		if !ok {
			continue
		}
		snap := &types.AgentSnapshot{
			AgentID:     id,
			Version:     r.versions[id],
			Status:      agent.Status,
			CurrentLoad: agent.CurrentLoad,
			UpdatedAt:   time.Now(),
		}
		if agent.Metadata != nil {
			snap.Metadata = make(map[string]string, len(agent.Metadata))
			for k, v := range agent.Metadata {
				snap.Metadata[k] = v
			}
		}
		snaps = append(snaps, snap)
	}
	return snaps
}

// Export returns full copies of every agent record for persistence.
func (r *Registry) Export() []*types.Agent {
	return r.List()
}

// Import restores agent records from a persisted snapshot. Existing agents
// with the same ID are skipped; restored agents start with their load reset,
// since in-flight assignments do not survive a restart.
func (r *Registry) Import(agents []*types.Agent) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	restored := 0
	for _, agent := range agents {
		if agent == nil || agent.ID == "" {
			continue
		}
		if _, exists := r.agents[agent.ID]; exists {
			continue
		}
		stored := agent.Clone()
		stored.CurrentLoad = 0
		stored.ActiveTasks = nil
		stored.Status = types.AgentOffline
		r.agents[stored.ID] = stored
		r.order = append(r.order, stored.ID)
		r.versions[stored.ID]++
		restored++
	}
	if restored > 0 {
		r.logger.Info("agents restored from snapshot", zap.Int("count", restored))
	}
	return restored
}

func (r *Registry) publish(evt types.Event) {
	if r.bus != nil {
		r.bus.Publish(evt)
	}
}
