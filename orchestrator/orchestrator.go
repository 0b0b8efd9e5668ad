package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcore/comms"
	"github.com/BaSui01/agentcore/config"
	"github.com/BaSui01/agentcore/events"
	"github.com/BaSui01/agentcore/internal/metrics"
	"github.com/BaSui01/agentcore/registry"
	"github.com/BaSui01/agentcore/retry"
	"github.com/BaSui01/agentcore/scheduler"
	"github.com/BaSui01/agentcore/types"
)

// Option customizes an Orchestrator at construction.
type Option func(*Orchestrator)

// WithLogger sets a custom zap logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithSnapshotStore enables registry snapshot persistence: the agent table
// is restored on Start and saved periodically plus once on Stop.
func WithSnapshotStore(store registry.SnapshotStore) Option {
	return func(o *Orchestrator) { o.snapshots = store }
}

// Orchestrator is the facade over the orchestration core.
type Orchestrator struct {
	cfg    *config.Config
	logger *zap.Logger

	bus       *events.Bus
	registry  *registry.Registry
	monitor   *registry.HealthMonitor
	scheduler *scheduler.Scheduler
	framework *comms.Framework
	collector *metrics.Collector
	snapshots registry.SnapshotStore

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// New assembles an orchestrator from the given configuration. Nil falls
// back to config.Default.
func New(cfg *config.Config, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{cfg: cfg}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	o.bus = events.NewBus(cfg.Events.BufferSize, o.logger)
	o.registry = registry.New(o.bus, o.logger)
	o.monitor = registry.NewHealthMonitor(o.registry, registry.MonitorConfig{
		Interval:       cfg.Registry.MonitorInterval,
		LivenessWindow: cfg.Registry.LivenessWindow,
		EvictAfter:     cfg.Registry.EvictAfter,
	}, o.bus, o.logger)

	sched, err := scheduler.New(o.registry, scheduler.Config{
		Strategy:          cfg.Scheduler.Strategy,
		Tick:              cfg.Scheduler.Tick,
		DefaultMaxRetries: cfg.Scheduler.DefaultMaxRetries,
		TaskTimeout:       cfg.Scheduler.TaskTimeout,
		Retention:         cfg.Scheduler.Retention,
		AgingThreshold:    cfg.Scheduler.AgingThreshold,
	}, o.bus, o.logger)
	if err != nil {
		return nil, err
	}
	o.scheduler = sched

	o.framework = comms.New(comms.Config{
		MaxAttempts:    cfg.Comms.MaxAttempts,
		HandlerTimeout: cfg.Comms.HandlerTimeout,
		DeliveryRate:   cfg.Comms.DeliveryRate,
		DeliveryBurst:  cfg.Comms.DeliveryBurst,
		Backoff: &retry.Policy{
			MaxRetries:   cfg.Comms.MaxAttempts,
			InitialDelay: cfg.Comms.InitialDelay,
			MaxDelay:     cfg.Comms.MaxDelay,
			Multiplier:   cfg.Comms.Multiplier,
			Jitter:       true,
		},
	}, o.bus, o.logger)

	o.collector = metrics.NewCollector(cfg.Metrics.Namespace, o.logger)

	// Cancelled tasks notify the executing agent best-effort.
	o.scheduler.SetCancelNotifier(func(agentID, taskID string) {
		_, err := o.framework.Send(context.Background(), &types.Message{
			To:      agentID,
			Type:    types.MessageEvent,
			Payload: map[string]any{"cancelled_task": taskID},
		}, 1)
		if err != nil {
			o.logger.Debug("cancellation notice not queued",
				zap.String("agent_id", agentID),
				zap.String("task_id", taskID),
				zap.Error(err),
			)
		}
	})

	return o, nil
}

// Start restores any persisted registry snapshot and launches the health
// monitor, the assignment loop, the metrics feed, and the snapshot loop.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return nil
	}
	o.started = true
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.mu.Unlock()

	if o.snapshots != nil {
		agents, err := o.snapshots.Load(runCtx)
		if err != nil {
			o.logger.Warn("registry snapshot not restored", zap.Error(err))
		} else if restored := o.registry.Import(agents); restored > 0 {
			o.logger.Info("registry snapshot restored", zap.Int("agents", restored))
		}
	}

	o.monitor.Start()
	o.scheduler.Start(runCtx)

	o.wg.Add(1)
	go o.feedMetrics(runCtx)
	if o.snapshots != nil && o.cfg.Redis.SnapshotInterval > 0 {
		o.wg.Add(1)
		go o.snapshotLoop(runCtx)
	}

	o.logger.Info("orchestrator started")
	return nil
}

// Stop halts all loops, takes a final registry snapshot, and closes the
// event bus.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return
	}
	o.started = false
	cancel := o.cancel
	o.mu.Unlock()

	o.scheduler.Stop()
	o.monitor.Stop()
	o.framework.Close()
	cancel()
	// Executors observe the cancelled run context; collect their
	// goroutines once they return.
	o.scheduler.Drain()
	o.wg.Wait()

	if o.snapshots != nil {
		ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
		if err := o.snapshots.Save(ctx, o.registry.Export()); err != nil {
			o.logger.Warn("final registry snapshot failed", zap.Error(err))
		}
		done()
	}

	o.bus.Close()
	o.logger.Info("orchestrator stopped")
}

// feedMetrics drives the Prometheus collector from the event stream and
// refreshes the fleet gauges periodically.
func (o *Orchestrator) feedMetrics(ctx context.Context) {
	defer o.wg.Done()

	sub := o.bus.Subscribe()
	defer o.bus.Unsubscribe(sub)

	interval := o.cfg.Metrics.GaugeInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			o.collector.Observe(evt)
		case <-ticker.C:
			o.collector.UpdateAgentGauges(o.registry.List())
			o.collector.SetQueueDepth(o.scheduler.Stats().QueueDepth)
		case <-ctx.Done():
			return
		}
	}
}

func (o *Orchestrator) snapshotLoop(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.cfg.Redis.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := o.snapshots.Save(ctx, o.registry.Export()); err != nil {
				o.logger.Warn("registry snapshot failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// RegisterAgent adds an agent to the registry.
func (o *Orchestrator) RegisterAgent(agent *types.Agent) (string, error) {
	return o.registry.Register(agent)
}

// UnregisterAgent removes an agent, its executor binding, and its message
// handler.
func (o *Orchestrator) UnregisterAgent(agentID string) error {
	if err := o.registry.Unregister(agentID); err != nil {
		return err
	}
	o.scheduler.BindExecutor(agentID, nil)
	o.framework.RegisterHandler(agentID, nil)
	return nil
}

// Heartbeat records a liveness signal from an agent.
func (o *Orchestrator) Heartbeat(agentID string) error {
	return o.registry.Heartbeat(agentID)
}

// UpdateAgentStatus applies a partial agent state update.
func (o *Orchestrator) UpdateAgentStatus(agentID string, update registry.StateUpdate) error {
	return o.registry.UpdateState(agentID, update)
}

// BindExecutor attaches an in-process executor to an agent.
func (o *Orchestrator) BindExecutor(agentID string, ex types.Executor) {
	o.scheduler.BindExecutor(agentID, ex)
}

// RegisterHandler binds an agent's message handler.
func (o *Orchestrator) RegisterHandler(agentID string, h comms.Handler) {
	o.framework.RegisterHandler(agentID, h)
}

// SubmitTask enqueues a task for assignment.
func (o *Orchestrator) SubmitTask(task *types.Task) (string, error) {
	return o.scheduler.Submit(task)
}

// TaskStatus retrieves a task by ID.
func (o *Orchestrator) TaskStatus(taskID string) (*types.Task, error) {
	return o.scheduler.Get(taskID)
}

// CancelTask cancels a non-terminal task.
func (o *Orchestrator) CancelTask(taskID string) error {
	return o.scheduler.Cancel(taskID)
}

// ReportResult applies an externally executed task's outcome.
func (o *Orchestrator) ReportResult(result *types.TaskResult) error {
	return o.scheduler.ReportResult(result)
}

// Send queues a message for asynchronous delivery.
func (o *Orchestrator) Send(ctx context.Context, msg *types.Message, maxAttempts int) (string, error) {
	return o.framework.Send(ctx, msg, maxAttempts)
}

// Broadcast fans a payload out to multiple recipients.
func (o *Orchestrator) Broadcast(ctx context.Context, from string, recipients []string, msgType types.MessageType, payload any) ([]string, error) {
	return o.framework.Broadcast(ctx, from, recipients, msgType, payload)
}

// MessageStatus retrieves a message by ID.
func (o *Orchestrator) MessageStatus(messageID string) (*types.Message, error) {
	return o.framework.MessageStatus(messageID)
}

// UpdateSharedState merges a partial state into an agent's shared view.
func (o *Orchestrator) UpdateSharedState(agentID string, partial map[string]any) {
	o.framework.UpdateAgentState(agentID, partial)
}

// SynchronizeStates pushes the shared state snapshots to the named agents.
func (o *Orchestrator) SynchronizeStates(ctx context.Context, agentIDs []string) error {
	return o.framework.SynchronizeStates(ctx, agentIDs)
}

// RequestCollaboration opens a multi-agent collaboration.
func (o *Orchestrator) RequestCollaboration(ctx context.Context, initiator string, participants []string, payload any, cfg types.CollaborationConfig) (string, error) {
	return o.framework.RequestCollaboration(ctx, initiator, participants, payload, cfg)
}

// Collaboration retrieves a collaboration by ID.
func (o *Orchestrator) Collaboration(collaborationID string) (*types.Collaboration, error) {
	return o.framework.GetCollaboration(collaborationID)
}

// CancelCollaboration cancels a pending collaboration.
func (o *Orchestrator) CancelCollaboration(collaborationID string) error {
	return o.framework.CancelCollaboration(collaborationID)
}

// QueueStatistics returns task counts by status and priority.
func (o *Orchestrator) QueueStatistics() scheduler.Statistics {
	return o.scheduler.Stats()
}

// AgentHealth returns one agent's record including its metrics snapshot.
func (o *Orchestrator) AgentHealth(agentID string) (*types.Agent, error) {
	return o.registry.Get(agentID)
}

// Agents lists all registered agents.
func (o *Orchestrator) Agents() []*types.Agent {
	return o.registry.List()
}

// Events subscribes to the lifecycle event stream. Passing no types
// receives everything. Callers release the subscription with Unsubscribe.
func (o *Orchestrator) Events(eventTypes ...types.EventType) *events.Subscription {
	return o.bus.Subscribe(eventTypes...)
}

// Unsubscribe releases an event subscription.
func (o *Orchestrator) Unsubscribe(sub *events.Subscription) {
	o.bus.Unsubscribe(sub)
}

// MetricsRegistry exposes the Prometheus registry for the /metrics handler.
func (o *Orchestrator) MetricsRegistry() *prometheus.Registry {
	return o.collector.Registry()
}
