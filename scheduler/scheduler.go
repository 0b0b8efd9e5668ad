package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcore/balancer"
	"github.com/BaSui01/agentcore/events"
	"github.com/BaSui01/agentcore/registry"
	"github.com/BaSui01/agentcore/types"
)

// Config holds configuration for the scheduler.
type Config struct {
	// Strategy names the load-balancing strategy. Defaults to least_loaded.
	Strategy string `json:"strategy" yaml:"strategy"`

	// Tick is the assignment loop interval. Submissions and reports also
	// trigger an immediate pass.
	Tick time.Duration `json:"tick" yaml:"tick"`

	// DefaultMaxRetries applies to tasks submitted without a retry budget.
	DefaultMaxRetries int `json:"default_max_retries" yaml:"default_max_retries"`

	// TaskTimeout fails tasks that stay assigned or running longer than
	// this, covering lost execution reports. Zero disables the sweep and
	// leaks the agent's slot if a report never arrives; the default keeps
	// the sweep on at five minutes.
	TaskTimeout time.Duration `json:"task_timeout" yaml:"task_timeout"`

	// Retention is how long terminal tasks stay queryable before being
	// garbage-collected. Zero keeps them forever.
	Retention time.Duration `json:"retention" yaml:"retention"`

	// AgingThreshold is the number of consecutive skipped ticks after
	// which a pending task is promoted one priority level. Zero disables
	// aging.
	AgingThreshold int `json:"aging_threshold" yaml:"aging_threshold"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Strategy:          balancer.StrategyLeastLoaded,
		Tick:              100 * time.Millisecond,
		DefaultMaxRetries: 3,
		TaskTimeout:       5 * time.Minute,
		Retention:         time.Hour,
		AgingThreshold:    100,
	}
}

// Statistics summarizes the task table for administrative queries.
type Statistics struct {
	Total      int                      `json:"total"`
	QueueDepth int                      `json:"queue_depth"`
	ByStatus   map[types.TaskStatus]int `json:"by_status"`
	ByPriority map[string]int           `json:"by_priority"`
}

// Scheduler owns the task lifecycle: it queues submissions, assigns pending
// tasks to agents through the configured strategy, dispatches bound
// executors, and applies retry and cancellation transitions.
type Scheduler struct {
	mu    sync.Mutex
	tasks map[string]*types.Task
	queue *taskQueue

	// executors maps agent IDs to their bound executor. Agents without a
	// bound executor receive assignments and report results externally.
	executors map[string]types.Executor

	registry *registry.Registry
	strategy balancer.Strategy
	config   Config
	bus      *events.Bus
	logger   *zap.Logger

	// notifyCancel, when set, informs the executing agent of a
	// cancellation. Best effort; delivery failures are ignored.
	notifyCancel func(agentID, taskID string)

	runCtx context.Context
	kick   chan struct{}
	done   chan struct{}
	loopWG sync.WaitGroup
	// dispatchWG tracks in-flight executor goroutines. Stop does not wait
	// on it: executors exit when the Start context is cancelled, and Drain
	// collects them afterwards.
	dispatchWG sync.WaitGroup
	once       sync.Once
}

// New creates a scheduler over the given registry.
func New(reg *registry.Registry, config Config, bus *events.Bus, logger *zap.Logger) (*Scheduler, error) {
	def := DefaultConfig()
	if config.Strategy == "" {
		config.Strategy = def.Strategy
	}
	if config.Tick <= 0 {
		config.Tick = def.Tick
	}
	if config.DefaultMaxRetries < 0 {
		config.DefaultMaxRetries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	strategy, err := balancer.New(config.Strategy)
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		tasks:     make(map[string]*types.Task),
		queue:     newTaskQueue(),
		executors: make(map[string]types.Executor),
		registry:  reg,
		strategy:  strategy,
		config:    config,
		bus:       bus,
		logger:    logger.With(zap.String("component", "scheduler")),
		kick:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}, nil
}

// BindExecutor attaches an executor to an agent. Assigned tasks for that
// agent are dispatched to it; without one, execution happens outside the
// core and the agent reports through ReportResult.
func (s *Scheduler) BindExecutor(agentID string, ex types.Executor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ex == nil {
		delete(s.executors, agentID)
		return
	}
	s.executors[agentID] = ex
}

// SetCancelNotifier installs the best-effort cancellation callback invoked
// when an assigned or running task is cancelled.
func (s *Scheduler) SetCancelNotifier(fn func(agentID, taskID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifyCancel = fn
}

// Start launches the assignment loop. The context bounds dispatched
// executions: cancelling it stops the loop and in-flight executors.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()

	s.loopWG.Add(1)
	go s.run(ctx)
	s.logger.Info("scheduler started",
		zap.String("strategy", s.strategy.Name()),
		zap.Duration("tick", s.config.Tick),
	)
}

// Stop halts the assignment loop and waits for it to exit. In-flight
// executions keep running until their context is cancelled; their reports
// are still accepted. Stop never waits on executors, so an executor that
// blocks until cancellation cannot stall shutdown.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.done) })
	s.loopWG.Wait()
	s.logger.Info("scheduler stopped")
}

// Drain blocks until every dispatched execution has returned. Call it after
// cancelling the Start context to collect the executor goroutines.
func (s *Scheduler) Drain() {
	s.dispatchWG.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.loopWG.Done()

	ticker := time.NewTicker(s.config.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.assignPending()
			s.sweep()
		case <-s.kick:
			s.assignPending()
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Submit enqueues a task and returns its ID. A task without an explicit
// retry budget inherits DefaultMaxRetries.
func (s *Scheduler) Submit(task *types.Task) (string, error) {
	if task == nil {
		return "", types.NewError(types.ErrTaskNotFound, "task is nil")
	}

	stored := task.Clone()
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.MaxRetries == 0 {
		stored.MaxRetries = s.config.DefaultMaxRetries
	}
	if stored.MaxRetries < 0 {
		stored.MaxRetries = 0
	}
	stored.Status = types.TaskPending
	stored.RetryCount = 0
	stored.AssignedTo = ""
	stored.SubmittedAt = time.Now()

	s.mu.Lock()
	if _, exists := s.tasks[stored.ID]; exists {
		s.mu.Unlock()
		return "", types.Errorf(types.ErrInvalidTransition, "task %s already submitted", stored.ID)
	}
	s.tasks[stored.ID] = stored
	s.queue.Push(stored.ID, stored.Priority)
	s.mu.Unlock()

	s.logger.Debug("task submitted",
		zap.String("task_id", stored.ID),
		zap.String("type", stored.Type),
		zap.String("priority", stored.Priority.String()),
	)
	s.publish(types.Event{Type: types.EventTaskSubmitted, TaskID: stored.ID})
	s.wake()
	return stored.ID, nil
}

// Get retrieves a copy of a task by ID.
func (s *Scheduler) Get(taskID string) (*types.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, exists := s.tasks[taskID]
	if !exists {
		return nil, types.Errorf(types.ErrTaskNotFound, "task %s not found", taskID)
	}
	return task.Clone(), nil
}

// Cancel transitions a non-terminal task to cancelled. An assigned or
// running task frees its agent's slot and the executing agent is notified
// best-effort; in-flight execution is not forcibly halted.
func (s *Scheduler) Cancel(taskID string) error {
	s.mu.Lock()
	task, exists := s.tasks[taskID]
	if !exists {
		s.mu.Unlock()
		return types.Errorf(types.ErrTaskNotFound, "task %s not found", taskID)
	}
	if task.Status.Terminal() {
		s.mu.Unlock()
		return types.Errorf(types.ErrInvalidTransition, "task %s already %s", taskID, task.Status)
	}

	agentID := task.AssignedTo
	wasQueued := task.Status == types.TaskPending
	task.Status = types.TaskCancelled
	task.AssignedTo = ""
	task.CompletedAt = time.Now()
	if wasQueued {
		s.queue.Remove(taskID)
	}
	notify := s.notifyCancel
	s.mu.Unlock()

	if agentID != "" {
		s.registry.ReleaseSlot(agentID, taskID)
		if notify != nil {
			notify(agentID, taskID)
		}
	}

	s.logger.Info("task cancelled", zap.String("task_id", taskID))
	s.publish(types.Event{Type: types.EventTaskCancelled, TaskID: taskID, AgentID: agentID})
	s.wake()
	return nil
}

// ReportResult applies an execution outcome reported by the executing
// agent. Reports for tasks already in a terminal state are ignored, so a
// duplicate report neither emits events nor double-decrements load.
func (s *Scheduler) ReportResult(result *types.TaskResult) error {
	if result == nil {
		return types.NewError(types.ErrTaskNotFound, "result is nil")
	}

	s.mu.Lock()
	task, exists := s.tasks[result.TaskID]
	if !exists {
		s.mu.Unlock()
		return types.Errorf(types.ErrTaskNotFound, "task %s not found", result.TaskID)
	}
	if task.Status.Terminal() {
		s.mu.Unlock()
		return nil
	}
	if task.Status != types.TaskAssigned && task.Status != types.TaskRunning {
		s.mu.Unlock()
		return types.Errorf(types.ErrInvalidTransition, "task %s is %s, not executing", result.TaskID, task.Status)
	}

	agentID := task.AssignedTo
	duration := result.Duration
	if duration <= 0 && !task.AssignedAt.IsZero() {
		duration = time.Since(task.AssignedAt)
	}

	if result.Success {
		task.Status = types.TaskCompleted
		task.CompletedAt = time.Now()
		task.AssignedTo = ""
		s.mu.Unlock()

		s.registry.ReleaseSlot(agentID, result.TaskID)
		s.registry.RecordResult(agentID, true, duration)

		s.logger.Debug("task completed",
			zap.String("task_id", result.TaskID),
			zap.String("agent_id", agentID),
		)
		s.publish(types.Event{
			Type: types.EventTaskCompleted, TaskID: result.TaskID, AgentID: agentID,
			Data: map[string]any{"duration": duration},
		})
		s.wake()
		return nil
	}

	// Execution failure: retry while budget remains, else terminal.
	if task.RetryCount < task.MaxRetries {
		task.RetryCount++
		task.Status = types.TaskPending
		task.AssignedTo = ""
		task.AssignedAt = time.Time{}
		s.queue.Push(task.ID, task.Priority)
		retryCount := task.RetryCount
		s.mu.Unlock()

		s.registry.ReleaseSlot(agentID, result.TaskID)
		s.registry.RecordResult(agentID, false, duration)

		s.logger.Info("task failed, requeued",
			zap.String("task_id", result.TaskID),
			zap.String("agent_id", agentID),
			zap.Int("retry_count", retryCount),
			zap.String("error", result.Error),
		)
		s.publish(types.Event{
			Type: types.EventTaskReassigned, TaskID: result.TaskID, AgentID: agentID,
			Data: map[string]any{"retry_count": retryCount, "error": result.Error},
		})
		s.wake()
		return nil
	}

	task.Status = types.TaskFailed
	task.CompletedAt = time.Now()
	task.AssignedTo = ""
	s.mu.Unlock()

	s.registry.ReleaseSlot(agentID, result.TaskID)
	s.registry.RecordResult(agentID, false, duration)

	s.logger.Warn("task failed permanently",
		zap.String("task_id", result.TaskID),
		zap.String("agent_id", agentID),
		zap.String("error", result.Error),
	)
	s.publish(types.Event{
		Type: types.EventTaskFailed, TaskID: result.TaskID, AgentID: agentID,
		Data: map[string]any{"error": result.Error, "duration": duration},
	})
	s.wake()
	return nil
}

// Stats returns counts of tasks by status and priority.
func (s *Scheduler) Stats() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Statistics{
		Total:      len(s.tasks),
		QueueDepth: s.queue.Len(),
		ByStatus:   make(map[types.TaskStatus]int),
		ByPriority: make(map[string]int),
	}
	for _, task := range s.tasks {
		stats.ByStatus[task.Status]++
		stats.ByPriority[task.Priority.String()]++
	}
	return stats
}

// AssignPending runs one assignment pass immediately. The background loop
// calls this on every tick; tests and callers with their own timing can
// drive it directly.
func (s *Scheduler) AssignPending() {
	s.assignPending()
}

func (s *Scheduler) assignPending() {
	s.mu.Lock()
	entries := s.queue.Entries()
	// Snapshot the queue order; assignments mutate the queue below.
	ordered := make([]*queueEntry, len(entries))
	copy(ordered, entries)
	s.mu.Unlock()

	for _, entry := range ordered {
		s.tryAssign(entry)
	}

	s.mu.Lock()
	s.queue.Age(s.config.AgingThreshold)
	s.mu.Unlock()
}

func (s *Scheduler) tryAssign(entry *queueEntry) {
	s.mu.Lock()
	task, exists := s.tasks[entry.taskID]
	if !exists || task.Status != types.TaskPending {
		s.mu.Unlock()
		return
	}
	// The strategy sees the task at its aged, effective priority.
	probe := task.Clone()
	probe.Priority = entry.priority
	s.mu.Unlock()

	candidates := s.eligible(probe)
	agentID, ok := s.strategy.Select(probe, candidates)
	if !ok {
		// No eligible agent: the task stays pending. Starvation is not
		// an execution failure and never consumes the retry budget.
		return
	}
	if err := s.registry.ReserveSlot(agentID, task.ID); err != nil {
		// Lost a race for the slot; next tick retries.
		return
	}

	s.mu.Lock()
	task, exists = s.tasks[entry.taskID]
	if !exists || task.Status != types.TaskPending {
		s.mu.Unlock()
		s.registry.ReleaseSlot(agentID, entry.taskID)
		return
	}
	task.Status = types.TaskAssigned
	task.AssignedTo = agentID
	task.AssignedAt = time.Now()
	s.queue.Remove(task.ID)
	executor := s.executors[agentID]
	runCtx := s.runCtx
	s.mu.Unlock()

	s.logger.Debug("task assigned",
		zap.String("task_id", task.ID),
		zap.String("agent_id", agentID),
		zap.String("strategy", s.strategy.Name()),
	)
	s.publish(types.Event{Type: types.EventTaskAssigned, TaskID: task.ID, AgentID: agentID})

	if executor != nil {
		s.dispatchWG.Add(1)
		go s.dispatch(runCtx, task.ID, agentID, executor)
	}
}

// dispatch hands an assigned task to its agent's bound executor and reports
// the outcome back through the normal result path.
func (s *Scheduler) dispatch(ctx context.Context, taskID, agentID string, executor types.Executor) {
	defer s.dispatchWG.Done()

	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	task, exists := s.tasks[taskID]
	if !exists || task.Status != types.TaskAssigned || task.AssignedTo != agentID {
		s.mu.Unlock()
		return
	}
	task.Status = types.TaskRunning
	taskCopy := task.Clone()
	s.mu.Unlock()

	start := time.Now()
	result, err := executor.Execute(ctx, taskCopy)
	if result == nil {
		result = &types.TaskResult{TaskID: taskID}
	}
	result.TaskID = taskID
	if result.Duration <= 0 {
		result.Duration = time.Since(start)
	}
	if err != nil {
		result.Success = false
		if result.Error == "" {
			result.Error = err.Error()
		}
	}

	if reportErr := s.ReportResult(result); reportErr != nil {
		s.logger.Warn("failed to report execution result",
			zap.String("task_id", taskID),
			zap.Error(reportErr),
		)
	}
}

// eligible filters registered agents down to assignment candidates:
// available, declaring the task's type tag, with spare capacity.
// Registration order is preserved for the strategies' tie-breaking.
func (s *Scheduler) eligible(task *types.Task) []*types.Agent {
	agents := s.registry.List()
	out := agents[:0:0]
	for _, a := range agents {
		if a.Status != types.AgentAvailable {
			continue
		}
		if a.SpareCapacity() <= 0 {
			continue
		}
		if task.Type != "" && !a.HasCapability(task.Type) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// sweep fails timed-out executions and garbage-collects old terminal tasks.
func (s *Scheduler) sweep() {
	now := time.Now()

	if s.config.TaskTimeout > 0 {
		var expired []string
		s.mu.Lock()
		for id, task := range s.tasks {
			if (task.Status == types.TaskAssigned || task.Status == types.TaskRunning) &&
				now.Sub(task.AssignedAt) > s.config.TaskTimeout {
				expired = append(expired, id)
			}
		}
		s.mu.Unlock()

		for _, id := range expired {
			s.logger.Warn("task execution timed out", zap.String("task_id", id))
			_ = s.ReportResult(&types.TaskResult{
				TaskID:  id,
				Success: false,
				Error:   "execution timed out",
			})
		}
	}

	if s.config.Retention > 0 {
		s.mu.Lock()
		for id, task := range s.tasks {
			if task.Status.Terminal() && now.Sub(task.CompletedAt) > s.config.Retention {
				delete(s.tasks, id)
			}
		}
		s.mu.Unlock()
	}
}

func (s *Scheduler) wake() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *Scheduler) publish(evt types.Event) {
	if s.bus != nil {
		s.bus.Publish(evt)
	}
}
