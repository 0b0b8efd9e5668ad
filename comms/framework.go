package comms

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/BaSui01/agentcore/events"
	"github.com/BaSui01/agentcore/retry"
	"github.com/BaSui01/agentcore/types"
)

// Handler consumes messages delivered to one agent. The returned value is
// the agent's response; for collaboration requests it is collected as the
// agent's contribution. A returned error marks the delivery attempt failed
// and triggers a retry.
type Handler func(ctx context.Context, msg *types.Message) (any, error)

// Config holds configuration for the communication framework.
type Config struct {
	// MaxAttempts is the default number of delivery attempts for messages
	// sent without an explicit retry budget.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`

	// HandlerTimeout bounds a single handler invocation.
	HandlerTimeout time.Duration `json:"handler_timeout" yaml:"handler_timeout"`

	// DeliveryRate caps delivery attempts per second across all messages,
	// with DeliveryBurst attempts of burst headroom.
	DeliveryRate  float64 `json:"delivery_rate" yaml:"delivery_rate"`
	DeliveryBurst int     `json:"delivery_burst" yaml:"delivery_burst"`

	// Backoff paces retries between failed delivery attempts. Nil uses
	// retry.DefaultPolicy.
	Backoff *retry.Policy `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		HandlerTimeout: 10 * time.Second,
		DeliveryRate:   500,
		DeliveryBurst:  100,
	}
}

// stateSnapshot is one agent's shared-state view, versioned so receivers can
// discard stale pushes.
type stateSnapshot struct {
	Version int64          `json:"version"`
	Data    map[string]any `json:"data"`
	Updated time.Time      `json:"updated"`
}

// Framework routes messages between registered agents. Delivery is
// asynchronous and at-least-once: Send returns a message ID immediately and
// a worker drives attempts through the backoff policy, paced by a shared
// rate limiter.
type Framework struct {
	mu       sync.Mutex
	handlers map[string]Handler
	messages map[string]*types.Message
	collabs  map[string]*types.Collaboration
	timers   map[string]*time.Timer
	states   map[string]*stateSnapshot

	config  Config
	policy  *retry.Policy
	limiter *rate.Limiter
	bus     *events.Bus
	logger  *zap.Logger

	// runCtx bounds asynchronous deliveries and collaboration windows; it
	// outlives any single caller's context.
	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a communication framework.
func New(config Config, bus *events.Bus, logger *zap.Logger) *Framework {
	def := DefaultConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.HandlerTimeout <= 0 {
		config.HandlerTimeout = def.HandlerTimeout
	}
	if config.DeliveryRate <= 0 {
		config.DeliveryRate = def.DeliveryRate
	}
	if config.DeliveryBurst <= 0 {
		config.DeliveryBurst = def.DeliveryBurst
	}
	policy := config.Backoff
	if policy == nil {
		policy = retry.DefaultPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Framework{
		handlers: make(map[string]Handler),
		messages: make(map[string]*types.Message),
		collabs:  make(map[string]*types.Collaboration),
		timers:   make(map[string]*time.Timer),
		states:   make(map[string]*stateSnapshot),
		config:   config,
		policy:   policy,
		limiter:  rate.NewLimiter(rate.Limit(config.DeliveryRate), config.DeliveryBurst),
		bus:      bus,
		logger:   logger.With(zap.String("component", "comms")),
		runCtx:   ctx,
		cancel:   cancel,
	}
}

// Close stops in-flight deliveries and collaboration windows and waits for
// the workers to drain.
func (f *Framework) Close() {
	f.cancel()

	f.mu.Lock()
	for id, timer := range f.timers {
		timer.Stop()
		delete(f.timers, id)
	}
	f.mu.Unlock()

	f.wg.Wait()
}

// RegisterHandler binds an agent's message handler. A nil handler removes
// the binding.
func (f *Framework) RegisterHandler(agentID string, h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if h == nil {
		delete(f.handlers, agentID)
		return
	}
	f.handlers[agentID] = h
}

// Send queues a message for asynchronous delivery and returns its ID.
// maxAttempts bounds total delivery attempts; zero uses the configured
// default. Delivery outcome is observable through MessageStatus and the
// message-delivered / message-failed events.
func (f *Framework) Send(ctx context.Context, msg *types.Message, maxAttempts int) (string, error) {
	if msg == nil || msg.To == "" {
		return "", types.NewError(types.ErrMessageNotFound, "message has no recipient")
	}
	if err := f.runCtx.Err(); err != nil {
		return "", types.NewError(types.ErrDeliveryFailed, "framework closed").WithCause(err)
	}
	if maxAttempts <= 0 {
		maxAttempts = f.config.MaxAttempts
	}

	stored := msg.Clone()
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.Type == "" {
		stored.Type = types.MessageEvent
	}
	stored.Status = types.MessageQueued
	stored.RetryCount = 0
	stored.Timestamp = time.Now()

	f.mu.Lock()
	f.messages[stored.ID] = stored
	f.mu.Unlock()

	f.publish(types.Event{Type: types.EventMessageSent, MessageID: stored.ID, AgentID: stored.To})

	f.wg.Add(1)
	go f.deliver(stored.ID, maxAttempts)
	return stored.ID, nil
}

// deliver drives one message through up to maxAttempts handler invocations.
// Every failed attempt emits message-failed with the attempt number; budget
// exhaustion emits one final terminal message-failed.
func (f *Framework) deliver(messageID string, maxAttempts int) {
	defer f.wg.Done()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(f.policy.Delay(attempt - 1)):
			case <-f.runCtx.Done():
				return
			}
		}
		if err := f.limiter.Wait(f.runCtx); err != nil {
			return
		}

		response, err := f.attempt(messageID)
		if err == nil {
			f.mu.Lock()
			msg, exists := f.messages[messageID]
			if !exists {
				f.mu.Unlock()
				return
			}
			msg.Status = types.MessageDelivered
			msg.RetryCount = attempt - 1
			collabID := msg.CollaborationID
			from := msg.From
			to := msg.To
			isRequest := msg.Type == types.MessageRequest
			f.mu.Unlock()

			f.publish(types.Event{Type: types.EventMessageDelivered, MessageID: messageID, AgentID: to})
			if collabID != "" && isRequest {
				f.Respond(collabID, to, response)
			}
			f.logger.Debug("message delivered",
				zap.String("message_id", messageID),
				zap.String("from", from),
				zap.String("to", to),
				zap.Int("attempt", attempt),
			)
			return
		}

		f.mu.Lock()
		msg, exists := f.messages[messageID]
		if !exists {
			f.mu.Unlock()
			return
		}
		msg.RetryCount = attempt
		to := msg.To
		f.mu.Unlock()

		f.logger.Debug("delivery attempt failed",
			zap.String("message_id", messageID),
			zap.String("to", to),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Error(err),
		)
		f.publish(types.Event{
			Type: types.EventMessageFailed, MessageID: messageID, AgentID: to,
			Data: map[string]any{"attempt": attempt, "error": err.Error()},
		})
	}

	f.mu.Lock()
	msg, exists := f.messages[messageID]
	if !exists {
		f.mu.Unlock()
		return
	}
	msg.Status = types.MessageFailed
	to := msg.To
	f.mu.Unlock()

	f.logger.Warn("message delivery failed permanently",
		zap.String("message_id", messageID),
		zap.String("to", to),
		zap.Int("attempts", maxAttempts),
	)
	f.publish(types.Event{
		Type: types.EventMessageFailed, MessageID: messageID, AgentID: to,
		Data: map[string]any{"terminal": true, "attempts": maxAttempts},
	})
}

// attempt performs a single handler invocation under the handler timeout.
func (f *Framework) attempt(messageID string) (any, error) {
	f.mu.Lock()
	msg, exists := f.messages[messageID]
	if !exists {
		f.mu.Unlock()
		return nil, types.Errorf(types.ErrMessageNotFound, "message %s not found", messageID)
	}
	handler := f.handlers[msg.To]
	msgCopy := msg.Clone()
	f.mu.Unlock()

	if handler == nil {
		return nil, types.Errorf(types.ErrHandlerNotRegistered, "no handler for agent %s", msgCopy.To)
	}

	ctx, cancelAttempt := context.WithTimeout(f.runCtx, f.config.HandlerTimeout)
	defer cancelAttempt()

	done := make(chan struct{})
	var response any
	var err error
	go func() {
		defer close(done)
		response, err = handler(ctx, msgCopy)
	}()

	select {
	case <-done:
		return response, err
	case <-ctx.Done():
		// The handler keeps running; its eventual result is discarded.
		return nil, types.NewError(types.ErrTimeout, "handler timed out").WithRetryable(true)
	}
}

// Broadcast fans a payload out to every recipient as an independent send.
// A recipient whose send cannot be queued yields an empty ID in the result
// slice without affecting the others.
func (f *Framework) Broadcast(ctx context.Context, from string, recipients []string, msgType types.MessageType, payload any) ([]string, error) {
	if len(recipients) == 0 {
		return nil, types.NewError(types.ErrMessageNotFound, "broadcast has no recipients")
	}

	ids := make([]string, len(recipients))
	var g errgroup.Group
	for i, to := range recipients {
		g.Go(func() error {
			id, err := f.Send(ctx, &types.Message{
				From:    from,
				To:      to,
				Type:    msgType,
				Payload: payload,
			}, 0)
			if err != nil {
				f.logger.Warn("broadcast recipient skipped",
					zap.String("to", to),
					zap.Error(err),
				)
				return nil
			}
			ids[i] = id
			return nil
		})
	}
	_ = g.Wait()
	return ids, nil
}

// MessageStatus retrieves a copy of a message by ID.
func (f *Framework) MessageStatus(messageID string) (*types.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	msg, exists := f.messages[messageID]
	if !exists {
		return nil, types.Errorf(types.ErrMessageNotFound, "message %s not found", messageID)
	}
	return msg.Clone(), nil
}

// UpdateAgentState merges a partial state into an agent's shared view and
// bumps its version. The merged snapshot is what SynchronizeStates pushes.
func (f *Framework) UpdateAgentState(agentID string, partial map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap, exists := f.states[agentID]
	if !exists {
		snap = &stateSnapshot{Data: make(map[string]any)}
		f.states[agentID] = snap
	}
	for k, v := range partial {
		snap.Data[k] = v
	}
	snap.Version++
	snap.Updated = time.Now()
}

// AgentState returns a copy of one agent's shared view and its version.
func (f *Framework) AgentState(agentID string) (map[string]any, int64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	snap, exists := f.states[agentID]
	if !exists {
		return nil, 0
	}
	data := make(map[string]any, len(snap.Data))
	for k, v := range snap.Data {
		data[k] = v
	}
	return data, snap.Version
}

// SynchronizeStates pushes the current set of state snapshots to each named
// agent as a state-sync message and emits state-synchronized per agent.
func (f *Framework) SynchronizeStates(ctx context.Context, agentIDs []string) error {
	f.mu.Lock()
	snapshot := make(map[string]stateSnapshot, len(f.states))
	for id, snap := range f.states {
		data := make(map[string]any, len(snap.Data))
		for k, v := range snap.Data {
			data[k] = v
		}
		snapshot[id] = stateSnapshot{Version: snap.Version, Data: data, Updated: snap.Updated}
	}
	f.mu.Unlock()

	for _, agentID := range agentIDs {
		_, err := f.Send(ctx, &types.Message{
			To:      agentID,
			Type:    types.MessageStateSync,
			Payload: snapshot,
		}, 0)
		if err != nil {
			return err
		}
		f.publish(types.Event{
			Type: types.EventStateSynchronized, AgentID: agentID,
			Data: map[string]any{"agents": len(snapshot)},
		})
	}
	return nil
}

func (f *Framework) publish(evt types.Event) {
	if f.bus != nil {
		f.bus.Publish(evt)
	}
}
