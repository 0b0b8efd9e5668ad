package registry

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcore/events"
	"github.com/BaSui01/agentcore/types"
)

// MonitorConfig holds configuration for the health monitor.
type MonitorConfig struct {
	// Interval is the time between staleness evaluations.
	Interval time.Duration `json:"interval" yaml:"interval"`

	// LivenessWindow is the maximum heartbeat age before an agent is
	// marked offline.
	LivenessWindow time.Duration `json:"liveness_window" yaml:"liveness_window"`

	// EvictAfter removes agents that stay offline for this long.
	// Zero disables eviction.
	EvictAfter time.Duration `json:"evict_after" yaml:"evict_after"`
}

// DefaultMonitorConfig returns a MonitorConfig with sensible defaults.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval:       30 * time.Second,
		LivenessWindow: 30 * time.Second,
		EvictAfter:     0,
	}
}

// HealthMonitor periodically evaluates heartbeat staleness and transitions
// agents offline. Agents push heartbeats through Registry.Heartbeat; the
// monitor never contacts them.
type HealthMonitor struct {
	registry *Registry
	config   MonitorConfig
	bus      *events.Bus
	logger   *zap.Logger

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// NewHealthMonitor creates a health monitor over the given registry.
func NewHealthMonitor(reg *Registry, config MonitorConfig, bus *events.Bus, logger *zap.Logger) *HealthMonitor {
	if config.Interval <= 0 {
		config.Interval = DefaultMonitorConfig().Interval
	}
	if config.LivenessWindow <= 0 {
		config.LivenessWindow = DefaultMonitorConfig().LivenessWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthMonitor{
		registry: reg,
		config:   config,
		bus:      bus,
		logger:   logger.With(zap.String("component", "health_monitor")),
		done:     make(chan struct{}),
	}
}

// Start begins the monitoring loop.
func (h *HealthMonitor) Start() {
	h.wg.Add(1)
	go h.run()
	h.logger.Info("health monitor started",
		zap.Duration("interval", h.config.Interval),
		zap.Duration("liveness_window", h.config.LivenessWindow),
	)
}

// Stop halts the monitoring loop and waits for it to exit.
func (h *HealthMonitor) Stop() {
	h.once.Do(func() { close(h.done) })
	h.wg.Wait()
	h.logger.Info("health monitor stopped")
}

func (h *HealthMonitor) run() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.Tick()
		case <-h.done:
			return
		}
	}
}

// Tick performs one staleness evaluation. Exported so tests and callers with
// their own timers can drive the monitor directly.
func (h *HealthMonitor) Tick() {
	stale := h.registry.MarkStale(h.config.LivenessWindow)
	for _, id := range stale {
		h.logger.Warn("agent heartbeat stale, marked offline",
			zap.String("agent_id", id),
			zap.Duration("liveness_window", h.config.LivenessWindow),
		)
		if h.bus != nil {
			h.bus.Publish(types.Event{Type: types.EventAgentOffline, AgentID: id})
		}
	}

	if h.config.EvictAfter > 0 {
		h.registry.EvictOffline(h.config.EvictAfter)
	}
}
