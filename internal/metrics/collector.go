package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcore/types"
)

// Collector holds the orchestrator's Prometheus metrics.
type Collector struct {
	registry *prometheus.Registry

	// Agent metrics.
	agentsTotal    prometheus.Gauge
	agentsByStatus *prometheus.GaugeVec
	agentLoad      *prometheus.GaugeVec

	// Task metrics.
	taskEventsTotal  *prometheus.CounterVec
	taskRetriesTotal prometheus.Counter
	taskDuration     *prometheus.HistogramVec
	queueDepth       prometheus.Gauge

	// Message metrics.
	messageEventsTotal    *prometheus.CounterVec
	deliveryAttemptsTotal prometheus.Counter

	// Collaboration metrics.
	collaborationEventsTotal *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector creates a collector with its own registry, registering all
// metric vectors under the given namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	c := &Collector{
		registry: registry,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	c.agentsTotal = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "agents_total",
		Help:      "Number of registered agents",
	})

	c.agentsByStatus = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agents_by_status",
			Help:      "Number of registered agents per status",
		},
		[]string{"status"},
	)

	c.agentLoad = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agent_load",
			Help:      "Current load per agent",
		},
		[]string{"agent_id"},
	)

	c.taskEventsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_events_total",
			Help:      "Total task lifecycle events",
		},
		[]string{"event"},
	)

	c.taskRetriesTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "task_retries_total",
		Help:      "Total task execution retries",
	})

	c.taskDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Task execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"agent_id", "status"},
	)

	c.queueDepth = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "task_queue_depth",
		Help:      "Number of tasks waiting for assignment",
	})

	c.messageEventsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "message_events_total",
			Help:      "Total message lifecycle events",
		},
		[]string{"event"},
	)

	c.deliveryAttemptsTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "message_delivery_attempts_total",
		Help:      "Total message delivery attempts that failed and were retried",
	})

	c.collaborationEventsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collaboration_events_total",
			Help:      "Total collaboration lifecycle events",
		},
		[]string{"event"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// Registry exposes the collector's registry for the /metrics handler.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Observe records one lifecycle event into the matching counters.
func (c *Collector) Observe(evt types.Event) {
	switch evt.Type {
	case types.EventTaskSubmitted, types.EventTaskAssigned, types.EventTaskCancelled:
		c.taskEventsTotal.WithLabelValues(string(evt.Type)).Inc()

	case types.EventTaskCompleted:
		c.taskEventsTotal.WithLabelValues(string(evt.Type)).Inc()
		if d, ok := evt.Data["duration"].(time.Duration); ok {
			c.RecordTaskDuration(evt.AgentID, "completed", d)
		}

	case types.EventTaskFailed:
		c.taskEventsTotal.WithLabelValues(string(evt.Type)).Inc()
		if d, ok := evt.Data["duration"].(time.Duration); ok {
			c.RecordTaskDuration(evt.AgentID, "failed", d)
		}

	case types.EventTaskReassigned:
		c.taskEventsTotal.WithLabelValues(string(evt.Type)).Inc()
		c.taskRetriesTotal.Inc()

	case types.EventMessageSent, types.EventMessageDelivered:
		c.messageEventsTotal.WithLabelValues(string(evt.Type)).Inc()

	case types.EventMessageFailed:
		c.messageEventsTotal.WithLabelValues(string(evt.Type)).Inc()
		if _, terminal := evt.Data["terminal"]; !terminal {
			c.deliveryAttemptsTotal.Inc()
		}

	case types.EventCollaborationStarted, types.EventCollaborationCompleted,
		types.EventCollaborationPartial, types.EventCollaborationCancelled:
		c.collaborationEventsTotal.WithLabelValues(string(evt.Type)).Inc()
	}
}

// RecordTaskDuration records one finished execution.
func (c *Collector) RecordTaskDuration(agentID, status string, duration time.Duration) {
	c.taskDuration.WithLabelValues(agentID, status).Observe(duration.Seconds())
}

// UpdateAgentGauges refreshes the agent gauges from a registry listing.
func (c *Collector) UpdateAgentGauges(agents []*types.Agent) {
	c.agentsTotal.Set(float64(len(agents)))

	byStatus := make(map[types.AgentStatus]int)
	c.agentLoad.Reset()
	for _, a := range agents {
		byStatus[a.Status]++
		c.agentLoad.WithLabelValues(a.ID).Set(float64(a.CurrentLoad))
	}

	c.agentsByStatus.Reset()
	for status, n := range byStatus {
		c.agentsByStatus.WithLabelValues(string(status)).Set(float64(n))
	}
}

// SetQueueDepth refreshes the queue-depth gauge.
func (c *Collector) SetQueueDepth(depth int) {
	c.queueDepth.Set(float64(depth))
}
