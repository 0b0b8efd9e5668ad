package types

import "time"

// EventType identifies a lifecycle event on the orchestrator's event stream.
type EventType string

const (
	EventAgentRegistered   EventType = "agent-registered"
	EventAgentUnregistered EventType = "agent-unregistered"
	EventAgentOnline       EventType = "agent-online"
	EventAgentOffline      EventType = "agent-offline"

	EventTaskSubmitted  EventType = "task-submitted"
	EventTaskAssigned   EventType = "task-assigned"
	EventTaskCompleted  EventType = "task-completed"
	EventTaskFailed     EventType = "task-failed"
	EventTaskReassigned EventType = "task-reassigned"
	EventTaskCancelled  EventType = "task-cancelled"

	EventMessageSent      EventType = "message-sent"
	EventMessageDelivered EventType = "message-delivered"
	EventMessageFailed    EventType = "message-failed"

	EventStateSynchronized EventType = "state-synchronized"

	EventCollaborationStarted   EventType = "collaboration-started"
	EventCollaborationCompleted EventType = "collaboration-completed"
	EventCollaborationPartial   EventType = "collaboration-partial"
	EventCollaborationCancelled EventType = "collaboration-cancelled"
)

// Event is a lifecycle notification published on the orchestrator's event
// stream. It is the sole reporting surface of the core; dashboards and logs
// subscribe to it rather than polling component state.
type Event struct {
	Type EventType `json:"type"`

	// Entity references. Only the fields relevant to the event type are set.
	AgentID         string `json:"agent_id,omitempty"`
	TaskID          string `json:"task_id,omitempty"`
	MessageID       string `json:"message_id,omitempty"`
	CollaborationID string `json:"collaboration_id,omitempty"`

	// Data holds event-specific detail (retry attempt, failure reason, ...).
	Data map[string]any `json:"data,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}
