package types

import "time"

// MessageType classifies a message envelope.
type MessageType string

const (
	MessageRequest   MessageType = "request"
	MessageResponse  MessageType = "response"
	MessageEvent     MessageType = "event"
	MessageStateSync MessageType = "state-sync"
)

// MessageStatus represents the delivery state of a message.
type MessageStatus string

const (
	MessageQueued    MessageStatus = "queued"
	MessageDelivered MessageStatus = "delivered"
	MessageFailed    MessageStatus = "failed"
)

// Message is an envelope routed by the communication framework. Delivery is
// at-least-once: each delivery attempt hands the message to the recipient's
// handler at most once, and failed attempts are retried with backoff up to a
// configured maximum.
type Message struct {
	// ID uniquely identifies the message. Generated when empty at send.
	ID string `json:"id"`

	// From is the sender agent ID.
	From string `json:"from"`

	// To is the recipient agent ID. Broadcasts fan out into independent
	// messages, one per recipient.
	To string `json:"to"`

	// Type classifies the envelope.
	Type MessageType `json:"type"`

	// Payload is the opaque message body.
	Payload any `json:"payload,omitempty"`

	// CollaborationID links a request message to the collaboration that
	// produced it, empty otherwise.
	CollaborationID string `json:"collaboration_id,omitempty"`

	// Status is the current delivery state.
	Status MessageStatus `json:"status"`

	// RetryCount is the number of delivery attempts performed so far.
	RetryCount int `json:"retry_count"`

	Timestamp time.Time `json:"timestamp"`
}

// Clone returns a copy of the message. The payload is shared.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	cp := *m
	return &cp
}
