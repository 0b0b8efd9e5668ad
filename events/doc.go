// Package events provides the in-process publish/subscribe bus carrying the
// orchestrator's lifecycle event stream.
//
// Each subscriber owns a bounded buffered channel. Publishing never blocks:
// when a subscriber's queue is full the event is dropped for that subscriber
// and counted, so a slow observer cannot stall the assignment loop or message
// delivery.
package events
