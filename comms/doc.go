// Package comms implements the inter-agent communication framework: handler
// registration, asynchronous at-least-once message delivery with backoff,
// broadcast fan-out, state synchronization, and multi-agent collaborations
// with pluggable response aggregation.
package comms
