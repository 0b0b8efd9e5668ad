/*
Package registry owns the agent table.

The Registry is the single mutation point for agent records: registration,
unregistration, heartbeats, state updates, and the scheduler's slot
bookkeeping all go through it under one lock, so the assignment loop, the
health monitor, and caller entry points never observe partial updates.

The HealthMonitor evaluates heartbeat staleness on a fixed interval and
transitions agents offline; it never polls agents directly — agents push
heartbeats out-of-band through Registry.Heartbeat.

A SnapshotStore can optionally persist registry snapshots (Redis-backed by
default) so a restarted orchestrator can restore its last known agent view.
*/
package registry
