// Package orchestrator wires the orchestration core together: agent
// registry with health monitoring, task scheduler, communication framework,
// event bus, and Prometheus metrics behind one facade with a single
// lifecycle.
package orchestrator
