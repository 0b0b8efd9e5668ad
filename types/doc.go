/*
Package types provides the shared data model for the orchestration core.

types is the lowest-level package with no internal dependencies. It defines
the entities tracked by the orchestrator — agents, tasks, messages and
collaborations — together with the lifecycle event vocabulary and the
structured error system used across all packages.

Tasks reference their assigned agent by ID and agents reference their active
tasks by ID; the owning tables live in registry and scheduler, never here.
*/
package types
