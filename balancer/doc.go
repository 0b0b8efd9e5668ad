// Package balancer provides the pluggable load-balancing strategies the
// scheduler uses to map a pending task onto one of its eligible agents.
//
// The scheduler precomputes eligibility (agent available, capability tag
// matching the task type, spare capacity) and passes candidates in
// registration order; a Strategy only chooses among them. When no candidate
// suits, the strategy reports no selection and the scheduler leaves the task
// pending for the next tick.
package balancer
