/*
Package scheduler owns the task table and drives the assignment loop.

Tasks move through pending -> assigned -> running -> completed, with failed
executions retried back to pending until their retry budget is exhausted.
Assignment starvation is not a failure: a tick that finds no eligible agent
leaves the task pending and does not touch its retry count.

Within a priority level the queue is FIFO; across levels strictly higher
priority is dequeued first. A pending task skipped for too many consecutive
ticks is promoted one level at a time so sustained high-priority load cannot
starve low-priority work forever.
*/
package scheduler
