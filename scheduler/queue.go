package scheduler

import "github.com/BaSui01/agentcore/types"

// queueEntry is a pending task reference. The effective priority starts at
// the task's own priority and rises through aging; the task record itself is
// never rewritten.
type queueEntry struct {
	taskID   string
	priority types.TaskPriority
	skipped  int
}

// taskQueue holds pending task IDs in per-priority FIFO levels. Not safe for
// concurrent use; the scheduler serializes access behind its own lock.
type taskQueue struct {
	levels [types.PriorityCritical + 1][]*queueEntry
}

func newTaskQueue() *taskQueue {
	return &taskQueue{}
}

// Push appends the task to the tail of its priority level.
func (q *taskQueue) Push(taskID string, priority types.TaskPriority) {
	if priority < types.PriorityLow {
		priority = types.PriorityLow
	}
	if priority > types.PriorityCritical {
		priority = types.PriorityCritical
	}
	q.levels[priority] = append(q.levels[priority], &queueEntry{taskID: taskID, priority: priority})
}

// Remove drops the task from whichever level holds it.
func (q *taskQueue) Remove(taskID string) bool {
	for p := range q.levels {
		for i, e := range q.levels[p] {
			if e.taskID == taskID {
				q.levels[p] = append(q.levels[p][:i], q.levels[p][i+1:]...)
				return true
			}
		}
	}
	return false
}

// Len returns the number of queued tasks.
func (q *taskQueue) Len() int {
	n := 0
	for _, level := range q.levels {
		n += len(level)
	}
	return n
}

// Entries returns queued entries in dequeue order: strictly higher priority
// first, FIFO within a level. The returned slice shares the queue's entries;
// callers remove assigned tasks via Remove.
func (q *taskQueue) Entries() []*queueEntry {
	out := make([]*queueEntry, 0, q.Len())
	for p := int(types.PriorityCritical); p >= int(types.PriorityLow); p-- {
		out = append(out, q.levels[p]...)
	}
	return out
}

// Age increments the skip counter of every queued entry and promotes those
// skipped at least threshold consecutive ticks one priority level, resetting
// their counter. A non-positive threshold disables aging.
func (q *taskQueue) Age(threshold int) {
	if threshold <= 0 {
		return
	}
	for p := int(types.PriorityHigh); p >= int(types.PriorityLow); p-- {
		kept := q.levels[p][:0]
		for _, e := range q.levels[p] {
			e.skipped++
			if e.skipped >= threshold {
				e.skipped = 0
				e.priority = types.TaskPriority(p + 1)
				q.levels[p+1] = append(q.levels[p+1], e)
			} else {
				kept = append(kept, e)
			}
		}
		q.levels[p] = kept
	}
	for _, e := range q.levels[types.PriorityCritical] {
		e.skipped++
	}
}
