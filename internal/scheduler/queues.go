package scheduler

import (
	"sync"

	"github.com/nexar/hal/internal/job"
)

// Queues holds the per-BatchKey FIFO of pending job IDs the batch monitor
// loop drains. Membership is just job_id references (spec §3: "Pending
// per-batch queues hold references by job_id, never copies of submission
// state") — the authoritative submission always lives in the JobStore.
type Queues struct {
	mu   sync.Mutex
	byKey map[job.BatchKey][]string
}

func NewQueues() *Queues {
	return &Queues{byKey: make(map[job.BatchKey][]string)}
}

// Enqueue appends jobID to the back of key's queue.
func (q *Queues) Enqueue(key job.BatchKey, jobID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.byKey[key] = append(q.byKey[key], jobID)
}

// Keys returns a snapshot of every BatchKey with a non-empty queue.
func (q *Queues) Keys() []job.BatchKey {
	q.mu.Lock()
	defer q.mu.Unlock()
	keys := make([]job.BatchKey, 0, len(q.byKey))
	for k, members := range q.byKey {
		if len(members) > 0 {
			keys = append(keys, k)
		}
	}
	return keys
}

// Members returns a snapshot copy of key's current queue.
func (q *Queues) Members(key job.BatchKey) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	members := q.byKey[key]
	out := make([]string, len(members))
	copy(out, members)
	return out
}

// TakePrefix removes and returns up to n job IDs from the front of key's
// queue, in FIFO order, implementing "take the head prefix of length <=
// MAX_BATCH_SIZE, remove from the queue" (spec §4.4 step 5).
func (q *Queues) TakePrefix(key job.BatchKey, n int) []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	members := q.byKey[key]
	if n > len(members) {
		n = len(members)
	}
	taken := make([]string, n)
	copy(taken, members[:n])
	q.byKey[key] = members[n:]
	return taken
}

// Remove drops a single job_id from key's queue regardless of position,
// used by cancellation (spec §4.4: "cancel on a SCHEDULED or QUEUED job
// removes it from its index/queue").
func (q *Queues) Remove(key job.BatchKey, jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	members := q.byKey[key]
	for i, id := range members {
		if id == jobID {
			q.byKey[key] = append(members[:i], members[i+1:]...)
			return true
		}
	}
	return false
}
