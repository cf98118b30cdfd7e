package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nexar/hal/internal/job"
)

// MemoryStore is the degraded in-memory fallback spec §4.3 permits when no
// persistent store is configured. It is grounded on the original system's
// RedisClient._in_memory_fallback dict: a plain map guarded by a mutex,
// offering the same hash + sorted-set shape the durable backend exposes,
// but gone on process restart.
type MemoryStore struct {
	mu          sync.Mutex
	submissions map[string]job.Submission
	scheduled   map[string]int64 // job_id -> scheduled_time unix seconds
	transitions []job.StateTransition
	leases      map[string]lease
}

type lease struct {
	ownerID string
	until   time.Time
}

// NewMemoryStore constructs the fallback store. Callers must log a startup
// warning that persistence is ephemeral; MemoryStore itself only advertises
// it via Persistence().
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		submissions: make(map[string]job.Submission),
		scheduled:   make(map[string]int64),
		leases:      make(map[string]lease),
	}
}

func (s *MemoryStore) Persistence() string { return PersistenceEphemeral }

func (s *MemoryStore) Put(ctx context.Context, sub job.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions[sub.ID] = sub
	if sub.Status == job.StatusScheduled && sub.Request.ScheduledTime != nil {
		s.scheduled[sub.ID] = sub.Request.ScheduledTime.Unix()
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, jobID string) (job.Submission, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.submissions[jobID]
	return sub, ok, nil
}

func (s *MemoryStore) AllScheduledDue(ctx context.Context, now int64) ([]job.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []string
	for id, t := range s.scheduled {
		if t <= now {
			due = append(due, id)
		}
	}
	sort.Slice(due, func(i, j int) bool { return s.scheduled[due[i]] < s.scheduled[due[j]] })
	out := make([]job.Submission, 0, len(due))
	for _, id := range due {
		out = append(out, s.submissions[id])
	}
	return out, nil
}

func (s *MemoryStore) RemoveScheduled(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scheduled, jobID)
	return nil
}

func (s *MemoryStore) LoadAll(ctx context.Context) ([]job.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]job.Submission, 0, len(s.submissions))
	for _, sub := range s.submissions {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) AppendTransition(ctx context.Context, t job.StateTransition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions = append(s.transitions, t)
	return nil
}

func (s *MemoryStore) TryClaimLease(ctx context.Context, jobID, ownerID string, leaseUntil time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	existing, held := s.leases[jobID]
	canClaim := !held || existing.ownerID == ownerID || existing.until.Before(now)
	if !canClaim {
		return false, nil
	}
	s.leases[jobID] = lease{ownerID: ownerID, until: leaseUntil}
	return true, nil
}
