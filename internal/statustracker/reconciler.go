package statustracker

import (
	"context"
	"log"
	"time"

	"github.com/nexar/hal/internal/job"
)

// StartReconciler runs a background loop that claims a lease on every
// SUBMITTED submission (in its shard, when sharding is configured) it owns
// or can take over, then pulls its status
// via GetStatus so jobs progress even without a caller polling. Grounded on
// TryClaimOrRenewJobLease: any worker may claim a job that is unowned or
// whose lease has expired, so a crash-restarted or horizontally-scaled HAL
// process resumes reconciliation without double-submitting work.
func (t *Tracker) StartReconciler(ctx context.Context) {
	ticker := time.NewTicker(t.reconcileEvery)
	defer ticker.Stop()

	t.reconcileTick(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Println("statustracker: reconciler stopped")
			return
		case <-ticker.C:
			t.reconcileTick(ctx)
		}
	}
}

func (t *Tracker) reconcileTick(ctx context.Context) {
	all, err := t.store.LoadAll(ctx)
	if err != nil {
		log.Printf("statustracker: list submissions for reconcile: %v", err)
		return
	}

	claimed := 0
	for _, sub := range all {
		if sub.Status != job.StatusSubmitted {
			continue
		}
		if t.shardRing != nil && t.shardRing.ShardFor(sub.ID) != t.shardIndex {
			continue
		}
		owned, err := t.store.TryClaimLease(ctx, sub.ID, t.workerID, time.Now().UTC().Add(t.leaseTTL))
		if err != nil {
			log.Printf("statustracker: claim lease for %s: %v", sub.ID, err)
			continue
		}
		if !owned {
			continue
		}
		claimed++
		if _, err := t.GetStatus(ctx, sub.ID); err != nil {
			log.Printf("statustracker: reconcile %s: %v", sub.ID, err)
		}
	}
	if claimed > 0 {
		log.Printf("statustracker: reconciled %d submitted job(s) owned by %s", claimed, t.workerID)
	}
}
