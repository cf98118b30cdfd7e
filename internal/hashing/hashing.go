// Package hashing assigns string keys to shards via consistent hashing,
// replacing the teacher's gateway-to-worker routing use of the same library
// with HAL's own need (spec §5: "implementations may shard by job_id
// hash"): the status reconciler uses it to divide SUBMITTED jobs among HAL
// instances by job_id.
package hashing

import (
	"fmt"

	"github.com/buraksezer/consistent"
	"github.com/cespare/xxhash/v2"
)

// shard is a consistent.Member identifying one of N logical partitions.
type shard string

func (s shard) String() string { return string(s) }

type hasher struct{}

func (hasher) Sum64(data []byte) uint64 { return xxhash.Sum64(data) }

// Ring consistently maps string keys (job_id, BatchKey.String()) onto a
// fixed number of shards.
type Ring struct {
	c      *consistent.Consistent
	shards int
}

// New builds a ring with the given number of shards. shards must be >= 1.
func New(shards int) (*Ring, error) {
	if shards < 1 {
		return nil, fmt.Errorf("hashing: shards must be >= 1, got %d", shards)
	}
	members := make([]consistent.Member, shards)
	for i := 0; i < shards; i++ {
		members[i] = shard(fmt.Sprintf("shard-%d", i))
	}
	cfg := consistent.Config{
		PartitionCount:    max(shards*97, 97),
		ReplicationFactor: 20,
		Load:              1.25,
		Hasher:            hasher{},
	}
	return &Ring{c: consistent.New(members, cfg), shards: shards}, nil
}

// ShardFor returns the shard index a key belongs to, a stable assignment.
// The status reconciler calls it with a job_id to decide whether this
// instance polls that job.
func (r *Ring) ShardFor(key string) int {
	m := r.c.LocateKey([]byte(key))
	var idx int
	fmt.Sscanf(m.String(), "shard-%d", &idx)
	return idx
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
