package feature

import (
	"hash/fnv"
	"sync"
	"time"
)

type loginShard struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
}

// LoginAttemptTracker counts failed authentication events per source IP
// inside a rolling window. Old entries are pruned lazily at query time.
type LoginAttemptTracker struct {
	shards     []*loginShard
	shardCount uint32
	window     time.Duration
}

// NewLoginAttemptTracker creates a tracker with the given rolling window.
func NewLoginAttemptTracker(window time.Duration, numShards uint32) *LoginAttemptTracker {
	if window <= 0 {
		window = time.Hour
	}
	numShards = normalizeShardCount(numShards)
	t := &LoginAttemptTracker{
		shards:     make([]*loginShard, numShards),
		shardCount: numShards,
		window:     window,
	}
	for i := range t.shards {
		t.shards[i] = &loginShard{attempts: make(map[string][]time.Time)}
	}
	return t
}

func (t *LoginAttemptTracker) getShard(key string) *loginShard {
	hasher := fnv.New32a()
	hasher.Write([]byte(key))
	return t.shards[hasher.Sum32()%t.shardCount]
}

// Record appends one failed-auth event for the source.
func (t *LoginAttemptTracker) Record(srcIP string, ts time.Time) {
	shard := t.getShard(srcIP)
	shard.mu.Lock()
	shard.attempts[srcIP] = append(shard.attempts[srcIP], ts)
	shard.mu.Unlock()
}

// Count returns the number of failures inside the trailing window, pruning
// older entries in place.
func (t *LoginAttemptTracker) Count(srcIP string, now time.Time) int {
	shard := t.getShard(srcIP)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	kept := pruneBefore(shard.attempts[srcIP], now.Add(-t.window))
	if len(kept) == 0 {
		delete(shard.attempts, srcIP)
		return 0
	}
	shard.attempts[srcIP] = kept
	return len(kept)
}

// Sweep prunes every source and drops the ones with no remaining failures.
// Returns the number of dropped sources.
func (t *LoginAttemptTracker) Sweep(now time.Time) int {
	cutoff := now.Add(-t.window)
	dropped := 0
	for _, shard := range t.shards {
		shard.mu.Lock()
		for src, list := range shard.attempts {
			kept := pruneBefore(list, cutoff)
			if len(kept) == 0 {
				delete(shard.attempts, src)
				dropped++
			} else {
				shard.attempts[src] = kept
			}
		}
		shard.mu.Unlock()
	}
	return dropped
}

// pruneBefore drops the leading entries at or before the cutoff. Timestamps
// arrive in near-chronological order, so scanning from the front is enough.
func pruneBefore(list []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(list) && !list[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return list
	}
	return append(list[:0], list[i:]...)
}
