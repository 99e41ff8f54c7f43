package feature

import (
	"hash/fnv"
	"sync"
	"time"
)

type accessState struct {
	WindowStart time.Time
	Count       uint64
}

type accessShard struct {
	mu      sync.Mutex
	sources map[string]*accessState
}

// AccessFrequencyTracker counts packets per source IP inside a tumbling
// window. The window resets lazily when the next packet arrives after it
// has elapsed.
type AccessFrequencyTracker struct {
	shards     []*accessShard
	shardCount uint32
	window     time.Duration
}

// NewAccessFrequencyTracker creates a tracker with the given window.
func NewAccessFrequencyTracker(window time.Duration, numShards uint32) *AccessFrequencyTracker {
	if window <= 0 {
		window = 5 * time.Minute
	}
	numShards = normalizeShardCount(numShards)
	t := &AccessFrequencyTracker{
		shards:     make([]*accessShard, numShards),
		shardCount: numShards,
		window:     window,
	}
	for i := range t.shards {
		t.shards[i] = &accessShard{sources: make(map[string]*accessState)}
	}
	return t
}

func (t *AccessFrequencyTracker) getShard(key string) *accessShard {
	hasher := fnv.New32a()
	hasher.Write([]byte(key))
	return t.shards[hasher.Sum32()%t.shardCount]
}

// Record counts one packet for the source at ts.
func (t *AccessFrequencyTracker) Record(srcIP string, ts time.Time) {
	shard := t.getShard(srcIP)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	s, ok := shard.sources[srcIP]
	if !ok {
		shard.sources[srcIP] = &accessState{WindowStart: ts, Count: 1}
		return
	}
	if ts.Sub(s.WindowStart) > t.window {
		s.WindowStart = ts
		s.Count = 0
	}
	s.Count++
}

// Count returns the packets seen from the source in the current window.
func (t *AccessFrequencyTracker) Count(srcIP string, now time.Time) uint64 {
	shard := t.getShard(srcIP)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	s, ok := shard.sources[srcIP]
	if !ok || now.Sub(s.WindowStart) > t.window {
		return 0
	}
	return s.Count
}

// Sweep drops sources whose window has fully elapsed and returns the number
// dropped.
func (t *AccessFrequencyTracker) Sweep(now time.Time) int {
	dropped := 0
	for _, shard := range t.shards {
		shard.mu.Lock()
		for src, s := range shard.sources {
			if now.Sub(s.WindowStart) > t.window {
				delete(shard.sources, src)
				dropped++
			}
		}
		shard.mu.Unlock()
	}
	return dropped
}
