package feature

import (
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"NetSentry/internal/model"
)

const defaultShardCount = 256

// ConnectionState holds the lifetime counters for one connection, keyed by
// (src IP, dst IP, dst port). Owned exclusively by the ConnectionTracker.
type ConnectionState struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Packets   uint64
	Bytes     uint64
}

type connShard struct {
	mu    sync.RWMutex
	conns map[string]*ConnectionState
}

// ConnectionTracker tracks connection lifetimes using a sharded map so that
// packet workers never serialize on a single lock.
type ConnectionTracker struct {
	shards      []*connShard
	shardCount  uint32
	idleTimeout time.Duration
}

// NewConnectionTracker creates a tracker that evicts connections after
// idleTimeout of inactivity.
func NewConnectionTracker(idleTimeout time.Duration, numShards uint32) *ConnectionTracker {
	if idleTimeout <= 0 {
		idleTimeout = 5 * time.Minute
	}
	numShards = normalizeShardCount(numShards)
	t := &ConnectionTracker{
		shards:      make([]*connShard, numShards),
		shardCount:  numShards,
		idleTimeout: idleTimeout,
	}
	for i := range t.shards {
		t.shards[i] = &connShard{conns: make(map[string]*ConnectionState)}
	}
	return t
}

// connectionKey builds the (src IP, dst IP, dst port) key.
func connectionKey(ft model.FiveTuple) string {
	return ft.SrcIP.String() + "-" + ft.DstIP.String() + "-" + strconv.Itoa(int(ft.DstPort))
}

func (t *ConnectionTracker) getShard(key string) *connShard {
	hasher := fnv.New32a()
	hasher.Write([]byte(key))
	return t.shards[hasher.Sum32()%t.shardCount]
}

// Observe upserts the connection state for a packet.
func (t *ConnectionTracker) Observe(pkt *model.PacketInfo) {
	key := connectionKey(pkt.FiveTuple)
	shard := t.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if c, ok := shard.conns[key]; ok {
		c.LastSeen = pkt.Timestamp
		c.Packets++
		c.Bytes += uint64(pkt.Length)
	} else {
		shard.conns[key] = &ConnectionState{
			FirstSeen: pkt.Timestamp,
			LastSeen:  pkt.Timestamp,
			Packets:   1,
			Bytes:     uint64(pkt.Length),
		}
	}
}

// Duration returns the elapsed seconds since the connection was first seen.
// The second return is false for unknown (or already evicted) connections.
func (t *ConnectionTracker) Duration(ft model.FiveTuple, now time.Time) (float64, bool) {
	key := connectionKey(ft)
	shard := t.getShard(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	c, ok := shard.conns[key]
	if !ok {
		return 0, false
	}
	elapsed := now.Sub(c.FirstSeen).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed, true
}

// Active returns the number of currently tracked connections.
func (t *ConnectionTracker) Active() uint64 {
	var total uint64
	for _, shard := range t.shards {
		shard.mu.RLock()
		total += uint64(len(shard.conns))
		shard.mu.RUnlock()
	}
	return total
}

// Sweep evicts connections idle for longer than the timeout and returns the
// number of evicted entries.
func (t *ConnectionTracker) Sweep(now time.Time) int {
	cutoff := now.Add(-t.idleTimeout)
	evicted := 0
	for _, shard := range t.shards {
		shard.mu.Lock()
		for key, c := range shard.conns {
			if c.LastSeen.Before(cutoff) {
				delete(shard.conns, key)
				evicted++
			}
		}
		shard.mu.Unlock()
	}
	return evicted
}
