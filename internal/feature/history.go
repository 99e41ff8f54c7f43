package feature

import (
	"hash/fnv"
	"sync"
	"time"

	"NetSentry/internal/model"
)

type historyShard struct {
	mu      sync.Mutex
	sources map[string][]model.HistoryEntry
}

// RecentHistory keeps a bounded sliding window of packets per source IP,
// limited both by entry count and by age. Aggregate signature rules read it
// through Recent, which always returns an independent copy.
type RecentHistory struct {
	shards     []*historyShard
	shardCount uint32
	size       int
	window     time.Duration
}

// NewRecentHistory creates a history keeping at most size entries per source,
// none older than window.
func NewRecentHistory(size int, window time.Duration, numShards uint32) *RecentHistory {
	if size <= 0 {
		size = 64
	}
	if window <= 0 {
		window = 10 * time.Second
	}
	numShards = normalizeShardCount(numShards)
	h := &RecentHistory{
		shards:     make([]*historyShard, numShards),
		shardCount: numShards,
		size:       size,
		window:     window,
	}
	for i := range h.shards {
		h.shards[i] = &historyShard{sources: make(map[string][]model.HistoryEntry)}
	}
	return h
}

func (h *RecentHistory) getShard(key string) *historyShard {
	hasher := fnv.New32a()
	hasher.Write([]byte(key))
	return h.shards[hasher.Sum32()%h.shardCount]
}

// Append remembers the packet for its source, evicting the oldest entry when
// the ring is full.
func (h *RecentHistory) Append(pkt *model.PacketInfo) {
	src := pkt.FiveTuple.SrcIP.String()
	entry := model.HistoryEntry{
		Timestamp: pkt.Timestamp,
		DstIP:     pkt.FiveTuple.DstIP.String(),
		DstPort:   pkt.FiveTuple.DstPort,
		Length:    pkt.Length,
	}

	shard := h.getShard(src)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	list := append(shard.sources[src], entry)
	if len(list) > h.size {
		list = append(list[:0], list[len(list)-h.size:]...)
	}
	shard.sources[src] = list
}

// Recent returns a copy of the source's window, pruning aged-out entries
// from the stored slice as a side effect.
func (h *RecentHistory) Recent(srcIP string, now time.Time) []model.HistoryEntry {
	shard := h.getShard(srcIP)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	list := shard.sources[srcIP]
	if len(list) == 0 {
		return nil
	}
	cutoff := now.Add(-h.window)
	i := 0
	for i < len(list) && list[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		list = append(list[:0], list[i:]...)
		if len(list) == 0 {
			delete(shard.sources, srcIP)
			return nil
		}
		shard.sources[srcIP] = list
	}

	out := make([]model.HistoryEntry, len(list))
	copy(out, list)
	return out
}

// Sweep drops sources whose newest entry is older than the window and
// returns the number dropped.
func (h *RecentHistory) Sweep(now time.Time) int {
	cutoff := now.Add(-h.window)
	dropped := 0
	for _, shard := range h.shards {
		shard.mu.Lock()
		for src, list := range shard.sources {
			if len(list) == 0 || list[len(list)-1].Timestamp.Before(cutoff) {
				delete(shard.sources, src)
				dropped++
			}
		}
		shard.mu.Unlock()
	}
	return dropped
}
