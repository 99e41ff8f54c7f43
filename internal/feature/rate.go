package feature

import (
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"NetSentry/internal/model"
)

type flowRateState struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Bytes     uint64
}

type rateShard struct {
	mu    sync.RWMutex
	flows map[string]*flowRateState
}

// FlowRateCalculator accumulates bytes per flow since first-seen and reports
// the byte rate as total bytes over elapsed time, clamped to one second.
type FlowRateCalculator struct {
	shards      []*rateShard
	shardCount  uint32
	idleTimeout time.Duration
}

// NewFlowRateCalculator creates a calculator that forgets flows idle for
// longer than idleTimeout.
func NewFlowRateCalculator(idleTimeout time.Duration, numShards uint32) *FlowRateCalculator {
	if idleTimeout <= 0 {
		idleTimeout = 5 * time.Minute
	}
	numShards = normalizeShardCount(numShards)
	t := &FlowRateCalculator{
		shards:      make([]*rateShard, numShards),
		shardCount:  numShards,
		idleTimeout: idleTimeout,
	}
	for i := range t.shards {
		t.shards[i] = &rateShard{flows: make(map[string]*flowRateState)}
	}
	return t
}

// flowKey builds the full flow key (src IP, dst IP, dst port, protocol).
func flowKey(ft model.FiveTuple) string {
	return ft.SrcIP.String() + "-" + ft.DstIP.String() + "-" +
		strconv.Itoa(int(ft.DstPort)) + "-" + strconv.Itoa(int(ft.Protocol))
}

func (t *FlowRateCalculator) getShard(key string) *rateShard {
	hasher := fnv.New32a()
	hasher.Write([]byte(key))
	return t.shards[hasher.Sum32()%t.shardCount]
}

// Observe adds the packet's bytes to its flow.
func (t *FlowRateCalculator) Observe(pkt *model.PacketInfo) {
	key := flowKey(pkt.FiveTuple)
	shard := t.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if f, ok := shard.flows[key]; ok {
		f.LastSeen = pkt.Timestamp
		f.Bytes += uint64(pkt.Length)
	} else {
		shard.flows[key] = &flowRateState{
			FirstSeen: pkt.Timestamp,
			LastSeen:  pkt.Timestamp,
			Bytes:     uint64(pkt.Length),
		}
	}
}

// Rate returns bytes-per-second for the flow, 0 for unknown flows.
func (t *FlowRateCalculator) Rate(ft model.FiveTuple, now time.Time) float64 {
	key := flowKey(ft)
	shard := t.getShard(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	f, ok := shard.flows[key]
	if !ok {
		return 0
	}
	elapsed := now.Sub(f.FirstSeen).Seconds()
	if elapsed < 1 {
		elapsed = 1
	}
	return float64(f.Bytes) / elapsed
}

// Sweep evicts idle flows and returns the number evicted.
func (t *FlowRateCalculator) Sweep(now time.Time) int {
	cutoff := now.Add(-t.idleTimeout)
	evicted := 0
	for _, shard := range t.shards {
		shard.mu.Lock()
		for key, f := range shard.flows {
			if f.LastSeen.Before(cutoff) {
				delete(shard.flows, key)
				evicted++
			}
		}
		shard.mu.Unlock()
	}
	return evicted
}
