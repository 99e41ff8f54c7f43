package stats

import (
	"context"
	"log"
	"sync"
	"time"

	"NetSentry/internal/metrics"
	"NetSentry/internal/model"
)

const flushTimeout = 5 * time.Second

// protocolName maps IP protocol numbers onto the display names used by the
// per-protocol counters. Everything unlisted lands in "other".
func protocolName(p uint8) string {
	switch p {
	case 1:
		return "icmp"
	case 6:
		return "tcp"
	case 17:
		return "udp"
	}
	return "other"
}

type window struct {
	start      time.Time
	packets    uint64
	bytes      uint64
	dropped    uint64
	detections uint64
	byProtocol map[string]uint64
}

func newWindow(start time.Time) *window {
	return &window{start: start, byProtocol: make(map[string]uint64)}
}

// Aggregator accumulates traffic counters for the current measurement
// window and flushes each completed window to the snapshot store. Counting
// never blocks on storage; the flush loop owns the store round trips.
type Aggregator struct {
	interval time.Duration
	store    model.SnapshotStore
	active   func() uint64

	mu  sync.Mutex
	cur *window

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewAggregator creates an aggregator flushing every interval. A nil store
// keeps windows in memory only; activeConns supplies the live connection
// count sampled at flush time and may be nil.
func NewAggregator(interval time.Duration, store model.SnapshotStore, activeConns func() uint64) *Aggregator {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Aggregator{
		interval: interval,
		store:    store,
		active:   activeConns,
		cur:      newWindow(time.Now()),
		stopChan: make(chan struct{}),
	}
}

// RecordPacket counts one processed packet in the open window.
func (a *Aggregator) RecordPacket(pkt *model.PacketInfo) {
	name := protocolName(pkt.FiveTuple.Protocol)
	a.mu.Lock()
	a.cur.packets++
	a.cur.bytes += uint64(pkt.Length)
	a.cur.byProtocol[name]++
	a.mu.Unlock()
}

// RecordDrop counts a packet rejected at the intake queue.
func (a *Aggregator) RecordDrop() {
	a.mu.Lock()
	a.cur.dropped++
	a.mu.Unlock()
}

// RecordDetections counts raw detector verdicts. Alert deduplication
// happens downstream, so this number can exceed the alert count.
func (a *Aggregator) RecordDetections(n int) {
	if n <= 0 {
		return
	}
	a.mu.Lock()
	a.cur.detections += uint64(n)
	a.mu.Unlock()
}

// Peek copies the counters of the still-open window without closing it.
func (a *Aggregator) Peek(now time.Time) *model.TrafficStatsSnapshot {
	a.mu.Lock()
	byProto := make(map[string]uint64, len(a.cur.byProtocol))
	for name, count := range a.cur.byProtocol {
		byProto[name] = count
	}
	snapshot := &model.TrafficStatsSnapshot{
		WindowStart: a.cur.start,
		WindowEnd:   now,
		Packets:     a.cur.packets,
		Bytes:       a.cur.bytes,
		Dropped:     a.cur.dropped,
		Detections:  a.cur.detections,
		ByProtocol:  byProto,
	}
	a.mu.Unlock()
	if a.active != nil {
		snapshot.ActiveConnections = a.active()
	}
	return snapshot
}

// Flush closes the current window, persists its snapshot and opens the
// next one. Empty windows are still written so dashboards see explicit
// zeroes instead of gaps.
func (a *Aggregator) Flush(now time.Time) *model.TrafficStatsSnapshot {
	a.mu.Lock()
	closed := a.cur
	a.cur = newWindow(now)
	a.mu.Unlock()

	snapshot := &model.TrafficStatsSnapshot{
		WindowStart: closed.start,
		WindowEnd:   now,
		Packets:     closed.packets,
		Bytes:       closed.bytes,
		Dropped:     closed.dropped,
		Detections:  closed.detections,
		ByProtocol:  closed.byProtocol,
	}
	if a.active != nil {
		snapshot.ActiveConnections = a.active()
	}
	if a.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
		if err := a.store.SaveSnapshot(ctx, snapshot); err != nil {
			log.Printf("ERROR: failed to persist traffic stats snapshot: %v", err)
			metrics.PersistErrors.Inc()
		} else {
			metrics.SnapshotsWritten.Inc()
		}
	}
	return snapshot
}

// Start launches the periodic flush loop.
func (a *Aggregator) Start() {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.Flush(time.Now())
			case <-a.stopChan:
				// Final flush so shutdown never loses the open window.
				a.Flush(time.Now())
				return
			}
		}
	}()
}

// Stop halts the flush loop after one final flush of the open window.
func (a *Aggregator) Stop() {
	close(a.stopChan)
	a.wg.Wait()
}
