package stats

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"NetSentry/internal/model"
)

type fakeSnapshotStore struct {
	mu    sync.Mutex
	saved []*model.TrafficStatsSnapshot
	fail  bool
}

func (f *fakeSnapshotStore) SaveSnapshot(ctx context.Context, s *model.TrafficStatsSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("snapshot store unavailable")
	}
	f.saved = append(f.saved, s)
	return nil
}

func (f *fakeSnapshotStore) snapshots() []*model.TrafficStatsSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*model.TrafficStatsSnapshot(nil), f.saved...)
}

func packetOf(protocol uint8, length int) *model.PacketInfo {
	return &model.PacketInfo{
		Timestamp: time.Now(),
		Length:    length,
		FiveTuple: model.FiveTuple{
			SrcIP:    net.ParseIP("192.168.0.1"),
			DstIP:    net.ParseIP("10.0.0.5"),
			SrcPort:  40000,
			DstPort:  80,
			Protocol: protocol,
		},
	}
}

func TestAggregator_FlushValuesAndReset(t *testing.T) {
	agg := NewAggregator(time.Minute, nil, func() uint64 { return 7 })

	// 1. Fill one window with a known mix of traffic.
	agg.RecordPacket(packetOf(6, 100))
	agg.RecordPacket(packetOf(17, 200))
	agg.RecordPacket(packetOf(6, 300))
	agg.RecordDrop()
	agg.RecordDrop()
	agg.RecordDetections(4)

	// 2. The flushed snapshot carries every counter.
	snap := agg.Flush(time.Now())
	if snap.Packets != 3 || snap.Bytes != 600 {
		t.Errorf("expected 3 packets / 600 bytes, got %d / %d", snap.Packets, snap.Bytes)
	}
	if snap.Dropped != 2 || snap.Detections != 4 {
		t.Errorf("expected 2 drops / 4 detections, got %d / %d", snap.Dropped, snap.Detections)
	}
	if snap.ByProtocol["tcp"] != 2 || snap.ByProtocol["udp"] != 1 {
		t.Errorf("protocol breakdown wrong: %v", snap.ByProtocol)
	}
	if snap.ActiveConnections != 7 {
		t.Errorf("active connections not sampled from callback, got %d", snap.ActiveConnections)
	}

	// 3. Flushing opens a clean window.
	next := agg.Flush(time.Now())
	if next.Packets != 0 || next.Bytes != 0 || next.Dropped != 0 || next.Detections != 0 {
		t.Errorf("second flush should be empty, got %+v", next)
	}
	if len(next.ByProtocol) != 0 {
		t.Errorf("second flush should have no protocol counters, got %v", next.ByProtocol)
	}
}

func TestAggregator_PeekDoesNotReset(t *testing.T) {
	agg := NewAggregator(time.Minute, nil, nil)
	agg.RecordPacket(packetOf(6, 100))

	if got := agg.Peek(time.Now()); got.Packets != 1 {
		t.Fatalf("peek should see 1 packet, got %d", got.Packets)
	}
	if got := agg.Peek(time.Now()); got.Packets != 1 {
		t.Fatalf("peek must not consume the window, second peek got %d", got.Packets)
	}
	if got := agg.Flush(time.Now()); got.Packets != 1 {
		t.Fatalf("flush after peek should still see the packet, got %d", got.Packets)
	}
}

func TestAggregator_WindowBoundariesChain(t *testing.T) {
	agg := NewAggregator(time.Minute, nil, nil)

	cut := time.Now().Add(time.Minute)
	first := agg.Flush(cut)
	second := agg.Flush(cut.Add(time.Minute))

	if !second.WindowStart.Equal(first.WindowEnd) {
		t.Errorf("windows must chain: first end %v, second start %v", first.WindowEnd, second.WindowStart)
	}
}

func TestAggregator_StoreFailureDoesNotPanic(t *testing.T) {
	store := &fakeSnapshotStore{fail: true}
	agg := NewAggregator(time.Minute, store, nil)
	agg.RecordPacket(packetOf(6, 64))

	// A dead store costs a log line, nothing else.
	snap := agg.Flush(time.Now())
	if snap.Packets != 1 {
		t.Errorf("flush result must not depend on store health, got %d packets", snap.Packets)
	}
}

func TestAggregator_StopFlushesFinalWindow(t *testing.T) {
	store := &fakeSnapshotStore{}
	// Interval far beyond the test runtime, so only Stop can flush.
	agg := NewAggregator(time.Hour, store, nil)
	agg.Start()
	agg.RecordPacket(packetOf(17, 512))
	agg.Stop()

	saved := store.snapshots()
	if len(saved) != 1 {
		t.Fatalf("expected exactly the final flush, got %d snapshots", len(saved))
	}
	if saved[0].Packets != 1 || saved[0].Bytes != 512 {
		t.Errorf("final flush lost counters: %+v", saved[0])
	}
}

func TestAggregator_ConcurrentRecording(t *testing.T) {
	agg := NewAggregator(time.Minute, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				agg.RecordPacket(packetOf(6, 100))
			}
		}()
	}
	wg.Wait()

	snap := agg.Flush(time.Now())
	if snap.Packets != 4000 {
		t.Errorf("lost packet counts under concurrency: got %d, want 4000", snap.Packets)
	}
	if snap.Bytes != 400000 {
		t.Errorf("lost byte counts under concurrency: got %d, want 400000", snap.Bytes)
	}
}

func TestProtocolName(t *testing.T) {
	cases := []struct {
		proto uint8
		want  string
	}{
		{1, "icmp"},
		{6, "tcp"},
		{17, "udp"},
		{47, "other"},
	}
	for _, c := range cases {
		if got := protocolName(c.proto); got != c.want {
			t.Errorf("protocolName(%d) = %q, want %q", c.proto, got, c.want)
		}
	}
}
