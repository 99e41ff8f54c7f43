package feature

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"NetSentry/internal/model"
)

func makePacket(src, dst string, dstPort uint16, length int, ts time.Time) *model.PacketInfo {
	return &model.PacketInfo{
		Timestamp: ts,
		FiveTuple: model.FiveTuple{
			SrcIP:    net.ParseIP(src),
			DstIP:    net.ParseIP(dst),
			SrcPort:  40000,
			DstPort:  dstPort,
			Protocol: 6, // TCP
		},
		Length: length,
	}
}

func TestConnectionTracker_DurationAndEviction(t *testing.T) {
	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	tracker := NewConnectionTracker(5*time.Minute, 8)

	// 1. First packet opens the connection.
	pkt := makePacket("192.168.0.1", "10.0.0.1", 443, 100, base)
	tracker.Observe(pkt)

	// 2. Duration is measured from first-seen.
	d, ok := tracker.Duration(pkt.FiveTuple, base.Add(10*time.Second))
	if !ok {
		t.Fatalf("Expected connection to be tracked")
	}
	if d != 10 {
		t.Errorf("Expected duration 10s, got %v", d)
	}
	if tracker.Active() != 1 {
		t.Errorf("Expected 1 active connection, got %d", tracker.Active())
	}

	// 3. Sweep past the idle timeout evicts it.
	evicted := tracker.Sweep(base.Add(6 * time.Minute))
	if evicted != 1 {
		t.Errorf("Expected 1 eviction, got %d", evicted)
	}
	if _, ok := tracker.Duration(pkt.FiveTuple, base.Add(6*time.Minute)); ok {
		t.Errorf("Expected evicted connection to be unknown")
	}

	// 4. The next packet restarts the connection from scratch.
	tracker.Observe(makePacket("192.168.0.1", "10.0.0.1", 443, 100, base.Add(7*time.Minute)))
	d, ok = tracker.Duration(pkt.FiveTuple, base.Add(7*time.Minute))
	if !ok || d != 0 {
		t.Errorf("Expected restarted connection with duration 0, got %v (tracked=%v)", d, ok)
	}
}

func TestLoginAttemptTracker_WindowPruning(t *testing.T) {
	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	tracker := NewLoginAttemptTracker(time.Hour, 8)

	tracker.Record("192.168.0.1", base)
	tracker.Record("192.168.0.1", base.Add(10*time.Minute))
	tracker.Record("192.168.0.1", base.Add(20*time.Minute))

	if got := tracker.Count("192.168.0.1", base.Add(30*time.Minute)); got != 3 {
		t.Errorf("Expected 3 failures inside the window, got %d", got)
	}

	// 90 minutes later only the 20-minute entry would be inside a fresh
	// window; all three are older than an hour.
	if got := tracker.Count("192.168.0.1", base.Add(90*time.Minute)); got != 0 {
		t.Errorf("Expected all failures pruned, got %d", got)
	}

	// An unknown source reads as zero.
	if got := tracker.Count("10.9.9.9", base); got != 0 {
		t.Errorf("Expected 0 for unknown source, got %d", got)
	}
}

func TestFlowRateCalculator_Rate(t *testing.T) {
	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	calc := NewFlowRateCalculator(5*time.Minute, 8)

	ft := makePacket("192.168.0.1", "10.0.0.1", 443, 1000, base).FiveTuple

	// 1. A single packet with zero elapsed time clamps the divisor to 1s.
	calc.Observe(makePacket("192.168.0.1", "10.0.0.1", 443, 1000, base))
	if rate := calc.Rate(ft, base); rate != 1000 {
		t.Errorf("Expected clamped rate 1000 B/s, got %v", rate)
	}

	// 2. More packets accumulate over elapsed time.
	calc.Observe(makePacket("192.168.0.1", "10.0.0.1", 443, 1000, base.Add(time.Second)))
	calc.Observe(makePacket("192.168.0.1", "10.0.0.1", 443, 1000, base.Add(2*time.Second)))
	if rate := calc.Rate(ft, base.Add(2*time.Second)); rate != 1500 {
		t.Errorf("Expected 3000B/2s = 1500 B/s, got %v", rate)
	}

	// 3. Unknown flows read as zero.
	other := makePacket("172.16.0.9", "10.0.0.1", 80, 0, base).FiveTuple
	if rate := calc.Rate(other, base); rate != 0 {
		t.Errorf("Expected 0 for unknown flow, got %v", rate)
	}
}

func TestAccessFrequencyTracker_WindowReset(t *testing.T) {
	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	tracker := NewAccessFrequencyTracker(10*time.Second, 8)

	for i := 0; i < 5; i++ {
		tracker.Record("192.168.0.1", base.Add(time.Duration(i)*time.Second))
	}
	if got := tracker.Count("192.168.0.1", base.Add(5*time.Second)); got != 5 {
		t.Errorf("Expected 5 packets inside the window, got %d", got)
	}

	// A packet past the window starts a fresh count.
	tracker.Record("192.168.0.1", base.Add(25*time.Second))
	if got := tracker.Count("192.168.0.1", base.Add(25*time.Second)); got != 1 {
		t.Errorf("Expected window reset to 1, got %d", got)
	}

	// With nothing recorded since, an elapsed window reads as zero.
	if got := tracker.Count("192.168.0.1", base.Add(60*time.Second)); got != 0 {
		t.Errorf("Expected 0 after the window elapsed, got %d", got)
	}
}

func TestRecentHistory_BoundAndExpiry(t *testing.T) {
	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	history := NewRecentHistory(4, 10*time.Second, 8)

	// 1. Size bound keeps only the newest entries.
	for i := 0; i < 6; i++ {
		history.Append(makePacket("192.168.0.1", "10.0.0.1", uint16(1000+i), 60, base.Add(time.Duration(i)*time.Second)))
	}
	entries := history.Recent("192.168.0.1", base.Add(6*time.Second))
	if len(entries) != 4 {
		t.Fatalf("Expected 4 entries after ring eviction, got %d", len(entries))
	}
	if entries[0].DstPort != 1002 {
		t.Errorf("Expected oldest kept entry to be port 1002, got %d", entries[0].DstPort)
	}

	// 2. Entries age out of the time window.
	entries = history.Recent("192.168.0.1", base.Add(30*time.Second))
	if len(entries) != 0 {
		t.Errorf("Expected empty window after expiry, got %d entries", len(entries))
	}

	// 3. Sweep drops fully stale sources.
	history.Append(makePacket("172.16.0.9", "10.0.0.1", 80, 60, base))
	if dropped := history.Sweep(base.Add(time.Minute)); dropped == 0 {
		t.Errorf("Expected sweep to drop the stale source")
	}
}

func TestTrackers_ConcurrentRecordNoLostUpdates(t *testing.T) {
	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	trackers := NewTrackers(TrackerOptions{
		ConnectionIdleTimeout: 5 * time.Minute,
		LoginWindow:           time.Hour,
		AccessWindow:          time.Hour,
		HistorySize:           64,
		HistoryWindow:         time.Hour,
	})

	const workers = 8
	const perWorker = 250

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				ts := base.Add(time.Duration(w*perWorker+i) * time.Millisecond)
				trackers.Access.Record("192.168.0.1", ts)
				trackers.Logins.Record("192.168.0.1", ts)
				trackers.Connections.Observe(makePacket("192.168.0.1", fmt.Sprintf("10.0.0.%d", w+1), 443, 100, ts))
			}
		}(w)
	}
	wg.Wait()

	end := base.Add(time.Minute)
	if got := trackers.Access.Count("192.168.0.1", end); got != workers*perWorker {
		t.Errorf("Access count lost updates: expected %d, got %d", workers*perWorker, got)
	}
	if got := trackers.Logins.Count("192.168.0.1", end); got != workers*perWorker {
		t.Errorf("Login count lost updates: expected %d, got %d", workers*perWorker, got)
	}
	if got := trackers.Connections.Active(); got != workers {
		t.Errorf("Expected %d tracked connections, got %d", workers, got)
	}
}
