package alert

import (
	"context"
	"log"
	"sync"
	"time"

	"NetSentry/internal/metrics"
	"NetSentry/internal/model"

	"github.com/google/uuid"
)

const persistTimeout = 5 * time.Second

type indexEntry struct {
	alert     *model.Alert
	expiresAt time.Time
}

// Sink is the single path from detections to alerts. It deduplicates by
// (source IP, detector kind, description) inside a TTL window, hands new
// alerts to the persistence worker through a bounded queue and fans them
// out to the registered broadcasters. A full persistence queue or a down
// store never applies backpressure onto detection.
type Sink struct {
	window  time.Duration
	retries int

	mu    sync.Mutex
	index map[string]*indexEntry

	store        model.AlertStore
	broadcasters []model.Broadcaster

	persistChan chan *model.Alert
	wg          sync.WaitGroup
}

// NewSink creates a running sink. A nil store disables persistence; the
// broadcasters may be empty. Zero parameters fall back to the documented
// defaults (300s window, queue of 1024, 3 retries).
func NewSink(window time.Duration, queueSize, retries int, store model.AlertStore, broadcasters ...model.Broadcaster) *Sink {
	if window <= 0 {
		window = 5 * time.Minute
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	if retries <= 0 {
		retries = 3
	}
	s := &Sink{
		window:       window,
		retries:      retries,
		index:        make(map[string]*indexEntry),
		store:        store,
		broadcasters: broadcasters,
		persistChan:  make(chan *model.Alert, queueSize),
	}
	s.wg.Add(1)
	go s.runPersister()
	return s
}

func dedupKey(d model.Detection) string {
	return d.FiveTuple.SrcIP.String() + "|" + string(d.Kind) + "|" + d.Description
}

// Submit folds the detection into the dedup index. A repeat inside the
// window updates the existing alert's last-seen and count with no new
// persistence write; otherwise a new alert is created, queued for
// persistence and broadcast. The returned alert is the caller's snapshot.
func (s *Sink) Submit(d model.Detection) *model.Alert {
	now := d.Timestamp
	if now.IsZero() {
		now = time.Now()
	}
	key := dedupKey(d)

	s.mu.Lock()
	if entry, ok := s.index[key]; ok {
		if now.Before(entry.expiresAt) {
			if now.After(entry.alert.LastSeen) {
				entry.alert.LastSeen = now
			}
			entry.alert.Count++
			snapshot := *entry.alert
			s.mu.Unlock()
			metrics.AlertsDeduplicated.Inc()
			return &snapshot
		}
		// Expired entry, lazily replaced by this submit.
		delete(s.index, key)
	}

	master := newAlert(d, now)
	s.index[key] = &indexEntry{alert: master, expiresAt: now.Add(s.window)}
	snapshot := *master
	s.mu.Unlock()

	metrics.AlertsCreated.Inc()
	if s.store != nil {
		persistCopy := snapshot
		select {
		case s.persistChan <- &persistCopy:
		default:
			log.Printf("Warning: alert persistence queue is full, dropping alert %s from the persist path.", snapshot.ID)
			metrics.PersistDropped.Inc()
		}
	}
	for _, b := range s.broadcasters {
		if err := b.Broadcast(&snapshot); err != nil {
			log.Printf("Warning: alert broadcast failed: %v", err)
		}
	}
	return &snapshot
}

// Sweep drops expired dedup entries and returns the number dropped.
func (s *Sink) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for key, entry := range s.index {
		if !now.Before(entry.expiresAt) {
			delete(s.index, key)
			dropped++
		}
	}
	return dropped
}

// Pending returns the number of unexpired entries in the dedup index.
func (s *Sink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

// Close stops the persistence worker after draining the queue. Submit must
// not be called after Close.
func (s *Sink) Close() {
	close(s.persistChan)
	s.wg.Wait()
}

func (s *Sink) runPersister() {
	defer s.wg.Done()
	for alert := range s.persistChan {
		s.persist(alert)
	}
}

// persist retries a failed write with linear backoff; after the last
// attempt the alert is counted and logged, never re-queued.
func (s *Sink) persist(alert *model.Alert) {
	var err error
	for attempt := 1; attempt <= s.retries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		err = s.store.SaveAlert(ctx, alert)
		cancel()
		if err == nil {
			return
		}
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	log.Printf("ERROR: failed to persist alert %s after %d attempts: %v", alert.ID, s.retries, err)
	metrics.PersistErrors.Inc()
}

func newAlert(d model.Detection, now time.Time) *model.Alert {
	return &model.Alert{
		ID:            uuid.NewString(),
		CorrelationID: d.CorrelationID,
		Kind:          d.Kind,
		Severity:      d.Severity,
		Confidence:    d.Confidence,
		Description:   d.Description,
		SrcIP:         d.FiveTuple.SrcIP.String(),
		DstIP:         d.FiveTuple.DstIP.String(),
		SrcPort:       d.FiveTuple.SrcPort,
		DstPort:       d.FiveTuple.DstPort,
		Protocol:      d.FiveTuple.Protocol,
		CreatedAt:     now,
		LastSeen:      now,
		Count:         1,
	}
}
