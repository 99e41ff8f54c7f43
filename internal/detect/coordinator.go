package detect

import (
	"log"
	"time"

	"NetSentry/internal/feature"
	"NetSentry/internal/metrics"
	"NetSentry/internal/model"

	"github.com/google/uuid"
)

// Coordinator fans each packet out to the detection layers and merges their
// verdicts under one correlation id. Detector failures are isolated: a
// panicking or slow layer contributes nothing while the others' results
// survive.
type Coordinator struct {
	extractor *feature.Extractor
	history   *feature.RecentHistory
	detectors []model.Detector
	timeout   time.Duration
}

type detectorResult struct {
	name       string
	detections []model.Detection
}

// NewCoordinator wires the extractor, the shared history and a fixed set of
// detectors. The timeout bounds how long one analysis waits for stragglers.
func NewCoordinator(extractor *feature.Extractor, history *feature.RecentHistory, detectors []model.Detector, timeout time.Duration) *Coordinator {
	if timeout <= 0 {
		timeout = 20 * time.Millisecond
	}
	return &Coordinator{
		extractor: extractor,
		history:   history,
		detectors: detectors,
		timeout:   timeout,
	}
}

// Analyze extracts features, snapshots the source's history and runs every
// detector concurrently. All returned detections carry the same correlation
// id and the packet's timestamp. Deduplication is the alert sink's job, not
// done here.
func (c *Coordinator) Analyze(pkt *model.PacketInfo) []model.Detection {
	fv := c.extractor.Extract(pkt)
	c.history.Append(pkt)
	history := c.history.Recent(pkt.FiveTuple.SrcIP.String(), pkt.Timestamp)

	// The channel is buffered so abandoned detectors can still complete
	// their send and exit after a timeout.
	results := make(chan detectorResult, len(c.detectors))
	for _, d := range c.detectors {
		go func(d model.Detector) {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("ERROR: detector %s panicked: %v", d.Name(), r)
					metrics.DetectorPanics.WithLabelValues(d.Name()).Inc()
					results <- detectorResult{name: d.Name()}
				}
			}()
			results <- detectorResult{name: d.Name(), detections: d.Detect(pkt, fv, history)}
		}(d)
	}

	var merged []model.Detection
	seen := make(map[string]bool, len(c.detectors))
	deadline := time.NewTimer(c.timeout)
	defer deadline.Stop()

collect:
	for received := 0; received < len(c.detectors); received++ {
		select {
		case result := <-results:
			seen[result.name] = true
			merged = append(merged, result.detections...)
		case <-deadline.C:
			for _, d := range c.detectors {
				if !seen[d.Name()] {
					metrics.DetectorTimeouts.WithLabelValues(d.Name()).Inc()
				}
			}
			break collect
		}
	}

	if len(merged) == 0 {
		return nil
	}
	correlationID := uuid.NewString()
	for i := range merged {
		merged[i].CorrelationID = correlationID
		merged[i].Timestamp = pkt.Timestamp
	}
	return merged
}

// Detectors returns the coordinator's detector set, in registration order.
func (c *Coordinator) Detectors() []model.Detector {
	return c.detectors
}
