package detect

import (
	"fmt"
	"log"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"NetSentry/internal/model"
)

// AnomalyState is the anomaly detector's training lifecycle state.
type AnomalyState int32

const (
	StateUntrained AnomalyState = iota
	StateCollecting
	StateTrained
	StateRetraining
)

func (s AnomalyState) String() string {
	switch s {
	case StateUntrained:
		return "untrained"
	case StateCollecting:
		return "collecting"
	case StateTrained:
		return "trained"
	case StateRetraining:
		return "retraining"
	}
	return "unknown"
}

// minStd keeps constant features from dividing by zero when scoring.
const minStd = 1e-9

// anomalyModel is an immutable per-feature Gaussian baseline. Models are
// replaced wholesale through the atomic pointer, never mutated in place.
type anomalyModel struct {
	means     []float64
	stds      []float64
	samples   int
	trainedAt time.Time
}

// score returns the mean absolute z-score of the vector against the
// baseline plus the index of the strongest deviating feature. Vectors of a
// different width are scored on the overlapping prefix.
func (m *anomalyModel) score(values []float64) (float64, int) {
	n := len(m.means)
	if len(values) < n {
		n = len(values)
	}
	if n == 0 {
		return 0, 0
	}

	var sum float64
	maxZ := -1.0
	maxIdx := 0
	for i := 0; i < n; i++ {
		std := m.stds[i]
		if std < minStd {
			std = minStd
		}
		z := math.Abs((values[i] - m.means[i]) / std)
		sum += z
		if z > maxZ {
			maxZ = z
			maxIdx = i
		}
	}
	return sum / float64(n), maxIdx
}

// AnomalyDetector learns a Gaussian baseline from live traffic and scores
// each feature vector against it. Training samples accumulate in a bounded
// ring; the first model trains synchronously once minSamples are buffered
// and a background timer retrains from the most recent window.
type AnomalyDetector struct {
	minSamples      int
	maxSamples      int
	threshold       float64
	retrainInterval time.Duration

	mu      sync.Mutex
	samples [][]float64
	next    int

	state atomic.Int32
	model atomic.Pointer[anomalyModel]

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewAnomalyDetector creates an untrained detector. Zero parameters fall
// back to the documented defaults (100 samples, threshold 0.5, hourly
// retrain, ring of 4096).
func NewAnomalyDetector(minSamples, maxSamples int, threshold float64, retrainInterval time.Duration) *AnomalyDetector {
	if minSamples <= 0 {
		minSamples = 100
	}
	if maxSamples < minSamples {
		maxSamples = 4096
		if maxSamples < minSamples {
			maxSamples = minSamples
		}
	}
	if threshold <= 0 {
		threshold = 0.5
	}
	if retrainInterval <= 0 {
		retrainInterval = time.Hour
	}
	return &AnomalyDetector{
		minSamples:      minSamples,
		maxSamples:      maxSamples,
		threshold:       threshold,
		retrainInterval: retrainInterval,
		samples:         make([][]float64, 0, maxSamples),
		stopChan:        make(chan struct{}),
	}
}

// Name implements model.Detector.
func (d *AnomalyDetector) Name() string {
	return "anomaly"
}

// Kind implements model.Detector.
func (d *AnomalyDetector) Kind() model.DetectorKind {
	return model.KindAnomaly
}

// State reports the current lifecycle state.
func (d *AnomalyDetector) State() AnomalyState {
	return AnomalyState(d.state.Load())
}

// Detect buffers the vector as a training sample and, once a model is
// trained, scores it. Untrained, it always returns nil so the signature
// layer keeps providing coverage.
func (d *AnomalyDetector) Detect(pkt *model.PacketInfo, fv *model.FeatureVector, history []model.HistoryEntry) []model.Detection {
	d.observe(fv.Values)

	m := d.model.Load()
	if m == nil {
		return nil
	}

	score, strongest := m.score(fv.Values)
	confidence := score / (score + 3)
	if confidence <= d.threshold {
		return nil
	}

	name := "unknown"
	if strongest < len(fv.Names) {
		name = fv.Names[strongest]
	}
	return []model.Detection{{
		Kind:        model.KindAnomaly,
		Severity:    severityForConfidence(confidence),
		Confidence:  confidence,
		Description: fmt.Sprintf("anomalous traffic pattern (strongest deviation: %s)", name),
		FiveTuple:   pkt.FiveTuple,
	}}
}

// observe copies the vector into the sample ring and triggers the first
// synchronous train when minSamples is reached.
func (d *AnomalyDetector) observe(values []float64) {
	sample := append([]float64(nil), values...)

	d.mu.Lock()
	if AnomalyState(d.state.Load()) == StateUntrained {
		d.state.Store(int32(StateCollecting))
	}
	if len(d.samples) < d.maxSamples {
		d.samples = append(d.samples, sample)
	} else {
		d.samples[d.next] = sample
		d.next = (d.next + 1) % d.maxSamples
	}

	var snapshot [][]float64
	if AnomalyState(d.state.Load()) == StateCollecting && len(d.samples) >= d.minSamples {
		snapshot = append([][]float64(nil), d.samples...)
		d.state.Store(int32(StateTrained))
	}
	d.mu.Unlock()

	if snapshot != nil {
		d.model.Store(buildAnomalyModel(snapshot))
		log.Printf("Anomaly detector trained on %d samples", len(snapshot))
	}
}

// Start launches the periodic retraining loop.
func (d *AnomalyDetector) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.retrainInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d.Retrain()
			case <-d.stopChan:
				return
			}
		}
	}()
}

// Stop tears down the retraining loop.
func (d *AnomalyDetector) Stop() {
	close(d.stopChan)
	d.wg.Wait()
}

// Retrain rebuilds the model from the current sample window and swaps it in
// atomically. In-flight Detect calls keep scoring against the previous
// model until the swap completes.
func (d *AnomalyDetector) Retrain() {
	if !d.state.CompareAndSwap(int32(StateTrained), int32(StateRetraining)) {
		return
	}

	d.mu.Lock()
	snapshot := append([][]float64(nil), d.samples...)
	d.mu.Unlock()

	if len(snapshot) >= d.minSamples {
		d.model.Store(buildAnomalyModel(snapshot))
		log.Printf("Anomaly detector retrained on %d samples", len(snapshot))
	}
	d.state.Store(int32(StateTrained))
}

// buildAnomalyModel computes the per-feature mean and standard deviation.
// The model width follows the first sample; shorter samples contribute to
// the features they have.
func buildAnomalyModel(samples [][]float64) *anomalyModel {
	width := len(samples[0])
	means := make([]float64, width)
	stds := make([]float64, width)
	counts := make([]float64, width)

	for _, sample := range samples {
		for i := 0; i < width && i < len(sample); i++ {
			means[i] += sample[i]
			counts[i]++
		}
	}
	for i := range means {
		if counts[i] > 0 {
			means[i] /= counts[i]
		}
	}
	for _, sample := range samples {
		for i := 0; i < width && i < len(sample); i++ {
			diff := sample[i] - means[i]
			stds[i] += diff * diff
		}
	}
	for i := range stds {
		if counts[i] > 0 {
			stds[i] = math.Sqrt(stds[i] / counts[i])
		}
	}

	return &anomalyModel{
		means:     means,
		stds:      stds,
		samples:   len(samples),
		trainedAt: time.Now(),
	}
}
