package detect

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"NetSentry/internal/model"
)

// Labels the classifier can return besides the artifact's own classes.
const (
	LabelBenign      = "benign"
	LabelUnavailable = "unavailable"
)

// ModelArtifact is the on-disk JSON form of the supervised model, produced
// by the offline training collaborator. Coefficients hold one row per class;
// a single row with two classes is treated as a binary sigmoid model.
type ModelArtifact struct {
	Algorithm    string      `json:"algorithm"`
	FeatureNames []string    `json:"feature_names"`
	Classes      []string    `json:"classes"`
	Coefficients [][]float64 `json:"coefficients"`
	Intercepts   []float64   `json:"intercepts"`
}

// classifierModel is the immutable in-memory form behind the atomic pointer.
type classifierModel struct {
	classes      []string
	coefficients [][]float64
	intercepts   []float64
	featureCount int
	binary       bool
	modTime      time.Time
}

// ClassificationDetector wraps the supervised model. With no model loaded it
// reports "unavailable" and emits no detections; low-confidence predictions
// collapse to "benign" to suppress noise.
type ClassificationDetector struct {
	modelPath      string
	threshold      float64
	reloadInterval time.Duration

	model        atomic.Pointer[classifierModel]
	warnedWidths sync.Map

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewClassificationDetector loads the model artifact when a path is
// configured. A configured but unloadable artifact is a startup error; an
// empty path leaves the detector in its unavailable mode.
func NewClassificationDetector(modelPath string, threshold float64, reloadInterval time.Duration) (*ClassificationDetector, error) {
	if threshold <= 0 {
		threshold = 0.7
	}
	d := &ClassificationDetector{
		modelPath:      modelPath,
		threshold:      threshold,
		reloadInterval: reloadInterval,
		stopChan:       make(chan struct{}),
	}
	if modelPath != "" {
		m, err := loadModelFile(modelPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load classifier model: %w", err)
		}
		d.model.Store(m)
		log.Printf("Classifier model loaded from %s (%d features, %d classes)", modelPath, m.featureCount, len(m.classes))
	}
	return d, nil
}

// Name implements model.Detector.
func (d *ClassificationDetector) Name() string {
	return "classification"
}

// Kind implements model.Detector.
func (d *ClassificationDetector) Kind() model.DetectorKind {
	return model.KindClassification
}

// Detect classifies the vector and emits a detection for any label that is
// neither benign nor unavailable.
func (d *ClassificationDetector) Detect(pkt *model.PacketInfo, fv *model.FeatureVector, history []model.HistoryEntry) []model.Detection {
	label, confidence := d.Classify(fv)
	if label == LabelBenign || label == LabelUnavailable {
		return nil
	}
	return []model.Detection{{
		Kind:        model.KindClassification,
		Severity:    severityForConfidence(confidence),
		Confidence:  confidence,
		Description: fmt.Sprintf("classified as %s", label),
		FiveTuple:   pkt.FiveTuple,
	}}
}

// Classify aligns the vector to the model's trained width (zero-pad or
// truncate, never an error) and returns the predicted label with its
// confidence. Below the confidence threshold the label is benign regardless
// of the raw prediction.
func (d *ClassificationDetector) Classify(fv *model.FeatureVector) (string, float64) {
	m := d.model.Load()
	if m == nil {
		return LabelUnavailable, 0
	}

	values := fv.Values
	if len(values) != m.featureCount {
		if _, seen := d.warnedWidths.LoadOrStore(len(values), struct{}{}); !seen {
			log.Printf("Warning: feature vector has %d features, model expects %d; padding/truncating.", len(values), m.featureCount)
		}
		aligned := make([]float64, m.featureCount)
		copy(aligned, values)
		values = aligned
	}

	var probs []float64
	if m.binary {
		p := sigmoid(dot(m.coefficients[0], values) + m.intercepts[0])
		probs = []float64{1 - p, p}
	} else {
		scores := make([]float64, len(m.classes))
		for i := range m.classes {
			scores[i] = dot(m.coefficients[i], values) + m.intercepts[i]
		}
		probs = softmax(scores)
	}

	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}
	confidence := probs[best]
	if confidence < d.threshold {
		return LabelBenign, confidence
	}
	return m.classes[best], confidence
}

// Ready reports whether a model is currently loaded.
func (d *ClassificationDetector) Ready() bool {
	return d.model.Load() != nil
}

// Start launches the artifact reload loop when a reload interval is
// configured. A replacement file that fails to load keeps the old model.
func (d *ClassificationDetector) Start() {
	if d.reloadInterval <= 0 || d.modelPath == "" {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.reloadInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d.maybeReload()
			case <-d.stopChan:
				return
			}
		}
	}()
}

// Stop tears down the reload loop.
func (d *ClassificationDetector) Stop() {
	close(d.stopChan)
	d.wg.Wait()
}

func (d *ClassificationDetector) maybeReload() {
	info, err := os.Stat(d.modelPath)
	if err != nil {
		log.Printf("Warning: cannot stat classifier model %s: %v", d.modelPath, err)
		return
	}
	current := d.model.Load()
	if current != nil && !info.ModTime().After(current.modTime) {
		return
	}
	m, err := loadModelFile(d.modelPath)
	if err != nil {
		log.Printf("Warning: reload of classifier model failed, keeping current model: %v", err)
		return
	}
	d.model.Store(m)
	log.Printf("Classifier model reloaded from %s (%d features, %d classes)", d.modelPath, m.featureCount, len(m.classes))
}

// loadModelFile reads and validates a model artifact.
func loadModelFile(path string) (*classifierModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}
	var artifact ModelArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model JSON: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat model file: %w", err)
	}
	m, err := buildClassifierModel(&artifact)
	if err != nil {
		return nil, err
	}
	m.modTime = info.ModTime()
	return m, nil
}

// buildClassifierModel validates the artifact's shape.
func buildClassifierModel(artifact *ModelArtifact) (*classifierModel, error) {
	if len(artifact.Classes) < 2 {
		return nil, fmt.Errorf("model artifact needs at least 2 classes, has %d", len(artifact.Classes))
	}
	if len(artifact.Coefficients) == 0 {
		return nil, fmt.Errorf("model artifact has no coefficients")
	}

	binary := len(artifact.Classes) == 2 && len(artifact.Coefficients) == 1
	if !binary && len(artifact.Coefficients) != len(artifact.Classes) {
		return nil, fmt.Errorf("model artifact has %d coefficient rows for %d classes", len(artifact.Coefficients), len(artifact.Classes))
	}

	width := len(artifact.Coefficients[0])
	if width == 0 {
		return nil, fmt.Errorf("model artifact has an empty coefficient row")
	}
	for i, row := range artifact.Coefficients {
		if len(row) != width {
			return nil, fmt.Errorf("model artifact coefficient row %d has %d features, expected %d", i, len(row), width)
		}
	}
	if len(artifact.FeatureNames) > 0 && len(artifact.FeatureNames) != width {
		return nil, fmt.Errorf("model artifact names %d features but rows have %d", len(artifact.FeatureNames), width)
	}

	intercepts := artifact.Intercepts
	if len(intercepts) == 0 {
		intercepts = make([]float64, len(artifact.Coefficients))
	} else if len(intercepts) != len(artifact.Coefficients) {
		return nil, fmt.Errorf("model artifact has %d intercepts for %d coefficient rows", len(intercepts), len(artifact.Coefficients))
	}

	return &classifierModel{
		classes:      artifact.Classes,
		coefficients: artifact.Coefficients,
		intercepts:   intercepts,
		featureCount: width,
		binary:       binary,
	}, nil
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// softmax converts raw class scores into probabilities, shifting by the max
// score for numerical stability.
func softmax(scores []float64) []float64 {
	max := scores[0]
	for _, s := range scores[1:] {
		if s > max {
			max = s
		}
	}
	var sum float64
	out := make([]float64, len(scores))
	for i, s := range scores {
		out[i] = math.Exp(s - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
