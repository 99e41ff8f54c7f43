package detect

import (
	"testing"
	"time"

	"NetSentry/internal/feature"
	"NetSentry/internal/model"
)

// fakeDetector scripts a detector's behavior for coordinator tests.
type fakeDetector struct {
	name   string
	kind   model.DetectorKind
	out    []model.Detection
	delay  time.Duration
	panics bool
}

func (f *fakeDetector) Name() string             { return f.name }
func (f *fakeDetector) Kind() model.DetectorKind { return f.kind }

func (f *fakeDetector) Detect(pkt *model.PacketInfo, fv *model.FeatureVector, history []model.HistoryEntry) []model.Detection {
	if f.panics {
		panic("scripted detector failure")
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.out
}

func newTestCoordinator(timeout time.Duration, detectors ...model.Detector) *Coordinator {
	trackers := feature.NewTrackers(feature.TrackerOptions{
		ConnectionIdleTimeout: 5 * time.Minute,
		LoginWindow:           time.Hour,
		HistorySize:           64,
		HistoryWindow:         10 * time.Second,
	})
	return NewCoordinator(feature.NewExtractor(trackers, false), trackers.History, detectors, timeout)
}

func TestCoordinator_MergesWithSharedCorrelationID(t *testing.T) {
	sig := &fakeDetector{name: "signature", kind: model.KindSignature, out: []model.Detection{
		{Kind: model.KindSignature, Severity: model.SeverityCritical, Confidence: 0.95, Description: "SQL injection attempt"},
	}}
	cls := &fakeDetector{name: "classification", kind: model.KindClassification, out: []model.Detection{
		{Kind: model.KindClassification, Severity: model.SeverityHigh, Confidence: 0.8, Description: "classified as malicious"},
	}}

	coordinator := newTestCoordinator(50*time.Millisecond, sig, cls)
	pkt := testPacket("hello")
	detections := coordinator.Analyze(pkt)

	if len(detections) != 2 {
		t.Fatalf("Expected 2 merged detections, got %d", len(detections))
	}
	if detections[0].CorrelationID == "" {
		t.Fatalf("Expected a correlation id to be stamped")
	}
	if detections[0].CorrelationID != detections[1].CorrelationID {
		t.Errorf("Expected both detections to share one correlation id: %q vs %q",
			detections[0].CorrelationID, detections[1].CorrelationID)
	}
	for _, d := range detections {
		if !d.Timestamp.Equal(pkt.Timestamp) {
			t.Errorf("Expected detection timestamp %v, got %v", pkt.Timestamp, d.Timestamp)
		}
	}

	// A second packet gets a fresh correlation id.
	second := coordinator.Analyze(testPacket("hello again"))
	if len(second) == 2 && second[0].CorrelationID == detections[0].CorrelationID {
		t.Errorf("Expected a new correlation id per packet")
	}
}

func TestCoordinator_PanicIsolation(t *testing.T) {
	broken := &fakeDetector{name: "anomaly", kind: model.KindAnomaly, panics: true}
	healthy := &fakeDetector{name: "signature", kind: model.KindSignature, out: []model.Detection{
		{Kind: model.KindSignature, Severity: model.SeverityHigh, Confidence: 0.9, Description: "Cross-site scripting attempt"},
	}}

	coordinator := newTestCoordinator(50*time.Millisecond, broken, healthy)
	detections := coordinator.Analyze(testPacket("x"))

	if len(detections) != 1 {
		t.Fatalf("Expected the healthy detector's result to survive, got %d detections", len(detections))
	}
	if detections[0].Description != "Cross-site scripting attempt" {
		t.Errorf("Unexpected surviving detection: %q", detections[0].Description)
	}
}

func TestCoordinator_SlowDetectorExcluded(t *testing.T) {
	slow := &fakeDetector{name: "classification", kind: model.KindClassification, delay: 300 * time.Millisecond, out: []model.Detection{
		{Kind: model.KindClassification, Description: "classified as malicious"},
	}}
	fast := &fakeDetector{name: "signature", kind: model.KindSignature, out: []model.Detection{
		{Kind: model.KindSignature, Description: "SQL injection attempt"},
	}}

	coordinator := newTestCoordinator(30*time.Millisecond, slow, fast)
	detections := coordinator.Analyze(testPacket("x"))

	if len(detections) != 1 {
		t.Fatalf("Expected only the fast detector's result, got %d detections", len(detections))
	}
	if detections[0].Description != "SQL injection attempt" {
		t.Errorf("Unexpected detection kept after timeout: %q", detections[0].Description)
	}
}

// TestCoordinator_SQLInjectionScenario runs the real detector stack against
// a crafted injection packet: the signature layer flags it, the untrained
// anomaly layer stays quiet, the model-less classifier stays quiet.
func TestCoordinator_SQLInjectionScenario(t *testing.T) {
	signature := NewSignatureDetector(DefaultRules(), AggregateThresholds{})
	anomaly := NewAnomalyDetector(100, 4096, 0.5, time.Hour)
	classifier, err := NewClassificationDetector("", 0.7, 0)
	if err != nil {
		t.Fatalf("Failed to create classifier: %v", err)
	}

	coordinator := newTestCoordinator(50*time.Millisecond, signature, anomaly, classifier)
	pkt := testPacket("POST /login HTTP/1.1\r\nHost: shop.example\r\n\r\nusername=admin' OR 1=1--")
	detections := coordinator.Analyze(pkt)

	if len(detections) != 1 {
		t.Fatalf("Expected exactly the signature detection, got %d: %v", len(detections), descriptions(detections))
	}
	d := detections[0]
	if d.Kind != model.KindSignature || d.Severity != model.SeverityCritical {
		t.Errorf("Expected critical signature detection, got kind=%s severity=%s", d.Kind, d.Severity)
	}
	if d.CorrelationID == "" {
		t.Errorf("Expected a correlation id on the detection")
	}
	if d.FiveTuple.SrcIP.String() != "192.168.0.1" {
		t.Errorf("Expected the offending flow's source, got %s", d.FiveTuple.SrcIP)
	}
}
