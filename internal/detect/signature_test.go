package detect

import (
	"net"
	"strings"
	"testing"
	"time"

	"NetSentry/internal/model"
)

func testPacket(payload string) *model.PacketInfo {
	return &model.PacketInfo{
		Timestamp: time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC),
		FiveTuple: model.FiveTuple{
			SrcIP:    net.ParseIP("192.168.0.1"),
			DstIP:    net.ParseIP("10.0.0.1"),
			SrcPort:  40000,
			DstPort:  80,
			Protocol: 6, // TCP
		},
		Length:  len(payload),
		Payload: []byte(payload),
	}
}

func emptyVector() *model.FeatureVector {
	return &model.FeatureVector{
		Names:  []string{"packet_size"},
		Values: []float64{0},
	}
}

func TestSignatureDetector_SQLInjection(t *testing.T) {
	detector := NewSignatureDetector(DefaultRules(), AggregateThresholds{})

	pkt := testPacket("username=admin' OR 1=1--&password=x")
	detections := detector.Detect(pkt, emptyVector(), nil)

	if len(detections) != 1 {
		t.Fatalf("Expected 1 detection, got %d", len(detections))
	}
	d := detections[0]
	if d.Kind != model.KindSignature {
		t.Errorf("Expected signature kind, got %s", d.Kind)
	}
	if d.Severity != model.SeverityCritical {
		t.Errorf("Expected critical severity, got %s", d.Severity)
	}
	if d.Description != "SQL injection attempt" {
		t.Errorf("Unexpected description: %q", d.Description)
	}
}

func TestSignatureDetector_FirstPatternWinsPerRule(t *testing.T) {
	detector := NewSignatureDetector(DefaultRules(), AggregateThresholds{})

	// Matches two patterns of the sql_injection rule; the rule still fires
	// exactly once.
	pkt := testPacket("x' OR 1=1; DROP TABLE users;--")
	detections := detector.Detect(pkt, emptyVector(), nil)

	sqli := 0
	for _, d := range detections {
		if d.Description == "SQL injection attempt" {
			sqli++
		}
	}
	if sqli != 1 {
		t.Errorf("Expected the SQL injection rule to fire once, fired %d times", sqli)
	}
}

func TestSignatureDetector_HTTPTargets(t *testing.T) {
	detector := NewSignatureDetector(DefaultRules(), AggregateThresholds{})

	// 1. Scanner user-agent, extracted from the HTTP headers.
	pkt := testPacket("GET /index.html HTTP/1.1\r\nHost: example.com\r\nUser-Agent: sqlmap/1.7#stable\r\n\r\n")
	detections := detector.Detect(pkt, emptyVector(), nil)
	if !hasDescription(detections, "Known scanner user-agent") {
		t.Errorf("Expected scanner user-agent rule to fire, got %v", descriptions(detections))
	}

	// 2. Directory traversal in the request URI.
	pkt = testPacket("GET /static/../../../../etc/passwd HTTP/1.1\r\nHost: example.com\r\n\r\n")
	detections = detector.Detect(pkt, emptyVector(), nil)
	if !hasDescription(detections, "Directory traversal attempt") {
		t.Errorf("Expected traversal rule to fire, got %v", descriptions(detections))
	}

	// 3. A non-HTTP payload never matches URI or user-agent rules.
	pkt = testPacket("binary blob ../../.. with traversal-looking bytes")
	detections = detector.Detect(pkt, emptyVector(), nil)
	if hasDescription(detections, "Directory traversal attempt") {
		t.Errorf("URI rule must not fire on non-HTTP payloads")
	}
}

func TestSignatureDetector_InvalidPatternSkipped(t *testing.T) {
	rules := []Rule{
		{
			Name:        "broken",
			Description: "rule with only a broken pattern",
			Severity:    model.SeverityHigh,
			Confidence:  0.9,
			Target:      TargetPayload,
			Patterns:    []string{"[unclosed"},
		},
		{
			Name:        "half_broken",
			Description: "rule with one broken and one valid pattern",
			Severity:    model.SeverityMedium,
			Confidence:  0.8,
			Target:      TargetPayload,
			Patterns:    []string{"[unclosed", "marker123"},
		},
	}
	detector := NewSignatureDetector(rules, AggregateThresholds{})

	detections := detector.Detect(testPacket("payload with marker123 inside"), emptyVector(), nil)
	if len(detections) != 1 {
		t.Fatalf("Expected only the valid pattern to fire, got %d detections", len(detections))
	}
	if detections[0].Description != "rule with one broken and one valid pattern" {
		t.Errorf("Unexpected rule fired: %q", detections[0].Description)
	}
}

func TestSignatureDetector_PortScanAggregate(t *testing.T) {
	detector := NewSignatureDetector(nil, AggregateThresholds{PortScanPorts: 20})
	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	// 25 packets to 25 distinct ports inside 10 seconds.
	history := make([]model.HistoryEntry, 0, 25)
	for i := 0; i < 25; i++ {
		history = append(history, model.HistoryEntry{
			Timestamp: base.Add(time.Duration(i*400) * time.Millisecond),
			DstIP:     "10.0.0.1",
			DstPort:   uint16(1000 + i),
			Length:    60,
		})
	}

	detections := detector.Detect(testPacket(""), emptyVector(), history)
	scans := 0
	var scan model.Detection
	for _, d := range detections {
		if strings.Contains(d.Description, "port scan") {
			scans++
			scan = d
		}
	}
	if scans != 1 {
		t.Fatalf("Expected exactly 1 port scan detection per evaluation, got %d", scans)
	}
	if scan.Severity != model.SeverityHigh {
		t.Errorf("Expected high severity, got %s", scan.Severity)
	}
	// 25 observed over threshold 20 scales to 25/40.
	if scan.Confidence != 0.625 {
		t.Errorf("Expected confidence 0.625, got %v", scan.Confidence)
	}
}

func TestSignatureDetector_DoSBurst(t *testing.T) {
	detector := NewSignatureDetector(nil, AggregateThresholds{DoSPacketRate: 1000})
	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	// 50 packets in 25ms is 2000 packets/second.
	history := make([]model.HistoryEntry, 0, 50)
	for i := 0; i < 50; i++ {
		history = append(history, model.HistoryEntry{
			Timestamp: base.Add(time.Duration(i*500) * time.Microsecond),
			DstIP:     "10.0.0.1",
			DstPort:   80,
			Length:    60,
		})
	}

	detections := detector.Detect(testPacket(""), emptyVector(), history)
	if !hasDescription(detections, "DoS burst: packet rate above threshold") {
		t.Fatalf("Expected DoS burst detection, got %v", descriptions(detections))
	}
	for _, d := range detections {
		if strings.Contains(d.Description, "DoS burst") && d.Severity != model.SeverityCritical {
			t.Errorf("Expected critical severity for DoS burst, got %s", d.Severity)
		}
	}
}

func TestSignatureDetector_Exfiltration(t *testing.T) {
	detector := NewSignatureDetector(nil, AggregateThresholds{ExfilBytes: 1 << 20})
	base := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	// 32 transfers of 40KB total ~1.25MB inside the window.
	history := make([]model.HistoryEntry, 0, 32)
	for i := 0; i < 32; i++ {
		history = append(history, model.HistoryEntry{
			Timestamp: base.Add(time.Duration(i*100) * time.Millisecond),
			DstIP:     "203.0.113.9",
			DstPort:   443,
			Length:    40 << 10,
		})
	}

	detections := detector.Detect(testPacket(""), emptyVector(), history)
	found := false
	for _, d := range detections {
		if strings.Contains(d.Description, "exfiltration") {
			found = true
			if d.Severity != model.SeverityHigh {
				t.Errorf("Expected high severity, got %s", d.Severity)
			}
		}
	}
	if !found {
		t.Fatalf("Expected exfiltration detection, got %v", descriptions(detections))
	}
}

func TestSignatureDetector_BenignTraffic(t *testing.T) {
	detector := NewSignatureDetector(DefaultRules(), AggregateThresholds{})

	pkt := testPacket("GET /api/v1/items?page=2 HTTP/1.1\r\nHost: example.com\r\nUser-Agent: Mozilla/5.0\r\n\r\n")
	history := []model.HistoryEntry{{
		Timestamp: pkt.Timestamp,
		DstIP:     "10.0.0.1",
		DstPort:   80,
		Length:    120,
	}}

	if detections := detector.Detect(pkt, emptyVector(), history); len(detections) != 0 {
		t.Errorf("Expected no detections for benign traffic, got %v", descriptions(detections))
	}
}

func hasDescription(detections []model.Detection, want string) bool {
	for _, d := range detections {
		if d.Description == want {
			return true
		}
	}
	return false
}

func descriptions(detections []model.Detection) []string {
	out := make([]string, len(detections))
	for i, d := range detections {
		out[i] = d.Description
	}
	return out
}
