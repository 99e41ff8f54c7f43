package alerter

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"NetSentry/internal/config"
	"NetSentry/internal/model"
)

type fakeNotifier struct {
	mu       sync.Mutex
	subjects []string
	bodies   []string
}

func (f *fakeNotifier) Send(subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
	f.bodies = append(f.bodies, body)
	return nil
}

func (f *fakeNotifier) sent() ([]string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subjects...), append([]string(nil), f.bodies...)
}

type fakeAnalyzer struct{ answer string }

func (f *fakeAnalyzer) AnalyzeAlerts(ctx context.Context, input string) (string, error) {
	return f.answer, nil
}

func digestAlert(severity model.Severity, description string) *model.Alert {
	return &model.Alert{
		ID:          "a-" + description,
		Kind:        model.KindSignature,
		Severity:    severity,
		Confidence:  0.9,
		Description: description,
		SrcIP:       "203.0.113.9",
		DstIP:       "10.0.0.5",
		DstPort:     80,
		CreatedAt:   time.Date(2025, 11, 3, 9, 30, 0, 0, time.UTC),
	}
}

func newTestAlerter(t *testing.T, notifier model.Notifier, analyzer model.Analyzer) *Alerter {
	t.Helper()
	// Interval far beyond the test runtime; only Stop flushes.
	cfg := &config.AlerterConfig{Enabled: true, DigestInterval: "1h"}
	a, err := NewAlerter(cfg, notifier, analyzer)
	if err != nil {
		t.Fatalf("failed to create alerter: %v", err)
	}
	return a
}

func TestAlerter_DigestGroupsBySeverity(t *testing.T) {
	notifier := &fakeNotifier{}
	a := newTestAlerter(t, notifier, nil)
	go a.Start()

	// 1. Three alerts across two severity levels.
	a.Broadcast(digestAlert(model.SeverityCritical, "SQL injection attempt"))
	a.Broadcast(digestAlert(model.SeverityLow, "anomalous traffic pattern (strongest deviation: packet_size)"))
	a.Broadcast(digestAlert(model.SeverityCritical, "shell command injection attempt"))

	// 2. Stop flushes the final digest.
	a.Stop()

	subjects, bodies := notifier.sent()
	if len(subjects) != 1 {
		t.Fatalf("expected exactly 1 digest, got %d", len(subjects))
	}
	if !strings.Contains(subjects[0], "3 new") {
		t.Errorf("subject should carry the alert count, got %q", subjects[0])
	}

	body := bodies[0]
	critical := strings.Index(body, "CRITICAL (2)")
	low := strings.Index(body, "LOW (1)")
	if critical == -1 || low == -1 {
		t.Fatalf("severity groups missing from digest body:\n%s", body)
	}
	if critical > low {
		t.Error("critical alerts must come before low ones")
	}
	if !strings.Contains(body, "SQL injection attempt") {
		t.Error("digest body lost an alert description")
	}
}

func TestAlerter_EmptyBatchSendsNothing(t *testing.T) {
	notifier := &fakeNotifier{}
	a := newTestAlerter(t, notifier, nil)
	go a.Start()
	a.Stop()

	if subjects, _ := notifier.sent(); len(subjects) != 0 {
		t.Errorf("no alerts means no digest, got %d", len(subjects))
	}
}

func TestAlerter_AppendsAIAnalysis(t *testing.T) {
	notifier := &fakeNotifier{}
	a := newTestAlerter(t, notifier, &fakeAnalyzer{answer: "Likely automated scanning, block the source."})
	go a.Start()

	a.Broadcast(digestAlert(model.SeverityHigh, "port scan: distinct destination ports above threshold"))
	a.Stop()

	_, bodies := notifier.sent()
	if len(bodies) != 1 {
		t.Fatalf("expected 1 digest, got %d", len(bodies))
	}
	if !strings.Contains(bodies[0], "AI Analysis") {
		t.Error("digest should carry the AI section when an analyzer is configured")
	}
	if !strings.Contains(bodies[0], "Likely automated scanning") {
		t.Error("digest lost the analyzer's answer")
	}
}

func TestAlerter_BatchClearsAfterDigest(t *testing.T) {
	notifier := &fakeNotifier{}
	a := newTestAlerter(t, notifier, nil)

	a.Broadcast(digestAlert(model.SeverityMedium, "scanner user agent"))
	a.sendDigest()
	a.sendDigest()

	if subjects, _ := notifier.sent(); len(subjects) != 1 {
		t.Errorf("a digested batch must not be re-sent, got %d digests", len(subjects))
	}
}

func TestNewAlerter_RejectsBadInterval(t *testing.T) {
	cfg := &config.AlerterConfig{DigestInterval: "sometimes"}
	if _, err := NewAlerter(cfg, &fakeNotifier{}, nil); err == nil {
		t.Error("expected an error for an unparseable interval")
	}
}
