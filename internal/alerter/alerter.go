package alerter

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"NetSentry/internal/config"
	"NetSentry/internal/model"

	"github.com/gomarkdown/markdown"
)

// Alerter batches new alerts into a periodic email digest. It implements
// model.Broadcaster, so the alert sink feeds it like any other fan-out
// target; alerts only accumulate between digests, nothing is persisted
// here.
type Alerter struct {
	notifier model.Notifier
	analyzer model.Analyzer
	interval time.Duration

	mu      sync.Mutex
	pending []*model.Alert

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewAlerter creates a digest alerter. The analyzer is optional; with one
// configured each digest carries an AI assessment section.
func NewAlerter(cfg *config.AlerterConfig, notifier model.Notifier, analyzer model.Analyzer) (*Alerter, error) {
	interval, err := time.ParseDuration(cfg.DigestInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid digest_interval for alerter: %w", err)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("digest_interval must be a positive duration")
	}
	return &Alerter{
		notifier: notifier,
		analyzer: analyzer,
		interval: interval,
		stopChan: make(chan struct{}),
	}, nil
}

// Broadcast queues an alert for the next digest.
func (a *Alerter) Broadcast(alert *model.Alert) error {
	a.mu.Lock()
	a.pending = append(a.pending, alert)
	a.mu.Unlock()
	return nil
}

// Start runs the digest loop in the calling goroutine.
func (a *Alerter) Start() {
	log.Println("Alerter started")

	a.wg.Add(1)
	defer a.wg.Done()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.sendDigest()
		case <-a.stopChan:
			return
		}
	}
}

// Stop halts the loop and flushes any not-yet-digested alerts.
func (a *Alerter) Stop() {
	log.Println("Stopping Alerter...")
	close(a.stopChan)
	a.wg.Wait()
	a.sendDigest()
}

func (a *Alerter) sendDigest() {
	a.mu.Lock()
	batch := a.pending
	a.pending = nil
	a.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	digest := buildDigest(batch)
	body := string(markdown.ToHTML([]byte(digest), nil, nil))

	if a.analyzer != nil {
		analysis, err := a.analyzeDigest(digest)
		if err != nil {
			log.Printf("Failed to get AI analysis: %v", err)
		} else if analysis != "" {
			body += "<hr><h2>AI Analysis</h2>" + string(markdown.ToHTML([]byte(analysis), nil, nil))
		}
	}

	if a.notifier == nil {
		return
	}
	subject := fmt.Sprintf("NetSentry Alert Digest (%d new)", len(batch))
	if err := a.notifier.Send(subject, body); err != nil {
		log.Printf("ERROR: Failed to send alert digest: %v", err)
	} else {
		log.Printf("Alert digest with %d alert(s) sent.", len(batch))
	}
}

// buildDigest renders the batch as markdown, grouped by severity with the
// most serious group first.
func buildDigest(alerts []*model.Alert) string {
	groups := make(map[model.Severity][]*model.Alert)
	for _, alert := range alerts {
		groups[alert.Severity] = append(groups[alert.Severity], alert)
	}

	var b strings.Builder
	b.WriteString("# NetSentry Alert Digest\n\n")
	fmt.Fprintf(&b, "%d new alert(s) since the last digest.\n", len(alerts))

	order := []model.Severity{model.SeverityCritical, model.SeverityHigh, model.SeverityMedium, model.SeverityLow}
	for _, severity := range order {
		group := groups[severity]
		if len(group) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n## %s (%d)\n\n", strings.ToUpper(severity.String()), len(group))
		for _, alert := range group {
			fmt.Fprintf(&b, "- **%s** [%s] %s to %s:%d at %s (confidence %.2f)\n",
				alert.Description, alert.Kind, alert.SrcIP, alert.DstIP, alert.DstPort,
				alert.CreatedAt.Format("15:04:05"), alert.Confidence)
		}
	}
	return b.String()
}

func (a *Alerter) analyzeDigest(digest string) (string, error) {
	log.Println("Requesting AI analysis for alert digest...")
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	return a.analyzer.AnalyzeAlerts(ctx, digest)
}
