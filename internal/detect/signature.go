package detect

import (
	"log"
	"math"
	"regexp"
	"strings"

	"NetSentry/internal/model"
)

// Targets a single-packet rule can match against. URI and User-Agent are
// extracted from HTTP-looking payloads.
const (
	TargetPayload   = "payload"
	TargetURI       = "uri"
	TargetUserAgent = "user-agent"
)

// Rule is one single-packet signature. The first matching pattern fires the
// rule; later patterns of the same rule are not evaluated.
type Rule struct {
	Name        string
	Description string
	Severity    model.Severity
	Confidence  float64
	Target      string
	Patterns    []string

	compiled []*regexp.Regexp
}

// AggregateThresholds holds the windowed rule thresholds evaluated against
// the per-source recent history.
type AggregateThresholds struct {
	// PortScanPorts is the distinct destination port count that flags a scan.
	PortScanPorts int
	// DoSPacketRate is the packets-per-second rate that flags a burst.
	DoSPacketRate float64
	// ExfilBytes is the cumulative byte count that flags exfiltration.
	ExfilBytes uint64
}

// minBurstPackets is the smallest history sample the DoS rate rule will
// evaluate.
const minBurstPackets = 20

// SignatureDetector evaluates a static rule table per packet plus the
// aggregate rules over the source's recent history. It keeps no mutable
// state and is safe for concurrent use.
type SignatureDetector struct {
	rules      []Rule
	thresholds AggregateThresholds
}

// NewSignatureDetector compiles the rule table. A pattern that fails to
// compile is skipped with a warning; a rule left without valid patterns is
// dropped. Construction never fails on bad patterns.
func NewSignatureDetector(rules []Rule, thresholds AggregateThresholds) *SignatureDetector {
	if thresholds.PortScanPorts <= 0 {
		thresholds.PortScanPorts = 20
	}
	if thresholds.DoSPacketRate <= 0 {
		thresholds.DoSPacketRate = 1000
	}
	if thresholds.ExfilBytes == 0 {
		thresholds.ExfilBytes = 10 << 20
	}

	compiled := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		rule.compiled = make([]*regexp.Regexp, 0, len(rule.Patterns))
		for _, pattern := range rule.Patterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				log.Printf("Warning: rule '%s' pattern %q does not compile: %v, skipping.", rule.Name, pattern, err)
				continue
			}
			rule.compiled = append(rule.compiled, re)
		}
		if len(rule.compiled) == 0 {
			log.Printf("Warning: rule '%s' has no valid patterns, dropping.", rule.Name)
			continue
		}
		if rule.Target == "" {
			rule.Target = TargetPayload
		}
		compiled = append(compiled, rule)
	}
	return &SignatureDetector{rules: compiled, thresholds: thresholds}
}

// DefaultRules returns the built-in single-packet rule table.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:        "sql_injection",
			Description: "SQL injection attempt",
			Severity:    model.SeverityCritical,
			Confidence:  0.95,
			Target:      TargetPayload,
			Patterns: []string{
				`(?i)'\s*or\s*\d+\s*=\s*\d+`,
				`(?i)'\s*or\s*'[^']*'\s*=\s*'`,
				`(?i)union\s+select`,
				`(?i);\s*drop\s+table`,
			},
		},
		{
			Name:        "xss",
			Description: "Cross-site scripting attempt",
			Severity:    model.SeverityHigh,
			Confidence:  0.9,
			Target:      TargetPayload,
			Patterns: []string{
				`(?i)<script[\s>]`,
				`(?i)javascript:`,
				`(?i)\bonerror\s*=`,
			},
		},
		{
			Name:        "path_traversal",
			Description: "Directory traversal attempt",
			Severity:    model.SeverityHigh,
			Confidence:  0.9,
			Target:      TargetURI,
			Patterns: []string{
				`\.\./\.\.`,
				`(?i)/etc/passwd`,
			},
		},
		{
			Name:        "scanner_user_agent",
			Description: "Known scanner user-agent",
			Severity:    model.SeverityMedium,
			Confidence:  0.8,
			Target:      TargetUserAgent,
			Patterns: []string{
				`(?i)(nikto|sqlmap|nmap|masscan|zgrab|dirbuster|gobuster)`,
			},
		},
		{
			Name:        "shell_command",
			Description: "Shell command injection marker",
			Severity:    model.SeverityCritical,
			Confidence:  0.9,
			Target:      TargetPayload,
			Patterns: []string{
				`(?i)(/bin/sh|/bin/bash|cmd\.exe|powershell)`,
				`(?i)(wget|curl)[^\n]{0,120}\|\s*(ba)?sh`,
			},
		},
	}
}

// Name implements model.Detector.
func (d *SignatureDetector) Name() string {
	return "signature"
}

// Kind implements model.Detector.
func (d *SignatureDetector) Kind() model.DetectorKind {
	return model.KindSignature
}

// Detect runs the single-packet rules and the aggregate rules. Multiple
// rules may fire for one packet; each aggregate rule fires at most once per
// evaluation.
func (d *SignatureDetector) Detect(pkt *model.PacketInfo, fv *model.FeatureVector, history []model.HistoryEntry) []model.Detection {
	var detections []model.Detection

	uri, userAgent := parseHTTPMeta(pkt.Payload)
	for i := range d.rules {
		rule := &d.rules[i]

		var fired bool
		switch rule.Target {
		case TargetURI:
			fired = uri != "" && matchAny(rule.compiled, uri)
		case TargetUserAgent:
			fired = userAgent != "" && matchAny(rule.compiled, userAgent)
		default:
			fired = len(pkt.Payload) > 0 && matchAnyBytes(rule.compiled, pkt.Payload)
		}
		if fired {
			detections = append(detections, model.Detection{
				Kind:        model.KindSignature,
				Severity:    rule.Severity,
				Confidence:  rule.Confidence,
				Description: rule.Description,
				FiveTuple:   pkt.FiveTuple,
			})
		}
	}

	return append(detections, d.aggregate(pkt, history)...)
}

// aggregate evaluates the windowed rules over the source's recent history.
// Descriptions stay constant so repeats collapse in the alert sink.
func (d *SignatureDetector) aggregate(pkt *model.PacketInfo, history []model.HistoryEntry) []model.Detection {
	if len(history) == 0 {
		return nil
	}

	ports := make(map[uint16]struct{}, len(history))
	var totalBytes uint64
	for _, entry := range history {
		ports[entry.DstPort] = struct{}{}
		totalBytes += uint64(entry.Length)
	}

	var detections []model.Detection
	if len(ports) >= d.thresholds.PortScanPorts {
		detections = append(detections, model.Detection{
			Kind:        model.KindSignature,
			Severity:    model.SeverityHigh,
			Confidence:  scaledConfidence(float64(len(ports)), float64(d.thresholds.PortScanPorts)),
			Description: "port scan: distinct destination ports above threshold",
			FiveTuple:   pkt.FiveTuple,
		})
	}

	// A handful of close packets is not a burst; the rate test needs a
	// meaningful sample before the span is trusted.
	if len(history) >= minBurstPackets {
		span := history[len(history)-1].Timestamp.Sub(history[0].Timestamp).Seconds()
		if span < 0.001 {
			span = 0.001
		}
		if rate := float64(len(history)) / span; rate >= d.thresholds.DoSPacketRate {
			detections = append(detections, model.Detection{
				Kind:        model.KindSignature,
				Severity:    model.SeverityCritical,
				Confidence:  scaledConfidence(rate, d.thresholds.DoSPacketRate),
				Description: "DoS burst: packet rate above threshold",
				FiveTuple:   pkt.FiveTuple,
			})
		}
	}

	if totalBytes >= d.thresholds.ExfilBytes {
		detections = append(detections, model.Detection{
			Kind:        model.KindSignature,
			Severity:    model.SeverityHigh,
			Confidence:  scaledConfidence(float64(totalBytes), float64(d.thresholds.ExfilBytes)),
			Description: "possible data exfiltration: window byte volume above threshold",
			FiveTuple:   pkt.FiveTuple,
		})
	}
	return detections
}

// scaledConfidence maps how far a value exceeds its threshold onto [0.5, 1]:
// 0.5 at the threshold, 1.0 at twice the threshold.
func scaledConfidence(observed, threshold float64) float64 {
	if threshold <= 0 {
		return 1
	}
	return math.Min(observed/(threshold*2), 1)
}

func matchAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func matchAnyBytes(patterns []*regexp.Regexp, b []byte) bool {
	for _, re := range patterns {
		if re.Match(b) {
			return true
		}
	}
	return false
}

var httpMethods = []string{"GET ", "POST ", "PUT ", "DELETE ", "HEAD ", "OPTIONS ", "PATCH "}

// parseHTTPMeta pulls the request URI and User-Agent header out of an
// HTTP-looking payload. Both are empty when the payload is not an HTTP
// request.
func parseHTTPMeta(payload []byte) (uri, userAgent string) {
	if len(payload) < 5 {
		return "", ""
	}
	text := string(payload)

	isHTTP := false
	for _, method := range httpMethods {
		if strings.HasPrefix(text, method) {
			isHTTP = true
			break
		}
	}
	if !isHTTP {
		return "", ""
	}

	lines := strings.Split(text, "\n")
	if fields := strings.Fields(lines[0]); len(fields) >= 2 {
		uri = fields[1]
	}
	for _, line := range lines[1:] {
		if line == "" || line == "\r" {
			break // end of headers
		}
		if len(line) > 11 && strings.EqualFold(line[:11], "user-agent:") {
			userAgent = strings.TrimSpace(strings.TrimSuffix(line[11:], "\r"))
			break
		}
	}
	return uri, userAgent
}
