package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// DetectorKind identifies which detection layer produced a verdict.
type DetectorKind string

const (
	KindSignature      DetectorKind = "signature"
	KindAnomaly        DetectorKind = "anomaly"
	KindClassification DetectorKind = "classification"
)

// Severity ranks how serious a detection is. The zero value is the lowest.
type Severity uint8

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	}
	return "unknown"
}

// ParseSeverity maps a severity name to its value. Unknown names map to low.
func ParseSeverity(name string) Severity {
	switch name {
	case "medium":
		return SeverityMedium
	case "high":
		return SeverityHigh
	case "critical":
		return SeverityCritical
	}
	return SeverityLow
}

// MarshalJSON renders the severity as its name so alerts stay readable on
// the wire and in Redis.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("severity: %w", err)
	}
	*s = ParseSeverity(name)
	return nil
}

// Detection is a single detector's verdict on a single packet. Detections
// are immutable value objects; the coordinator stamps CorrelationID and
// Timestamp before handing them downstream.
type Detection struct {
	CorrelationID string
	Kind          DetectorKind
	Severity      Severity
	Confidence    float64
	Description   string
	FiveTuple     FiveTuple
	Timestamp     time.Time
}

// Alert is a Detection promoted to persisted, broadcastable form. Repeated
// identical detections inside the dedup window collapse into one Alert whose
// Count and LastSeen advance.
type Alert struct {
	ID            string       `json:"id"`
	CorrelationID string       `json:"correlation_id"`
	Kind          DetectorKind `json:"detector"`
	Severity      Severity     `json:"severity"`
	Confidence    float64      `json:"confidence"`
	Description   string       `json:"description"`
	SrcIP         string       `json:"src_ip"`
	DstIP         string       `json:"dst_ip"`
	SrcPort       uint16       `json:"src_port"`
	DstPort       uint16       `json:"dst_port"`
	Protocol      uint8        `json:"protocol"`
	CreatedAt     time.Time    `json:"created_at"`
	LastSeen      time.Time    `json:"last_seen"`
	Count         uint64       `json:"count"`
	Resolved      bool         `json:"resolved"`
}

// TrafficStatsSnapshot carries the counters of one completed stats window.
// Snapshots are append-only once flushed.
type TrafficStatsSnapshot struct {
	WindowStart       time.Time         `json:"window_start"`
	WindowEnd         time.Time         `json:"window_end"`
	Packets           uint64            `json:"packets"`
	Bytes             uint64            `json:"bytes"`
	Dropped           uint64            `json:"dropped"`
	Detections        uint64            `json:"detections"`
	ByProtocol        map[string]uint64 `json:"by_protocol"`
	ActiveConnections uint64            `json:"active_connections"`
}
