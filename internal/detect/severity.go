package detect

import "NetSentry/internal/model"

// severityForConfidence maps a score-derived confidence onto a severity
// rank. Used by the anomaly and classification layers; signature rules carry
// their own severity.
func severityForConfidence(conf float64) model.Severity {
	switch {
	case conf >= 0.9:
		return model.SeverityCritical
	case conf >= 0.75:
		return model.SeverityHigh
	case conf >= 0.6:
		return model.SeverityMedium
	}
	return model.SeverityLow
}
