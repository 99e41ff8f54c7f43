package model

import (
	"context"
)

// Analyzer defines the standard interface for an AI analyzer.
type Analyzer interface {
	// AnalyzeAlerts receives a textual alert digest and returns the analysis
	// result from the AI model.
	AnalyzeAlerts(ctx context.Context, input string) (string, error)
}
