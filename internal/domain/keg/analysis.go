package keg

import (
	"context"
	"encoding/json"
)

// AnalysisRequest is handed to the external analysis capability
type AnalysisRequest struct {
	Keg      *Keg
	Scans    []KegScan
	Variance VarianceOutcome
}

// Analyzer produces a structured analysis of a variance event.
// The returned payload is opaque JSON.
type Analyzer interface {
	Analyze(ctx context.Context, req AnalysisRequest) (json.RawMessage, error)
}
