package keg

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// VarianceReport records a retirement whose variance crossed a risk threshold.
// At most one report exists per keg. Resolved is owned by a separate
// resolution workflow and always starts false.
type VarianceReport struct {
	ID             uuid.UUID
	KegID          uuid.UUID
	VarianceAmount int
	Status         VarianceStatus
	AIAnalysis     json.RawMessage
	Resolved       bool
	CreatedAt      time.Time
}

// NewVarianceReport creates an unresolved report for the keg's outcome
func NewVarianceReport(kegID uuid.UUID, outcome VarianceOutcome, analysis json.RawMessage) (*VarianceReport, error) {
	if !outcome.Status.RequiresAnalysis() {
		return nil, NewValidationError("variance status %s does not warrant a report", outcome.Status)
	}
	return &VarianceReport{
		ID:             uuid.New(),
		KegID:          kegID,
		VarianceAmount: outcome.Variance,
		Status:         outcome.Status,
		AIAnalysis:     analysis,
		Resolved:       false,
		CreatedAt:      time.Now(),
	}, nil
}

// HasAnalysis reports whether the analyzer produced a payload
func (r *VarianceReport) HasAnalysis() bool {
	return len(r.AIAnalysis) > 0
}
