package keg

import "fmt"

// VarianceStatus classifies the risk of a keg's end-of-life variance
type VarianceStatus string

const (
	VarianceNormal   VarianceStatus = "NORMAL"
	VarianceWarning  VarianceStatus = "WARNING"
	VarianceCritical VarianceStatus = "CRITICAL"
)

// IsValid reports whether s is a known status
func (s VarianceStatus) IsValid() bool {
	switch s {
	case VarianceNormal, VarianceWarning, VarianceCritical:
		return true
	}
	return false
}

// RequiresAnalysis reports whether a retirement with this status gets a variance report
func (s VarianceStatus) RequiresAnalysis() bool {
	return s == VarianceWarning || s == VarianceCritical
}

// String returns the string representation
func (s VarianceStatus) String() string {
	return string(s)
}

// VarianceOutcome is the result of reconciling expected against actual pours
type VarianceOutcome struct {
	Expected int            `json:"expected_pints"`
	Actual   int            `json:"actual_pints"`
	Variance int            `json:"variance"`
	Status   VarianceStatus `json:"status"`
}

// VarianceEngine computes and classifies pour variance.
// Positive variance is shrinkage, negative is over-pouring.
type VarianceEngine struct {
	warningThreshold  int
	criticalThreshold int
}

// NewVarianceEngine creates an engine with absolute thresholds 0 < warning < critical.
func NewVarianceEngine(warningThreshold, criticalThreshold int) (*VarianceEngine, error) {
	if warningThreshold <= 0 {
		return nil, fmt.Errorf("variance warning threshold must be positive, got %d", warningThreshold)
	}
	if warningThreshold >= criticalThreshold {
		return nil, fmt.Errorf("variance warning threshold (%d) must be less than critical threshold (%d)",
			warningThreshold, criticalThreshold)
	}
	return &VarianceEngine{
		warningThreshold:  warningThreshold,
		criticalThreshold: criticalThreshold,
	}, nil
}

// WarningThreshold returns the configured warning threshold
func (e *VarianceEngine) WarningThreshold() int {
	return e.warningThreshold
}

// CriticalThreshold returns the configured critical threshold
func (e *VarianceEngine) CriticalThreshold() int {
	return e.criticalThreshold
}

// ComputeVariance returns expected - actual
func (e *VarianceEngine) ComputeVariance(expectedPints, actualPints int) int {
	return expectedPints - actualPints
}

// Classify maps a variance onto a status using its absolute value
func (e *VarianceEngine) Classify(variance int) VarianceStatus {
	abs := variance
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= e.criticalThreshold:
		return VarianceCritical
	case abs >= e.warningThreshold:
		return VarianceWarning
	default:
		return VarianceNormal
	}
}

// Evaluate computes and classifies in one step
func (e *VarianceEngine) Evaluate(expectedPints, actualPints int) VarianceOutcome {
	v := e.ComputeVariance(expectedPints, actualPints)
	return VarianceOutcome{
		Expected: expectedPints,
		Actual:   actualPints,
		Variance: v,
		Status:   e.Classify(v),
	}
}
