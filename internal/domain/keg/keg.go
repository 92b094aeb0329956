package keg

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/taproom/kegledger/internal/domain/shared"
)

// litersPerPint is one US pint.
var litersPerPint = decimal.RequireFromString("0.473176")

// Keg is the aggregate root for a physical keg and its off-chain record.
// Once IsEmpty is true the keg is frozen: PintsSold, Variance and
// VarianceStatus never change again and no scan can be applied.
type Keg struct {
	shared.BaseAggregateRoot
	TokenID        string
	Brewery        string
	BeerStyle      string
	ABV            decimal.Decimal
	SizeLiters     decimal.Decimal
	ExpectedPints  int
	PintsSold      *int
	Variance       *int
	VarianceStatus *VarianceStatus
	IsEmpty        bool
	CurrentHolder  string
	LastScan       *time.Time
	LastLocation   string
	RetiredAt      *time.Time
}

// NewKegParams holds the attributes of a freshly filled keg
type NewKegParams struct {
	Brewery       string
	BeerStyle     string
	ABV           decimal.Decimal
	SizeLiters    decimal.Decimal
	ExpectedPints int
	Holder        string
	Location      string
}

// NewKeg creates an active keg. ExpectedPints defaults to the number of whole
// pints that fit in SizeLiters.
func NewKeg(p NewKegParams) (*Keg, error) {
	if strings.TrimSpace(p.Brewery) == "" {
		return nil, NewValidationError("brewery is required")
	}
	if p.ABV.IsNegative() || p.ABV.GreaterThan(decimal.NewFromInt(100)) {
		return nil, NewValidationError("abv must be between 0 and 100")
	}
	if !p.SizeLiters.IsPositive() {
		return nil, NewValidationError("size_liters must be positive")
	}
	expected := p.ExpectedPints
	if expected == 0 {
		expected = PintsForSize(p.SizeLiters)
	}
	if expected <= 0 {
		return nil, NewValidationError("expected_pints must be positive")
	}

	k := &Keg{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Brewery:           strings.TrimSpace(p.Brewery),
		BeerStyle:         strings.TrimSpace(p.BeerStyle),
		ABV:               p.ABV,
		SizeLiters:        p.SizeLiters,
		ExpectedPints:     expected,
		CurrentHolder:     p.Holder,
		LastLocation:      p.Location,
	}
	k.AddDomainEvent(NewKegRegisteredEvent(k))
	return k, nil
}

// PintsForSize returns the whole number of pints a keg of the given size holds.
func PintsForSize(liters decimal.Decimal) int {
	return int(liters.Div(litersPerPint).Floor().IntPart())
}

// IsActive reports whether the keg can still be scanned or retired
func (k *Keg) IsActive() bool {
	return !k.IsEmpty
}

// HasToken reports whether a ledger token has been minted for the keg
func (k *Keg) HasToken() bool {
	return k.TokenID != ""
}

// AssignToken records the ledger token minted for this keg
func (k *Keg) AssignToken(tokenID string) {
	k.TokenID = tokenID
	k.UpdatedAt = time.Now()
}

// ApplyScan moves the keg to the scan's holder and location.
func (k *Keg) ApplyScan(scan *KegScan) error {
	if k.IsEmpty {
		return ErrKegRetired
	}
	if scan.KegID != k.ID {
		return NewValidationError("scan belongs to keg %s", scan.KegID)
	}

	ts := scan.Timestamp
	k.CurrentHolder = scan.ScannedBy
	k.LastLocation = scan.Location
	k.LastScan = &ts
	k.UpdatedAt = time.Now()
	k.IncrementVersion()

	k.AddDomainEvent(NewKegScannedEvent(k, scan))
	return nil
}

// CheckRetirementBy verifies that actor may retire the keg.
// A keg with no recorded holder cannot be retired by anyone.
func (k *Keg) CheckRetirementBy(actor Actor) error {
	if k.IsEmpty {
		return ErrKegRetired
	}
	if k.CurrentHolder == "" || actor.ID != k.CurrentHolder {
		return ErrAccessDenied
	}
	return nil
}

// Retire freezes the keg with its final reconciliation values.
func (k *Keg) Retire(outcome VarianceOutcome, at time.Time) error {
	if k.IsEmpty {
		return ErrKegRetired
	}

	sold := outcome.Actual
	variance := outcome.Variance
	status := outcome.Status
	k.PintsSold = &sold
	k.Variance = &variance
	k.VarianceStatus = &status
	k.IsEmpty = true
	k.RetiredAt = &at
	k.UpdatedAt = at
	k.IncrementVersion()

	k.AddDomainEvent(NewKegRetiredEvent(k, outcome))
	if status.RequiresAnalysis() {
		k.AddDomainEvent(NewVarianceFlaggedEvent(k, outcome))
	}
	return nil
}

// Metadata returns the provenance attributes mirrored onto the ledger token
func (k *Keg) Metadata() TokenMetadata {
	return TokenMetadata{
		KegID:         k.ID.String(),
		Brewery:       k.Brewery,
		BeerStyle:     k.BeerStyle,
		ABV:           k.ABV,
		SizeLiters:    k.SizeLiters,
		ExpectedPints: k.ExpectedPints,
		CurrentHolder: k.CurrentHolder,
		LastLocation:  k.LastLocation,
		LastScan:      k.LastScan,
	}
}
