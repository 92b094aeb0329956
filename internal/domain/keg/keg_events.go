package keg

import (
	"time"

	"github.com/google/uuid"
	"github.com/taproom/kegledger/internal/domain/shared"
)

// Aggregate type constant
const AggregateTypeKeg = "Keg"

// Event type constants
const (
	EventTypeKegRegistered   = "KegRegistered"
	EventTypeKegScanned      = "KegScanned"
	EventTypeKegRetired      = "KegRetired"
	EventTypeVarianceFlagged = "VarianceFlagged"
)

// KegRegisteredEvent is raised when a new keg enters service
type KegRegisteredEvent struct {
	shared.BaseDomainEvent
	KegID         uuid.UUID `json:"keg_id"`
	Brewery       string    `json:"brewery"`
	BeerStyle     string    `json:"beer_style"`
	ExpectedPints int       `json:"expected_pints"`
}

// NewKegRegisteredEvent creates a new KegRegisteredEvent
func NewKegRegisteredEvent(k *Keg) *KegRegisteredEvent {
	return &KegRegisteredEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeKegRegistered, AggregateTypeKeg, k.ID),
		KegID:           k.ID,
		Brewery:         k.Brewery,
		BeerStyle:       k.BeerStyle,
		ExpectedPints:   k.ExpectedPints,
	}
}

// KegScannedEvent is raised when a scan moves a keg
type KegScannedEvent struct {
	shared.BaseDomainEvent
	KegID     uuid.UUID `json:"keg_id"`
	ScanID    uuid.UUID `json:"scan_id"`
	ScannedBy string    `json:"scanned_by"`
	Location  string    `json:"location"`
	ScannedAt time.Time `json:"scanned_at"`
}

// NewKegScannedEvent creates a new KegScannedEvent
func NewKegScannedEvent(k *Keg, scan *KegScan) *KegScannedEvent {
	return &KegScannedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeKegScanned, AggregateTypeKeg, k.ID),
		KegID:           k.ID,
		ScanID:          scan.ID,
		ScannedBy:       scan.ScannedBy,
		Location:        scan.Location,
		ScannedAt:       scan.Timestamp,
	}
}

// KegRetiredEvent is raised when a keg is frozen at end of life
type KegRetiredEvent struct {
	shared.BaseDomainEvent
	KegID     uuid.UUID       `json:"keg_id"`
	TokenID   string          `json:"token_id"`
	Outcome   VarianceOutcome `json:"outcome"`
	RetiredAt time.Time       `json:"retired_at"`
}

// NewKegRetiredEvent creates a new KegRetiredEvent
func NewKegRetiredEvent(k *Keg, outcome VarianceOutcome) *KegRetiredEvent {
	var retiredAt time.Time
	if k.RetiredAt != nil {
		retiredAt = *k.RetiredAt
	}
	return &KegRetiredEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeKegRetired, AggregateTypeKeg, k.ID),
		KegID:           k.ID,
		TokenID:         k.TokenID,
		Outcome:         outcome,
		RetiredAt:       retiredAt,
	}
}

// VarianceFlaggedEvent is raised when a retirement's variance is WARNING or CRITICAL
type VarianceFlaggedEvent struct {
	shared.BaseDomainEvent
	KegID   uuid.UUID       `json:"keg_id"`
	Outcome VarianceOutcome `json:"outcome"`
}

// NewVarianceFlaggedEvent creates a new VarianceFlaggedEvent
func NewVarianceFlaggedEvent(k *Keg, outcome VarianceOutcome) *VarianceFlaggedEvent {
	return &VarianceFlaggedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeVarianceFlagged, AggregateTypeKeg, k.ID),
		KegID:           k.ID,
		Outcome:         outcome,
	}
}
