package keg

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// KegScan is one immutable entry of a keg's provenance trail.
// Scans are ordered by Timestamp, then by CreatedAt for equal timestamps.
type KegScan struct {
	ID        uuid.UUID
	KegID     uuid.UUID
	ScannedBy string
	Location  string
	Timestamp time.Time
	CreatedAt time.Time
}

// NewKegScan creates a scan record. A zero timestamp is replaced by now.
func NewKegScan(kegID uuid.UUID, scannedBy, location string, timestamp time.Time) (*KegScan, error) {
	if kegID == uuid.Nil {
		return nil, NewValidationError("keg_id is required")
	}
	scannedBy = strings.TrimSpace(scannedBy)
	if scannedBy == "" {
		return nil, NewValidationError("scanned_by is required")
	}
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, NewValidationError("location is required")
	}

	now := time.Now()
	if timestamp.IsZero() {
		timestamp = now
	}
	return &KegScan{
		ID:        uuid.New(),
		KegID:     kegID,
		ScannedBy: scannedBy,
		Location:  location,
		Timestamp: timestamp.UTC(),
		CreatedAt: now,
	}, nil
}
