package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/taproom/kegledger/internal/domain/keg"
)

// KegScanModel is the append-only provenance row for a keg scan
type KegScanModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	KegID     uuid.UUID `gorm:"type:uuid;not null;index:idx_keg_scans_keg_time,priority:1"`
	ScannedBy string    `gorm:"type:varchar(128);not null"`
	Location  string    `gorm:"type:varchar(255);not null"`
	Timestamp time.Time `gorm:"column:scanned_at;not null;index:idx_keg_scans_keg_time,priority:2"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (KegScanModel) TableName() string {
	return "keg_scans"
}

// ToDomain converts the persistence model to a domain KegScan.
func (m *KegScanModel) ToDomain() *keg.KegScan {
	return &keg.KegScan{
		ID:        m.ID,
		KegID:     m.KegID,
		ScannedBy: m.ScannedBy,
		Location:  m.Location,
		Timestamp: m.Timestamp,
		CreatedAt: m.CreatedAt,
	}
}

// KegScanModelFromDomain creates a new persistence model from a domain KegScan.
func KegScanModelFromDomain(s *keg.KegScan) *KegScanModel {
	return &KegScanModel{
		ID:        s.ID,
		KegID:     s.KegID,
		ScannedBy: s.ScannedBy,
		Location:  s.Location,
		Timestamp: s.Timestamp,
		CreatedAt: s.CreatedAt,
	}
}
