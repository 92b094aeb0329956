package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/taproom/kegledger/internal/domain/keg"
)

// PosSnapshotModel holds the latest synced POS count per keg
type PosSnapshotModel struct {
	KegID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	PintsSold int       `gorm:"not null"`
	SyncedAt  time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PosSnapshotModel) TableName() string {
	return "pos_snapshots"
}

// ToDomain converts the persistence model to a domain PosSnapshot.
func (m *PosSnapshotModel) ToDomain() *keg.PosSnapshot {
	return &keg.PosSnapshot{
		KegID:     m.KegID,
		PintsSold: m.PintsSold,
		SyncedAt:  m.SyncedAt,
	}
}
