package keg

import (
	"time"

	"github.com/google/uuid"
)

// PosSnapshot is the last synced POS pint count for a keg, one row per keg
type PosSnapshot struct {
	KegID     uuid.UUID
	PintsSold int
	SyncedAt  time.Time
}
