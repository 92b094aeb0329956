package keg

import (
	"context"

	"github.com/google/uuid"
	"github.com/taproom/kegledger/internal/domain/shared"
)

// KegRepository defines the interface for keg persistence
type KegRepository interface {
	// FindByID returns ErrKegNotFound when the keg does not exist
	FindByID(ctx context.Context, id uuid.UUID) (*Keg, error)

	Create(ctx context.Context, k *Keg) error

	// UpdateHolder writes holder, last scan, last location and version.
	// Only succeeds while the keg is active; otherwise ErrKegRetired.
	UpdateHolder(ctx context.Context, k *Keg) error

	// MarkRetired writes the terminal state with a compare-and-swap on is_empty.
	// A keg that is already empty yields ErrKegRetired.
	MarkRetired(ctx context.Context, k *Keg) error

	ListActive(ctx context.Context) ([]Keg, error)

	List(ctx context.Context, filter shared.Filter, activeOnly bool) ([]Keg, int64, error)
}

// ScanRepository is append-only; scans are never updated or deleted.
type ScanRepository interface {
	Insert(ctx context.Context, scan *KegScan) error

	// ListByKeg returns scans in provenance order
	ListByKeg(ctx context.Context, kegID uuid.UUID) ([]KegScan, error)
}

// VarianceReportRepository defines the interface for variance report persistence
type VarianceReportRepository interface {
	Insert(ctx context.Context, report *VarianceReport) error
	FindByID(ctx context.Context, id uuid.UUID) (*VarianceReport, error)
	FindByKeg(ctx context.Context, kegID uuid.UUID) (*VarianceReport, error)
	List(ctx context.Context, filter shared.Filter, unresolvedOnly bool) ([]VarianceReport, int64, error)
}

// PosSnapshotRepository stores one sales snapshot per keg
type PosSnapshotRepository interface {
	// Upsert inserts or overwrites the snapshot keyed by keg id
	Upsert(ctx context.Context, snapshot *PosSnapshot) error
	FindByKeg(ctx context.Context, kegID uuid.UUID) (*PosSnapshot, error)
}
