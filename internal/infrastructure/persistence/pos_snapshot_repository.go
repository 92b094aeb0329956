package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/taproom/kegledger/internal/domain/keg"
	"github.com/taproom/kegledger/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormPosSnapshotRepository implements keg.PosSnapshotRepository using GORM
type GormPosSnapshotRepository struct {
	db *gorm.DB
}

// NewGormPosSnapshotRepository creates a new GormPosSnapshotRepository
func NewGormPosSnapshotRepository(db *gorm.DB) *GormPosSnapshotRepository {
	return &GormPosSnapshotRepository{db: db}
}

// Upsert writes the snapshot, overwriting any existing row for the keg
func (r *GormPosSnapshotRepository) Upsert(ctx context.Context, snapshot *keg.PosSnapshot) error {
	model := &models.PosSnapshotModel{
		KegID:     snapshot.KegID,
		PintsSold: snapshot.PintsSold,
		SyncedAt:  snapshot.SyncedAt,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "keg_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"pints_sold", "synced_at"}),
		}).
		Create(model).Error
}

// FindByKeg returns the latest snapshot for the keg
func (r *GormPosSnapshotRepository) FindByKeg(ctx context.Context, kegID uuid.UUID) (*keg.PosSnapshot, error) {
	var model models.PosSnapshotModel
	if err := r.db.WithContext(ctx).First(&model, "keg_id = ?", kegID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, keg.ErrSnapshotNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

var _ keg.PosSnapshotRepository = (*GormPosSnapshotRepository)(nil)
