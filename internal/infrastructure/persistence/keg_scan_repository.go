package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/taproom/kegledger/internal/domain/keg"
	"github.com/taproom/kegledger/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormScanRepository implements keg.ScanRepository using GORM.
// There is deliberately no update or delete path.
type GormScanRepository struct {
	db *gorm.DB
}

// NewGormScanRepository creates a new GormScanRepository
func NewGormScanRepository(db *gorm.DB) *GormScanRepository {
	return &GormScanRepository{db: db}
}

// Insert appends a scan
func (r *GormScanRepository) Insert(ctx context.Context, scan *keg.KegScan) error {
	return r.db.WithContext(ctx).Create(models.KegScanModelFromDomain(scan)).Error
}

// ListByKeg returns a keg's scans in provenance order
func (r *GormScanRepository) ListByKeg(ctx context.Context, kegID uuid.UUID) ([]keg.KegScan, error) {
	var rows []models.KegScanModel
	if err := r.db.WithContext(ctx).
		Where("keg_id = ?", kegID).
		Order("scanned_at ASC").
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	scans := make([]keg.KegScan, len(rows))
	for i := range rows {
		scans[i] = *rows[i].ToDomain()
	}
	return scans, nil
}

var _ keg.ScanRepository = (*GormScanRepository)(nil)
