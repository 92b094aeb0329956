package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/taproom/kegledger/internal/domain/keg"
	"github.com/taproom/kegledger/internal/domain/shared"
	"github.com/taproom/kegledger/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormKegRepository implements keg.KegRepository using GORM
type GormKegRepository struct {
	db *gorm.DB
}

// NewGormKegRepository creates a new GormKegRepository
func NewGormKegRepository(db *gorm.DB) *GormKegRepository {
	return &GormKegRepository{db: db}
}

// FindByID finds a keg by its ID
func (r *GormKegRepository) FindByID(ctx context.Context, id uuid.UUID) (*keg.Keg, error) {
	var model models.KegModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, keg.ErrKegNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Create inserts a new keg
func (r *GormKegRepository) Create(ctx context.Context, k *keg.Keg) error {
	if err := r.db.WithContext(ctx).Create(models.KegModelFromDomain(k)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// UpdateHolder persists the holder fields of an active keg
func (r *GormKegRepository) UpdateHolder(ctx context.Context, k *keg.Keg) error {
	result := r.db.WithContext(ctx).
		Model(&models.KegModel{}).
		Where("id = ? AND is_empty = ?", k.ID, false).
		Updates(map[string]interface{}{
			"current_holder": k.CurrentHolder,
			"last_scan":      k.LastScan,
			"last_location":  k.LastLocation,
			"version":        k.Version,
			"updated_at":     k.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.missingOrRetired(ctx, k.ID)
	}
	return nil
}

// MarkRetired persists the terminal state. The is_empty = false guard makes
// the write a compare-and-swap: only one retirement can ever succeed.
func (r *GormKegRepository) MarkRetired(ctx context.Context, k *keg.Keg) error {
	if !k.IsEmpty || k.VarianceStatus == nil {
		return keg.NewValidationError("keg %s has no terminal state to persist", k.ID)
	}
	result := r.db.WithContext(ctx).
		Model(&models.KegModel{}).
		Where("id = ? AND is_empty = ?", k.ID, false).
		Updates(map[string]interface{}{
			"is_empty":        true,
			"pints_sold":      k.PintsSold,
			"variance":        k.Variance,
			"variance_status": string(*k.VarianceStatus),
			"retired_at":      k.RetiredAt,
			"version":         k.Version,
			"updated_at":      k.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.missingOrRetired(ctx, k.ID)
	}
	return nil
}

// ListActive returns all kegs that are not empty, oldest first
func (r *GormKegRepository) ListActive(ctx context.Context) ([]keg.Keg, error) {
	var rows []models.KegModel
	if err := r.db.WithContext(ctx).
		Where("is_empty = ?", false).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toKegs(rows), nil
}

// List returns a page of kegs and the total count
func (r *GormKegRepository) List(ctx context.Context, filter shared.Filter, activeOnly bool) ([]keg.Keg, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.KegModel{})
	if activeOnly {
		query = query.Where("is_empty = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.KegModel
	if err := applyPaging(query, filter, KegSortFields).Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return toKegs(rows), total, nil
}

func (r *GormKegRepository) missingOrRetired(ctx context.Context, id uuid.UUID) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.KegModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return keg.ErrKegNotFound
	}
	return keg.ErrKegRetired
}

func toKegs(rows []models.KegModel) []keg.Keg {
	kegs := make([]keg.Keg, len(rows))
	for i := range rows {
		kegs[i] = *rows[i].ToDomain()
	}
	return kegs
}

var _ keg.KegRepository = (*GormKegRepository)(nil)
