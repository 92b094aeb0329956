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

// GormVarianceReportRepository implements keg.VarianceReportRepository using GORM
type GormVarianceReportRepository struct {
	db *gorm.DB
}

// NewGormVarianceReportRepository creates a new GormVarianceReportRepository
func NewGormVarianceReportRepository(db *gorm.DB) *GormVarianceReportRepository {
	return &GormVarianceReportRepository{db: db}
}

// Insert stores a report. A second report for the same keg yields shared.ErrAlreadyExists.
func (r *GormVarianceReportRepository) Insert(ctx context.Context, report *keg.VarianceReport) error {
	if err := r.db.WithContext(ctx).Create(models.VarianceReportModelFromDomain(report)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// FindByID finds a report by its ID
func (r *GormVarianceReportRepository) FindByID(ctx context.Context, id uuid.UUID) (*keg.VarianceReport, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindByKeg finds the report of a retired keg
func (r *GormVarianceReportRepository) FindByKeg(ctx context.Context, kegID uuid.UUID) (*keg.VarianceReport, error) {
	return r.findOne(ctx, "keg_id = ?", kegID)
}

// List returns a page of reports and the total count
func (r *GormVarianceReportRepository) List(ctx context.Context, filter shared.Filter, unresolvedOnly bool) ([]keg.VarianceReport, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.VarianceReportModel{})
	if unresolvedOnly {
		query = query.Where("resolved = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.VarianceReportModel
	if err := applyPaging(query, filter, VarianceReportSortFields).Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	reports := make([]keg.VarianceReport, len(rows))
	for i := range rows {
		reports[i] = *rows[i].ToDomain()
	}
	return reports, total, nil
}

func (r *GormVarianceReportRepository) findOne(ctx context.Context, where string, arg any) (*keg.VarianceReport, error) {
	var model models.VarianceReportModel
	if err := r.db.WithContext(ctx).Where(where, arg).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, keg.ErrReportNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

var _ keg.VarianceReportRepository = (*GormVarianceReportRepository)(nil)
