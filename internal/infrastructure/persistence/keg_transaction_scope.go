package persistence

import (
	"context"

	appkeg "github.com/taproom/kegledger/internal/application/keg"
	"github.com/taproom/kegledger/internal/domain/keg"
	"gorm.io/gorm"
)

// GormTransactionScope implements appkeg.TransactionScope on a gorm transaction
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs fn within a database transaction.
// If fn returns an error or panics, the transaction is rolled back.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appkeg.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx})
	})
}

// gormTransactionalRepositories binds every repository to the same *gorm.DB transaction
type gormTransactionalRepositories struct {
	tx *gorm.DB
}

func (r *gormTransactionalRepositories) KegRepo() keg.KegRepository {
	return NewGormKegRepository(r.tx)
}

func (r *gormTransactionalRepositories) ScanRepo() keg.ScanRepository {
	return NewGormScanRepository(r.tx)
}

func (r *gormTransactionalRepositories) ReportRepo() keg.VarianceReportRepository {
	return NewGormVarianceReportRepository(r.tx)
}

var _ appkeg.TransactionScope = (*GormTransactionScope)(nil)
var _ appkeg.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
