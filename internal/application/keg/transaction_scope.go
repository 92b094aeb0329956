package keg

import (
	"context"

	"github.com/taproom/kegledger/internal/domain/keg"
)

// TransactionScope provides transactional access to keg repositories.
// All repository calls made inside fn commit or roll back together.
type TransactionScope interface {
	// Execute runs fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories gives access to the repositories that share one transaction.
//
// A scan and its holder update are written together, and the terminal
// retirement write must not be observed half-applied, so both go through here.
// POS snapshots are independent per keg and are written outside of a transaction.
type TransactionalRepositories interface {
	KegRepo() keg.KegRepository
	ScanRepo() keg.ScanRepository
	ReportRepo() keg.VarianceReportRepository
}

// NoOpTransactionScope runs fn directly against the given repositories.
// Used by tests and by in-memory deployments.
type NoOpTransactionScope struct {
	kegRepo    keg.KegRepository
	scanRepo   keg.ScanRepository
	reportRepo keg.VarianceReportRepository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
func NewNoOpTransactionScope(
	kegRepo keg.KegRepository,
	scanRepo keg.ScanRepository,
	reportRepo keg.VarianceReportRepository,
) *NoOpTransactionScope {
	return &NoOpTransactionScope{
		kegRepo:    kegRepo,
		scanRepo:   scanRepo,
		reportRepo: reportRepo,
	}
}

// Execute runs the function without a real transaction.
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// KegRepo returns the keg repository.
func (s *NoOpTransactionScope) KegRepo() keg.KegRepository {
	return s.kegRepo
}

// ScanRepo returns the scan repository.
func (s *NoOpTransactionScope) ScanRepo() keg.ScanRepository {
	return s.scanRepo
}

// ReportRepo returns the variance report repository.
func (s *NoOpTransactionScope) ReportRepo() keg.VarianceReportRepository {
	return s.reportRepo
}

var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
