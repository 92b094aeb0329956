package keg

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/taproom/kegledger/internal/domain/shared"
)

// Keg lifecycle errors. Codes are stable and exposed to API clients.
var (
	ErrKegNotFound       = shared.NewDomainError("KEG_NOT_FOUND", "Keg not found")
	ErrTokenNotFound     = shared.NewDomainError("TOKEN_NOT_FOUND", "Ledger token not found")
	ErrReportNotFound    = shared.NewDomainError("REPORT_NOT_FOUND", "Variance report not found")
	ErrSnapshotNotFound  = shared.NewDomainError("SNAPSHOT_NOT_FOUND", "POS snapshot not found")
	ErrAccessDenied      = shared.NewDomainError("ACCESS_DENIED", "Actor is not the current holder of this keg")
	ErrKegRetired        = shared.NewDomainError("KEG_RETIRED", "Keg has already been retired")
	ErrAlreadyBurned     = shared.NewDomainError("ALREADY_BURNED", "Ledger token has already been burned")
	ErrPOSUnavailable    = shared.NewDomainError("POS_UNAVAILABLE", "Point-of-sale system is unavailable")
	ErrLedgerNetwork     = shared.NewDomainError("LEDGER_NETWORK_ERROR", "Ledger network request failed")
	ErrLedgerContract    = shared.NewDomainError("LEDGER_CONTRACT_ERROR", "Ledger contract rejected the transaction")
	ErrPartialRetirement = shared.NewDomainError("PARTIAL_RETIREMENT_FAILURE", "Token burned but keg state was not persisted; reconciliation required")
	ErrValidation        = shared.NewDomainError("VALIDATION_ERROR", "Invalid input")
	ErrKegBusy           = shared.NewDomainError("KEG_BUSY", "Another operation is in progress for this keg")
	ErrAnalysisFailed    = shared.NewDomainError("ANALYSIS_FAILED", "Variance analysis failed")
)

// NewValidationError returns an ErrValidation carrying a field-specific message.
func NewValidationError(format string, args ...any) *shared.DomainError {
	return shared.WrapDomainError(ErrValidation, fmt.Errorf(format, args...))
}

// PartialRetirementError is returned when the ledger token was burned but the
// terminal keg write failed. The keg still reads as active and must be repaired
// by RepairPartialRetirement, never by a plain retry.
type PartialRetirementError struct {
	KegID   uuid.UUID
	TokenID string
	BurnTx  TxRef
	Cause   error
}

// Error implements the error interface
func (e *PartialRetirementError) Error() string {
	return fmt.Sprintf("%s (keg %s, token %s, burn tx %s): %v",
		ErrPartialRetirement.Message, e.KegID, e.TokenID, e.BurnTx.Hash, e.Cause)
}

// Unwrap exposes both the sentinel and the persistence cause to errors.Is.
func (e *PartialRetirementError) Unwrap() []error {
	return []error{ErrPartialRetirement, e.Cause}
}
