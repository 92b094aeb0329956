package dto

import "net/http"

// Codes raised by the HTTP layer itself. Domain codes come from the
// sentinels in the keg and shared packages and are passed through verbatim.
const (
	ErrCodeBadRequest      = "BAD_REQUEST"
	ErrCodeInvalidJSON     = "INVALID_JSON"
	ErrCodeInternal        = "INTERNAL_ERROR"
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
	ErrCodeRateLimited     = "RATE_LIMITED"
)

// Domain codes the API exposes
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeKegNotFound         = "KEG_NOT_FOUND"
	ErrCodeTokenNotFound       = "TOKEN_NOT_FOUND"
	ErrCodeReportNotFound      = "REPORT_NOT_FOUND"
	ErrCodeSnapshotNotFound    = "SNAPSHOT_NOT_FOUND"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeAccessDenied        = "ACCESS_DENIED"
	ErrCodeKegRetired          = "KEG_RETIRED"
	ErrCodeAlreadyBurned       = "ALREADY_BURNED"
	ErrCodeAlreadyExists       = "ALREADY_EXISTS"
	ErrCodeKegBusy             = "KEG_BUSY"
	ErrCodeSyncInProgress      = "SYNC_IN_PROGRESS"
	ErrCodePOSUnavailable      = "POS_UNAVAILABLE"
	ErrCodeLedgerNetwork       = "LEDGER_NETWORK_ERROR"
	ErrCodeLedgerContract      = "LEDGER_CONTRACT_ERROR"
	ErrCodeAnalysisFailed      = "ANALYSIS_FAILED"
	ErrCodePartialRetirement   = "PARTIAL_RETIREMENT_FAILURE"
	ErrCodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	ErrCodeInvalidState        = "INVALID_STATE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodeInternal:        http.StatusInternalServerError,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
	ErrCodeRateLimited:     http.StatusTooManyRequests,

	ErrCodeValidation: http.StatusBadRequest,

	ErrCodeKegNotFound:      http.StatusNotFound,
	ErrCodeTokenNotFound:    http.StatusNotFound,
	ErrCodeReportNotFound:   http.StatusNotFound,
	ErrCodeSnapshotNotFound: http.StatusNotFound,
	ErrCodeNotFound:         http.StatusNotFound,

	ErrCodeAccessDenied: http.StatusForbidden,

	ErrCodeKegRetired:          http.StatusConflict,
	ErrCodeAlreadyBurned:       http.StatusConflict,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeKegBusy:             http.StatusConflict,
	ErrCodeSyncInProgress:      http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,

	ErrCodeInvalidState: http.StatusUnprocessableEntity,

	// upstream systems
	ErrCodePOSUnavailable: http.StatusServiceUnavailable,
	ErrCodeLedgerNetwork:  http.StatusBadGateway,
	ErrCodeLedgerContract: http.StatusBadGateway,
	ErrCodeAnalysisFailed: http.StatusBadGateway,

	ErrCodePartialRetirement: http.StatusInternalServerError,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes map to 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
