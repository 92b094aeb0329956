package persistence

import (
	"fmt"
	"strings"

	"github.com/taproom/kegledger/internal/domain/shared"
	"gorm.io/gorm"
)

// ValidateSortOrder normalizes the sort order to ASC or DESC, defaulting to DESC.
func ValidateSortOrder(orderDir string) string {
	if strings.ToUpper(strings.TrimSpace(orderDir)) == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField returns sortField when whitelisted, otherwise defaultField.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed != "" && allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// KegSortFields contains allowed sort fields for kegs
var KegSortFields = map[string]bool{
	"created_at":     true,
	"updated_at":     true,
	"brewery":        true,
	"beer_style":     true,
	"expected_pints": true,
	"last_scan":      true,
	"retired_at":     true,
}

// VarianceReportSortFields contains allowed sort fields for variance reports
var VarianceReportSortFields = map[string]bool{
	"created_at":      true,
	"variance_amount": true,
	"status":          true,
}

// applyPaging applies whitelisted ordering and pagination from filter.
func applyPaging(query *gorm.DB, filter shared.Filter, allowed map[string]bool) *gorm.DB {
	field := ValidateSortField(filter.OrderBy, allowed, "created_at")
	query = query.Order(fmt.Sprintf("%s %s", field, ValidateSortOrder(filter.OrderDir)))
	if filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.PageSize)
	}
	return query
}
