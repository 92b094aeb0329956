package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/taproom/kegledger/internal/domain/keg"
	"gorm.io/datatypes"
)

// VarianceReportModel is the persistence model for VarianceReport.
// keg_id is unique: one report per retirement.
type VarianceReportModel struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey"`
	KegID          uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex"`
	VarianceAmount int            `gorm:"not null"`
	Status         string         `gorm:"type:varchar(16);not null;index"`
	AIAnalysis     datatypes.JSON `gorm:"type:jsonb"`
	Resolved       bool           `gorm:"not null;default:false;index"`
	CreatedAt      time.Time      `gorm:"not null"`
}

// TableName returns the table name for GORM
func (VarianceReportModel) TableName() string {
	return "variance_reports"
}

// ToDomain converts the persistence model to a domain VarianceReport.
func (m *VarianceReportModel) ToDomain() *keg.VarianceReport {
	r := &keg.VarianceReport{
		ID:             m.ID,
		KegID:          m.KegID,
		VarianceAmount: m.VarianceAmount,
		Status:         keg.VarianceStatus(m.Status),
		Resolved:       m.Resolved,
		CreatedAt:      m.CreatedAt,
	}
	if len(m.AIAnalysis) > 0 && string(m.AIAnalysis) != "null" {
		r.AIAnalysis = json.RawMessage(m.AIAnalysis)
	}
	return r
}

// VarianceReportModelFromDomain creates a new persistence model from a domain VarianceReport.
func VarianceReportModelFromDomain(r *keg.VarianceReport) *VarianceReportModel {
	m := &VarianceReportModel{
		ID:             r.ID,
		KegID:          r.KegID,
		VarianceAmount: r.VarianceAmount,
		Status:         string(r.Status),
		Resolved:       r.Resolved,
		CreatedAt:      r.CreatedAt,
	}
	if len(r.AIAnalysis) > 0 {
		m.AIAnalysis = datatypes.JSON(r.AIAnalysis)
	}
	return m
}
