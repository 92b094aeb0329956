package handler

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	appkeg "github.com/taproom/kegledger/internal/application/keg"
	"github.com/taproom/kegledger/internal/domain/keg"
	"github.com/taproom/kegledger/internal/interfaces/http/dto"
)

// RegisterKegRequest is the body of POST /kegs
type RegisterKegRequest struct {
	Brewery       string          `json:"brewery" binding:"required,max=255"`
	BeerStyle     string          `json:"beer_style" binding:"max=255"`
	ABV           decimal.Decimal `json:"abv"`
	SizeLiters    decimal.Decimal `json:"size_liters"`
	ExpectedPints int             `json:"expected_pints" binding:"gte=0"`
	Holder        string          `json:"holder" binding:"max=255"`
	Location      string          `json:"location" binding:"max=255"`
}

// RecordScanRequest is the body of POST /kegs/:id/scans
type RecordScanRequest struct {
	ScannedBy string     `json:"scanned_by" binding:"required,max=255"`
	Location  string     `json:"location" binding:"required,max=255"`
	Timestamp *time.Time `json:"timestamp"`
}

// KegListRequest adds the active filter to the common list parameters
type KegListRequest struct {
	dto.ListRequest
	ActiveOnly bool `form:"active"`
}

// ReportListRequest adds the unresolved filter to the common list parameters
type ReportListRequest struct {
	dto.ListRequest
	UnresolvedOnly bool `form:"unresolved"`
}

// KegResponse represents a keg in API responses
type KegResponse struct {
	ID             string          `json:"id"`
	TokenID        string          `json:"token_id,omitempty"`
	Brewery        string          `json:"brewery"`
	BeerStyle      string          `json:"beer_style"`
	ABV            decimal.Decimal `json:"abv"`
	SizeLiters     decimal.Decimal `json:"size_liters"`
	ExpectedPints  int             `json:"expected_pints"`
	PintsSold      *int            `json:"pints_sold"`
	Variance       *int            `json:"variance"`
	VarianceStatus *string         `json:"variance_status"`
	IsEmpty        bool            `json:"is_empty"`
	CurrentHolder  string          `json:"current_holder"`
	LastScan       *time.Time      `json:"last_scan"`
	LastLocation   string          `json:"last_location"`
	RetiredAt      *time.Time      `json:"retired_at"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Version        int             `json:"version"`
}

// ScanResponse represents one provenance entry
type ScanResponse struct {
	ID        string    `json:"id"`
	KegID     string    `json:"keg_id"`
	ScannedBy string    `json:"scanned_by"`
	Location  string    `json:"location"`
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"created_at"`
}

// RecordScanResponse is returned by POST /kegs/:id/scans
type RecordScanResponse struct {
	Scan     ScanResponse `json:"scan"`
	Keg      KegResponse  `json:"keg"`
	Warnings []string     `json:"warnings,omitempty"`
}

// RetirementResponse is returned by the retire and repair endpoints
type RetirementResponse struct {
	Keg                KegResponse             `json:"keg"`
	Outcome            keg.VarianceOutcome     `json:"outcome"`
	BurnTx             *keg.TxRef              `json:"burn_tx,omitempty"`
	AnalysisDispatched bool                    `json:"analysis_dispatched"`
	Report             *VarianceReportResponse `json:"report,omitempty"`
	Warnings           []string                `json:"warnings,omitempty"`
}

// VarianceReportResponse represents a variance report
type VarianceReportResponse struct {
	ID             string          `json:"id"`
	KegID          string          `json:"keg_id"`
	VarianceAmount int             `json:"variance_amount"`
	Status         string          `json:"status"`
	AIAnalysis     json.RawMessage `json:"ai_analysis,omitempty"`
	Resolved       bool            `json:"resolved"`
	CreatedAt      time.Time       `json:"created_at"`
}

// PosSnapshotResponse represents the last synced POS count of a keg
type PosSnapshotResponse struct {
	KegID     string    `json:"keg_id"`
	PintsSold int       `json:"pints_sold"`
	SyncedAt  time.Time `json:"synced_at"`
}

func toKegResponse(k *keg.Keg) KegResponse {
	resp := KegResponse{
		ID:            k.ID.String(),
		TokenID:       k.TokenID,
		Brewery:       k.Brewery,
		BeerStyle:     k.BeerStyle,
		ABV:           k.ABV,
		SizeLiters:    k.SizeLiters,
		ExpectedPints: k.ExpectedPints,
		PintsSold:     k.PintsSold,
		Variance:      k.Variance,
		IsEmpty:       k.IsEmpty,
		CurrentHolder: k.CurrentHolder,
		LastScan:      k.LastScan,
		LastLocation:  k.LastLocation,
		RetiredAt:     k.RetiredAt,
		CreatedAt:     k.CreatedAt,
		UpdatedAt:     k.UpdatedAt,
		Version:       k.Version,
	}
	if k.VarianceStatus != nil {
		status := k.VarianceStatus.String()
		resp.VarianceStatus = &status
	}
	return resp
}

func toKegResponses(kegs []keg.Keg) []KegResponse {
	out := make([]KegResponse, len(kegs))
	for i := range kegs {
		out[i] = toKegResponse(&kegs[i])
	}
	return out
}

func toScanResponse(s *keg.KegScan) ScanResponse {
	return ScanResponse{
		ID:        s.ID.String(),
		KegID:     s.KegID.String(),
		ScannedBy: s.ScannedBy,
		Location:  s.Location,
		Timestamp: s.Timestamp,
		CreatedAt: s.CreatedAt,
	}
}

func toScanResponses(scans []keg.KegScan) []ScanResponse {
	out := make([]ScanResponse, len(scans))
	for i := range scans {
		out[i] = toScanResponse(&scans[i])
	}
	return out
}

func toReportResponse(r *keg.VarianceReport) VarianceReportResponse {
	return VarianceReportResponse{
		ID:             r.ID.String(),
		KegID:          r.KegID.String(),
		VarianceAmount: r.VarianceAmount,
		Status:         r.Status.String(),
		AIAnalysis:     r.AIAnalysis,
		Resolved:       r.Resolved,
		CreatedAt:      r.CreatedAt,
	}
}

func toReportResponses(reports []keg.VarianceReport) []VarianceReportResponse {
	out := make([]VarianceReportResponse, len(reports))
	for i := range reports {
		out[i] = toReportResponse(&reports[i])
	}
	return out
}

func toRetirementResponse(r *appkeg.RetirementResult) RetirementResponse {
	resp := RetirementResponse{
		Keg:                toKegResponse(r.Keg),
		Outcome:            r.Outcome,
		BurnTx:             r.BurnTx,
		AnalysisDispatched: r.AnalysisDispatched,
		Warnings:           r.Warnings,
	}
	if r.Report != nil {
		report := toReportResponse(r.Report)
		resp.Report = &report
	}
	return resp
}
