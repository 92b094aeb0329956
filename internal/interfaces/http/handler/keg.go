package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appkeg "github.com/taproom/kegledger/internal/application/keg"
	"github.com/taproom/kegledger/internal/domain/keg"
	"github.com/taproom/kegledger/internal/domain/shared"
	"github.com/taproom/kegledger/internal/interfaces/http/middleware"
)

// KegQueries is the read and registration side of the keg service
type KegQueries interface {
	RegisterKeg(ctx context.Context, input appkeg.RegisterKegInput) (*keg.Keg, error)
	GetKeg(ctx context.Context, id uuid.UUID) (*keg.Keg, error)
	ListKegs(ctx context.Context, filter shared.Filter, activeOnly bool) ([]keg.Keg, int64, error)
	ListScans(ctx context.Context, kegID uuid.UUID) ([]keg.KegScan, error)
	GetVarianceReport(ctx context.Context, id uuid.UUID) (*keg.VarianceReport, error)
	GetKegVarianceReport(ctx context.Context, kegID uuid.UUID) (*keg.VarianceReport, error)
	ListVarianceReports(ctx context.Context, filter shared.Filter, unresolvedOnly bool) ([]keg.VarianceReport, int64, error)
	GetPosSnapshot(ctx context.Context, kegID uuid.UUID) (*keg.PosSnapshot, error)
}

// ScanRecorder appends custody scans
type ScanRecorder interface {
	RecordScan(ctx context.Context, input appkeg.RecordScanInput) (*appkeg.ScanResult, error)
}

// Retirer runs and repairs keg retirement
type Retirer interface {
	Retire(ctx context.Context, kegID uuid.UUID, requestedBy keg.Actor) (*appkeg.RetirementResult, error)
	RepairPartialRetirement(ctx context.Context, kegID uuid.UUID) (*appkeg.RetirementResult, error)
}

// Syncer refreshes POS snapshots for all active kegs
type Syncer interface {
	SyncAll(ctx context.Context) (*appkeg.SyncResult, error)
}

// KegHandler serves the keg lifecycle and reconciliation endpoints
type KegHandler struct {
	BaseHandler
	kegs    KegQueries
	scans   ScanRecorder
	retirer Retirer
	syncer  Syncer
}

// NewKegHandler creates a KegHandler
func NewKegHandler(kegs KegQueries, scans ScanRecorder, retirer Retirer, syncer Syncer) *KegHandler {
	return &KegHandler{
		kegs:    kegs,
		scans:   scans,
		retirer: retirer,
		syncer:  syncer,
	}
}

// RegisterKeg handles POST /kegs
func (h *KegHandler) RegisterKeg(c *gin.Context) {
	var req RegisterKegRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	k, err := h.kegs.RegisterKeg(c.Request.Context(), appkeg.RegisterKegInput{
		Brewery:       req.Brewery,
		BeerStyle:     req.BeerStyle,
		ABV:           req.ABV,
		SizeLiters:    req.SizeLiters,
		ExpectedPints: req.ExpectedPints,
		Holder:        req.Holder,
		Location:      req.Location,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, toKegResponse(k))
}

// GetKeg handles GET /kegs/:id
func (h *KegHandler) GetKeg(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	k, err := h.kegs.GetKeg(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toKegResponse(k))
}

// ListKegs handles GET /kegs
func (h *KegHandler) ListKegs(c *gin.Context) {
	var req KegListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	filter := req.Filter()

	kegs, total, err := h.kegs.ListKegs(c.Request.Context(), filter, req.ActiveOnly)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, toKegResponses(kegs), total, filter.Page, filter.PageSize)
}

// ListScans handles GET /kegs/:id/scans
func (h *KegHandler) ListScans(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	scans, err := h.kegs.ListScans(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toScanResponses(scans))
}

// RecordScan handles POST /kegs/:id/scans. The scan time defaults to now.
func (h *KegHandler) RecordScan(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	var req RecordScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	ts := time.Now().UTC()
	if req.Timestamp != nil {
		ts = req.Timestamp.UTC()
	}

	result, err := h.scans.RecordScan(c.Request.Context(), appkeg.RecordScanInput{
		KegID:     id,
		ScannedBy: req.ScannedBy,
		Location:  req.Location,
		Timestamp: ts,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, RecordScanResponse{
		Scan:     toScanResponse(result.Scan),
		Keg:      toKegResponse(result.Keg),
		Warnings: result.Warnings,
	})
}

// RetireKeg handles POST /kegs/:id/retire on behalf of the calling actor
func (h *KegHandler) RetireKeg(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	result, err := h.retirer.Retire(c.Request.Context(), id, middleware.GetActor(c))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toRetirementResponse(result))
}

// RepairRetirement handles POST /kegs/:id/repair
func (h *KegHandler) RepairRetirement(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	result, err := h.retirer.RepairPartialRetirement(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toRetirementResponse(result))
}

// GetKegReport handles GET /kegs/:id/report
func (h *KegHandler) GetKegReport(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	report, err := h.kegs.GetKegVarianceReport(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toReportResponse(report))
}

// GetPosSnapshot handles GET /kegs/:id/snapshot
func (h *KegHandler) GetPosSnapshot(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	snap, err := h.kegs.GetPosSnapshot(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, PosSnapshotResponse{
		KegID:     snap.KegID.String(),
		PintsSold: snap.PintsSold,
		SyncedAt:  snap.SyncedAt,
	})
}

// SyncSales handles POST /sync. Per-keg failures are reported in the body.
func (h *KegHandler) SyncSales(c *gin.Context) {
	result, err := h.syncer.SyncAll(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ListReports handles GET /reports
func (h *KegHandler) ListReports(c *gin.Context) {
	var req ReportListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	filter := req.Filter()

	reports, total, err := h.kegs.ListVarianceReports(c.Request.Context(), filter, req.UnresolvedOnly)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, toReportResponses(reports), total, filter.Page, filter.PageSize)
}

// GetReport handles GET /reports/:id
func (h *KegHandler) GetReport(c *gin.Context) {
	id, ok := h.parseID(c, "id")
	if !ok {
		return
	}
	report, err := h.kegs.GetVarianceReport(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toReportResponse(report))
}
