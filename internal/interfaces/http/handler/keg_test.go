package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	appkeg "github.com/taproom/kegledger/internal/application/keg"
	"github.com/taproom/kegledger/internal/domain/keg"
	"github.com/taproom/kegledger/internal/domain/shared"
	"github.com/taproom/kegledger/internal/infrastructure/logger"
	"github.com/taproom/kegledger/internal/interfaces/http/dto"
	"github.com/taproom/kegledger/internal/interfaces/http/middleware"
	"github.com/taproom/kegledger/internal/interfaces/http/router"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

type MockKegQueries struct {
	mock.Mock
}

func (m *MockKegQueries) RegisterKeg(ctx context.Context, input appkeg.RegisterKegInput) (*keg.Keg, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*keg.Keg), args.Error(1)
}

func (m *MockKegQueries) GetKeg(ctx context.Context, id uuid.UUID) (*keg.Keg, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*keg.Keg), args.Error(1)
}

func (m *MockKegQueries) ListKegs(ctx context.Context, filter shared.Filter, activeOnly bool) ([]keg.Keg, int64, error) {
	args := m.Called(ctx, filter, activeOnly)
	return args.Get(0).([]keg.Keg), args.Get(1).(int64), args.Error(2)
}

func (m *MockKegQueries) ListScans(ctx context.Context, kegID uuid.UUID) ([]keg.KegScan, error) {
	args := m.Called(ctx, kegID)
	return args.Get(0).([]keg.KegScan), args.Error(1)
}

func (m *MockKegQueries) GetVarianceReport(ctx context.Context, id uuid.UUID) (*keg.VarianceReport, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*keg.VarianceReport), args.Error(1)
}

func (m *MockKegQueries) GetKegVarianceReport(ctx context.Context, kegID uuid.UUID) (*keg.VarianceReport, error) {
	args := m.Called(ctx, kegID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*keg.VarianceReport), args.Error(1)
}

func (m *MockKegQueries) ListVarianceReports(ctx context.Context, filter shared.Filter, unresolvedOnly bool) ([]keg.VarianceReport, int64, error) {
	args := m.Called(ctx, filter, unresolvedOnly)
	return args.Get(0).([]keg.VarianceReport), args.Get(1).(int64), args.Error(2)
}

func (m *MockKegQueries) GetPosSnapshot(ctx context.Context, kegID uuid.UUID) (*keg.PosSnapshot, error) {
	args := m.Called(ctx, kegID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*keg.PosSnapshot), args.Error(1)
}

type MockScanRecorder struct {
	mock.Mock
}

func (m *MockScanRecorder) RecordScan(ctx context.Context, input appkeg.RecordScanInput) (*appkeg.ScanResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appkeg.ScanResult), args.Error(1)
}

type MockRetirer struct {
	mock.Mock
}

func (m *MockRetirer) Retire(ctx context.Context, kegID uuid.UUID, requestedBy keg.Actor) (*appkeg.RetirementResult, error) {
	args := m.Called(ctx, kegID, requestedBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appkeg.RetirementResult), args.Error(1)
}

func (m *MockRetirer) RepairPartialRetirement(ctx context.Context, kegID uuid.UUID) (*appkeg.RetirementResult, error) {
	args := m.Called(ctx, kegID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appkeg.RetirementResult), args.Error(1)
}

type MockSyncer struct {
	mock.Mock
}

func (m *MockSyncer) SyncAll(ctx context.Context) (*appkeg.SyncResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appkeg.SyncResult), args.Error(1)
}

type kegHandlerFixture struct {
	engine  *gin.Engine
	kegs    *MockKegQueries
	scans   *MockScanRecorder
	retirer *MockRetirer
	syncer  *MockSyncer
}

func newKegHandlerFixture(t *testing.T) *kegHandlerFixture {
	t.Helper()
	f := &kegHandlerFixture{
		kegs:    new(MockKegQueries),
		scans:   new(MockScanRecorder),
		retirer: new(MockRetirer),
		syncer:  new(MockSyncer),
	}
	h := NewKegHandler(f.kegs, f.scans, f.retirer, f.syncer)

	f.engine = gin.New()
	f.engine.Use(logger.GinMiddleware(zap.NewNop()), middleware.Actor())
	r := router.NewRouter(f.engine)
	r.Register(KegRoutes(h))
	r.Setup()

	t.Cleanup(func() {
		f.kegs.AssertExpectations(t)
		f.scans.AssertExpectations(t)
		f.retirer.AssertExpectations(t)
		f.syncer.AssertExpectations(t)
	})
	return f
}

func (f *kegHandlerFixture) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) (dto.Response, map[string]any) {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, _ := resp.Data.(map[string]any)
	return resp, data
}

func newTestKeg(t *testing.T) *keg.Keg {
	t.Helper()
	k, err := keg.NewKeg(keg.NewKegParams{
		Brewery:       "Northgate",
		BeerStyle:     "IPA",
		ABV:           decimal.RequireFromString("6.5"),
		SizeLiters:    decimal.RequireFromString("58.67"),
		ExpectedPints: 124,
		Holder:        "bar-1",
		Location:      "cellar",
	})
	require.NoError(t, err)
	k.AssignToken("7")
	return k
}

func TestKegHandler_RegisterKeg(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		f := newKegHandlerFixture(t)
		k := newTestKeg(t)
		f.kegs.On("RegisterKeg", mock.Anything, mock.MatchedBy(func(in appkeg.RegisterKegInput) bool {
			return in.Brewery == "Northgate" && in.ABV.Equal(decimal.RequireFromString("6.5")) && in.ExpectedPints == 124
		})).Return(k, nil)

		w := f.do(http.MethodPost, "/api/v1/kegs",
			`{"brewery":"Northgate","beer_style":"IPA","abv":"6.5","size_liters":"58.67","expected_pints":124,"holder":"bar-1"}`)

		assert.Equal(t, http.StatusCreated, w.Code)
		resp, data := decode(t, w)
		assert.True(t, resp.Success)
		assert.Equal(t, k.ID.String(), data["id"])
		assert.Equal(t, "7", data["token_id"])
		assert.Equal(t, false, data["is_empty"])
	})

	t.Run("missing brewery is rejected before the service", func(t *testing.T) {
		f := newKegHandlerFixture(t)

		w := f.do(http.MethodPost, "/api/v1/kegs", `{"size_liters":"20"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp, _ := decode(t, w)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
		require.Len(t, resp.Error.Details, 1)
		assert.Equal(t, "brewery", resp.Error.Details[0].Field)
	})

	t.Run("ledger failure maps to bad gateway", func(t *testing.T) {
		f := newKegHandlerFixture(t)
		f.kegs.On("RegisterKeg", mock.Anything, mock.Anything).
			Return(nil, shared.WrapDomainError(keg.ErrLedgerNetwork, errors.New("dial tcp: refused")))

		w := f.do(http.MethodPost, "/api/v1/kegs", `{"brewery":"Northgate","size_liters":"20"}`)

		assert.Equal(t, http.StatusBadGateway, w.Code)
		resp, _ := decode(t, w)
		assert.Equal(t, dto.ErrCodeLedgerNetwork, resp.Error.Code)
		assert.NotContains(t, resp.Error.Message, "dial tcp")
	})
}

func TestKegHandler_GetKeg(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		f := newKegHandlerFixture(t)
		k := newTestKeg(t)
		f.kegs.On("GetKeg", mock.Anything, k.ID).Return(k, nil)

		w := f.do(http.MethodGet, "/api/v1/kegs/"+k.ID.String(), "")

		assert.Equal(t, http.StatusOK, w.Code)
		_, data := decode(t, w)
		assert.Equal(t, "Northgate", data["brewery"])
		assert.Nil(t, data["variance_status"])
	})

	t.Run("not found", func(t *testing.T) {
		f := newKegHandlerFixture(t)
		id := uuid.New()
		f.kegs.On("GetKeg", mock.Anything, id).Return(nil, keg.ErrKegNotFound)

		w := f.do(http.MethodGet, "/api/v1/kegs/"+id.String(), "")

		assert.Equal(t, http.StatusNotFound, w.Code)
		resp, _ := decode(t, w)
		assert.Equal(t, dto.ErrCodeKegNotFound, resp.Error.Code)
		assert.NotEmpty(t, resp.Error.RequestID)
	})

	t.Run("malformed id", func(t *testing.T) {
		f := newKegHandlerFixture(t)

		w := f.do(http.MethodGet, "/api/v1/kegs/not-a-uuid", "")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp, _ := decode(t, w)
		assert.Equal(t, dto.ErrCodeBadRequest, resp.Error.Code)
	})
}

func TestKegHandler_ListKegs(t *testing.T) {
	f := newKegHandlerFixture(t)
	k := newTestKeg(t)
	expected := shared.DefaultFilter()
	expected.Page = 2
	expected.PageSize = 5
	f.kegs.On("ListKegs", mock.Anything, expected, true).Return([]keg.Keg{*k}, int64(6), nil)

	w := f.do(http.MethodGet, "/api/v1/kegs?page=2&page_size=5&active=true", "")

	assert.Equal(t, http.StatusOK, w.Code)
	resp, _ := decode(t, w)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(6), resp.Meta.Total)
	assert.Equal(t, 2, resp.Meta.TotalPages)
	items := resp.Data.([]any)
	assert.Len(t, items, 1)
}

func TestKegHandler_ListKegs_InvalidPaging(t *testing.T) {
	f := newKegHandlerFixture(t)

	w := f.do(http.MethodGet, "/api/v1/kegs?page_size=1000", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestKegHandler_ListScans(t *testing.T) {
	f := newKegHandlerFixture(t)
	id := uuid.New()
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s1, err := keg.NewKegScan(id, "driver-2", "truck", ts)
	require.NoError(t, err)
	s2, err := keg.NewKegScan(id, "bar-1", "taproom", ts.Add(time.Hour))
	require.NoError(t, err)
	f.kegs.On("ListScans", mock.Anything, id).Return([]keg.KegScan{*s1, *s2}, nil)

	w := f.do(http.MethodGet, "/api/v1/kegs/"+id.String()+"/scans", "")

	assert.Equal(t, http.StatusOK, w.Code)
	resp, _ := decode(t, w)
	items := resp.Data.([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "driver-2", items[0].(map[string]any)["scanned_by"])
	assert.Equal(t, "bar-1", items[1].(map[string]any)["scanned_by"])
}

func TestKegHandler_RecordScan(t *testing.T) {
	t.Run("explicit timestamp", func(t *testing.T) {
		f := newKegHandlerFixture(t)
		k := newTestKeg(t)
		ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		scan, err := keg.NewKegScan(k.ID, "bar-2", "taproom", ts)
		require.NoError(t, err)
		require.NoError(t, k.ApplyScan(scan))

		f.scans.On("RecordScan", mock.Anything, appkeg.RecordScanInput{
			KegID:     k.ID,
			ScannedBy: "bar-2",
			Location:  "taproom",
			Timestamp: ts,
		}).Return(&appkeg.ScanResult{Scan: scan, Keg: k, Warnings: []string{"ledger mirror failed"}}, nil)

		w := f.do(http.MethodPost, "/api/v1/kegs/"+k.ID.String()+"/scans",
			`{"scanned_by":"bar-2","location":"taproom","timestamp":"2026-03-01T12:00:00Z"}`)

		assert.Equal(t, http.StatusCreated, w.Code)
		_, data := decode(t, w)
		assert.Equal(t, "bar-2", data["keg"].(map[string]any)["current_holder"])
		assert.Equal(t, []any{"ledger mirror failed"}, data["warnings"])
	})

	t.Run("timestamp defaults to now", func(t *testing.T) {
		f := newKegHandlerFixture(t)
		k := newTestKeg(t)
		before := time.Now().UTC()
		scan, err := keg.NewKegScan(k.ID, "bar-2", "taproom", before)
		require.NoError(t, err)
		f.scans.On("RecordScan", mock.Anything, mock.MatchedBy(func(in appkeg.RecordScanInput) bool {
			return !in.Timestamp.Before(before) && in.Timestamp.Location() == time.UTC
		})).Return(&appkeg.ScanResult{Scan: scan, Keg: k}, nil)

		w := f.do(http.MethodPost, "/api/v1/kegs/"+k.ID.String()+"/scans", `{"scanned_by":"bar-2","location":"taproom"}`)

		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("retired keg conflicts", func(t *testing.T) {
		f := newKegHandlerFixture(t)
		id := uuid.New()
		f.scans.On("RecordScan", mock.Anything, mock.Anything).Return(nil, keg.ErrKegRetired)

		w := f.do(http.MethodPost, "/api/v1/kegs/"+id.String()+"/scans", `{"scanned_by":"bar-2","location":"taproom"}`)

		assert.Equal(t, http.StatusConflict, w.Code)
		resp, _ := decode(t, w)
		assert.Equal(t, dto.ErrCodeKegRetired, resp.Error.Code)
	})

	t.Run("location required", func(t *testing.T) {
		f := newKegHandlerFixture(t)

		w := f.do(http.MethodPost, "/api/v1/kegs/"+uuid.NewString()+"/scans", `{"scanned_by":"bar-2"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestKegHandler_RetireKeg(t *testing.T) {
	t.Run("passes the gateway actor", func(t *testing.T) {
		f := newKegHandlerFixture(t)
		k := newTestKeg(t)
		engine, err := keg.NewVarianceEngine(5, 10)
		require.NoError(t, err)
		outcome := engine.Evaluate(k.ExpectedPints, 112)
		require.NoError(t, k.Retire(outcome, time.Now()))
		report, err := keg.NewVarianceReport(k.ID, outcome, json.RawMessage(`{"summary":"over-pouring"}`))
		require.NoError(t, err)

		actor := keg.Actor{ID: "bar-1", Role: "bar", AllowedKegScope: []string{k.ID.String()}}
		f.retirer.On("Retire", mock.Anything, k.ID, actor).Return(&appkeg.RetirementResult{
			Keg:                k,
			Outcome:            outcome,
			BurnTx:             &keg.TxRef{Hash: "0xburn", BlockNumber: 9},
			AnalysisDispatched: true,
			Report:             report,
		}, nil)

		w := f.do(http.MethodPost, "/api/v1/kegs/"+k.ID.String()+"/retire", "",
			middleware.ActorIDHeader, "bar-1",
			middleware.ActorRoleHeader, "bar",
			middleware.ActorScopeHeader, k.ID.String())

		assert.Equal(t, http.StatusOK, w.Code)
		_, data := decode(t, w)
		assert.Equal(t, "CRITICAL", data["outcome"].(map[string]any)["status"])
		assert.Equal(t, float64(12), data["outcome"].(map[string]any)["variance"])
		assert.Equal(t, "0xburn", data["burn_tx"].(map[string]any)["hash"])
		assert.Equal(t, true, data["analysis_dispatched"])
		assert.Equal(t, true, data["keg"].(map[string]any)["is_empty"])
		assert.Equal(t, "over-pouring", data["report"].(map[string]any)["ai_analysis"].(map[string]any)["summary"])
	})

	t.Run("non-holder is forbidden", func(t *testing.T) {
		f := newKegHandlerFixture(t)
		id := uuid.New()
		f.retirer.On("Retire", mock.Anything, id, keg.Actor{ID: "bar-9"}).Return(nil, keg.ErrAccessDenied)

		w := f.do(http.MethodPost, "/api/v1/kegs/"+id.String()+"/retire", "", middleware.ActorIDHeader, "bar-9")

		assert.Equal(t, http.StatusForbidden, w.Code)
		resp, _ := decode(t, w)
		assert.Equal(t, dto.ErrCodeAccessDenied, resp.Error.Code)
	})

	t.Run("POS outage is unavailable", func(t *testing.T) {
		f := newKegHandlerFixture(t)
		id := uuid.New()
		f.retirer.On("Retire", mock.Anything, id, mock.Anything).
			Return(nil, shared.WrapDomainError(keg.ErrPOSUnavailable, errors.New("503")))

		w := f.do(http.MethodPost, "/api/v1/kegs/"+id.String()+"/retire", "")

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("partial retirement asks for reconciliation", func(t *testing.T) {
		f := newKegHandlerFixture(t)
		id := uuid.New()
		partial := &keg.PartialRetirementError{
			KegID:   id,
			TokenID: "7",
			BurnTx:  keg.TxRef{Hash: "0xburn"},
			Cause:   errors.New("connection reset"),
		}
		f.retirer.On("Retire", mock.Anything, id, mock.Anything).Return(nil, fmt.Errorf("retire: %w", partial))

		w := f.do(http.MethodPost, "/api/v1/kegs/"+id.String()+"/retire", "")

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		resp, _ := decode(t, w)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodePartialRetirement, resp.Error.Code)
		assert.True(t, resp.Error.ReconciliationRequired)
		require.NotNil(t, resp.Error.Reconciliation)
		assert.Equal(t, id.String(), resp.Error.Reconciliation.KegID)
		assert.Equal(t, "7", resp.Error.Reconciliation.TokenID)
		assert.Equal(t, "0xburn", resp.Error.Reconciliation.BurnTxHash)
		assert.NotContains(t, resp.Error.Message, "connection reset")
	})

	t.Run("unexpected error is hidden", func(t *testing.T) {
		f := newKegHandlerFixture(t)
		id := uuid.New()
		f.retirer.On("Retire", mock.Anything, id, mock.Anything).Return(nil, errors.New("boom"))

		w := f.do(http.MethodPost, "/api/v1/kegs/"+id.String()+"/retire", "")

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		resp, _ := decode(t, w)
		assert.Equal(t, dto.ErrCodeInternal, resp.Error.Code)
		assert.NotContains(t, resp.Error.Message, "boom")
	})
}

func TestKegHandler_RepairRetirement(t *testing.T) {
	f := newKegHandlerFixture(t)
	k := newTestKeg(t)
	engine, err := keg.NewVarianceEngine(5, 10)
	require.NoError(t, err)
	outcome := engine.Evaluate(k.ExpectedPints, 122)
	require.NoError(t, k.Retire(outcome, time.Now()))
	f.retirer.On("RepairPartialRetirement", mock.Anything, k.ID).
		Return(&appkeg.RetirementResult{Keg: k, Outcome: outcome, Warnings: []string{"repaired from ledger burn"}}, nil)

	w := f.do(http.MethodPost, "/api/v1/kegs/"+k.ID.String()+"/repair", "")

	assert.Equal(t, http.StatusOK, w.Code)
	_, data := decode(t, w)
	assert.Equal(t, "NORMAL", data["outcome"].(map[string]any)["status"])
	assert.Nil(t, data["report"])
}

func TestKegHandler_Reports(t *testing.T) {
	kegID := uuid.New()
	report, err := keg.NewVarianceReport(kegID, keg.VarianceOutcome{
		Expected: 124, Actual: 117, Variance: 7, Status: keg.VarianceWarning,
	}, nil)
	require.NoError(t, err)

	t.Run("by keg", func(t *testing.T) {
		f := newKegHandlerFixture(t)
		f.kegs.On("GetKegVarianceReport", mock.Anything, kegID).Return(report, nil)

		w := f.do(http.MethodGet, "/api/v1/kegs/"+kegID.String()+"/report", "")

		assert.Equal(t, http.StatusOK, w.Code)
		_, data := decode(t, w)
		assert.Equal(t, "WARNING", data["status"])
		assert.Equal(t, float64(7), data["variance_amount"])
		_, hasAnalysis := data["ai_analysis"]
		assert.False(t, hasAnalysis)
	})

	t.Run("by id missing", func(t *testing.T) {
		f := newKegHandlerFixture(t)
		id := uuid.New()
		f.kegs.On("GetVarianceReport", mock.Anything, id).Return(nil, keg.ErrReportNotFound)

		w := f.do(http.MethodGet, "/api/v1/reports/"+id.String(), "")

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("list unresolved", func(t *testing.T) {
		f := newKegHandlerFixture(t)
		f.kegs.On("ListVarianceReports", mock.Anything, shared.DefaultFilter(), true).
			Return([]keg.VarianceReport{*report}, int64(1), nil)

		w := f.do(http.MethodGet, "/api/v1/reports?unresolved=true", "")

		assert.Equal(t, http.StatusOK, w.Code)
		resp, _ := decode(t, w)
		assert.Len(t, resp.Data.([]any), 1)
		assert.Equal(t, int64(1), resp.Meta.Total)
	})
}

func TestKegHandler_GetPosSnapshot(t *testing.T) {
	f := newKegHandlerFixture(t)
	id := uuid.New()
	syncedAt := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	f.kegs.On("GetPosSnapshot", mock.Anything, id).Return(&keg.PosSnapshot{KegID: id, PintsSold: 88, SyncedAt: syncedAt}, nil)

	w := f.do(http.MethodGet, "/api/v1/kegs/"+id.String()+"/snapshot", "")

	assert.Equal(t, http.StatusOK, w.Code)
	_, data := decode(t, w)
	assert.Equal(t, float64(88), data["pints_sold"])
}

func TestKegHandler_SyncSales(t *testing.T) {
	t.Run("reports per-keg failures", func(t *testing.T) {
		f := newKegHandlerFixture(t)
		failed := uuid.New()
		f.syncer.On("SyncAll", mock.Anything).Return(&appkeg.SyncResult{
			Synced: 2,
			Total:  3,
			Errors: []appkeg.SyncError{{KegID: failed, Error: "POS unavailable"}},
		}, nil)

		w := f.do(http.MethodPost, "/api/v1/kegs/sync", "")

		assert.Equal(t, http.StatusOK, w.Code)
		_, data := decode(t, w)
		assert.Equal(t, float64(2), data["synced"])
		assert.Equal(t, float64(3), data["total"])
		errs := data["errors"].([]any)
		require.Len(t, errs, 1)
		assert.Equal(t, failed.String(), errs[0].(map[string]any)["keg_id"])
	})

	t.Run("concurrent sync conflicts", func(t *testing.T) {
		f := newKegHandlerFixture(t)
		f.syncer.On("SyncAll", mock.Anything).
			Return(nil, shared.NewDomainError(dto.ErrCodeSyncInProgress, "sync already running"))

		w := f.do(http.MethodPost, "/api/v1/kegs/sync", "")

		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestKegRoutes_WriteMiddleware(t *testing.T) {
	kegs := new(MockKegQueries)
	syncer := new(MockSyncer)
	h := NewKegHandler(kegs, new(MockScanRecorder), new(MockRetirer), syncer)

	engine := gin.New()
	r := router.NewRouter(engine)
	r.Register(KegRoutes(h, func(c *gin.Context) {
		c.AbortWithStatus(http.StatusTeapot)
	}))
	r.Setup()

	kegs.On("ListKegs", mock.Anything, mock.Anything, false).Return([]keg.Keg{}, int64(0), nil)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/kegs", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	for _, path := range []string{"/api/v1/kegs", "/api/v1/kegs/sync", "/api/v1/kegs/" + uuid.NewString() + "/retire"} {
		w = httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusTeapot, w.Code, path)
	}
	syncer.AssertNotCalled(t, "SyncAll", mock.Anything)
}
