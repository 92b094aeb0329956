package keg

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taproom/kegledger/internal/domain/keg"
	"github.com/taproom/kegledger/internal/domain/shared"
)

func TestKegService_RegisterKeg(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, MirrorSync)

	k, err := h.service.RegisterKeg(ctx, RegisterKegInput{
		Brewery:    "Half Acre",
		BeerStyle:  "Pale Ale",
		ABV:        decimal.RequireFromString("5.2"),
		SizeLiters: decimal.RequireFromString("58.67"),
		Holder:     "brewer-1",
		Location:   "Brewhouse",
	})

	require.NoError(t, err)
	assert.Equal(t, 123, k.ExpectedPints)
	assert.Equal(t, "1", k.TokenID)
	assert.True(t, k.IsActive())

	stored, err := h.service.GetKeg(ctx, k.ID)
	require.NoError(t, err)
	assert.Equal(t, "1", stored.TokenID)
	assert.Equal(t, "brewer-1", stored.CurrentHolder)

	token, err := h.ledger.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, k.ID.String(), token.Metadata.KegID)
	assert.Equal(t, 123, token.Metadata.ExpectedPints)
	assert.Equal(t, []string{keg.EventTypeKegRegistered}, h.events.types())
}

func TestKegService_RegisterKeg_MintFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, MirrorSync)
	h.ledger.mintErr = errors.New("gateway unreachable")

	_, err := h.service.RegisterKeg(ctx, RegisterKegInput{
		Brewery:    "Half Acre",
		ABV:        decimal.RequireFromString("5.2"),
		SizeLiters: decimal.RequireFromString("19.5"),
	})

	assert.ErrorIs(t, err, keg.ErrLedgerNetwork)
	kegs, total, err := h.service.ListKegs(ctx, shared.DefaultFilter(), false)
	require.NoError(t, err)
	assert.Empty(t, kegs)
	assert.Zero(t, total)
	assert.Empty(t, h.events.types())
}

func TestKegService_RegisterKeg_Validation(t *testing.T) {
	h := newHarness(t, MirrorSync)

	tests := []struct {
		name  string
		input RegisterKegInput
	}{
		{"missing brewery", RegisterKegInput{ABV: decimal.NewFromInt(5), SizeLiters: decimal.NewFromInt(50)}},
		{"negative expected pints", RegisterKegInput{Brewery: "X", ABV: decimal.NewFromInt(5), SizeLiters: decimal.NewFromInt(50), ExpectedPints: -1}},
		{"zero size", RegisterKegInput{Brewery: "X", ABV: decimal.NewFromInt(5)}},
		{"abv out of range", RegisterKegInput{Brewery: "X", ABV: decimal.NewFromInt(101), SizeLiters: decimal.NewFromInt(50)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.service.RegisterKeg(context.Background(), tt.input)
			assert.ErrorIs(t, err, keg.ErrValidation)
		})
	}
	assert.Equal(t, 0, h.ledger.next)
}

func TestKegService_ReadAccessors(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, MirrorSync)

	t.Run("unknown keg", func(t *testing.T) {
		_, err := h.service.GetKeg(ctx, uuid.New())
		assert.ErrorIs(t, err, keg.ErrKegNotFound)

		_, err = h.service.ListScans(ctx, uuid.New())
		assert.ErrorIs(t, err, keg.ErrKegNotFound)
	})

	t.Run("reports", func(t *testing.T) {
		k := h.registerKeg(t, 120, "bar-7")
		outcome := keg.VarianceOutcome{Expected: 120, Actual: 90, Variance: 30, Status: keg.VarianceCritical}
		report, err := keg.NewVarianceReport(k.ID, outcome, nil)
		require.NoError(t, err)
		require.NoError(t, h.reports.Insert(ctx, report))

		byID, err := h.service.GetVarianceReport(ctx, report.ID)
		require.NoError(t, err)
		assert.Equal(t, 30, byID.VarianceAmount)

		byKeg, err := h.service.GetKegVarianceReport(ctx, k.ID)
		require.NoError(t, err)
		assert.Equal(t, report.ID, byKeg.ID)

		reports, total, err := h.service.ListVarianceReports(ctx, shared.DefaultFilter(), true)
		require.NoError(t, err)
		assert.Len(t, reports, 1)
		assert.Equal(t, int64(1), total)

		_, err = h.service.GetVarianceReport(ctx, uuid.New())
		assert.ErrorIs(t, err, keg.ErrReportNotFound)
	})
}
