package keg

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/taproom/kegledger/internal/domain/keg"
)

func TestSyncCoordinator_PartialFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, MirrorSync)
	k1 := h.registerKeg(t, 120, "bar-1")
	k2 := h.registerKeg(t, 120, "bar-2")
	k3 := h.registerKeg(t, 120, "bar-3")

	h.pos.On("SyncSales", mock.Anything).Return(nil)
	h.pos.On("GetPintCount", mock.Anything, k1.ID).Return(40, nil)
	h.pos.On("GetPintCount", mock.Anything, k2.ID).Return(0, keg.ErrPOSUnavailable)
	h.pos.On("GetPintCount", mock.Anything, k3.ID).Return(12, nil)

	result, err := h.sync.SyncAll(ctx)

	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Synced)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, k2.ID, result.Errors[0].KegID)
	assert.Contains(t, result.Errors[0].Error, "unavailable")

	snap, err := h.service.GetPosSnapshot(ctx, k1.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, snap.PintsSold)
	_, err = h.service.GetPosSnapshot(ctx, k2.ID)
	assert.ErrorIs(t, err, keg.ErrSnapshotNotFound)
	snap, err = h.service.GetPosSnapshot(ctx, k3.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, snap.PintsSold)
}

func TestSyncCoordinator_Idempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, MirrorSync)
	kegs := []*keg.Keg{
		h.registerKeg(t, 120, "bar-1"),
		h.registerKeg(t, 120, "bar-2"),
	}
	h.pos.On("SyncSales", mock.Anything).Return(nil)
	for i, k := range kegs {
		h.pos.On("GetPintCount", mock.Anything, k.ID).Return(10*(i+1), nil)
	}

	first, err := h.sync.SyncAll(ctx)
	require.NoError(t, err)
	second, err := h.sync.SyncAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.Synced, second.Synced)
	assert.Len(t, h.snapshots.snapshots, 2)
	for i, k := range kegs {
		snap, err := h.snapshots.FindByKeg(ctx, k.ID)
		require.NoError(t, err)
		assert.Equal(t, 10*(i+1), snap.PintsSold)
	}
}

func TestSyncCoordinator_SkipsRetiredKegs(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, MirrorSync)
	active := h.registerKeg(t, 120, "bar-1")
	retired := h.registerKeg(t, 120, "bar-2")
	h.pos.On("GetPintCount", mock.Anything, retired.ID).Return(120, nil)
	_, err := h.retirement.Retire(ctx, retired.ID, keg.Actor{ID: "bar-2"})
	require.NoError(t, err)

	h.pos.On("SyncSales", mock.Anything).Return(nil)
	h.pos.On("GetPintCount", mock.Anything, active.ID).Return(7, nil)

	result, err := h.sync.SyncAll(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 1, result.Synced)
	_, err = h.snapshots.FindByKeg(ctx, retired.ID)
	assert.ErrorIs(t, err, keg.ErrSnapshotNotFound)
}

func TestSyncCoordinator_SyncSalesFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, MirrorSync)
	k := h.registerKeg(t, 120, "bar-1")
	h.pos.On("SyncSales", mock.Anything).Return(errors.New("pos export failed"))
	h.pos.On("GetPintCount", mock.Anything, k.ID).Return(3, nil)

	result, err := h.sync.SyncAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)
	assert.Empty(t, result.Errors)
}

func TestSyncCoordinator_ListFailure(t *testing.T) {
	h := newHarness(t, MirrorSync)
	h.pos.On("SyncSales", mock.Anything).Return(nil)
	h.kegs.listActiveErr = errors.New("relation does not exist")

	result, err := h.sync.SyncAll(context.Background())

	require.Error(t, err)
	assert.Nil(t, result)
	h.pos.AssertNotCalled(t, "GetPintCount", mock.Anything, mock.Anything)
}

func TestSyncCoordinator_NoActiveKegs(t *testing.T) {
	h := newHarness(t, MirrorSync)
	h.pos.On("SyncSales", mock.Anything).Return(nil)

	result, err := h.sync.SyncAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, result.Total)
	assert.Equal(t, 0, result.Synced)
	assert.NotNil(t, result.Errors)
}
