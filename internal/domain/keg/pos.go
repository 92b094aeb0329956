package keg

import (
	"context"

	"github.com/google/uuid"
)

// POSAdapter queries the point-of-sale system for dispensed pints.
type POSAdapter interface {
	// GetPintCount returns the pints sold from the keg. A keg without sales
	// returns 0; only connectivity failures return ErrPOSUnavailable.
	GetPintCount(ctx context.Context, kegID uuid.UUID) (int, error)
	// SyncSales refreshes the adapter's snapshot of pour counts
	SyncSales(ctx context.Context) error
}

type freshReadKey struct{}

// WithFreshPOSRead marks ctx so GetPintCount queries the POS directly instead
// of answering from a cached sync snapshot. Retirement counts are read this way.
func WithFreshPOSRead(ctx context.Context) context.Context {
	return context.WithValue(ctx, freshReadKey{}, true)
}

// IsFreshPOSRead reports whether ctx was marked by WithFreshPOSRead
func IsFreshPOSRead(ctx context.Context) bool {
	fresh, _ := ctx.Value(freshReadKey{}).(bool)
	return fresh
}
