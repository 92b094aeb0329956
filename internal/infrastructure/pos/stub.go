// Package pos implements keg.POSAdapter against point-of-sale systems.
package pos

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/taproom/kegledger/internal/domain/keg"
)

// StubPOS serves pint counts from memory. Unknown kegs have sold nothing.
type StubPOS struct {
	mu          sync.RWMutex
	counts      map[uuid.UUID]int
	unavailable bool
	syncs       int
}

// NewStubPOS creates an empty stub
func NewStubPOS() *StubPOS {
	return &StubPOS{counts: make(map[uuid.UUID]int)}
}

// Set records the pints sold from a keg
func (p *StubPOS) Set(kegID uuid.UUID, pints int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[kegID] = pints
}

// SetUnavailable makes every call fail with ErrPOSUnavailable
func (p *StubPOS) SetUnavailable(unavailable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unavailable = unavailable
}

// GetPintCount implements keg.POSAdapter
func (p *StubPOS) GetPintCount(_ context.Context, kegID uuid.UUID) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.unavailable {
		return 0, keg.ErrPOSUnavailable
	}
	return p.counts[kegID], nil
}

// SyncSales implements keg.POSAdapter
func (p *StubPOS) SyncSales(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unavailable {
		return keg.ErrPOSUnavailable
	}
	p.syncs++
	return nil
}

// Syncs returns how many times SyncSales succeeded
func (p *StubPOS) Syncs() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.syncs
}

var _ keg.POSAdapter = (*StubPOS)(nil)
