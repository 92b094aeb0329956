// Package lock provides per-keg mutual exclusion for retirement and scans.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/taproom/kegledger/internal/domain/keg"
	"github.com/taproom/kegledger/internal/domain/shared"
)

// Locker grants exclusive access to one keg until the returned release func is called
type Locker interface {
	Lock(ctx context.Context, kegID uuid.UUID) (release func(), err error)
}

// MemoryLocker serializes operations per keg within one process.
// Waiters give up with ErrKegBusy after wait or when ctx ends.
type MemoryLocker struct {
	wait time.Duration

	mu    sync.Mutex
	slots map[uuid.UUID]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewMemoryLocker creates a locker. A non-positive wait means wait for ctx only.
func NewMemoryLocker(wait time.Duration) *MemoryLocker {
	return &MemoryLocker{wait: wait, slots: make(map[uuid.UUID]*slot)}
}

// Lock blocks until the keg is free
func (l *MemoryLocker) Lock(ctx context.Context, kegID uuid.UUID) (func(), error) {
	s := l.acquireSlot(kegID)

	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.releaseSlot(kegID)
		return nil, shared.WrapDomainError(keg.ErrKegBusy, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.releaseSlot(kegID)
		})
	}, nil
}

func (l *MemoryLocker) acquireSlot(kegID uuid.UUID) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[kegID]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[kegID] = s
	}
	s.refs++
	return s
}

func (l *MemoryLocker) releaseSlot(kegID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.slots[kegID]
	s.refs--
	if s.refs == 0 {
		delete(l.slots, kegID)
	}
}

var (
	_ Locker = (*MemoryLocker)(nil)
	_ Locker = (*RedisLocker)(nil)
)

// held reports how many kegs have holders or waiters
func (l *MemoryLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
