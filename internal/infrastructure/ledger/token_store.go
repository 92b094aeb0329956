// Package ledger provides the keg.LedgerAdapter backends: a simulated ledger
// backed by a local token store and an HTTP client for a live ledger gateway.
package ledger

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/taproom/kegledger/internal/domain/keg"
)

// TokenStore persists simulated ledger tokens.
//
// Every mutating call returns the token's nonce after the write; the
// simulated ledger derives transaction hashes from it.
type TokenStore interface {
	Create(ctx context.Context, metadata keg.TokenMetadata, at time.Time) (tokenID string, err error)
	Get(ctx context.Context, tokenID string) (*keg.LedgerToken, error)
	// UpdateMetadata fails with ErrTokenNotFound or ErrAlreadyBurned
	UpdateMetadata(ctx context.Context, tokenID string, metadata keg.TokenMetadata) (nonce int64, err error)
	// MarkBurned fails with ErrAlreadyBurned when the token was burned before
	MarkBurned(ctx context.Context, tokenID string, at time.Time) (nonce int64, err error)
}

type memoryToken struct {
	token keg.LedgerToken
	nonce int64
}

// MemoryTokenStore keeps tokens in process memory. Tokens do not survive a restart.
type MemoryTokenStore struct {
	mu     sync.Mutex
	seq    int64
	tokens map[string]*memoryToken
}

// NewMemoryTokenStore creates an empty store
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]*memoryToken)}
}

// Create assigns the next sequential token id
func (s *MemoryTokenStore) Create(_ context.Context, metadata keg.TokenMetadata, at time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	id := strconv.FormatInt(s.seq, 10)
	s.tokens[id] = &memoryToken{
		token: keg.LedgerToken{TokenID: id, Metadata: metadata, MintedAt: at},
	}
	return id, nil
}

// Get returns a copy of the token
func (s *MemoryTokenStore) Get(_ context.Context, tokenID string) (*keg.LedgerToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[tokenID]
	if !ok {
		return nil, keg.ErrTokenNotFound
	}
	token := t.token
	return &token, nil
}

// UpdateMetadata replaces the metadata of an unburned token
func (s *MemoryTokenStore) UpdateMetadata(_ context.Context, tokenID string, metadata keg.TokenMetadata) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[tokenID]
	if !ok {
		return 0, keg.ErrTokenNotFound
	}
	if t.token.Burned {
		return 0, keg.ErrAlreadyBurned
	}
	t.token.Metadata = metadata
	t.nonce++
	return t.nonce, nil
}

// MarkBurned flips the burned flag exactly once
func (s *MemoryTokenStore) MarkBurned(_ context.Context, tokenID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[tokenID]
	if !ok {
		return 0, keg.ErrTokenNotFound
	}
	if t.token.Burned {
		return 0, keg.ErrAlreadyBurned
	}
	t.token.Burned = true
	t.token.BurnedAt = &at
	t.nonce++
	return t.nonce, nil
}

var _ TokenStore = (*MemoryTokenStore)(nil)
