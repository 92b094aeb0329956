package ledger

import (
	"context"
	"encoding/hex"
	"hash/fnv"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/taproom/kegledger/internal/domain/keg"
	"github.com/taproom/kegledger/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// Ledger operations, part of the simulated transaction hash input
const (
	opMint   = "mint"
	opUpdate = "update_metadata"
	opBurn   = "burn"
)

// SimulatedLedger applies token operations synchronously against a TokenStore.
// It never fails for transient reasons; only ErrTokenNotFound and
// ErrAlreadyBurned surface from it.
type SimulatedLedger struct {
	store  TokenStore
	block  atomic.Uint64
	now    func() time.Time
	logger *zap.Logger
}

// NewSimulatedLedger creates a simulated ledger over store
func NewSimulatedLedger(store TokenStore, log *zap.Logger) *SimulatedLedger {
	return &SimulatedLedger{
		store:  store,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.OrNop(log).Named("ledger.simulated"),
	}
}

// Mint stores a new token
func (l *SimulatedLedger) Mint(ctx context.Context, metadata keg.TokenMetadata) (keg.TokenRef, error) {
	tokenID, err := l.store.Create(ctx, metadata, l.now())
	if err != nil {
		return keg.TokenRef{}, err
	}
	tx := l.tx(tokenID, opMint, 0)
	l.logger.Debug("Token minted", logger.TokenID(tokenID), logger.TxHash(tx.Hash))
	return keg.TokenRef{TokenID: tokenID, Tx: tx}, nil
}

// UpdateMetadata replaces the token metadata
func (l *SimulatedLedger) UpdateMetadata(ctx context.Context, tokenID string, metadata keg.TokenMetadata) (keg.TxRef, error) {
	nonce, err := l.store.UpdateMetadata(ctx, tokenID, metadata)
	if err != nil {
		return keg.TxRef{}, err
	}
	return l.tx(tokenID, opUpdate, nonce), nil
}

// Burn marks the token burned
func (l *SimulatedLedger) Burn(ctx context.Context, tokenID string) (keg.TxRef, error) {
	nonce, err := l.store.MarkBurned(ctx, tokenID, l.now())
	if err != nil {
		return keg.TxRef{}, err
	}
	tx := l.tx(tokenID, opBurn, nonce)
	l.logger.Debug("Token burned", logger.TokenID(tokenID), logger.TxHash(tx.Hash))
	return tx, nil
}

// Get returns the stored token
func (l *SimulatedLedger) Get(ctx context.Context, tokenID string) (*keg.LedgerToken, error) {
	return l.store.Get(ctx, tokenID)
}

func (l *SimulatedLedger) tx(tokenID, op string, nonce int64) keg.TxRef {
	return keg.TxRef{
		Hash:        simulatedTxHash(tokenID, op, nonce),
		BlockNumber: l.block.Add(1),
	}
}

// simulatedTxHash is a stable, non-cryptographic stand-in for a transaction hash
func simulatedTxHash(tokenID, op string, nonce int64) string {
	h := fnv.New128a()
	h.Write([]byte(tokenID))
	h.Write([]byte{0})
	h.Write([]byte(op))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(nonce, 10)))
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

var _ keg.LedgerAdapter = (*SimulatedLedger)(nil)
