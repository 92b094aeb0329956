package keg

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// TokenMetadata is the provenance payload mirrored onto a ledger token
type TokenMetadata struct {
	KegID         string          `json:"keg_id"`
	Brewery       string          `json:"brewery"`
	BeerStyle     string          `json:"beer_style"`
	ABV           decimal.Decimal `json:"abv"`
	SizeLiters    decimal.Decimal `json:"size_liters"`
	ExpectedPints int             `json:"expected_pints"`
	CurrentHolder string          `json:"current_holder,omitempty"`
	LastLocation  string          `json:"last_location,omitempty"`
	LastScan      *time.Time      `json:"last_scan,omitempty"`
}

// TxRef identifies a ledger transaction
type TxRef struct {
	Hash        string `json:"hash"`
	BlockNumber uint64 `json:"block_number,omitempty"`
}

// TokenRef identifies a minted token and the transaction that minted it
type TokenRef struct {
	TokenID string `json:"token_id"`
	Tx      TxRef  `json:"tx"`
}

// LedgerToken is the ledger-side representation of a keg
type LedgerToken struct {
	TokenID  string        `json:"token_id"`
	Metadata TokenMetadata `json:"metadata"`
	Burned   bool          `json:"burned"`
	MintedAt time.Time     `json:"minted_at"`
	BurnedAt *time.Time    `json:"burned_at,omitempty"`
}

// LedgerAdapter manages the token lifecycle of kegs.
// Burn on an already burned token fails with ErrAlreadyBurned for every implementation.
type LedgerAdapter interface {
	Mint(ctx context.Context, metadata TokenMetadata) (TokenRef, error)
	UpdateMetadata(ctx context.Context, tokenID string, metadata TokenMetadata) (TxRef, error)
	Burn(ctx context.Context, tokenID string) (TxRef, error)
	// Get returns ErrTokenNotFound for unknown tokens
	Get(ctx context.Context, tokenID string) (*LedgerToken, error)
}
