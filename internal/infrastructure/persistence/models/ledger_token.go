package models

import (
	"time"

	"github.com/taproom/kegledger/internal/domain/keg"
	"gorm.io/datatypes"
)

// LedgerTokenModel backs the simulated ledger when tokens must survive restarts
type LedgerTokenModel struct {
	TokenID  string                                `gorm:"type:varchar(128);primaryKey"`
	Metadata datatypes.JSONType[keg.TokenMetadata] `gorm:"type:jsonb;not null"`
	Burned   bool                                  `gorm:"not null;default:false"`
	Nonce    int64                                 `gorm:"not null;default:0"`
	MintedAt time.Time                             `gorm:"not null"`
	BurnedAt *time.Time
}

// TableName returns the table name for GORM
func (LedgerTokenModel) TableName() string {
	return "ledger_tokens"
}

// ToDomain converts the persistence model to a domain LedgerToken.
func (m *LedgerTokenModel) ToDomain() *keg.LedgerToken {
	return &keg.LedgerToken{
		TokenID:  m.TokenID,
		Metadata: m.Metadata.Data(),
		Burned:   m.Burned,
		MintedAt: m.MintedAt,
		BurnedAt: m.BurnedAt,
	}
}
