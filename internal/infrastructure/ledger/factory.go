package ledger

import (
	"fmt"
	"net/http"

	"github.com/taproom/kegledger/internal/domain/keg"
	"github.com/taproom/kegledger/internal/infrastructure/config"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NewAdapter builds the ledger backend selected by cfg.Mode. db is only
// required for the simulated ledger with the gorm token store.
func NewAdapter(cfg config.LedgerConfig, db *gorm.DB, httpClient *http.Client, log *zap.Logger) (keg.LedgerAdapter, error) {
	switch cfg.Mode {
	case config.LedgerModeSimulated:
		store, err := newTokenStore(cfg.SimulatedStore, db)
		if err != nil {
			return nil, err
		}
		return NewSimulatedLedger(store, log), nil
	case config.LedgerModeLive:
		if httpClient == nil {
			httpClient = &http.Client{Timeout: cfg.Timeout}
		}
		live, err := NewLiveLedger(LiveConfig{
			Endpoint:       cfg.Endpoint,
			APIKey:         cfg.APIKey,
			ContractID:     cfg.ContractID,
			ConfirmTimeout: cfg.ConfirmTimeout,
			PollInterval:   cfg.PollInterval,
		}, httpClient, log)
		if err != nil {
			return nil, err
		}
		return live, nil
	default:
		return nil, fmt.Errorf("ledger: unknown mode %q", cfg.Mode)
	}
}

func newTokenStore(mode string, db *gorm.DB) (TokenStore, error) {
	switch mode {
	case config.ModeMemory:
		return NewMemoryTokenStore(), nil
	case config.ModeGorm:
		if db == nil {
			return nil, fmt.Errorf("ledger: simulated_store %q requires a database", mode)
		}
		return NewGormTokenStore(db), nil
	default:
		return nil, fmt.Errorf("ledger: unknown simulated_store %q", mode)
	}
}
