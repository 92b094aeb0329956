package pos

import (
	"fmt"
	"net/http"

	"github.com/taproom/kegledger/internal/domain/keg"
	"github.com/taproom/kegledger/internal/infrastructure/config"
	"go.uber.org/zap"
)

// NewAdapter builds the POS adapter selected by cfg.Mode
func NewAdapter(cfg config.POSConfig, httpClient *http.Client, log *zap.Logger) (keg.POSAdapter, error) {
	switch cfg.Mode {
	case config.ModeStub:
		return NewStubPOS(), nil
	case config.ModeHTTP:
		if httpClient == nil {
			httpClient = &http.Client{Timeout: cfg.Timeout}
		}
		client, err := NewHTTPPOS(HTTPConfig{
			Endpoint:    cfg.Endpoint,
			APIKey:      cfg.APIKey,
			RateLimit:   cfg.RateLimit,
			RateBurst:   cfg.RateBurst,
			PageSize:    cfg.PageSize,
			SnapshotTTL: cfg.SnapshotTTL,
		}, httpClient, log)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("pos: unknown mode %q", cfg.Mode)
	}
}
