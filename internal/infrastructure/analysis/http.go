// Package analysis calls the external variance analysis service.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/taproom/kegledger/internal/domain/keg"
	"github.com/taproom/kegledger/internal/infrastructure/config"
	"github.com/taproom/kegledger/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// maxResponseSize limits analysis payloads
const maxResponseSize = 1 << 20

// HTTPAnalyzer posts the keg's provenance and variance to POST {endpoint}/analyze
// and returns the response body as the opaque analysis.
type HTTPAnalyzer struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

type requestPayload struct {
	KegID         uuid.UUID       `json:"keg_id"`
	TokenID       string          `json:"token_id,omitempty"`
	Brewery       string          `json:"brewery"`
	BeerStyle     string          `json:"beer_style"`
	ABV           decimal.Decimal `json:"abv"`
	SizeLiters    decimal.Decimal `json:"size_liters"`
	ExpectedPints int             `json:"expected_pints"`
	ActualPints   int             `json:"actual_pints"`
	Variance      int             `json:"variance"`
	Status        string          `json:"status"`
	Scans         []scanPayload   `json:"scans"`
}

type scanPayload struct {
	ScannedBy string    `json:"scanned_by"`
	Location  string    `json:"location"`
	Timestamp time.Time `json:"timestamp"`
}

// NewHTTPAnalyzer creates an analyzer client
func NewHTTPAnalyzer(endpoint, apiKey string, httpClient *http.Client, log *zap.Logger) (*HTTPAnalyzer, error) {
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("analysis: invalid endpoint %q: %w", endpoint, err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPAnalyzer{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     logger.OrNop(log).Named("analysis"),
	}, nil
}

// Analyze implements keg.Analyzer
func (a *HTTPAnalyzer) Analyze(ctx context.Context, req keg.AnalysisRequest) (json.RawMessage, error) {
	if req.Keg == nil {
		return nil, errors.New("analysis: request has no keg")
	}
	body, err := json.Marshal(newRequestPayload(req))
	if err != nil {
		return nil, fmt.Errorf("analysis: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("analysis: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if a.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	start := time.Now()
	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("analysis: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("analysis: read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("analysis: HTTP %d", resp.StatusCode)
	}
	if !json.Valid(data) {
		return nil, errors.New("analysis: response is not valid JSON")
	}

	a.logger.Debug("Variance analyzed",
		logger.KegID(req.Keg.ID),
		zap.Int("scans", len(req.Scans)),
		zap.Duration("duration", time.Since(start)),
	)
	return json.RawMessage(data), nil
}

func newRequestPayload(req keg.AnalysisRequest) requestPayload {
	k := req.Keg
	scans := make([]scanPayload, len(req.Scans))
	for i, s := range req.Scans {
		scans[i] = scanPayload{ScannedBy: s.ScannedBy, Location: s.Location, Timestamp: s.Timestamp}
	}
	return requestPayload{
		KegID:         k.ID,
		TokenID:       k.TokenID,
		Brewery:       k.Brewery,
		BeerStyle:     k.BeerStyle,
		ABV:           k.ABV,
		SizeLiters:    k.SizeLiters,
		ExpectedPints: req.Variance.Expected,
		ActualPints:   req.Variance.Actual,
		Variance:      req.Variance.Variance,
		Status:        req.Variance.Status.String(),
		Scans:         scans,
	}
}

// NewAnalyzer builds the analyzer selected by cfg.Mode. Mode noop returns a
// nil analyzer; variance reports are then recorded without analysis.
func NewAnalyzer(cfg config.AnalysisConfig, httpClient *http.Client, log *zap.Logger) (keg.Analyzer, error) {
	switch cfg.Mode {
	case config.ModeNoop:
		return nil, nil
	case config.ModeHTTP:
		if httpClient == nil {
			httpClient = &http.Client{Timeout: cfg.Timeout}
		}
		a, err := NewHTTPAnalyzer(cfg.Endpoint, cfg.APIKey, httpClient, log)
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("analysis: unknown mode %q", cfg.Mode)
	}
}

var _ keg.Analyzer = (*HTTPAnalyzer)(nil)
