package pos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/taproom/kegledger/internal/domain/keg"
	"github.com/taproom/kegledger/internal/domain/shared"
	"github.com/taproom/kegledger/internal/infrastructure/logger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxResponseSize limits POS response bodies
const maxResponseSize = 4 << 20

// HTTPConfig configures the REST POS client
type HTTPConfig struct {
	Endpoint    string
	APIKey      string
	RateLimit   float64 // requests per second, 0 disables limiting
	RateBurst   int
	PageSize    int
	SnapshotTTL time.Duration
}

// HTTPPOS reads pour counts from a REST point-of-sale API.
//
// SyncSales pages through GET /pours and caches every keg's count; for
// SnapshotTTL afterwards GetPintCount answers from that snapshot. Outside the
// window, for kegs missing from it, or when ctx carries keg.WithFreshPOSRead,
// GetPintCount calls GET /kegs/{id}/pours.
type HTTPPOS struct {
	cfg        HTTPConfig
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
	logger     *zap.Logger

	mu       sync.RWMutex
	snapshot map[uuid.UUID]int
	syncedAt time.Time
}

type pourCount struct {
	KegID uuid.UUID `json:"keg_id"`
	Pints int       `json:"pints"`
}

type pourPage struct {
	Items      []pourCount `json:"items"`
	NextCursor string      `json:"next_cursor"`
}

// NewHTTPPOS creates a POS client. The http client's Timeout bounds each request.
func NewHTTPPOS(cfg HTTPConfig, httpClient *http.Client, log *zap.Logger) (*HTTPPOS, error) {
	if _, err := url.ParseRequestURI(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("pos: invalid endpoint %q: %w", cfg.Endpoint, err)
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &HTTPPOS{
		cfg:        cfg,
		baseURL:    strings.TrimRight(cfg.Endpoint, "/"),
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, burst),
		now:        time.Now,
		logger:     logger.OrNop(log).Named("pos.http"),
	}, nil
}

// GetPintCount implements keg.POSAdapter
func (p *HTTPPOS) GetPintCount(ctx context.Context, kegID uuid.UUID) (int, error) {
	if !keg.IsFreshPOSRead(ctx) {
		if pints, ok := p.cached(kegID); ok {
			return pints, nil
		}
	}

	var count pourCount
	err := p.get(ctx, "/kegs/"+kegID.String()+"/pours", nil, &count)
	if errors.Is(err, errNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if count.Pints < 0 {
		return 0, shared.WrapDomainError(keg.ErrPOSUnavailable, fmt.Errorf("negative pint count %d for keg %s", count.Pints, kegID))
	}
	return count.Pints, nil
}

// SyncSales replaces the snapshot with a full cursor-paginated read.
// A failed page leaves the previous snapshot in place.
func (p *HTTPPOS) SyncSales(ctx context.Context) error {
	counts := make(map[uuid.UUID]int)
	cursor := ""
	pages := 0
	for {
		query := url.Values{"limit": {strconv.Itoa(p.cfg.PageSize)}}
		if cursor != "" {
			query.Set("cursor", cursor)
		}

		var page pourPage
		if err := p.get(ctx, "/pours", query, &page); err != nil {
			if errors.Is(err, errNotFound) {
				err = shared.WrapDomainError(keg.ErrPOSUnavailable, err)
			}
			return fmt.Errorf("sync sales page %d: %w", pages+1, err)
		}
		pages++
		for _, item := range page.Items {
			if item.Pints < 0 {
				p.logger.Warn("Ignoring negative pint count", logger.KegID(item.KegID), zap.Int("pints", item.Pints))
				continue
			}
			counts[item.KegID] = item.Pints
		}
		if page.NextCursor == "" || page.NextCursor == cursor {
			break
		}
		cursor = page.NextCursor
	}

	p.mu.Lock()
	p.snapshot = counts
	p.syncedAt = p.now()
	p.mu.Unlock()

	p.logger.Info("POS sales synced", zap.Int("kegs", len(counts)), zap.Int("pages", pages))
	return nil
}

func (p *HTTPPOS) cached(kegID uuid.UUID) (int, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.snapshot == nil || p.now().Sub(p.syncedAt) > p.cfg.SnapshotTTL {
		return 0, false
	}
	pints, ok := p.snapshot[kegID]
	return pints, ok
}

var errNotFound = errors.New("pos: not found")

func (p *HTTPPOS) get(ctx context.Context, path string, query url.Values, out any) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return shared.WrapDomainError(keg.ErrPOSUnavailable, err)
	}

	u := p.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("pos: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return shared.WrapDomainError(keg.ErrPOSUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return shared.WrapDomainError(keg.ErrPOSUnavailable, fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode >= http.StatusBadRequest:
		return shared.WrapDomainError(keg.ErrPOSUnavailable, fmt.Errorf("HTTP %d", resp.StatusCode))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return shared.WrapDomainError(keg.ErrPOSUnavailable, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

var _ keg.POSAdapter = (*HTTPPOS)(nil)
