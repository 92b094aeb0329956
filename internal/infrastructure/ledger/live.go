package ledger

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

	"github.com/taproom/kegledger/internal/domain/keg"
	"github.com/taproom/kegledger/internal/domain/shared"
	"github.com/taproom/kegledger/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// maxResponseSize limits gateway response bodies
const maxResponseSize = 1 << 20

// Gateway transaction states
const (
	txStatusPending   = "pending"
	txStatusConfirmed = "confirmed"
	txStatusFailed    = "failed"
	txStatusReverted  = "reverted"
)

// LiveConfig configures the gateway client
type LiveConfig struct {
	Endpoint       string
	APIKey         string
	ContractID     string
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
}

// LiveLedger talks to a ledger gateway over HTTP. Writes are submitted as
// transactions and only return once the gateway reports them confirmed.
type LiveLedger struct {
	cfg        LiveConfig
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewLiveLedger creates a gateway client. The http client's Timeout bounds each request.
func NewLiveLedger(cfg LiveConfig, httpClient *http.Client, log *zap.Logger) (*LiveLedger, error) {
	if _, err := url.ParseRequestURI(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("ledger: invalid endpoint %q: %w", cfg.Endpoint, err)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 2 * time.Minute
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &LiveLedger{
		cfg:        cfg,
		baseURL:    strings.TrimRight(cfg.Endpoint, "/"),
		httpClient: httpClient,
		logger:     logger.OrNop(log).Named("ledger.live"),
	}, nil
}

type mintRequest struct {
	ContractID string            `json:"contract_id,omitempty"`
	Metadata   keg.TokenMetadata `json:"metadata"`
}

type metadataRequest struct {
	Metadata keg.TokenMetadata `json:"metadata"`
}

type submitResponse struct {
	TokenID string `json:"token_id,omitempty"`
	TxHash  string `json:"tx_hash"`
}

type transactionResponse struct {
	Hash        string `json:"hash"`
	Status      string `json:"status"`
	BlockNumber uint64 `json:"block_number"`
	Error       string `json:"error,omitempty"`
}

type gatewayError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Mint submits a mint transaction and waits for confirmation
func (l *LiveLedger) Mint(ctx context.Context, metadata keg.TokenMetadata) (keg.TokenRef, error) {
	var resp submitResponse
	if err := l.do(ctx, http.MethodPost, "/tokens", mintRequest{ContractID: l.cfg.ContractID, Metadata: metadata}, &resp); err != nil {
		return keg.TokenRef{}, err
	}
	if resp.TokenID == "" {
		return keg.TokenRef{}, shared.WrapDomainError(keg.ErrLedgerContract, errors.New("gateway returned no token id"))
	}
	tx, err := l.awaitConfirmation(ctx, resp.TxHash)
	if err != nil {
		return keg.TokenRef{}, err
	}
	l.logger.Info("Token minted", logger.TokenID(resp.TokenID), logger.TxHash(tx.Hash), zap.Uint64("block", tx.BlockNumber))
	return keg.TokenRef{TokenID: resp.TokenID, Tx: tx}, nil
}

// UpdateMetadata submits a metadata update and waits for confirmation
func (l *LiveLedger) UpdateMetadata(ctx context.Context, tokenID string, metadata keg.TokenMetadata) (keg.TxRef, error) {
	var resp submitResponse
	if err := l.do(ctx, http.MethodPost, tokenPath(tokenID, "metadata"), metadataRequest{Metadata: metadata}, &resp); err != nil {
		return keg.TxRef{}, err
	}
	return l.awaitConfirmation(ctx, resp.TxHash)
}

// Burn checks the token state first so a second burn is reported as
// ErrAlreadyBurned without submitting a transaction.
func (l *LiveLedger) Burn(ctx context.Context, tokenID string) (keg.TxRef, error) {
	token, err := l.Get(ctx, tokenID)
	if err != nil {
		return keg.TxRef{}, err
	}
	if token.Burned {
		return keg.TxRef{}, keg.ErrAlreadyBurned
	}

	var resp submitResponse
	if err := l.do(ctx, http.MethodPost, tokenPath(tokenID, "burn"), nil, &resp); err != nil {
		return keg.TxRef{}, err
	}
	tx, err := l.awaitConfirmation(ctx, resp.TxHash)
	if err != nil {
		return keg.TxRef{}, err
	}
	l.logger.Info("Token burned", logger.TokenID(tokenID), logger.TxHash(tx.Hash), zap.Uint64("block", tx.BlockNumber))
	return tx, nil
}

// Get reads the token state
func (l *LiveLedger) Get(ctx context.Context, tokenID string) (*keg.LedgerToken, error) {
	var token keg.LedgerToken
	if err := l.do(ctx, http.MethodGet, tokenPath(tokenID, ""), nil, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

// awaitConfirmation polls the transaction until it leaves the pending state,
// bounded by the confirm timeout and the caller's context.
func (l *LiveLedger) awaitConfirmation(ctx context.Context, hash string) (keg.TxRef, error) {
	if hash == "" {
		return keg.TxRef{}, shared.WrapDomainError(keg.ErrLedgerContract, errors.New("gateway returned no transaction hash"))
	}

	ctx, cancel := context.WithTimeout(ctx, l.cfg.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		var tx transactionResponse
		err := l.do(ctx, http.MethodGet, "/transactions/"+url.PathEscape(hash), nil, &tx)
		switch {
		case errors.Is(err, keg.ErrTokenNotFound):
			// not indexed yet
			tx.Status = txStatusPending
		case err != nil:
			return keg.TxRef{}, err
		}

		switch tx.Status {
		case txStatusConfirmed:
			return keg.TxRef{Hash: hash, BlockNumber: tx.BlockNumber}, nil
		case txStatusFailed, txStatusReverted:
			return keg.TxRef{}, shared.WrapDomainError(keg.ErrLedgerContract,
				fmt.Errorf("transaction %s %s: %s", hash, tx.Status, tx.Error))
		case txStatusPending, "":
		default:
			l.logger.Warn("Unknown transaction status", logger.TxHash(hash), zap.String("status", tx.Status))
		}

		select {
		case <-ctx.Done():
			return keg.TxRef{}, shared.WrapDomainError(keg.ErrLedgerNetwork,
				fmt.Errorf("transaction %s not confirmed: %w", hash, ctx.Err()))
		case <-ticker.C:
		}
	}
}

func (l *LiveLedger) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("ledger: marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, l.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("ledger: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if l.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+l.cfg.APIKey)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return shared.WrapDomainError(keg.ErrLedgerNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return shared.WrapDomainError(keg.ErrLedgerNetwork, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return statusError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return shared.WrapDomainError(keg.ErrLedgerContract, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// statusError maps a gateway error response onto the keg ledger errors
func statusError(status int, body []byte) error {
	var ge gatewayError
	_ = json.Unmarshal(body, &ge)
	cause := fmt.Errorf("HTTP %d %s: %s", status, ge.Code, ge.Message)

	switch {
	case status == http.StatusNotFound:
		return keg.ErrTokenNotFound
	case status == http.StatusConflict && ge.Code == keg.ErrAlreadyBurned.Code:
		return keg.ErrAlreadyBurned
	case status >= http.StatusInternalServerError:
		return shared.WrapDomainError(keg.ErrLedgerNetwork, cause)
	default:
		return shared.WrapDomainError(keg.ErrLedgerContract, cause)
	}
}

func tokenPath(tokenID, action string) string {
	p := "/tokens/" + url.PathEscape(tokenID)
	if action != "" {
		p += "/" + action
	}
	return p
}

var _ keg.LedgerAdapter = (*LiveLedger)(nil)
