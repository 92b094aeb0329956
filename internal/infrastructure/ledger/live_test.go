package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taproom/kegledger/internal/domain/keg"
	"go.uber.org/zap"
)

// fakeGateway is a minimal ledger gateway. Transactions stay pending for
// pendingPolls polls before taking their final status.
type fakeGateway struct {
	mu           sync.Mutex
	tokens       map[string]*keg.LedgerToken
	polls        map[string]int
	finalStatus  string
	pendingPolls int
	burnCalls    int
	authHeader   string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		tokens:      make(map[string]*keg.LedgerToken),
		polls:       make(map[string]int),
		finalStatus: txStatusConfirmed,
	}
}

func (g *fakeGateway) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /tokens", func(w http.ResponseWriter, r *http.Request) {
		var req mintRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeGatewayError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
			return
		}
		g.mu.Lock()
		g.authHeader = r.Header.Get("Authorization")
		id := "tok-1"
		g.tokens[id] = &keg.LedgerToken{TokenID: id, Metadata: req.Metadata, MintedAt: time.Now().UTC()}
		g.mu.Unlock()
		writeJSON(w, http.StatusAccepted, submitResponse{TokenID: id, TxHash: "0xmint"})
	})
	mux.HandleFunc("GET /tokens/{id}", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		defer g.mu.Unlock()
		token, ok := g.tokens[r.PathValue("id")]
		if !ok {
			writeGatewayError(w, http.StatusNotFound, "TOKEN_NOT_FOUND", "no such token")
			return
		}
		writeJSON(w, http.StatusOK, token)
	})
	mux.HandleFunc("POST /tokens/{id}/metadata", func(w http.ResponseWriter, r *http.Request) {
		var req metadataRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		g.mu.Lock()
		defer g.mu.Unlock()
		token, ok := g.tokens[r.PathValue("id")]
		if !ok {
			writeGatewayError(w, http.StatusNotFound, "TOKEN_NOT_FOUND", "no such token")
			return
		}
		token.Metadata = req.Metadata
		writeJSON(w, http.StatusAccepted, submitResponse{TxHash: "0xupdate"})
	})
	mux.HandleFunc("POST /tokens/{id}/burn", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.burnCalls++
		token, ok := g.tokens[r.PathValue("id")]
		if !ok {
			writeGatewayError(w, http.StatusNotFound, "TOKEN_NOT_FOUND", "no such token")
			return
		}
		if token.Burned {
			writeGatewayError(w, http.StatusConflict, "ALREADY_BURNED", "token burned")
			return
		}
		now := time.Now().UTC()
		token.Burned = true
		token.BurnedAt = &now
		writeJSON(w, http.StatusAccepted, submitResponse{TxHash: "0xburn"})
	})
	mux.HandleFunc("GET /transactions/{hash}", func(w http.ResponseWriter, r *http.Request) {
		hash := r.PathValue("hash")
		g.mu.Lock()
		g.polls[hash]++
		n := g.polls[hash]
		g.mu.Unlock()

		status := g.finalStatus
		if n <= g.pendingPolls {
			status = txStatusPending
		}
		writeJSON(w, http.StatusOK, transactionResponse{Hash: hash, Status: status, BlockNumber: 42, Error: "execution reverted"})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeGatewayError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, gatewayError{Code: code, Message: message})
}

func newLiveLedger(t *testing.T, handler http.Handler) *LiveLedger {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	l, err := NewLiveLedger(LiveConfig{
		Endpoint:       server.URL,
		APIKey:         "secret",
		ContractID:     "kegs-v1",
		ConfirmTimeout: time.Second,
		PollInterval:   5 * time.Millisecond,
	}, server.Client(), zap.NewNop())
	require.NoError(t, err)
	return l
}

func TestLiveLedger_MintUpdateBurn(t *testing.T) {
	gw := newFakeGateway()
	gw.pendingPolls = 2
	l := newLiveLedger(t, gw.handler())
	ctx := context.Background()

	ref, err := l.Mint(ctx, testMetadata())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", ref.TokenID)
	assert.Equal(t, keg.TxRef{Hash: "0xmint", BlockNumber: 42}, ref.Tx)
	gw.mu.Lock()
	assert.Equal(t, 3, gw.polls["0xmint"])
	assert.Equal(t, "Bearer secret", gw.authHeader)
	gw.mu.Unlock()

	md := testMetadata()
	md.CurrentHolder = "bar-7"
	tx, err := l.UpdateMetadata(ctx, ref.TokenID, md)
	require.NoError(t, err)
	assert.Equal(t, "0xupdate", tx.Hash)

	token, err := l.Get(ctx, ref.TokenID)
	require.NoError(t, err)
	assert.Equal(t, "bar-7", token.Metadata.CurrentHolder)

	tx, err = l.Burn(ctx, ref.TokenID)
	require.NoError(t, err)
	assert.Equal(t, "0xburn", tx.Hash)

	_, err = l.Burn(ctx, ref.TokenID)
	assert.ErrorIs(t, err, keg.ErrAlreadyBurned)
	gw.mu.Lock()
	defer gw.mu.Unlock()
	assert.Equal(t, 1, gw.burnCalls, "second burn must be rejected before submitting")
}

func TestLiveLedger_RevertedTransaction(t *testing.T) {
	gw := newFakeGateway()
	gw.finalStatus = txStatusReverted
	l := newLiveLedger(t, gw.handler())

	_, err := l.Mint(context.Background(), testMetadata())
	assert.ErrorIs(t, err, keg.ErrLedgerContract)
	assert.Contains(t, err.Error(), "execution reverted")
}

func TestLiveLedger_ConfirmationTimeout(t *testing.T) {
	gw := newFakeGateway()
	gw.pendingPolls = 1 << 30
	l := newLiveLedger(t, gw.handler())
	l.cfg.ConfirmTimeout = 30 * time.Millisecond

	_, err := l.Mint(context.Background(), testMetadata())
	assert.ErrorIs(t, err, keg.ErrLedgerNetwork)
}

func TestLiveLedger_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   string
		want   error
	}{
		{"not found", http.StatusNotFound, "TOKEN_NOT_FOUND", keg.ErrTokenNotFound},
		{"already burned", http.StatusConflict, "ALREADY_BURNED", keg.ErrAlreadyBurned},
		{"other conflict", http.StatusConflict, "NONCE_TOO_LOW", keg.ErrLedgerContract},
		{"bad request", http.StatusBadRequest, "INVALID_METADATA", keg.ErrLedgerContract},
		{"unauthorized", http.StatusUnauthorized, "", keg.ErrLedgerContract},
		{"server error", http.StatusInternalServerError, "", keg.ErrLedgerNetwork},
		{"bad gateway", http.StatusBadGateway, "", keg.ErrLedgerNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newLiveLedger(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				writeGatewayError(w, tt.status, tt.code, "rejected")
			}))

			_, err := l.UpdateMetadata(context.Background(), "tok-1", testMetadata())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLiveLedger_TransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	endpoint := server.URL
	server.Close()

	l, err := NewLiveLedger(LiveConfig{Endpoint: endpoint}, nil, nil)
	require.NoError(t, err)

	_, err = l.Get(context.Background(), "tok-1")
	assert.ErrorIs(t, err, keg.ErrLedgerNetwork)
}

func TestNewLiveLedger_InvalidEndpoint(t *testing.T) {
	_, err := NewLiveLedger(LiveConfig{Endpoint: "not a url"}, nil, nil)
	assert.Error(t, err)
}
