package keg

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/taproom/kegledger/internal/domain/keg"
	"github.com/taproom/kegledger/internal/domain/shared"
)

// fakeKegRepo stores value copies so callers never share state with the store
type fakeKegRepo struct {
	mu              sync.Mutex
	kegs            map[uuid.UUID]keg.Keg
	order           []uuid.UUID
	markRetiredErr  error
	listActiveErr   error
	markRetiredCall int
}

func newFakeKegRepo() *fakeKegRepo {
	return &fakeKegRepo{kegs: make(map[uuid.UUID]keg.Keg)}
}

func (r *fakeKegRepo) FindByID(_ context.Context, id uuid.UUID) (*keg.Keg, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.kegs[id]
	if !ok {
		return nil, keg.ErrKegNotFound
	}
	k.ClearDomainEvents()
	return &k, nil
}

func (r *fakeKegRepo) Create(_ context.Context, k *keg.Keg) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.kegs[k.ID]; ok {
		return shared.ErrAlreadyExists
	}
	r.kegs[k.ID] = *k
	r.order = append(r.order, k.ID)
	return nil
}

func (r *fakeKegRepo) UpdateHolder(_ context.Context, k *keg.Keg) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.kegs[k.ID]
	if !ok {
		return keg.ErrKegNotFound
	}
	if stored.IsEmpty {
		return keg.ErrKegRetired
	}
	stored.CurrentHolder = k.CurrentHolder
	stored.LastLocation = k.LastLocation
	stored.LastScan = k.LastScan
	stored.Version = k.Version
	r.kegs[k.ID] = stored
	return nil
}

func (r *fakeKegRepo) MarkRetired(_ context.Context, k *keg.Keg) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markRetiredCall++
	if r.markRetiredErr != nil {
		return r.markRetiredErr
	}
	stored, ok := r.kegs[k.ID]
	if !ok {
		return keg.ErrKegNotFound
	}
	if stored.IsEmpty {
		return keg.ErrKegRetired
	}
	r.kegs[k.ID] = *k
	return nil
}

func (r *fakeKegRepo) ListActive(_ context.Context) ([]keg.Keg, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listActiveErr != nil {
		return nil, r.listActiveErr
	}
	var out []keg.Keg
	for _, id := range r.order {
		if k := r.kegs[id]; !k.IsEmpty {
			out = append(out, k)
		}
	}
	return out, nil
}

func (r *fakeKegRepo) List(ctx context.Context, _ shared.Filter, activeOnly bool) ([]keg.Keg, int64, error) {
	if activeOnly {
		kegs, err := r.ListActive(ctx)
		return kegs, int64(len(kegs)), err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]keg.Keg, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.kegs[id])
	}
	return out, int64(len(out)), nil
}

func (r *fakeKegRepo) get(t *testing.T, id uuid.UUID) keg.Keg {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.kegs[id]
	require.True(t, ok)
	return k
}

type fakeScanRepo struct {
	mu    sync.Mutex
	scans []keg.KegScan
}

func (r *fakeScanRepo) Insert(_ context.Context, scan *keg.KegScan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scans = append(r.scans, *scan)
	return nil
}

func (r *fakeScanRepo) ListByKeg(_ context.Context, kegID uuid.UUID) ([]keg.KegScan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []keg.KegScan
	for _, s := range r.scans {
		if s.KegID == kegID {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (r *fakeScanRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.scans)
}

type fakeReportRepo struct {
	mu        sync.Mutex
	reports   []keg.VarianceReport
	insertErr error
}

func (r *fakeReportRepo) Insert(_ context.Context, report *keg.VarianceReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	for _, existing := range r.reports {
		if existing.KegID == report.KegID {
			return shared.ErrAlreadyExists
		}
	}
	r.reports = append(r.reports, *report)
	return nil
}

func (r *fakeReportRepo) FindByID(_ context.Context, id uuid.UUID) (*keg.VarianceReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rep := range r.reports {
		if rep.ID == id {
			return &rep, nil
		}
	}
	return nil, keg.ErrReportNotFound
}

func (r *fakeReportRepo) FindByKeg(_ context.Context, kegID uuid.UUID) (*keg.VarianceReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rep := range r.reports {
		if rep.KegID == kegID {
			return &rep, nil
		}
	}
	return nil, keg.ErrReportNotFound
}

func (r *fakeReportRepo) List(_ context.Context, _ shared.Filter, unresolvedOnly bool) ([]keg.VarianceReport, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []keg.VarianceReport
	for _, rep := range r.reports {
		if unresolvedOnly && rep.Resolved {
			continue
		}
		out = append(out, rep)
	}
	return out, int64(len(out)), nil
}

func (r *fakeReportRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}

type fakeSnapshotRepo struct {
	mu        sync.Mutex
	snapshots map[uuid.UUID]keg.PosSnapshot
	upserts   int
}

func newFakeSnapshotRepo() *fakeSnapshotRepo {
	return &fakeSnapshotRepo{snapshots: make(map[uuid.UUID]keg.PosSnapshot)}
}

func (r *fakeSnapshotRepo) Upsert(_ context.Context, s *keg.PosSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[s.KegID] = *s
	r.upserts++
	return nil
}

func (r *fakeSnapshotRepo) FindByKeg(_ context.Context, kegID uuid.UUID) (*keg.PosSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.snapshots[kegID]
	if !ok {
		return nil, keg.ErrSnapshotNotFound
	}
	return &s, nil
}

// fakeLedger is a minimal thread-safe token store
type fakeLedger struct {
	mu        sync.Mutex
	tokens    map[string]*keg.LedgerToken
	next      int
	burns     int
	mintErr   error
	burnErr   error
	burnDelay time.Duration
	updateErr error
	updates   int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{tokens: make(map[string]*keg.LedgerToken)}
}

func (l *fakeLedger) Mint(_ context.Context, md keg.TokenMetadata) (keg.TokenRef, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.mintErr != nil {
		return keg.TokenRef{}, l.mintErr
	}
	l.next++
	id := fmt.Sprintf("%d", l.next)
	l.tokens[id] = &keg.LedgerToken{TokenID: id, Metadata: md, MintedAt: time.Now()}
	return keg.TokenRef{TokenID: id, Tx: keg.TxRef{Hash: "0xmint" + id}}, nil
}

func (l *fakeLedger) UpdateMetadata(_ context.Context, tokenID string, md keg.TokenMetadata) (keg.TxRef, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updates++
	if l.updateErr != nil {
		return keg.TxRef{}, l.updateErr
	}
	tok, ok := l.tokens[tokenID]
	if !ok {
		return keg.TxRef{}, keg.ErrTokenNotFound
	}
	tok.Metadata = md
	return keg.TxRef{Hash: "0xupdate" + tokenID}, nil
}

func (l *fakeLedger) Burn(_ context.Context, tokenID string) (keg.TxRef, error) {
	l.mu.Lock()
	delay := l.burnDelay
	l.mu.Unlock()
	time.Sleep(delay)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.burnErr != nil {
		return keg.TxRef{}, l.burnErr
	}
	tok, ok := l.tokens[tokenID]
	if !ok {
		return keg.TxRef{}, keg.ErrTokenNotFound
	}
	if tok.Burned {
		return keg.TxRef{}, keg.ErrAlreadyBurned
	}
	now := time.Now()
	tok.Burned = true
	tok.BurnedAt = &now
	l.burns++
	return keg.TxRef{Hash: "0xburn" + tokenID}, nil
}

func (l *fakeLedger) Get(_ context.Context, tokenID string) (*keg.LedgerToken, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tok, ok := l.tokens[tokenID]
	if !ok {
		return nil, keg.ErrTokenNotFound
	}
	cp := *tok
	return &cp, nil
}

func (l *fakeLedger) burnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.burns
}

func (l *fakeLedger) updateCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.updates
}

// MockPOS is a mock implementation of keg.POSAdapter
type MockPOS struct {
	mock.Mock
}

func (m *MockPOS) GetPintCount(ctx context.Context, kegID uuid.UUID) (int, error) {
	args := m.Called(ctx, kegID)
	return args.Int(0), args.Error(1)
}

func (m *MockPOS) SyncSales(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockAnalyzer is a mock implementation of keg.Analyzer
type MockAnalyzer struct {
	mock.Mock
}

func (m *MockAnalyzer) Analyze(ctx context.Context, req keg.AnalysisRequest) (json.RawMessage, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

// MockEventPublisher records published events
type MockEventPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (m *MockEventPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func (m *MockEventPublisher) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.EventType())
	}
	return out
}

// keyedLocker serializes callers per keg id
type keyedLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newKeyedLocker() *keyedLocker {
	return &keyedLocker{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (l *keyedLocker) Lock(_ context.Context, kegID uuid.UUID) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[kegID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[kegID] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock, nil
}

// busyLocker never grants a lock
type busyLocker struct{}

func (busyLocker) Lock(context.Context, uuid.UUID) (func(), error) {
	return nil, shared.WrapDomainError(keg.ErrKegBusy, context.DeadlineExceeded)
}

// harness wires the application services against in-memory fakes
type harness struct {
	kegs      *fakeKegRepo
	scans     *fakeScanRepo
	reports   *fakeReportRepo
	snapshots *fakeSnapshotRepo
	ledger    *fakeLedger
	pos       *MockPOS
	analyzer  *MockAnalyzer
	events    *MockEventPublisher

	service    *KegService
	recorder   *ScanRecorder
	retirement *RetirementCoordinator
	sync       *SyncCoordinator
	dispatcher *AnalysisDispatcher
}

func newHarness(t *testing.T, mirrorMode MirrorMode) *harness {
	t.Helper()
	h := &harness{
		kegs:      newFakeKegRepo(),
		scans:     &fakeScanRepo{},
		reports:   &fakeReportRepo{},
		snapshots: newFakeSnapshotRepo(),
		ledger:    newFakeLedger(),
		pos:       new(MockPOS),
		analyzer:  new(MockAnalyzer),
		events:    &MockEventPublisher{},
	}
	engine, err := keg.NewVarianceEngine(5, 20)
	require.NoError(t, err)

	txScope := NewNoOpTransactionScope(h.kegs, h.scans, h.reports)
	locker := newKeyedLocker()

	h.service = NewKegService(h.kegs, h.scans, h.reports, h.snapshots, h.ledger, nil)
	h.service.SetEventPublisher(h.events)
	h.recorder = NewScanRecorder(txScope, h.ledger, locker, ScanRecorderConfig{MirrorMode: mirrorMode}, nil)
	h.recorder.SetEventPublisher(h.events)
	h.dispatcher = NewAnalysisDispatcher(h.scans, h.reports, h.analyzer, time.Second, nil)
	h.retirement = NewRetirementCoordinator(h.kegs, txScope, h.pos, h.ledger, engine, h.dispatcher, locker, nil)
	h.retirement.SetEventPublisher(h.events)
	h.sync = NewSyncCoordinator(h.kegs, h.snapshots, h.pos, 4, nil)
	t.Cleanup(h.recorder.Close)
	return h
}

// registerKeg creates a keg with a minted token held by holder
func (h *harness) registerKeg(t *testing.T, expectedPints int, holder string) *keg.Keg {
	t.Helper()
	k, err := h.service.RegisterKeg(context.Background(), RegisterKegInput{
		Brewery:       "Pliny Works",
		BeerStyle:     "IPA",
		ABV:           decimal.RequireFromString("6.5"),
		SizeLiters:    decimal.RequireFromString("58.67"),
		ExpectedPints: expectedPints,
		Holder:        holder,
		Location:      "Brewery dock",
	})
	require.NoError(t, err)
	return k
}

// newUntokenedKeg stores a keg held by bar-7 that never had a token minted
func newUntokenedKeg(t *testing.T, h *harness, expectedPints int) *keg.Keg {
	t.Helper()
	k, err := keg.NewKeg(keg.NewKegParams{
		Brewery:       "Legacy Cellars",
		ABV:           decimal.RequireFromString("5.0"),
		SizeLiters:    decimal.RequireFromString("29.3"),
		ExpectedPints: expectedPints,
		Holder:        "bar-7",
	})
	require.NoError(t, err)
	require.NoError(t, h.kegs.Create(context.Background(), k))
	return k
}
