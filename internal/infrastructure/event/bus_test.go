package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taproom/kegledger/internal/domain/keg"
	"github.com/taproom/kegledger/internal/domain/shared"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newScanEvent() *keg.KegScannedEvent {
	return &keg.KegScannedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(keg.EventTypeKegScanned, keg.AggregateTypeKeg, uuid.New()),
		ScannedBy:       "bar-7",
		Location:        "Taproom",
	}
}

func newRetiredEvent() *keg.KegRetiredEvent {
	return &keg.KegRetiredEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(keg.EventTypeKegRetired, keg.AggregateTypeKeg, uuid.New()),
	}
}

// recordingHandler captures handled events
type recordingHandler struct {
	mu      sync.Mutex
	types   []string
	handled []shared.DomainEvent
	err     error
	panics  bool
}

func (h *recordingHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, event)
	if h.panics {
		panic("boom")
	}
	return h.err
}

func (h *recordingHandler) EventTypes() []string {
	return h.types
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handled)
}

func TestInMemoryEventBus_Publish(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	scans := &recordingHandler{}
	bus.Subscribe(scans, keg.EventTypeKegScanned)

	event := newScanEvent()
	require.NoError(t, bus.Publish(context.Background(), event, newRetiredEvent()))

	require.Equal(t, 1, scans.count())
	assert.Equal(t, event, scans.handled[0])
}

func TestInMemoryEventBus_SubscribeUsesHandlerEventTypes(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	h := &recordingHandler{types: []string{keg.EventTypeKegRetired}}
	bus.Subscribe(h)

	require.NoError(t, bus.Publish(context.Background(), newScanEvent(), newRetiredEvent()))

	assert.Equal(t, 1, h.count())
	assert.Equal(t, keg.EventTypeKegRetired, h.handled[0].EventType())
}

func TestInMemoryEventBus_WildcardHandler(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	all := &recordingHandler{}
	bus.Subscribe(all)

	require.NoError(t, bus.Publish(context.Background(), newScanEvent(), newRetiredEvent()))

	assert.Equal(t, 2, all.count())
}

func TestInMemoryEventBus_HandlerFailuresAreIsolated(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	bus := NewInMemoryEventBus(zap.New(core))

	failing := &recordingHandler{err: errors.New("handler error")}
	panicking := &recordingHandler{panics: true}
	healthy := &recordingHandler{}
	bus.Subscribe(failing, keg.EventTypeKegScanned)
	bus.Subscribe(panicking, keg.EventTypeKegScanned)
	bus.Subscribe(healthy, keg.EventTypeKegScanned)

	err := bus.Publish(context.Background(), newScanEvent())

	require.NoError(t, err)
	assert.Equal(t, 1, failing.count())
	assert.Equal(t, 1, panicking.count())
	assert.Equal(t, 1, healthy.count())
	assert.Equal(t, 2, logs.FilterMessage("Event handler failed").Len())
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	h := &recordingHandler{}
	bus.Subscribe(h, keg.EventTypeKegScanned, keg.EventTypeKegRetired)

	_ = bus.Publish(context.Background(), newScanEvent())
	bus.Unsubscribe(h)
	_ = bus.Publish(context.Background(), newScanEvent(), newRetiredEvent())

	assert.Equal(t, 1, h.count())
	assert.Empty(t, bus.registry.lookup(keg.EventTypeKegRetired))
}

func TestInMemoryEventBus_StartStop(t *testing.T) {
	bus := NewInMemoryEventBus(nil)
	ctx := context.Background()

	require.NoError(t, bus.Start(ctx))
	assert.True(t, bus.Running())
	require.NoError(t, bus.Stop(ctx))
	assert.False(t, bus.Running())
}

func TestAuditLogHandler(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	bus := NewInMemoryEventBus(zap.NewNop())
	bus.Subscribe(NewAuditLogHandler(zap.New(core)))

	event := newScanEvent()
	require.NoError(t, bus.Publish(context.Background(), event))

	entries := logs.FilterMessage("Domain event").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, keg.EventTypeKegScanned, fields["event_type"])
	assert.Equal(t, event.AggregateID().String(), fields["aggregate_id"])
	assert.Equal(t, "audit", entries[0].LoggerName)
}
