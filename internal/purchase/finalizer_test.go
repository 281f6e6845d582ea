package purchase

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/fafportal/checkout/internal/backend"
	"github.com/fafportal/checkout/internal/checkout"
	pkgerrors "github.com/fafportal/checkout/pkg/errors"
	pkgredis "github.com/fafportal/checkout/pkg/redis"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettleUsesServerBalance(t *testing.T) {
	t.Parallel()

	stub := &stubBackend{
		session: &backend.Session{Authenticated: true, PointBalance: 5000},
		result:  &backend.SettlementResult{Success: true, Message: "ok", UpdatedBalance: 2000},
	}
	carts := &stubCarts{}
	fin := newTestFinalizer(t, stub, newMemoryStore(), carts)

	outcome, err := fin.Settle(context.Background(), Input{
		Settlement:     checkout.Settlement{TotalAmount: 3000, Kind: checkout.KindCart, ReferenceID: "all"},
		IdempotencyKey: "key-1",
		SessionID:      "sess",
	})
	require.NoError(t, err)

	assert.Equal(t, StateSettled, outcome.State)
	assert.False(t, outcome.Replayed)
	assert.Equal(t, int64(2000), outcome.Receipt.RemainingBalance)
	assert.Equal(t, int64(3000), outcome.Receipt.TotalAmount)
	assert.Equal(t, "key-1", outcome.Receipt.IdempotencyKey)
	assert.Regexp(t, regexp.MustCompile(`^ORDER-20261016-\d{4}$`), outcome.Receipt.OrderNumber)
	assert.Equal(t, "key-1", stub.lastRequest().IdempotencyKey)
	assert.Equal(t, []string{"sess"}, carts.dropped())
}

func TestSettleReplayReturnsStoredReceipt(t *testing.T) {
	t.Parallel()

	stub := &stubBackend{
		session: &backend.Session{Authenticated: true, PointBalance: 5000},
		result:  &backend.SettlementResult{Success: true, UpdatedBalance: 4000},
	}
	fin := newTestFinalizer(t, stub, newMemoryStore(), nil)
	in := Input{
		Settlement:     checkout.Settlement{TotalAmount: 1000, Kind: checkout.KindProduct, ReferenceID: "7"},
		IdempotencyKey: "key-2",
		SessionID:      "sess",
	}

	first, err := fin.Settle(context.Background(), in)
	require.NoError(t, err)
	second, err := fin.Settle(context.Background(), in)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Receipt.OrderNumber, second.Receipt.OrderNumber)
	assert.Equal(t, 1, stub.settleCalls())
}

func TestSettleRecordKeyHashesSessionID(t *testing.T) {
	t.Parallel()

	stub := &stubBackend{
		session: &backend.Session{Authenticated: true, PointBalance: 5000},
		result:  &backend.SettlementResult{Success: true, UpdatedBalance: 4000},
	}
	records := newMemoryStore()
	fin := newTestFinalizer(t, stub, records, nil)

	_, err := fin.Settle(context.Background(), Input{
		Settlement:     checkout.Settlement{TotalAmount: 1000, Kind: checkout.KindProduct, ReferenceID: "7"},
		IdempotencyKey: "key-h",
		SessionID:      "JSESSIONID-raw-value",
	})
	require.NoError(t, err)

	keys := records.keys()
	require.Len(t, keys, 1)
	assert.Equal(t, "test:settlement:"+pkgredis.HashID("JSESSIONID-raw-value")+"|key-h", keys[0])
	assert.NotContains(t, keys[0], "JSESSIONID-raw-value")
}

func TestSettleRejectsKeyReuseForDifferentPurchase(t *testing.T) {
	t.Parallel()

	stub := &stubBackend{
		session: &backend.Session{Authenticated: true, PointBalance: 5000},
		result:  &backend.SettlementResult{Success: true, UpdatedBalance: 4000},
	}
	fin := newTestFinalizer(t, stub, newMemoryStore(), nil)

	_, err := fin.Settle(context.Background(), Input{
		Settlement:     checkout.Settlement{TotalAmount: 1000, Kind: checkout.KindProduct, ReferenceID: "7"},
		IdempotencyKey: "key-3",
	})
	require.NoError(t, err)

	_, err = fin.Settle(context.Background(), Input{
		Settlement:     checkout.Settlement{TotalAmount: 900, Kind: checkout.KindProduct, ReferenceID: "7"},
		IdempotencyKey: "key-3",
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeIdempotency))
}

func TestSettleConcurrentDuplicateConflicts(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	stub := &stubBackend{
		session: &backend.Session{Authenticated: true, PointBalance: 5000},
		result:  &backend.SettlementResult{Success: true, UpdatedBalance: 4000},
		gate:    release,
		entered: make(chan struct{}),
	}
	fin := newTestFinalizer(t, stub, newMemoryStore(), nil)
	in := Input{
		Settlement:     checkout.Settlement{TotalAmount: 1000, Kind: checkout.KindProduct, ReferenceID: "7"},
		IdempotencyKey: "key-4",
	}

	done := make(chan error, 1)
	go func() {
		_, err := fin.Settle(context.Background(), in)
		done <- err
	}()

	select {
	case <-stub.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first settlement never reached the backend")
	}

	_, err := fin.Settle(context.Background(), in)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, stub.settleCalls())
}

func TestSettleFailureSurfacesServerMessageAndAllowsRetry(t *testing.T) {
	t.Parallel()

	stub := &stubBackend{
		session: &backend.Session{Authenticated: true, PointBalance: 5000},
		result:  &backend.SettlementResult{Success: false, Message: "ledger locked"},
	}
	store := newMemoryStore()
	fin := newTestFinalizer(t, stub, store, nil)
	in := Input{
		Settlement:     checkout.Settlement{TotalAmount: 1000, Kind: checkout.KindProduct, ReferenceID: "7"},
		IdempotencyKey: "key-5",
	}

	_, err := fin.Settle(context.Background(), in)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeSettlement, typed.Code())
	assert.Equal(t, "ledger locked", typed.Message())
	assert.Equal(t, 0, store.size())

	stub.setResult(&backend.SettlementResult{Success: true, UpdatedBalance: 4000})
	outcome, err := fin.Settle(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, outcome.Replayed)
	assert.Equal(t, 2, stub.settleCalls())
}

func TestSettleTransportFailureUsesFallback(t *testing.T) {
	t.Parallel()

	stub := &stubBackend{
		session:   &backend.Session{Authenticated: true, PointBalance: 5000},
		settleErr: errors.New("connection reset"),
	}
	fin := newTestFinalizer(t, stub, newMemoryStore(), nil)

	_, err := fin.Settle(context.Background(), Input{
		Settlement:     checkout.Settlement{TotalAmount: 10, Kind: checkout.KindProduct, ReferenceID: "1"},
		IdempotencyKey: "key-6",
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeSettlement, typed.Code())
	assert.Equal(t, fallbackMessage, typed.Message())
}

func TestSettleRechecksBalance(t *testing.T) {
	t.Parallel()

	stub := &stubBackend{
		session: &backend.Session{Authenticated: true, PointBalance: 2000},
		result:  &backend.SettlementResult{Success: true},
	}
	store := newMemoryStore()
	carts := &stubCarts{}
	fin := newTestFinalizer(t, stub, store, carts)

	_, err := fin.Settle(context.Background(), Input{
		Settlement:     checkout.Settlement{TotalAmount: 3000, Kind: checkout.KindCart, ReferenceID: "all"},
		IdempotencyKey: "key-7",
		SessionID:      "sess",
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, 0, stub.settleCalls())
	assert.Equal(t, 0, store.size())
	assert.Empty(t, carts.dropped())
}

func TestSettleRequiresKey(t *testing.T) {
	t.Parallel()

	fin := newTestFinalizer(t, &stubBackend{}, newMemoryStore(), nil)
	_, err := fin.Settle(context.Background(), Input{
		Settlement: checkout.Settlement{TotalAmount: 10, Kind: checkout.KindProduct, ReferenceID: "1"},
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestAttemptTransitions(t *testing.T) {
	t.Parallel()

	a := NewAttempt()
	assert.True(t, pkgerrors.IsCode(a.Succeed(), pkgerrors.CodeStateConflict))
	require.NoError(t, a.Submit())
	assert.True(t, pkgerrors.IsCode(a.Submit(), pkgerrors.CodeStateConflict))
	require.NoError(t, a.Fail())
	assert.Equal(t, StateFailed, a.State())
	assert.True(t, pkgerrors.IsCode(a.Succeed(), pkgerrors.CodeStateConflict))
}

func TestReceiptSummary(t *testing.T) {
	t.Parallel()

	receipt := Receipt{
		OrderNumber:      "ORDER-20261016-0042",
		TotalAmount:      3000,
		RemainingBalance: 2000,
		SettledAt:        time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC),
	}
	assert.Equal(t, "ORDER-20261016-0042: 3,000 P paid, 2,000 P remaining (Oct 16, 2026 09:30:00)", receipt.Summary("en"))
}

func newTestFinalizer(t *testing.T, stub *stubBackend, store *memoryStore, carts *stubCarts) *Finalizer {
	t.Helper()
	params := FinalizerParams{Backend: stub, Records: store, Language: "en"}
	if carts != nil {
		params.Carts = carts
	}
	fin, err := NewFinalizer(params)
	require.NoError(t, err)
	fin.now = func() time.Time { return time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC) }
	return fin
}

type stubBackend struct {
	mu        sync.Mutex
	session   *backend.Session
	result    *backend.SettlementResult
	settleErr error
	requests  []backend.SettlementRequest
	gate      chan struct{}
	entered   chan struct{}
}

func (s *stubBackend) Session(context.Context) (*backend.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return &backend.Session{}, nil
	}
	return s.session, nil
}

func (s *stubBackend) Settle(_ context.Context, req backend.SettlementRequest) (*backend.SettlementResult, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	gate, entered := s.gate, s.entered
	s.mu.Unlock()

	if entered != nil {
		close(entered)
	}
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result, s.settleErr
}

func (s *stubBackend) setResult(result *backend.SettlementResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = result
}

func (s *stubBackend) settleCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *stubBackend) lastRequest() backend.SettlementRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

type stubCarts struct {
	mu  sync.Mutex
	ids []string
}

func (s *stubCarts) Drop(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, sessionID)
	return nil
}

func (s *stubCarts) dropped() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ids
}

type memoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value.(string)
	return nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "test:" + scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func (m *memoryStore) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.values))
	for key := range m.values {
		out = append(out, key)
	}
	return out
}

func (m *memoryStore) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.values)
}
