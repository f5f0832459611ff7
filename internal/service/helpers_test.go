package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/dialpool/internal/domain"
	"github.com/DukeRupert/dialpool/internal/store"
)

var day1 = time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.AccountEvent
}

func (p *recordingPublisher) Publish(e domain.AccountEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) Events() []domain.AccountEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.AccountEvent(nil), p.events...)
}

type testEnv struct {
	store     *store.Memory
	clock     *fakeClock
	publisher *recordingPublisher
	logger    *slog.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return &testEnv{
		store:     store.NewMemory(),
		clock:     &fakeClock{now: day1},
		publisher: &recordingPublisher{},
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func (e *testEnv) Clock() Clock {
	return Clock{Now: e.clock.Now, Location: time.UTC}
}

func (e *testEnv) allocator(st store.Store) *allocationService {
	if st == nil {
		st = e.store
	}
	return NewAllocationService(st, e.publisher, e.Clock(), 0, e.logger).(*allocationService)
}

func (e *testEnv) accounts() AccountService {
	return NewAccountService(e.store, e.publisher, e.Clock(), e.logger)
}

func (e *testEnv) admin() AdminService {
	return NewAdminService(e.store, e.publisher, e.Clock(), e.logger)
}

func (e *testEnv) seed(t *testing.T, country string, tier domain.Tier, numbers ...string) {
	t.Helper()
	_, err := e.store.IngestBatch(context.Background(), uuid.New(), domain.BatchParams{
		Country: country,
		Tier:    tier,
		Numbers: numbers,
	}, e.clock.Now())
	require.NoError(t, err)
}

// createAccount stores an account after applying mutate to the default record.
func (e *testEnv) createAccount(t *testing.T, userID string, mutate func(a *domain.Account)) {
	t.Helper()
	a := domain.NewAccount(userID, e.clock.Now())
	if mutate != nil {
		mutate(a)
	}
	err := e.store.InTx(context.Background(), func(tx store.Tx) error {
		return tx.CreateAccount(context.Background(), a)
	})
	require.NoError(t, err)
}

func (e *testEnv) account(t *testing.T, userID string) *domain.Account {
	t.Helper()
	a, err := e.store.GetAccount(context.Background(), userID)
	require.NoError(t, err)
	return a
}
