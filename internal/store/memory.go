package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/dialpool/internal/domain"
)

// Memory is an in-process Store with optimistic concurrency control.
//
// A unit records the version of every account and number it reads and buffers its
// writes. Commit validates the read set under the lock; any record that changed since
// it was read fails the unit with ErrConflict. Candidate listings are not validated;
// the engine re-reads the chosen number, which is.
type Memory struct {
	mu       sync.Mutex
	accounts map[string]accountEntry
	numbers  map[numberKey]numberEntry
	order    []numberKey // insertion order, for stable candidate listings
	literals map[string]map[string]bool
	batches  []memoryBatch
	contacts map[uuid.UUID]domain.Contact
}

type accountEntry struct {
	account *domain.Account
	version uint64
}

type numberKey struct {
	country string
	id      uuid.UUID
}

type numberEntry struct {
	record  domain.NumberRecord
	version uint64
}

type memoryBatch struct {
	id     uuid.UUID
	params domain.BatchParams
	result domain.BatchResult
	at     time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[string]accountEntry),
		numbers:  make(map[numberKey]numberEntry),
		literals: make(map[string]map[string]bool),
		contacts: make(map[uuid.UUID]domain.Contact),
	}
}

// InTx runs fn against a buffered view and commits it if the read set is unchanged.
func (m *Memory) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx := &memTx{
		m:             m,
		accountReads:  make(map[string]uint64),
		numberReads:   make(map[numberKey]uint64),
		accountWrites: make(map[string]*domain.Account),
		numberWrites:  make(map[numberKey]domain.NumberRecord),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return tx.commit()
}

type memTx struct {
	m             *Memory
	accountReads  map[string]uint64 // 0 means the account was absent
	numberReads   map[numberKey]uint64
	accountWrites map[string]*domain.Account
	numberWrites  map[numberKey]domain.NumberRecord
}

func (t *memTx) readAccount(userID string) (*domain.Account, bool) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()

	e, ok := t.m.accounts[userID]
	if _, seen := t.accountReads[userID]; !seen {
		t.accountReads[userID] = e.version
	}
	if !ok {
		return nil, false
	}
	return e.account.Clone(), true
}

func (t *memTx) GetAccount(_ context.Context, userID string) (*domain.Account, error) {
	if a, ok := t.accountWrites[userID]; ok {
		return a.Clone(), nil
	}
	a, ok := t.readAccount(userID)
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

func (t *memTx) CreateAccount(_ context.Context, a *domain.Account) error {
	if _, ok := t.accountWrites[a.UserID]; ok {
		return ErrConflict
	}
	if _, ok := t.readAccount(a.UserID); ok {
		return ErrConflict
	}
	t.accountWrites[a.UserID] = a.Clone()
	return nil
}

func (t *memTx) UpdateAccount(_ context.Context, a *domain.Account) error {
	if _, ok := t.accountWrites[a.UserID]; !ok {
		if _, ok := t.readAccount(a.UserID); !ok {
			return ErrNotFound
		}
	}
	t.accountWrites[a.UserID] = a.Clone()
	return nil
}

func (t *memTx) ListCandidates(_ context.Context, key domain.PoolKey, limit int) ([]domain.NumberRecord, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()

	var out []domain.NumberRecord
	for _, k := range t.m.order {
		if len(out) >= limit {
			break
		}
		if k.country != key.Country {
			continue
		}
		rec := t.m.numbers[k].record
		if w, ok := t.numberWrites[k]; ok {
			rec = w
		}
		if rec.Tier == key.Tier && rec.Eligible() {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (t *memTx) GetNumber(_ context.Context, country string, id uuid.UUID) (*domain.NumberRecord, error) {
	k := numberKey{country: country, id: id}
	if w, ok := t.numberWrites[k]; ok {
		return &w, nil
	}

	t.m.mu.Lock()
	defer t.m.mu.Unlock()

	e, ok := t.m.numbers[k]
	if _, seen := t.numberReads[k]; !seen {
		t.numberReads[k] = e.version
	}
	if !ok {
		return nil, ErrNotFound
	}
	rec := e.record
	return &rec, nil
}

func (t *memTx) ClaimNumber(ctx context.Context, country string, id uuid.UUID, userID string, at time.Time) error {
	rec, err := t.GetNumber(ctx, country, id)
	if err != nil {
		return err
	}
	if rec.Claimed() {
		return ErrConflict
	}
	rec.DistributedToUserID = userID
	rec.LastDistributedAt = &at
	t.numberWrites[numberKey{country: country, id: id}] = *rec
	return nil
}

func (t *memTx) commit() error {
	m := t.m
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, v := range t.accountReads {
		if m.accounts[id].version != v {
			return fmt.Errorf("%w: account %s changed", ErrConflict, id)
		}
	}
	for k, v := range t.numberReads {
		if m.numbers[k].version != v {
			return fmt.Errorf("%w: number %s changed", ErrConflict, k.id)
		}
	}

	for id, a := range t.accountWrites {
		m.accounts[id] = accountEntry{account: a, version: m.accounts[id].version + 1}
	}
	for k, rec := range t.numberWrites {
		m.numbers[k] = numberEntry{record: rec, version: m.numbers[k].version + 1}
	}
	return nil
}

// GetAccount returns a copy of the committed account.
func (m *Memory) GetAccount(_ context.Context, userID string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.accounts[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return e.account.Clone(), nil
}

func (m *Memory) ListAccounts(_ context.Context, after string, limit int) (domain.AccountPage, error) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.accounts))
	for id := range m.accounts {
		if id > after {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	page := domain.AccountPage{Accounts: []domain.Account{}}
	if len(ids) > limit {
		page.HasMore = true
		ids = ids[:limit]
	}
	for _, id := range ids {
		page.Accounts = append(page.Accounts, *m.accounts[id].account.Clone())
	}
	m.mu.Unlock()

	if len(ids) > 0 {
		page.LastUser = ids[len(ids)-1]
	}
	return page, nil
}

func (m *Memory) IngestBatch(_ context.Context, batchID uuid.UUID, p domain.BatchParams, at time.Time) (domain.BatchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := domain.BatchResult{BatchID: batchID}
	seen := m.literals[p.Country]
	if seen == nil {
		seen = make(map[string]bool)
		m.literals[p.Country] = seen
	}
	for _, number := range p.Numbers {
		if seen[number] {
			result.Skipped++
			continue
		}
		seen[number] = true
		k := numberKey{country: p.Country, id: uuid.New()}
		m.numbers[k] = numberEntry{
			record: domain.NumberRecord{
				ID:            k.id,
				Country:       p.Country,
				Number:        number,
				Tier:          p.Tier,
				IsAvailable:   true,
				SourceBatchID: p.SourceBatchID,
				UploadedAt:    at,
			},
			version: 1,
		}
		m.order = append(m.order, k)
		result.Uploaded++
	}
	m.batches = append(m.batches, memoryBatch{id: batchID, params: p, result: result, at: at})
	return result, nil
}

func (m *Memory) CountAvailable(_ context.Context) ([]domain.PoolCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[domain.PoolKey]int)
	var keys []domain.PoolKey
	for _, k := range m.order {
		rec := m.numbers[k].record
		if !rec.Eligible() {
			continue
		}
		pk := domain.PoolKey{Country: rec.Country, Tier: rec.Tier}
		if _, ok := counts[pk]; !ok {
			keys = append(keys, pk)
		}
		counts[pk]++
	}
	out := make([]domain.PoolCount, 0, len(keys))
	for _, pk := range keys {
		out = append(out, domain.PoolCount{PoolKey: pk, Available: counts[pk]})
	}
	return out, nil
}

// Numbers returns a snapshot of every number record in a country. Used by tests.
func (m *Memory) Numbers(country string) []domain.NumberRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.NumberRecord
	for _, k := range m.order {
		if k.country == country {
			out = append(out, m.numbers[k].record)
		}
	}
	return out
}

func (m *Memory) ListContacts(_ context.Context) ([]domain.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Contact, 0, len(m.contacts))
	for _, c := range m.contacts {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b domain.Contact) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func (m *Memory) ActiveContact(_ context.Context) (*domain.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var active *domain.Contact
	for _, c := range m.contacts {
		if !c.IsActive {
			continue
		}
		if active == nil || c.UpdatedAt.After(active.UpdatedAt) {
			found := c
			active = &found
		}
	}
	if active == nil {
		return nil, ErrNotFound
	}
	return active, nil
}

func (m *Memory) CreateContact(_ context.Context, c domain.Contact) (*domain.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.UpdatedAt = c.CreatedAt
	m.contacts[c.ID] = c
	return &c, nil
}

func (m *Memory) UpdateContact(_ context.Context, p domain.UpdateContactParams, at time.Time) (*domain.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[p.ID]
	if !ok {
		return nil, ErrNotFound
	}
	if p.Number != nil {
		c.Number = *p.Number
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.IsActive != nil {
		c.IsActive = *p.IsActive
	}
	c.UpdatedAt = at
	m.contacts[p.ID] = c
	return &c, nil
}

func (m *Memory) DeleteContact(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.contacts[id]; !ok {
		return ErrNotFound
	}
	delete(m.contacts, id)
	return nil
}

func (m *Memory) Ping(context.Context) error {
	return nil
}
