package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/dialpool/internal/domain"
	"github.com/DukeRupert/dialpool/internal/store"
)

func numbersN(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%03d", prefix, i)
	}
	return out
}

func TestAllocate_Validation(t *testing.T) {
	env := newTestEnv(t)
	svc := env.allocator(nil)

	tests := []struct {
		name    string
		userID  string
		tier    domain.Tier
		country string
	}{
		{"missing user", "", domain.Tier1, "Canada"},
		{"unknown tier", "u1", domain.Tier("tier9"), "Canada"},
		{"missing tier", "u1", "", "Canada"},
		{"unknown country", "u1", domain.Tier1, "Atlantis"},
		{"missing country", "u1", domain.Tier1, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Allocate(context.Background(), tt.userID, tt.tier, tt.country)
			assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
		})
	}
}

func TestAllocate_ScenarioA_QuotaAfterEight(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	pool := numbersN("1416555", 8)
	env.seed(t, "Canada", domain.Tier1, pool...)
	svc := env.allocator(nil)

	got := make(map[string]bool)
	for i := 0; i < 8; i++ {
		n, err := svc.Allocate(ctx, "u1", domain.Tier1, "Canada")
		require.NoError(t, err, "allocation %d", i+1)
		assert.Contains(t, pool, n)
		assert.False(t, got[n], "number %s returned twice", n)
		got[n] = true
	}

	_, err := svc.Allocate(ctx, "u1", domain.Tier1, "Canada")
	require.Error(t, err)
	assert.Equal(t, domain.EQUOTA, domain.ErrorCode(err))
	limit, ok := domain.QuotaLimit(err)
	require.True(t, ok)
	assert.Equal(t, 8, limit)
	assert.Equal(t, "You have reached your daily limit of 8 numbers.", domain.ErrorMessage(err))

	a := env.account(t, "u1")
	assert.Equal(t, 8, a.DailyNumbersShown)
	assert.Len(t, a.ShownNumbers, a.DailyNumbersShown)
}

func TestAllocate_ScenarioB_EmptyPool(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "Spain", domain.Tier1, "34600000001")
	svc := env.allocator(nil)

	_, err := svc.Allocate(context.Background(), "u1", domain.Tier2, "Spain")
	require.Error(t, err)
	assert.Equal(t, domain.ENONUMBERS, domain.ErrorCode(err))
	assert.Equal(t, domain.MsgNoNumbersAvailable, domain.ErrorMessage(err))

	// The lazily created account was rolled back with the failed unit.
	_, err = env.store.GetAccount(context.Background(), "u1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// racingStore runs interfere once, inside the victim's unit, just before the hooked call.
type racingStore struct {
	store.Store
	hook      string
	interfere func()
	once      sync.Once
}

func (r *racingStore) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return r.Store.InTx(ctx, func(tx store.Tx) error {
		return fn(&racingTx{Tx: tx, r: r})
	})
}

type racingTx struct {
	store.Tx
	r *racingStore
}

func (t *racingTx) GetNumber(ctx context.Context, country string, id uuid.UUID) (*domain.NumberRecord, error) {
	if t.r.hook == "GetNumber" {
		t.r.once.Do(t.r.interfere)
	}
	return t.Tx.GetNumber(ctx, country, id)
}

func (t *racingTx) UpdateAccount(ctx context.Context, a *domain.Account) error {
	if t.r.hook == "UpdateAccount" {
		t.r.once.Do(t.r.interfere)
	}
	return t.Tx.UpdateAccount(ctx, a)
}

func TestAllocate_ScenarioC_ClaimedBeforeReread(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seed(t, "USA", domain.Tier1, "12025550100")
	winner := env.allocator(nil)

	var winnerNumber string
	racing := &racingStore{Store: env.store, hook: "GetNumber"}
	racing.interfere = func() {
		n, err := winner.Allocate(ctx, "winner", domain.Tier1, "USA")
		require.NoError(t, err)
		winnerNumber = n
	}
	loser := env.allocator(racing)

	_, err := loser.Allocate(ctx, "loser", domain.Tier1, "USA")
	require.Error(t, err)
	assert.Equal(t, domain.ECONFLICT, domain.ErrorCode(err))
	assert.True(t, domain.IsRetryable(err))

	assert.Equal(t, "12025550100", winnerNumber)
	assert.Equal(t, "winner", env.store.Numbers("USA")[0].DistributedToUserID)
	assert.Equal(t, 1, env.account(t, "winner").DailyNumbersShown)

	// Retrying finds nothing left.
	_, err = loser.Allocate(ctx, "loser", domain.Tier1, "USA")
	assert.Equal(t, domain.ENONUMBERS, domain.ErrorCode(err))
}

func TestAllocate_ScenarioC_ClaimedBeforeCommit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seed(t, "USA", domain.Tier1, "12025550100")
	winner := env.allocator(nil)

	racing := &racingStore{Store: env.store, hook: "UpdateAccount"}
	racing.interfere = func() {
		_, err := winner.Allocate(ctx, "winner", domain.Tier1, "USA")
		require.NoError(t, err)
	}
	loser := env.allocator(racing)

	_, err := loser.Allocate(ctx, "loser", domain.Tier1, "USA")
	require.Error(t, err)
	assert.True(t, domain.IsRetryable(err))
	assert.Equal(t, domain.MsgConcurrentlyClaimed, domain.ErrorMessage(err))

	_, err = env.store.GetAccount(ctx, "loser")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, "winner", env.store.Numbers("USA")[0].DistributedToUserID)
}

func TestAllocate_ScenarioC_ConcurrentRacers(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seed(t, "Canada", domain.Tier2, "14165550199")
	svc := env.allocator(nil)

	const racers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		codes   []string
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n, err := svc.Allocate(ctx, fmt.Sprintf("user-%d", i), domain.Tier2, "Canada")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners = append(winners, n)
				return
			}
			codes = append(codes, domain.ErrorCode(err))
		}(i)
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, "14165550199", winners[0])
	for _, code := range codes {
		assert.Contains(t, []string{domain.ECONFLICT, domain.ENONUMBERS}, code)
	}
	assert.NotEmpty(t, env.store.Numbers("Canada")[0].DistributedToUserID)
}

func TestAllocate_SameUserConcurrentNeverExceedsQuota(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seed(t, "Spain", domain.Tier1, numbersN("3460000", 40)...)
	svc := env.allocator(nil)

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				_, err := svc.Allocate(ctx, "u1", domain.Tier1, "Spain")
				if !domain.IsRetryable(err) {
					return
				}
			}
		}()
	}
	wg.Wait()

	a := env.account(t, "u1")
	assert.Equal(t, 8, a.DailyNumbersShown)
	assert.Len(t, a.ShownNumbers, 8)

	claimed := 0
	for _, rec := range env.store.Numbers("Spain") {
		if rec.Claimed() {
			assert.Equal(t, "u1", rec.DistributedToUserID)
			claimed++
		}
	}
	assert.Equal(t, 8, claimed)
}

func TestAllocate_ScenarioD_TierChangeResets(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seed(t, "Canada", domain.Tier1, numbersN("1", 8)...)
	env.seed(t, "Canada", domain.Tier3, numbersN("3", 10)...)
	svc := env.allocator(nil)

	for i := 0; i < 8; i++ {
		_, err := svc.Allocate(ctx, "u1", domain.Tier1, "Canada")
		require.NoError(t, err)
	}
	_, err := svc.Allocate(ctx, "u1", domain.Tier1, "Canada")
	require.Equal(t, domain.EQUOTA, domain.ErrorCode(err))

	_, err = env.admin().ChangeTier(ctx, "u1", domain.Tier3)
	require.NoError(t, err)

	a := env.account(t, "u1")
	assert.Equal(t, 0, a.DailyNumbersShown)
	assert.Empty(t, a.ShownNumbers)

	_, err = svc.Allocate(ctx, "u1", domain.Tier3, "Canada")
	require.NoError(t, err)

	summary, err := env.accounts().Summary(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.Tier3, summary.Tier)
	assert.Equal(t, 50, summary.DailyLimit)
	assert.Equal(t, 1, summary.DailyNumbersShown)
	assert.Equal(t, 49, summary.Remaining)
}

func TestAllocate_QuotaBeforeInventory(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seed(t, "USA", domain.Tier1, numbersN("1", 20)...)
	env.createAccount(t, "u1", func(a *domain.Account) {
		a.DailyNumbersShown = 8
		a.ShownNumbers = numbersN("9", 8)
	})

	_, err := env.allocator(nil).Allocate(ctx, "u1", domain.Tier1, "USA")
	assert.Equal(t, domain.EQUOTA, domain.ErrorCode(err))
}

func TestAllocate_QuotaUsesAccountTier(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seed(t, "USA", domain.Tier3, numbersN("3", 20)...)
	svc := env.allocator(nil)

	// A tier1 account may draw from the tier3 slice, but only up to its own quota.
	for i := 0; i < 8; i++ {
		_, err := svc.Allocate(ctx, "u1", domain.Tier3, "USA")
		require.NoError(t, err)
	}
	_, err := svc.Allocate(ctx, "u1", domain.Tier3, "USA")
	assert.Equal(t, domain.EQUOTA, domain.ErrorCode(err))
}

func TestAllocate_RolloverOnNewDay(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seed(t, "Canada", domain.Tier1, numbersN("1", 16)...)
	svc := env.allocator(nil)

	for i := 0; i < 8; i++ {
		_, err := svc.Allocate(ctx, "u1", domain.Tier1, "Canada")
		require.NoError(t, err)
	}

	env.clock.Set(day1.AddDate(0, 0, 1))
	n, err := svc.Allocate(ctx, "u1", domain.Tier1, "Canada")
	require.NoError(t, err)

	a := env.account(t, "u1")
	assert.Equal(t, 1, a.DailyNumbersShown)
	assert.Equal(t, []string{n}, a.ShownNumbers)
	require.NotNil(t, a.LastActivityDate)
	assert.True(t, a.LastActivityDate.Equal(day1.AddDate(0, 0, 1)))
}

func TestAllocate_SkipsShownAndSavedNumbers(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seed(t, "Spain", domain.Tier1, "A", "B", "C")
	env.createAccount(t, "u1", func(a *domain.Account) {
		a.ShownNumbers = []string{"A"}
		a.DailyNumbersShown = 1
		a.SavedNumbers = []string{"B"}
	})

	n, err := env.allocator(nil).Allocate(ctx, "u1", domain.Tier1, "Spain")
	require.NoError(t, err)
	assert.Equal(t, "C", n)

	_, err = env.allocator(nil).Allocate(ctx, "u1", domain.Tier1, "Spain")
	assert.Equal(t, domain.ENONUMBERS, domain.ErrorCode(err))
}

func TestAllocate_SavedNumberNeverReturnedAfterRollover(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	// Same literal in two countries; saving it in one does not block the other.
	env.seed(t, "Canada", domain.Tier1, "555")
	env.seed(t, "USA", domain.Tier1, "555", "777")
	env.createAccount(t, "u1", func(a *domain.Account) {
		a.SavedNumbers = []string{"555"}
	})
	env.clock.Set(day1.AddDate(0, 0, 3))

	svc := env.allocator(nil)
	_, err := svc.Allocate(ctx, "u1", domain.Tier1, "Canada")
	assert.Equal(t, domain.ENONUMBERS, domain.ErrorCode(err))

	n, err := svc.Allocate(ctx, "u1", domain.Tier1, "USA")
	require.NoError(t, err)
	assert.Equal(t, "777", n)
}

func TestAllocate_PickIsUniformOverEligible(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seed(t, "Canada", domain.Tier1, "A", "B", "C")
	svc := env.allocator(nil)

	var sizes []int
	svc.pick = func(n int) (int, error) {
		sizes = append(sizes, n)
		return n - 1, nil
	}

	n, err := svc.Allocate(ctx, "u1", domain.Tier1, "Canada")
	require.NoError(t, err)
	assert.Equal(t, []int{3}, sizes)
	assert.Contains(t, []string{"A", "B", "C"}, n)

	svc.pick = func(int) (int, error) { return 0, errors.New("entropy exhausted") }
	_, err = svc.Allocate(ctx, "u1", domain.Tier1, "Canada")
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))
	assert.Equal(t, 1, env.account(t, "u1").DailyNumbersShown)
}

func TestAllocate_PublishesAfterCommit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seed(t, "Canada", domain.Tier1, "A")
	svc := env.allocator(nil)

	n, err := svc.Allocate(ctx, "u1", domain.Tier1, "Canada")
	require.NoError(t, err)
	_, err = svc.Allocate(ctx, "u1", domain.Tier1, "Canada")
	require.Error(t, err)

	events := env.publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventNumberAllocated, events[0].Type)
	assert.Equal(t, n, events[0].Number)
	assert.Equal(t, 7, events[0].Summary.Remaining)
}

func TestAllocate_NewUserStartsNonStale(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.seed(t, "Canada", domain.Tier1, "A")

	_, err := env.allocator(nil).Allocate(ctx, "fresh", domain.Tier1, "Canada")
	require.NoError(t, err)

	a := env.account(t, "fresh")
	assert.Equal(t, domain.Tier1, a.Tier)
	assert.Equal(t, 1, a.DailyNumbersShown)
	assert.Empty(t, a.SelectedCountry)
	assert.Empty(t, a.SavedNumbers)
}
