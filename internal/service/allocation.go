package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/DukeRupert/dialpool/internal/domain"
	"github.com/DukeRupert/dialpool/internal/metrics"
	"github.com/DukeRupert/dialpool/internal/store"
)

// DefaultPoolPageSize is how many candidates one allocation reads from a pool slice.
const DefaultPoolPageSize = 100

// =============================================================================
// Interface Definition
// =============================================================================

// AllocationService hands out unique numbers under the daily tier quota.
type AllocationService interface {
	// Allocate claims one number from the (country, tier) pool that the user has
	// neither been shown today nor saved, and credits it against their quota.
	//
	// Errors:
	//   - EINVALID for a missing user, unknown tier or country
	//   - EQUOTA when the account's daily allowance is used up
	//   - ENONUMBERS when no eligible number is left
	//   - ECONFLICT when another request won the race (retryable)
	//   - EINTERNAL for storage failures
	Allocate(ctx context.Context, userID string, tier domain.Tier, country string) (string, error)
}

// =============================================================================
// Implementation
// =============================================================================

type allocationService struct {
	store     store.Store
	publisher Publisher
	clock     Clock
	pageSize  int
	logger    *slog.Logger

	// pick returns a uniform index in [0, n).
	pick func(n int) (int, error)
}

// NewAllocationService creates a new AllocationService.
func NewAllocationService(st store.Store, pub Publisher, clock Clock, pageSize int, logger *slog.Logger) AllocationService {
	if pageSize <= 0 {
		pageSize = DefaultPoolPageSize
	}
	return &allocationService{
		store:     st,
		publisher: pub,
		clock:     clock,
		pageSize:  pageSize,
		logger:    logger,
		pick:      secureRandomInt,
	}
}

func secureRandomInt(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("invalid range %d", n)
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

// Allocate runs the allocation as one serializable unit.
func (s *allocationService) Allocate(ctx context.Context, userID string, tier domain.Tier, country string) (string, error) {
	const op = "allocation.allocate"

	if userID == "" {
		return "", domain.Invalid(op, "userId is required")
	}
	if !tier.Valid() {
		return "", domain.Invalid(op, "tier must be one of tier1, tier2, tier3")
	}
	country, ok := domain.ParseCountry(country)
	if !ok {
		return "", domain.Invalid(op, "country is not supported")
	}
	key := domain.PoolKey{Country: country, Tier: tier}

	var (
		number  string
		summary domain.AccountSummary
		now     time.Time
	)
	start := time.Now()
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		now = s.clock.Now()

		account, err := loadOrCreateAccount(ctx, tx, userID, now)
		if err != nil {
			return err
		}

		domain.ApplyRollover(account, now, s.clock.Location)
		if err := domain.CheckQuota(op, account); err != nil {
			return err
		}

		candidates, err := tx.ListCandidates(ctx, key, s.pageSize)
		if err != nil {
			return err
		}
		eligible := make([]domain.NumberRecord, 0, len(candidates))
		for _, c := range candidates {
			if !account.HasSeen(c.Number) {
				eligible = append(eligible, c)
			}
		}
		if len(eligible) == 0 {
			return domain.NoNumbersAvailable(op)
		}

		i, err := s.pick(len(eligible))
		if err != nil {
			return fmt.Errorf("pick candidate: %w", err)
		}
		chosen := eligible[i]

		fresh, err := tx.GetNumber(ctx, chosen.Country, chosen.ID)
		if errors.Is(err, store.ErrNotFound) {
			return domain.ConcurrentlyClaimed(op, err)
		}
		if err != nil {
			return err
		}
		if fresh.Claimed() {
			return domain.ConcurrentlyClaimed(op, nil)
		}

		if err := tx.ClaimNumber(ctx, fresh.Country, fresh.ID, userID, now); err != nil {
			return err
		}
		account.RecordShown(fresh.Number, now)
		if err := tx.UpdateAccount(ctx, account); err != nil {
			return err
		}

		number = fresh.Number
		summary = account.Summary()
		return nil
	})
	if err != nil {
		err = txError(op, err, domain.ConcurrentlyClaimed)
	}
	metrics.AllocationRecorded(key, err, time.Since(start))

	if err != nil {
		s.logAllocationFailure(userID, key, err)
		return "", err
	}

	s.logger.Info("Number allocated",
		"op", op,
		"user_id", userID,
		"country", key.Country,
		"tier", key.Tier,
		"remaining", summary.Remaining,
	)
	publish(s.publisher, s.logger, domain.AccountEvent{
		Type:       domain.EventNumberAllocated,
		UserID:     userID,
		Number:     number,
		Summary:    summary,
		OccurredAt: now,
	})
	return number, nil
}

func (s *allocationService) logAllocationFailure(userID string, key domain.PoolKey, err error) {
	attrs := []any{
		"op", domain.ErrorOp(err),
		"user_id", userID,
		"country", key.Country,
		"tier", key.Tier,
	}
	if domain.ErrorCode(err) == domain.EINTERNAL {
		s.logger.Error("Allocation failed", append(attrs, "error", err)...)
		return
	}
	s.logger.Info("Allocation rejected", append(attrs, "code", domain.ErrorCode(err))...)
}
