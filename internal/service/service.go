// Package service contains the business logic layer.
//
// Every state change runs as one store.InTx unit. Events are published only after
// the unit commits.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/DukeRupert/dialpool/internal/domain"
	"github.com/DukeRupert/dialpool/internal/store"
)

// Publisher receives account events after their transaction commits.
type Publisher interface {
	Publish(event domain.AccountEvent)
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(domain.AccountEvent) {}

// Clock supplies the current time and the location calendar days are evaluated in.
type Clock struct {
	Now      func() time.Time
	Location *time.Location
}

// SystemClock returns a Clock backed by time.Now in loc.
func SystemClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return Clock{Now: time.Now, Location: loc}
}

// loadOrCreateAccount reads the account inside tx, materializing the default record
// in the same unit when the user has never been seen.
func loadOrCreateAccount(ctx context.Context, tx store.Tx, userID string, now time.Time) (*domain.Account, error) {
	account, err := tx.GetAccount(ctx, userID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	account = domain.NewAccount(userID, now)
	if err := tx.CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// txError converts an InTx failure into a domain error. Domain errors raised inside
// the unit pass through; a lost race becomes conflict.
func txError(op string, err error, conflict func(op string, err error) *domain.Error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return err
	}
	if errors.Is(err, store.ErrConflict) {
		return conflict(op, err)
	}
	return domain.Internal(err, op, "storage failure")
}

// accountConflict is the conflict used outside allocation.
func accountConflict(op string, err error) *domain.Error {
	return &domain.Error{
		Code:    domain.ECONFLICT,
		Op:      op,
		Message: "Your account was changed by another request. Try again.",
		Err:     err,
	}
}

func publish(pub Publisher, logger *slog.Logger, event domain.AccountEvent) {
	if pub == nil {
		return
	}
	pub.Publish(event)
	logger.Debug("Published account event", "type", event.Type, "user_id", event.UserID)
}
