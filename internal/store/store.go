// Package store persists accounts, number pools and contacts.
//
// Two implementations satisfy Store: Postgres for production and Memory for tests
// and local development. Both run InTx units with serializable semantics: a unit
// that raced another writer fails with ErrConflict and leaves no trace.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/dialpool/internal/domain"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when a unit lost a race with a concurrent writer.
	// Nothing from the unit was applied.
	ErrConflict = errors.New("store: concurrent modification")
)

// Tx is the view of the store inside one atomic unit.
type Tx interface {
	// GetAccount reads an account and adds it to the unit's read set.
	GetAccount(ctx context.Context, userID string) (*domain.Account, error)
	// CreateAccount inserts a new account. ErrConflict if it already exists.
	CreateAccount(ctx context.Context, a *domain.Account) error
	// UpdateAccount writes every mutable field of a previously read account.
	UpdateAccount(ctx context.Context, a *domain.Account) error

	// ListCandidates returns up to limit available, unclaimed numbers for the pool slice.
	// No ordering is guaranteed.
	ListCandidates(ctx context.Context, key domain.PoolKey, limit int) ([]domain.NumberRecord, error)
	// GetNumber re-reads one number record with its current claim.
	GetNumber(ctx context.Context, country string, id uuid.UUID) (*domain.NumberRecord, error)
	// ClaimNumber assigns an unclaimed number to userID. ErrConflict if it is already claimed.
	ClaimNumber(ctx context.Context, country string, id uuid.UUID, userID string, at time.Time) error
}

// Store is the backing store shared by all services.
type Store interface {
	// InTx runs fn as one atomic unit. The unit commits only if fn returns nil.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	GetAccount(ctx context.Context, userID string) (*domain.Account, error)
	ListAccounts(ctx context.Context, after string, limit int) (domain.AccountPage, error)

	// IngestBatch inserts numbers into one pool slice, skipping literals that already
	// exist in the country partition, and records the batch.
	IngestBatch(ctx context.Context, batchID uuid.UUID, p domain.BatchParams, at time.Time) (domain.BatchResult, error)
	CountAvailable(ctx context.Context) ([]domain.PoolCount, error)

	ListContacts(ctx context.Context) ([]domain.Contact, error)
	ActiveContact(ctx context.Context) (*domain.Contact, error)
	CreateContact(ctx context.Context, c domain.Contact) (*domain.Contact, error)
	UpdateContact(ctx context.Context, p domain.UpdateContactParams, at time.Time) (*domain.Contact, error)
	DeleteContact(ctx context.Context, id uuid.UUID) error

	Ping(ctx context.Context) error
}
