package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sqlc-dev/pqtype"

	"github.com/DukeRupert/dialpool/internal/domain"
	"github.com/DukeRupert/dialpool/internal/repository"
)

// SQLSTATE codes PostgreSQL uses when a serializable unit must be retried.
const (
	sqlstateSerializationFailure = "40001"
	sqlstateDeadlockDetected     = "40P01"
)

// Postgres is the production Store.
type Postgres struct {
	db      *sql.DB
	queries *repository.Queries
}

// NewPostgres wraps an open database handle.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{
		db:      db,
		queries: repository.New(db),
	}
}

// InTx runs fn inside a SERIALIZABLE transaction.
func (s *Postgres) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(&pgTx{q: s.queries.WithTx(tx)}); err != nil {
		return classify(err)
	}
	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// classify turns serialization failures into ErrConflict and leaves other errors alone.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlstateSerializationFailure, sqlstateDeadlockDetected:
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
		}
	}
	return err
}

type pgTx struct {
	q *repository.Queries
}

func (t *pgTx) GetAccount(ctx context.Context, userID string) (*domain.Account, error) {
	u, err := t.q.GetUserForUpdate(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user for update: %w", err)
	}
	return toAccount(u), nil
}

func (t *pgTx) CreateAccount(ctx context.Context, a *domain.Account) error {
	n, err := t.q.CreateUser(ctx, repository.CreateUserParams{
		UserID:            a.UserID,
		Email:             nullString(a.Email),
		Tier:              string(a.Tier),
		Role:              nullString(string(a.Role)),
		SelectedCountry:   nullString(a.SelectedCountry),
		CountryLockDate:   nullTime(a.CountryLockDate),
		DailyNumbersShown: int32(a.DailyNumbersShown),
		ShownNumbers:      a.ShownNumbers,
		SavedNumbers:      a.SavedNumbers,
		LastActivityDate:  nullTime(a.LastActivityDate),
		HasSeenGuide:      a.HasSeenGuide,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

func (t *pgTx) UpdateAccount(ctx context.Context, a *domain.Account) error {
	n, err := t.q.UpdateUser(ctx, repository.UpdateUserParams{
		UserID:            a.UserID,
		Email:             nullString(a.Email),
		Tier:              string(a.Tier),
		Role:              nullString(string(a.Role)),
		SelectedCountry:   nullString(a.SelectedCountry),
		CountryLockDate:   nullTime(a.CountryLockDate),
		DailyNumbersShown: int32(a.DailyNumbersShown),
		ShownNumbers:      a.ShownNumbers,
		SavedNumbers:      a.SavedNumbers,
		LastActivityDate:  nullTime(a.LastActivityDate),
		HasSeenGuide:      a.HasSeenGuide,
		UpdatedAt:         a.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) ListCandidates(ctx context.Context, key domain.PoolKey, limit int) ([]domain.NumberRecord, error) {
	rows, err := t.q.ListCandidateNumbers(ctx, repository.ListCandidateNumbersParams{
		Country: key.Country,
		Tier:    string(key.Tier),
		Limit:   int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("list candidate numbers: %w", err)
	}
	out := make([]domain.NumberRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, *toNumberRecord(r))
	}
	return out, nil
}

func (t *pgTx) GetNumber(ctx context.Context, country string, id uuid.UUID) (*domain.NumberRecord, error) {
	r, err := t.q.GetNumberForUpdate(ctx, country, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get number for update: %w", err)
	}
	return toNumberRecord(r), nil
}

func (t *pgTx) ClaimNumber(ctx context.Context, country string, id uuid.UUID, userID string, at time.Time) error {
	n, err := t.q.ClaimNumber(ctx, repository.ClaimNumberParams{
		Country:           country,
		ID:                id,
		UserID:            userID,
		LastDistributedAt: at,
	})
	if err != nil {
		return fmt.Errorf("claim number: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// GetAccount reads an account outside any transaction.
func (s *Postgres) GetAccount(ctx context.Context, userID string) (*domain.Account, error) {
	u, err := s.queries.GetUser(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return toAccount(u), nil
}

// ListAccounts pages through accounts ordered by user ID.
func (s *Postgres) ListAccounts(ctx context.Context, after string, limit int) (domain.AccountPage, error) {
	rows, err := s.queries.ListUsers(ctx, repository.ListUsersParams{
		After: after,
		Limit: int32(limit + 1),
	})
	if err != nil {
		return domain.AccountPage{}, fmt.Errorf("list users: %w", err)
	}

	page := domain.AccountPage{Accounts: make([]domain.Account, 0, min(len(rows), limit))}
	if len(rows) > limit {
		page.HasMore = true
		rows = rows[:limit]
	}
	for _, r := range rows {
		page.Accounts = append(page.Accounts, *toAccount(r))
	}
	if len(page.Accounts) > 0 {
		page.LastUser = page.Accounts[len(page.Accounts)-1].UserID
	}
	return page, nil
}

// IngestBatch inserts the batch in one transaction.
func (s *Postgres) IngestBatch(ctx context.Context, batchID uuid.UUID, p domain.BatchParams, at time.Time) (domain.BatchResult, error) {
	result := domain.BatchResult{BatchID: batchID}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck
	qtx := s.queries.WithTx(tx)

	for _, number := range p.Numbers {
		n, err := qtx.InsertNumber(ctx, repository.InsertNumberParams{
			ID:            uuid.New(),
			Country:       p.Country,
			Number:        number,
			Tier:          string(p.Tier),
			SourceBatchID: nullString(p.SourceBatchID),
			UploadedAt:    at,
		})
		if err != nil {
			return result, fmt.Errorf("insert number: %w", err)
		}
		if n == 0 {
			result.Skipped++
			continue
		}
		result.Uploaded++
	}

	meta, err := json.Marshal(batchMetadata{Source: p.Source, Submitted: len(p.Numbers)})
	if err != nil {
		return result, fmt.Errorf("marshal batch metadata: %w", err)
	}
	err = qtx.CreateNumberBatch(ctx, repository.CreateNumberBatchParams{
		ID:            batchID,
		SourceBatchID: nullString(p.SourceBatchID),
		Country:       p.Country,
		Tier:          string(p.Tier),
		UploadedCount: int32(result.Uploaded),
		SkippedCount:  int32(result.Skipped),
		UploadedBy:    p.UploadedBy,
		Metadata:      pqtype.NullRawMessage{RawMessage: meta, Valid: true},
		CreatedAt:     at,
	})
	if err != nil {
		return result, fmt.Errorf("create number batch: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("commit transaction: %w", err)
	}
	return result, nil
}

// CountAvailable returns unclaimed inventory for every non-empty pool slice.
func (s *Postgres) CountAvailable(ctx context.Context) ([]domain.PoolCount, error) {
	rows, err := s.queries.CountAvailableNumbers(ctx)
	if err != nil {
		return nil, fmt.Errorf("count available numbers: %w", err)
	}
	out := make([]domain.PoolCount, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.PoolCount{
			PoolKey:   domain.PoolKey{Country: r.Country, Tier: domain.Tier(r.Tier)},
			Available: int(r.Available),
		})
	}
	return out, nil
}

func (s *Postgres) ListContacts(ctx context.Context) ([]domain.Contact, error) {
	rows, err := s.queries.ListContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	out := make([]domain.Contact, 0, len(rows))
	for _, r := range rows {
		out = append(out, toContact(r))
	}
	return out, nil
}

func (s *Postgres) ActiveContact(ctx context.Context) (*domain.Contact, error) {
	r, err := s.queries.GetActiveContact(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get active contact: %w", err)
	}
	c := toContact(r)
	return &c, nil
}

func (s *Postgres) CreateContact(ctx context.Context, c domain.Contact) (*domain.Contact, error) {
	r, err := s.queries.CreateContact(ctx, repository.CreateContactParams{
		ID:          c.ID,
		Number:      c.Number,
		Description: c.Description,
		IsActive:    c.IsActive,
		CreatedAt:   c.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("create contact: %w", err)
	}
	out := toContact(r)
	return &out, nil
}

func (s *Postgres) UpdateContact(ctx context.Context, p domain.UpdateContactParams, at time.Time) (*domain.Contact, error) {
	params := repository.UpdateContactParams{ID: p.ID, UpdatedAt: at}
	if p.Number != nil {
		params.Number = sql.NullString{String: *p.Number, Valid: true}
	}
	if p.Description != nil {
		params.Description = sql.NullString{String: *p.Description, Valid: true}
	}
	if p.IsActive != nil {
		params.IsActive = sql.NullBool{Bool: *p.IsActive, Valid: true}
	}

	n, err := s.queries.UpdateContact(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("update contact: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}

	r, err := s.queries.GetContact(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	out := toContact(r)
	return &out, nil
}

func (s *Postgres) DeleteContact(ctx context.Context, id uuid.UUID) error {
	n, err := s.queries.DeleteContact(ctx, id)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type batchMetadata struct {
	Source    string `json:"source,omitempty"`
	Submitted int    `json:"submitted"`
}

// =============================================================================
// Row conversion
// =============================================================================

func toAccount(u repository.User) *domain.Account {
	a := &domain.Account{
		UserID:            u.UserID,
		Email:             u.Email.String,
		Tier:              domain.Tier(u.Tier),
		Role:              domain.Role(u.Role.String),
		SelectedCountry:   u.SelectedCountry.String,
		DailyNumbersShown: int(u.DailyNumbersShown),
		ShownNumbers:      u.ShownNumbers,
		SavedNumbers:      u.SavedNumbers,
		HasSeenGuide:      u.HasSeenGuide,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}
	if a.ShownNumbers == nil {
		a.ShownNumbers = []string{}
	}
	if a.SavedNumbers == nil {
		a.SavedNumbers = []string{}
	}
	if u.CountryLockDate.Valid {
		t := u.CountryLockDate.Time
		a.CountryLockDate = &t
	}
	if u.LastActivityDate.Valid {
		t := u.LastActivityDate.Time
		a.LastActivityDate = &t
	}
	return a
}

func toNumberRecord(r repository.Number) *domain.NumberRecord {
	n := &domain.NumberRecord{
		ID:                  r.ID,
		Country:             r.Country,
		Number:              r.Number,
		Tier:                domain.Tier(r.Tier),
		IsAvailable:         r.IsAvailable,
		DistributedToUserID: r.DistributedToUserID.String,
		SourceBatchID:       r.SourceBatchID.String,
		UploadedAt:          r.UploadedAt,
	}
	if r.LastDistributedAt.Valid {
		t := r.LastDistributedAt.Time
		n.LastDistributedAt = &t
	}
	return n
}

func toContact(r repository.CustomerServiceContact) domain.Contact {
	return domain.Contact{
		ID:          r.ID,
		Number:      r.Number,
		Description: r.Description,
		IsActive:    r.IsActive,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
