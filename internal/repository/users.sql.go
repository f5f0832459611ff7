package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
)

const userColumns = `user_id, email, tier, role, selected_country, country_lock_date,
	daily_numbers_shown, shown_numbers, saved_numbers, last_activity_date,
	has_seen_guide, created_at, updated_at`

func scanUser(row interface{ Scan(...interface{}) error }) (User, error) {
	var i User
	err := row.Scan(
		&i.UserID,
		&i.Email,
		&i.Tier,
		&i.Role,
		&i.SelectedCountry,
		&i.CountryLockDate,
		&i.DailyNumbersShown,
		pq.Array(&i.ShownNumbers),
		pq.Array(&i.SavedNumbers),
		&i.LastActivityDate,
		&i.HasSeenGuide,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getUser = `-- name: GetUser :one
SELECT ` + userColumns + ` FROM users WHERE user_id = $1
`

func (q *Queries) GetUser(ctx context.Context, userID string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUser, userID))
}

const getUserForUpdate = `-- name: GetUserForUpdate :one
SELECT ` + userColumns + ` FROM users WHERE user_id = $1 FOR UPDATE
`

func (q *Queries) GetUserForUpdate(ctx context.Context, userID string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserForUpdate, userID))
}

const createUser = `-- name: CreateUser :execrows
INSERT INTO users (
	user_id, email, tier, role, selected_country, country_lock_date,
	daily_numbers_shown, shown_numbers, saved_numbers, last_activity_date,
	has_seen_guide, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (user_id) DO NOTHING
`

type CreateUserParams struct {
	UserID            string
	Email             sql.NullString
	Tier              string
	Role              sql.NullString
	SelectedCountry   sql.NullString
	CountryLockDate   sql.NullTime
	DailyNumbersShown int32
	ShownNumbers      []string
	SavedNumbers      []string
	LastActivityDate  sql.NullTime
	HasSeenGuide      bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CreateUser returns 0 when another transaction created the row first.
func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, createUser,
		arg.UserID,
		arg.Email,
		arg.Tier,
		arg.Role,
		arg.SelectedCountry,
		arg.CountryLockDate,
		arg.DailyNumbersShown,
		pq.Array(arg.ShownNumbers),
		pq.Array(arg.SavedNumbers),
		arg.LastActivityDate,
		arg.HasSeenGuide,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const updateUser = `-- name: UpdateUser :execrows
UPDATE users SET
	email = $2,
	tier = $3,
	role = $4,
	selected_country = $5,
	country_lock_date = $6,
	daily_numbers_shown = $7,
	shown_numbers = $8,
	saved_numbers = $9,
	last_activity_date = $10,
	has_seen_guide = $11,
	updated_at = $12
WHERE user_id = $1
`

type UpdateUserParams struct {
	UserID            string
	Email             sql.NullString
	Tier              string
	Role              sql.NullString
	SelectedCountry   sql.NullString
	CountryLockDate   sql.NullTime
	DailyNumbersShown int32
	ShownNumbers      []string
	SavedNumbers      []string
	LastActivityDate  sql.NullTime
	HasSeenGuide      bool
	UpdatedAt         time.Time
}

func (q *Queries) UpdateUser(ctx context.Context, arg UpdateUserParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateUser,
		arg.UserID,
		arg.Email,
		arg.Tier,
		arg.Role,
		arg.SelectedCountry,
		arg.CountryLockDate,
		arg.DailyNumbersShown,
		pq.Array(arg.ShownNumbers),
		pq.Array(arg.SavedNumbers),
		arg.LastActivityDate,
		arg.HasSeenGuide,
		arg.UpdatedAt,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listUsers = `-- name: ListUsers :many
SELECT ` + userColumns + ` FROM users
WHERE user_id > $1
ORDER BY user_id
LIMIT $2
`

type ListUsersParams struct {
	After string
	Limit int32
}

func (q *Queries) ListUsers(ctx context.Context, arg ListUsersParams) ([]User, error) {
	rows, err := q.db.QueryContext(ctx, listUsers, arg.After, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []User
	for rows.Next() {
		i, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
