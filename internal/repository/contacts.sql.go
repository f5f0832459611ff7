package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const contactColumns = `id, number, description, is_active, created_at, updated_at`

func scanContact(row interface{ Scan(...interface{}) error }) (CustomerServiceContact, error) {
	var i CustomerServiceContact
	err := row.Scan(
		&i.ID,
		&i.Number,
		&i.Description,
		&i.IsActive,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listContacts = `-- name: ListContacts :many
SELECT ` + contactColumns + ` FROM customer_service_contacts
ORDER BY created_at DESC
`

func (q *Queries) ListContacts(ctx context.Context) ([]CustomerServiceContact, error) {
	rows, err := q.db.QueryContext(ctx, listContacts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CustomerServiceContact
	for rows.Next() {
		i, err := scanContact(rows)
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

const getActiveContact = `-- name: GetActiveContact :one
SELECT ` + contactColumns + ` FROM customer_service_contacts
WHERE is_active
ORDER BY updated_at DESC
LIMIT 1
`

func (q *Queries) GetActiveContact(ctx context.Context) (CustomerServiceContact, error) {
	return scanContact(q.db.QueryRowContext(ctx, getActiveContact))
}

const createContact = `-- name: CreateContact :one
INSERT INTO customer_service_contacts (id, number, description, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)
RETURNING ` + contactColumns

type CreateContactParams struct {
	ID          uuid.UUID
	Number      string
	Description string
	IsActive    bool
	CreatedAt   time.Time
}

func (q *Queries) CreateContact(ctx context.Context, arg CreateContactParams) (CustomerServiceContact, error) {
	return scanContact(q.db.QueryRowContext(ctx, createContact,
		arg.ID,
		arg.Number,
		arg.Description,
		arg.IsActive,
		arg.CreatedAt,
	))
}

const updateContact = `-- name: UpdateContact :execrows
UPDATE customer_service_contacts SET
	number = COALESCE($2, number),
	description = COALESCE($3, description),
	is_active = COALESCE($4, is_active),
	updated_at = $5
WHERE id = $1
`

type UpdateContactParams struct {
	ID          uuid.UUID
	Number      sql.NullString
	Description sql.NullString
	IsActive    sql.NullBool
	UpdatedAt   time.Time
}

func (q *Queries) UpdateContact(ctx context.Context, arg UpdateContactParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateContact,
		arg.ID,
		arg.Number,
		arg.Description,
		arg.IsActive,
		arg.UpdatedAt,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteContact = `-- name: DeleteContact :execrows
DELETE FROM customer_service_contacts WHERE id = $1
`

func (q *Queries) DeleteContact(ctx context.Context, id uuid.UUID) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteContact, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getContact = `-- name: GetContact :one
SELECT ` + contactColumns + ` FROM customer_service_contacts WHERE id = $1
`

func (q *Queries) GetContact(ctx context.Context, id uuid.UUID) (CustomerServiceContact, error) {
	return scanContact(q.db.QueryRowContext(ctx, getContact, id))
}
