package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const numberColumns = `id, country, number, tier, is_available, distributed_to_user_id,
	last_distributed_at, source_batch_id, uploaded_at`

func scanNumber(row interface{ Scan(...interface{}) error }) (Number, error) {
	var i Number
	err := row.Scan(
		&i.ID,
		&i.Country,
		&i.Number,
		&i.Tier,
		&i.IsAvailable,
		&i.DistributedToUserID,
		&i.LastDistributedAt,
		&i.SourceBatchID,
		&i.UploadedAt,
	)
	return i, err
}

const listCandidateNumbers = `-- name: ListCandidateNumbers :many
SELECT ` + numberColumns + ` FROM numbers
WHERE country = $1
  AND tier = $2
  AND is_available
  AND distributed_to_user_id IS NULL
LIMIT $3
`

type ListCandidateNumbersParams struct {
	Country string
	Tier    string
	Limit   int32
}

func (q *Queries) ListCandidateNumbers(ctx context.Context, arg ListCandidateNumbersParams) ([]Number, error) {
	rows, err := q.db.QueryContext(ctx, listCandidateNumbers, arg.Country, arg.Tier, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Number
	for rows.Next() {
		i, err := scanNumber(rows)
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

const getNumberForUpdate = `-- name: GetNumberForUpdate :one
SELECT ` + numberColumns + ` FROM numbers
WHERE country = $1 AND id = $2
FOR UPDATE
`

func (q *Queries) GetNumberForUpdate(ctx context.Context, country string, id uuid.UUID) (Number, error) {
	return scanNumber(q.db.QueryRowContext(ctx, getNumberForUpdate, country, id))
}

const claimNumber = `-- name: ClaimNumber :execrows
UPDATE numbers
SET distributed_to_user_id = $3, last_distributed_at = $4
WHERE country = $1 AND id = $2 AND distributed_to_user_id IS NULL
`

type ClaimNumberParams struct {
	Country           string
	ID                uuid.UUID
	UserID            string
	LastDistributedAt time.Time
}

// ClaimNumber returns 0 if the row was already claimed.
func (q *Queries) ClaimNumber(ctx context.Context, arg ClaimNumberParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, claimNumber, arg.Country, arg.ID, arg.UserID, arg.LastDistributedAt)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const insertNumber = `-- name: InsertNumber :execrows
INSERT INTO numbers (id, country, number, tier, is_available, source_batch_id, uploaded_at)
VALUES ($1, $2, $3, $4, TRUE, $5, $6)
ON CONFLICT (country, number) DO NOTHING
`

type InsertNumberParams struct {
	ID            uuid.UUID
	Country       string
	Number        string
	Tier          string
	SourceBatchID sql.NullString
	UploadedAt    time.Time
}

// InsertNumber returns 0 when the number already exists in the country partition.
func (q *Queries) InsertNumber(ctx context.Context, arg InsertNumberParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, insertNumber,
		arg.ID,
		arg.Country,
		arg.Number,
		arg.Tier,
		arg.SourceBatchID,
		arg.UploadedAt,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const countAvailableNumbers = `-- name: CountAvailableNumbers :many
SELECT country, tier, COUNT(*)::int AS available
FROM numbers
WHERE is_available AND distributed_to_user_id IS NULL
GROUP BY country, tier
`

type CountAvailableNumbersRow struct {
	Country   string
	Tier      string
	Available int32
}

func (q *Queries) CountAvailableNumbers(ctx context.Context) ([]CountAvailableNumbersRow, error) {
	rows, err := q.db.QueryContext(ctx, countAvailableNumbers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CountAvailableNumbersRow
	for rows.Next() {
		var i CountAvailableNumbersRow
		if err := rows.Scan(&i.Country, &i.Tier, &i.Available); err != nil {
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

const createNumberBatch = `-- name: CreateNumberBatch :exec
INSERT INTO number_batches (
	id, source_batch_id, country, tier, uploaded_count, skipped_count, uploaded_by, metadata, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`

type CreateNumberBatchParams struct {
	ID            uuid.UUID
	SourceBatchID sql.NullString
	Country       string
	Tier          string
	UploadedCount int32
	SkippedCount  int32
	UploadedBy    string
	Metadata      pqtype.NullRawMessage
	CreatedAt     time.Time
}

func (q *Queries) CreateNumberBatch(ctx context.Context, arg CreateNumberBatchParams) error {
	_, err := q.db.ExecContext(ctx, createNumberBatch,
		arg.ID,
		arg.SourceBatchID,
		arg.Country,
		arg.Tier,
		arg.UploadedCount,
		arg.SkippedCount,
		arg.UploadedBy,
		arg.Metadata,
		arg.CreatedAt,
	)
	return err
}
