package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type User struct {
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

type Number struct {
	ID                  uuid.UUID
	Country             string
	Number              string
	Tier                string
	IsAvailable         bool
	DistributedToUserID sql.NullString
	LastDistributedAt   sql.NullTime
	SourceBatchID       sql.NullString
	UploadedAt          time.Time
}

type NumberBatch struct {
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

type CustomerServiceContact struct {
	ID          uuid.UUID
	Number      string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
