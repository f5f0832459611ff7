package domain

import (
	"time"

	"github.com/google/uuid"
)

// NumberRecord is one distributable number within a country partition.
//
// DistributedToUserID is empty while unclaimed. Once set it is never reassigned.
type NumberRecord struct {
	ID                  uuid.UUID
	Country             string
	Number              string
	Tier                Tier
	IsAvailable         bool
	DistributedToUserID string
	LastDistributedAt   *time.Time
	SourceBatchID       string
	UploadedAt          time.Time
}

// Claimed reports whether the record belongs to a user.
func (n *NumberRecord) Claimed() bool {
	return n.DistributedToUserID != ""
}

// Eligible reports whether the record can be offered by the pool at all.
func (n *NumberRecord) Eligible() bool {
	return n.IsAvailable && !n.Claimed()
}

// PoolCount is the number of unclaimed, available numbers in one pool slice.
type PoolCount struct {
	PoolKey
	Available int
}

// BatchParams describes an ingestion request for one (country, tier) slice.
type BatchParams struct {
	Country       string
	Tier          Tier
	Numbers       []string
	SourceBatchID string
	UploadedBy    string
	// Source is recorded with the batch ("upload" or the object key of an import).
	Source string
}

// BatchResult reports what an ingestion request did.
type BatchResult struct {
	BatchID  uuid.UUID `json:"batchId"`
	Uploaded int       `json:"uploaded"`
	Skipped  int       `json:"skipped"`
}
