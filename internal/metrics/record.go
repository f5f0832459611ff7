package metrics

import (
	"time"

	"github.com/DukeRupert/dialpool/internal/domain"
)

// Allocation outcomes used as the "outcome" label.
const (
	OutcomeAllocated = "allocated"
	OutcomeQuota     = "quota_exceeded"
	OutcomeNoNumbers = "no_numbers"
	OutcomeConflict  = "conflict"
	OutcomeError     = "error"
)

// AllocationOutcome maps an Allocate result to its outcome label.
func AllocationOutcome(err error) string {
	if err == nil {
		return OutcomeAllocated
	}
	switch domain.ErrorCode(err) {
	case domain.EQUOTA:
		return OutcomeQuota
	case domain.ENONUMBERS:
		return OutcomeNoNumbers
	case domain.ECONFLICT:
		return OutcomeConflict
	}
	return OutcomeError
}

// AllocationRecorded records one allocation attempt.
func AllocationRecorded(key domain.PoolKey, err error, duration time.Duration) {
	AllocationsTotal.WithLabelValues(key.Country, string(key.Tier), AllocationOutcome(err)).Inc()
	AllocationDuration.WithLabelValues(key.Country, string(key.Tier)).Observe(duration.Seconds())
}

// BatchIngested records the result of an ingestion request.
func BatchIngested(key domain.PoolKey, uploaded, skipped int) {
	NumbersIngestedTotal.WithLabelValues(key.Country, string(key.Tier)).Add(float64(uploaded))
	NumbersSkippedTotal.WithLabelValues(key.Country, string(key.Tier)).Add(float64(skipped))
}
