package worker

import (
	"context"
	"fmt"

	"github.com/DukeRupert/dialpool/internal/domain"
	"github.com/DukeRupert/dialpool/internal/metrics"
)

// PoolCounter reports unclaimed inventory per pool slice.
type PoolCounter interface {
	CountAvailable(ctx context.Context) ([]domain.PoolCount, error)
}

// PoolGaugeTask refreshes the pool_available_numbers gauge.
type PoolGaugeTask struct {
	counter PoolCounter
}

// NewPoolGaugeTask creates a task that reads counts from counter.
func NewPoolGaugeTask(counter PoolCounter) *PoolGaugeTask {
	return &PoolGaugeTask{counter: counter}
}

func (t *PoolGaugeTask) Name() string { return "pool_gauge" }

// Run sets the gauge for every known slice. Slices with no rows report zero.
func (t *PoolGaugeTask) Run(ctx context.Context) error {
	counts, err := t.counter.CountAvailable(ctx)
	if err != nil {
		return fmt.Errorf("count available numbers: %w", err)
	}

	available := make(map[domain.PoolKey]int, len(counts))
	for _, c := range counts {
		available[c.PoolKey] = c.Available
	}
	for _, key := range domain.PoolKeys() {
		metrics.PoolAvailableNumbers.WithLabelValues(key.Country, string(key.Tier)).Set(float64(available[key]))
	}
	return nil
}
