package store

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/spicaengine/fnscheduler/internal/models"
)

const pruneEvery = 100

// Retention records scaling actions and keeps at most keep of them,
// pruning once every pruneEvery records.
type Retention struct {
	scaling *ScalingStore
	keep    int
	every   int

	mu      sync.Mutex
	written int
}

func NewRetention(scaling *ScalingStore, keep int) *Retention {
	return &Retention{
		scaling: scaling,
		keep:    keep,
		every:   max(1, min(pruneEvery, keep)),
	}
}

func (r *Retention) Record(ctx context.Context, a models.ScaleAction) error {
	if err := r.scaling.Record(ctx, a); err != nil {
		return err
	}

	r.mu.Lock()
	r.written++
	due := r.written%r.every == 0
	r.mu.Unlock()

	if !due {
		return nil
	}
	_, err := r.Trim(ctx)
	return err
}

// Trim drops everything but the newest keep actions.
func (r *Retention) Trim(ctx context.Context) (int64, error) {
	removed, err := r.scaling.Prune(ctx, r.keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune scaling history: %w", err)
	}
	if removed > 0 {
		zap.S().Named("store").Debugw("pruned scaling history", "removed", removed, "keep", r.keep)
	}
	return removed, nil
}
