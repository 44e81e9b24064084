package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/spicaengine/fnscheduler/internal/models"
	srvErrors "github.com/spicaengine/fnscheduler/pkg/errors"
)

// ScalingStore keeps the history of auto-scaling decisions.
type ScalingStore struct {
	db QueryInterceptor
}

func NewScalingStore(db QueryInterceptor) *ScalingStore {
	return &ScalingStore{db: db}
}

// Record appends one scaling decision.
func (s *ScalingStore) Record(ctx context.Context, a models.ScaleAction) error {
	_, err := s.db.ExecContext(ctx, queryInsertScaleAction,
		string(a.Direction),
		string(a.Reason),
		a.WorkerID,
		a.WorkerCount,
		a.Utilization,
		a.At.UTC(),
	)
	return err
}

func (s *ScalingStore) List(ctx context.Context, opts ...ListOption) ([]models.ScaleAction, error) {
	builder := sq.Select(
		"direction",
		"reason",
		"worker_id",
		"worker_count",
		"utilization",
		"created_at",
	).From("scale_actions")

	for _, opt := range opts {
		builder = opt(builder)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	actions := []models.ScaleAction{}
	for rows.Next() {
		var (
			a                 models.ScaleAction
			direction, reason string
		)
		if err := rows.Scan(&direction, &reason, &a.WorkerID, &a.WorkerCount, &a.Utilization, &a.At); err != nil {
			return nil, err
		}
		a.Direction = models.ScaleDirection(direction)
		a.Reason = models.ScaleReason(reason)
		actions = append(actions, a)
	}

	return actions, rows.Err()
}

// Latest returns the most recent decision.
func (s *ScalingStore) Latest(ctx context.Context) (*models.ScaleAction, error) {
	actions, err := s.List(ctx, WithDefaultSort(), WithLimit(1))
	if err != nil {
		return nil, err
	}
	if len(actions) == 0 {
		return nil, srvErrors.NewScaleHistoryNotFoundError()
	}
	return &actions[0], nil
}

func (s *ScalingStore) Count(ctx context.Context, opts ...ListOption) (int, error) {
	builder := sq.Select("COUNT(*)").From("scale_actions")

	for _, opt := range opts {
		builder = opt(builder)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return 0, err
	}

	var count int
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return count, err
}

// Prune keeps only the newest keep rows.
func (s *ScalingStore) Prune(ctx context.Context, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx, queryPruneScaleActions, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type ListOption func(sq.SelectBuilder) sq.SelectBuilder

func ByDirection(direction models.ScaleDirection) ListOption {
	return func(b sq.SelectBuilder) sq.SelectBuilder {
		if direction == "" {
			return b
		}
		return b.Where(sq.Eq{"direction": string(direction)})
	}
}

func ByReasons(reasons ...models.ScaleReason) ListOption {
	return func(b sq.SelectBuilder) sq.SelectBuilder {
		if len(reasons) == 0 {
			return b
		}
		values := make([]string, 0, len(reasons))
		for _, r := range reasons {
			values = append(values, string(r))
		}
		return b.Where(sq.Eq{"reason": values})
	}
}

func Since(t time.Time) ListOption {
	return func(b sq.SelectBuilder) sq.SelectBuilder {
		if t.IsZero() {
			return b
		}
		return b.Where(sq.GtOrEq{"created_at": t.UTC()})
	}
}

func WithLimit(limit uint64) ListOption {
	return func(b sq.SelectBuilder) sq.SelectBuilder {
		return b.Limit(limit)
	}
}

func WithOffset(offset uint64) ListOption {
	return func(b sq.SelectBuilder) sq.SelectBuilder {
		return b.Offset(offset)
	}
}

// WithDefaultSort orders newest first.
func WithDefaultSort() ListOption {
	return func(b sq.SelectBuilder) sq.SelectBuilder {
		return b.OrderBy("id DESC")
	}
}
