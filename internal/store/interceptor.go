package store

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

// QueryInterceptor is the subset of *sql.DB the stores use.
type QueryInterceptor interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type loggingInterceptor struct {
	db  *sql.DB
	log *zap.SugaredLogger
}

// NewLoggingInterceptor wraps db and logs every statement at debug level.
func NewLoggingInterceptor(db *sql.DB) QueryInterceptor {
	return &loggingInterceptor{db: db, log: zap.S().Named("store")}
}

func (l *loggingInterceptor) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	defer l.trace(time.Now(), query, args)
	return l.db.QueryRowContext(ctx, query, args...)
}

func (l *loggingInterceptor) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	defer l.trace(time.Now(), query, args)
	return l.db.QueryContext(ctx, query, args...)
}

func (l *loggingInterceptor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	defer l.trace(time.Now(), query, args)
	return l.db.ExecContext(ctx, query, args...)
}

func (l *loggingInterceptor) trace(start time.Time, query string, args []any) {
	l.log.Debugw("query", "sql", query, "args", args, "duration", time.Since(start))
}
