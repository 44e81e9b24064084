// Package store implements the data access layer for the scheduler.
//
// Persistent storage uses DuckDB. The only data kept today is the history of
// auto-scaling decisions, written off the scheduler loop and served by the ops
// API.
//
// # Architecture Overview
//
//	┌─────────────────────────────────────────────────────────────────┐
//	│                         Store (facade)                          │
//	├─────────────────────────────────────────────────────────────────┤
//	│                         ScalingStore                            │
//	│                              ▼                                  │
//	│                        scale_actions                            │
//	├─────────────────────────────────────────────────────────────────┤
//	│              QueryInterceptor (debug query logging)             │
//	└─────────────────────────────────────────────────────────────────┘
//
// # Data Sources
//
// Tables created by migrations (internal/store/migrations/sql/):
//
//	┌────────────────────┬─────────────────────────────────────────────┐
//	│  Table             │  Purpose                                    │
//	├────────────────────┼─────────────────────────────────────────────┤
//	│  scale_actions     │  One row per scale up / scale down          │
//	│  schema_migrations │  Migration version tracking                 │
//	└────────────────────┴─────────────────────────────────────────────┘
//
// # Initialization Flow
//
//	db, _ := NewDB(path)        ":memory:" for an ephemeral database
//	migrations.Run(ctx, db)     creates scale_actions
//	s := NewStore(db)           wraps db in the logging interceptor
//
// # ScalingStore
//
// Schema:
//
//	scale_actions (
//	    id BIGINT PRIMARY KEY DEFAULT nextval('scale_actions_id_seq'),
//	    direction VARCHAR NOT NULL,      -- up | down
//	    reason VARCHAR NOT NULL,         -- utilization, no-available-worker, ...
//	    worker_id VARCHAR NOT NULL,
//	    worker_count INTEGER NOT NULL,   -- pool size when the decision was made
//	    utilization DOUBLE NOT NULL,
//	    created_at TIMESTAMP NOT NULL
//	)
//
// Methods:
//   - Record(ctx, action) → error (satisfies scheduler.Recorder)
//   - List(ctx, opts...) → []models.ScaleAction
//   - Count(ctx, opts...) → int
//   - Latest(ctx) → *models.ScaleAction or ScaleHistoryNotFoundError
//   - Prune(ctx, keep) → rows removed
//
// Retention wraps the ScalingStore as a recorder that calls Prune every
// hundred records (or every keep records when keep is smaller), so the
// table never grows much past keep rows.
//
// List Options:
//
// List and Count use the functional options pattern. Each ListOption modifies
// the squirrel.SelectBuilder:
//
//	actions, err := store.Scaling().List(ctx,
//	    store.ByDirection(models.ScaleUp),
//	    store.Since(time.Now().Add(-time.Hour)),
//	    store.WithDefaultSort(),
//	    store.WithLimit(50),
//	)
//
//   - ByDirection(direction): WHERE direction = ?
//   - ByReasons(reasons...): WHERE reason IN (...)
//   - Since(t): WHERE created_at >= ?
//   - WithLimit / WithOffset: pagination
//   - WithDefaultSort(): ORDER BY id DESC, newest first
//
// # QueryInterceptor
//
// All statements go through a QueryInterceptor that logs the SQL, its
// arguments and its duration at debug level.
package store
