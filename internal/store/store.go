package store

import (
	"database/sql"
	"fmt"

	_ "github.com/duckdb/duckdb-go/v2"
)

// Store provides access to all storage repositories.
type Store struct {
	db      *sql.DB
	scaling *ScalingStore
}

// NewDB opens the DuckDB database at path. ":memory:" gives a private
// in-memory database.
func NewDB(path string) (*sql.DB, error) {
	dsn := path
	if path == ":memory:" {
		dsn = ""
	}
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb at %q: %w", path, err)
	}
	// one connection keeps an in-memory database alive and shared
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open duckdb at %q: %w", path, err)
	}
	return db, nil
}

func NewStore(db *sql.DB) *Store {
	interceptor := NewLoggingInterceptor(db)
	return &Store{
		db:      db,
		scaling: NewScalingStore(interceptor),
	}
}

func (s *Store) Scaling() *ScalingStore {
	return s.scaling
}

func (s *Store) Close() error {
	return s.db.Close()
}
