package postgres

import (
	"github.com/kozaktomas/class-attendance/internal/database"
)

// Store implements database.Store backed by PostgreSQL.
type Store struct {
	pool *Pool
}

var _ database.Store = (*Store)(nil)

// NewStore creates a PostgreSQL-backed store.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}
