package database

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// Database is safe for concurrent use, every call takes its own pooled connection.
type Database struct {
	pool *pgxpool.Pool
}

// NewDatabase wraps an open pool, the schema comes from the migrations folder.
func NewDatabase(pool *pgxpool.Pool) *Database {
	return &Database{
		pool: pool,
	}
}

func (db *Database) Close() {
	if db.pool == nil {
		return
	}
	db.pool.Close()
}
