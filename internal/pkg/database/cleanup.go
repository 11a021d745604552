package database

import (
	"context"
	"time"
)

// Cleanup removes readings older than retention.
func (db *Database) Cleanup(ctx context.Context, retention time.Duration) error {
	if _, err := db.pool.Exec(ctx, "DELETE FROM property WHERE time_stamp < $1", time.Now().Add(-retention)); err != nil {
		return err
	}
	return nil
}
