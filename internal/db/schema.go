package db

import "context"

// schema is applied at startup. Balances live in user_points; point_events
// is append-only and never updated or deleted.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT 'Adventurer',
		avatar_url TEXT,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_points (
		user_id TEXT PRIMARY KEY,
		balance_total BIGINT NOT NULL DEFAULT 0,
		messages_count BIGINT NOT NULL DEFAULT 0,
		watch_minutes BIGINT NOT NULL DEFAULT 0,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS point_events (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL,
		delta BIGINT NOT NULL,
		type TEXT NOT NULL,
		reason TEXT,
		source TEXT,
		created_at BIGINT NOT NULL,
		balance_after BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_point_events_user ON point_events (user_id, id)`,
}

func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := d.Pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
