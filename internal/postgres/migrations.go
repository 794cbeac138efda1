package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS saga_events (
		seq         BIGSERIAL PRIMARY KEY,
		saga_id     TEXT        NOT NULL,
		type        TEXT        NOT NULL,
		step        TEXT        NOT NULL DEFAULT '',
		payload     JSONB,
		recorded_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS saga_events_saga_id_idx ON saga_events (saga_id, seq)`,
	`CREATE TABLE IF NOT EXISTS task_archive (
		id           TEXT PRIMARY KEY,
		state        TEXT        NOT NULL,
		snapshot     JSONB       NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS task_archive_completed_at_idx ON task_archive (completed_at)`,
}

// Migrate applies the schema. Statements are idempotent, so running it on
// every startup is safe.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
