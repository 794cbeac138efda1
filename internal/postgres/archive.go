package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skylinehq/skyline/internal/domain"
)

// TaskArchive persists terminal task snapshots for audit, and serves status
// reads for tasks already evicted from the in-memory store.
type TaskArchive interface {
	Insert(ctx context.Context, snap domain.TaskSnapshot) error
	Get(ctx context.Context, id string) (*domain.TaskSnapshot, error)
}

type taskArchive struct {
	pool *pgxpool.Pool
}

// NewTaskArchive wraps a pgxpool with the TaskArchive interface.
func NewTaskArchive(pool *pgxpool.Pool) TaskArchive {
	return &taskArchive{pool: pool}
}

func (a *taskArchive) Insert(ctx context.Context, snap domain.TaskSnapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal task snapshot %s: %w", snap.ID, err)
	}
	_, err = a.pool.Exec(ctx, `
		INSERT INTO task_archive (id, state, snapshot, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET state = $2, snapshot = $3, completed_at = $5
	`, snap.ID, string(snap.State), body, snap.CreatedAt, snap.CompletedAt)
	if err != nil {
		return fmt.Errorf("archive task %s: %w", snap.ID, err)
	}
	return nil
}

func (a *taskArchive) Get(ctx context.Context, id string) (*domain.TaskSnapshot, error) {
	var body []byte
	err := a.pool.QueryRow(ctx, `
		SELECT snapshot FROM task_archive WHERE id = $1
	`, id).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.TaskNotFoundError{TaskID: id}
		}
		return nil, fmt.Errorf("get archived task %s: %w", id, err)
	}
	var snap domain.TaskSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal archived task %s: %w", id, err)
	}
	return &snap, nil
}
