package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skylinehq/skyline/internal/domain"
	"github.com/skylinehq/skyline/internal/saga"
)

// NewPool creates a pgxpool and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

type sagaRepository struct {
	pool *pgxpool.Pool
}

// NewSagaRepository wraps a pgxpool with the saga.Repository interface.
// Events rely on a monotonic seq column for replay ordering; wall-clock
// timestamps are informational only.
func NewSagaRepository(pool *pgxpool.Pool) saga.Repository {
	return &sagaRepository{pool: pool}
}

func (r *sagaRepository) Append(ctx context.Context, event saga.Event) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO saga_events (saga_id, type, step, payload, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
	`, event.SagaID, string(event.Type), event.Step, []byte(event.Payload), event.Time)
	if err != nil {
		return fmt.Errorf("append event for saga %s: %w", event.SagaID, err)
	}
	return nil
}

func (r *sagaRepository) Load(ctx context.Context, sagaID string) ([]saga.Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT saga_id, type, step, payload, recorded_at
		FROM saga_events
		WHERE saga_id = $1
		ORDER BY seq ASC
	`, sagaID)
	if err != nil {
		return nil, fmt.Errorf("load events for saga %s: %w", sagaID, err)
	}
	defer rows.Close()

	var events []saga.Event
	for rows.Next() {
		var (
			e       saga.Event
			typ     string
			payload []byte
		)
		if err := rows.Scan(&e.SagaID, &typ, &e.Step, &payload, &e.Time); err != nil {
			return nil, fmt.Errorf("scan saga event: %w", err)
		}
		e.Type = saga.EventType(typ)
		e.Payload = payload
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load events for saga %s: %w", sagaID, err)
	}
	if len(events) == 0 {
		return nil, &domain.SagaNotFoundError{SagaID: sagaID}
	}
	return events, nil
}

func (r *sagaRepository) ListActive(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT saga_id
		FROM saga_events
		WHERE saga_id NOT IN (
			SELECT saga_id FROM saga_events
			WHERE type IN ('SAGA_COMPLETED', 'SAGA_COMPENSATED')
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("list active sagas: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan saga id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
