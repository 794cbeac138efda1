package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skylinehq/skyline/internal/domain"
	"github.com/skylinehq/skyline/internal/orchestration"
)

const snapshotTTL = 24 * time.Hour

func snapshotKey(taskID string) string { return "task:snapshot:" + taskID }

// TaskMirror keeps task snapshots in Redis so status reads stay fast and
// survive across instances. The mirror is best-effort: the in-memory store
// is the source of truth for a live chain.
type TaskMirror interface {
	Put(ctx context.Context, snap domain.TaskSnapshot) error
	Get(ctx context.Context, taskID string) (*domain.TaskSnapshot, error)
}

type taskMirror struct {
	client *redis.Client
}

// NewTaskMirror creates a Redis-backed TaskMirror.
func NewTaskMirror(client *redis.Client) TaskMirror {
	return &taskMirror{client: client}
}

// NewClient creates and returns a new Redis client.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		PoolSize:     10,
	})
}

func (m *taskMirror) Put(ctx context.Context, snap domain.TaskSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", snap.ID, err)
	}
	if err := m.client.Set(ctx, snapshotKey(snap.ID), data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis set snapshot %s: %w", snap.ID, err)
	}
	return nil
}

func (m *taskMirror) Get(ctx context.Context, taskID string) (*domain.TaskSnapshot, error) {
	data, err := m.client.Get(ctx, snapshotKey(taskID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, &domain.TaskNotFoundError{TaskID: taskID}
		}
		return nil, fmt.Errorf("redis get snapshot %s: %w", taskID, err)
	}
	var snap domain.TaskSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %s: %w", taskID, err)
	}
	return &snap, nil
}

type mirrorHook struct {
	mirror TaskMirror
}

// NewMirrorHook adapts a TaskMirror into a chain event hook that refreshes
// the mirrored snapshot after every operation and at chain end.
func NewMirrorHook(mirror TaskMirror) orchestration.EventHook {
	return &mirrorHook{mirror: mirror}
}

func (h *mirrorHook) OperationCompleted(ctx context.Context, event orchestration.OperationEvent) error {
	return h.mirror.Put(ctx, event.Snapshot)
}

func (h *mirrorHook) ChainFinished(ctx context.Context, event orchestration.ChainEvent) error {
	return h.mirror.Put(ctx, event.Snapshot)
}
