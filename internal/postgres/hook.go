package postgres

import (
	"context"

	"github.com/skylinehq/skyline/internal/orchestration"
)

type archiveHook struct {
	archive TaskArchive
}

// NewArchiveHook adapts a TaskArchive into a chain event hook that persists
// the terminal snapshot when a chain finishes. Once the reaper later evicts
// the task from memory, status reads fall through to this record.
func NewArchiveHook(archive TaskArchive) orchestration.EventHook {
	return &archiveHook{archive: archive}
}

func (h *archiveHook) OperationCompleted(context.Context, orchestration.OperationEvent) error {
	return nil
}

func (h *archiveHook) ChainFinished(ctx context.Context, event orchestration.ChainEvent) error {
	return h.archive.Insert(ctx, event.Snapshot)
}
