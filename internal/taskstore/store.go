package taskstore

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skylinehq/skyline/internal/domain"
)

// Store is the in-memory registry of live tasks, keyed by task ID.
//
// Independent tasks never block each other: the store lock guards only the
// map, while each task carries its own mutex for status mutation.
type Store interface {
	// Create allocates a new task in RUNNING state under a fresh unique ID.
	Create() *domain.Task
	// Get returns the task for id, or TaskNotFoundError if unknown or evicted.
	Get(id string) (*domain.Task, error)
	// Evict removes one task from the registry.
	Evict(id string)
	// Sweep evicts terminal tasks whose completion is older than retention
	// and returns the evicted snapshots so callers can archive them.
	Sweep(retention time.Duration) []domain.TaskSnapshot
}

type memoryStore struct {
	mu     sync.RWMutex
	tasks  map[string]*domain.Task
	logger *slog.Logger
}

// NewStore creates an empty in-memory task store.
func NewStore(logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &memoryStore{
		tasks:  make(map[string]*domain.Task),
		logger: logger,
	}
}

func (s *memoryStore) Create() *domain.Task {
	task := domain.NewTask(uuid.New().String(), s.logger)
	s.mu.Lock()
	s.tasks[task.ID()] = task
	s.mu.Unlock()
	return task
}

func (s *memoryStore) Get(id string) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, &domain.TaskNotFoundError{TaskID: id}
	}
	return task, nil
}

func (s *memoryStore) Evict(id string) {
	s.mu.Lock()
	delete(s.tasks, id)
	s.mu.Unlock()
}

func (s *memoryStore) Sweep(retention time.Duration) []domain.TaskSnapshot {
	cutoff := time.Now().UTC().Add(-retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []domain.TaskSnapshot
	for id, task := range s.tasks {
		snap := task.Snapshot()
		if !snap.State.IsTerminal() || snap.CompletedAt == nil {
			continue
		}
		if snap.CompletedAt.Before(cutoff) {
			delete(s.tasks, id)
			evicted = append(evicted, snap)
		}
	}
	if len(evicted) > 0 {
		s.logger.Info("swept terminal tasks", slog.Int("count", len(evicted)))
	}
	return evicted
}
