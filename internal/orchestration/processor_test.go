package orchestration_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylinehq/skyline/internal/domain"
	"github.com/skylinehq/skyline/internal/orchestration"
	"github.com/skylinehq/skyline/internal/taskstore"
)

// ── fakes ────────────────────────────────────────────────────────────────────

type fakeOperation struct {
	name string
	fn   func(ctx context.Context, prior any) (any, error)
}

func (o *fakeOperation) Name() string { return o.name }

func (o *fakeOperation) Operate(ctx context.Context, prior any) (any, error) {
	return o.fn(ctx, prior)
}

var _ domain.Operation = (*fakeOperation)(nil)

type recordingHook struct {
	mu         sync.Mutex
	operations []orchestration.OperationEvent
	chains     []orchestration.ChainEvent
	opErr      error
}

func (h *recordingHook) OperationCompleted(_ context.Context, e orchestration.OperationEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.operations = append(h.operations, e)
	return h.opErr
}

func (h *recordingHook) ChainFinished(_ context.Context, e orchestration.ChainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.chains = append(h.chains, e)
	return nil
}

func (h *recordingHook) chainEvents() []orchestration.ChainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]orchestration.ChainEvent, len(h.chains))
	copy(out, h.chains)
	return out
}

func (h *recordingHook) operationEvents() []orchestration.OperationEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]orchestration.OperationEvent, len(h.operations))
	copy(out, h.operations)
	return out
}

var _ orchestration.EventHook = (*recordingHook)(nil)

func waitTerminal(t *testing.T, task *domain.Task) {
	t.Helper()
	require.Eventually(t, func() bool {
		return task.State().IsTerminal()
	}, 2*time.Second, 5*time.Millisecond, "chain did not reach a terminal state")
}

// ── tests ────────────────────────────────────────────────────────────────────

func TestProcessor_ReturnsImmediatelyWhileChainRuns(t *testing.T) {
	store := taskstore.NewStore(nil)
	p := orchestration.NewProcessor(store)

	release := make(chan struct{})
	op := &fakeOperation{name: "SLOW", fn: func(context.Context, any) (any, error) {
		<-release
		return nil, nil
	}}

	task := p.Process(context.Background(), []domain.Operation{op})
	assert.Equal(t, domain.StateRunning, task.State(), "submission must not block on the chain")

	close(release)
	waitTerminal(t, task)
	assert.Equal(t, domain.StateCompleted, task.State())
}

func TestProcessor_ThreadsOutputsThroughChain(t *testing.T) {
	store := taskstore.NewStore(nil)
	p := orchestration.NewProcessor(store)

	var got []any
	var mu sync.Mutex
	step := func(name string, out any) *fakeOperation {
		return &fakeOperation{name: name, fn: func(_ context.Context, prior any) (any, error) {
			mu.Lock()
			got = append(got, prior)
			mu.Unlock()
			return out, nil
		}}
	}

	task := p.Process(context.Background(), []domain.Operation{
		step("FIRST", "one"),
		step("SECOND", "two"),
		step("THIRD", nil),
	})
	waitTerminal(t, task)

	require.Equal(t, domain.StateCompleted, task.State())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []any{nil, "one", "two"}, got)
	assert.Equal(t, []any{"one", "two", nil}, task.Results())
}

func TestProcessor_EmptyChainCompletesImmediately(t *testing.T) {
	store := taskstore.NewStore(nil)
	hook := &recordingHook{}
	p := orchestration.NewProcessor(store, orchestration.WithHooks(hook))

	task := p.Process(context.Background(), nil)
	waitTerminal(t, task)

	assert.Equal(t, domain.StateCompleted, task.State())
	assert.Empty(t, task.Results())
	assert.Nil(t, task.Failure())
	require.Eventually(t, func() bool {
		return len(hook.chainEvents()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestProcessor_FailureAbortsChainAndKeepsPriorResults(t *testing.T) {
	store := taskstore.NewStore(nil)
	p := orchestration.NewProcessor(store)

	var thirdRan bool
	task := p.Process(context.Background(), []domain.Operation{
		&fakeOperation{name: "OK", fn: func(context.Context, any) (any, error) { return "kept", nil }},
		&fakeOperation{name: "BOOM", fn: func(context.Context, any) (any, error) {
			return nil, &domain.UpstreamError{Provider: "kubernetes", Err: errors.New("503")}
		}},
		&fakeOperation{name: "NEVER", fn: func(context.Context, any) (any, error) {
			thirdRan = true
			return nil, nil
		}},
	})
	waitTerminal(t, task)

	assert.Equal(t, domain.StateFailed, task.State())
	assert.False(t, thirdRan, "operations after the failure must not run")
	assert.Equal(t, []any{"kept"}, task.Results(), "results preceding the failure survive")

	failure := task.Failure()
	require.NotNil(t, failure)
	assert.Equal(t, domain.FailureKindProvider, failure.Kind)
	assert.Equal(t, "BOOM", failure.Operation)
}

func TestProcessor_PanicBecomesSystemFailure(t *testing.T) {
	store := taskstore.NewStore(nil)
	p := orchestration.NewProcessor(store)

	task := p.Process(context.Background(), []domain.Operation{
		&fakeOperation{name: "PANICS", fn: func(context.Context, any) (any, error) {
			panic("bad provider")
		}},
	})
	waitTerminal(t, task)

	assert.Equal(t, domain.StateFailed, task.State())
	require.NotNil(t, task.Failure())
	assert.Equal(t, domain.FailureKindSystem, task.Failure().Kind)
	assert.Contains(t, task.Failure().Message, "bad provider")
}

func TestProcessor_CurrentTaskBoundDuringChain(t *testing.T) {
	store := taskstore.NewStore(nil)
	p := orchestration.NewProcessor(store)

	op := &fakeOperation{name: "REPORTS", fn: func(ctx context.Context, _ any) (any, error) {
		task := taskstore.Current(ctx)
		task.UpdateStatus("REPORTS", "reached through the context handle")
		return nil, nil
	}}

	task := p.Process(context.Background(), []domain.Operation{op})
	waitTerminal(t, task)

	require.Equal(t, domain.StateCompleted, task.State())
	history := task.History()
	require.Len(t, history, 1)
	assert.Equal(t, "reached through the context handle", history[0].Message)
}

func TestProcessor_HookFailureDoesNotFailChain(t *testing.T) {
	store := taskstore.NewStore(nil)
	hook := &recordingHook{opErr: errors.New("kafka down")}
	p := orchestration.NewProcessor(store, orchestration.WithHooks(hook))

	task := p.Process(context.Background(), []domain.Operation{
		&fakeOperation{name: "OK", fn: func(context.Context, any) (any, error) { return "out", nil }},
	})
	waitTerminal(t, task)

	assert.Equal(t, domain.StateCompleted, task.State())
	require.Eventually(t, func() bool {
		return len(hook.operationEvents()) == 1 && len(hook.chainEvents()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestProcessor_OperationEventsCarryOrderAndError(t *testing.T) {
	store := taskstore.NewStore(nil)
	hook := &recordingHook{}
	p := orchestration.NewProcessor(store, orchestration.WithHooks(hook))

	task := p.Process(context.Background(), []domain.Operation{
		&fakeOperation{name: "A", fn: func(context.Context, any) (any, error) { return nil, nil }},
		&fakeOperation{name: "B", fn: func(context.Context, any) (any, error) {
			return nil, errors.New("blew up")
		}},
	})
	waitTerminal(t, task)

	require.Eventually(t, func() bool {
		return len(hook.operationEvents()) == 2
	}, time.Second, 5*time.Millisecond)

	events := hook.operationEvents()
	assert.Equal(t, "A", events[0].Operation)
	assert.Equal(t, 0, events[0].Index)
	assert.Empty(t, events[0].Error)
	assert.Equal(t, "B", events[1].Operation)
	assert.Equal(t, 1, events[1].Index)
	assert.Contains(t, events[1].Error, "blew up")

	chains := hook.chainEvents()
	require.Len(t, chains, 1)
	assert.Equal(t, domain.StateFailed, chains[0].State)
	require.NotNil(t, chains[0].Failure)
}

func TestProcessor_ConcurrentChainsAreIsolated(t *testing.T) {
	store := taskstore.NewStore(nil)
	p := orchestration.NewProcessor(store)

	echoID := &fakeOperation{name: "ECHO", fn: func(ctx context.Context, _ any) (any, error) {
		return taskstore.Current(ctx).ID(), nil
	}}

	var tasks []*domain.Task
	for i := 0; i < 20; i++ {
		tasks = append(tasks, p.Process(context.Background(), []domain.Operation{echoID}))
	}
	for _, task := range tasks {
		waitTerminal(t, task)
		require.Equal(t, domain.StateCompleted, task.State())
		results := task.Results()
		require.Len(t, results, 1)
		// Each chain must have observed its own task through the handle.
		assert.Equal(t, task.ID(), results[0])
	}
}
