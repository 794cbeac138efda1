package orchestration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/skylinehq/skyline/internal/domain"
	"github.com/skylinehq/skyline/internal/taskstore"
	"github.com/skylinehq/skyline/pkg/telemetry"
)

// Processor drives ordered operation chains. Each submitted chain gets one
// worker goroutine; within a chain, operations run strictly sequentially
// because each unit's input is the prior unit's output.
type Processor struct {
	store  taskstore.Store
	hooks  []EventHook
	logger *slog.Logger
}

// Option configures a Processor.
type Option func(*Processor)

func WithHooks(hooks ...EventHook) Option { return func(p *Processor) { p.hooks = hooks } }
func WithLogger(l *slog.Logger) Option    { return func(p *Processor) { p.logger = l } }

// NewProcessor constructs a Processor over the given task store.
func NewProcessor(store taskstore.Store, opts ...Option) *Processor {
	p := &Processor{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process creates a task for the chain and starts executing it in the
// background. It returns the task immediately; callers poll it for state.
// Failures after this point are recorded on the task, never returned to
// the submitter.
func (p *Processor) Process(ctx context.Context, ops []domain.Operation) *domain.Task {
	task := p.store.Create()
	telemetry.TasksLive.Inc()

	// Child spans parent to the submission span, but the chain's lifetime
	// is detached from the submission request context.
	span := trace.SpanFromContext(ctx)
	runCtx := trace.ContextWithSpan(context.Background(), span)

	go p.run(runCtx, task, ops)
	return task
}

func (p *Processor) run(ctx context.Context, task *domain.Task, ops []domain.Operation) {
	ctx, span := otel.Tracer("orchestration").Start(ctx, "orchestration.run_chain")
	defer span.End()
	span.SetAttributes(
		attribute.String("task.id", task.ID()),
		attribute.Int("chain.length", len(ops)),
	)

	// Bind the current-task handle for the remainder of this chain's run.
	// The binding dies with this context, so pooled goroutines downstream
	// can never observe another chain's task.
	ctx = taskstore.WithCurrent(ctx, task)

	log := p.logger.With(slog.String("task_id", task.ID()))
	start := time.Now()

	results := make([]any, 0, len(ops))
	for i, op := range ops {
		var prior any
		if len(results) > 0 {
			prior = results[len(results)-1]
		}

		opStart := time.Now()
		output, err := p.operate(ctx, op, prior)
		opDuration := time.Since(opStart)

		if err != nil {
			opErr := &domain.OperationError{Operation: op.Name(), Err: err}
			failure := domain.Classify(op.Name(), err)
			log.Error("operation failed, aborting chain",
				slog.String("operation", op.Name()),
				slog.Int("index", i),
				slog.String("kind", string(failure.Kind)),
				slog.String("error", opErr.Error()),
			)
			span.RecordError(opErr)
			span.SetStatus(codes.Error, "chain aborted")
			telemetry.OperationsExecutedTotal.WithLabelValues(op.Name(), "failure").Inc()

			if failErr := task.Fail(failure, results); failErr != nil {
				log.Warn("terminal transition lost", slog.String("error", failErr.Error()))
			}
			p.fireOperation(ctx, log, OperationEvent{
				TaskID:    task.ID(),
				Operation: op.Name(),
				Index:     i,
				Error:     opErr.Error(),
				Duration:  opDuration,
				Snapshot:  task.Snapshot(),
			})
			p.finish(ctx, log, task, start, failure)
			return
		}

		results = append(results, output)
		telemetry.OperationsExecutedTotal.WithLabelValues(op.Name(), "success").Inc()
		p.fireOperation(ctx, log, OperationEvent{
			TaskID:    task.ID(),
			Operation: op.Name(),
			Index:     i,
			Duration:  opDuration,
			Snapshot:  task.Snapshot(),
		})
	}

	// An empty chain falls straight through here: immediately COMPLETED
	// with an empty result list.
	if err := task.Complete(results); err != nil {
		log.Warn("terminal transition lost", slog.String("error", err.Error()))
	}
	p.finish(ctx, log, task, start, nil)
}

// operate invokes one unit, converting a panic into an operation failure so
// a misbehaving provider cannot take down other chains' workers.
func (p *Processor) operate(ctx context.Context, op domain.Operation, prior any) (output any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in operation %s: %v", op.Name(), r)
		}
	}()
	return op.Operate(ctx, prior)
}

func (p *Processor) finish(ctx context.Context, log *slog.Logger, task *domain.Task, start time.Time, failure *domain.Failure) {
	duration := time.Since(start)
	telemetry.ChainDurationSeconds.Observe(duration.Seconds())

	snap := task.Snapshot()
	failureKind := ""
	if failure != nil {
		failureKind = string(failure.Kind)
	}
	telemetry.ChainsProcessedTotal.WithLabelValues(string(snap.State), failureKind).Inc()

	log.Info("chain finished",
		slog.String("state", string(snap.State)),
		slog.Int("results", len(snap.Results)),
		slog.Int64("duration_ms", duration.Milliseconds()),
	)

	event := ChainEvent{
		TaskID:   task.ID(),
		State:    snap.State,
		Failure:  failure,
		Duration: duration,
		Snapshot: snap,
	}
	for _, hook := range p.hooks {
		if err := hook.ChainFinished(ctx, event); err != nil {
			log.Error("chain hook failed", slog.String("error", err.Error()))
		}
	}
}

func (p *Processor) fireOperation(ctx context.Context, log *slog.Logger, event OperationEvent) {
	for _, hook := range p.hooks {
		if err := hook.OperationCompleted(ctx, event); err != nil {
			log.Error("operation hook failed",
				slog.String("operation", event.Operation),
				slog.String("error", err.Error()),
			)
		}
	}
}
