package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/skylinehq/skyline/internal/domain"
	"github.com/skylinehq/skyline/pkg/telemetry"
)

// Engine executes saga flows against a durable event log.
type Engine struct {
	repo   Repository
	flows  map[string]Flow
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// NewEngine constructs an Engine over the given repository and the flows
// it may be asked to resume.
func NewEngine(repo Repository, flows []Flow, opts ...Option) *Engine {
	e := &Engine{
		repo:   repo,
		flows:  make(map[string]Flow, len(flows)),
		logger: slog.Default(),
	}
	for _, f := range flows {
		e.flows[f.Name] = f
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterFlows adds flow definitions for resumption lookup. Called during
// startup wiring, before Resume; not safe once the engine is serving.
func (e *Engine) RegisterFlows(flows ...Flow) {
	for _, f := range flows {
		e.flows[f.Name] = f
	}
}

// Execute runs flow under sagaID, resuming from the durable log when prior
// events exist. A step recorded COMPLETED is never re-run; its recorded
// output is fed to the next step instead. On a step failure the engine
// appends the failure, compensates completed steps in reverse completion
// order, and returns the step's error.
func (e *Engine) Execute(ctx context.Context, sagaID string, flow Flow) (any, error) {
	ctx, span := otel.Tracer("saga").Start(ctx, "saga.execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("saga.id", sagaID),
		attribute.String("saga.flow", flow.Name),
	)

	log := e.logger.With(slog.String("saga_id", sagaID), slog.String("flow", flow.Name))

	state, err := e.loadState(ctx, sagaID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		startPayload, _ := json.Marshal(map[string]string{"flow": flow.Name})
		if err := e.append(ctx, Event{SagaID: sagaID, Type: EventSagaStarted, Payload: startPayload}); err != nil {
			return nil, err
		}
		state = Replay(nil)
	} else {
		telemetry.SagasResumedTotal.Inc()
		log.Info("resuming saga from event log")
	}

	if t, done := state.Terminal(); done {
		log.Info("saga already terminal", slog.String("state", string(t)))
		return nil, nil
	}
	if _, failed := state.Failed(); failed {
		// Crashed mid-failure: finish compensation and stop.
		return nil, e.compensate(ctx, log, sagaID, flow, state)
	}

	var prior any
	for _, step := range flow.Steps {
		if state.StepState(step.Name) == StepCompleted {
			// Idempotent resume: reuse the recorded output.
			prior = decodeOutput(state.Output(step.Name))
			continue
		}

		if err := e.append(ctx, Event{SagaID: sagaID, Type: EventStepStarted, Step: step.Name}); err != nil {
			return nil, err
		}

		output, stepErr := step.Apply(ctx, prior)
		if stepErr != nil {
			log.Error("saga step failed",
				slog.String("step", step.Name),
				slog.String("error", stepErr.Error()),
			)
			span.RecordError(stepErr)
			span.SetStatus(codes.Error, "saga step failed")
			if err := e.append(ctx, Event{
				SagaID:  sagaID,
				Type:    EventStepFailed,
				Step:    step.Name,
				Payload: json.RawMessage(fmt.Sprintf("%q", stepErr.Error())),
			}); err != nil {
				return nil, errors.Join(stepErr, err)
			}
			if compErr := e.compensate(ctx, log, sagaID, flow, state); compErr != nil {
				return nil, errors.Join(stepErr, compErr)
			}
			return nil, stepErr
		}

		payload, _ := json.Marshal(output)
		if err := e.append(ctx, Event{
			SagaID:  sagaID,
			Type:    EventStepCompleted,
			Step:    step.Name,
			Payload: payload,
		}); err != nil {
			return nil, err
		}
		state.steps[step.Name] = StepCompleted
		state.outputs[step.Name] = payload
		state.completedOrder = append(state.completedOrder, step.Name)
		prior = output
	}

	if err := e.append(ctx, Event{SagaID: sagaID, Type: EventSagaCompleted}); err != nil {
		return nil, err
	}
	return prior, nil
}

// Resume re-executes every non-terminal saga found in the repository. It is
// called once at startup; sagas whose flow is unknown are logged and left
// for operator attention.
func (e *Engine) Resume(ctx context.Context) error {
	ids, err := e.repo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active sagas: %w", err)
	}
	for _, id := range ids {
		events, err := e.repo.Load(ctx, id)
		if err != nil {
			return fmt.Errorf("load saga %s: %w", id, err)
		}
		state := Replay(events)
		flow, ok := e.flows[state.FlowName]
		if !ok {
			e.logger.Error("cannot resume saga: unknown flow",
				slog.String("saga_id", id),
				slog.String("flow", state.FlowName),
			)
			continue
		}
		if _, err := e.Execute(ctx, id, flow); err != nil {
			e.logger.Error("saga resume failed",
				slog.String("saga_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// compensate runs the compensations of completed steps in reverse
// completion order, then marks the saga terminally compensated. A failing
// compensation stops the walk and leaves the saga non-terminal for manual
// intervention.
func (e *Engine) compensate(ctx context.Context, log *slog.Logger, sagaID string, flow Flow, state *State) error {
	byName := make(map[string]Step, len(flow.Steps))
	for _, s := range flow.Steps {
		byName[s.Name] = s
	}

	completed := state.CompletedOrder()
	for i := len(completed) - 1; i >= 0; i-- {
		name := completed[i]
		if state.StepState(name) == StepCompensated {
			continue
		}
		step, ok := byName[name]
		if !ok || step.Compensate == nil {
			continue
		}

		if err := e.append(ctx, Event{SagaID: sagaID, Type: EventStepCompensating, Step: name}); err != nil {
			return err
		}
		log.Info("compensating step", slog.String("step", name))
		if err := step.Compensate(ctx, decodeOutput(state.Output(name))); err != nil {
			log.Error("compensation failed",
				slog.String("step", name),
				slog.String("error", err.Error()),
			)
			return fmt.Errorf("compensate step %s: %w", name, err)
		}
		if err := e.append(ctx, Event{SagaID: sagaID, Type: EventStepCompensated, Step: name}); err != nil {
			return err
		}
	}

	if err := e.append(ctx, Event{SagaID: sagaID, Type: EventSagaCompensated}); err != nil {
		return err
	}
	telemetry.SagasCompensatedTotal.Inc()
	return nil
}

// append durably writes the event before the caller applies any in-memory
// transition. Event time is set here so replay order matches append order.
func (e *Engine) append(ctx context.Context, event Event) error {
	event.Time = time.Now().UTC()
	if err := e.repo.Append(ctx, event); err != nil {
		return fmt.Errorf("append saga event %s/%s: %w", event.SagaID, event.Type, err)
	}
	telemetry.SagaEventsTotal.WithLabelValues(string(event.Type)).Inc()
	return nil
}

func (e *Engine) loadState(ctx context.Context, sagaID string) (*State, error) {
	events, err := e.repo.Load(ctx, sagaID)
	if err != nil {
		var notFound *domain.SagaNotFoundError
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load saga %s: %w", sagaID, err)
	}
	if len(events) == 0 {
		return nil, nil
	}
	return Replay(events), nil
}

func decodeOutput(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var out any
	_ = json.Unmarshal(raw, &out)
	return out
}
