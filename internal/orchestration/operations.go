package orchestration

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/skylinehq/skyline/internal/authz"
	"github.com/skylinehq/skyline/internal/domain"
	"github.com/skylinehq/skyline/internal/registry"
	"github.com/skylinehq/skyline/pkg/telemetry"
)

// DescriptionPreProcessor rewrites a raw description before authorization,
// e.g. to expand legacy field names. Pre-processors run in registration
// order and must not mutate their input.
type DescriptionPreProcessor interface {
	Process(desc domain.Description) (domain.Description, error)
}

// OperationsService is the submission pipeline: pre-process, authorize,
// convert, then hand the chain to the processor. Every failure in this
// pipeline is surfaced synchronously to the submitter before any task
// exists — cheap rejection, no partial state.
type OperationsService struct {
	registry      *registry.Registry
	gate          *authz.Gate
	preProcessors []DescriptionPreProcessor
	processor     *Processor
	logger        *slog.Logger
}

// NewOperationsService wires the submission pipeline.
func NewOperationsService(
	reg *registry.Registry,
	gate *authz.Gate,
	preProcessors []DescriptionPreProcessor,
	processor *Processor,
	logger *slog.Logger,
) *OperationsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OperationsService{
		registry:      reg,
		gate:          gate,
		preProcessors: preProcessors,
		processor:     processor,
		logger:        logger,
	}
}

// Submit validates and authorizes an ordered list of descriptions, converts
// each into an atomic operation, and starts the chain asynchronously. It
// returns the task ID immediately; the chain's outcome is discovered by
// polling.
//
// The gate runs over the whole chain before any conversion: a rejected
// submission converts and executes nothing.
func (s *OperationsService) Submit(ctx context.Context, caller authz.Caller, descs []domain.Description) (string, error) {
	ctx, span := otel.Tracer("orchestration").Start(ctx, "orchestration.submit")
	defer span.End()
	span.SetAttributes(
		attribute.String("caller", caller.Identity),
		attribute.Int("chain.length", len(descs)),
	)

	processed := make([]domain.Description, 0, len(descs))
	for _, desc := range descs {
		for _, pp := range s.preProcessors {
			next, err := pp.Process(desc)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "pre-processing failed")
				return "", &domain.InvalidDescriptionError{
					Provider:      desc.Provider(),
					OperationType: desc.Type(),
					Reason:        err.Error(),
				}
			}
			desc = next
		}
		processed = append(processed, desc)
	}

	if err := s.gate.Check(caller, processed); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unauthorized")
		return "", err
	}

	ops := make([]domain.Operation, 0, len(processed))
	for _, desc := range processed {
		op, err := s.registry.Convert(desc)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "conversion failed")
			return "", err
		}
		ops = append(ops, op)
	}

	provider := ""
	if len(processed) > 0 {
		provider = processed[0].Provider()
	}
	telemetry.ChainsSubmittedTotal.WithLabelValues(provider).Inc()

	task := s.processor.Process(ctx, ops)
	s.logger.Info("chain submitted",
		slog.String("task_id", task.ID()),
		slog.String("caller", caller.Identity),
		slog.Int("operations", len(ops)),
	)
	return task.ID(), nil
}
