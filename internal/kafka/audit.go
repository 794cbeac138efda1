package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/skylinehq/skyline/internal/orchestration"
	"github.com/skylinehq/skyline/pkg/telemetry"
)

const auditTopic = "operations.audit"

// auditEnvelope is the wire shape of one audit stream message.
type auditEnvelope struct {
	Kind      string `json:"kind"` // "operation" | "chain"
	Operation *orchestration.OperationEvent `json:"operation,omitempty"`
	Chain     *orchestration.ChainEvent     `json:"chain,omitempty"`
}

type auditHook struct {
	producer Producer
}

// NewAuditHook returns a chain event hook that publishes operation and
// chain lifecycle events to the audit topic, keyed by task ID for per-task
// ordering. Publish failures count against a metric and bubble up to the
// processor, which logs them; they never fail the chain.
func NewAuditHook(producer Producer) orchestration.EventHook {
	return &auditHook{producer: producer}
}

func (h *auditHook) OperationCompleted(ctx context.Context, event orchestration.OperationEvent) error {
	return h.publish(ctx, event.TaskID, auditEnvelope{Kind: "operation", Operation: &event})
}

func (h *auditHook) ChainFinished(ctx context.Context, event orchestration.ChainEvent) error {
	return h.publish(ctx, event.TaskID, auditEnvelope{Kind: "chain", Chain: &event})
}

func (h *auditHook) publish(ctx context.Context, key string, env auditEnvelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		telemetry.AuditPublishFailures.Inc()
		return fmt.Errorf("marshal audit event: %w", err)
	}
	if err := h.producer.Publish(ctx, auditTopic, key, payload); err != nil {
		telemetry.AuditPublishFailures.Inc()
		return err
	}
	return nil
}
