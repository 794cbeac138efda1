package saga

import (
	"context"
	"fmt"

	"github.com/skylinehq/skyline/internal/domain"
	"github.com/skylinehq/skyline/internal/taskstore"
)

type sagaOperation struct {
	engine *Engine
	flow   Flow
}

// AsOperation wraps a saga flow as one atomic operation unit, letting a
// chain opt a step into the durable execution mode. The saga ID is the
// owning task's ID, keeping the two records 1:1.
func AsOperation(engine *Engine, flow Flow) domain.Operation {
	return &sagaOperation{engine: engine, flow: flow}
}

func (o *sagaOperation) Name() string {
	return "saga/" + o.flow.Name
}

func (o *sagaOperation) Operate(ctx context.Context, prior any) (any, error) {
	task := taskstore.Current(ctx)
	task.UpdateStatus(o.Name(), fmt.Sprintf("Executing flow %s with %d steps durably...", o.flow.Name, len(o.flow.Steps)))

	output, err := o.engine.Execute(ctx, task.ID(), o.flow)
	if err != nil {
		return nil, err
	}
	task.UpdateStatus(o.Name(), "Flow completed")
	return output, nil
}
