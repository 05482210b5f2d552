package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/nats-io/nats.go"

	"github.com/orderflow/orderflow/internal/db"
	"github.com/orderflow/orderflow/internal/draftengine"
	"github.com/orderflow/orderflow/internal/queue"
	"github.com/orderflow/orderflow/internal/tenant"
	"github.com/orderflow/orderflow/internal/validate"
)

// ValidationWorker implements C10: running the deterministic issue pass
// after matching, then re-evaluating the ready-check gate.
type ValidationWorker struct {
	nats      *queue.Manager
	db        *db.Queries
	validator *validate.Validator
	engine    *draftengine.Engine
}

func NewValidationWorker(nats *queue.Manager, queries *db.Queries, validator *validate.Validator, engine *draftengine.Engine) *ValidationWorker {
	return &ValidationWorker{nats: nats, db: queries, validator: validator, engine: engine}
}

func (w *ValidationWorker) Start() error {
	_, err := w.nats.QueueSubscribe(queue.SubjectValidationDispatch, queue.QueueGroupValidation, w.handle)
	if err != nil {
		return fmt.Errorf("subscribe validation dispatch: %w", err)
	}
	return nil
}

func (w *ValidationWorker) handle(msg *nats.Msg) {
	var dispatch queue.ValidationDispatchMsg
	if err := json.Unmarshal(msg.Data, &dispatch); err != nil {
		log.Printf("validation worker: bad payload: %v", err)
		return
	}
	ctx := tenant.WithID(context.Background(), tenant.ID(dispatch.TenantID))
	if err := w.process(ctx, dispatch); err != nil {
		log.Printf("validation worker: draft %s: %v", dispatch.DraftOrderID, err)
	}
}

func (w *ValidationWorker) process(ctx context.Context, dispatch queue.ValidationDispatchMsg) error {
	draft, err := w.db.GetDraftOrder(ctx, dispatch.TenantID, dispatch.DraftOrderID)
	if err != nil {
		return fmt.Errorf("get draft order: %w", err)
	}
	lines, err := w.db.ListDraftOrderLines(ctx, dispatch.TenantID, dispatch.DraftOrderID)
	if err != nil {
		return fmt.Errorf("list draft order lines: %w", err)
	}
	if err := w.validator.Run(ctx, dispatch.TenantID, validate.Input{DraftOrder: *draft, Lines: lines}); err != nil {
		return fmt.Errorf("run validation: %w", err)
	}
	if _, _, err := w.engine.RunReadyCheck(ctx, dispatch.TenantID, dispatch.DraftOrderID); err != nil {
		return fmt.Errorf("run ready check: %w", err)
	}
	return nil
}
