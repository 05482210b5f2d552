package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/nats-io/nats.go"

	"github.com/orderflow/orderflow/internal/intake"
	"github.com/orderflow/orderflow/internal/queue"
	"github.com/orderflow/orderflow/internal/tenant"
)

// IntakeWorker runs the attachment-extraction job of spec.md §4.3: it
// consumes one IntakeEnqueueMsg per stored InboundMessage and explodes it
// into Documents, each of which re-enters the pipeline through its own
// extraction dispatch.
type IntakeWorker struct {
	nats     *queue.Manager
	pipeline *intake.Pipeline
}

func NewIntakeWorker(nats *queue.Manager, pipeline *intake.Pipeline) *IntakeWorker {
	return &IntakeWorker{nats: nats, pipeline: pipeline}
}

func (w *IntakeWorker) Start() error {
	_, err := w.nats.QueueSubscribe(queue.SubjectIntakeEnqueue, "intake-workers", w.handle)
	if err != nil {
		return fmt.Errorf("subscribe intake enqueue: %w", err)
	}
	return nil
}

func (w *IntakeWorker) handle(msg *nats.Msg) {
	var dispatch queue.IntakeEnqueueMsg
	if err := json.Unmarshal(msg.Data, &dispatch); err != nil {
		log.Printf("intake worker: bad payload: %v", err)
		return
	}
	ctx := tenant.WithID(context.Background(), tenant.ID(dispatch.TenantID))
	if err := w.pipeline.ExplodeInboundMessage(ctx, dispatch.TenantID, dispatch.InboundMessageID); err != nil {
		log.Printf("intake worker: inbound message %s: %v", dispatch.InboundMessageID, err)
	}
}
