package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/orderflow/orderflow/internal/queue"
	"github.com/orderflow/orderflow/internal/push"
	"github.com/orderflow/orderflow/internal/tenant"
)

// PushWorker implements the dispatch half of C12: generating the export and
// writing it to the dropzone once a draft is approved.
type PushWorker struct {
	nats   *queue.Manager
	pusher *push.Pusher
}

func NewPushWorker(nats *queue.Manager, pusher *push.Pusher) *PushWorker {
	return &PushWorker{nats: nats, pusher: pusher}
}

func (w *PushWorker) Start() error {
	_, err := w.nats.QueueSubscribe(queue.SubjectPushDispatch, queue.QueueGroupPush, w.handle)
	if err != nil {
		return fmt.Errorf("subscribe push dispatch: %w", err)
	}
	return nil
}

func (w *PushWorker) handle(msg *nats.Msg) {
	var dispatch queue.PushDispatchMsg
	if err := json.Unmarshal(msg.Data, &dispatch); err != nil {
		log.Printf("push worker: bad payload: %v", err)
		return
	}
	ctx := tenant.WithID(context.Background(), tenant.ID(dispatch.TenantID))
	if _, err := w.pusher.Push(ctx, dispatch.TenantID, dispatch.DraftOrderID, "system:push-worker", dispatch.IdempotencyKey); err != nil {
		log.Printf("push worker: draft %s: %v", dispatch.DraftOrderID, err)
	}
}

// AckPoller periodically scans the dropzone's ack path for every tenant and
// attaches ERP acknowledgement metadata to the matching export, per the
// optional worker of spec.md §4.12.
type AckPoller struct {
	pusher     *push.Pusher
	listTenants func(ctx context.Context) ([]string, error)
	ackPrefix  string
	interval   time.Duration
}

func NewAckPoller(pusher *push.Pusher, listTenants func(ctx context.Context) ([]string, error), ackPrefix string, interval time.Duration) *AckPoller {
	return &AckPoller{pusher: pusher, listTenants: listTenants, ackPrefix: ackPrefix, interval: interval}
}

// Run blocks, polling on a fixed interval until ctx is canceled.
func (p *AckPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *AckPoller) pollOnce(ctx context.Context) {
	tenantIDs, err := p.listTenants(ctx)
	if err != nil {
		log.Printf("ack poller: list tenants: %v", err)
		return
	}
	for _, tenantID := range tenantIDs {
		if err := p.pusher.PollAcks(ctx, tenantID, p.ackPrefix); err != nil {
			log.Printf("ack poller: tenant %s: %v", tenantID, err)
		}
	}
}
