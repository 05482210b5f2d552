// Package queue wraps the NATS job queue used by every worker pool in the
// pipeline (C3-C12): intake enqueue, extraction dispatch, customer-detect
// dispatch, matching dispatch, validation dispatch, and push dispatch.
// Manager and the subject-constant/helper-function pattern are carried over
// from the teacher's internal/queue/nats.go.
package queue

import (
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// Manager handles the NATS connection and messaging.
type Manager struct {
	conn *nats.Conn
	url  string
}

// NewManager creates a new NATS manager.
func NewManager(natsURL string) (*Manager, error) {
	options := []nats.Option{
		nats.Name("OrderFlow"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Printf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("NATS reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Println("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(natsURL, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Printf("Connected to NATS at %s", natsURL)

	return &Manager{conn: conn, url: natsURL}, nil
}

// Close closes the NATS connection.
func (m *Manager) Close() {
	if m.conn != nil {
		m.conn.Close()
	}
}

// Conn returns the NATS connection.
func (m *Manager) Conn() *nats.Conn {
	return m.conn
}

// Publish publishes a message to a subject.
func (m *Manager) Publish(subject string, data []byte) error {
	return m.conn.Publish(subject, data)
}

// Subscribe fan-outs a subject to every subscriber: unlike QueueSubscribe,
// each message reaches all of them. No worker in this repository calls it.
func (m *Manager) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	return m.conn.Subscribe(subject, handler)
}

// QueueSubscribe creates a load-balanced subscriber: each message is
// delivered to exactly one member of the queue group. This is the shape
// every worker pool in internal/workers uses.
func (m *Manager) QueueSubscribe(subject, queue string, handler nats.MsgHandler) (*nats.Subscription, error) {
	return m.conn.QueueSubscribe(subject, queue, handler)
}

// Request sends a request and waits for a response.
func (m *Manager) Request(subject string, data []byte, timeout time.Duration) (*nats.Msg, error) {
	return m.conn.Request(subject, data, timeout)
}

// Subject patterns. One dispatch subject per pipeline stage, plus a
// per-draft cancellation broadcast.
const (
	SubjectIntakeEnqueue        = "intake.enqueue"
	SubjectExtractionDispatch   = "extraction.dispatch"
	SubjectCustomerDetectDispatch = "customerdetect.dispatch"
	SubjectMatchingDispatch     = "matching.dispatch"
	SubjectValidationDispatch   = "validation.dispatch"
	SubjectPushDispatch         = "push.dispatch"
	SubjectDraftCancel          = "draft.cancel.%s" // draft.cancel.{draftID}

	QueueGroupExtraction     = "extraction-workers"
	QueueGroupCustomerDetect = "customerdetect-workers"
	QueueGroupMatching       = "matching-workers"
	QueueGroupValidation     = "validation-workers"
	QueueGroupPush           = "push-workers"
)

// GetDraftCancelSubject returns the per-draft cancellation broadcast
// subject. Nothing in this repository publishes to it or subscribes to it,
// so rejecting a draft does not stop jobs already in flight for that draft.
func GetDraftCancelSubject(draftID string) string {
	return fmt.Sprintf(SubjectDraftCancel, draftID)
}

// IntakeEnqueueMsg is the payload published after an InboundMessage is
// stored, triggering the attachment-extraction job (§4.3).
type IntakeEnqueueMsg struct {
	TenantID         string `json:"tenant_id"`
	InboundMessageID string `json:"inbound_message_id"`
}

// ExtractionDispatchMsg triggers C4's router for one Document.
type ExtractionDispatchMsg struct {
	TenantID    string `json:"tenant_id"`
	DocumentID  string `json:"document_id"`
	RetryManual bool   `json:"retry_manual"` // explicit operator retry bypasses rule (2), not (3)
}

// CustomerDetectDispatchMsg triggers C8 for one draft.
type CustomerDetectDispatchMsg struct {
	TenantID     string `json:"tenant_id"`
	DraftOrderID string `json:"draft_order_id"`
}

// MatchingDispatchMsg triggers C9 for one draft.
type MatchingDispatchMsg struct {
	TenantID     string `json:"tenant_id"`
	DraftOrderID string `json:"draft_order_id"`
}

// ValidationDispatchMsg triggers C10 + ready-check for one draft.
type ValidationDispatchMsg struct {
	TenantID     string `json:"tenant_id"`
	DraftOrderID string `json:"draft_order_id"`
}

// PushDispatchMsg triggers C12 export + dropzone write for one draft.
type PushDispatchMsg struct {
	TenantID       string `json:"tenant_id"`
	DraftOrderID   string `json:"draft_order_id"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}
