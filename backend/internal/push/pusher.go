package push

import (
	"context"
	"database/sql"
	"encoding/json"
	"path"
	"strings"
	"time"

	"github.com/orderflow/orderflow/internal/coreerr"
	"github.com/orderflow/orderflow/internal/db"
	"github.com/orderflow/orderflow/internal/draftengine"
	"github.com/orderflow/orderflow/internal/providers"
)

// Store is the subset of *db.Queries the pusher needs.
type Store interface {
	GetDraftOrder(ctx context.Context, tenantID, id string) (*db.DraftOrder, error)
	ListDraftOrderLines(ctx context.Context, tenantID, draftID string) ([]db.DraftOrderLine, error)
	GetCustomer(ctx context.Context, tenantID, id string) (*db.Customer, error)
	GetDocument(ctx context.Context, tenantID, id string) (*db.Document, error)
	FindExportByIdempotencyKey(ctx context.Context, tenantID, draftOrderID, idempotencyKey string) (*db.DraftOrderExport, error)
	FindLatestExport(ctx context.Context, tenantID, draftOrderID string) (*db.DraftOrderExport, error)
	CreateExport(ctx context.Context, e db.DraftOrderExport) (*db.DraftOrderExport, error)
	SetERPAckMetadata(ctx context.Context, tenantID, id string, erpOrderID, ackError sql.NullString) error
}

// Pusher drives Approve, Push, and the ack-poll worker.
type Pusher struct {
	store     Store
	engine    *draftengine.Engine
	dropzone  providers.DropzoneWriterPort
	tenantSlug func(ctx context.Context, tenantID string) (string, error)
	now       func() time.Time
}

func New(store Store, engine *draftengine.Engine, dropzone providers.DropzoneWriterPort, tenantSlug func(ctx context.Context, tenantID string) (string, error)) *Pusher {
	return &Pusher{store: store, engine: engine, dropzone: dropzone, tenantSlug: tenantSlug, now: time.Now}
}

// Approve transitions READY -> APPROVED, recording the approver and
// timestamp.
func (p *Pusher) Approve(ctx context.Context, tenantID, draftID, actorID string) (*db.DraftOrder, error) {
	return p.engine.Approve(ctx, tenantID, draftID, actorID)
}

// Push transitions APPROVED -> PUSHING, generates the export (idempotent on
// idempotencyKey), writes it atomically to the dropzone, and transitions to
// PUSHED on success or ERROR on write failure.
func (p *Pusher) Push(ctx context.Context, tenantID, draftID, actorID, idempotencyKey string) (*db.DraftOrderExport, error) {
	draft, err := p.store.GetDraftOrder(ctx, tenantID, draftID)
	if err != nil {
		return nil, err
	}

	if existing, ok, err := p.lookupExisting(ctx, tenantID, draftID, draft.Status, idempotencyKey); err != nil {
		return nil, err
	} else if ok {
		return existing, nil
	}

	if draft.Status != draftengine.StatusApproved && draft.Status != draftengine.StatusError {
		return nil, coreerr.New(coreerr.StateMachineViolation, "draft must be APPROVED or ERROR to push")
	}

	if _, err := p.engine.Transition(ctx, tenantID, draftID, draftengine.StatusPushing, actorID); err != nil {
		return nil, err
	}

	exportJSON, filename, err := p.buildExport(ctx, tenantID, draftID, draft)
	if err != nil {
		p.markError(ctx, tenantID, draftID, actorID)
		return nil, err
	}

	dropzonePath := path.Join("orders", filename)
	if err := p.dropzone.WriteAtomic(ctx, dropzonePath, exportJSON); err != nil {
		p.markError(ctx, tenantID, draftID, actorID)
		return nil, coreerr.Wrap(coreerr.DropzoneWriteError, "atomic dropzone write failed", err)
	}

	var keyCol sql.NullString
	if idempotencyKey != "" {
		keyCol = sql.NullString{String: idempotencyKey, Valid: true}
	}
	export, err := p.store.CreateExport(ctx, db.DraftOrderExport{
		TenantID: tenantID, DraftOrderID: draftID, IdempotencyKey: keyCol,
		ExportFilename: filename, ExportJSON: exportJSON, DropzonePath: dropzonePath,
	})
	if err != nil {
		return nil, err
	}

	if _, err := p.engine.Transition(ctx, tenantID, draftID, draftengine.StatusPushed, actorID); err != nil {
		return nil, err
	}
	return export, nil
}

func (p *Pusher) lookupExisting(ctx context.Context, tenantID, draftID, status, idempotencyKey string) (*db.DraftOrderExport, bool, error) {
	if idempotencyKey != "" {
		existing, err := p.store.FindExportByIdempotencyKey(ctx, tenantID, draftID, idempotencyKey)
		if err == nil {
			return existing, true, nil
		}
		if err != sql.ErrNoRows {
			return nil, false, err
		}
		return nil, false, nil
	}
	if status == draftengine.StatusPushing || status == draftengine.StatusPushed {
		existing, err := p.store.FindLatestExport(ctx, tenantID, draftID)
		if err == nil {
			return existing, true, nil
		}
		if err != sql.ErrNoRows {
			return nil, false, err
		}
	}
	return nil, false, nil
}

func (p *Pusher) buildExport(ctx context.Context, tenantID, draftID string, draft *db.DraftOrder) ([]byte, string, error) {
	lines, err := p.store.ListDraftOrderLines(ctx, tenantID, draftID)
	if err != nil {
		return nil, "", err
	}
	if !draft.CustomerID.Valid {
		return nil, "", coreerr.New(coreerr.StateMachineViolation, "draft has no customer selected")
	}
	customer, err := p.store.GetCustomer(ctx, tenantID, draft.CustomerID.String)
	if err != nil {
		return nil, "", err
	}
	document, err := p.store.GetDocument(ctx, tenantID, draft.SourceDocumentID)
	if err != nil {
		return nil, "", err
	}
	slug, err := p.tenantSlug(ctx, tenantID)
	if err != nil {
		return nil, "", err
	}

	rec := BuildExportRecord(slug, *draft, lines, *customer, *document)
	exportJSON, err := MarshalExport(rec)
	if err != nil {
		return nil, "", err
	}
	filename := ExportFilename(draftID, p.now().UTC().Format("20060102T150405Z"))
	return exportJSON, filename, nil
}

func (p *Pusher) markError(ctx context.Context, tenantID, draftID, actorID string) {
	_, _ = p.engine.Transition(ctx, tenantID, draftID, draftengine.StatusError, actorID)
}

// PollAcks implements the optional acknowledgement worker of spec.md §4.12:
// scans ackPrefix for ack_<name>.json / error_<name>.json files matching
// known exports and attaches erp_order_id/erp_ack_error without a state
// transition (DESIGN.md Open Question #1 — PUSHED stays terminal).
func (p *Pusher) PollAcks(ctx context.Context, tenantID string, ackPrefix string) error {
	names, err := p.dropzone.ListAcks(ctx, ackPrefix)
	if err != nil {
		return err
	}
	for _, name := range names {
		base := path.Base(name)
		switch {
		case strings.HasPrefix(base, "ack_"):
			if err := p.applyAck(ctx, tenantID, name, strings.TrimPrefix(base, "ack_"), false); err != nil {
				return err
			}
		case strings.HasPrefix(base, "error_"):
			if err := p.applyAck(ctx, tenantID, name, strings.TrimPrefix(base, "error_"), true); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Pusher) applyAck(ctx context.Context, tenantID, ackPath, exportFilename string, isError bool) error {
	body, err := p.dropzone.Read(ctx, ackPath)
	if err != nil {
		return err
	}
	draftID, payload := parseAckBody(body)
	if draftID == "" {
		return nil
	}
	if isError {
		if err := p.store.SetERPAckMetadata(ctx, tenantID, draftID, sql.NullString{}, sql.NullString{String: payload, Valid: true}); err != nil {
			return err
		}
	} else {
		if err := p.store.SetERPAckMetadata(ctx, tenantID, draftID, sql.NullString{String: payload, Valid: true}, sql.NullString{}); err != nil {
			return err
		}
	}
	return p.dropzone.Delete(ctx, ackPath)
}

// parseAckBody reads the minimal ack payload shape {"draft_order_id":"...",
// "erp_order_id":"..."} or {"draft_order_id":"...", "error":"..."}; this is
// deliberately tolerant since the ERP side of the contract is out of scope.
func parseAckBody(body []byte) (draftID, payload string) {
	var doc struct {
		DraftOrderID string `json:"draft_order_id"`
		ERPOrderID   string `json:"erp_order_id"`
		Error        string `json:"error"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", ""
	}
	if doc.Error != "" {
		return doc.DraftOrderID, doc.Error
	}
	return doc.DraftOrderID, doc.ERPOrderID
}
