// Package workers hosts the NATS queue-group consumers that drive the
// pipeline stages after intake: extraction, customer detection, matching,
// validation, and push. Each worker follows the teacher's
// internal/workers.SnapshotWorker shape — a struct holding its
// dependencies, a Start() that QueueSubscribes its dispatch subject, and a
// handler method that unmarshals the job payload and logs its way through
// the work instead of propagating errors back to NATS (there is no redelivery
// contract here; a failed job is logged, a failed route also marks the
// extraction run and its Document FAILED, and a failed dropzone write moves
// the draft to ERROR inside push.Pusher).
package workers

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"

	"github.com/orderflow/orderflow/internal/db"
	"github.com/orderflow/orderflow/internal/draftengine"
	"github.com/orderflow/orderflow/internal/extract"
	extractrouter "github.com/orderflow/orderflow/internal/extract/router"
	"github.com/orderflow/orderflow/internal/feedback"
	"github.com/orderflow/orderflow/internal/normalize"
	"github.com/orderflow/orderflow/internal/providers"
	"github.com/orderflow/orderflow/internal/queue"
	"github.com/orderflow/orderflow/internal/tenant"
)

const extractorRouterV1 = "router_v1"

// ExtractionWorker implements C4-C6: it loads a Document, runs it through
// the router, persists the canonical record as a DraftOrder + lines (or a
// fresh run on retry), and dispatches the downstream stages.
type ExtractionWorker struct {
	nats        *queue.Manager
	db          *db.Queries
	objectStore providers.ObjectStorePort
	router      *extractrouter.Router
	feedback    *feedback.Recorder
	engine      *draftengine.Engine
}

func NewExtractionWorker(nats *queue.Manager, queries *db.Queries, objectStore providers.ObjectStorePort, router *extractrouter.Router, recorder *feedback.Recorder, engine *draftengine.Engine) *ExtractionWorker {
	return &ExtractionWorker{nats: nats, db: queries, objectStore: objectStore, router: router, feedback: recorder, engine: engine}
}

func (w *ExtractionWorker) Start() error {
	_, err := w.nats.QueueSubscribe(queue.SubjectExtractionDispatch, queue.QueueGroupExtraction, w.handle)
	if err != nil {
		return fmt.Errorf("subscribe extraction dispatch: %w", err)
	}
	return nil
}

func (w *ExtractionWorker) handle(msg *nats.Msg) {
	var dispatch queue.ExtractionDispatchMsg
	if err := json.Unmarshal(msg.Data, &dispatch); err != nil {
		log.Printf("extraction worker: bad payload: %v", err)
		return
	}
	ctx := tenant.WithID(context.Background(), tenant.ID(dispatch.TenantID))
	if err := w.process(ctx, dispatch); err != nil {
		log.Printf("extraction worker: document %s: %v", dispatch.DocumentID, err)
	}
}

func (w *ExtractionWorker) process(ctx context.Context, dispatch queue.ExtractionDispatchMsg) error {
	doc, err := w.db.GetDocument(ctx, dispatch.TenantID, dispatch.DocumentID)
	if err != nil {
		return fmt.Errorf("get document: %w", err)
	}

	if !dispatch.RetryManual {
		if _, err := w.db.GetLatestSucceededRun(ctx, dispatch.TenantID, dispatch.DocumentID, extractorRouterV1); err == nil {
			log.Printf("extraction worker: document %s already succeeded, skipping", dispatch.DocumentID)
			return nil
		}
	}

	raw, err := w.objectStore.Get(ctx, doc.RawStorageKey)
	if err != nil {
		return fmt.Errorf("read raw document: %w", err)
	}

	run, err := w.db.CreateExtractionRun(ctx, db.ExtractionRun{TenantID: dispatch.TenantID, DocumentID: dispatch.DocumentID, ExtractorID: extractorRouterV1, Status: "PENDING"})
	if err != nil {
		return fmt.Errorf("create extraction run: %w", err)
	}
	if err := w.db.MarkRunRunning(ctx, dispatch.TenantID, run.ID); err != nil {
		return fmt.Errorf("mark run running: %w", err)
	}
	started := time.Now()

	synonymRows, err := w.db.ListUoMSynonyms(ctx, dispatch.TenantID)
	if err != nil {
		return fmt.Errorf("list uom synonyms: %w", err)
	}
	synonyms := make(map[string]string, len(synonymRows))
	for _, s := range synonymRows {
		synonyms[s.Synonym] = s.CanonicalUoM
	}

	var fewShot []providers.FewShotExample
	if doc.LayoutFingerprint.Valid {
		fewShot, err = w.feedback.FewShotExamples(ctx, dispatch.TenantID, doc.LayoutFingerprint.String)
		if err != nil {
			return fmt.Errorf("load few-shot examples: %w", err)
		}
	}

	outcome, routeErr := w.router.Route(ctx, extractrouter.Request{
		TenantID:        dispatch.TenantID,
		DocumentID:      dispatch.DocumentID,
		MediaType:       doc.MediaType,
		Filename:        doc.Filename,
		Raw:             raw,
		TenantSynonyms:  synonyms,
		FewShot:         fewShot,
		RetryManual:     dispatch.RetryManual,
	})
	runtimeMillis := int32(time.Since(started).Milliseconds())

	if routeErr != nil {
		_ = w.db.CompleteRun(ctx, dispatch.TenantID, run.ID, "FAILED", runtimeMillis, nil, nullMsg(routeErr))
		_ = w.db.UpdateDocumentStatus(ctx, dispatch.TenantID, dispatch.DocumentID, "FAILED")
		return fmt.Errorf("route document: %w", routeErr)
	}

	canonical, err := json.Marshal(outcome.Record)
	if err != nil {
		return fmt.Errorf("marshal canonical record: %w", err)
	}
	if err := w.db.CompleteRun(ctx, dispatch.TenantID, run.ID, "SUCCEEDED", runtimeMillis, canonical, nullString("")); err != nil {
		return fmt.Errorf("complete extraction run: %w", err)
	}
	if err := w.db.UpdateDocumentStatus(ctx, dispatch.TenantID, dispatch.DocumentID, "EXTRACTED"); err != nil {
		return fmt.Errorf("mark document extracted: %w", err)
	}

	draft, err := w.upsertDraftOrder(ctx, dispatch.TenantID, dispatch.DocumentID, outcome.Record)
	if err != nil {
		return fmt.Errorf("persist draft order: %w", err)
	}

	if _, err := w.engine.ApplyConfidences(ctx, dispatch.TenantID, draft.ID, floatPtr(outcome.Record.Confidence.Overall), nil, nil); err != nil {
		return fmt.Errorf("apply extraction confidence: %w", err)
	}
	if draft.Status == draftengine.StatusNew {
		if _, err := w.engine.Transition(ctx, dispatch.TenantID, draft.ID, draftengine.StatusExtracted, "system:extraction"); err != nil {
			return fmt.Errorf("transition to extracted: %w", err)
		}
	}

	if err := w.publish(queue.SubjectCustomerDetectDispatch, queue.CustomerDetectDispatchMsg{TenantID: dispatch.TenantID, DraftOrderID: draft.ID}); err != nil {
		return err
	}
	if err := w.publish(queue.SubjectMatchingDispatch, queue.MatchingDispatchMsg{TenantID: dispatch.TenantID, DraftOrderID: draft.ID}); err != nil {
		return err
	}
	return nil
}

// upsertDraftOrder implements the one-DraftOrder-per-Document invariant: a
// retry reuses the existing draft (found via its source_document_id) and
// replaces its lines rather than spawning a sibling.
func (w *ExtractionWorker) upsertDraftOrder(ctx context.Context, tenantID, documentID string, rec extract.Record) (*db.DraftOrder, error) {
	existing, err := w.db.FindDraftOrderByDocument(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}

	shipTo, err := json.Marshal(rec.Order.ShipTo)
	if err != nil {
		return nil, err
	}

	var draft *db.DraftOrder
	if existing != nil {
		draft = existing
	} else {
		draft, err = w.db.CreateDraftOrder(ctx, db.DraftOrder{
			TenantID:         tenantID,
			SourceDocumentID: documentID,
			ExternalOrderNumber: nullString(derefStr(rec.Order.ExternalOrderNumber)),
			Currency:         nullString(derefStr(rec.Order.Currency)),
			ShipToJSON:       shipTo,
		})
		if err != nil {
			return nil, err
		}
	}

	lines := make([]db.DraftOrderLine, 0, len(rec.Lines))
	for _, l := range rec.Lines {
		skuRaw := derefStr(l.CustomerSKURaw)
		lines = append(lines, db.DraftOrderLine{
			TenantID:              tenantID,
			DraftOrderID:          draft.ID,
			LineNo:                l.LineNo,
			CustomerSKURaw:        skuRaw,
			CustomerSKUNormalized: normalize.CustomerSKU(skuRaw),
			ProductDescription:    nullString(derefStr(l.ProductDescription)),
			Qty:                   nullDecimalFromPtr(l.Qty),
			UoM:                   nullString(derefStr(l.UoM)),
			UnitPrice:             nullDecimalFromPtr(l.UnitPrice),
			Currency:              nullString(derefStr(l.Currency)),
			MatchStatus:           "UNMATCHED",
		})
	}
	if _, err := w.db.ReplaceDraftOrderLines(ctx, tenantID, draft.ID, lines); err != nil {
		return nil, err
	}
	return w.db.GetDraftOrder(ctx, tenantID, draft.ID)
}

func (w *ExtractionWorker) publish(subject string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return w.nats.Publish(subject, data)
}

func derefStr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func floatPtr(f float64) *float64 { return &f }

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullDecimalFromPtr(f *float64) decimal.NullDecimal {
	if f == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: decimal.NewFromFloat(*f), Valid: true}
}

func nullMsg(err error) sql.NullString {
	if err == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: err.Error(), Valid: true}
}
