package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/orderflow/orderflow/internal/customerdetect"
	"github.com/orderflow/orderflow/internal/db"
	"github.com/orderflow/orderflow/internal/draftengine"
	"github.com/orderflow/orderflow/internal/extract"
	"github.com/orderflow/orderflow/internal/providers"
	"github.com/orderflow/orderflow/internal/queue"
	"github.com/orderflow/orderflow/internal/tenant"
)

// CustomerDetectWorker implements C8: scoring a draft's customer candidates
// and auto-selecting when the gate clears, or leaving the top candidates for
// operator review otherwise.
type CustomerDetectWorker struct {
	nats        *queue.Manager
	db          *db.Queries
	objectStore providers.ObjectStorePort
	detector    *customerdetect.Detector
	engine      *draftengine.Engine
}

func NewCustomerDetectWorker(nats *queue.Manager, queries *db.Queries, objectStore providers.ObjectStorePort, detector *customerdetect.Detector, engine *draftengine.Engine) *CustomerDetectWorker {
	return &CustomerDetectWorker{nats: nats, db: queries, objectStore: objectStore, detector: detector, engine: engine}
}

func (w *CustomerDetectWorker) Start() error {
	_, err := w.nats.QueueSubscribe(queue.SubjectCustomerDetectDispatch, queue.QueueGroupCustomerDetect, w.handle)
	if err != nil {
		return fmt.Errorf("subscribe customerdetect dispatch: %w", err)
	}
	return nil
}

func (w *CustomerDetectWorker) handle(msg *nats.Msg) {
	var dispatch queue.CustomerDetectDispatchMsg
	if err := json.Unmarshal(msg.Data, &dispatch); err != nil {
		log.Printf("customerdetect worker: bad payload: %v", err)
		return
	}
	ctx := tenant.WithID(context.Background(), tenant.ID(dispatch.TenantID))
	if err := w.process(ctx, dispatch); err != nil {
		log.Printf("customerdetect worker: draft %s: %v", dispatch.DraftOrderID, err)
	}
}

func (w *CustomerDetectWorker) process(ctx context.Context, dispatch queue.CustomerDetectDispatchMsg) error {
	draft, err := w.db.GetDraftOrder(ctx, dispatch.TenantID, dispatch.DraftOrderID)
	if err != nil {
		return fmt.Errorf("get draft order: %w", err)
	}

	senderEmail, documentText, hint, err := w.loadDetectionInput(ctx, dispatch.TenantID, draft)
	if err != nil {
		return fmt.Errorf("load detection input: %w", err)
	}

	result, err := w.detector.Detect(ctx, dispatch.TenantID, customerdetect.Input{
		SenderEmail:  senderEmail,
		DocumentText: documentText,
		LLMHint:      hint,
	})
	if err != nil {
		return fmt.Errorf("detect customer: %w", err)
	}

	candidates := make([]db.CustomerDetectionCandidate, 0, len(result.Candidates))
	for _, c := range result.Candidates {
		signalsJSON, err := customerdetect.MarshalSignals(c.Signals)
		if err != nil {
			return fmt.Errorf("marshal signals: %w", err)
		}
		status := "CANDIDATE"
		if result.AutoSelected != nil && c.CustomerID == result.AutoSelected.CustomerID {
			status = "SELECTED"
		}
		candidates = append(candidates, db.CustomerDetectionCandidate{
			TenantID:     dispatch.TenantID,
			DraftOrderID: dispatch.DraftOrderID,
			CustomerID:   c.CustomerID,
			Score:        c.Score,
			SignalsJSON:  signalsJSON,
			Status:       status,
		})
	}
	if err := w.db.ReplaceCustomerCandidates(ctx, dispatch.TenantID, dispatch.DraftOrderID, candidates); err != nil {
		return fmt.Errorf("replace customer candidates: %w", err)
	}

	if result.AutoSelected != nil {
		if err := w.db.SelectCustomerCandidate(ctx, dispatch.TenantID, dispatch.DraftOrderID, result.AutoSelected.CustomerID); err != nil {
			return fmt.Errorf("select customer candidate: %w", err)
		}
		if _, err := w.engine.ApplyConfidences(ctx, dispatch.TenantID, dispatch.DraftOrderID, nil, &result.AutoSelected.Score, nil); err != nil {
			return fmt.Errorf("apply customer confidence: %w", err)
		}
	}

	if _, _, err := w.engine.RunReadyCheck(ctx, dispatch.TenantID, dispatch.DraftOrderID); err != nil {
		return fmt.Errorf("run ready check: %w", err)
	}
	return nil
}

// loadDetectionInput gathers the sender address (from the inbound message,
// when the draft's source document arrived by email), the document's raw
// text (for the S4/S5 regex and fuzzy-name signals), and any LLM-reported
// customer hint carried in the latest successful extraction run's canonical
// record (S6).
func (w *CustomerDetectWorker) loadDetectionInput(ctx context.Context, tenantID string, draft *db.DraftOrder) (string, string, *customerdetect.Hint, error) {
	document, err := w.db.GetDocument(ctx, tenantID, draft.SourceDocumentID)
	if err != nil {
		return "", "", nil, fmt.Errorf("get document: %w", err)
	}

	var senderEmail string
	if document.InboundMessageID.Valid {
		inbound, err := w.db.GetInboundMessage(ctx, tenantID, document.InboundMessageID.String)
		if err == nil && inbound.SenderAddress.Valid {
			senderEmail = inbound.SenderAddress.String
		}
	}

	documentText := w.rawDocumentText(ctx, document)

	run, err := w.db.GetLatestSucceededRun(ctx, tenantID, draft.SourceDocumentID, extractorRouterV1)
	var hint *customerdetect.Hint
	if err == nil && run.CanonicalRecord != nil {
		var rec extract.Record
		if jsonErr := json.Unmarshal(run.CanonicalRecord, &rec); jsonErr == nil {
			hint = hintFromCustomerHint(rec.Order.CustomerHint)
		}
	}
	return senderEmail, documentText, hint, nil
}

func (w *CustomerDetectWorker) rawDocumentText(ctx context.Context, document *db.Document) string {
	raw, err := w.objectStore.Get(ctx, document.RawStorageKey)
	if err != nil {
		return ""
	}
	lowerType := strings.ToLower(document.MediaType)
	switch {
	case strings.Contains(lowerType, "pdf"):
		pre, err := extract.PreAnalyzePDF(raw)
		if err != nil {
			return ""
		}
		return pre.RawText
	case strings.Contains(lowerType, "csv") || strings.Contains(lowerType, "text"):
		return string(raw)
	default:
		return ""
	}
}

func hintFromCustomerHint(h extract.CustomerHint) *customerdetect.Hint {
	if h.Email == nil && h.ERPCustomerNumber == nil && h.Name == nil {
		return nil
	}
	return &customerdetect.Hint{
		ExactEmail:  derefStr(h.Email),
		ERPNumber:   derefStr(h.ERPCustomerNumber),
		CompanyName: derefStr(h.Name),
	}
}
