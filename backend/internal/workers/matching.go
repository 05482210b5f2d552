package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/orderflow/orderflow/internal/db"
	"github.com/orderflow/orderflow/internal/draftengine"
	"github.com/orderflow/orderflow/internal/matching"
	"github.com/orderflow/orderflow/internal/providers"
	"github.com/orderflow/orderflow/internal/queue"
	"github.com/orderflow/orderflow/internal/tenant"
)

// MatchingWorker implements C9: ranking internal SKU candidates for every
// line of a draft and applying the auto-apply decision gate.
type MatchingWorker struct {
	nats           *queue.Manager
	db             *db.Queries
	embedder       providers.EmbeddingProviderPort
	embeddingModel string
	matcher        *matching.Matcher
	engine         *draftengine.Engine
}

func NewMatchingWorker(nats *queue.Manager, queries *db.Queries, embedder providers.EmbeddingProviderPort, embeddingModel string, matcher *matching.Matcher, engine *draftengine.Engine) *MatchingWorker {
	return &MatchingWorker{nats: nats, db: queries, embedder: embedder, embeddingModel: embeddingModel, matcher: matcher, engine: engine}
}

func (w *MatchingWorker) Start() error {
	_, err := w.nats.QueueSubscribe(queue.SubjectMatchingDispatch, queue.QueueGroupMatching, w.handle)
	if err != nil {
		return fmt.Errorf("subscribe matching dispatch: %w", err)
	}
	return nil
}

func (w *MatchingWorker) handle(msg *nats.Msg) {
	var dispatch queue.MatchingDispatchMsg
	if err := json.Unmarshal(msg.Data, &dispatch); err != nil {
		log.Printf("matching worker: bad payload: %v", err)
		return
	}
	ctx := tenant.WithID(context.Background(), tenant.ID(dispatch.TenantID))
	if err := w.process(ctx, dispatch); err != nil {
		log.Printf("matching worker: draft %s: %v", dispatch.DraftOrderID, err)
	}
}

func (w *MatchingWorker) process(ctx context.Context, dispatch queue.MatchingDispatchMsg) error {
	draft, err := w.db.GetDraftOrder(ctx, dispatch.TenantID, dispatch.DraftOrderID)
	if err != nil {
		return fmt.Errorf("get draft order: %w", err)
	}
	if !draft.CustomerID.Valid {
		// Matching needs a customer to resolve confirmed mappings and prices;
		// the ready-check gate already reports "customer not selected" as a
		// blocking reason, so there is nothing more to do until C8 selects one.
		return nil
	}

	lines, err := w.db.ListDraftOrderLines(ctx, dispatch.TenantID, dispatch.DraftOrderID)
	if err != nil {
		return fmt.Errorf("list draft order lines: %w", err)
	}
	products, err := w.db.ListActiveProducts(ctx, dispatch.TenantID)
	if err != nil {
		return fmt.Errorf("list active products: %w", err)
	}
	productEmbeddings, err := w.productEmbeddingsBySKU(ctx, dispatch.TenantID, products)
	if err != nil {
		return fmt.Errorf("load product embeddings: %w", err)
	}

	var worstConfidence *float64
	for _, l := range lines {
		result, err := w.matchLine(ctx, dispatch.TenantID, draft.CustomerID.String, l, products, productEmbeddings)
		if err != nil {
			return fmt.Errorf("match line %s: %w", l.ID, err)
		}
		if len(result.TopCandidates) == 0 {
			continue
		}
		top := result.TopCandidates[0]
		status := "SUGGESTED"
		if result.AutoApply {
			status = "MATCHED"
		}
		debug, err := json.Marshal(result.TopCandidates)
		if err != nil {
			return fmt.Errorf("marshal match debug: %w", err)
		}
		if err := w.db.UpdateDraftOrderLineMatch(ctx, dispatch.TenantID, l.ID, top.InternalSKU, status, top.Method, top.Confidence, debug); err != nil {
			return fmt.Errorf("update line match: %w", err)
		}
		if worstConfidence == nil || top.Confidence < *worstConfidence {
			c := top.Confidence
			worstConfidence = &c
		}
	}

	if worstConfidence != nil {
		if _, err := w.engine.ApplyConfidences(ctx, dispatch.TenantID, dispatch.DraftOrderID, nil, nil, worstConfidence); err != nil {
			return fmt.Errorf("apply matching confidence: %w", err)
		}
	}

	if err := w.publish(queue.SubjectValidationDispatch, queue.ValidationDispatchMsg{TenantID: dispatch.TenantID, DraftOrderID: dispatch.DraftOrderID}); err != nil {
		return err
	}
	return nil
}

func (w *MatchingWorker) matchLine(ctx context.Context, tenantID, customerID string, l db.DraftOrderLine, products []db.Product, productEmbeddings map[string][]float32) (matching.MatchResult, error) {
	line := matching.Line{
		CustomerSKURaw:        l.CustomerSKURaw,
		CustomerSKUNormalized: l.CustomerSKUNormalized,
		Qty:                   l.Qty,
		UnitPrice:             l.UnitPrice,
	}
	if l.ProductDescription.Valid {
		line.ProductDescription = l.ProductDescription.String
	}
	if l.UoM.Valid {
		line.UoM = l.UoM.String
	}

	mapping, err := w.db.FindActiveMapping(ctx, tenantID, customerID, l.CustomerSKUNormalized)
	if err != nil {
		mapping = nil
	}

	var lineEmbedding []float32
	if w.embedder != nil {
		vec, err := w.embedder.Embed(ctx, matching.QueryEmbeddingText(line))
		if err == nil {
			lineEmbedding = vec
		}
	}

	priceLookup := func(internalSKU string) (*db.CustomerPrice, bool) {
		qty := 0.0
		if l.Qty.Valid {
			qty, _ = l.Qty.Decimal.Float64()
		}
		price, err := w.db.FindApplicablePrice(ctx, tenantID, customerID, internalSKU, qty, time.Now())
		if err != nil || price == nil {
			return nil, false
		}
		return price, true
	}

	candidates := matching.BuildCandidates(line, mapping, products, lineEmbedding, productEmbeddings, priceLookup)
	return matching.DecideAutoApply(candidates), nil
}

func (w *MatchingWorker) productEmbeddingsBySKU(ctx context.Context, tenantID string, products []db.Product) (map[string][]float32, error) {
	if w.embedder == nil {
		return nil, nil
	}
	embeddings, err := w.db.ListProductEmbeddings(ctx, tenantID, w.embeddingModel)
	if err != nil {
		return nil, err
	}
	byProductID := make(map[string]string, len(products))
	for _, p := range products {
		byProductID[p.ID] = p.InternalSKU
	}
	out := make(map[string][]float32, len(embeddings))
	for _, e := range embeddings {
		if sku, ok := byProductID[e.ProductID]; ok {
			out[sku] = e.Vector
		}
	}
	return out, nil
}

func (w *MatchingWorker) publish(subject string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return w.nats.Publish(subject, data)
}
