// Package matching implements C9: combining a confirmed-mapping lookup,
// trigram similarity, and vector similarity into one ranked candidate list
// per DraftOrderLine, then applying the auto-apply decision gate.
package matching

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/orderflow/orderflow/internal/db"
	"github.com/orderflow/orderflow/internal/providers"
)

const (
	AutoApplyThreshold = 0.92
	AutoApplyGap       = 0.10
	LowConfidenceFloor = 0.75

	// PriceTolerancePct is an Open Question the spec leaves to
	// implementation policy (DESIGN.md): 5% around the applicable
	// CustomerPrice counts as "within tolerance"; a deviation past 2x that
	// (10%) is a severe mismatch.
	PriceTolerancePct = 0.05

	topNPerSource = 30
	topNRetained  = 5
)

// Store is the subset of *db.Queries the matcher needs.
type Store interface {
	FindActiveMapping(ctx context.Context, tenantID, customerID, normalizedSKU string) (*db.SkuMapping, error)
	ListActiveProducts(ctx context.Context, tenantID string) ([]db.Product, error)
	ListProductEmbeddings(ctx context.Context, tenantID, model string) ([]db.ProductEmbedding, error)
	FindApplicablePrice(ctx context.Context, tenantID, customerID, internalSKU string, qty float64, at time.Time) (*db.CustomerPrice, error)
}

// Line is the subset of DraftOrderLine the matcher needs.
type Line struct {
	CustomerSKURaw        string
	CustomerSKUNormalized string
	ProductDescription    string
	Qty                   decimal.NullDecimal
	UoM                   string
	UnitPrice             decimal.NullDecimal
}

// CandidateScore is one scored internal SKU candidate kept for the match
// debug record.
type CandidateScore struct {
	InternalSKU string  `json:"internal_sku"`
	Confidence  float64 `json:"confidence"`
	Method      string  `json:"method"` // sku_mapping | trigram | embedding
}

// MatchResult is what DecideAutoApply returns for one line.
type MatchResult struct {
	TopCandidates []CandidateScore
	AutoApply     bool
	LowConfidence bool
}

// Matcher holds the embedding provider used to compute a line's query
// vector; Store supplies the candidate universe.
type Matcher struct {
	embedder providers.EmbeddingProviderPort
}

func New(embedder providers.EmbeddingProviderPort) *Matcher {
	return &Matcher{embedder: embedder}
}

// rawScore accumulates S_map/S_tri/S_emb for one candidate internal SKU.
type rawScore struct {
	internalSKU string
	sMap        float64
	sTri        float64
	sEmb        float64
	method      string
}

// PriceLookup resolves the CustomerPrice applicable to one candidate SKU;
// nil/false means no applicable price was found (penalty does not apply).
type PriceLookup func(internalSKU string) (*db.CustomerPrice, bool)

// BuildCandidates computes the combined, penalty-adjusted ranking for one
// line against the given product/mapping/embedding universe. It is a pure
// function so tests can supply products and embeddings directly without a
// Store or database.
func BuildCandidates(line Line, mapping *db.SkuMapping, products []db.Product, lineEmbedding []float32, productEmbeddings map[string][]float32, priceLookup PriceLookup) []CandidateScore {
	scores := map[string]*rawScore{}
	ensure := func(sku string) *rawScore {
		if s, ok := scores[sku]; ok {
			return s
		}
		s := &rawScore{internalSKU: sku}
		scores[sku] = s
		return s
	}

	if mapping != nil {
		s := ensure(mapping.InternalSKU)
		switch mapping.Status {
		case "CONFIRMED":
			s.sMap = 1.00
		case "SUGGESTED":
			s.sMap = 0.92
		}
		s.method = "sku_mapping"
	}

	applyTrigramHits(line, products, ensure)
	applyEmbeddingHits(lineEmbedding, productEmbeddings, ensure)

	productBySKU := make(map[string]db.Product, len(products))
	for _, p := range products {
		productBySKU[p.InternalSKU] = p
	}

	var out []CandidateScore
	for sku, s := range scores {
		base := 0.99 * s.sMap
		if combo := 0.62*s.sTri + 0.38*s.sEmb; combo > base {
			base = combo
		}
		pUoM := uomPenalty(line.UoM, productBySKU[sku].BaseUoM)
		pPrice := pricePenalty(line, sku, priceLookup)
		confidence := clamp01(base * pUoM * pPrice)
		out = append(out, CandidateScore{InternalSKU: sku, Confidence: confidence, Method: s.method})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].InternalSKU < out[j].InternalSKU // deterministic tie-break
	})
	if len(out) > topNRetained {
		out = out[:topNRetained]
	}
	return out
}

func applyTrigramHits(line Line, products []db.Product, ensure func(string) *rawScore) {
	type hit struct {
		sku string
		sim float64
	}
	var hits []hit
	for _, p := range products {
		simSKU := TrigramSimilarity(line.CustomerSKUNormalized, p.InternalSKU)
		desc := p.DisplayName
		if p.Description.Valid {
			desc += " " + p.Description.String
		}
		simDesc := TrigramSimilarity(line.ProductDescription, desc)
		sTri := simSKU
		if weighted := 0.7 * simDesc; weighted > sTri {
			sTri = weighted
		}
		hits = append(hits, hit{sku: p.InternalSKU, sim: sTri})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].sim > hits[j].sim })
	if len(hits) > topNPerSource {
		hits = hits[:topNPerSource]
	}
	for _, h := range hits {
		s := ensure(h.sku)
		if h.sim > s.sTri {
			s.sTri = h.sim
		}
		if s.method == "" {
			s.method = "trigram"
		}
	}
}

func applyEmbeddingHits(lineEmbedding []float32, productEmbeddings map[string][]float32, ensure func(string) *rawScore) {
	if lineEmbedding == nil {
		return
	}
	type hit struct {
		sku   string
		score float64
	}
	var hits []hit
	for sku, vec := range productEmbeddings {
		hits = append(hits, hit{sku: sku, score: EmbeddingScore(CosineSimilarity(lineEmbedding, vec))})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > topNPerSource {
		hits = hits[:topNPerSource]
	}
	for _, h := range hits {
		s := ensure(h.sku)
		if h.score > s.sEmb {
			s.sEmb = h.score
		}
		if s.method == "" {
			s.method = "embedding"
		}
	}
}

// DecideAutoApply applies the auto-apply gate over a ranked candidate list
// (already sorted by Confidence descending).
func DecideAutoApply(candidates []CandidateScore) MatchResult {
	res := MatchResult{TopCandidates: candidates}
	if len(candidates) == 0 {
		return res
	}
	if candidates[0].Confidence < LowConfidenceFloor {
		res.LowConfidence = true
	}
	if len(candidates) == 1 {
		res.AutoApply = candidates[0].Confidence >= AutoApplyThreshold
		return res
	}
	top1, top2 := candidates[0].Confidence, candidates[1].Confidence
	res.AutoApply = top1 >= AutoApplyThreshold && (top1-top2) >= AutoApplyGap
	return res
}

func uomPenalty(lineUoM, productUoM string) float64 {
	if lineUoM == "" || productUoM == "" {
		return 0.9
	}
	if lineUoM == productUoM {
		return 1.0
	}
	// A real deployment would consult the product's uom_conversion map for
	// compatible-but-different units; without that data here, any mismatch
	// against a known product UoM is treated as incompatible.
	return 0.2
}

func pricePenalty(line Line, internalSKU string, priceLookup PriceLookup) float64 {
	if priceLookup == nil || !line.UnitPrice.Valid {
		return 1.0
	}
	price, ok := priceLookup(internalSKU)
	if !ok || price == nil {
		return 1.0
	}
	applicable := price.UnitPrice
	if applicable.IsZero() {
		return 1.0
	}
	actual := line.UnitPrice.Decimal
	diff := actual.Sub(applicable).Abs().Div(applicable)
	tolerance := decimal.NewFromFloat(PriceTolerancePct)
	switch {
	case diff.LessThanOrEqual(tolerance):
		return 1.0
	case diff.GreaterThan(tolerance.Mul(decimal.NewFromInt(2))):
		return 0.65
	default:
		return 0.85
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// QueryEmbeddingText builds the canonical query-embedding text for a line,
// per spec.md §4.9: "CUSTOMER_SKU: {raw}\nDESC: {desc}\nUOM: {uom}\n".
func QueryEmbeddingText(line Line) string {
	return "CUSTOMER_SKU: " + line.CustomerSKURaw + "\nDESC: " + line.ProductDescription + "\nUOM: " + line.UoM + "\n"
}

// ProductEmbeddingText builds the canonical product-embedding text, per
// spec.md §4.9: canonical over SKU, name, description, and UoM.
func ProductEmbeddingText(p db.Product) string {
	desc := ""
	if p.Description.Valid {
		desc = p.Description.String
	}
	return "SKU: " + p.InternalSKU + "\nNAME: " + p.DisplayName + "\nDESC: " + desc + "\nBASE_UOM: " + p.BaseUoM + "\n"
}
