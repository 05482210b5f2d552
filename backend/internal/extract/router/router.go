// Package router implements C4: the deterministic extractor dispatch,
// trigger rule, and fail-closed budget gate that decides whether a Document
// is handled by a rule extractor alone or escalated to the LLM extractor.
package router

import (
	"context"
	"mime"
	"strings"

	"github.com/orderflow/orderflow/internal/coreerr"
	"github.com/orderflow/orderflow/internal/extract"
	"github.com/orderflow/orderflow/internal/extract/llm"
	"github.com/orderflow/orderflow/internal/extract/rules"
	"github.com/orderflow/orderflow/internal/providers"
)

// Limits configures the fail-closed budget gate (spec.md §4.4), sourced
// from config.Config.
type Limits struct {
	MaxPageCount     int
	MaxTokensPerCall int
	DailyBudgetUSD   float64
}

// BudgetChecker reports whether the tenant has daily cost budget left;
// implemented by aicache.Cache in production, faked in tests.
type BudgetChecker interface {
	RemainingDailyBudgetUSD(ctx context.Context, tenantID string) (float64, error)
}

// Router ties the rule extractors and the LLM extractor together behind one
// Route call.
type Router struct {
	llm     *llm.Extractor
	budget  BudgetChecker
	limits  Limits
}

func New(llmExtractor *llm.Extractor, budget BudgetChecker, limits Limits) *Router {
	return &Router{llm: llmExtractor, budget: budget, limits: limits}
}

// Request is everything Route needs about one Document.
type Request struct {
	TenantID        string
	DocumentID      string
	MediaType       string // MIME type as stored on the Document
	Filename        string
	Raw             []byte
	TenantSynonyms  map[string]string
	FewShot         []providers.FewShotExample
	RetryManual     bool // operator-triggered retry bypasses the trigger rule, not the budget gate
	RenderPageImages func(ctx context.Context, raw []byte) ([][]byte, error) // lazy vision renderer
}

// Outcome reports which extractor(s) ran and the final record, along with
// whatever warnings/issues the caller should attach.
type Outcome struct {
	Record        extract.Record
	UsedLLM       bool
	UsedVision    bool
	RuleRecord    *extract.Record // set for PDFs whose rule extraction succeeded; nil otherwise and for CSV/XLSX
	Warnings      []extract.Warning
}

// Route implements the C4 decision tree.
func (r *Router) Route(ctx context.Context, req Request) (Outcome, error) {
	format := classifyFormat(req.MediaType, req.Filename)

	switch format {
	case formatCSV:
		rec, err := rules.ExtractCSV(req.Raw, req.TenantSynonyms)
		if err != nil {
			return Outcome{}, coreerr.Wrap(coreerr.InputRejected, "csv extraction failed", err)
		}
		return Outcome{Record: rec}, nil

	case formatXLSX:
		rec, err := rules.ExtractXLSX(req.Raw, req.TenantSynonyms)
		if err != nil {
			return Outcome{}, coreerr.Wrap(coreerr.InputRejected, "xlsx extraction failed", err)
		}
		return Outcome{Record: rec}, nil

	case formatPDF:
		return r.routePDF(ctx, req)

	default:
		return Outcome{}, coreerr.New(coreerr.InputRejected, "unsupported media type: "+req.MediaType)
	}
}

func (r *Router) routePDF(ctx context.Context, req Request) (Outcome, error) {
	pre, err := extract.PreAnalyzePDF(req.Raw)
	if err != nil {
		return Outcome{}, coreerr.Wrap(coreerr.InputRejected, "pdf pre-analysis failed", err)
	}

	ruleRec, ruleErr := rules.ExtractPDF(req.Raw)
	var ruleRecPtr *extract.Record
	if ruleErr == nil {
		ruleRecPtr = &ruleRec
	}

	escalate := req.RetryManual || triggerRule(pre, ruleErr, ruleRecPtr)
	if !escalate {
		if ruleErr != nil {
			return Outcome{}, coreerr.Wrap(coreerr.InputRejected, "pdf rule extraction failed", ruleErr)
		}
		return Outcome{Record: ruleRec, RuleRecord: ruleRecPtr}, nil
	}

	useVision := pre.TextCoverageRatio < 0.15 || pre.TextCharsTotal < 500
	llmRec, usedVision, llmErr := r.invokeLLM(ctx, req, pre, useVision)
	if llmErr != nil {
		// LLM attempt failed: keep the rule result if any, attach a warning;
		// the caller is responsible for turning this into a stored issue.
		warning := extract.Warning{Code: "LLM_OUTPUT_INVALID", Message: llmErr.Error()}
		if ruleRecPtr != nil {
			out := *ruleRecPtr
			out.Warnings = append(out.Warnings, warning)
			return Outcome{Record: out, RuleRecord: ruleRecPtr, Warnings: []extract.Warning{warning}}, nil
		}
		// Both failed: zero-line record, caller attaches LOW_CONFIDENCE_EXTRACTION.
		return Outcome{
			Record:   extract.Record{ExtractorVersion: "none", Warnings: []extract.Warning{warning}},
			Warnings: []extract.Warning{warning},
		}, nil
	}

	return Outcome{Record: llmRec, UsedLLM: true, UsedVision: usedVision, RuleRecord: ruleRecPtr}, nil
}

// triggerRule implements the escalation predicate of spec.md §4.4 step 2.
func triggerRule(pre extract.PreAnalysis, ruleErr error, ruleRec *extract.Record) bool {
	if pre.TextCoverageRatio < 0.15 || pre.TextCharsTotal < 500 {
		return true
	}
	if ruleErr != nil || ruleRec == nil {
		return true
	}
	if len(ruleRec.Lines) == 0 || ruleRec.Confidence.Overall < 0.60 {
		return true
	}
	missing := 0
	for _, l := range ruleRec.Lines {
		if l.CustomerSKURaw == nil && l.ProductDescription == nil {
			missing++
		}
	}
	if len(ruleRec.Lines) > 0 && missing*2 > len(ruleRec.Lines) {
		return true
	}
	return false
}

// invokeLLM applies the fail-closed budget gate (step 3) before dispatching
// to the text or vision template.
func (r *Router) invokeLLM(ctx context.Context, req Request, pre extract.PreAnalysis, useVision bool) (extract.Record, bool, error) {
	if pre.PageCount > r.limits.MaxPageCount {
		return extract.Record{}, useVision, coreerr.New(coreerr.BudgetExceeded, "page count exceeds configured maximum")
	}

	estimatedTokens := llm.EstimateTextTokens(pre.RawText)
	if useVision {
		estimatedTokens = llm.EstimateVisionTokens(pre.PageCount)
	}
	if estimatedTokens > r.limits.MaxTokensPerCall {
		return extract.Record{}, useVision, coreerr.New(coreerr.BudgetExceeded, "estimated tokens exceed per-call cap")
	}

	remaining, err := r.budget.RemainingDailyBudgetUSD(ctx, req.TenantID)
	if err != nil {
		return extract.Record{}, useVision, coreerr.Wrap(coreerr.TransientStorage, "budget lookup failed", err)
	}
	if remaining <= 0 {
		return extract.Record{}, useVision, coreerr.New(coreerr.BudgetExceeded, "daily AI cost budget exhausted")
	}

	in := llm.Input{TenantID: req.TenantID, DocumentID: req.DocumentID, SourceText: pre.RawText, PageCount: pre.PageCount, FewShot: req.FewShot}

	if !useVision {
		res, err := r.llm.ExtractText(ctx, in)
		if err != nil {
			return extract.Record{}, false, err
		}
		return res.Record, false, nil
	}

	if req.RenderPageImages == nil {
		return extract.Record{}, true, coreerr.New(coreerr.InputRejected, "vision escalation requires page rendering, none configured")
	}
	images, err := req.RenderPageImages(ctx, req.Raw)
	if err != nil {
		return extract.Record{}, true, coreerr.Wrap(coreerr.TransientStorage, "page rendering failed", err)
	}
	res, err := r.llm.ExtractVision(ctx, in, images)
	if err != nil {
		return extract.Record{}, true, err
	}
	return res.Record, true, nil
}

type docFormat int

const (
	formatUnknown docFormat = iota
	formatCSV
	formatXLSX
	formatPDF
)

func classifyFormat(mediaType, filename string) docFormat {
	mt, _, _ := mime.ParseMediaType(mediaType)
	mt = strings.ToLower(mt)
	lowerName := strings.ToLower(filename)

	switch {
	case mt == "text/csv" || strings.HasSuffix(lowerName, ".csv"):
		return formatCSV
	case mt == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" || strings.HasSuffix(lowerName, ".xlsx"):
		return formatXLSX
	case mt == "application/pdf" || strings.HasSuffix(lowerName, ".pdf"):
		return formatPDF
	default:
		return formatUnknown
	}
}
