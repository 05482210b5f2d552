// Package aicache implements C7: canonicalization + hashing of LLM/embedding
// inputs, the idempotent cache lookup, and the daily per-tenant cost budget
// gate. Every provider invocation in the pipeline routes through Call.
package aicache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/orderflow/orderflow/internal/coreerr"
	"github.com/orderflow/orderflow/internal/db"
)

const canonicalTruncateLen = 1000

// Store is the subset of *db.Queries this package needs.
type Store interface {
	FindSucceededCallByHash(ctx context.Context, tenantID, callType, inputHash string) (*db.AICallLog, error)
	InsertCallLog(ctx context.Context, l db.AICallLog) (*db.AICallLog, error)
	SumCostMicrosToday(ctx context.Context, tenantID string) (int64, error)
}

// Cache wraps a Store with canonicalization, cache-lookup-then-call, and
// budget enforcement.
type Cache struct {
	store           Store
	storePrompts    bool // tenant opt-in; §4.7
	dailyBudgetUSD  float64
}

func New(store Store, storePrompts bool, dailyBudgetUSD float64) *Cache {
	return &Cache{store: store, storePrompts: storePrompts, dailyBudgetUSD: dailyBudgetUSD}
}

// CanonicalHash computes the SHA-256 input-hash over a (template-id,
// truncated-prompt) tuple, normalizing whitespace first. It never hashes raw
// tenant-specific PII preludes — callers must strip those before calling,
// templateID is the stable part of the hash key (§4.7).
func CanonicalHash(templateID, prompt string) string {
	normalized := strings.Join(strings.Fields(prompt), " ")
	if len(normalized) > canonicalTruncateLen {
		normalized = normalized[:canonicalTruncateLen]
	}
	sum := sha256.Sum256([]byte(templateID + "\x00" + normalized))
	return hex.EncodeToString(sum[:])
}

// CallResult is what Call returns to its caller: the provider output plus
// whether it was served from cache.
type CallResult struct {
	Cached       bool
	Provider     string
	Model        string
	PromptTokens int
	OutputTokens int
	CostMicros   int64
}

// ProviderOutput is the shape a provider invocation produces; Call persists
// it as an AICallLog row on success. A failed invocation is still logged, as
// a FAILED row, but is never served from the cache.
type ProviderOutput struct {
	RawOutput    string
	Provider     string
	Model        string
	PromptTokens int
	OutputTokens int
	Latency      time.Duration
	CostMicros   int64
}

// Call looks up (tenant, callType, inputHash) first; on a cache hit it
// returns the cached RawOutput without invoking fn. On a miss it checks the
// daily budget, invokes fn, and persists the result (success or failure).
func (c *Cache) Call(ctx context.Context, tenantID, callType, inputHash string, fn func(ctx context.Context) (ProviderOutput, error)) (string, CallResult, error) {
	cached, err := c.store.FindSucceededCallByHash(ctx, tenantID, callType, inputHash)
	if err == nil {
		return rawOutputPlaceholder(cached), CallResult{
			Cached:       true,
			Provider:     cached.Provider,
			Model:        cached.Model,
			PromptTokens: cached.PromptTokens,
			OutputTokens: cached.OutputTokens,
			CostMicros:   cached.CostMicros,
		}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", CallResult{}, err
	}

	if err := c.checkBudget(ctx, tenantID); err != nil {
		return "", CallResult{}, err
	}

	out, callErr := fn(ctx)
	outcome := "SUCCEEDED"
	if callErr != nil {
		outcome = "FAILED"
	}

	log := db.AICallLog{
		TenantID:     tenantID,
		CallType:     callType,
		InputHash:    inputHash,
		Provider:     out.Provider,
		Model:        out.Model,
		PromptTokens: out.PromptTokens,
		OutputTokens: out.OutputTokens,
		LatencyMS:    int(out.Latency.Milliseconds()),
		CostMicros:   out.CostMicros,
		Outcome:      outcome,
	}
	if c.storePrompts && callErr == nil {
		log.PromptStored = sql.NullString{String: out.RawOutput, Valid: true}
	}
	if _, insertErr := c.store.InsertCallLog(ctx, log); insertErr != nil {
		return "", CallResult{}, fmt.Errorf("persist ai_call_log: %w", insertErr)
	}

	if callErr != nil {
		return "", CallResult{}, callErr
	}
	return out.RawOutput, CallResult{
		Cached:       false,
		Provider:     out.Provider,
		Model:        out.Model,
		PromptTokens: out.PromptTokens,
		OutputTokens: out.OutputTokens,
		CostMicros:   out.CostMicros,
	}, nil
}

// rawOutputPlaceholder exists because AICallLog only persists PromptStored
// when a tenant opts into raw-content retention; a cache hit on a tenant
// that never opted in has no raw text to replay, only the structured
// counters. Callers that need the literal parsed record on a cache hit must
// instead cache the canonical record elsewhere (ExtractionRun); aicache only
// guarantees idempotence of the provider call itself, per §4.7.
func rawOutputPlaceholder(l *db.AICallLog) string {
	if l.PromptStored.Valid {
		return l.PromptStored.String
	}
	return ""
}

// RemainingDailyBudgetUSD reports how much of the tenant's daily AI cost
// budget is left; a non-positive budget configuration means unlimited.
// Callers outside this package (the extractor router's own page-count and
// token-estimate gates) use this to fail closed before ever invoking a
// provider, per spec.md §4.4.
func (c *Cache) RemainingDailyBudgetUSD(ctx context.Context, tenantID string) (float64, error) {
	if c.dailyBudgetUSD <= 0 {
		return math.MaxFloat64, nil // 0 or unset means no daily cap configured
	}
	spentMicros, err := c.store.SumCostMicrosToday(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	spentUSD := float64(spentMicros) / 1_000_000
	return c.dailyBudgetUSD - spentUSD, nil
}

func (c *Cache) checkBudget(ctx context.Context, tenantID string) error {
	if c.dailyBudgetUSD <= 0 {
		return nil
	}
	spentMicros, err := c.store.SumCostMicrosToday(ctx, tenantID)
	if err != nil {
		return err
	}
	budgetMicros := int64(c.dailyBudgetUSD * 1_000_000)
	if spentMicros >= budgetMicros {
		return coreerr.New(coreerr.BudgetExceeded,
			fmt.Sprintf("daily AI cost budget exceeded: spent %d micros of %d", spentMicros, budgetMicros))
	}
	return nil
}
