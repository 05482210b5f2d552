package db

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// FindSucceededCallByHash implements the C7 idempotent-cache lookup: a
// successful cached result for (tenant, call_type, input_hash) short-circuits
// the provider call. Failed calls are never cached (spec.md §4.7), so this
// only ever looks at outcome = 'SUCCEEDED'.
func (q *Queries) FindSucceededCallByHash(ctx context.Context, tenantID, callType, inputHash string) (*AICallLog, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, call_type, input_hash, provider, model, prompt_tokens,
		       output_tokens, latency_ms, cost_micros, outcome, prompt_stored, created_at
		FROM ai_call_log
		WHERE tenant_id = $1 AND call_type = $2 AND input_hash = $3 AND outcome = 'SUCCEEDED'
		ORDER BY created_at DESC LIMIT 1
	`, tenantID, callType, inputHash)

	var l AICallLog
	err := row.Scan(&l.ID, &l.TenantID, &l.CallType, &l.InputHash, &l.Provider, &l.Model,
		&l.PromptTokens, &l.OutputTokens, &l.LatencyMS, &l.CostMicros, &l.Outcome,
		&l.PromptStored, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// InsertCallLog appends one provider-invocation record, success or failure.
func (q *Queries) InsertCallLog(ctx context.Context, l AICallLog) (*AICallLog, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO ai_call_log (
			id, tenant_id, call_type, input_hash, provider, model, prompt_tokens,
			output_tokens, latency_ms, cost_micros, outcome, prompt_stored, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12, NOW())
	`, l.ID, l.TenantID, l.CallType, l.InputHash, l.Provider, l.Model, l.PromptTokens,
		l.OutputTokens, l.LatencyMS, l.CostMicros, l.Outcome, l.PromptStored)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// SumCostMicrosToday supports the C7/§5 daily per-tenant AI cost budget
// check: sum of cost_micros for successful calls since UTC midnight.
func (q *Queries) SumCostMicrosToday(ctx context.Context, tenantID string) (int64, error) {
	var sum sql.NullInt64
	err := q.db.QueryRowContext(ctx, `
		SELECT SUM(cost_micros) FROM ai_call_log
		WHERE tenant_id = $1 AND outcome = 'SUCCEEDED' AND created_at >= date_trunc('day', NOW())
	`, tenantID).Scan(&sum)
	if err != nil {
		return 0, err
	}
	return sum.Int64, nil
}
