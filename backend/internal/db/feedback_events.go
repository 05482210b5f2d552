package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// InsertFeedbackEvent appends one operator-correction record (C13). The
// before/after snapshots drive both future few-shot prompt selection (by
// layout fingerprint) and SkuMapping upserts; this function only persists —
// internal/feedback owns the fan-out.
func (q *Queries) InsertFeedbackEvent(ctx context.Context, tenantID string, draftOrderID sql.NullString, kind string, before, after interface{}, layoutFingerprint sql.NullString, actorID string) (*FeedbackEvent, error) {
	b, err := json.Marshal(before)
	if err != nil {
		return nil, fmt.Errorf("marshal before: %w", err)
	}
	a, err := json.Marshal(after)
	if err != nil {
		return nil, fmt.Errorf("marshal after: %w", err)
	}

	id := uuid.NewString()
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO feedback_events (
			id, tenant_id, draft_order_id, kind, before_json, after_json,
			layout_fingerprint, actor_id, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8, NOW())
	`, id, tenantID, draftOrderID, kind, b, a, layoutFingerprint, actorID)
	if err != nil {
		return nil, err
	}
	return &FeedbackEvent{ID: id, TenantID: tenantID, DraftOrderID: draftOrderID, Kind: kind,
		BeforeJSON: b, AfterJSON: a, LayoutFingerprint: layoutFingerprint, ActorID: actorID}, nil
}

// ListFeedbackByLayoutFingerprint returns the most recent feedback events for
// a (tenant, layout fingerprint) pair — the few-shot example source named in
// spec.md §4.6 and §4.13 ("last 3").
func (q *Queries) ListFeedbackByLayoutFingerprint(ctx context.Context, tenantID, layoutFingerprint string, limit int) ([]FeedbackEvent, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, tenant_id, draft_order_id, kind, before_json, after_json,
		       layout_fingerprint, actor_id, created_at
		FROM feedback_events
		WHERE tenant_id = $1 AND layout_fingerprint = $2
		ORDER BY created_at DESC LIMIT $3
	`, tenantID, layoutFingerprint, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FeedbackEvent
	for rows.Next() {
		var f FeedbackEvent
		if err := rows.Scan(&f.ID, &f.TenantID, &f.DraftOrderID, &f.Kind, &f.BeforeJSON,
			&f.AfterJSON, &f.LayoutFingerprint, &f.ActorID, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
