package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ReplaceDraftOrderLines deletes and re-inserts all lines for a draft inside
// a transaction, renumbering them densely 1..n — the extraction/normalize
// step (C6 step 4) and any later line edit both funnel through this so the
// "line_no unique, dense 1..n" invariant (spec.md §3, §8) never needs a
// separate repair pass.
func (q *Queries) ReplaceDraftOrderLines(ctx context.Context, tenantID, draftID string, lines []DraftOrderLine) ([]DraftOrderLine, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM draft_order_lines WHERE draft_order_id = $1 AND tenant_id = $2`, draftID, tenantID); err != nil {
		return nil, fmt.Errorf("clear draft_order_lines: %w", err)
	}

	out := make([]DraftOrderLine, 0, len(lines))
	for i, l := range lines {
		l.ID = uuid.NewString()
		l.TenantID = tenantID
		l.DraftOrderID = draftID
		l.LineNo = i + 1
		if l.MatchStatus == "" {
			l.MatchStatus = "UNMATCHED"
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO draft_order_lines (
				id, tenant_id, draft_order_id, line_no, customer_sku_raw, customer_sku_normalized,
				product_description, qty, uom, unit_price, currency, internal_sku, match_status,
				match_confidence, match_method, match_debug_json, version, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,1, NOW(), NOW())
		`, l.ID, l.TenantID, l.DraftOrderID, l.LineNo, l.CustomerSKURaw, l.CustomerSKUNormalized,
			l.ProductDescription, l.Qty, l.UoM, l.UnitPrice, l.Currency, l.InternalSKU,
			l.MatchStatus, l.MatchConfidence, l.MatchMethod, l.MatchDebugJSON)
		if err != nil {
			return nil, fmt.Errorf("insert draft_order_line %d: %w", l.LineNo, err)
		}
		out = append(out, l)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}

// ListDraftOrderLines returns a draft's lines ordered by line_no.
func (q *Queries) ListDraftOrderLines(ctx context.Context, tenantID, draftID string) ([]DraftOrderLine, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, tenant_id, draft_order_id, line_no, customer_sku_raw, customer_sku_normalized,
		       product_description, qty, uom, unit_price, currency, internal_sku, match_status,
		       match_confidence, match_method, match_debug_json, version, created_at, updated_at
		FROM draft_order_lines WHERE tenant_id = $1 AND draft_order_id = $2 ORDER BY line_no ASC
	`, tenantID, draftID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DraftOrderLine
	for rows.Next() {
		var l DraftOrderLine
		if err := rows.Scan(&l.ID, &l.TenantID, &l.DraftOrderID, &l.LineNo, &l.CustomerSKURaw,
			&l.CustomerSKUNormalized, &l.ProductDescription, &l.Qty, &l.UoM, &l.UnitPrice,
			&l.Currency, &l.InternalSKU, &l.MatchStatus, &l.MatchConfidence, &l.MatchMethod,
			&l.MatchDebugJSON, &l.Version, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// UpdateDraftOrderLineMatch writes the matcher's (C9) result for one line.
func (q *Queries) UpdateDraftOrderLineMatch(ctx context.Context, tenantID, lineID string, internalSKU, matchStatus, matchMethod string, confidence float64, debug []byte) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE draft_order_lines
		SET internal_sku = $1, match_status = $2, match_method = $3, match_confidence = $4,
		    match_debug_json = $5, version = version + 1, updated_at = NOW()
		WHERE id = $6 AND tenant_id = $7
	`, internalSKU, matchStatus, matchMethod, confidence, debug, lineID, tenantID)
	return err
}
