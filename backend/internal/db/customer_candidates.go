package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ReplaceCustomerCandidates stores the Customer Detector's (C8) top-5 scored
// candidates for a draft, replacing any prior set from an earlier detection
// pass.
func (q *Queries) ReplaceCustomerCandidates(ctx context.Context, tenantID, draftOrderID string, candidates []CustomerDetectionCandidate) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM customer_detection_candidates WHERE tenant_id = $1 AND draft_order_id = $2
	`, tenantID, draftOrderID); err != nil {
		return err
	}

	for _, c := range candidates {
		id := c.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO customer_detection_candidates (
				id, tenant_id, draft_order_id, customer_id, score, signals_json, status,
				created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7, NOW(), NOW())
		`, id, tenantID, draftOrderID, c.CustomerID, c.Score, c.SignalsJSON, c.Status); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListCustomerCandidates returns the stored top-5 for a draft.
func (q *Queries) ListCustomerCandidates(ctx context.Context, tenantID, draftOrderID string) ([]CustomerDetectionCandidate, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, tenant_id, draft_order_id, customer_id, score, signals_json, status,
		       created_at, updated_at
		FROM customer_detection_candidates
		WHERE tenant_id = $1 AND draft_order_id = $2
		ORDER BY score DESC
	`, tenantID, draftOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CustomerDetectionCandidate
	for rows.Next() {
		var c CustomerDetectionCandidate
		if err := rows.Scan(&c.ID, &c.TenantID, &c.DraftOrderID, &c.CustomerID, &c.Score,
			&c.SignalsJSON, &c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SelectCustomerCandidate marks one candidate SELECTED and the rest REJECTED
// — "at most one SELECTED per draft" (spec.md §3).
func (q *Queries) SelectCustomerCandidate(ctx context.Context, tenantID, draftOrderID, customerID string) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE customer_detection_candidates SET status = 'REJECTED', updated_at = NOW()
		WHERE tenant_id = $1 AND draft_order_id = $2
	`, tenantID, draftOrderID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE customer_detection_candidates SET status = 'SELECTED', updated_at = NOW()
		WHERE tenant_id = $1 AND draft_order_id = $2 AND customer_id = $3
	`, tenantID, draftOrderID, customerID); err != nil {
		return err
	}
	return tx.Commit()
}
