package db

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
)

// UpsertOpenIssue implements the Validator's (C10) idempotent re-run
// contract: issue identity is (type, target_id); re-runs update the existing
// OPEN issue rather than duplicating it, mirroring the teacher's
// detectors.insertIssue composite-key-then-upsert style
// (internal/services/detectors/co_quantity_mismatch.go). ACKNOWLEDGED and
// OVERRIDDEN issues are left untouched: an existing issue in either status
// makes this a no-op.
func (q *Queries) UpsertOpenIssue(ctx context.Context, tenantID, draftOrderID string, lineID sql.NullString, issueType, severity, message string, details json.RawMessage) error {
	existing, err := q.findIssueByTarget(ctx, tenantID, draftOrderID, lineID, issueType)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	if existing != nil {
		if existing.Status == "ACKNOWLEDGED" || existing.Status == "OVERRIDDEN" {
			return nil // preserved across re-runs, per spec.md §4.10
		}
		_, err := q.db.ExecContext(ctx, `
			UPDATE validation_issues
			SET severity = $1, status = 'OPEN', message = $2, details_json = $3, updated_at = NOW()
			WHERE id = $4 AND tenant_id = $5
		`, severity, message, details, existing.ID, tenantID)
		return err
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO validation_issues (
			id, tenant_id, draft_order_id, line_id, type, severity, status, message,
			details_json, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,'OPEN',$7,$8, NOW(), NOW())
	`, uuid.NewString(), tenantID, draftOrderID, lineID, issueType, severity, message, details)
	return err
}

// CloseIssuesNotIn resolves every OPEN issue of the draft whose id is not in
// stillOpenIssueIDs, whatever its type — "RESOLVED issues are recreated only if
// the condition recurs" (spec.md §4.10) implies a validator re-run must
// close issues that no longer apply.
func (q *Queries) CloseIssuesNotIn(ctx context.Context, tenantID, draftOrderID string, stillOpenIssueIDs []string) error {
	if len(stillOpenIssueIDs) == 0 {
		_, err := q.db.ExecContext(ctx, `
			UPDATE validation_issues SET status = 'RESOLVED', updated_at = NOW()
			WHERE tenant_id = $1 AND draft_order_id = $2 AND status = 'OPEN'
		`, tenantID, draftOrderID)
		return err
	}
	_, err := q.db.ExecContext(ctx, `
		UPDATE validation_issues SET status = 'RESOLVED', updated_at = NOW()
		WHERE tenant_id = $1 AND draft_order_id = $2 AND status = 'OPEN' AND NOT (id = ANY($3))
	`, tenantID, draftOrderID, stillOpenIssueIDs)
	return err
}

func (q *Queries) findIssueByTarget(ctx context.Context, tenantID, draftOrderID string, lineID sql.NullString, issueType string) (*ValidationIssue, error) {
	var row *sql.Row
	if lineID.Valid {
		row = q.db.QueryRowContext(ctx, `
			SELECT id, tenant_id, draft_order_id, line_id, type, severity, status, message,
			       details_json, created_at, updated_at
			FROM validation_issues
			WHERE tenant_id = $1 AND draft_order_id = $2 AND line_id = $3 AND type = $4
		`, tenantID, draftOrderID, lineID, issueType)
	} else {
		row = q.db.QueryRowContext(ctx, `
			SELECT id, tenant_id, draft_order_id, line_id, type, severity, status, message,
			       details_json, created_at, updated_at
			FROM validation_issues
			WHERE tenant_id = $1 AND draft_order_id = $2 AND line_id IS NULL AND type = $3
		`, tenantID, draftOrderID, issueType)
	}

	var iss ValidationIssue
	err := row.Scan(&iss.ID, &iss.TenantID, &iss.DraftOrderID, &iss.LineID, &iss.Type,
		&iss.Severity, &iss.Status, &iss.Message, &iss.DetailsJSON, &iss.CreatedAt, &iss.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &iss, nil
}

// ListIssues returns every issue on a draft, regardless of status.
func (q *Queries) ListIssues(ctx context.Context, tenantID, draftOrderID string) ([]ValidationIssue, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, tenant_id, draft_order_id, line_id, type, severity, status, message,
		       details_json, created_at, updated_at
		FROM validation_issues WHERE tenant_id = $1 AND draft_order_id = $2
		ORDER BY created_at ASC
	`, tenantID, draftOrderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ValidationIssue
	for rows.Next() {
		var iss ValidationIssue
		if err := rows.Scan(&iss.ID, &iss.TenantID, &iss.DraftOrderID, &iss.LineID, &iss.Type,
			&iss.Severity, &iss.Status, &iss.Message, &iss.DetailsJSON, &iss.CreatedAt, &iss.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, iss)
	}
	return out, rows.Err()
}

// CountOpenErrorIssues supports the ready-check gate: "no OPEN issue of
// severity ERROR" (spec.md §4.11).
func (q *Queries) CountOpenErrorIssues(ctx context.Context, tenantID, draftOrderID string) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM validation_issues
		WHERE tenant_id = $1 AND draft_order_id = $2 AND status = 'OPEN' AND severity = 'ERROR'
	`, tenantID, draftOrderID).Scan(&n)
	return n, err
}

// SetIssueStatus implements operator acknowledge/override/resolve actions.
func (q *Queries) SetIssueStatus(ctx context.Context, tenantID, id, status string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE validation_issues SET status = $1, updated_at = NOW() WHERE id = $2 AND tenant_id = $3
	`, status, id, tenantID)
	return err
}
