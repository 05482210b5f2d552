package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// GetLatestSucceededRun supports the C3/§8 idempotence invariant: re-running
// an extractor on an unchanged Document whose prior run SUCCEEDED is a no-op.
func (q *Queries) GetLatestSucceededRun(ctx context.Context, tenantID, documentID, extractorID string) (*ExtractionRun, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, document_id, extractor_id, status, started_at, finished_at,
		       runtime_millis, canonical_record, error_message, created_at, updated_at
		FROM extraction_runs
		WHERE tenant_id = $1 AND document_id = $2 AND extractor_id = $3 AND status = 'SUCCEEDED'
		ORDER BY created_at DESC LIMIT 1
	`, tenantID, documentID, extractorID)
	return scanExtractionRun(row)
}

// CreateExtractionRun inserts a PENDING run. It does not check for a run of
// the same (document, extractor) that is already PENDING or RUNNING, and the
// extraction worker does not call GetRunningRun first, so concurrent
// dispatches for one document each create their own run.
func (q *Queries) CreateExtractionRun(ctx context.Context, r ExtractionRun) (*ExtractionRun, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = "PENDING"
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO extraction_runs (id, tenant_id, document_id, extractor_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	`, r.ID, r.TenantID, r.DocumentID, r.ExtractorID, r.Status)
	if err != nil {
		return nil, fmt.Errorf("insert extraction_run: %w", err)
	}
	return q.GetExtractionRun(ctx, r.TenantID, r.ID)
}

// GetRunningRun finds an in-flight run for (document, extractor), if any.
func (q *Queries) GetRunningRun(ctx context.Context, tenantID, documentID, extractorID string) (*ExtractionRun, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, document_id, extractor_id, status, started_at, finished_at,
		       runtime_millis, canonical_record, error_message, created_at, updated_at
		FROM extraction_runs
		WHERE tenant_id = $1 AND document_id = $2 AND extractor_id = $3 AND status IN ('PENDING','RUNNING')
		ORDER BY created_at DESC LIMIT 1
	`, tenantID, documentID, extractorID)
	return scanExtractionRun(row)
}

// MarkRunRunning transitions PENDING -> RUNNING and stamps started_at.
func (q *Queries) MarkRunRunning(ctx context.Context, tenantID, id string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE extraction_runs SET status = 'RUNNING', started_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	return err
}

// CompleteRun records a terminal SUCCEEDED/FAILED outcome with the canonical
// extraction record (§6.1) or an error message.
func (q *Queries) CompleteRun(ctx context.Context, tenantID, id, status string, runtimeMillis int32, canonical json.RawMessage, errMsg sql.NullString) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE extraction_runs
		SET status = $1, finished_at = NOW(), runtime_millis = $2, canonical_record = $3,
		    error_message = $4, updated_at = NOW()
		WHERE id = $5 AND tenant_id = $6
	`, status, runtimeMillis, canonical, errMsg, id, tenantID)
	return err
}

// GetExtractionRun fetches one row, tenant-scoped.
func (q *Queries) GetExtractionRun(ctx context.Context, tenantID, id string) (*ExtractionRun, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, document_id, extractor_id, status, started_at, finished_at,
		       runtime_millis, canonical_record, error_message, created_at, updated_at
		FROM extraction_runs
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	return scanExtractionRun(row)
}

func scanExtractionRun(row *sql.Row) (*ExtractionRun, error) {
	var r ExtractionRun
	err := row.Scan(&r.ID, &r.TenantID, &r.DocumentID, &r.ExtractorID, &r.Status, &r.StartedAt,
		&r.FinishedAt, &r.RuntimeMillis, &r.CanonicalRecord, &r.ErrorMessage, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
