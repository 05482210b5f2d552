package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// FindExportByIdempotencyKey implements the idempotent-push lookup of
// spec.md §4.12: a repeat push with the same key returns the existing
// export row without writing a new dropzone file.
func (q *Queries) FindExportByIdempotencyKey(ctx context.Context, tenantID, draftOrderID, idempotencyKey string) (*DraftOrderExport, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, draft_order_id, idempotency_key, export_filename, export_json, dropzone_path, created_at
		FROM draft_order_exports
		WHERE tenant_id = $1 AND draft_order_id = $2 AND idempotency_key = $3
	`, tenantID, draftOrderID, idempotencyKey)
	return scanExport(row)
}

// FindLatestExport returns the most recent export for a draft regardless of
// idempotency key — used when a push arrives with no key but the draft is
// already PUSHING/PUSHED (spec.md §4.12: "returns the existing export").
func (q *Queries) FindLatestExport(ctx context.Context, tenantID, draftOrderID string) (*DraftOrderExport, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, draft_order_id, idempotency_key, export_filename, export_json, dropzone_path, created_at
		FROM draft_order_exports
		WHERE tenant_id = $1 AND draft_order_id = $2
		ORDER BY created_at DESC LIMIT 1
	`, tenantID, draftOrderID)
	return scanExport(row)
}

// CreateExport inserts the export record written alongside the atomic
// dropzone write.
func (q *Queries) CreateExport(ctx context.Context, e DraftOrderExport) (*DraftOrderExport, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO draft_order_exports (id, tenant_id, draft_order_id, idempotency_key, export_filename, export_json, dropzone_path, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7, NOW())
	`, e.ID, e.TenantID, e.DraftOrderID, e.IdempotencyKey, e.ExportFilename, e.ExportJSON, e.DropzonePath)
	if err != nil {
		return nil, fmt.Errorf("insert draft_order_export: %w", err)
	}
	row := q.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, draft_order_id, idempotency_key, export_filename, export_json, dropzone_path, created_at
		FROM draft_order_exports WHERE id = $1 AND tenant_id = $2
	`, e.ID, e.TenantID)
	return scanExport(row)
}

func scanExport(row *sql.Row) (*DraftOrderExport, error) {
	var e DraftOrderExport
	err := row.Scan(&e.ID, &e.TenantID, &e.DraftOrderID, &e.IdempotencyKey, &e.ExportFilename, &e.ExportJSON, &e.DropzonePath, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
