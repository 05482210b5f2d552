package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// FindDocumentByDedupKey implements the C2 document dedup key: (tenant,
// sha256, filename, size). Collisions reuse the existing row (spec.md §4.2).
func (q *Queries) FindDocumentByDedupKey(ctx context.Context, tenantID, sha256Hex, filename string, size int64) (*Document, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, inbound_message_id, filename, media_type, size_bytes,
		       sha256_hex, raw_storage_key, page_count, text_coverage_ratio,
		       layout_fingerprint, status, deleted_at, created_at, updated_at
		FROM documents
		WHERE tenant_id = $1 AND sha256_hex = $2 AND filename = $3 AND size_bytes = $4
	`, tenantID, sha256Hex, filename, size)
	return scanDocument(row)
}

// CreateDocument inserts a new Document row.
func (q *Queries) CreateDocument(ctx context.Context, d Document) (*Document, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO documents (
			id, tenant_id, inbound_message_id, filename, media_type, size_bytes,
			sha256_hex, raw_storage_key, page_count, text_coverage_ratio,
			layout_fingerprint, status, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12, NOW(), NOW())
	`, d.ID, d.TenantID, d.InboundMessageID, d.Filename, d.MediaType, d.SizeBytes,
		d.SHA256Hex, d.RawStorageKey, d.PageCount, d.TextCoverageRatio,
		d.LayoutFingerprint, d.Status)
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}
	return q.GetDocument(ctx, d.TenantID, d.ID)
}

// GetDocument fetches one row, tenant-scoped.
func (q *Queries) GetDocument(ctx context.Context, tenantID, id string) (*Document, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, inbound_message_id, filename, media_type, size_bytes,
		       sha256_hex, raw_storage_key, page_count, text_coverage_ratio,
		       layout_fingerprint, status, deleted_at, created_at, updated_at
		FROM documents
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	return scanDocument(row)
}

// UpdateDocumentStatus transitions UPLOADED/STORED/PROCESSING/EXTRACTED/FAILED.
func (q *Queries) UpdateDocumentStatus(ctx context.Context, tenantID, id, status string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE documents SET status = $1, updated_at = NOW() WHERE id = $2 AND tenant_id = $3
	`, status, id, tenantID)
	return err
}

// UpdateDocumentPreAnalysis stores the C4 pre-analysis fields computed before
// the extractor router's trigger rule runs.
func (q *Queries) UpdateDocumentPreAnalysis(ctx context.Context, tenantID, id string, pageCount int32, textCoverage float64, layoutFingerprint string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE documents
		SET page_count = $1, text_coverage_ratio = $2, layout_fingerprint = $3, updated_at = NOW()
		WHERE id = $4 AND tenant_id = $5
	`, pageCount, textCoverage, layoutFingerprint, id, tenantID)
	return err
}

// SoftDeleteDocument marks a Document deleted without cascading — the only
// supported soft-delete in the core (DESIGN.md Open Question #3).
func (q *Queries) SoftDeleteDocument(ctx context.Context, tenantID, id string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE documents SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	return err
}

func scanDocument(row *sql.Row) (*Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.TenantID, &d.InboundMessageID, &d.Filename, &d.MediaType, &d.SizeBytes,
		&d.SHA256Hex, &d.RawStorageKey, &d.PageCount, &d.TextCoverageRatio,
		&d.LayoutFingerprint, &d.Status, &d.DeletedAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
