package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/orderflow/orderflow/internal/coreerr"
)

// CreateDraftOrder inserts the aggregate root in state NEW.
func (q *Queries) CreateDraftOrder(ctx context.Context, d DraftOrder) (*DraftOrder, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = "NEW"
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO draft_orders (
			id, tenant_id, source_document_id, customer_id, external_order_number,
			order_date, currency, delivery_date, ship_to_json, bill_to_json, notes,
			status, extraction_confidence, customer_confidence, matching_confidence,
			confidence_score, ready_check_json, top_customer_candidates, version,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,0,0,0,0,$13,$14,1, NOW(), NOW())
	`, d.ID, d.TenantID, d.SourceDocumentID, d.CustomerID, d.ExternalOrderNumber,
		d.OrderDate, d.Currency, d.DeliveryDate, d.ShipToJSON, d.BillToJSON, d.Notes,
		d.Status, d.ReadyCheckJSON, d.TopCustomerCandidates)
	if err != nil {
		return nil, fmt.Errorf("insert draft_order: %w", err)
	}
	return q.GetDraftOrder(ctx, d.TenantID, d.ID)
}

// GetDraftOrder fetches one row, tenant-scoped; a cross-tenant id behaves as
// not-found (coreerr.NotFound), never forbidden.
func (q *Queries) GetDraftOrder(ctx context.Context, tenantID, id string) (*DraftOrder, error) {
	row := q.db.QueryRowContext(ctx, draftOrderSelect+` WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	d, err := scanDraftOrder(row)
	if err == sql.ErrNoRows {
		return nil, coreerr.New(coreerr.NotFound, "draft order not found")
	}
	return d, err
}

// FindDraftOrderByDocument looks up the (at most one) draft created from a
// given source Document, used by the extraction worker to decide whether a
// retry reuses an existing draft or creates a new one.
func (q *Queries) FindDraftOrderByDocument(ctx context.Context, tenantID, documentID string) (*DraftOrder, error) {
	row := q.db.QueryRowContext(ctx, draftOrderSelect+` WHERE tenant_id = $1 AND source_document_id = $2`, tenantID, documentID)
	d, err := scanDraftOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

// ListDraftOrders returns a tenant's drafts, optionally filtered by status.
func (q *Queries) ListDraftOrders(ctx context.Context, tenantID string, status sql.NullString) ([]DraftOrder, error) {
	query := draftOrderSelect + ` WHERE tenant_id = $1`
	args := []interface{}{tenantID}
	if status.Valid {
		query += ` AND status = $2`
		args = append(args, status.String)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DraftOrder
	for rows.Next() {
		d, err := scanDraftOrderRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// UpdateDraftOrderVersioned applies fn's mutation and writes it back only if
// the version column still matches expectedVersion, implementing the
// optimistic-concurrency contract in spec.md §4.11. Returns
// coreerr.OptimisticConflict on mismatch; the caller (draftengine) retries up
// to three times.
func (q *Queries) UpdateDraftOrderVersioned(ctx context.Context, tenantID, id string, expectedVersion int64, mutate func(d *DraftOrder)) (*DraftOrder, error) {
	d, err := q.GetDraftOrder(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if d.Version != expectedVersion {
		return nil, coreerr.New(coreerr.OptimisticConflict, "draft order version mismatch")
	}
	mutate(d)

	res, err := q.db.ExecContext(ctx, `
		UPDATE draft_orders SET
			customer_id = $1, external_order_number = $2, order_date = $3, currency = $4,
			delivery_date = $5, ship_to_json = $6, bill_to_json = $7, notes = $8, status = $9,
			extraction_confidence = $10, customer_confidence = $11, matching_confidence = $12,
			confidence_score = $13, ready_check_json = $14, top_customer_candidates = $15,
			approved_by = $16, approved_at = $17, erp_order_id = $18, erp_ack_error = $19,
			version = version + 1, updated_at = NOW()
		WHERE id = $20 AND tenant_id = $21 AND version = $22
	`, d.CustomerID, d.ExternalOrderNumber, d.OrderDate, d.Currency, d.DeliveryDate,
		d.ShipToJSON, d.BillToJSON, d.Notes, d.Status, d.ExtractionConfidence,
		d.CustomerConfidence, d.MatchingConfidence, d.ConfidenceScore, d.ReadyCheckJSON,
		d.TopCustomerCandidates, d.ApprovedBy, d.ApprovedAt, d.ERPOrderID, d.ERPAckError,
		id, tenantID, expectedVersion)
	if err != nil {
		return nil, err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil, coreerr.New(coreerr.OptimisticConflict, "draft order version mismatch")
	}
	return q.GetDraftOrder(ctx, tenantID, id)
}

// SetERPAckMetadata attaches erp_order_id / erp_ack_error without a status
// transition — the ack watcher (C12) never moves a draft out of PUSHED (see
// DESIGN.md Open Question #1).
func (q *Queries) SetERPAckMetadata(ctx context.Context, tenantID, id string, erpOrderID, ackError sql.NullString) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE draft_orders SET erp_order_id = COALESCE($1, erp_order_id), erp_ack_error = $2, updated_at = NOW()
		WHERE id = $3 AND tenant_id = $4
	`, erpOrderID, ackError, id, tenantID)
	return err
}

const draftOrderSelect = `
	SELECT id, tenant_id, source_document_id, customer_id, external_order_number,
	       order_date, currency, delivery_date, ship_to_json, bill_to_json, notes,
	       status, extraction_confidence, customer_confidence, matching_confidence,
	       confidence_score, ready_check_json, top_customer_candidates, approved_by,
	       approved_at, erp_order_id, erp_ack_error, version, created_at, updated_at
	FROM draft_orders
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDraftOrder(row rowScanner) (*DraftOrder, error) {
	return scanDraftOrderRows(row)
}

func scanDraftOrderRows(row rowScanner) (*DraftOrder, error) {
	var d DraftOrder
	err := row.Scan(&d.ID, &d.TenantID, &d.SourceDocumentID, &d.CustomerID, &d.ExternalOrderNumber,
		&d.OrderDate, &d.Currency, &d.DeliveryDate, &d.ShipToJSON, &d.BillToJSON, &d.Notes,
		&d.Status, &d.ExtractionConfidence, &d.CustomerConfidence, &d.MatchingConfidence,
		&d.ConfidenceScore, &d.ReadyCheckJSON, &d.TopCustomerCandidates, &d.ApprovedBy,
		&d.ApprovedAt, &d.ERPOrderID, &d.ERPAckError, &d.Version, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
