package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FindActiveMapping looks up a CONFIRMED or SUGGESTED mapping for
// (customer, normalized sku) — the Matcher's (C9) first candidate source,
// which dominates the other two when present.
func (q *Queries) FindActiveMapping(ctx context.Context, tenantID, customerID, normalizedSKU string) (*SkuMapping, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, customer_id, normalized_sku, internal_sku, customer_uom,
		       internal_uom, pack_factor, status, confidence, support_count, reject_count,
		       last_used_at, created_at, updated_at
		FROM sku_mappings
		WHERE tenant_id = $1 AND customer_id = $2 AND normalized_sku = $3
		  AND status IN ('CONFIRMED', 'SUGGESTED')
		ORDER BY status = 'CONFIRMED' DESC
		LIMIT 1
	`, tenantID, customerID, normalizedSKU)
	return scanSkuMapping(row)
}

// UpsertConfirmedMapping is the C13 feedback sink: an operator confirming a
// mapping upserts a CONFIRMED row, enforcing "at most one CONFIRMED or
// SUGGESTED mapping per (tenant, customer, normalized_sku)" by superseding
// any prior SUGGESTED/CONFIRMED row for the same key.
func (q *Queries) UpsertConfirmedMapping(ctx context.Context, tenantID, customerID, normalizedSKU, internalSKU string) (*SkuMapping, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		UPDATE sku_mappings SET status = 'DEPRECATED', updated_at = NOW()
		WHERE tenant_id = $1 AND customer_id = $2 AND normalized_sku = $3 AND status IN ('CONFIRMED','SUGGESTED')
	`, tenantID, customerID, normalizedSKU); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sku_mappings (
			id, tenant_id, customer_id, normalized_sku, internal_sku, status, confidence,
			support_count, reject_count, last_used_at, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,'CONFIRMED',1.0,1,0,NOW(), NOW(), NOW())
	`, id, tenantID, customerID, normalizedSKU, internalSKU); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return q.GetSkuMapping(ctx, tenantID, id)
}

// RejectMapping records an operator rejection, incrementing reject_count.
func (q *Queries) RejectMapping(ctx context.Context, tenantID, id string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE sku_mappings SET status = 'REJECTED', reject_count = reject_count + 1, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	return err
}

// TouchMappingUsage bumps support_count/last_used_at when a mapping is
// auto-applied by the Matcher.
func (q *Queries) TouchMappingUsage(ctx context.Context, tenantID, id string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE sku_mappings SET support_count = support_count + 1, last_used_at = $1, updated_at = NOW()
		WHERE id = $2 AND tenant_id = $3
	`, time.Now().UTC(), id, tenantID)
	return err
}

// GetSkuMapping fetches one row, tenant-scoped.
func (q *Queries) GetSkuMapping(ctx context.Context, tenantID, id string) (*SkuMapping, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, customer_id, normalized_sku, internal_sku, customer_uom,
		       internal_uom, pack_factor, status, confidence, support_count, reject_count,
		       last_used_at, created_at, updated_at
		FROM sku_mappings WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	return scanSkuMapping(row)
}

func scanSkuMapping(row rowScanner) (*SkuMapping, error) {
	var m SkuMapping
	err := row.Scan(&m.ID, &m.TenantID, &m.CustomerID, &m.NormalizedSKU, &m.InternalSKU,
		&m.CustomerUoM, &m.InternalUoM, &m.PackFactor, &m.Status, &m.Confidence,
		&m.SupportCount, &m.RejectCount, &m.LastUsedAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
