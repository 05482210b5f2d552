package db

import (
	"context"
	"time"
)

// FindApplicablePrice implements the CustomerPrice lookup in spec.md §3: for
// (customer, sku, qty, date) choose the row whose tier floor is the greatest
// <= qty and whose validity window covers date, ties broken by most recent
// validity start.
func (q *Queries) FindApplicablePrice(ctx context.Context, tenantID, customerID, internalSKU string, qty float64, at time.Time) (*CustomerPrice, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, customer_id, internal_sku, currency, uom, unit_price, min_qty,
		       valid_from, valid_to, created_at, updated_at
		FROM customer_prices
		WHERE tenant_id = $1 AND customer_id = $2 AND internal_sku = $3
		  AND min_qty <= $4
		  AND valid_from <= $5
		  AND (valid_to IS NULL OR valid_to >= $5)
		ORDER BY min_qty DESC, valid_from DESC
		LIMIT 1
	`, tenantID, customerID, internalSKU, qty, at)

	var p CustomerPrice
	err := row.Scan(&p.ID, &p.TenantID, &p.CustomerID, &p.InternalSKU, &p.Currency, &p.UoM,
		&p.UnitPrice, &p.MinQty, &p.ValidFrom, &p.ValidTo, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
