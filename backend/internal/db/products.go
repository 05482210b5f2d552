package db

import (
	"context"

	"github.com/google/uuid"
)

// ListActiveProducts returns every active product in the tenant's catalog —
// the candidate universe for the Matcher (C9).
func (q *Queries) ListActiveProducts(ctx context.Context, tenantID string) ([]Product, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, tenant_id, internal_sku, display_name, description, base_uom,
		       uom_conversion, active, attributes, created_at, updated_at
		FROM products WHERE tenant_id = $1 AND active = true
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.TenantID, &p.InternalSKU, &p.DisplayName, &p.Description,
			&p.BaseUoM, &p.UoMConversion, &p.Active, &p.Attributes, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetProductBySKU fetches one product by its internal SKU.
func (q *Queries) GetProductBySKU(ctx context.Context, tenantID, internalSKU string) (*Product, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, internal_sku, display_name, description, base_uom,
		       uom_conversion, active, attributes, created_at, updated_at
		FROM products WHERE tenant_id = $1 AND internal_sku = $2
	`, tenantID, internalSKU)
	var p Product
	err := row.Scan(&p.ID, &p.TenantID, &p.InternalSKU, &p.DisplayName, &p.Description,
		&p.BaseUoM, &p.UoMConversion, &p.Active, &p.Attributes, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProduct inserts a catalog item (imported from the tenant's catalog
// source in production; exposed for tests/operator import tooling).
func (q *Queries) CreateProduct(ctx context.Context, p Product) (*Product, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO products (id, tenant_id, internal_sku, display_name, description, base_uom,
			uom_conversion, active, attributes, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, NOW(), NOW())
	`, p.ID, p.TenantID, p.InternalSKU, p.DisplayName, p.Description, p.BaseUoM,
		p.UoMConversion, p.Active, p.Attributes)
	if err != nil {
		return nil, err
	}
	return q.GetProductBySKU(ctx, p.TenantID, p.InternalSKU)
}
