package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// GetProductEmbedding fetches the current embedding for (tenant, product,
// model), if any.
func (q *Queries) GetProductEmbedding(ctx context.Context, tenantID, productID, model string) (*ProductEmbedding, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, product_id, model, text_hash, vector, created_at, updated_at
		FROM product_embeddings WHERE tenant_id = $1 AND product_id = $2 AND model = $3
	`, tenantID, productID, model)

	var e ProductEmbedding
	var vec pq.Float32Array
	err := row.Scan(&e.ID, &e.TenantID, &e.ProductID, &e.Model, &e.TextHash, &vec, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.Vector = vec
	return &e, nil
}

// ListProductEmbeddings returns every embedding for a tenant+model, the
// candidate pool for the Matcher's (C9) vector-similarity source.
func (q *Queries) ListProductEmbeddings(ctx context.Context, tenantID, model string) ([]ProductEmbedding, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, tenant_id, product_id, model, text_hash, vector, created_at, updated_at
		FROM product_embeddings WHERE tenant_id = $1 AND model = $2
	`, tenantID, model)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProductEmbedding
	for rows.Next() {
		var e ProductEmbedding
		var vec pq.Float32Array
		if err := rows.Scan(&e.ID, &e.TenantID, &e.ProductID, &e.Model, &e.TextHash, &vec,
			&e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.Vector = vec
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpsertProductEmbedding writes a refreshed embedding, keyed by
// (tenant, product, model); refresh only happens on text-hash change
// (spec.md §4.9), so callers check the stored TextHash before calling this.
func (q *Queries) UpsertProductEmbedding(ctx context.Context, tenantID, productID, model, textHash string, vector []float32) error {
	id := uuid.NewString()
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO product_embeddings (id, tenant_id, product_id, model, text_hash, vector, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6, NOW(), NOW())
		ON CONFLICT (tenant_id, product_id, model)
		DO UPDATE SET text_hash = EXCLUDED.text_hash, vector = EXCLUDED.vector, updated_at = NOW()
	`, id, tenantID, productID, model, textHash, pq.Float32Array(vector))
	return err
}
