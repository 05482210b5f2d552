package db

import (
	"context"
)

// Tenant is the root of tenant isolation: every other table's tenant_id
// refers here. Resolving a slug to an id is the one lookup the Tenant Guard
// permits before a tenant id is known (SMTP/upload intake, §4.3).
type Tenant struct {
	ID                      string
	Slug                    string
	Name                    string
	DailyAICostBudgetUSD    float64
	ExtractionQueueCapacity int
}

// FindTenantBySlug implements the SMTP contract's "unknown slug -> 550"
// check and the upload endpoint's tenant resolution.
func (q *Queries) FindTenantBySlug(ctx context.Context, slug string) (*Tenant, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, slug, name, daily_ai_cost_budget_usd, extraction_queue_capacity
		FROM tenants WHERE slug = $1
	`, slug)
	var t Tenant
	if err := row.Scan(&t.ID, &t.Slug, &t.Name, &t.DailyAICostBudgetUSD, &t.ExtractionQueueCapacity); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTenant resolves a tenant id to its row; used by the pusher to stamp
// the export record's tenant_slug.
func (q *Queries) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, slug, name, daily_ai_cost_budget_usd, extraction_queue_capacity
		FROM tenants WHERE id = $1
	`, id)
	var t Tenant
	if err := row.Scan(&t.ID, &t.Slug, &t.Name, &t.DailyAICostBudgetUSD, &t.ExtractionQueueCapacity); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTenantIDs returns every tenant id, used by the ack-poll worker to fan
// out across tenants without a dedicated dispatch queue.
func (q *Queries) ListTenantIDs(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id FROM tenants ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
