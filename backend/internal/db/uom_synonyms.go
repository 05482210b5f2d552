package db

import "context"

// ListUoMSynonyms returns a tenant's UoM synonym table — tenant configuration
// per DESIGN.md Open Question #2; the canonical set and unknown-synonym
// behavior are fixed by spec.md §4.5, only the synonym-to-canonical mapping
// itself is tenant-editable.
func (q *Queries) ListUoMSynonyms(ctx context.Context, tenantID string) ([]TenantUoMSynonym, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, tenant_id, synonym, canonical_uom FROM tenant_uom_synonyms WHERE tenant_id = $1
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TenantUoMSynonym
	for rows.Next() {
		var s TenantUoMSynonym
		if err := rows.Scan(&s.ID, &s.TenantID, &s.Synonym, &s.CanonicalUoM); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
