package db

import (
	"context"

	"github.com/google/uuid"
)

// ListCustomers returns every customer in the tenant, used by the Customer
// Detector (C8) to score candidates and by the operator surface for manual
// selection.
func (q *Queries) ListCustomers(ctx context.Context, tenantID string) ([]Customer, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, erp_customer_number, default_currency,
		       default_language, addresses_json, metadata_json, created_at, updated_at
		FROM customers WHERE tenant_id = $1
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.ERPCustomerNumber, &c.DefaultCurrency,
			&c.DefaultLanguage, &c.AddressesJSON, &c.MetadataJSON, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetCustomer fetches one row, tenant-scoped.
func (q *Queries) GetCustomer(ctx context.Context, tenantID, id string) (*Customer, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, erp_customer_number, default_currency,
		       default_language, addresses_json, metadata_json, created_at, updated_at
		FROM customers WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	var c Customer
	if err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.ERPCustomerNumber, &c.DefaultCurrency,
		&c.DefaultLanguage, &c.AddressesJSON, &c.MetadataJSON, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCustomerContacts returns every contact across the tenant, used by S1/S2
// sender-address matching.
func (q *Queries) ListCustomerContacts(ctx context.Context, tenantID string) ([]CustomerContact, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, tenant_id, customer_id, email, name, is_primary, created_at, updated_at
		FROM customer_contacts WHERE tenant_id = $1
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CustomerContact
	for rows.Next() {
		var c CustomerContact
		if err := rows.Scan(&c.ID, &c.TenantID, &c.CustomerID, &c.Email, &c.Name, &c.IsPrimary,
			&c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// FindCustomerByExactEmail implements S1 (sender email exactly matches a
// customer contact, case-insensitive).
func (q *Queries) FindCustomerByExactEmail(ctx context.Context, tenantID, email string) (*CustomerContact, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, customer_id, email, name, is_primary, created_at, updated_at
		FROM customer_contacts
		WHERE tenant_id = $1 AND lower(email) = lower($2)
		LIMIT 1
	`, tenantID, email)
	var c CustomerContact
	err := row.Scan(&c.ID, &c.TenantID, &c.CustomerID, &c.Email, &c.Name, &c.IsPrimary,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// FindCustomerByERPNumber implements S4 (customer-number regex match).
func (q *Queries) FindCustomerByERPNumber(ctx context.Context, tenantID, erpNumber string) (*Customer, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, erp_customer_number, default_currency,
		       default_language, addresses_json, metadata_json, created_at, updated_at
		FROM customers WHERE tenant_id = $1 AND erp_customer_number = $2
		LIMIT 1
	`, tenantID, erpNumber)
	var c Customer
	err := row.Scan(&c.ID, &c.TenantID, &c.Name, &c.ERPCustomerNumber, &c.DefaultCurrency,
		&c.DefaultLanguage, &c.AddressesJSON, &c.MetadataJSON, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCustomer inserts a new tenant customer (imported from an ERP catalog
// feed in production; exposed here for tests and operator tooling).
func (q *Queries) CreateCustomer(ctx context.Context, c Customer) (*Customer, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO customers (id, tenant_id, name, erp_customer_number, default_currency,
			default_language, addresses_json, metadata_json, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8, NOW(), NOW())
	`, c.ID, c.TenantID, c.Name, c.ERPCustomerNumber, c.DefaultCurrency, c.DefaultLanguage,
		c.AddressesJSON, c.MetadataJSON)
	if err != nil {
		return nil, err
	}
	return q.GetCustomer(ctx, c.TenantID, c.ID)
}

// CustomerHasActiveReferences checks the RESTRICT ownership rule: deleting a
// Customer requires no active references (spec.md §3 cascade rules).
func (q *Queries) CustomerHasActiveReferences(ctx context.Context, tenantID, customerID string) (bool, error) {
	var count int
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM draft_orders WHERE tenant_id = $1 AND customer_id = $2
	`, tenantID, customerID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
