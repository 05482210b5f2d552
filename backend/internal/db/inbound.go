package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// FindInboundByDedupKey implements the C2 inbound dedup key: (tenant, source,
// provider_message_id). Returns sql.ErrNoRows when absent.
func (q *Queries) FindInboundByDedupKey(ctx context.Context, tenantID, source, providerMessageID string) (*InboundMessage, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, source, provider_message_id, sender_address,
		       received_at, raw_storage_key, status, created_at, updated_at
		FROM inbound_messages
		WHERE tenant_id = $1 AND source = $2 AND provider_message_id = $3
	`, tenantID, source, providerMessageID)
	return scanInboundMessage(row)
}

// CreateInboundMessage inserts a new arrival event.
func (q *Queries) CreateInboundMessage(ctx context.Context, m InboundMessage) (*InboundMessage, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO inbound_messages (
			id, tenant_id, source, provider_message_id, sender_address,
			received_at, raw_storage_key, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	`, m.ID, m.TenantID, m.Source, m.ProviderMessageID, m.SenderAddress,
		m.ReceivedAt, m.RawStorageKey, m.Status)
	if err != nil {
		return nil, fmt.Errorf("insert inbound_message: %w", err)
	}
	return q.GetInboundMessage(ctx, m.TenantID, m.ID)
}

// UpdateInboundMessageStatus transitions an InboundMessage (RECEIVED ->
// STORED -> PARSED|FAILED, per spec.md §3's lifecycle).
func (q *Queries) UpdateInboundMessageStatus(ctx context.Context, tenantID, id, status string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE inbound_messages SET status = $1, updated_at = NOW()
		WHERE id = $2 AND tenant_id = $3
	`, status, id, tenantID)
	return err
}

// GetInboundMessage fetches one row, tenant-scoped.
func (q *Queries) GetInboundMessage(ctx context.Context, tenantID, id string) (*InboundMessage, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, source, provider_message_id, sender_address,
		       received_at, raw_storage_key, status, created_at, updated_at
		FROM inbound_messages
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	return scanInboundMessage(row)
}

func scanInboundMessage(row *sql.Row) (*InboundMessage, error) {
	var m InboundMessage
	err := row.Scan(&m.ID, &m.TenantID, &m.Source, &m.ProviderMessageID, &m.SenderAddress,
		&m.ReceivedAt, &m.RawStorageKey, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
