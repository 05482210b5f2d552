package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// CreateAuditLogParams is the input to CreateAuditLog.
type CreateAuditLogParams struct {
	TenantID   string
	ActorID    string
	Action     string
	EntityType string
	EntityID   string
	Before     interface{}
	After      interface{}
	IPAddress  sql.NullString
	UserAgent  sql.NullString
}

// CreateAuditLog inserts a new append-only audit log entry. AuditLog rows are
// never updated (spec.md §3); there is no corresponding Update function.
func (q *Queries) CreateAuditLog(ctx context.Context, p CreateAuditLogParams) error {
	before, err := json.Marshal(p.Before)
	if err != nil {
		return fmt.Errorf("marshal before snapshot: %w", err)
	}
	after, err := json.Marshal(p.After)
	if err != nil {
		return fmt.Errorf("marshal after snapshot: %w", err)
	}

	query := `
		INSERT INTO audit_log (
			id, tenant_id, actor_id, action, entity_type, entity_id,
			before_json, after_json, ip_address, user_agent, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
	`
	_, err = q.db.ExecContext(ctx, query,
		uuid.NewString(), p.TenantID, p.ActorID, p.Action, p.EntityType, p.EntityID,
		before, after, p.IPAddress, p.UserAgent,
	)
	return err
}

// GetAuditLogsParams filters a tenant's audit log.
type GetAuditLogsParams struct {
	EntityType sql.NullString
	EntityID   sql.NullString
	Action     sql.NullString
	ActorID    sql.NullString
	Limit      int
}

// GetAuditLogs queries one tenant's audit logs with optional filters,
// assembled the same way the teacher's GetAuditLogs builds its dynamic WHERE
// clause: a running arg counter, one optional predicate appended per
// non-empty filter.
func (q *Queries) GetAuditLogs(ctx context.Context, tenantID string, p GetAuditLogsParams) ([]AuditLog, error) {
	query := `
		SELECT id, tenant_id, actor_id, action, entity_type, entity_id,
		       before_json, after_json, ip_address, user_agent, created_at
		FROM audit_log
		WHERE tenant_id = $1
	`
	args := []interface{}{tenantID}
	argNum := 2

	if p.EntityType.Valid {
		query += fmt.Sprintf(" AND entity_type = $%d", argNum)
		args = append(args, p.EntityType.String)
		argNum++
	}
	if p.EntityID.Valid {
		query += fmt.Sprintf(" AND entity_id = $%d", argNum)
		args = append(args, p.EntityID.String)
		argNum++
	}
	if p.Action.Valid {
		query += fmt.Sprintf(" AND action = $%d", argNum)
		args = append(args, p.Action.String)
		argNum++
	}
	if p.ActorID.Valid {
		query += fmt.Sprintf(" AND actor_id = $%d", argNum)
		args = append(args, p.ActorID.String)
		argNum++
	}

	query += " ORDER BY created_at DESC"
	if p.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, p.Limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []AuditLog
	for rows.Next() {
		var l AuditLog
		if err := rows.Scan(
			&l.ID, &l.TenantID, &l.ActorID, &l.Action, &l.EntityType, &l.EntityID,
			&l.BeforeJSON, &l.AfterJSON, &l.IPAddress, &l.UserAgent, &l.CreatedAt,
		); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
