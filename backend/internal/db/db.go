package db

import (
	"database/sql"
	"fmt"
)

// Queries wraps the connection pool. Every exported method that reads or
// writes tenant-owned rows takes a tenant id as its first string argument
// (after ctx) and includes it in every WHERE clause; the lookups on the
// tenants table itself and the DB/WithTx helpers take none. The Tenant Guard
// contract lives here at the SQL boundary, mirrored
// by the context-level guard in internal/tenant.
type Queries struct {
	db *sql.DB
}

// New wraps an already-opened *sql.DB.
func New(database *sql.DB) *Queries {
	return &Queries{db: database}
}

// DB exposes the underlying pool for callers that need a transaction.
func (q *Queries) DB() *sql.DB {
	return q.db
}

// WithTx runs fn inside a transaction, committing on success and rolling back
// on any error or panic.
func (q *Queries) WithTx(fn func(tx *sql.Tx) error) (err error) {
	tx, err := q.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	err = fn(tx)
	return err
}
