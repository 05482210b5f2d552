// Package dedup implements the C2 idempotent-arrival contract: a retried
// SMTP delivery or a re-uploaded file must resolve to the same InboundMessage
// or Document row rather than spawning a duplicate draft (spec.md §4.2).
package dedup

import (
	"context"
	"database/sql"
	"errors"

	"github.com/orderflow/orderflow/internal/db"
)

// Store is the subset of *db.Queries that dedup needs.
type Store interface {
	FindInboundByDedupKey(ctx context.Context, tenantID, source, providerMessageID string) (*db.InboundMessage, error)
	FindDocumentByDedupKey(ctx context.Context, tenantID, sha256Hex, filename string, size int64) (*db.Document, error)
}

type Checker struct {
	store Store
}

func New(store Store) *Checker {
	return &Checker{store: store}
}

// InboundResult reports whether a (tenant, source, provider_message_id)
// triple was already seen.
type InboundResult struct {
	Existing *db.InboundMessage
	IsDup    bool
}

// CheckInbound looks up the inbound dedup key. A provider message id is
// required for SMTP (Message-ID, synthesized if absent) and for the upload
// path a caller-supplied idempotency key stands in for it.
func (c *Checker) CheckInbound(ctx context.Context, tenantID, source, providerMessageID string) (InboundResult, error) {
	existing, err := c.store.FindInboundByDedupKey(ctx, tenantID, source, providerMessageID)
	if errors.Is(err, sql.ErrNoRows) {
		return InboundResult{}, nil
	}
	if err != nil {
		return InboundResult{}, err
	}
	return InboundResult{Existing: existing, IsDup: true}, nil
}

// DocumentResult reports whether a (tenant, sha256, filename, size)
// quadruple was already seen.
type DocumentResult struct {
	Existing *db.Document
	IsDup    bool
}

// CheckDocument looks up the document dedup key. Two attachments with the
// same content but different filenames are treated as distinct documents —
// the key is filename-sensitive by design, matching how an ERP-side human
// would distinguish "PO-100.pdf" resent under a new name from an accidental
// double-attach of the identical file.
func (c *Checker) CheckDocument(ctx context.Context, tenantID, sha256Hex, filename string, size int64) (DocumentResult, error) {
	existing, err := c.store.FindDocumentByDedupKey(ctx, tenantID, sha256Hex, filename, size)
	if errors.Is(err, sql.ErrNoRows) {
		return DocumentResult{}, nil
	}
	if err != nil {
		return DocumentResult{}, err
	}
	return DocumentResult{Existing: existing, IsDup: true}, nil
}
