// Package feedback implements C13: recording every operator correction as an
// append-only FeedbackEvent, upserting CONFIRMED SkuMapping rows on mapping
// confirmation, and serving the last-3-by-layout-fingerprint few-shot
// examples that feed prompt templates (spec.md §4.13).
package feedback

import (
	"context"
	"database/sql"

	"github.com/orderflow/orderflow/internal/db"
	"github.com/orderflow/orderflow/internal/providers"
)

// fewShotLimit is the "last 3" named in spec.md §4.6 and §4.13.
const fewShotLimit = 3

const (
	KindMappingConfirm = "MAPPING_CONFIRM"
	KindMappingReject  = "MAPPING_REJECT"
	KindFieldEdit      = "FIELD_EDIT"
	KindCustomerSelect = "CUSTOMER_SELECT"
	KindIssueOverride  = "ISSUE_OVERRIDE"
)

// Store is the subset of *db.Queries the recorder needs.
type Store interface {
	InsertFeedbackEvent(ctx context.Context, tenantID string, draftOrderID sql.NullString, kind string, before, after interface{}, layoutFingerprint sql.NullString, actorID string) (*db.FeedbackEvent, error)
	ListFeedbackByLayoutFingerprint(ctx context.Context, tenantID, layoutFingerprint string, limit int) ([]db.FeedbackEvent, error)
	UpsertConfirmedMapping(ctx context.Context, tenantID, customerID, normalizedSKU, internalSKU string) (*db.SkuMapping, error)
	RejectMapping(ctx context.Context, tenantID, id string) error
}

// Recorder is the sole write path for operator corrections; every handler
// that mutates a draft in response to an operator action calls through here
// instead of touching feedback_events/sku_mappings directly.
type Recorder struct {
	store Store
}

func New(store Store) *Recorder {
	return &Recorder{store: store}
}

// MappingConfirm records an operator confirming a suggested (or proposing a
// new) customer-SKU -> internal-SKU mapping and upserts the CONFIRMED
// sku_mappings row that the Matcher (C9) will find on future lines.
func (r *Recorder) MappingConfirm(ctx context.Context, tenantID, draftOrderID, customerID, normalizedSKU, internalSKU, layoutFingerprint, actorID string, before interface{}) error {
	if _, err := r.store.UpsertConfirmedMapping(ctx, tenantID, customerID, normalizedSKU, internalSKU); err != nil {
		return err
	}
	after := map[string]string{"customer_id": customerID, "normalized_sku": normalizedSKU, "internal_sku": internalSKU}
	_, err := r.store.InsertFeedbackEvent(ctx, tenantID, nullableDraftID(draftOrderID), KindMappingConfirm, before, after, nullableFingerprint(layoutFingerprint), actorID)
	return err
}

// MappingReject records an operator rejecting a suggested mapping, marking
// it REJECTED so the Matcher stops surfacing it.
func (r *Recorder) MappingReject(ctx context.Context, tenantID, draftOrderID, mappingID, layoutFingerprint, actorID string, before interface{}) error {
	if err := r.store.RejectMapping(ctx, tenantID, mappingID); err != nil {
		return err
	}
	after := map[string]string{"mapping_id": mappingID, "status": "REJECTED"}
	_, err := r.store.InsertFeedbackEvent(ctx, tenantID, nullableDraftID(draftOrderID), KindMappingReject, before, after, nullableFingerprint(layoutFingerprint), actorID)
	return err
}

// FieldEdit records a manual correction to an extracted header or line
// field; it carries no side effect beyond the audit/few-shot trail.
func (r *Recorder) FieldEdit(ctx context.Context, tenantID, draftOrderID, layoutFingerprint, actorID string, before, after interface{}) error {
	_, err := r.store.InsertFeedbackEvent(ctx, tenantID, nullableDraftID(draftOrderID), KindFieldEdit, before, after, nullableFingerprint(layoutFingerprint), actorID)
	return err
}

// CustomerSelect records an operator picking (or overriding) the customer
// attached to a draft.
func (r *Recorder) CustomerSelect(ctx context.Context, tenantID, draftOrderID, actorID string, before, after interface{}) error {
	_, err := r.store.InsertFeedbackEvent(ctx, tenantID, nullableDraftID(draftOrderID), KindCustomerSelect, before, after, sql.NullString{}, actorID)
	return err
}

// IssueOverride records an operator acknowledging or overriding a validation
// issue.
func (r *Recorder) IssueOverride(ctx context.Context, tenantID, draftOrderID, actorID string, before, after interface{}) error {
	_, err := r.store.InsertFeedbackEvent(ctx, tenantID, nullableDraftID(draftOrderID), KindIssueOverride, before, after, sql.NullString{}, actorID)
	return err
}

// FewShotExamples returns up to the last 3 FIELD_EDIT feedback events for
// this (tenant, layout fingerprint), rendered as prompt few-shot pairs. Only
// FIELD_EDIT events carry a meaningful (input, corrected-output) shape for
// an extraction prompt; other kinds correct matching/customer/issue state,
// not extraction output, so they are excluded here.
func (r *Recorder) FewShotExamples(ctx context.Context, tenantID, layoutFingerprint string) ([]providers.FewShotExample, error) {
	if layoutFingerprint == "" {
		return nil, nil
	}
	events, err := r.store.ListFeedbackByLayoutFingerprint(ctx, tenantID, layoutFingerprint, fewShotLimit*4)
	if err != nil {
		return nil, err
	}
	var out []providers.FewShotExample
	for _, ev := range events {
		if ev.Kind != KindFieldEdit {
			continue
		}
		out = append(out, providers.FewShotExample{
			InputExcerpt: string(ev.BeforeJSON),
			OutputJSON:   string(ev.AfterJSON),
		})
		if len(out) == fewShotLimit {
			break
		}
	}
	return out, nil
}

func nullableDraftID(id string) sql.NullString {
	if id == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: id, Valid: true}
}

func nullableFingerprint(fp string) sql.NullString {
	if fp == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: fp, Valid: true}
}
