package draftengine

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/orderflow/orderflow/internal/coreerr"
	"github.com/orderflow/orderflow/internal/db"
)

// maxOptimisticRetries is the "up to three retries" ceiling of spec.md
// §4.11's concurrency clause.
const maxOptimisticRetries = 3

// Store is the subset of *db.Queries the engine needs.
type Store interface {
	GetDraftOrder(ctx context.Context, tenantID, id string) (*db.DraftOrder, error)
	UpdateDraftOrderVersioned(ctx context.Context, tenantID, id string, expectedVersion int64, mutate func(*db.DraftOrder)) (*db.DraftOrder, error)
	ListDraftOrderLines(ctx context.Context, tenantID, draftID string) ([]db.DraftOrderLine, error)
	CountOpenErrorIssues(ctx context.Context, tenantID, draftOrderID string) (int, error)
	CreateAuditLog(ctx context.Context, p db.CreateAuditLogParams) error
}

// Engine applies state transitions and ready-check re-evaluation through
// the optimistic-concurrency retry wrapper, auditing every change.
type Engine struct {
	store Store
	now   func() time.Time
}

func New(store Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

// WithClock overrides the time source for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// withRetry re-fetches the current version and re-applies fn up to
// maxOptimisticRetries+1 times on coreerr.OptimisticConflict.
func (e *Engine) withRetry(ctx context.Context, tenantID, draftID string, fn func(d *db.DraftOrder) error) (*db.DraftOrder, error) {
	var lastErr error
	for attempt := 0; attempt <= maxOptimisticRetries; attempt++ {
		current, err := e.store.GetDraftOrder(ctx, tenantID, draftID)
		if err != nil {
			return nil, err
		}
		var applyErr error
		updated, err := e.store.UpdateDraftOrderVersioned(ctx, tenantID, draftID, current.Version, func(d *db.DraftOrder) {
			applyErr = fn(d)
		})
		if applyErr != nil {
			return nil, applyErr
		}
		if err == nil {
			return updated, nil
		}
		if kind, ok := coreerr.KindOf(err); !ok || kind != coreerr.OptimisticConflict {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// Transition moves a draft from its current status to `to`, auditing the
// before/after snapshot. Fails with StateMachineViolation if the edge is
// not allowed.
func (e *Engine) Transition(ctx context.Context, tenantID, draftID, to, actorID string) (*db.DraftOrder, error) {
	var before db.DraftOrder
	updated, err := e.withRetry(ctx, tenantID, draftID, func(d *db.DraftOrder) error {
		before = *d
		if err := CheckTransition(d.Status, to); err != nil {
			return err
		}
		d.Status = to
		return nil
	})
	if err != nil {
		return nil, err
	}
	_ = e.store.CreateAuditLog(ctx, db.CreateAuditLogParams{
		TenantID: tenantID, ActorID: actorID, Action: "transition",
		EntityType: "draft_order", EntityID: draftID,
		Before: map[string]string{"status": before.Status},
		After:  map[string]string{"status": updated.Status},
	})
	return updated, nil
}

// RunReadyCheck recomputes the ready-check snapshot and auto-flips status
// between NEEDS_REVIEW and READY per spec.md §4.11. Call after extraction
// completion, line mutation, customer selection, issue status change, or
// matching update.
func (e *Engine) RunReadyCheck(ctx context.Context, tenantID, draftID string) (*db.DraftOrder, ReadyCheckResult, error) {
	lines, err := e.store.ListDraftOrderLines(ctx, tenantID, draftID)
	if err != nil {
		return nil, ReadyCheckResult{}, err
	}
	openErrors, err := e.store.CountOpenErrorIssues(ctx, tenantID, draftID)
	if err != nil {
		return nil, ReadyCheckResult{}, err
	}

	var result ReadyCheckResult
	var before db.DraftOrder
	updated, err := e.withRetry(ctx, tenantID, draftID, func(d *db.DraftOrder) error {
		before = *d
		result = CheckReady(*d, lines, openErrors, e.now())
		raw, err := json.Marshal(result)
		if err != nil {
			return err
		}
		d.ReadyCheckJSON = raw

		if next, changed := NextStatus(d.Status, result); changed {
			d.Status = next
		}
		return nil
	})
	if err != nil {
		return nil, ReadyCheckResult{}, err
	}
	if before.Status != updated.Status {
		_ = e.store.CreateAuditLog(ctx, db.CreateAuditLogParams{
			TenantID: tenantID, ActorID: "system:ready-check", Action: "transition",
			EntityType: "draft_order", EntityID: draftID,
			Before: map[string]string{"status": before.Status},
			After:  map[string]string{"status": updated.Status},
		})
	}
	return updated, result, nil
}

// Approve implements the C12 Approve step: READY -> APPROVED plus stamping
// the approver and timestamp in the same optimistic-concurrency attempt as
// the transition, auditing the before/after snapshot.
func (e *Engine) Approve(ctx context.Context, tenantID, draftID, actorID string) (*db.DraftOrder, error) {
	var before db.DraftOrder
	updated, err := e.withRetry(ctx, tenantID, draftID, func(d *db.DraftOrder) error {
		before = *d
		if err := CheckTransition(d.Status, StatusApproved); err != nil {
			return err
		}
		d.Status = StatusApproved
		d.ApprovedBy = sql.NullString{String: actorID, Valid: true}
		d.ApprovedAt = sql.NullTime{Time: e.now(), Valid: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	_ = e.store.CreateAuditLog(ctx, db.CreateAuditLogParams{
		TenantID: tenantID, ActorID: actorID, Action: "approve",
		EntityType: "draft_order", EntityID: draftID,
		Before: map[string]string{"status": before.Status},
		After:  map[string]string{"status": updated.Status, "approved_by": actorID},
	})
	return updated, nil
}

// ApplyConfidences stores freshly computed confidence scores without a
// status transition; callers call RunReadyCheck separately since different
// events recompute different confidence components.
func (e *Engine) ApplyConfidences(ctx context.Context, tenantID, draftID string, extraction, customer, matching *float64) (*db.DraftOrder, error) {
	return e.withRetry(ctx, tenantID, draftID, func(d *db.DraftOrder) error {
		if extraction != nil {
			d.ExtractionConfidence = *extraction
		}
		if customer != nil {
			d.CustomerConfidence = *customer
		}
		if matching != nil {
			d.MatchingConfidence = *matching
		}
		d.ConfidenceScore = OverallConfidence(d.ExtractionConfidence, d.CustomerConfidence, d.MatchingConfidence)
		return nil
	})
}
