package draftengine

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/orderflow/internal/coreerr"
	"github.com/orderflow/orderflow/internal/db"
)

// fakeStore is an in-memory Store that mimics UpdateDraftOrderVersioned's
// optimistic-concurrency contract: a version mismatch returns
// coreerr.OptimisticConflict instead of applying the mutation.
type fakeStore struct {
	order        db.DraftOrder
	lines        []db.DraftOrderLine
	openErrors   int
	conflictOnce bool
	auditLogs    []db.CreateAuditLogParams
}

func (f *fakeStore) GetDraftOrder(ctx context.Context, tenantID, id string) (*db.DraftOrder, error) {
	cp := f.order
	return &cp, nil
}

func (f *fakeStore) UpdateDraftOrderVersioned(ctx context.Context, tenantID, id string, expectedVersion int64, mutate func(*db.DraftOrder)) (*db.DraftOrder, error) {
	if expectedVersion != f.order.Version {
		return nil, coreerr.New(coreerr.OptimisticConflict, "version mismatch")
	}
	if f.conflictOnce {
		f.conflictOnce = false
		return nil, coreerr.New(coreerr.OptimisticConflict, "concurrent writer")
	}
	cp := f.order
	mutate(&cp)
	cp.Version++
	f.order = cp
	out := cp
	return &out, nil
}

func (f *fakeStore) ListDraftOrderLines(ctx context.Context, tenantID, draftID string) ([]db.DraftOrderLine, error) {
	return f.lines, nil
}

func (f *fakeStore) CountOpenErrorIssues(ctx context.Context, tenantID, draftOrderID string) (int, error) {
	return f.openErrors, nil
}

func (f *fakeStore) CreateAuditLog(ctx context.Context, p db.CreateAuditLogParams) error {
	f.auditLogs = append(f.auditLogs, p)
	return nil
}

func TestTransition_AppliesAllowedEdgeAndAudits(t *testing.T) {
	store := &fakeStore{order: db.DraftOrder{Status: StatusNew, Version: 1}}
	e := New(store)

	updated, err := e.Transition(context.Background(), "t1", "d1", StatusExtracted, "actor-1")
	require.NoError(t, err)
	assert.Equal(t, StatusExtracted, updated.Status)
	assert.Len(t, store.auditLogs, 1)
	assert.Equal(t, "transition", store.auditLogs[0].Action)
}

func TestTransition_RejectsIllegalEdge(t *testing.T) {
	store := &fakeStore{order: db.DraftOrder{Status: StatusNew, Version: 1}}
	e := New(store)

	_, err := e.Transition(context.Background(), "t1", "d1", StatusApproved, "actor-1")
	require.Error(t, err)
	kind, ok := coreerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, coreerr.StateMachineViolation, kind)
	assert.Empty(t, store.auditLogs)
}

func TestTransition_RetriesOnOptimisticConflict(t *testing.T) {
	store := &fakeStore{order: db.DraftOrder{Status: StatusNew, Version: 1}, conflictOnce: true}
	e := New(store)

	updated, err := e.Transition(context.Background(), "t1", "d1", StatusExtracted, "actor-1")
	require.NoError(t, err)
	assert.Equal(t, StatusExtracted, updated.Status)
}

func TestRunReadyCheck_FlipsToReadyAndAudits(t *testing.T) {
	store := &fakeStore{
		order: db.DraftOrder{
			Status:     StatusExtracted,
			Version:    1,
			CustomerID: sql.NullString{String: "cust-1", Valid: true},
			Currency:   sql.NullString{String: "USD", Valid: true},
		},
		lines: []db.DraftOrderLine{readyLine()},
	}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := New(store).WithClock(func() time.Time { return now })

	updated, result, err := e.RunReadyCheck(context.Background(), "t1", "d1")
	require.NoError(t, err)
	assert.True(t, result.IsReady)
	assert.Equal(t, StatusReady, updated.Status)
	assert.Len(t, store.auditLogs, 1)
}

func TestRunReadyCheck_StaysNeedsReviewWhenBlocked(t *testing.T) {
	store := &fakeStore{order: db.DraftOrder{Status: StatusNeedsReview, Version: 1}}
	e := New(store)

	updated, result, err := e.RunReadyCheck(context.Background(), "t1", "d1")
	require.NoError(t, err)
	assert.False(t, result.IsReady)
	assert.Equal(t, StatusNeedsReview, updated.Status)
	assert.Empty(t, store.auditLogs)
}

func TestApprove_StampsApproverAndTimestamp(t *testing.T) {
	store := &fakeStore{order: db.DraftOrder{Status: StatusReady, Version: 1}}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := New(store).WithClock(func() time.Time { return now })

	updated, err := e.Approve(context.Background(), "t1", "d1", "actor-1")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, updated.Status)
	assert.Equal(t, "actor-1", updated.ApprovedBy.String)
	assert.True(t, updated.ApprovedAt.Valid)
	assert.Equal(t, now, updated.ApprovedAt.Time)
}

func TestApprove_RejectsFromWrongStatus(t *testing.T) {
	store := &fakeStore{order: db.DraftOrder{Status: StatusNeedsReview, Version: 1}}
	e := New(store)

	_, err := e.Approve(context.Background(), "t1", "d1", "actor-1")
	require.Error(t, err)
}

func TestApplyConfidences_RecomputesOverall(t *testing.T) {
	store := &fakeStore{order: db.DraftOrder{Status: StatusExtracted, Version: 1}}
	e := New(store)

	extraction, customer, matching := 0.8, 0.9, 0.7
	updated, err := e.ApplyConfidences(context.Background(), "t1", "d1", &extraction, &customer, &matching)
	require.NoError(t, err)
	assert.InDelta(t, OverallConfidence(0.8, 0.9, 0.7), updated.ConfidenceScore, 0.0001)
}
