package push

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/orderflow/internal/coreerr"
	"github.com/orderflow/orderflow/internal/db"
	"github.com/orderflow/orderflow/internal/draftengine"
)

// fakeEngineStore backs a real *draftengine.Engine the same way the
// optimistic-concurrency tests in that package do, so Pusher exercises the
// actual transition/ready-check logic rather than a stub.
type fakeEngineStore struct {
	order db.DraftOrder
}

func (f *fakeEngineStore) GetDraftOrder(ctx context.Context, tenantID, id string) (*db.DraftOrder, error) {
	cp := f.order
	return &cp, nil
}

func (f *fakeEngineStore) UpdateDraftOrderVersioned(ctx context.Context, tenantID, id string, expectedVersion int64, mutate func(*db.DraftOrder)) (*db.DraftOrder, error) {
	if expectedVersion != f.order.Version {
		return nil, coreerr.New(coreerr.OptimisticConflict, "version mismatch")
	}
	cp := f.order
	mutate(&cp)
	cp.Version++
	f.order = cp
	out := cp
	return &out, nil
}

func (f *fakeEngineStore) ListDraftOrderLines(ctx context.Context, tenantID, draftID string) ([]db.DraftOrderLine, error) {
	return nil, nil
}

func (f *fakeEngineStore) CountOpenErrorIssues(ctx context.Context, tenantID, draftOrderID string) (int, error) {
	return 0, nil
}

func (f *fakeEngineStore) CreateAuditLog(ctx context.Context, p db.CreateAuditLogParams) error {
	return nil
}

type fakePushStore struct {
	order      db.DraftOrder
	lines      []db.DraftOrderLine
	customer   db.Customer
	document   db.Document
	exports    []db.DraftOrderExport
	ackUpdates []struct {
		draftID  string
		erpOK    string
		erpError string
	}
}

func (f *fakePushStore) GetDraftOrder(ctx context.Context, tenantID, id string) (*db.DraftOrder, error) {
	cp := f.order
	return &cp, nil
}

func (f *fakePushStore) ListDraftOrderLines(ctx context.Context, tenantID, draftID string) ([]db.DraftOrderLine, error) {
	return f.lines, nil
}

func (f *fakePushStore) GetCustomer(ctx context.Context, tenantID, id string) (*db.Customer, error) {
	cp := f.customer
	return &cp, nil
}

func (f *fakePushStore) GetDocument(ctx context.Context, tenantID, id string) (*db.Document, error) {
	cp := f.document
	return &cp, nil
}

func (f *fakePushStore) FindExportByIdempotencyKey(ctx context.Context, tenantID, draftOrderID, idempotencyKey string) (*db.DraftOrderExport, error) {
	for _, e := range f.exports {
		if e.IdempotencyKey.Valid && e.IdempotencyKey.String == idempotencyKey {
			cp := e
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakePushStore) FindLatestExport(ctx context.Context, tenantID, draftOrderID string) (*db.DraftOrderExport, error) {
	if len(f.exports) == 0 {
		return nil, sql.ErrNoRows
	}
	cp := f.exports[len(f.exports)-1]
	return &cp, nil
}

func (f *fakePushStore) CreateExport(ctx context.Context, e db.DraftOrderExport) (*db.DraftOrderExport, error) {
	e.ID = "export-1"
	f.exports = append(f.exports, e)
	cp := e
	return &cp, nil
}

func (f *fakePushStore) SetERPAckMetadata(ctx context.Context, tenantID, id string, erpOrderID, ackError sql.NullString) error {
	f.ackUpdates = append(f.ackUpdates, struct {
		draftID  string
		erpOK    string
		erpError string
	}{draftID: id, erpOK: erpOrderID.String, erpError: ackError.String})
	return nil
}

type fakeDropzone struct {
	written map[string][]byte
	acks    map[string][]byte
	deleted []string
}

func newFakeDropzone() *fakeDropzone {
	return &fakeDropzone{written: map[string][]byte{}, acks: map[string][]byte{}}
}

func (d *fakeDropzone) WriteAtomic(ctx context.Context, path string, data []byte) error {
	d.written[path] = data
	return nil
}

func (d *fakeDropzone) ListAcks(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	for name := range d.acks {
		names = append(names, name)
	}
	return names, nil
}

func (d *fakeDropzone) Read(ctx context.Context, path string) ([]byte, error) {
	return d.acks[path], nil
}

func (d *fakeDropzone) Delete(ctx context.Context, path string) error {
	d.deleted = append(d.deleted, path)
	delete(d.acks, path)
	return nil
}

func newTestPusher(engineStore *fakeEngineStore, pushStore *fakePushStore, dropzone *fakeDropzone) *Pusher {
	engine := draftengine.New(engineStore).WithClock(func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) })
	tenantSlug := func(ctx context.Context, tenantID string) (string, error) { return "acme", nil }
	return New(pushStore, engine, dropzone, tenantSlug)
}

func TestPush_WritesExportAndTransitionsToPushed(t *testing.T) {
	order := db.DraftOrder{
		ID: "draft-1", Status: draftengine.StatusApproved, Version: 1,
		CustomerID: sql.NullString{String: "cust-1", Valid: true},
		Currency:   sql.NullString{String: "USD", Valid: true},
	}
	engineStore := &fakeEngineStore{order: order}
	pushStore := &fakePushStore{
		order:    order,
		customer: db.Customer{ID: "cust-1", Name: "Acme Co"},
		document: db.Document{ID: "doc-1", Filename: "po.pdf", SHA256Hex: "abc"},
	}
	dropzone := newFakeDropzone()
	pusher := newTestPusher(engineStore, pushStore, dropzone)

	export, err := pusher.Push(context.Background(), "t1", "draft-1", "actor-1", "idem-1")
	require.NoError(t, err)
	assert.NotEmpty(t, export.ExportFilename)
	assert.Equal(t, draftengine.StatusPushed, engineStore.order.Status)
	assert.Len(t, dropzone.written, 1)
}

func TestPush_RejectsFromWrongStatus(t *testing.T) {
	order := db.DraftOrder{ID: "draft-1", Status: draftengine.StatusNeedsReview, Version: 1}
	engineStore := &fakeEngineStore{order: order}
	pushStore := &fakePushStore{order: order}
	dropzone := newFakeDropzone()
	pusher := newTestPusher(engineStore, pushStore, dropzone)

	_, err := pusher.Push(context.Background(), "t1", "draft-1", "actor-1", "")
	require.Error(t, err)
	kind, ok := coreerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, coreerr.StateMachineViolation, kind)
}

func TestPush_IdempotentOnRepeatedKey(t *testing.T) {
	order := db.DraftOrder{
		ID: "draft-1", Status: draftengine.StatusApproved, Version: 1,
		CustomerID: sql.NullString{String: "cust-1", Valid: true},
		Currency:   sql.NullString{String: "USD", Valid: true},
	}
	engineStore := &fakeEngineStore{order: order}
	pushStore := &fakePushStore{
		order:    order,
		customer: db.Customer{ID: "cust-1", Name: "Acme Co"},
		document: db.Document{ID: "doc-1", Filename: "po.pdf", SHA256Hex: "abc"},
	}
	dropzone := newFakeDropzone()
	pusher := newTestPusher(engineStore, pushStore, dropzone)

	first, err := pusher.Push(context.Background(), "t1", "draft-1", "actor-1", "idem-1")
	require.NoError(t, err)

	second, err := pusher.Push(context.Background(), "t1", "draft-1", "actor-1", "idem-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, dropzone.written, 1) // no second write
}

func TestApprove_TransitionsReadyToApproved(t *testing.T) {
	order := db.DraftOrder{ID: "draft-1", Status: draftengine.StatusReady, Version: 1}
	engineStore := &fakeEngineStore{order: order}
	pushStore := &fakePushStore{order: order}
	pusher := newTestPusher(engineStore, pushStore, newFakeDropzone())

	updated, err := pusher.Approve(context.Background(), "t1", "draft-1", "actor-1")
	require.NoError(t, err)
	assert.Equal(t, draftengine.StatusApproved, updated.Status)
}

func TestPollAcks_AppliesSuccessAckAndDeletesFile(t *testing.T) {
	engineStore := &fakeEngineStore{order: db.DraftOrder{ID: "draft-1", Version: 1}}
	pushStore := &fakePushStore{}
	dropzone := newFakeDropzone()
	ackBody, _ := json.Marshal(map[string]string{"draft_order_id": "draft-1", "erp_order_id": "SO-100"})
	dropzone.acks["ack/ack_sales_order_draft-1_20260101T000000Z.json"] = ackBody
	pusher := newTestPusher(engineStore, pushStore, dropzone)

	err := pusher.PollAcks(context.Background(), "t1", "ack/")
	require.NoError(t, err)
	require.Len(t, pushStore.ackUpdates, 1)
	assert.Equal(t, "SO-100", pushStore.ackUpdates[0].erpOK)
	assert.Len(t, dropzone.deleted, 1)
}

func TestPollAcks_AppliesErrorAck(t *testing.T) {
	engineStore := &fakeEngineStore{order: db.DraftOrder{ID: "draft-1", Version: 1}}
	pushStore := &fakePushStore{}
	dropzone := newFakeDropzone()
	ackBody, _ := json.Marshal(map[string]string{"draft_order_id": "draft-1", "error": "customer not found in ERP"})
	dropzone.acks["ack/error_sales_order_draft-1_20260101T000000Z.json"] = ackBody
	pusher := newTestPusher(engineStore, pushStore, dropzone)

	err := pusher.PollAcks(context.Background(), "t1", "ack/")
	require.NoError(t, err)
	require.Len(t, pushStore.ackUpdates, 1)
	assert.Equal(t, "customer not found in ERP", pushStore.ackUpdates[0].erpError)
}
