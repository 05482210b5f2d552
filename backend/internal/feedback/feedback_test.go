package feedback

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/orderflow/internal/db"
)

type fakeStore struct {
	events       []db.FeedbackEvent
	mappings     []db.SkuMapping
	rejectedID   string
	byFingerprint map[string][]db.FeedbackEvent
}

func (f *fakeStore) InsertFeedbackEvent(ctx context.Context, tenantID string, draftOrderID sql.NullString, kind string, before, after interface{}, layoutFingerprint sql.NullString, actorID string) (*db.FeedbackEvent, error) {
	ev := db.FeedbackEvent{
		ID: "fe-" + kind, TenantID: tenantID, DraftOrderID: draftOrderID, Kind: kind,
		LayoutFingerprint: layoutFingerprint, ActorID: actorID,
	}
	f.events = append(f.events, ev)
	return &ev, nil
}

func (f *fakeStore) ListFeedbackByLayoutFingerprint(ctx context.Context, tenantID, layoutFingerprint string, limit int) ([]db.FeedbackEvent, error) {
	evs := f.byFingerprint[layoutFingerprint]
	if len(evs) > limit {
		evs = evs[:limit]
	}
	return evs, nil
}

func (f *fakeStore) UpsertConfirmedMapping(ctx context.Context, tenantID, customerID, normalizedSKU, internalSKU string) (*db.SkuMapping, error) {
	m := db.SkuMapping{ID: "m1", TenantID: tenantID, CustomerID: customerID, NormalizedSKU: normalizedSKU, InternalSKU: internalSKU, Status: "CONFIRMED"}
	f.mappings = append(f.mappings, m)
	return &m, nil
}

func (f *fakeStore) RejectMapping(ctx context.Context, tenantID, id string) error {
	f.rejectedID = id
	return nil
}

func TestMappingConfirm_UpsertsAndRecords(t *testing.T) {
	store := &fakeStore{}
	r := New(store)

	err := r.MappingConfirm(context.Background(), "t1", "draft1", "cust1", "ABC123", "SKU-9", "fp1", "operator1", map[string]string{"status": "SUGGESTED"})
	require.NoError(t, err)

	require.Len(t, store.mappings, 1)
	assert.Equal(t, "CONFIRMED", store.mappings[0].Status)
	require.Len(t, store.events, 1)
	assert.Equal(t, KindMappingConfirm, store.events[0].Kind)
	assert.True(t, store.events[0].DraftOrderID.Valid)
	assert.Equal(t, "draft1", store.events[0].DraftOrderID.String)
}

func TestMappingReject_MarksRejectedAndRecords(t *testing.T) {
	store := &fakeStore{}
	r := New(store)

	err := r.MappingReject(context.Background(), "t1", "draft1", "m1", "fp1", "operator1", map[string]string{"status": "SUGGESTED"})
	require.NoError(t, err)

	assert.Equal(t, "m1", store.rejectedID)
	require.Len(t, store.events, 1)
	assert.Equal(t, KindMappingReject, store.events[0].Kind)
}

func TestFewShotExamples_EmptyFingerprint(t *testing.T) {
	store := &fakeStore{}
	r := New(store)

	out, err := r.FewShotExamples(context.Background(), "t1", "")
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestFewShotExamples_FiltersToFieldEditAndCaps(t *testing.T) {
	store := &fakeStore{byFingerprint: map[string][]db.FeedbackEvent{
		"fp1": {
			{Kind: KindFieldEdit, BeforeJSON: []byte(`{"qty":1}`), AfterJSON: []byte(`{"qty":2}`)},
			{Kind: KindCustomerSelect, BeforeJSON: []byte(`{}`), AfterJSON: []byte(`{}`)},
			{Kind: KindFieldEdit, BeforeJSON: []byte(`{"uom":"EA"}`), AfterJSON: []byte(`{"uom":"ST"}`)},
			{Kind: KindFieldEdit, BeforeJSON: []byte(`{"price":1}`), AfterJSON: []byte(`{"price":2}`)},
			{Kind: KindFieldEdit, BeforeJSON: []byte(`{"price":3}`), AfterJSON: []byte(`{"price":4}`)},
		},
	}}
	r := New(store)

	out, err := r.FewShotExamples(context.Background(), "t1", "fp1")
	require.NoError(t, err)
	require.Len(t, out, fewShotLimit)
	assert.Equal(t, `{"qty":1}`, out[0].InputExcerpt)
	assert.Equal(t, `{"qty":2}`, out[0].OutputJSON)
}
