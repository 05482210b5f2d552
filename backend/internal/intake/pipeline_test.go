package intake

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/orderflow/internal/db"
	"github.com/orderflow/orderflow/internal/dedup"
)

type fakeStore struct {
	tenant    *db.Tenant
	inbound   map[string]*db.InboundMessage
	documents map[string]*db.Document
}

func newFakeStore() *fakeStore {
	return &fakeStore{inbound: map[string]*db.InboundMessage{}, documents: map[string]*db.Document{}}
}

func (f *fakeStore) FindTenantBySlug(ctx context.Context, slug string) (*db.Tenant, error) {
	if f.tenant == nil || f.tenant.Slug != slug {
		return nil, sql.ErrNoRows
	}
	return f.tenant, nil
}

func (f *fakeStore) CreateInboundMessage(ctx context.Context, m db.InboundMessage) (*db.InboundMessage, error) {
	m.ID = "inbound-" + m.ProviderMessageID.String
	f.inbound[m.ID] = &m
	return &m, nil
}

func (f *fakeStore) UpdateInboundMessageStatus(ctx context.Context, tenantID, id, status string) error {
	if m, ok := f.inbound[id]; ok {
		m.Status = status
	}
	return nil
}

func (f *fakeStore) GetInboundMessage(ctx context.Context, tenantID, id string) (*db.InboundMessage, error) {
	if m, ok := f.inbound[id]; ok {
		return m, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeStore) CreateDocument(ctx context.Context, d db.Document) (*db.Document, error) {
	d.ID = "doc-" + d.SHA256Hex
	f.documents[d.ID] = &d
	return &d, nil
}

type fakeDedupStore struct{}

func (fakeDedupStore) FindInboundByDedupKey(ctx context.Context, tenantID, source, providerMessageID string) (*db.InboundMessage, error) {
	return nil, sql.ErrNoRows
}
func (fakeDedupStore) FindDocumentByDedupKey(ctx context.Context, tenantID, sha256Hex, filename string, size int64) (*db.Document, error) {
	return nil, sql.ErrNoRows
}

type fakeObjectStore struct {
	puts map[string][]byte
}

func (f *fakeObjectStore) Put(ctx context.Context, key string, data []byte) error {
	if f.puts == nil {
		f.puts = map[string][]byte{}
	}
	f.puts[key] = data
	return nil
}
func (f *fakeObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	d, ok := f.puts[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return d, nil
}
func (f *fakeObjectStore) Delete(ctx context.Context, key string) error { return nil }
func (f *fakeObjectStore) PresignedRead(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "", nil
}

type fakePublisher struct {
	published []string
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.published = append(f.published, subject)
	return nil
}

func TestAcceptUpload_UnknownTenant(t *testing.T) {
	store := newFakeStore()
	pub := &fakePublisher{}
	p := New(store, dedup.New(fakeDedupStore{}), &fakeObjectStore{}, pub)

	result, err := p.AcceptUpload(context.Background(), "ghost", "order.csv", "key1", []byte("sku,qty\n"), 1<<20)
	require.NoError(t, err)
	assert.True(t, result.TenantUnknown)
}

func TestAcceptUpload_TooLarge(t *testing.T) {
	store := newFakeStore()
	store.tenant = &db.Tenant{ID: "t1", Slug: "acme"}
	p := New(store, dedup.New(fakeDedupStore{}), &fakeObjectStore{}, &fakePublisher{})

	result, err := p.AcceptUpload(context.Background(), "acme", "order.csv", "key1", []byte("sku,qty\n1,2\n"), 4)
	require.NoError(t, err)
	assert.True(t, result.TooLarge)
}

func TestAcceptUpload_RejectsUnsupportedType(t *testing.T) {
	store := newFakeStore()
	store.tenant = &db.Tenant{ID: "t1", Slug: "acme"}
	p := New(store, dedup.New(fakeDedupStore{}), &fakeObjectStore{}, &fakePublisher{})

	_, err := p.AcceptUpload(context.Background(), "acme", "payload.exe", "key1", []byte("MZ\x90\x00"), 1<<20)
	require.Error(t, err)
}

func TestAcceptUpload_StoresDocumentAndEnqueues(t *testing.T) {
	store := newFakeStore()
	store.tenant = &db.Tenant{ID: "t1", Slug: "acme"}
	pub := &fakePublisher{}
	p := New(store, dedup.New(fakeDedupStore{}), &fakeObjectStore{puts: map[string][]byte{}}, pub)

	result, err := p.AcceptUpload(context.Background(), "acme", "order.csv", "key1", []byte("sku,qty\nAB-1,2\n"), 1<<20)
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	require.Len(t, store.documents, 1)
	assert.Contains(t, pub.published, "extraction.dispatch")
}
