package dedup

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/orderflow/internal/db"
)

type fakeStore struct {
	inbound  *db.InboundMessage
	document *db.Document
}

func (f *fakeStore) FindInboundByDedupKey(ctx context.Context, tenantID, source, providerMessageID string) (*db.InboundMessage, error) {
	if f.inbound == nil {
		return nil, sql.ErrNoRows
	}
	return f.inbound, nil
}

func (f *fakeStore) FindDocumentByDedupKey(ctx context.Context, tenantID, sha256Hex, filename string, size int64) (*db.Document, error) {
	if f.document == nil {
		return nil, sql.ErrNoRows
	}
	return f.document, nil
}

func TestCheckInbound_NoMatch(t *testing.T) {
	c := New(&fakeStore{})
	res, err := c.CheckInbound(context.Background(), "t1", "SMTP", "urn:sha256:abc")
	require.NoError(t, err)
	assert.False(t, res.IsDup)
	assert.Nil(t, res.Existing)
}

func TestCheckInbound_Match(t *testing.T) {
	existing := &db.InboundMessage{ID: "im-1"}
	c := New(&fakeStore{inbound: existing})
	res, err := c.CheckInbound(context.Background(), "t1", "SMTP", "urn:sha256:abc")
	require.NoError(t, err)
	assert.True(t, res.IsDup)
	assert.Equal(t, "im-1", res.Existing.ID)
}

func TestCheckDocument_Match(t *testing.T) {
	existing := &db.Document{ID: "doc-1"}
	c := New(&fakeStore{document: existing})
	res, err := c.CheckDocument(context.Background(), "t1", "deadbeef", "PO-100.pdf", 1024)
	require.NoError(t, err)
	assert.True(t, res.IsDup)
	assert.Equal(t, "doc-1", res.Existing.ID)
}
