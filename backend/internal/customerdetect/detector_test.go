package customerdetect

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/orderflow/internal/db"
)

type fakeStore struct {
	customers    []db.Customer
	contacts     []db.CustomerContact
	byEmail      map[string]string // email -> customerID
	byERPNumber  map[string]string // erp number -> customerID
}

func (f *fakeStore) ListCustomers(ctx context.Context, tenantID string) ([]db.Customer, error) {
	return f.customers, nil
}

func (f *fakeStore) ListCustomerContacts(ctx context.Context, tenantID string) ([]db.CustomerContact, error) {
	return f.contacts, nil
}

func (f *fakeStore) FindCustomerByExactEmail(ctx context.Context, tenantID, email string) (*db.CustomerContact, error) {
	if cid, ok := f.byEmail[email]; ok {
		return &db.CustomerContact{CustomerID: cid, Email: email}, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeStore) FindCustomerByERPNumber(ctx context.Context, tenantID, erpNumber string) (*db.Customer, error) {
	if cid, ok := f.byERPNumber[erpNumber]; ok {
		return &db.Customer{ID: cid}, nil
	}
	return nil, sql.ErrNoRows
}

func TestDetect_ExactEmailAutoSelects(t *testing.T) {
	store := &fakeStore{byEmail: map[string]string{"buyer@acme.com": "cust-1"}}
	d := New(store)

	res, err := d.Detect(context.Background(), "t1", Input{SenderEmail: "buyer@acme.com"})
	require.NoError(t, err)
	require.NotNil(t, res.AutoSelected)
	assert.Equal(t, "cust-1", res.AutoSelected.CustomerID)
	assert.InDelta(t, ScoreS1, res.AutoSelected.Score, 0.001)
}

func TestDetect_AmbiguousWhenTwoCustomersShareDomain(t *testing.T) {
	store := &fakeStore{
		contacts: []db.CustomerContact{
			{CustomerID: "cust-a", Email: "buyer@customer.de"},
			{CustomerID: "cust-b", Email: "other@customer.de"},
		},
	}
	d := New(store)

	res, err := d.Detect(context.Background(), "t1", Input{SenderEmail: "buyer@customer.de"})
	require.NoError(t, err)
	assert.True(t, res.Ambiguous)
	assert.Nil(t, res.AutoSelected)
	require.Len(t, res.Candidates, 2)
	assert.InDelta(t, ScoreS2, res.Candidates[0].Score, 0.001)
	assert.InDelta(t, ScoreS2, res.Candidates[1].Score, 0.001)
}

func TestDetect_GenericDomainExcludedFromS2(t *testing.T) {
	store := &fakeStore{
		contacts: []db.CustomerContact{{CustomerID: "cust-a", Email: "someone@gmail.com"}},
	}
	d := New(store)

	res, err := d.Detect(context.Background(), "t1", Input{SenderEmail: "buyer@gmail.com"})
	require.NoError(t, err)
	assert.True(t, res.Ambiguous)
	assert.Empty(t, res.Candidates)
}

func TestExtractERPNumber(t *testing.T) {
	assert.Equal(t, "A1234", ExtractERPNumber("Kundennr: A1234"))
	assert.Equal(t, "B-99", ExtractERPNumber("Customer No. B-99 follows"))
	assert.Equal(t, "", ExtractERPNumber("no match here"))
}

func TestS5Score(t *testing.T) {
	_, ok := S5Score(0.39)
	assert.False(t, ok)

	score, ok := S5Score(1.0)
	require.True(t, ok)
	assert.InDelta(t, 0.85, score, 0.001) // capped
}

func TestManualConfidence(t *testing.T) {
	assert.Equal(t, 0.90, ManualConfidence(0.5))
	assert.Equal(t, 0.95, ManualConfidence(0.95))
}
