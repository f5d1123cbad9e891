package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gsw-platform/internal/models"
	"gsw-platform/internal/store"
)

type fakePendingStore struct {
	records       map[string]*models.PendingInput
	markErr       error
	markProcessed []string
}

func (f *fakePendingStore) Get(_ context.Context, id string) (*models.PendingInput, error) {
	return f.records[id], nil
}

func (f *fakePendingStore) MarkProcessed(_ context.Context, id string) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.markProcessed = append(f.markProcessed, id)
	if rec, ok := f.records[id]; ok {
		rec.Processed = true
	}
	return nil
}

type fakePurchaseStore struct {
	bySession map[string]*models.Purchase
	insertErr error
	inserted  int
}

func (f *fakePurchaseStore) GetBySessionID(_ context.Context, sessionID string) (*models.Purchase, error) {
	return f.bySession[sessionID], nil
}

func (f *fakePurchaseStore) Insert(_ context.Context, p *models.Purchase) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	if _, exists := f.bySession[p.StripeSessionID]; exists {
		return store.ErrDuplicateSession
	}
	f.bySession[p.StripeSessionID] = p
	f.inserted++
	return nil
}

func newFixtures() (*fakePendingStore, *fakePurchaseStore, *Processor) {
	pending := &fakePendingStore{records: map[string]*models.PendingInput{
		"p1": {
			ID:            "p1",
			FormData:      types.JSONText(`{"graduate_name":"Alex","school":"Northfield High"}`),
			CustomerEmail: "fallback@example.com",
		},
	}}
	purchases := &fakePurchaseStore{bySession: map[string]*models.Purchase{}}
	return pending, purchases, NewProcessor(pending, purchases)
}

func completedSession() *Session {
	return &Session{
		ID:            "cs_1",
		CustomerEmail: "a@b.com",
		PaymentStatus: "paid",
		AmountTotal:   2999,
		Metadata:      map[string]string{MetadataFormDataKey: "p1"},
	}
}

func TestProcessCreatesPurchase(t *testing.T) {
	pending, purchases, proc := newFixtures()

	res, err := proc.Process(context.Background(), completedSession())
	require.NoError(t, err)

	assert.False(t, res.AlreadyProcessed)
	assert.Equal(t, "a@b.com", res.CustomerEmail)
	assert.Regexp(t, `^GSW-[A-Z0-9]{6}$`, res.CustomerReference)
	assert.JSONEq(t, `{"graduate_name":"Alex","school":"Northfield High"}`, string(res.FormData))

	stored := purchases.bySession["cs_1"]
	require.NotNil(t, stored)
	assert.Equal(t, "completed", stored.PaymentStatus)
	assert.InDelta(t, 29.99, stored.AmountPaid, 0.0001)
	assert.False(t, stored.SpeechesGenerated)
	assert.False(t, stored.EmailsSent)

	assert.True(t, pending.records["p1"].Processed)
	assert.Equal(t, []string{"p1"}, pending.markProcessed)
}

func TestProcessIsIdempotent(t *testing.T) {
	_, purchases, proc := newFixtures()
	ctx := context.Background()

	first, err := proc.Process(ctx, completedSession())
	require.NoError(t, err)
	require.False(t, first.AlreadyProcessed)

	second, err := proc.Process(ctx, completedSession())
	require.NoError(t, err)

	assert.True(t, second.AlreadyProcessed)
	assert.Equal(t, first.PurchaseID, second.PurchaseID)
	assert.Equal(t, first.CustomerReference, second.CustomerReference)
	assert.Equal(t, 1, purchases.inserted)
}

func TestProcessMissingReference(t *testing.T) {
	_, purchases, proc := newFixtures()

	sess := completedSession()
	sess.Metadata = map[string]string{}

	_, err := proc.Process(context.Background(), sess)
	assert.ErrorIs(t, err, ErrMissingReference)
	assert.Zero(t, purchases.inserted)
}

func TestProcessNoPendingData(t *testing.T) {
	_, purchases, proc := newFixtures()

	sess := completedSession()
	sess.Metadata[MetadataFormDataKey] = "does-not-exist"

	_, err := proc.Process(context.Background(), sess)
	assert.ErrorIs(t, err, ErrNoPendingData)
	assert.Zero(t, purchases.inserted)
}

func TestProcessEmailFallback(t *testing.T) {
	_, purchases, proc := newFixtures()

	sess := completedSession()
	sess.CustomerEmail = ""

	res, err := proc.Process(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, "fallback@example.com", res.CustomerEmail)
	assert.Equal(t, "fallback@example.com", purchases.bySession["cs_1"].CustomerEmail)
}

func TestProcessMarkProcessedFailureIsNonFatal(t *testing.T) {
	pending, purchases, proc := newFixtures()
	pending.markErr = errors.New("connection reset")

	res, err := proc.Process(context.Background(), completedSession())
	require.NoError(t, err)
	assert.False(t, res.AlreadyProcessed)
	assert.Equal(t, 1, purchases.inserted)
}

func TestProcessDuplicateInsertRace(t *testing.T) {
	// Simulates two deliveries both passing the lookup: the second insert
	// hits the unique index and must resolve to the winner's row.
	winner := &models.Purchase{
		ID:                "purchase-winner",
		StripeSessionID:   "cs_1",
		CustomerEmail:     "a@b.com",
		CustomerReference: "GSW-AAAAAA",
	}
	proc := NewProcessor(
		&fakePendingStore{records: map[string]*models.PendingInput{
			"p1": {ID: "p1", FormData: types.JSONText(`{}`), CustomerEmail: "x@y.z"},
		}},
		&racingPurchaseStore{winner: winner},
	)

	res, err := proc.Process(context.Background(), completedSession())
	require.NoError(t, err)
	assert.True(t, res.AlreadyProcessed)
	assert.Equal(t, "purchase-winner", res.PurchaseID)
	assert.Equal(t, "GSW-AAAAAA", res.CustomerReference)
}

// racingPurchaseStore reports no existing row on the first lookup, rejects
// the insert as a duplicate, then serves the winning row.
type racingPurchaseStore struct {
	winner  *models.Purchase
	lookups int
}

func (r *racingPurchaseStore) GetBySessionID(_ context.Context, _ string) (*models.Purchase, error) {
	r.lookups++
	if r.lookups == 1 {
		return nil, nil
	}
	return r.winner, nil
}

func (r *racingPurchaseStore) Insert(_ context.Context, _ *models.Purchase) error {
	return store.ErrDuplicateSession
}
