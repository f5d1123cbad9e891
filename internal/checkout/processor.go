package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	log "github.com/sirupsen/logrus"

	"gsw-platform/internal/models"
	"gsw-platform/internal/store"
)

var (
	// ErrMissingReference means the session metadata does not carry the
	// pending-input correlation id. Fatal for the event, never retried here.
	ErrMissingReference = errors.New("session metadata is missing the form data reference")

	// ErrNoPendingData means no pending submission exists for the
	// correlation id. Fatal for the event, never retried here.
	ErrNoPendingData = errors.New("no pending form data found for reference")
)

// PendingStore is the slice of pending-input persistence the processor needs.
type PendingStore interface {
	Get(ctx context.Context, id string) (*models.PendingInput, error)
	MarkProcessed(ctx context.Context, id string) error
}

// PurchaseStore is the slice of purchase persistence the processor needs.
// Insert must return store.ErrDuplicateSession when the session id is
// already taken.
type PurchaseStore interface {
	GetBySessionID(ctx context.Context, sessionID string) (*models.Purchase, error)
	Insert(ctx context.Context, p *models.Purchase) error
}

// Result is what the webhook needs to trigger background generation.
type Result struct {
	PurchaseID        string
	CustomerEmail     string
	FormData          types.JSONText
	CustomerReference string
	AlreadyProcessed  bool
}

// Processor turns a verified checkout-completed event into a purchase row,
// exactly once per checkout session.
type Processor struct {
	pending   PendingStore
	purchases PurchaseStore
}

func NewProcessor(pending PendingStore, purchases PurchaseStore) *Processor {
	return &Processor{pending: pending, purchases: purchases}
}

// Process persists the purchase for a completed checkout session. Replayed
// events short-circuit on the existing row and report AlreadyProcessed so
// the caller skips re-triggering generation.
func (p *Processor) Process(ctx context.Context, sess *Session) (*Result, error) {
	formDataID := sess.Metadata[MetadataFormDataKey]
	if formDataID == "" {
		return nil, ErrMissingReference
	}

	existing, err := p.purchases.GetBySessionID(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}
	if existing != nil {
		log.WithFields(log.Fields{
			"session_id":  sess.ID,
			"purchase_id": existing.ID,
		}).Info("Checkout session already processed, skipping")
		return resultFor(existing, true), nil
	}

	pending, err := p.pending.Get(ctx, formDataID)
	if err != nil {
		return nil, fmt.Errorf("pending lookup: %w", err)
	}
	if pending == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoPendingData, formDataID)
	}

	// Prefer the email Stripe collected at checkout; fall back to the one
	// submitted with the form.
	email := sess.CustomerEmail
	if email == "" {
		email = pending.CustomerEmail
	}

	purchase := &models.Purchase{
		ID:                uuid.NewString(),
		StripeSessionID:   sess.ID,
		PaymentStatus:     "completed",
		CustomerEmail:     email,
		AmountPaid:        float64(sess.AmountTotal) / 100,
		FormData:          pending.FormData,
		CustomerReference: NewReference(),
	}

	if err := p.purchases.Insert(ctx, purchase); err != nil {
		if errors.Is(err, store.ErrDuplicateSession) {
			// Lost a race with a concurrent delivery of the same event.
			// The unique index is the real guard; treat as already done.
			winner, lookupErr := p.purchases.GetBySessionID(ctx, sess.ID)
			if lookupErr != nil || winner == nil {
				return nil, fmt.Errorf("duplicate session %s but lookup failed: %w", sess.ID, lookupErr)
			}
			return resultFor(winner, true), nil
		}
		return nil, fmt.Errorf("insert purchase: %w", err)
	}

	if err := p.pending.MarkProcessed(ctx, pending.ID); err != nil {
		// Non-fatal: the purchase is recorded and generation must still
		// run. The stale flag has no bearing on idempotency.
		log.WithError(err).WithFields(log.Fields{
			"pending_id":  pending.ID,
			"purchase_id": purchase.ID,
		}).Warn("Failed to mark pending input processed")
	}

	log.WithFields(log.Fields{
		"session_id":  sess.ID,
		"purchase_id": purchase.ID,
		"reference":   purchase.CustomerReference,
		"amount_paid": purchase.AmountPaid,
	}).Info("Recorded new purchase")

	return resultFor(purchase, false), nil
}

func resultFor(p *models.Purchase, alreadyProcessed bool) *Result {
	return &Result{
		PurchaseID:        p.ID,
		CustomerEmail:     p.CustomerEmail,
		FormData:          p.FormData,
		CustomerReference: p.CustomerReference,
		AlreadyProcessed:  alreadyProcessed,
	}
}
