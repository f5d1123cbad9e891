package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"gsw-platform/internal/models"
)

// ErrDuplicateSession is returned by Insert when a purchase already exists
// for the same Stripe session id. The unique index on stripe_session_id is
// the authoritative idempotency guard; the application-level lookup before
// insert is best-effort only.
var ErrDuplicateSession = errors.New("purchase already exists for this checkout session")

const uniqueViolation = "23505"

// PurchaseStore persists completed purchases.
type PurchaseStore struct {
	DB *sqlx.DB
}

func NewPurchaseStore(db *sqlx.DB) *PurchaseStore {
	return &PurchaseStore{DB: db}
}

// Insert creates a new purchase row. A unique violation on the session id
// maps to ErrDuplicateSession.
func (s *PurchaseStore) Insert(ctx context.Context, p *models.Purchase) error {
	query := `INSERT INTO purchases
	            (id, stripe_session_id, payment_status, customer_email, amount_paid,
	             form_data, customer_reference, speeches_generated, emails_sent)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.DB.ExecContext(ctx, query,
		p.ID, p.StripeSessionID, p.PaymentStatus, p.CustomerEmail, p.AmountPaid,
		p.FormData, p.CustomerReference, p.SpeechesGenerated, p.EmailsSent,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateSession
		}
		return fmt.Errorf("insert purchase: %w", err)
	}
	return nil
}

// GetBySessionID fetches a purchase by its Stripe checkout session id.
// Returns (nil, nil) if not found.
func (s *PurchaseStore) GetBySessionID(ctx context.Context, sessionID string) (*models.Purchase, error) {
	return s.getWhere(ctx, `stripe_session_id = $1`, sessionID)
}

// GetByID fetches a purchase by primary key. Returns (nil, nil) if not found.
func (s *PurchaseStore) GetByID(ctx context.Context, id string) (*models.Purchase, error) {
	return s.getWhere(ctx, `id = $1`, id)
}

// GetByReference fetches a purchase by its customer-facing reference code.
// Returns (nil, nil) if not found.
func (s *PurchaseStore) GetByReference(ctx context.Context, reference string) (*models.Purchase, error) {
	return s.getWhere(ctx, `customer_reference = $1`, reference)
}

func (s *PurchaseStore) getWhere(ctx context.Context, where string, arg any) (*models.Purchase, error) {
	var purchase models.Purchase
	query := `SELECT id, stripe_session_id, payment_status, customer_email, amount_paid,
	                 form_data, customer_reference, speeches_generated, emails_sent,
	                 speeches, created_at
	          FROM purchases WHERE ` + where

	err := s.DB.GetContext(ctx, &purchase, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get purchase: %w", err)
	}
	return &purchase, nil
}

// List returns purchases newest first, paged by limit and offset.
func (s *PurchaseStore) List(ctx context.Context, limit, offset int) ([]models.Purchase, error) {
	var purchases []models.Purchase
	query := `SELECT id, stripe_session_id, payment_status, customer_email, amount_paid,
	                 form_data, customer_reference, speeches_generated, emails_sent,
	                 speeches, created_at
	          FROM purchases ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	if err := s.DB.SelectContext(ctx, &purchases, query, limit, offset); err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	return purchases, nil
}

// SetSpeechesGenerated stores the generated drafts and flips the
// speeches_generated flag.
func (s *PurchaseStore) SetSpeechesGenerated(ctx context.Context, id string, speeches types.JSONText) error {
	query := `UPDATE purchases SET speeches = $1, speeches_generated = true WHERE id = $2`
	if _, err := s.DB.ExecContext(ctx, query, speeches, id); err != nil {
		return fmt.Errorf("set speeches generated: %w", err)
	}
	return nil
}

// SetEmailsSent flips the emails_sent flag once delivery has succeeded.
func (s *PurchaseStore) SetEmailsSent(ctx context.Context, id string) error {
	if _, err := s.DB.ExecContext(ctx, `UPDATE purchases SET emails_sent = true WHERE id = $1`, id); err != nil {
		return fmt.Errorf("set emails sent: %w", err)
	}
	return nil
}
