package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// We use 'db' tags for sqlx to automatically map
// the database column names (snake_case) to our Go fields (CamelCase).

// Admin represents a dashboard user's authentication details.
type Admin struct {
	ID           int       `db:"id"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
}

// PendingInput is an unprocessed speech-form submission. It is created when
// a checkout session is initiated and consumed by the payment webhook.
// Rows are never deleted, only flipped to processed.
type PendingInput struct {
	ID            string         `db:"id"`
	FormData      types.JSONText `db:"form_data"`
	CustomerEmail string         `db:"customer_email"`
	Processed     bool           `db:"processed"`
	CreatedAt     time.Time      `db:"created_at"`
}

// Purchase is the durable result of a completed payment. At most one row
// exists per Stripe checkout session id (unique index in the schema).
type Purchase struct {
	ID                string             `db:"id"`
	StripeSessionID   string             `db:"stripe_session_id"`
	PaymentStatus     string             `db:"payment_status"`
	CustomerEmail     string             `db:"customer_email"`
	AmountPaid        float64            `db:"amount_paid"`
	FormData          types.JSONText     `db:"form_data"`
	CustomerReference string             `db:"customer_reference"`
	SpeechesGenerated bool               `db:"speeches_generated"`
	EmailsSent        bool               `db:"emails_sent"`
	Speeches          types.NullJSONText `db:"speeches"`
	CreatedAt         time.Time          `db:"created_at"`
}
