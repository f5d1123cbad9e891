package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"gsw-platform/internal/models"
)

// PendingInputStore persists unprocessed speech-form submissions.
type PendingInputStore struct {
	DB *sqlx.DB
}

func NewPendingInputStore(db *sqlx.DB) *PendingInputStore {
	return &PendingInputStore{DB: db}
}

// Create inserts a new pending submission and returns the stored row.
func (s *PendingInputStore) Create(ctx context.Context, formData types.JSONText, email string) (*models.PendingInput, error) {
	var pending models.PendingInput
	query := `INSERT INTO pending_inputs (id, form_data, customer_email)
	          VALUES ($1, $2, $3)
	          RETURNING id, form_data, customer_email, processed, created_at`

	err := s.DB.GetContext(ctx, &pending, query, uuid.NewString(), formData, email)
	if err != nil {
		return nil, fmt.Errorf("insert pending input: %w", err)
	}
	return &pending, nil
}

// Get fetches a pending submission by id. Returns (nil, nil) if not found.
func (s *PendingInputStore) Get(ctx context.Context, id string) (*models.PendingInput, error) {
	var pending models.PendingInput
	query := `SELECT id, form_data, customer_email, processed, created_at
	          FROM pending_inputs WHERE id = $1`

	err := s.DB.GetContext(ctx, &pending, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pending input: %w", err)
	}
	return &pending, nil
}

// MarkProcessed flips the processed flag once a payment event has consumed
// the submission.
func (s *PendingInputStore) MarkProcessed(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE pending_inputs SET processed = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark pending input processed: %w", err)
	}
	return nil
}
