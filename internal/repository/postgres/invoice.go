package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/billfox/dunning-api/internal/model"
	"github.com/billfox/dunning-api/internal/repository"
	apperrors "github.com/billfox/dunning-api/pkg/errors"
)

type invoiceRepository struct {
	*BaseRepository
}

func NewInvoiceRepository(base *BaseRepository) repository.InvoiceRepository {
	return &invoiceRepository{BaseRepository: base}
}

func (r *invoiceRepository) Get(ctx context.Context, id uuid.UUID) (*model.Invoice, error) {
	query := `
		SELECT id, number, amount_due, due_date, paid,
			   payer_name, payer_email, sequence_id,
			   created_at, updated_at
		FROM invoices
		WHERE id = $1
	`
	var invoice model.Invoice
	err := r.db.GetContext(ctx, &invoice, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("invoice", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return &invoice, nil
}

func (r *invoiceRepository) ListBySequence(ctx context.Context, sequenceID uuid.UUID, unpaidOnly bool) ([]*model.Invoice, error) {
	query := `
		SELECT id, number, amount_due, due_date, paid,
			   payer_name, payer_email, sequence_id,
			   created_at, updated_at
		FROM invoices
		WHERE sequence_id = $1
	`
	if unpaidOnly {
		query += " AND paid = false"
	}
	query += " ORDER BY due_date ASC"

	var invoices []*model.Invoice
	err := r.db.SelectContext(ctx, &invoices, query, sequenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	return invoices, nil
}

func (r *invoiceRepository) AssignSequence(ctx context.Context, id uuid.UUID, sequenceID *uuid.UUID) error {
	query := `
		UPDATE invoices
		SET sequence_id = $1, updated_at = $2
		WHERE id = $3
	`
	result, err := r.db.ExecContext(ctx, query, sequenceID, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to assign sequence: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("invoice", nil)
	}
	return nil
}
