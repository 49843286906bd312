package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/billfox/dunning-api/internal/model"
	"github.com/billfox/dunning-api/internal/repository"
	apperrors "github.com/billfox/dunning-api/pkg/errors"
)

// claimLease is how long a due reminder stays invisible to other dispatch
// workers once pulled by FindDue.
const claimLease = 15 * time.Minute

const reminderColumns = `
	id, invoice_id, sequence_id, scheduled_at, sent, status, attempts,
	subject, body, to_addr, cc_addr, sender, last_attempt_at, claimed_until,
	created_at, updated_at
`

type reminderRepository struct {
	*BaseRepository
}

func NewReminderRepository(base *BaseRepository) repository.ReminderRepository {
	return &reminderRepository{BaseRepository: base}
}

func (r *reminderRepository) Create(ctx context.Context, reminder *model.Reminder) error {
	query := `
		INSERT INTO reminders (
			id, invoice_id, sequence_id, scheduled_at, sent, status, attempts,
			subject, body, to_addr, cc_addr, sender, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	if reminder.ID == uuid.Nil {
		reminder.ID = uuid.New()
	}
	reminder.CreatedAt = time.Now()
	reminder.UpdatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		reminder.ID,
		reminder.InvoiceID,
		reminder.SequenceID,
		reminder.ScheduledAt,
		reminder.Sent,
		reminder.Status,
		reminder.Attempts,
		reminder.Subject,
		reminder.Body,
		reminder.To,
		reminder.CC,
		reminder.Sender,
		reminder.CreatedAt,
		reminder.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create reminder: %w", err)
	}
	return nil
}

// Delete removes a reminder only while it is still scheduled. Sent, failed
// and cancelled reminders are immutable history.
func (r *reminderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `
		DELETE FROM reminders
		WHERE id = $1 AND status = 'scheduled'
	`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete reminder: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("reminder", nil)
	}
	return nil
}

func (r *reminderRepository) FindPending(ctx context.Context, invoiceID, sequenceID uuid.UUID) ([]*model.Reminder, error) {
	query := `
		SELECT ` + reminderColumns + `
		FROM reminders
		WHERE invoice_id = $1 AND sequence_id = $2 AND status = 'scheduled'
		ORDER BY scheduled_at ASC
	`
	var reminders []*model.Reminder
	err := r.db.SelectContext(ctx, &reminders, query, invoiceID, sequenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to find pending reminders: %w", err)
	}
	return reminders, nil
}

func (r *reminderRepository) FindPendingByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*model.Reminder, error) {
	query := `
		SELECT ` + reminderColumns + `
		FROM reminders
		WHERE invoice_id = $1 AND status = 'scheduled'
		ORDER BY scheduled_at ASC
	`
	var reminders []*model.Reminder
	err := r.db.SelectContext(ctx, &reminders, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to find pending reminders: %w", err)
	}
	return reminders, nil
}

func (r *reminderRepository) FindByInvoiceAndSequence(ctx context.Context, invoiceID, sequenceID uuid.UUID) ([]*model.Reminder, error) {
	query := `
		SELECT ` + reminderColumns + `
		FROM reminders
		WHERE invoice_id = $1 AND sequence_id = $2
		ORDER BY scheduled_at ASC
	`
	var reminders []*model.Reminder
	err := r.db.SelectContext(ctx, &reminders, query, invoiceID, sequenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to find reminders: %w", err)
	}
	return reminders, nil
}

func (r *reminderRepository) FindBySequence(ctx context.Context, sequenceID uuid.UUID) ([]*model.Reminder, error) {
	query := `
		SELECT ` + reminderColumns + `
		FROM reminders
		WHERE sequence_id = $1
		ORDER BY scheduled_at ASC
	`
	var reminders []*model.Reminder
	err := r.db.SelectContext(ctx, &reminders, query, sequenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to find reminders: %w", err)
	}
	return reminders, nil
}

// FindDue claims and returns scheduled reminders whose deadline has passed,
// earliest first. The claimed_until lease keeps two workers from pulling
// the same reminder; expired claims are re-eligible.
func (r *reminderRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]*model.Reminder, error) {
	query := `
		UPDATE reminders
		SET claimed_until = $1, updated_at = $2
		WHERE id IN (
			SELECT id FROM reminders
			WHERE status = 'scheduled'
			AND scheduled_at <= $2
			AND (claimed_until IS NULL OR claimed_until <= $2)
			ORDER BY scheduled_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + reminderColumns + `
	`
	var reminders []*model.Reminder
	err := r.db.SelectContext(ctx, &reminders, query, now.Add(claimLease), now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find due reminders: %w", err)
	}
	return reminders, nil
}

func (r *reminderRepository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE reminders
		SET sent = true, status = 'sent', last_attempt_at = $1,
			claimed_until = NULL, updated_at = $1
		WHERE id = $2 AND status = 'scheduled'
	`
	return r.updateOne(ctx, query, at, id)
}

func (r *reminderRepository) MarkFailed(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE reminders
		SET status = 'failed', attempts = $3, last_attempt_at = $1,
			claimed_until = NULL, updated_at = $1
		WHERE id = $2 AND status = 'scheduled'
	`
	return r.updateOne(ctx, query, at, id, model.MaxAttempts)
}

func (r *reminderRepository) Reschedule(ctx context.Context, id uuid.UUID, scheduledAt time.Time, attempts int, attemptedAt time.Time) error {
	query := `
		UPDATE reminders
		SET scheduled_at = $3, attempts = $4, last_attempt_at = $1,
			claimed_until = NULL, updated_at = $1
		WHERE id = $2 AND status = 'scheduled'
	`
	return r.updateOne(ctx, query, attemptedAt, id, scheduledAt, attempts)
}

func (r *reminderRepository) updateOne(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update reminder: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("reminder", nil)
	}
	return nil
}
