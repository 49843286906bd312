package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/billfox/dunning-api/internal/model"
)

// All repository interfaces in one file
type (
	// InvoiceRepository is read-mostly from the engine's perspective.
	// AssignSequence is the single glue-level write: it persists a manual
	// sequence assignment before the reconciler is invoked.
	InvoiceRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Invoice, error)
		ListBySequence(ctx context.Context, sequenceID uuid.UUID, unpaidOnly bool) ([]*model.Invoice, error)
		AssignSequence(ctx context.Context, id uuid.UUID, sequenceID *uuid.UUID) error
	}

	// SequenceRepository is read-only from the engine's perspective.
	SequenceRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Sequence, error)
		SetActive(ctx context.Context, id uuid.UUID, active bool) error
	}

	// ReminderRepository is the store adapter behind the reconciler and the
	// dispatch loop. Operations on distinct ids are safe concurrently; the
	// dispatch loop is the single writer for any given id within a pass.
	// Delete and the FindPending queries see scheduled reminders only; sent,
	// failed and cancelled rows are terminal history.
	ReminderRepository interface {
		Create(ctx context.Context, reminder *model.Reminder) error
		Delete(ctx context.Context, id uuid.UUID) error
		FindPending(ctx context.Context, invoiceID, sequenceID uuid.UUID) ([]*model.Reminder, error)
		FindPendingByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]*model.Reminder, error)
		FindByInvoiceAndSequence(ctx context.Context, invoiceID, sequenceID uuid.UUID) ([]*model.Reminder, error)
		FindBySequence(ctx context.Context, sequenceID uuid.UUID) ([]*model.Reminder, error)
		FindDue(ctx context.Context, now time.Time, limit int) ([]*model.Reminder, error)
		MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
		MarkFailed(ctx context.Context, id uuid.UUID, at time.Time) error
		Reschedule(ctx context.Context, id uuid.UUID, scheduledAt time.Time, attempts int, attemptedAt time.Time) error
	}

	// CronLogRepository is append-only; the engine writes run summaries and
	// never reads them back.
	CronLogRepository interface {
		Append(ctx context.Context, entry *model.CronLog) error
	}
)
