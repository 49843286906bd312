package model

import (
	"time"

	"github.com/google/uuid"
)

type ReminderStatus string

const (
	ReminderStatusScheduled ReminderStatus = "scheduled"
	ReminderStatusSent      ReminderStatus = "sent"
	ReminderStatusFailed    ReminderStatus = "failed"
	ReminderStatusCancelled ReminderStatus = "cancelled"
)

// MaxAttempts is the cross-pass retry bound. A reminder whose persisted
// attempts counter reaches this value is permanently failed.
const MaxAttempts = 3

// Reminder is a concrete, per-invoice instance of a sequence action. It is
// created by the reconciler, advanced by the dispatch loop and only deleted
// by the reconciler while still scheduled.
type Reminder struct {
	ID            uuid.UUID      `db:"id" json:"id"`
	InvoiceID     uuid.UUID      `db:"invoice_id" json:"invoice_id"`
	SequenceID    uuid.UUID      `db:"sequence_id" json:"sequence_id"`
	ScheduledAt   time.Time      `db:"scheduled_at" json:"scheduled_at"`
	Sent          bool           `db:"sent" json:"sent"`
	Status        ReminderStatus `db:"status" json:"status"`
	Attempts      int            `db:"attempts" json:"attempts"`
	Subject       string         `db:"subject" json:"subject"`
	Body          string         `db:"body" json:"body"`
	To            string         `db:"to_addr" json:"to"`
	CC            string         `db:"cc_addr" json:"cc,omitempty"`
	Sender        string         `db:"sender" json:"sender"`
	LastAttemptAt *time.Time     `db:"last_attempt_at" json:"last_attempt_at,omitempty"`
	ClaimedUntil  *time.Time     `db:"claimed_until" json:"-"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// Pending reports whether the reminder is still awaiting dispatch. Only
// pending reminders may be deleted or replaced by reconciliation; sent,
// failed and cancelled are terminal.
func (r *Reminder) Pending() bool {
	return r.Status == ReminderStatusScheduled
}

// Delivered reports whether the reminder went out successfully. Delivered
// history is what blocks regeneration; a permanent failure does not.
func (r *Reminder) Delivered() bool {
	return r.Sent || r.Status == ReminderStatusSent
}
