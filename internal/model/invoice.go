package model

import (
	"time"

	"github.com/google/uuid"
)

// Invoice is the billing record reminders are generated for. It is written
// by the external ledger import, the engine only reads it and reacts to
// changes of SequenceID.
type Invoice struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	Number     string     `db:"number" json:"number"`
	AmountDue  float64    `db:"amount_due" json:"amount_due"`
	DueDate    time.Time  `db:"due_date" json:"due_date"`
	Paid       bool       `db:"paid" json:"paid"`
	PayerName  string     `db:"payer_name" json:"payer_name"`
	PayerEmail string     `db:"payer_email" json:"payer_email"`
	SequenceID *uuid.UUID `db:"sequence_id" json:"sequence_id,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}
