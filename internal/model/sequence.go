package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Action is one step of a dunning sequence: an email template plus the
// delay, in days, between enrollment and the send.
type Action struct {
	Type        string `json:"type"`
	DelayDays   int    `json:"delay_days"`
	Subject     string `json:"subject"`
	Body        string `json:"body"`
	To          string `json:"to"`
	CC          string `json:"cc,omitempty"`
	SenderEmail string `json:"sender_email"`
}

// ActionList is stored as a JSONB column.
type ActionList []Action

func (a ActionList) Value() (driver.Value, error) {
	return json.Marshal(a)
}

func (a *ActionList) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	case nil:
		*a = nil
		return nil
	default:
		return fmt.Errorf("cannot scan %T into ActionList", src)
	}
}

// Sequence is a reusable, ordered definition of reminder actions applied to
// the invoices assigned to it.
type Sequence struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	Active    bool       `db:"active" json:"active"`
	Automatic bool       `db:"automatic" json:"automatic"`
	Actions   ActionList `db:"actions" json:"actions"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// FirstAction returns the first step of the sequence, or false when the
// sequence has no actions configured.
func (s *Sequence) FirstAction() (Action, bool) {
	if len(s.Actions) == 0 {
		return Action{}, false
	}
	return s.Actions[0], true
}
