package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CronLogKind identifies which run a log row summarizes.
type CronLogKind string

const (
	CronLogDispatch CronLogKind = "dispatch"
	CronLogPopulate CronLogKind = "populate"
	CronLogCleanup  CronLogKind = "cleanup"
	CronLogAssign   CronLogKind = "assign"
)

// CronLog is an append-only audit row summarizing one reconciliation or
// dispatch run. The engine writes these and never reads them back.
type CronLog struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	Kind       CronLogKind     `db:"kind" json:"kind"`
	SequenceID *uuid.UUID      `db:"sequence_id" json:"sequence_id,omitempty"`
	Counts     json.RawMessage `db:"counts" json:"counts"`
	Errors     json.RawMessage `db:"errors" json:"errors,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}
