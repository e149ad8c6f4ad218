// Package journal keeps an append-only log of applied, rejected and failed
// records and events. The in-memory journal serves tests and single process
// runs; package sqlite persists the same entries.
package journal

import (
	"context"
	"time"

	"github.com/viant/shopfloor/service/dao"
)

// Entry sources
const (
	SourceEvent  = "event"
	SourceRecord = "record"
)

// Entry statuses
const (
	StatusApplied    = "applied"
	StatusRejected   = "rejected"
	StatusFailed     = "failed"
	StatusDeadLetter = "dead_letter"
)

// Filterable entry fields
const (
	FieldSource   = "Source"
	FieldKind     = "Kind"
	FieldEntityID = "EntityID"
	FieldStatus   = "Status"
)

// Entry is one journaled record or event outcome
type Entry struct {
	// Seq orders entries; assigned on Append
	Seq      int64     `json:"seq"`
	ID       string    `json:"id"`
	Source   string    `json:"source"`
	Kind     string    `json:"kind"`
	EntityID string    `json:"entityId"`
	Version  int64     `json:"version,omitempty"`
	Status   string    `json:"status"`
	Detail   string    `json:"detail,omitempty"`
	At       time.Time `json:"at"`
}

// Journal stores entries in append order
type Journal interface {
	Append(ctx context.Context, entry *Entry) error
	// List returns entries in append order matching all parameters
	List(ctx context.Context, parameters ...*dao.Parameter) ([]*Entry, error)
	Close() error
}
