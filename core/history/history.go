// Package history records the outcome of every check-in and homework scan.
package history

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Kinds
const (
	KindCheckin  = "checkin"
	KindHomework = "homework"
)

// Outcomes
const (
	OutcomeSigned     = "signed"
	OutcomeFailed     = "failed"
	OutcomeNeedsCode  = "needs_code"
	OutcomeUnfinished = "unfinished"
)

const DefaultLimit = 50

var (
	ErrNotFound = errors.New("run not found")

	nowFunc = time.Now // mockable
)

type Record struct {
	ID        uuid.UUID `json:"id" db:"id"`
	RunID     string    `json:"run_id" db:"run_id"`
	Kind      string    `json:"kind" db:"kind"`
	Course    string    `json:"course" db:"course"`
	Detail    string    `json:"detail" db:"detail"`
	Outcome   string    `json:"outcome" db:"outcome"`
	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
}

func NewRecord(runID, kind, course, detail, outcome string) Record {
	return Record{
		ID:        uuid.New(),
		RunID:     runID,
		Kind:      kind,
		Course:    course,
		Detail:    detail,
		Outcome:   outcome,
		CreatedAt: nowFunc().UTC(),
	}
}

// NewRunID returns the id shared by the records of one engine cycle.
func NewRunID() string {
	return uuid.New().String()
}

// Filter narrows Query results. Zero values match everything; Limit defaults to DefaultLimit.
type Filter struct {
	Kind    string
	Outcome string
	Limit   int
}

func (f Filter) Size() int {
	if f.Limit <= 0 {
		return DefaultLimit
	}
	return f.Limit
}

type Repository interface {
	Add(ctx context.Context, recs ...Record) error
	// Query returns the newest records first.
	Query(ctx context.Context, f Filter) ([]Record, error)
	// Run returns the records of one run, or ErrNotFound.
	Run(ctx context.Context, runID string) ([]Record, error)
}

// Nop discards records. Used when no history database is configured.
type Nop struct{}

var _ Repository = Nop{}

func (Nop) Add(context.Context, ...Record) error            { return nil }
func (Nop) Query(context.Context, Filter) ([]Record, error) { return []Record{}, nil }
func (Nop) Run(context.Context, string) ([]Record, error)   { return nil, ErrNotFound }
