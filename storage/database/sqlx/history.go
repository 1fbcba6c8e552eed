package sqlxrepos

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/ulearn/core/history"
)

const recordColumns = "id, run_id, kind, course, detail, outcome, created_at"

type historyRepository struct {
	db *sqlx.DB
}

var _ history.Repository = (*historyRepository)(nil)

func NewHistoryRepository(db *sqlx.DB) *historyRepository {
	return &historyRepository{db: db}
}

func (repo *historyRepository) Add(ctx context.Context, recs ...history.Record) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning tx")
	}
	defer func() { _ = tx.Rollback() }()

	q := "INSERT INTO history (" + recordColumns + ") VALUES (:id, :run_id, :kind, :course, :detail, :outcome, :created_at)"
	for _, rec := range recs {
		if _, err = tx.NamedExecContext(ctx, q, rec); err != nil {
			return errors.Wrapf(err, "inserting record of %s", rec.Course)
		}
	}
	return errors.Wrap(tx.Commit(), "committing tx")
}

func (repo *historyRepository) Query(ctx context.Context, f history.Filter) ([]history.Record, error) {
	var (
		conds []string
		args  []interface{}
	)
	if f.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, f.Kind)
	}
	if f.Outcome != "" {
		conds = append(conds, "outcome = ?")
		args = append(args, f.Outcome)
	}

	q := "SELECT " + recordColumns + " FROM history"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, f.Size())

	recs := make([]history.Record, 0)
	if err := repo.db.SelectContext(ctx, &recs, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying history")
	}
	return recs, nil
}

func (repo *historyRepository) Run(ctx context.Context, runID string) ([]history.Record, error) {
	q := repo.db.Rebind("SELECT " + recordColumns + " FROM history WHERE run_id = ? ORDER BY created_at")
	var recs []history.Record
	if err := repo.db.SelectContext(ctx, &recs, q, runID); err != nil {
		return nil, errors.Wrapf(err, "querying run %s", runID)
	}
	if len(recs) == 0 {
		return nil, history.ErrNotFound
	}
	return recs, nil
}
