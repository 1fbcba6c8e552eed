package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/ulearn/core/history"
)

type historyRepository struct {
	db *historyTable
}

var _ history.Repository = (*historyRepository)(nil)

func NewHistoryRepository(db *DB) history.Repository {
	return &historyRepository{db: db.history}
}

func (repo *historyRepository) Add(_ context.Context, recs ...history.Record) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.rows = append(repo.db.rows, recs...)
	return nil
}

func (repo *historyRepository) Query(_ context.Context, f history.Filter) ([]history.Record, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	recs := make([]history.Record, 0)
	// newest insert first on equal timestamps
	for i := len(repo.db.rows) - 1; i >= 0; i-- {
		rec := repo.db.rows[i]
		if (f.Kind == "" || rec.Kind == f.Kind) && (f.Outcome == "" || rec.Outcome == f.Outcome) {
			recs = append(recs, rec)
		}
	}
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].CreatedAt.After(recs[j].CreatedAt) })
	if size := f.Size(); len(recs) > size {
		recs = recs[:size]
	}
	return recs, nil
}

func (repo *historyRepository) Run(_ context.Context, runID string) ([]history.Record, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var recs []history.Record
	for _, rec := range repo.db.rows {
		if rec.RunID == runID {
			recs = append(recs, rec)
		}
	}
	if len(recs) == 0 {
		return nil, history.ErrNotFound
	}
	return recs, nil
}
