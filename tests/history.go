package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ulearn/core/history"
)

func historyRecord(runID, kind, course, outcome string, at time.Time) history.Record {
	return history.Record{
		ID:        uuid.New(),
		RunID:     runID,
		Kind:      kind,
		Course:    course,
		Outcome:   outcome,
		CreatedAt: at,
	}
}

// RunHistoryRepositoryTests runs the behaviour every history.Repository must share.
func RunHistoryRepositoryTests(t *testing.T, newRepo func(t *testing.T) history.Repository) {
	ctx := context.Background()
	t0 := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

	seed := func(t *testing.T) history.Repository {
		repo := newRepo(t)
		require.NoError(t, repo.Add(ctx,
			historyRecord("run-1", history.KindCheckin, "Math", history.OutcomeSigned, t0),
			historyRecord("run-1", history.KindCheckin, "Art", history.OutcomeNeedsCode, t0.Add(time.Second)),
		))
		require.NoError(t, repo.Add(ctx,
			historyRecord("run-2", history.KindHomework, "Math", history.OutcomeUnfinished, t0.Add(time.Hour)),
		))
		require.NoError(t, repo.Add(ctx))
		return repo
	}

	t.Run("Query", func(t *testing.T) {
		repo := seed(t)
		tests := []struct {
			name   string
			filter history.Filter
			want   []string
		}{
			{name: "all, newest first", filter: history.Filter{}, want: []string{"run-2/Math", "run-1/Art", "run-1/Math"}},
			{name: "by kind", filter: history.Filter{Kind: history.KindCheckin}, want: []string{"run-1/Art", "run-1/Math"}},
			{name: "by outcome", filter: history.Filter{Outcome: history.OutcomeSigned}, want: []string{"run-1/Math"}},
			{name: "limited", filter: history.Filter{Limit: 1}, want: []string{"run-2/Math"}},
			{name: "no match", filter: history.Filter{Kind: history.KindHomework, Outcome: history.OutcomeSigned}, want: []string{}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				recs, err := repo.Query(ctx, tt.filter)
				require.NoError(t, err)
				got := make([]string, 0, len(recs))
				for _, rec := range recs {
					got = append(got, rec.RunID+"/"+rec.Course)
				}
				assert.Equal(t, tt.want, got)
			})
		}
	})

	t.Run("Run", func(t *testing.T) {
		repo := seed(t)
		recs, err := repo.Run(ctx, "run-1")
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "Math", recs[0].Course)
		assert.Equal(t, history.OutcomeSigned, recs[0].Outcome)
		assert.Equal(t, history.KindCheckin, recs[0].Kind)
		assert.True(t, t0.Equal(recs[0].CreatedAt))
		assert.NotEqual(t, uuid.Nil, recs[0].ID)
		assert.Equal(t, "Art", recs[1].Course)

		_, err = repo.Run(ctx, "run-404")
		assert.Equal(t, history.ErrNotFound, err)
	})
}
