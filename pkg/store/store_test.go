package store

import (
	"context"
	"testing"

	"github.com/amira/goalflow/pkg/flow"
	"github.com/amira/goalflow/pkg/routine"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func guitarGoal() flow.Goal {
	return flow.Goal{
		Title:        "Learn guitar",
		Category:     "music",
		Description:  "Play three songs end to end",
		Days:         30,
		Milestones:   []string{"chords", "first song"},
		EmailUpdates: flow.FrequencyWeekly,
	}
}

func twoDayPlan() []routine.DayPlan {
	return []routine.DayPlan{
		{Day: 1, Title: "Basics", Tasks: []string{"tune", "hold"}},
		{Day: 2, Title: "Chords", Tasks: []string{"G and C"}},
	}
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("", zerolog.Nop())
	assert.Error(t, err)
}

func TestStoreGoalWithRoutine(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	goalID, err := s.StoreGoalWithRoutine(ctx, "user-1", guitarGoal(), twoDayPlan())
	require.NoError(t, err)
	assert.NotZero(t, goalID)

	goals, err := s.FetchGoals(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.Equal(t, goalID, goals[0].ID)
	assert.Equal(t, "Learn guitar", goals[0].Title)
	assert.Equal(t, []string{"chords", "first song"}, goals[0].Milestones)
	assert.Equal(t, 0, goals[0].CompletedDays)
	assert.False(t, goals[0].CreatedAt.IsZero())

	tasks, err := s.FetchRoutine(ctx, goalID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, 1, tasks[0].Day)
	assert.Contains(t, tasks[0].Description, "Basics")

	t.Run("other users see nothing", func(t *testing.T) {
		goals, err := s.FetchGoals(ctx, "user-2")
		require.NoError(t, err)
		assert.Empty(t, goals)
	})
}

func TestFetchGoalProgress(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t.Run("missing goal", func(t *testing.T) {
		p, err := s.FetchGoalProgress(ctx, 42)
		require.NoError(t, err)
		assert.Nil(t, p)
	})

	goalID, err := s.StoreGoalWithRoutine(ctx, "user-1", guitarGoal(), twoDayPlan())
	require.NoError(t, err)

	p, err := s.FetchGoalProgress(ctx, goalID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Learn guitar", p.Title)
	assert.Equal(t, 30, p.TotalDays)
	assert.Equal(t, 0, p.CompletedDays)
}

func TestLogProgressCountsDistinctDays(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	goalID, err := s.StoreGoalWithRoutine(ctx, "user-1", guitarGoal(), twoDayPlan())
	require.NoError(t, err)

	require.NoError(t, s.LogProgress(ctx, goalID, 1, "did the basics"))
	require.NoError(t, s.LogProgress(ctx, goalID, 1, "did them again"))
	require.NoError(t, s.LogProgress(ctx, goalID, 2, "chords"))

	p, err := s.FetchGoalProgress(ctx, goalID)
	require.NoError(t, err)
	assert.Equal(t, 2, p.CompletedDays, "same day logged twice counts once")
}

func TestElapsedDays(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	goalID, err := s.StoreGoalWithRoutine(ctx, "user-1", guitarGoal(), nil)
	require.NoError(t, err)

	elapsed, err := s.ElapsedDays(ctx, goalID)
	require.NoError(t, err)
	assert.Equal(t, 0, elapsed)

	// Backdate the goal and verify the elapsed count moves.
	_, err = s.db.Exec(`UPDATE goals SET created_at = datetime('now', '-3 days') WHERE goal_id = ?`, goalID)
	require.NoError(t, err)

	elapsed, err = s.ElapsedDays(ctx, goalID)
	require.NoError(t, err)
	assert.Equal(t, 3, elapsed)
}

func TestFetchGoalsByFrequency(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.StoreGoalWithRoutine(ctx, "user-1", guitarGoal(), nil)
	require.NoError(t, err)

	daily := guitarGoal()
	daily.Title = "Morning runs"
	daily.EmailUpdates = flow.FrequencyDaily
	_, err = s.StoreGoalWithRoutine(ctx, "user-2", daily, nil)
	require.NoError(t, err)

	weekly, err := s.FetchGoalsByFrequency(ctx, flow.FrequencyWeekly)
	require.NoError(t, err)
	require.Len(t, weekly, 1)
	assert.Equal(t, "user-1", weekly[0].UserID)
	assert.Equal(t, "Learn guitar", weekly[0].Title)

	never, err := s.FetchGoalsByFrequency(ctx, flow.FrequencyNever)
	require.NoError(t, err)
	assert.Empty(t, never)
}

func TestRoutineRowsRollBackWithGoal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// A cancelled context before commit must leave no partial rows.
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err := s.StoreGoalWithRoutine(cancelled, "user-1", guitarGoal(), twoDayPlan())
	require.Error(t, err)

	goals, err := s.FetchGoals(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, goals)

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM routines`).Scan(&count))
	assert.Zero(t, count)
}
