package digest

import (
	"context"
	"testing"
	"time"

	"github.com/amira/goalflow/pkg/flow"
	"github.com/amira/goalflow/pkg/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingChannel struct {
	sent []string
}

func (r *recordingChannel) Send(_ context.Context, text string) error {
	r.sent = append(r.sent, text)
	return nil
}

func (r *recordingChannel) Receive(_ context.Context) (flow.Event, error) {
	return flow.Event{}, nil
}

type channelMap map[string]flow.Channel

func (m channelMap) Lookup(userID string) (flow.Channel, bool) {
	ch, ok := m[userID]
	return ch, ok
}

func newDigestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func addGoal(t *testing.T, s *store.Store, userID, title, frequency string) {
	t.Helper()
	_, err := s.StoreGoalWithRoutine(context.Background(), userID, flow.Goal{
		Title:        title,
		Category:     "fitness",
		Description:  "desc",
		Days:         30,
		EmailUpdates: frequency,
	}, nil)
	require.NoError(t, err)
}

func TestRunDeliversToConnectedUsers(t *testing.T) {
	db := newDigestStore(t)
	addGoal(t, db, "user-1", "Run 5k", flow.FrequencyWeekly)
	addGoal(t, db, "user-1", "Learn guitar", flow.FrequencyWeekly)
	addGoal(t, db, "user-2", "Read more", flow.FrequencyWeekly)
	addGoal(t, db, "user-1", "Meditate", flow.FrequencyDaily)

	online := &recordingChannel{}
	svc, err := NewService(Config{
		Store:    db,
		Channels: channelMap{"user-1": online},
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	svc.Run(flow.FrequencyWeekly)

	// user-2 is offline and silently skipped; user-1 gets one message
	// covering both weekly goals but not the daily one.
	require.Len(t, online.sent, 1)
	assert.Contains(t, online.sent[0], "weekly goal update")
	assert.Contains(t, online.sent[0], "Run 5k")
	assert.Contains(t, online.sent[0], "Learn guitar")
	assert.NotContains(t, online.sent[0], "Meditate")
}

func TestRunWithNoSubscribers(t *testing.T) {
	db := newDigestStore(t)

	svc, err := NewService(Config{
		Store:    db,
		Channels: channelMap{},
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	// Must not panic or deliver anything.
	svc.Run(flow.FrequencyMonthly)
}

func TestRender(t *testing.T) {
	text := Render(flow.FrequencyDaily, []store.GoalRecord{
		{
			Goal:          flow.Goal{Title: "Run 5k", Days: 30},
			CreatedAt:     time.Now(),
			ElapsedDays:   31,
			CompletedDays: 12,
		},
	})

	assert.Contains(t, text, "daily goal update")
	assert.Contains(t, text, "Run 5k: 12/30 days completed")
	assert.Contains(t, text, "Overdue")
}

func TestServiceStartStop(t *testing.T) {
	db := newDigestStore(t)

	svc, err := NewService(Config{
		Store:    db,
		Channels: channelMap{},
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	svc.Start()
	svc.Stop()
}
