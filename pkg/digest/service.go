// Package digest sends periodic goal summaries to users who opted into
// email-style updates. Summaries are delivered over the user's live channel
// when one exists; offline users are skipped until the next run.
package digest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/amira/goalflow/pkg/flow"
	"github.com/amira/goalflow/pkg/store"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Service schedules and delivers goal digests.
type Service struct {
	store    *store.Store
	channels flow.ChannelResolver
	cron     *cron.Cron
	logger   zerolog.Logger
}

// Config holds digest service dependencies.
type Config struct {
	Store    *store.Store
	Channels flow.ChannelResolver
	Logger   zerolog.Logger
}

// NewService creates the digest service with daily, weekly and monthly
// schedules registered.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Channels == nil {
		return nil, fmt.Errorf("channel resolver is required")
	}

	s := &Service{
		store:    cfg.Store,
		channels: cfg.Channels,
		cron:     cron.New(),
		logger:   cfg.Logger,
	}

	schedules := map[string]string{
		flow.FrequencyDaily:   "@daily",
		flow.FrequencyWeekly:  "@weekly",
		flow.FrequencyMonthly: "@monthly",
	}
	for frequency, spec := range schedules {
		freq := frequency
		if _, err := s.cron.AddFunc(spec, func() { s.Run(freq) }); err != nil {
			return nil, fmt.Errorf("failed to schedule %s digest: %w", freq, err)
		}
	}

	return s, nil
}

// Start begins the schedules. It does not block.
func (s *Service) Start() {
	s.cron.Start()
	s.logger.Info().Msg("Digest scheduler started")
}

// Stop halts the schedules and waits for a running job to finish.
func (s *Service) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Digest scheduler stopped")
}

// Run delivers one digest round for a frequency. Exposed so a run can be
// triggered outside the schedule.
func (s *Service) Run(frequency string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	goals, err := s.store.FetchGoalsByFrequency(ctx, frequency)
	if err != nil {
		s.logger.Error().Err(err).Str("frequency", frequency).Msg("Failed to fetch goals for digest")
		return
	}
	if len(goals) == 0 {
		return
	}

	byUser := make(map[string][]store.GoalRecord)
	for _, g := range goals {
		byUser[g.UserID] = append(byUser[g.UserID], g)
	}

	delivered := 0
	for userID, userGoals := range byUser {
		channel, ok := s.channels.Lookup(userID)
		if !ok {
			continue
		}
		if err := channel.Send(ctx, Render(frequency, userGoals)); err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to deliver digest")
			continue
		}
		delivered++
	}

	s.logger.Info().
		Str("frequency", frequency).
		Int("users", len(byUser)).
		Int("delivered", delivered).
		Msg("Digest round complete")
}

// Render formats one user's digest.
func Render(frequency string, goals []store.GoalRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📋 Your %s goal update:\n", frequency)
	for _, g := range goals {
		status := "On Track"
		if g.ElapsedDays > g.Days {
			status = "Overdue"
		}
		fmt.Fprintf(&b, "\n%s: %d/%d days completed, day %d of %d (%s)",
			g.Title, g.CompletedDays, g.Days, g.ElapsedDays, g.Days, status)
	}
	return b.String()
}
