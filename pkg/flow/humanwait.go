package flow

import (
	"context"
	"fmt"
	"strings"
)

// exitKeywords terminate a session when received as user speech. Matching is
// case-insensitive. This is the sole path by which a session finishes.
var exitKeywords = map[string]bool{
	"q":    true,
	"quit": true,
	"exit": true,
	"bye":  true,
}

// awaitHuman suspends the state machine: it delivers the most recent
// assistant text over the session's live channel, then blocks until user
// speech arrives. Clear-history events are applied here, while the session
// sits between turns; other non-speech events are ignored. The node holds
// only a transient reference to the channel, never the session's lifetime.
func (e *Executor) awaitHuman(ctx context.Context, s *Session) error {
	logger := e.logger.With().Str("user_id", s.UserID).Logger()

	ch, ok := e.channels.Lookup(s.UserID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrChannelNotFound, s.UserID)
	}

	if text, ok := s.LastAssistantText(); ok {
		if err := ch.Send(ctx, text); err != nil {
			return fmt.Errorf("%w: send failed: %v", ErrTurnAborted, err)
		}
	}

	var text string
wait:
	for {
		ev, err := ch.Receive(ctx)
		if err != nil {
			logger.Info().Err(err).Msg("Channel closed while waiting for input")
			return fmt.Errorf("%w: %v", ErrTurnAborted, err)
		}
		switch ev.Type {
		case EventUserSpeech:
			text = ev.Text
			break wait
		case EventClearHistory:
			s.ClearHistory()
			logger.Info().Msg("Transcript cleared between turns")
		default:
			logger.Debug().Str("type", ev.Type).Msg("Ignoring non-speech event during wait")
		}
	}

	if exitKeywords[strings.ToLower(strings.TrimSpace(text))] {
		logger.Info().Msg("Exit keyword received, finishing session")
		s.Finished = true
	}

	s.Append(UserText(text))
	return nil
}
