package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amira/goalflow/pkg/backend"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultMaxSteps bounds total transitions per inbound event so a turn
// terminates even under classifier cycling bugs.
const DefaultMaxSteps = 100

// DefaultCallTimeout bounds a single reasoning backend call.
const DefaultCallTimeout = 60 * time.Second

// Dispatcher executes tool calls against a session. Implementations append
// one tool result message per call and mutate goals/routines for action
// tools only.
type Dispatcher interface {
	Dispatch(ctx context.Context, s *Session, calls []ToolCall) error
	IsAction(name string) bool
	Names() []string
	Schemas() []backend.ToolSchema
}

// Channel is the live transport handle for one user. Send delivers assistant
// text; Receive blocks for the next inbound event and returns an error when
// the channel disconnects.
type Channel interface {
	Send(ctx context.Context, text string) error
	Receive(ctx context.Context) (Event, error)
}

// ChannelResolver looks up the live channel for a user identity.
type ChannelResolver interface {
	Lookup(userID string) (Channel, bool)
}

// Executor runs the turn-routing state machine. Nodes never decide their own
// successor; the classifier is re-evaluated after every node execution.
type Executor struct {
	backend     backend.Provider
	dispatcher  Dispatcher
	channels    ChannelResolver
	classifier  *Classifier
	logger      zerolog.Logger
	model       string
	temperature float64
	maxTokens   int
	maxSteps    int
	callTimeout time.Duration
}

// Config holds executor configuration. Backend and Dispatcher are required;
// Channels may be nil when the executor is only used for per-event turns.
type Config struct {
	Backend     backend.Provider
	Dispatcher  Dispatcher
	Channels    ChannelResolver
	Logger      zerolog.Logger
	Model       string
	Temperature float64
	MaxTokens   int
	MaxSteps    int
	CallTimeout time.Duration
}

// NewExecutor creates a new executor.
func NewExecutor(cfg Config) (*Executor, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}

	actions := []string{}
	for _, name := range cfg.Dispatcher.Names() {
		if cfg.Dispatcher.IsAction(name) {
			actions = append(actions, name)
		}
	}

	return &Executor{
		backend:     cfg.Backend,
		dispatcher:  cfg.Dispatcher,
		channels:    cfg.Channels,
		classifier:  NewClassifier(actions),
		logger:      cfg.Logger,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		maxSteps:    cfg.MaxSteps,
		callTimeout: cfg.CallTimeout,
	}, nil
}

// Classifier exposes the executor's classifier, mainly for transports that
// need to pre-inspect an event.
func (e *Executor) Classifier() *Classifier {
	return e.classifier
}

// RunTurn processes one inbound event through the state machine until it
// reaches the end state. The session must already contain the inbound
// message. On a fatal error the turn aborts with a diagnostic appended to
// the transcript, and session state remains usable for the next event.
func (e *Executor) RunTurn(ctx context.Context, s *Session) error {
	logger := e.logger.With().Str("user_id", s.UserID).Logger()

	// Set after a conversational tool round so the reasoning step gets one
	// chance to narrate the results before the turn ends. Direct action
	// rounds skip narration: the next classification sees a tool result as
	// the last message and ends the turn.
	narrate := false

	for step := 0; step < e.maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrTurnAborted, err)
		}

		var route Route
		if narrate {
			route, narrate = RouteReasoning, false
		} else {
			route = e.classifier.Classify(s)
		}

		logger.Debug().Str("route", string(route)).Int("step", step).Msg("Transition")

		switch route {
		case RouteEnd:
			return nil

		case RouteReasoning:
			e.reason(ctx, s)

		case RouteToolExec, RouteActionExec:
			calls, direct, err := e.pendingCalls(s)
			if err != nil {
				return err
			}
			if err := e.dispatcher.Dispatch(ctx, s, calls); err != nil {
				var unknown *UnknownToolError
				if errors.As(err, &unknown) {
					logger.Error().Str("tool", unknown.Name).Msg("Unroutable tool call, aborting turn")
					return err
				}
				return fmt.Errorf("dispatch failed: %w", err)
			}
			if !direct {
				narrate = true
			}

		case RouteHumanWait:
			// The per-turn classifier never yields this; the conversation
			// driver suspends between turns instead.
			return &ClassificationError{Reason: "human wait inside a turn"}

		default:
			return &ClassificationError{Reason: fmt.Sprintf("unknown route %q", route)}
		}
	}

	logger.Error().Int("max_steps", e.maxSteps).Msg("Step ceiling exceeded")
	return ErrStepLimit
}

// RunConversation drives an interactive session over its live channel:
// turns run to completion, then the human-wait node suspends for the next
// user input, until the session finishes or the channel disconnects.
func (e *Executor) RunConversation(ctx context.Context, s *Session) error {
	if e.channels == nil {
		return fmt.Errorf("executor has no channel resolver")
	}

	for {
		if err := e.RunTurn(ctx, s); err != nil {
			return err
		}
		if s.Finished {
			return nil
		}
		if err := e.awaitHuman(ctx, s); err != nil {
			return err
		}
		if s.Finished {
			// Exit was requested during the wait; one more classification
			// confirms the terminal state without running any node.
			return nil
		}
	}
}

// pendingCalls extracts the tool calls for a dispatch round. For assistant
// messages these are the requested calls; for a user envelope a single call
// is synthesized, appended to the transcript so its result stays correlated,
// and the round is marked direct (no narration pass).
func (e *Executor) pendingCalls(s *Session) ([]ToolCall, bool, error) {
	last, ok := s.Last()
	if !ok {
		return nil, false, &ClassificationError{Reason: "dispatch with empty transcript"}
	}

	if last.HasToolCalls() {
		return last.ToolCalls, false, nil
	}

	if last.Kind == KindUser {
		env, ok := ParseEnvelope(last.Content)
		if !ok {
			return nil, false, &ClassificationError{Reason: "dispatch on non-envelope user message"}
		}
		call := ToolCall{
			ID:   uuid.New().String(),
			Name: env.Type,
			Args: env.Args,
		}
		s.Append(AssistantToolCalls("", []ToolCall{call}))
		return []ToolCall{call}, true, nil
	}

	return nil, false, &ClassificationError{Reason: "dispatch on message without tool calls"}
}
