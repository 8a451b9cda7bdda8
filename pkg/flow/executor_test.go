package flow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/amira/goalflow/pkg/backend"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend replays a scripted sequence of chat responses. When loop is
// set it returns that response forever instead.
type fakeBackend struct {
	script []backend.ChatResponse
	errs   []error
	loop   *backend.ChatResponse
	calls  int
}

func (f *fakeBackend) Chat(_ context.Context, _ backend.ChatRequest) (*backend.ChatResponse, error) {
	i := f.calls
	f.calls++
	if f.loop != nil {
		resp := *f.loop
		return &resp, nil
	}
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i >= len(f.script) {
		return nil, fmt.Errorf("unexpected chat call %d", i)
	}
	resp := f.script[i]
	return &resp, nil
}

func (f *fakeBackend) Complete(_ context.Context, _ string) (string, error) {
	return "", fmt.Errorf("not scripted")
}

func (f *fakeBackend) Name() string { return "fake" }

// fakeDispatcher resolves tool names against a canned result table.
type fakeDispatcher struct {
	actions map[string]bool
	results map[string]string
}

func (f *fakeDispatcher) Dispatch(_ context.Context, s *Session, calls []ToolCall) error {
	for _, call := range calls {
		result, ok := f.results[call.Name]
		if !ok {
			s.Append(ToolResultMessage(call.ID, call.Name, "unknown tool: "+call.Name))
			return &UnknownToolError{Name: call.Name}
		}
		s.Append(ToolResultMessage(call.ID, call.Name, result))
	}
	return nil
}

func (f *fakeDispatcher) IsAction(name string) bool { return f.actions[name] }

func (f *fakeDispatcher) Names() []string {
	names := make([]string, 0, len(f.results))
	for name := range f.results {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f *fakeDispatcher) Schemas() []backend.ToolSchema { return nil }

func newTestDispatcher() *fakeDispatcher {
	return &fakeDispatcher{
		actions: map[string]bool{"add_goal": true, "log_progress": true},
		results: map[string]string{
			"add_goal":       `{"status":"success","message":"goal added"}`,
			"log_progress":   `{"status":"success","message":"logged"}`,
			"get_user_goals": "No goals found.",
		},
	}
}

func newTestExecutor(t *testing.T, b backend.Provider, d Dispatcher, maxSteps int) *Executor {
	t.Helper()
	e, err := NewExecutor(Config{
		Backend:    b,
		Dispatcher: d,
		Logger:     zerolog.Nop(),
		Model:      "test-model",
		MaxSteps:   maxSteps,
	})
	require.NoError(t, err)
	return e
}

func TestRunTurnWelcomesNewSession(t *testing.T) {
	b := &fakeBackend{}
	e := newTestExecutor(t, b, newTestDispatcher(), 0)
	s := NewSession("user-1")

	require.NoError(t, e.RunTurn(context.Background(), s))

	require.Len(t, s.Messages, 1)
	assert.Equal(t, KindAssistant, s.Messages[0].Kind)
	assert.Equal(t, WelcomeMessage, s.Messages[0].Content)
	assert.Zero(t, b.calls, "welcome must not hit the backend")
}

func TestRunTurnPlainChat(t *testing.T) {
	b := &fakeBackend{script: []backend.ChatResponse{{Content: "Great, let's set a goal!"}}}
	e := newTestExecutor(t, b, newTestDispatcher(), 0)
	s := NewSession("user-1")
	s.Append(UserText("I want to learn guitar"))

	require.NoError(t, e.RunTurn(context.Background(), s))

	require.Len(t, s.Messages, 2)
	assert.Equal(t, "Great, let's set a goal!", s.Messages[1].Content)
	assert.Equal(t, 1, b.calls)
}

func TestRunTurnBackendFaultFallback(t *testing.T) {
	b := &fakeBackend{errs: []error{fmt.Errorf("upstream 500")}}
	e := newTestExecutor(t, b, newTestDispatcher(), 0)
	s := NewSession("user-1")
	s.Append(UserText("hello"))

	require.NoError(t, e.RunTurn(context.Background(), s))

	require.Len(t, s.Messages, 2)
	last := s.Messages[1]
	assert.Equal(t, KindAssistant, last.Kind)
	assert.True(t, last.Fallback)
	assert.NotEmpty(t, last.Content)
	assert.Equal(t, 1, b.calls, "fallback output must not be re-fed to the backend")
}

func TestRunTurnToolRoundNarrates(t *testing.T) {
	b := &fakeBackend{script: []backend.ChatResponse{
		{ToolCalls: []backend.ToolCall{{ID: "c1", Name: "get_user_goals"}}},
		{Content: "You have no goals yet."},
	}}
	e := newTestExecutor(t, b, newTestDispatcher(), 0)
	s := NewSession("user-1")
	s.Append(UserText("show my goals"))

	require.NoError(t, e.RunTurn(context.Background(), s))

	require.Len(t, s.Messages, 4)
	assert.Equal(t, KindUser, s.Messages[0].Kind)
	assert.True(t, s.Messages[1].HasToolCalls())
	assert.Equal(t, KindToolResult, s.Messages[2].Kind)
	assert.Equal(t, "You have no goals yet.", s.Messages[3].Content)
	assert.Equal(t, 2, b.calls)
}

func TestRunTurnDirectActionSkipsNarration(t *testing.T) {
	b := &fakeBackend{}
	e := newTestExecutor(t, b, newTestDispatcher(), 0)
	s := NewSession("user-1")
	s.Append(UserText(`{"type":"add_goal","args":{"title":"Learn guitar"}}`))

	require.NoError(t, e.RunTurn(context.Background(), s))

	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, KindToolResult, last.Kind)
	assert.Equal(t, "add_goal", last.ToolName)
	assert.Zero(t, b.calls, "direct action rounds bypass reasoning")
}

func TestRunTurnToolResultsReferencePriorCalls(t *testing.T) {
	assertCorrelated := func(t *testing.T, s *Session) {
		t.Helper()
		seen := map[string]bool{}
		for _, msg := range s.Messages {
			for _, call := range msg.ToolCalls {
				seen[call.ID] = true
			}
			if msg.Kind == KindToolResult {
				assert.True(t, seen[msg.ToolCallID], "result %q references no prior call", msg.ToolCallID)
			}
		}
	}

	t.Run("conversational tool round", func(t *testing.T) {
		b := &fakeBackend{script: []backend.ChatResponse{
			{ToolCalls: []backend.ToolCall{{ID: "c1", Name: "get_user_goals"}}},
			{Content: "Nothing yet."},
		}}
		e := newTestExecutor(t, b, newTestDispatcher(), 0)
		s := NewSession("user-1")
		s.Append(UserText("show my goals"))

		require.NoError(t, e.RunTurn(context.Background(), s))
		assertCorrelated(t, s)
	})

	t.Run("direct action round records the synthesized call", func(t *testing.T) {
		b := &fakeBackend{}
		e := newTestExecutor(t, b, newTestDispatcher(), 0)
		s := NewSession("user-1")
		s.Append(UserText(`{"type":"add_goal","args":{"title":"Learn guitar"}}`))

		require.NoError(t, e.RunTurn(context.Background(), s))
		assertCorrelated(t, s)

		require.Len(t, s.Messages, 3)
		require.True(t, s.Messages[1].HasToolCalls())
		assert.Equal(t, s.Messages[1].ToolCalls[0].ID, s.Messages[2].ToolCallID)
	})
}

func TestRunTurnUnknownToolAborts(t *testing.T) {
	b := &fakeBackend{}
	e := newTestExecutor(t, b, newTestDispatcher(), 0)
	s := NewSession("user-1")
	s.Append(UserText(`{"type":"launch_rocket","args":{}}`))

	err := e.RunTurn(context.Background(), s)

	var unknown *UnknownToolError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "launch_rocket", unknown.Name)

	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, KindToolResult, last.Kind, "a diagnostic result must be left in the transcript")
}

func TestRunTurnStepCeiling(t *testing.T) {
	// A backend that always requests another tool call cycles forever
	// through reason -> dispatch -> narrate.
	b := &fakeBackend{loop: &backend.ChatResponse{
		ToolCalls: []backend.ToolCall{{ID: "c", Name: "get_user_goals"}},
	}}
	e := newTestExecutor(t, b, newTestDispatcher(), 8)
	s := NewSession("user-1")
	s.Append(UserText("loop"))

	err := e.RunTurn(context.Background(), s)
	assert.ErrorIs(t, err, ErrStepLimit)
}

func TestRunTurnCancelledContext(t *testing.T) {
	b := &fakeBackend{}
	e := newTestExecutor(t, b, newTestDispatcher(), 0)
	s := NewSession("user-1")
	s.Append(UserText("hello"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.RunTurn(ctx, s)
	assert.ErrorIs(t, err, ErrTurnAborted)
}

func TestRunTurnFinishedSessionIsNoop(t *testing.T) {
	b := &fakeBackend{}
	e := newTestExecutor(t, b, newTestDispatcher(), 0)
	s := NewSession("user-1")
	s.Append(UserText("bye"))
	s.Finished = true

	require.NoError(t, e.RunTurn(context.Background(), s))
	assert.Len(t, s.Messages, 1)
	assert.Zero(t, b.calls)
}

func TestNewExecutorValidation(t *testing.T) {
	_, err := NewExecutor(Config{Dispatcher: newTestDispatcher()})
	assert.Error(t, err)

	_, err = NewExecutor(Config{Backend: &fakeBackend{}})
	assert.Error(t, err)
}

func TestNoConsecutiveAssistantTexts(t *testing.T) {
	b := &fakeBackend{script: []backend.ChatResponse{{Content: "first"}}}
	e := newTestExecutor(t, b, newTestDispatcher(), 0)
	s := NewSession("user-1")
	s.Append(UserText("hi"))

	require.NoError(t, e.RunTurn(context.Background(), s))
	// A second run without new input must not produce another response.
	require.NoError(t, e.RunTurn(context.Background(), s))

	var consecutive bool
	for i := 1; i < len(s.Messages); i++ {
		if s.Messages[i].Kind == KindAssistant && !s.Messages[i].HasToolCalls() &&
			s.Messages[i-1].Kind == KindAssistant && !s.Messages[i-1].HasToolCalls() {
			consecutive = true
		}
	}
	assert.False(t, consecutive)
	assert.Equal(t, 1, b.calls)
}

func TestUnknownToolErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("dispatch: %w", &UnknownToolError{Name: "x"})
	var unknown *UnknownToolError
	assert.True(t, errors.As(err, &unknown))
}
