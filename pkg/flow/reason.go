package flow

import (
	"context"
	"fmt"
	"strings"

	"github.com/amira/goalflow/pkg/backend"
)

// WelcomeMessage opens every conversation without a backend call.
const WelcomeMessage = "Welcome to the Goal Setter AI. How may I help you today?"

// fallbackMessage substitutes for unusable backend output. It is flagged so
// the classifier never re-feeds it into the reasoning step.
const fallbackMessage = "I'm here to help you with your goals! You can ask me to:\n" +
	"- Review your existing goals\n" +
	"- Add a new goal\n" +
	"- Track your progress\n" +
	"- Generate routines for your goals\n\n" +
	"What would you like to do?"

// reason invokes the reasoning backend with the bound tool schema and
// appends exactly one assistant message. It never fails: backend faults and
// empty output are absorbed into a fallback response so the turn always
// terminates with user-visible output.
func (e *Executor) reason(ctx context.Context, s *Session) {
	logger := e.logger.With().Str("user_id", s.UserID).Logger()

	if len(s.Messages) == 0 {
		s.Append(AssistantText(WelcomeMessage))
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	resp, err := e.backend.Chat(callCtx, backend.ChatRequest{
		Model:       e.model,
		System:      e.systemPrompt(s.UserID),
		Messages:    promptHistory(s.Messages),
		Tools:       e.dispatcher.Schemas(),
		Temperature: e.temperature,
		MaxTokens:   e.maxTokens,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Reasoning backend failed, using fallback")
		msg := AssistantText(fallbackMessage)
		msg.Fallback = true
		s.Append(msg)
		return
	}

	if len(resp.ToolCalls) > 0 {
		calls := make([]ToolCall, 0, len(resp.ToolCalls))
		for _, tc := range resp.ToolCalls {
			calls = append(calls, ToolCall{ID: tc.ID, Name: tc.Name, Args: tc.Args})
		}
		s.Append(AssistantToolCalls(resp.Content, calls))
		return
	}

	if strings.TrimSpace(resp.Content) == "" {
		logger.Warn().Msg("Empty backend output, using fallback")
		msg := AssistantText(fallbackMessage)
		msg.Fallback = true
		s.Append(msg)
		return
	}

	s.Append(AssistantText(resp.Content))
}

// systemPrompt builds the fixed system instruction, parameterized by the
// user identity and the currently bound tool names.
func (e *Executor) systemPrompt(userID string) string {
	tools := strings.Join(e.dispatcher.Names(), ", ")
	return fmt.Sprintf(
		"You are GoalSetterAI, a supportive assistant that helps users set personal "+
			"development goals, break them into daily routines, and log progress. "+
			"Current user ID: %s. Use this id to identify the user and their goals; "+
			"never ask the user for their id. "+
			"When the user wants to add, review, or modify goals and routines, call the "+
			"matching tool instead of asking for information the tools can provide. "+
			"Available tools: %s. "+
			"Always aim to keep the user motivated and organized.",
		userID, tools,
	)
}

// promptHistory converts the transcript for the backend, excluding tool
// results: tool outputs are narrated into context by the reasoning pass that
// follows dispatch, not re-fed as raw payloads. This bounds prompt growth
// and keeps the model from re-triggering the same tool.
func promptHistory(messages []Message) []backend.ChatMessage {
	history := make([]backend.ChatMessage, 0, len(messages))
	for _, msg := range messages {
		switch msg.Kind {
		case KindUser:
			history = append(history, backend.ChatMessage{Role: "user", Content: msg.Content})
		case KindAssistant:
			if len(msg.ToolCalls) > 0 {
				continue
			}
			history = append(history, backend.ChatMessage{Role: "assistant", Content: msg.Content})
		case KindToolResult:
			continue
		}
	}
	return history
}
