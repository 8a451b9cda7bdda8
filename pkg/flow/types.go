package flow

import (
	"encoding/json"
	"strings"
	"time"
)

// Kind discriminates message variants in a session transcript.
type Kind string

const (
	KindUser       Kind = "user"
	KindAssistant  Kind = "assistant"
	KindToolResult Kind = "tool_result"
)

// Route identifies the next processing stage for a session.
type Route string

const (
	RouteReasoning  Route = "reasoning"
	RouteToolExec   Route = "tool_exec"
	RouteActionExec Route = "action_exec"
	RouteHumanWait  Route = "human_wait"
	RouteEnd        Route = "end"
)

// ToolCall is a single tool invocation requested by the assistant.
type ToolCall struct {
	ID   string                 `json:"id"`
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// Message is one entry in a session transcript. The Kind tag is assigned
// once at the transport boundary; downstream logic switches on it and never
// re-derives the variant from content.
type Message struct {
	Kind       Kind       `json:"kind"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
	Fallback   bool       `json:"fallback,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// UserText builds a user message.
func UserText(content string) Message {
	return Message{Kind: KindUser, Content: content, Timestamp: time.Now()}
}

// AssistantText builds a plain assistant message.
func AssistantText(content string) Message {
	return Message{Kind: KindAssistant, Content: content, Timestamp: time.Now()}
}

// AssistantToolCalls builds an assistant message that requests tool
// invocations. Content may be empty.
func AssistantToolCalls(content string, calls []ToolCall) Message {
	return Message{Kind: KindAssistant, Content: content, ToolCalls: calls, Timestamp: time.Now()}
}

// ToolResultMessage builds a tool result correlated to the originating call.
func ToolResultMessage(callID, toolName, content string) Message {
	return Message{
		Kind:       KindToolResult,
		Content:    content,
		ToolCallID: callID,
		ToolName:   toolName,
		Timestamp:  time.Now(),
	}
}

// HasToolCalls reports whether the message requests tool invocations.
func (m Message) HasToolCalls() bool {
	return m.Kind == KindAssistant && len(m.ToolCalls) > 0
}

// Goal is a user goal accumulated in a session. ID is zero until the
// persistence layer assigns one.
type Goal struct {
	ID           int64    `json:"id,omitempty"`
	Title        string   `json:"title"`
	Category     string   `json:"category"`
	Description  string   `json:"description"`
	Deadline     string   `json:"deadline,omitempty"`
	Days         int      `json:"days"`
	Milestones   []string `json:"milestones,omitempty"`
	EmailUpdates string   `json:"email_updates"`
}

// Email update frequencies, most granular first.
const (
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
	FrequencyNever   = "never"
)

// Envelope is the typed request shape used by non-conversational callers.
// A user message whose text parses as an envelope is routed as a direct
// action request.
type Envelope struct {
	Type string                 `json:"type"`
	Args map[string]interface{} `json:"args"`
}

// ParseEnvelope attempts to interpret text as a typed request envelope.
func ParseEnvelope(text string) (Envelope, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return Envelope{}, false
	}
	var env Envelope
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
		return Envelope{}, false
	}
	if env.Type == "" {
		return Envelope{}, false
	}
	return env, true
}

// Event is an inbound transport event delivered to a waiting session.
type Event struct {
	Type string                 `json:"type"`
	Text string                 `json:"text,omitempty"`
	Args map[string]interface{} `json:"args,omitempty"`
}

// EventUserSpeech tags events carrying user speech; the human-wait node
// ignores every other event type except EventClearHistory.
const EventUserSpeech = "userSpeech"

// EventClearHistory asks the conversation that owns the session to trim the
// transcript before the next turn. Transports deliver it instead of clearing
// the session themselves.
const EventClearHistory = "clearHistory"
