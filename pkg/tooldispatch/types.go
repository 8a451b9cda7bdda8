package tooldispatch

import (
	"context"
	"encoding/json"

	"github.com/amira/goalflow/pkg/flow"
)

// HandlerFunc executes one tool call. The returned string becomes the tool
// result content; a non-nil error becomes a structured error result and the
// turn continues.
type HandlerFunc func(ctx context.Context, s *flow.Session, args map[string]interface{}) (string, error)

// Tool couples a tool's schema with its handler. Action tools mutate session
// or persisted state; auto tools are read-only.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
	Action      bool
	Handler     HandlerFunc
}

// errorPayload renders a user-facing fault as the structured form that
// crosses the transport boundary.
func errorPayload(message string) string {
	data, _ := json.Marshal(map[string]string{
		"status":  "error",
		"message": message,
	})
	return string(data)
}

// successPayload renders a structured success result.
func successPayload(message string, extra map[string]interface{}) string {
	payload := map[string]interface{}{
		"status":  "success",
		"message": message,
	}
	for k, v := range extra {
		payload[k] = v
	}
	data, _ := json.Marshal(payload)
	return string(data)
}
