package flow

import (
	"strings"
)

// Classifier categorizes the most recent message of a session into the next
// processing route. It is a pure function of the session: classifying an
// unchanged session twice yields the same route.
type Classifier struct {
	actionTools map[string]bool
}

// NewClassifier creates a classifier with the registered action tool set.
// Tool names not in the set are treated as auto (read-only) tools; names
// unknown to the dispatcher fail later, at dispatch.
func NewClassifier(actionTools []string) *Classifier {
	set := make(map[string]bool, len(actionTools))
	for _, name := range actionTools {
		set[name] = true
	}
	return &Classifier{actionTools: set}
}

// Classify selects the next route for a session. Rules are priority-ordered;
// the first match wins.
func (c *Classifier) Classify(s *Session) Route {
	if s.Finished {
		return RouteEnd
	}

	last, ok := s.Last()
	if !ok {
		// A fresh session opens with a reasoning pass (the welcome message).
		return RouteReasoning
	}

	switch last.Kind {
	case KindToolResult:
		// A completed tool round yields control back to the transport.
		return RouteEnd

	case KindAssistant:
		if len(last.ToolCalls) > 0 {
			for _, call := range last.ToolCalls {
				if c.actionTools[call.Name] {
					return RouteActionExec
				}
			}
			return RouteToolExec
		}
		// Plain assistant output ends the turn: the assistant does not
		// self-converse, and a fallback response must never be re-fed to
		// the reasoning step.
		return RouteEnd
	}

	// User message. A typed request envelope is a direct action request.
	if _, ok := ParseEnvelope(last.Content); ok {
		return RouteActionExec
	}

	// Defensive guard: a message whose text repeats tool-result field
	// markers is a relabeled tool result that lost its variant tag at the
	// transport boundary, not new user input.
	if looksLikeToolRendering(last.Content) {
		return RouteEnd
	}

	return RouteReasoning
}

// looksLikeToolRendering detects the fixed-shape text blocks produced by the
// goal query tools.
func looksLikeToolRendering(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range []string{"category:", "title:", "progress:"} {
		if strings.Count(lower, marker) >= 2 {
			return true
		}
	}
	return false
}
