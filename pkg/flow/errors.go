package flow

import (
	"errors"
	"fmt"
)

var (
	// ErrStepLimit is returned when a single inbound event exceeds the
	// transition ceiling, which indicates a classifier cycling bug.
	ErrStepLimit = errors.New("transition step limit exceeded")

	// ErrChannelNotFound is returned when a session has no live transport
	// channel; the turn cannot proceed without its connection.
	ErrChannelNotFound = errors.New("no live channel for user")

	// ErrTurnAborted is returned when a suspended turn is cancelled, for
	// example by the channel disconnecting during human wait. Session state
	// is preserved; the session is not finished.
	ErrTurnAborted = errors.New("turn aborted")
)

// UnknownToolError marks an unrecognized tool name reaching dispatch. It is
// fatal for the turn: a diagnostic tool result is synthesized and the
// executor forces the end state.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Name)
}

// ClassificationError marks a message shape the classifier cannot route.
type ClassificationError struct {
	Reason string
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classification error: %s", e.Reason)
}
