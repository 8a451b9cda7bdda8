// Package tooldispatch resolves tool names to handlers and executes the
// calls requested by a reasoning pass or a direct action request. The
// supported operations form a closed table resolved once at startup; an
// unknown name is a typed error, not a recovered panic.
package tooldispatch

import (
	"context"
	"fmt"
	"sort"

	"github.com/amira/goalflow/pkg/backend"
	"github.com/amira/goalflow/pkg/flow"
	"github.com/amira/goalflow/pkg/routine"
	"github.com/amira/goalflow/pkg/store"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
)

// Dispatcher executes tool calls against a session.
type Dispatcher struct {
	tools    map[string]*Tool
	schemas  map[string]*gojsonschema.Schema
	store    *store.Store
	routines *routine.Generator
	logger   zerolog.Logger
}

// Config holds dispatcher dependencies.
type Config struct {
	Store    *store.Store
	Routines *routine.Generator
	Logger   zerolog.Logger
}

// New creates a dispatcher with the built-in goal tools registered.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Routines == nil {
		return nil, fmt.Errorf("routine generator is required")
	}

	d := &Dispatcher{
		tools:    make(map[string]*Tool),
		schemas:  make(map[string]*gojsonschema.Schema),
		store:    cfg.Store,
		routines: cfg.Routines,
		logger:   cfg.Logger,
	}

	for _, tool := range d.builtinTools() {
		if err := d.register(tool); err != nil {
			return nil, err
		}
	}

	return d, nil
}

// register adds a tool and compiles its argument schema.
func (d *Dispatcher) register(tool Tool) error {
	if tool.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if tool.Handler == nil {
		return fmt.Errorf("tool %s has no handler", tool.Name)
	}
	if _, exists := d.tools[tool.Name]; exists {
		return fmt.Errorf("tool %s already registered", tool.Name)
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(tool.InputSchema))
	if err != nil {
		return fmt.Errorf("failed to compile schema for %s: %w", tool.Name, err)
	}

	t := tool
	d.tools[tool.Name] = &t
	d.schemas[tool.Name] = schema

	d.logger.Debug().Str("tool", tool.Name).Bool("action", tool.Action).Msg("Tool registered")
	return nil
}

// IsAction reports whether the named tool mutates session or persisted
// state.
func (d *Dispatcher) IsAction(name string) bool {
	tool, ok := d.tools[name]
	return ok && tool.Action
}

// Names returns all registered tool names, sorted for stable prompts.
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.tools))
	for name := range d.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schemas returns the tool schemas for binding into reasoning requests.
func (d *Dispatcher) Schemas() []backend.ToolSchema {
	schemas := make([]backend.ToolSchema, 0, len(d.tools))
	for _, name := range d.Names() {
		tool := d.tools[name]
		schemas = append(schemas, backend.ToolSchema{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
	}
	return schemas
}

// Dispatch executes the requested calls in emission order, appending one
// tool result per call. The session owner's identity is injected into the
// arguments; it is never trusted from model output. Handler faults become
// error results and the turn continues; an unknown tool name aborts the
// turn after a diagnostic result is appended.
func (d *Dispatcher) Dispatch(ctx context.Context, s *flow.Session, calls []flow.ToolCall) error {
	for _, call := range calls {
		tool, ok := d.tools[call.Name]
		if !ok {
			s.Append(flow.ToolResultMessage(call.ID, call.Name,
				errorPayload(fmt.Sprintf("unknown tool: %s", call.Name))))
			return &flow.UnknownToolError{Name: call.Name}
		}

		args := make(map[string]interface{}, len(call.Args)+1)
		for k, v := range call.Args {
			args[k] = v
		}
		args["user_id"] = s.UserID

		if err := d.validateArgs(call.Name, args); err != nil {
			d.logger.Warn().Str("tool", call.Name).Err(err).Msg("Argument validation failed")
			s.Append(flow.ToolResultMessage(call.ID, call.Name, errorPayload(err.Error())))
			continue
		}

		out, err := tool.Handler(ctx, s, args)
		if err != nil {
			d.logger.Warn().Str("tool", call.Name).Err(err).Msg("Tool execution failed")
			s.Append(flow.ToolResultMessage(call.ID, call.Name, errorPayload(err.Error())))
			continue
		}

		d.logger.Debug().Str("tool", call.Name).Str("user_id", s.UserID).Msg("Tool executed")
		s.Append(flow.ToolResultMessage(call.ID, call.Name, out))
	}
	return nil
}

// validateArgs checks call arguments against the tool's compiled schema.
func (d *Dispatcher) validateArgs(name string, args map[string]interface{}) error {
	result, err := d.schemas[name].Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Errorf("invalid arguments: %v", err)
	}
	if !result.Valid() {
		return fmt.Errorf("invalid arguments for %s: %v", name, result.Errors())
	}
	return nil
}
