// Package routine turns a goal into a day-indexed task breakdown using a
// reasoning backend sub-call. Generation never fails visibly: unusable
// backend output degrades to a deterministic fallback plan.
package routine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/amira/goalflow/pkg/backend"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
)

// DayPlan is one day of a generated routine.
type DayPlan struct {
	Day   int      `json:"day"`
	Title string   `json:"title"`
	Tasks []string `json:"tasks"`
}

// dayPlanSchema validates the shape the backend is asked to produce.
const dayPlanSchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"properties": {
			"day":   {"type": "integer"},
			"title": {"type": "string"},
			"tasks": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["day", "tasks"]
	}
}`

// Generator produces structured routines for goals.
type Generator struct {
	backend backend.Provider
	logger  zerolog.Logger
	timeout time.Duration
	schema  *gojsonschema.Schema
}

// Config holds generator configuration.
type Config struct {
	Backend backend.Provider
	Logger  zerolog.Logger
	Timeout time.Duration
}

// NewGenerator creates a routine generator.
func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(dayPlanSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile day plan schema: %w", err)
	}

	return &Generator{
		backend: cfg.Backend,
		logger:  cfg.Logger,
		timeout: cfg.Timeout,
		schema:  schema,
	}, nil
}

// Generate asks the backend for a day-indexed routine covering the goal.
// When milestones are given they are distributed evenly across the available
// days. Output failures degrade to a one-task-per-day fallback plan.
func (g *Generator) Generate(ctx context.Context, goal string, days int, milestones []string) []DayPlan {
	if days < 1 {
		days = 1
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	raw, err := g.backend.Complete(callCtx, buildPrompt(goal, days, milestones))
	if err != nil {
		g.logger.Warn().Err(err).Str("goal", goal).Msg("Routine generation failed, using fallback plan")
		return fallbackPlan(goal, days)
	}

	plan, err := g.parse(raw)
	if err != nil {
		g.logger.Warn().Err(err).Str("goal", goal).Msg("Unparseable routine output, using fallback plan")
		return fallbackPlan(goal, days)
	}

	return cleanPlan(plan, goal)
}

// buildPrompt composes the generation prompt.
func buildPrompt(goal string, days int, milestones []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a goal planning assistant.\n\n")
	fmt.Fprintf(&b, "Generate a %d-day structured daily learning routine to help someone achieve the following goal: %q.\n\n", days, goal)

	if len(milestones) > 0 {
		daysPerMilestone := days / len(milestones)
		if daysPerMilestone < 1 {
			daysPerMilestone = 1
		}
		fmt.Fprintf(&b, "Work toward these milestones in order, spending roughly %d day(s) on each: %s.\n\n",
			daysPerMilestone, strings.Join(milestones, "; "))
	}

	b.WriteString(`Output the routine as a JSON array of objects, one per day, shaped as:
{"day": number, "title": "Day title", "tasks": ["task1", "task2", "task3"]}

Each day should have a clear title followed by 2-3 specific tasks. Be concise and practical.
Only output valid JSON. No markdown formatting or code blocks.`)

	return b.String()
}

// parse sanitizes and decodes the backend output.
func (g *Generator) parse(raw string) ([]DayPlan, error) {
	content := sanitize(raw)

	result, err := g.schema.Validate(gojsonschema.NewStringLoader(content))
	if err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if !result.Valid() {
		return nil, fmt.Errorf("routine output does not match day plan shape: %v", result.Errors())
	}

	var plan []DayPlan
	if err := json.Unmarshal([]byte(content), &plan); err != nil {
		return nil, fmt.Errorf("failed to decode day plan: %w", err)
	}
	if len(plan) == 0 {
		return nil, fmt.Errorf("empty day plan")
	}
	return plan, nil
}

// sanitize strips surrounding code fences and normalizes smart quotes, which
// some backends emit despite instructions.
func sanitize(raw string) string {
	content := strings.TrimSpace(raw)

	if strings.HasPrefix(content, "```") {
		if idx := strings.Index(content, "\n"); idx >= 0 {
			content = content[idx+1:]
		}
		if idx := strings.LastIndex(content, "```"); idx >= 0 {
			content = content[:idx]
		}
		content = strings.TrimSpace(content)
	}

	replacer := strings.NewReplacer(
		"“", `"`, // left double quote
		"”", `"`, // right double quote
		"‘", "'", // left single quote
		"’", "'", // right single quote
	)
	return replacer.Replace(content)
}

// cleanPlan fills missing fields so downstream formatting never sees holes.
func cleanPlan(plan []DayPlan, goal string) []DayPlan {
	cleaned := make([]DayPlan, 0, len(plan))
	for i, day := range plan {
		if day.Day <= 0 {
			day.Day = i + 1
		}
		if day.Title == "" {
			day.Title = fmt.Sprintf("Day %d", day.Day)
		}
		if len(day.Tasks) == 0 {
			day.Tasks = []string{fmt.Sprintf("Work on %s", goal)}
		}
		cleaned = append(cleaned, day)
	}
	return cleaned
}

// fallbackPlan synthesizes a minimal deterministic routine.
func fallbackPlan(goal string, days int) []DayPlan {
	plan := make([]DayPlan, 0, days)
	for i := 0; i < days; i++ {
		plan = append(plan, DayPlan{
			Day:   i + 1,
			Title: fmt.Sprintf("Day %d", i+1),
			Tasks: []string{fmt.Sprintf("Work on %s", goal)},
		})
	}
	return plan
}

// Describe renders a day plan as transcript-friendly task descriptions.
func Describe(plan []DayPlan) []string {
	out := make([]string, 0, len(plan))
	for _, day := range plan {
		out = append(out, fmt.Sprintf("Day %d: %s - %s", day.Day, day.Title, strings.Join(day.Tasks, "; ")))
	}
	return out
}
