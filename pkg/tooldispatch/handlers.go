package tooldispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/amira/goalflow/pkg/flow"
	"github.com/amira/goalflow/pkg/routine"
)

// defaultGoalDays applies when a deadline is absent or unparseable.
const defaultGoalDays = 30

const deadlineLayout = "2006-01-02"

// builtinTools returns the closed set of supported goal operations.
func (d *Dispatcher) builtinTools() []Tool {
	return []Tool{
		{
			Name:        "add_goal",
			Description: "Add a new goal for the user and create a structured daily routine for it.",
			Action:      true,
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"title":         map[string]interface{}{"type": "string", "description": "Short goal title"},
					"category":      map[string]interface{}{"type": "string", "description": "Goal category, e.g. fitness, learning"},
					"description":   map[string]interface{}{"type": "string", "description": "What achieving the goal looks like"},
					"deadline":      map[string]interface{}{"type": "string", "description": "Target date, YYYY-MM-DD"},
					"milestones":    map[string]interface{}{"description": "Ordered list of milestone descriptions"},
					"email_updates": map[string]interface{}{"description": "Email update frequency: never, daily, weekly or monthly"},
					"user_id":       map[string]interface{}{"type": "string"},
				},
			},
			Handler: d.handleAddGoal,
		},
		{
			Name:        "get_user_goals",
			Description: "Return all goals and their progress for the current user.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"user_id": map[string]interface{}{"type": "string"},
				},
			},
			Handler: d.handleGetUserGoals,
		},
		{
			Name:        "get_goal_progress",
			Description: "Get detailed progress for one goal, including elapsed days and completion.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"goal_id": map[string]interface{}{"type": "integer"},
					"user_id": map[string]interface{}{"type": "string"},
				},
			},
			Handler: d.handleGetGoalProgress,
		},
		{
			Name:        "get_routine_for_goal",
			Description: "Return the stored daily routine for a goal.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"goal_id": map[string]interface{}{"type": "integer"},
					"user_id": map[string]interface{}{"type": "string"},
				},
			},
			Handler: d.handleGetRoutine,
		},
		{
			Name:        "log_progress",
			Description: "Log the user's progress for a specific day of a goal.",
			Action:      true,
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"goal_id": map[string]interface{}{"type": "integer"},
					"day":     map[string]interface{}{"type": "integer"},
					"note":    map[string]interface{}{"type": "string"},
					"user_id": map[string]interface{}{"type": "string"},
				},
			},
			Handler: d.handleLogProgress,
		},
	}
}

// handleAddGoal validates and normalizes a goal request, generates its
// routine, and persists both atomically. No partial goal is ever created.
func (d *Dispatcher) handleAddGoal(ctx context.Context, s *flow.Session, args map[string]interface{}) (string, error) {
	missing := []string{}
	for _, field := range []string{"title", "category", "description"} {
		if getString(args, field) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}

	title := getString(args, "title")
	deadline := getString(args, "deadline")
	days := daysUntil(deadline)

	goal := flow.Goal{
		Title:        title,
		Category:     getString(args, "category"),
		Description:  getString(args, "description"),
		Deadline:     deadline,
		Days:         days,
		Milestones:   normalizeMilestones(args["milestones"]),
		EmailUpdates: normalizeFrequency(firstPresent(args, "email_updates", "emailUpdates")),
	}

	plan := d.routines.Generate(ctx, title, days, goal.Milestones)

	goalID, err := d.store.StoreGoalWithRoutine(ctx, s.UserID, goal, plan)
	if err != nil {
		return "", fmt.Errorf("failed to add goal: %v", err)
	}

	goal.ID = goalID
	s.Goals = append(s.Goals, goal)
	s.Routines[title] = routine.Describe(plan)

	return successPayload(
		fmt.Sprintf("✅ Goal '%s' added with a %d-day structured routine.", title, days),
		map[string]interface{}{
			"goal":    goal,
			"routine": plan,
		},
	), nil
}

// handleGetUserGoals formats all goals for the session owner as a fixed
// text block, one record per goal.
func (d *Dispatcher) handleGetUserGoals(ctx context.Context, s *flow.Session, args map[string]interface{}) (string, error) {
	goals, err := d.store.FetchGoals(ctx, s.UserID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch goals: %v", err)
	}
	if len(goals) == 0 {
		return "No goals found.", nil
	}

	blocks := make([]string, 0, len(goals))
	for _, g := range goals {
		status := "On Track"
		if g.ElapsedDays > g.Days {
			status = "Overdue"
		}
		blocks = append(blocks, fmt.Sprintf(
			"Title: %s (%d days)\n"+
				"  - Category: %s\n"+
				"  - Started: %s\n"+
				"  - Elapsed: %d days\n"+
				"  - Completed: %d/%d days\n"+
				"  - Status: %s",
			g.Title, g.Days, g.Category, g.CreatedAt.Format(deadlineLayout),
			g.ElapsedDays, g.CompletedDays, g.Days, status,
		))
	}
	return strings.Join(blocks, "\n\n"), nil
}

// handleGetGoalProgress renders elapsed/completed counts and completion
// percentage for one goal.
func (d *Dispatcher) handleGetGoalProgress(ctx context.Context, s *flow.Session, args map[string]interface{}) (string, error) {
	goalID, ok := getInt(args, "goal_id")
	if !ok {
		return "", fmt.Errorf("missing required fields: goal_id")
	}

	progress, err := d.store.FetchGoalProgress(ctx, goalID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch goal progress: %v", err)
	}
	if progress == nil {
		return "Goal not found.", nil
	}

	pct := 0.0
	if progress.TotalDays > 0 {
		pct = float64(progress.CompletedDays) / float64(progress.TotalDays) * 100
	}
	status := "On Track"
	if progress.ElapsedDays > progress.TotalDays {
		status = "Overdue"
	}

	return fmt.Sprintf(
		"Goal: %s\nDays Elapsed: %d\nDays Completed: %d out of %d\nCompletion: %.1f%%\nStatus: %s",
		progress.Title, progress.ElapsedDays, progress.CompletedDays, progress.TotalDays, pct, status,
	), nil
}

// handleGetRoutine lists the stored day plan for a goal.
func (d *Dispatcher) handleGetRoutine(ctx context.Context, s *flow.Session, args map[string]interface{}) (string, error) {
	goalID, ok := getInt(args, "goal_id")
	if !ok {
		return "", fmt.Errorf("missing required fields: goal_id")
	}

	tasks, err := d.store.FetchRoutine(ctx, goalID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch routine: %v", err)
	}
	if len(tasks) == 0 {
		return "No routine found for this goal.", nil
	}

	lines := make([]string, 0, len(tasks))
	for _, t := range tasks {
		lines = append(lines, fmt.Sprintf("Day %d: %s", t.Day, t.Description))
	}
	return strings.Join(lines, "\n"), nil
}

// handleLogProgress records a note for one day, rejecting days that have
// not elapsed yet.
func (d *Dispatcher) handleLogProgress(ctx context.Context, s *flow.Session, args map[string]interface{}) (string, error) {
	goalID, ok := getInt(args, "goal_id")
	if !ok {
		return "", fmt.Errorf("missing required fields: goal_id")
	}
	day, ok := getInt(args, "day")
	if !ok {
		return "", fmt.Errorf("missing required fields: day")
	}

	elapsed, err := d.store.ElapsedDays(ctx, goalID)
	if err != nil {
		return "", fmt.Errorf("failed to check elapsed days: %v", err)
	}
	if int(day) > elapsed {
		return fmt.Sprintf("Cannot log progress for day %d as only %d days have elapsed.", day, elapsed), nil
	}

	if err := d.store.LogProgress(ctx, goalID, int(day), getString(args, "note")); err != nil {
		return "", fmt.Errorf("failed to log progress: %v", err)
	}
	return fmt.Sprintf("Progress for Day %d logged successfully.", day), nil
}

// daysUntil computes the goal duration as whole calendar days between today
// and the deadline date, defaulting when the deadline is absent or
// unparseable and never returning less than one.
func daysUntil(deadline string) int {
	if deadline == "" {
		return defaultGoalDays
	}
	t, err := time.Parse(deadlineLayout, deadline)
	if err != nil {
		return defaultGoalDays
	}
	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	days := int(t.Sub(today).Hours() / 24)
	if days < 1 {
		return 1
	}
	return days
}

// normalizeMilestones coerces the milestones argument to a list of trimmed,
// non-empty strings. Strings are tried as JSON lists first.
func normalizeMilestones(raw interface{}) []string {
	var items []interface{}
	switch v := raw.(type) {
	case []interface{}:
		items = v
	case []string:
		for _, s := range v {
			items = append(items, s)
		}
	case string:
		if err := json.Unmarshal([]byte(v), &items); err != nil {
			return nil
		}
	default:
		return nil
	}

	milestones := make([]string, 0, len(items))
	for _, item := range items {
		s := strings.TrimSpace(fmt.Sprintf("%v", item))
		if s != "" {
			milestones = append(milestones, s)
		}
	}
	return milestones
}

// normalizeFrequency collapses the email update argument to one of the four
// supported values. A list collapses to the most granular entry present.
func normalizeFrequency(raw interface{}) string {
	switch v := raw.(type) {
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case flow.FrequencyDaily:
			return flow.FrequencyDaily
		case flow.FrequencyWeekly:
			return flow.FrequencyWeekly
		case flow.FrequencyMonthly:
			return flow.FrequencyMonthly
		default:
			return flow.FrequencyNever
		}
	case []interface{}:
		present := map[string]bool{}
		for _, item := range v {
			if s, ok := item.(string); ok {
				present[strings.ToLower(strings.TrimSpace(s))] = true
			}
		}
		for _, freq := range []string{flow.FrequencyDaily, flow.FrequencyWeekly, flow.FrequencyMonthly} {
			if present[freq] {
				return freq
			}
		}
		return flow.FrequencyNever
	default:
		return flow.FrequencyNever
	}
}

// getString reads a trimmed string argument.
func getString(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// getInt reads an integer argument; JSON decoding yields float64.
func getInt(args map[string]interface{}, key string) (int64, bool) {
	switch v := args[key].(type) {
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}

// firstPresent returns the first argument present under any of the keys.
func firstPresent(args map[string]interface{}, keys ...string) interface{} {
	for _, key := range keys {
		if v, ok := args[key]; ok {
			return v
		}
	}
	return nil
}
