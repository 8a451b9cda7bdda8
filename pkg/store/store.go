// Package store persists goals, routines, and progress logs in SQLite. All
// writes that must be mutually visible happen inside one transaction so a
// goal row and its routine rows are never partially stored.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/amira/goalflow/pkg/flow"
	"github.com/amira/goalflow/pkg/routine"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// GoalRecord is a stored goal with its progress counters.
type GoalRecord struct {
	flow.Goal
	UserID        string    `json:"user_id"`
	CreatedAt     time.Time `json:"created_at"`
	ElapsedDays   int       `json:"elapsed_days"`
	CompletedDays int       `json:"completed_days"`
}

// Progress summarizes one goal's completion state.
type Progress struct {
	Title         string `json:"title"`
	ElapsedDays   int    `json:"elapsed_days"`
	CompletedDays int    `json:"completed_days"`
	TotalDays     int    `json:"total_days"`
}

// DayTask is one stored routine entry.
type DayTask struct {
	Day         int    `json:"day"`
	Description string `json:"description"`
}

// Store wraps the SQLite database.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (or creates) the database at path and initializes the schema.
// Pass ":memory:" for an ephemeral store.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for better concurrency between the gateway and the digest
	// scheduler.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info().Str("path", path).Msg("Goal store opened")
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS goals (
		goal_id       INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id       TEXT NOT NULL,
		title         TEXT NOT NULL,
		category      TEXT NOT NULL,
		description   TEXT NOT NULL,
		deadline      TEXT NOT NULL DEFAULT '',
		days          INTEGER NOT NULL,
		milestones    TEXT NOT NULL DEFAULT '[]',
		email_updates TEXT NOT NULL DEFAULT 'never',
		created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_goals_user ON goals(user_id);
	CREATE INDEX IF NOT EXISTS idx_goals_email ON goals(email_updates);

	CREATE TABLE IF NOT EXISTS routines (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		goal_id     INTEGER NOT NULL REFERENCES goals(goal_id) ON DELETE CASCADE,
		day_number  INTEGER NOT NULL,
		description TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_routines_goal ON routines(goal_id);

	CREATE TABLE IF NOT EXISTS logs (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		goal_id    INTEGER NOT NULL REFERENCES goals(goal_id) ON DELETE CASCADE,
		day_number INTEGER NOT NULL,
		note       TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_logs_goal ON logs(goal_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// StoreGoalWithRoutine persists a goal and its generated routine atomically
// and returns the assigned goal id.
func (s *Store) StoreGoalWithRoutine(ctx context.Context, userID string, goal flow.Goal, plan []routine.DayPlan) (int64, error) {
	milestonesJSON, err := json.Marshal(goal.Milestones)
	if err != nil {
		return 0, fmt.Errorf("failed to encode milestones: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO goals (user_id, title, category, description, deadline, days, milestones, email_updates)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, goal.Title, goal.Category, goal.Description, goal.Deadline,
		goal.Days, string(milestonesJSON), goal.EmailUpdates,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert goal: %w", err)
	}

	goalID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read goal id: %w", err)
	}

	for _, day := range plan {
		dayJSON, err := json.Marshal(map[string]interface{}{
			"title": day.Title,
			"tasks": day.Tasks,
		})
		if err != nil {
			return 0, fmt.Errorf("failed to encode routine day: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO routines (goal_id, day_number, description)
			VALUES (?, ?, ?)`,
			goalID, day.Day, string(dayJSON),
		); err != nil {
			return 0, fmt.Errorf("failed to insert routine day: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit goal: %w", err)
	}

	s.logger.Info().
		Int64("goal_id", goalID).
		Str("user_id", userID).
		Str("title", goal.Title).
		Int("routine_days", len(plan)).
		Msg("Goal stored")

	return goalID, nil
}

// FetchGoals returns all goals with progress counters for a user.
func (s *Store) FetchGoals(ctx context.Context, userID string) ([]GoalRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.goal_id, g.title, g.category, g.description, g.deadline, g.days,
		       g.milestones, g.email_updates, g.created_at,
		       CAST(julianday('now') - julianday(g.created_at) AS INTEGER) AS elapsed_days,
		       COUNT(DISTINCT l.day_number) AS completed_days
		FROM goals g
		LEFT JOIN logs l ON g.goal_id = l.goal_id
		WHERE g.user_id = ?
		GROUP BY g.goal_id
		ORDER BY g.goal_id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query goals: %w", err)
	}
	defer rows.Close()

	var goals []GoalRecord
	for rows.Next() {
		rec, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		rec.UserID = userID
		goals = append(goals, rec)
	}
	return goals, rows.Err()
}

// FetchGoalProgress returns elapsed/completed/total day counts for a goal.
func (s *Store) FetchGoalProgress(ctx context.Context, goalID int64) (*Progress, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT g.title, g.days,
		       CAST(julianday('now') - julianday(g.created_at) AS INTEGER) AS elapsed_days,
		       COUNT(DISTINCT l.day_number) AS completed_days
		FROM goals g
		LEFT JOIN logs l ON g.goal_id = l.goal_id
		WHERE g.goal_id = ?
		GROUP BY g.goal_id`,
		goalID)

	var p Progress
	if err := row.Scan(&p.Title, &p.TotalDays, &p.ElapsedDays, &p.CompletedDays); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query goal progress: %w", err)
	}
	return &p, nil
}

// FetchRoutine returns the stored day plan for a goal in day order.
func (s *Store) FetchRoutine(ctx context.Context, goalID int64) ([]DayTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT day_number, description FROM routines
		WHERE goal_id = ? ORDER BY day_number`,
		goalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query routine: %w", err)
	}
	defer rows.Close()

	var tasks []DayTask
	for rows.Next() {
		var t DayTask
		if err := rows.Scan(&t.Day, &t.Description); err != nil {
			return nil, fmt.Errorf("failed to scan routine day: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// ElapsedDays returns how many days have passed since the goal was created.
func (s *Store) ElapsedDays(ctx context.Context, goalID int64) (int, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT CAST(julianday('now') - julianday(created_at) AS INTEGER)
		FROM goals WHERE goal_id = ?`,
		goalID)

	var elapsed int
	if err := row.Scan(&elapsed); err != nil {
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("goal %d not found", goalID)
		}
		return 0, fmt.Errorf("failed to query elapsed days: %w", err)
	}
	return elapsed, nil
}

// LogProgress records a progress note for one day of a goal.
func (s *Store) LogProgress(ctx context.Context, goalID int64, day int, note string) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO logs (goal_id, day_number, note) VALUES (?, ?, ?)`,
		goalID, day, note,
	); err != nil {
		return fmt.Errorf("failed to log progress: %w", err)
	}
	return nil
}

// FetchGoalsByFrequency returns all goals subscribed to the given email
// update frequency, across users, for digest delivery.
func (s *Store) FetchGoalsByFrequency(ctx context.Context, frequency string) ([]GoalRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.goal_id, g.title, g.category, g.description, g.deadline, g.days,
		       g.milestones, g.email_updates, g.created_at,
		       CAST(julianday('now') - julianday(g.created_at) AS INTEGER) AS elapsed_days,
		       COUNT(DISTINCT l.day_number) AS completed_days,
		       g.user_id
		FROM goals g
		LEFT JOIN logs l ON g.goal_id = l.goal_id
		WHERE g.email_updates = ?
		GROUP BY g.goal_id
		ORDER BY g.user_id, g.goal_id`,
		frequency)
	if err != nil {
		return nil, fmt.Errorf("failed to query goals by frequency: %w", err)
	}
	defer rows.Close()

	var goals []GoalRecord
	for rows.Next() {
		var rec GoalRecord
		var milestonesJSON string
		var createdAt string
		if err := rows.Scan(
			&rec.ID, &rec.Title, &rec.Category, &rec.Description, &rec.Deadline,
			&rec.Days, &milestonesJSON, &rec.EmailUpdates, &createdAt,
			&rec.ElapsedDays, &rec.CompletedDays, &rec.UserID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		rec.CreatedAt = parseTimestamp(createdAt)
		if err := json.Unmarshal([]byte(milestonesJSON), &rec.Milestones); err != nil {
			rec.Milestones = nil
		}
		goals = append(goals, rec)
	}
	return goals, rows.Err()
}

// scanGoal decodes one row from the per-user goal query.
func scanGoal(rows *sql.Rows) (GoalRecord, error) {
	var rec GoalRecord
	var milestonesJSON string
	var createdAt string
	if err := rows.Scan(
		&rec.ID, &rec.Title, &rec.Category, &rec.Description, &rec.Deadline,
		&rec.Days, &milestonesJSON, &rec.EmailUpdates, &createdAt,
		&rec.ElapsedDays, &rec.CompletedDays,
	); err != nil {
		return rec, fmt.Errorf("failed to scan goal: %w", err)
	}
	rec.CreatedAt = parseTimestamp(createdAt)
	if err := json.Unmarshal([]byte(milestonesJSON), &rec.Milestones); err != nil {
		rec.Milestones = nil
	}
	return rec, nil
}

// parseTimestamp handles the formats SQLite emits for CURRENT_TIMESTAMP.
func parseTimestamp(raw string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339, "2006-01-02T15:04:05Z"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
