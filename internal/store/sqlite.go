package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/squadronhq/squadron/internal/logging"
	"github.com/squadronhq/squadron/pkg/errs"
	"github.com/squadronhq/squadron/pkg/models"
)

// SQLite is the Store implementation backed by an SQLite database.
type SQLite struct {
	conn *sql.DB
	path string
	log  *logging.Logger
}

// Open opens an SQLite store at the given path, creating parent
// directories as needed. Pass ":memory:" for an in-memory store. WAL mode
// is enabled for concurrent reads.
func Open(path string, log *logging.Logger) (*SQLite, error) {
	const op = "store.Open"

	if log == nil {
		log = logging.Nop()
	}
	if path == "" {
		return nil, errs.E(errs.KindInvalidInput, op, "path must be non-empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errs.Wrap(errs.KindSystemError, op, err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errs.Wrap(errs.KindSystemError, op, err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, errs.Wrap(errs.KindSystemError, op, err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, errs.Wrap(errs.KindSystemError, op, err)
	}

	return &SQLite{conn: conn, path: path, log: log}, nil
}

// InitializeSchema creates the tables if they do not exist.
func (s *SQLite) InitializeSchema(ctx context.Context) error {
	const op = "store.InitializeSchema"

	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		assigned_agent TEXT NOT NULL DEFAULT '',
		priority TEXT NOT NULL,
		estimated_ns INTEGER NOT NULL DEFAULT 0,
		actual_ns INTEGER NOT NULL DEFAULT 0,
		resources TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL DEFAULT 0,
		started_at INTEGER NOT NULL DEFAULT 0,
		completed_at INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS dependencies (
		task_id TEXT NOT NULL,
		depends_on TEXT NOT NULL,
		kind TEXT NOT NULL,
		PRIMARY KEY (task_id, depends_on)
	);
	CREATE TABLE IF NOT EXISTS agent_history (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id TEXT NOT NULL,
		status TEXT NOT NULL,
		progress REAL NOT NULL DEFAULT 0,
		current_task TEXT NOT NULL DEFAULT '',
		recorded_at INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_deps_task ON dependencies(task_id);
	CREATE INDEX IF NOT EXISTS idx_history_agent ON agent_history(agent_id);`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return errs.Wrap(errs.KindSystemError, op, err)
	}
	return nil
}

// SaveTask upserts a task row.
func (s *SQLite) SaveTask(ctx context.Context, task *models.Task) (int64, error) {
	const op = "store.SaveTask"

	if task == nil || task.ID == "" {
		return 0, errs.E(errs.KindInvalidInput, op, "task with id required")
	}

	result, err := s.conn.ExecContext(ctx, `
		INSERT INTO tasks (id, title, description, status, assigned_agent, priority,
			estimated_ns, actual_ns, resources, created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title=excluded.title, description=excluded.description,
			status=excluded.status, assigned_agent=excluded.assigned_agent,
			priority=excluded.priority, estimated_ns=excluded.estimated_ns,
			actual_ns=excluded.actual_ns, resources=excluded.resources,
			started_at=excluded.started_at, completed_at=excluded.completed_at`,
		task.ID, task.Title, task.Description, string(task.Status), task.AssignedAgent,
		string(task.Priority), int64(task.EstimatedDuration), int64(task.ActualDuration),
		strings.Join(task.RequiredResources, ","),
		timeToNanos(task.CreatedAt), ptrToNanos(task.StartedAt), ptrToNanos(task.CompletedAt))
	if err != nil {
		return 0, errs.Wrap(errs.KindSystemError, op, err)
	}
	return result.RowsAffected()
}

// GetTask loads one task row.
func (s *SQLite) GetTask(ctx context.Context, id string) (*models.Task, error) {
	const op = "store.GetTask"

	row := s.conn.QueryRowContext(ctx, `
		SELECT id, title, description, status, assigned_agent, priority,
			estimated_ns, actual_ns, resources, created_at, started_at, completed_at
		FROM tasks WHERE id = ?`, id)

	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.E(errs.KindNotFound, op, "task %q not found", id)
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindSystemError, op, err)
	}
	return task, nil
}

// SaveDependency upserts a dependency edge.
func (s *SQLite) SaveDependency(ctx context.Context, taskID, dependsOn string, kind models.DependencyKind) (int64, error) {
	const op = "store.SaveDependency"

	if taskID == "" || dependsOn == "" {
		return 0, errs.E(errs.KindInvalidInput, op, "task ids must be non-empty")
	}

	result, err := s.conn.ExecContext(ctx, `
		INSERT INTO dependencies (task_id, depends_on, kind) VALUES (?, ?, ?)
		ON CONFLICT(task_id, depends_on) DO UPDATE SET kind=excluded.kind`,
		taskID, dependsOn, string(kind))
	if err != nil {
		return 0, errs.Wrap(errs.KindSystemError, op, err)
	}
	return result.RowsAffected()
}

// ExecutableTasks returns pending tasks with no unmet hard dependency. A
// hard dependency on a task missing from the store counts as unmet.
func (s *SQLite) ExecutableTasks(ctx context.Context) ([]*models.Task, error) {
	const op = "store.ExecutableTasks"

	rows, err := s.conn.QueryContext(ctx, `
		SELECT t.id, t.title, t.description, t.status, t.assigned_agent, t.priority,
			t.estimated_ns, t.actual_ns, t.resources, t.created_at, t.started_at, t.completed_at
		FROM tasks t
		WHERE t.status = 'pending' AND NOT EXISTS (
			SELECT 1 FROM dependencies d
			LEFT JOIN tasks dep ON dep.id = d.depends_on
			WHERE d.task_id = t.id AND d.kind = 'hard'
				AND (dep.id IS NULL OR dep.status != 'completed'))
		ORDER BY t.id`)
	if err != nil {
		return nil, errs.Wrap(errs.KindSystemError, op, err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, errs.Wrap(errs.KindSystemError, op, err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.KindSystemError, op, err)
	}
	return tasks, nil
}

// ListTasks returns every task row, oldest first.
func (s *SQLite) ListTasks(ctx context.Context) ([]*models.Task, error) {
	const op = "store.ListTasks"

	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, title, description, status, assigned_agent, priority,
			estimated_ns, actual_ns, resources, created_at, started_at, completed_at
		FROM tasks ORDER BY created_at, id`)
	if err != nil {
		return nil, errs.Wrap(errs.KindSystemError, op, err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, errs.Wrap(errs.KindSystemError, op, err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.KindSystemError, op, err)
	}
	return tasks, nil
}

// ListDependencies returns every dependency edge.
func (s *SQLite) ListDependencies(ctx context.Context) ([]models.DependencyEdge, error) {
	const op = "store.ListDependencies"

	rows, err := s.conn.QueryContext(ctx, `
		SELECT task_id, depends_on, kind FROM dependencies ORDER BY task_id, depends_on`)
	if err != nil {
		return nil, errs.Wrap(errs.KindSystemError, op, err)
	}
	defer rows.Close()

	var edges []models.DependencyEdge
	for rows.Next() {
		var edge models.DependencyEdge
		var kind string
		if err := rows.Scan(&edge.TaskID, &edge.DependsOn, &kind); err != nil {
			return nil, errs.Wrap(errs.KindSystemError, op, err)
		}
		edge.Kind = models.DependencyKind(kind)
		edges = append(edges, edge)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.KindSystemError, op, err)
	}
	return edges, nil
}

// SaveAgentHistory appends an agent-state snapshot.
func (s *SQLite) SaveAgentHistory(ctx context.Context, state *models.AgentState) (int64, error) {
	const op = "store.SaveAgentHistory"

	if state == nil || state.ID == "" {
		return 0, errs.E(errs.KindInvalidInput, op, "agent state with id required")
	}

	result, err := s.conn.ExecContext(ctx, `
		INSERT INTO agent_history (agent_id, status, progress, current_task, recorded_at)
		VALUES (?, ?, ?, ?, ?)`,
		state.ID, string(state.Status), state.Progress, state.CurrentTask,
		timeToNanos(state.LastUpdate))
	if err != nil {
		return 0, errs.Wrap(errs.KindSystemError, op, err)
	}
	return result.RowsAffected()
}

// ProgressSummary derives a summary from the persisted rows. Active agents
// are counted from each agent's latest history snapshot.
func (s *SQLite) ProgressSummary(ctx context.Context) (*models.ProgressSummary, error) {
	const op = "store.ProgressSummary"

	summary := &models.ProgressSummary{UpdatedAt: time.Now()}

	var remaining int64
	err := s.conn.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COUNT(CASE WHEN status = 'completed' THEN 1 END),
			COUNT(CASE WHEN status = 'in_progress' THEN 1 END),
			COALESCE(SUM(CASE WHEN status NOT IN ('completed','failed','cancelled') THEN estimated_ns ELSE 0 END), 0)
		FROM tasks`).Scan(&summary.TotalTasks, &summary.CompletedTasks,
		&summary.InProgressTasks, &remaining)
	if err != nil {
		return nil, errs.Wrap(errs.KindSystemError, op, err)
	}
	summary.EstimatedRemaining = time.Duration(remaining)

	err = s.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM tasks t
		WHERE t.status = 'pending' AND EXISTS (
			SELECT 1 FROM dependencies d
			LEFT JOIN tasks dep ON dep.id = d.depends_on
			WHERE d.task_id = t.id AND d.kind = 'hard'
				AND (dep.id IS NULL OR dep.status != 'completed'))`).Scan(&summary.BlockedTasks)
	if err != nil {
		return nil, errs.Wrap(errs.KindSystemError, op, err)
	}

	err = s.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (
			SELECT agent_id, status FROM agent_history ah
			WHERE seq = (SELECT MAX(seq) FROM agent_history WHERE agent_id = ah.agent_id))
		WHERE status IN ('working','blocked')`).Scan(&summary.ActiveAgents)
	if err != nil {
		return nil, errs.Wrap(errs.KindSystemError, op, err)
	}

	if summary.TotalTasks > 0 {
		summary.CompletionPercent = float64(summary.CompletedTasks) / float64(summary.TotalTasks) * 100
	}
	return summary, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var task models.Task
	var status, priority, resources string
	var estimated, actual, created, started, completed int64

	err := row.Scan(&task.ID, &task.Title, &task.Description, &status,
		&task.AssignedAgent, &priority, &estimated, &actual, &resources,
		&created, &started, &completed)
	if err != nil {
		return nil, err
	}

	task.Status = models.TaskStatus(status)
	task.Priority = models.TaskPriority(priority)
	task.EstimatedDuration = time.Duration(estimated)
	task.ActualDuration = time.Duration(actual)
	if resources != "" {
		task.RequiredResources = strings.Split(resources, ",")
	}
	task.CreatedAt = nanosToTime(created)
	task.StartedAt = nanosToPtr(started)
	task.CompletedAt = nanosToPtr(completed)
	return &task, nil
}

func timeToNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func ptrToNanos(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return timeToNanos(*t)
}

func nanosToTime(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func nanosToPtr(n int64) *time.Time {
	if n == 0 {
		return nil
	}
	t := nanosToTime(n)
	return &t
}
