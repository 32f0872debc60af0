package tasks

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// ErrTaskNotFound is returned for lookups of unknown task ids.
var ErrTaskNotFound = errors.New("tasks: task not found")

// ListTasksOptions filters ListTasks.
type ListTasksOptions struct {
	IncludeDisabled bool
	DueBefore       *time.Time
	Limit           int
}

// Store persists scheduled tasks and their execution history. All
// writes are transactional.
type Store interface {
	CreateTask(ctx context.Context, task *ScheduledTask) error
	GetTask(ctx context.Context, id string) (*ScheduledTask, error)
	UpdateTask(ctx context.Context, task *ScheduledTask) error
	DeleteTask(ctx context.Context, id string) error
	ListTasks(ctx context.Context, opts ListTasksOptions) ([]*ScheduledTask, error)

	// DueTasks returns active tasks with next_run_at <= now, ordered by
	// priority descending then next_run_at ascending.
	DueTasks(ctx context.Context, now time.Time) ([]*ScheduledTask, error)

	CreateExecution(ctx context.Context, exec *TaskExecution) error
	FinishExecution(ctx context.Context, id string, status ExecutionStatus, result string, finishedAt time.Time) error
	ListExecutions(ctx context.Context, taskID string, limit int) ([]*TaskExecution, error)
}

const taskSchema = `
CREATE TABLE IF NOT EXISTS scheduled_tasks (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	agent_id      TEXT NOT NULL DEFAULT '',
	schedule      TEXT NOT NULL,
	timezone      TEXT NOT NULL DEFAULT '',
	prompt        TEXT NOT NULL,
	priority      INTEGER NOT NULL DEFAULT 0,
	config        TEXT NOT NULL DEFAULT '{}',
	status        TEXT NOT NULL DEFAULT 'active',
	max_retries   INTEGER NOT NULL DEFAULT 0,
	last_run_at   TIMESTAMP,
	next_run_at   TIMESTAMP NOT NULL,
	run_count     INTEGER NOT NULL DEFAULT 0,
	failure_count INTEGER NOT NULL DEFAULT 0,
	metadata      TEXT NOT NULL DEFAULT '{}',
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_due ON scheduled_tasks(status, next_run_at);

CREATE TABLE IF NOT EXISTS task_executions (
	id          TEXT PRIMARY KEY,
	task_id     TEXT NOT NULL,
	status      TEXT NOT NULL,
	result      TEXT NOT NULL DEFAULT '',
	attempt     INTEGER NOT NULL DEFAULT 1,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_executions_task ON task_executions(task_id, started_at);
`

// SQLStore is the relational Store. It shares the session store's
// database handle, so the whole persistence layout lives in one file or
// cluster as the external-interface contract describes.
type SQLStore struct {
	db       *sql.DB
	postgres bool
}

// NewSQLStore migrates the schema idempotently and wraps db.
func NewSQLStore(db *sql.DB, postgres bool) (*SQLStore, error) {
	if _, err := db.Exec(taskSchema); err != nil {
		return nil, err
	}
	return &SQLStore{db: db, postgres: postgres}, nil
}

func (s *SQLStore) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits [8]byte
	i := len(digits)
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits[i:])
}

func (s *SQLStore) CreateTask(ctx context.Context, task *ScheduledTask) error {
	config, err := json.Marshal(task.Config)
	if err != nil {
		return err
	}
	metadata, err := json.Marshal(task.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO scheduled_tasks (id, name, description, agent_id, schedule, timezone, prompt, priority, config, status, max_retries, last_run_at, next_run_at, run_count, failure_count, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		task.ID, task.Name, task.Description, task.AgentID, task.Schedule, task.Timezone, task.Prompt,
		task.Priority, string(config), string(task.Status), task.MaxRetries, task.LastRunAt, task.NextRunAt,
		task.RunCount, task.FailureCount, string(metadata), task.CreatedAt, task.UpdatedAt)
	return err
}

const taskColumns = `id, name, description, agent_id, schedule, timezone, prompt, priority, config, status, max_retries, last_run_at, next_run_at, run_count, failure_count, metadata, created_at, updated_at`

type rowScanner interface{ Scan(dest ...any) error }

func scanTask(row rowScanner) (*ScheduledTask, error) {
	var task ScheduledTask
	var config, status, metadata string
	var lastRun sql.NullTime
	err := row.Scan(&task.ID, &task.Name, &task.Description, &task.AgentID, &task.Schedule, &task.Timezone,
		&task.Prompt, &task.Priority, &config, &status, &task.MaxRetries, &lastRun, &task.NextRunAt,
		&task.RunCount, &task.FailureCount, &metadata, &task.CreatedAt, &task.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	task.Status = TaskStatus(status)
	if lastRun.Valid {
		task.LastRunAt = &lastRun.Time
	}
	_ = json.Unmarshal([]byte(config), &task.Config)
	_ = json.Unmarshal([]byte(metadata), &task.Metadata)
	return &task, nil
}

func (s *SQLStore) GetTask(ctx context.Context, id string) (*ScheduledTask, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+taskColumns+` FROM scheduled_tasks WHERE id = ?`), id)
	return scanTask(row)
}

func (s *SQLStore) UpdateTask(ctx context.Context, task *ScheduledTask) error {
	config, err := json.Marshal(task.Config)
	if err != nil {
		return err
	}
	metadata, err := json.Marshal(task.Metadata)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE scheduled_tasks SET name = ?, description = ?, agent_id = ?, schedule = ?, timezone = ?, prompt = ?,
			priority = ?, config = ?, status = ?, max_retries = ?, last_run_at = ?, next_run_at = ?,
			run_count = ?, failure_count = ?, metadata = ?, updated_at = ?
		WHERE id = ?`),
		task.Name, task.Description, task.AgentID, task.Schedule, task.Timezone, task.Prompt,
		task.Priority, string(config), string(task.Status), task.MaxRetries, task.LastRunAt, task.NextRunAt,
		task.RunCount, task.FailureCount, string(metadata), task.UpdatedAt, task.ID)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (s *SQLStore) DeleteTask(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM task_executions WHERE task_id = ?`), id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM scheduled_tasks WHERE id = ?`), id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) ListTasks(ctx context.Context, opts ListTasksOptions) ([]*ScheduledTask, error) {
	query := `SELECT ` + taskColumns + ` FROM scheduled_tasks`
	var clauses []string
	var args []any
	if !opts.IncludeDisabled {
		clauses = append(clauses, `status = ?`)
		args = append(args, string(TaskStatusActive))
	}
	if opts.DueBefore != nil {
		clauses = append(clauses, `next_run_at <= ?`)
		args = append(args, *opts.DueBefore)
	}
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, ` AND `)
	}
	query += ` ORDER BY priority DESC, next_run_at ASC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ScheduledTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

func (s *SQLStore) DueTasks(ctx context.Context, now time.Time) ([]*ScheduledTask, error) {
	return s.ListTasks(ctx, ListTasksOptions{DueBefore: &now})
}

func (s *SQLStore) CreateExecution(ctx context.Context, exec *TaskExecution) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO task_executions (id, task_id, status, result, attempt, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		exec.ID, exec.TaskID, string(exec.Status), exec.Result, exec.Attempt, exec.StartedAt, exec.FinishedAt)
	return err
}

func (s *SQLStore) FinishExecution(ctx context.Context, id string, status ExecutionStatus, result string, finishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE task_executions SET status = ?, result = ?, finished_at = ? WHERE id = ?`),
		string(status), result, finishedAt, id)
	return err
}

func (s *SQLStore) ListExecutions(ctx context.Context, taskID string, limit int) ([]*TaskExecution, error) {
	query := `SELECT id, task_id, status, result, attempt, started_at, finished_at
		FROM task_executions WHERE task_id = ? ORDER BY started_at DESC`
	args := []any{taskID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*TaskExecution
	for rows.Next() {
		var exec TaskExecution
		var status string
		var finished sql.NullTime
		if err := rows.Scan(&exec.ID, &exec.TaskID, &status, &exec.Result, &exec.Attempt, &exec.StartedAt, &finished); err != nil {
			return nil, err
		}
		exec.Status = ExecutionStatus(status)
		if finished.Valid {
			exec.FinishedAt = &finished.Time
		}
		out = append(out, &exec)
	}
	return out, rows.Err()
}
