// Package storage provides the sqlite-backed task repository used when
// tasks must survive process restarts.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/louistrue/openBIM-service/internal/task"
)

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Open opens the sqlite database and ensures the schema exists. sqlite
// serializes writers, so a single open connection is enough for the
// small worker pool.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(taskSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize task schema: %w", err)
	}
	return db, nil
}

const taskSchema = `
CREATE TABLE IF NOT EXISTS tasks (
	id              TEXT PRIMARY KEY,
	status          TEXT NOT NULL,
	progress        INTEGER NOT NULL DEFAULT 0,
	callback_url    TEXT NOT NULL,
	callback_token  TEXT NOT NULL,
	result          BLOB,
	error_message   TEXT NOT NULL DEFAULT '',
	delivery_failed INTEGER NOT NULL DEFAULT 0,
	created_at      TIMESTAMP NOT NULL,
	updated_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_status_updated ON tasks (status, updated_at);
`

// TaskRepository implements task.Store over sqlite.
type TaskRepository struct {
	db DB
}

// NewTaskRepository creates a new task repository.
func NewTaskRepository(db DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create persists a new task.
func (r *TaskRepository) Create(ctx context.Context, t *task.Task) error {
	query := `
		INSERT INTO tasks (id, status, progress, callback_url, callback_token,
			result, error_message, delivery_failed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		t.ID.String(), string(t.Status), t.Progress,
		t.CallbackConfig.URL, t.CallbackConfig.Token,
		[]byte(t.Result), t.ErrorMessage, t.DeliveryFailed,
		t.CreatedAt, t.UpdatedAt,
	)
	return err
}

// Get retrieves a task by id.
func (r *TaskRepository) Get(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	query := `
		SELECT id, status, progress, callback_url, callback_token,
			result, error_message, delivery_failed, created_at, updated_at
		FROM tasks WHERE id = $1
	`
	var (
		t        task.Task
		idStr    string
		status   string
		result   []byte
		failed   int
	)
	err := r.db.QueryRowContext(ctx, query, id.String()).Scan(
		&idStr, &status, &t.Progress,
		&t.CallbackConfig.URL, &t.CallbackConfig.Token,
		&result, &t.ErrorMessage, &failed,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, task.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	t.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse task id: %w", err)
	}
	t.Status = task.Status(status)
	if len(result) > 0 {
		t.Result = json.RawMessage(result)
	}
	t.DeliveryFailed = failed != 0
	return &t, nil
}

// Transition applies a state machine edge. The status guard runs in the
// UPDATE itself so concurrent writers cannot race a terminal task back
// to life.
func (r *TaskRepository) Transition(ctx context.Context, id uuid.UUID, to task.Status, result json.RawMessage, errMsg string) error {
	var from []any
	switch to {
	case task.StatusProcessing:
		from = []any{string(task.StatusPending)}
	case task.StatusCompleted:
		from = []any{string(task.StatusProcessing)}
	case task.StatusError:
		from = []any{string(task.StatusPending), string(task.StatusProcessing)}
	default:
		return fmt.Errorf("%w: -> %s", task.ErrInvalidTransition, to)
	}

	query := `
		UPDATE tasks
		SET status = $1, result = $2, error_message = $3, updated_at = $4,
			progress = CASE WHEN $1 = 'completed' THEN 100 ELSE progress END
		WHERE id = $5 AND status IN (` + placeholders(6, len(from)) + `)
	`
	args := append([]any{string(to), []byte(result), errMsg, time.Now().UTC(), id.String()}, from...)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, gerr := r.Get(ctx, id); gerr != nil {
			return gerr
		}
		return fmt.Errorf("%w: -> %s", task.ErrInvalidTransition, to)
	}
	return nil
}

// SetProgress records monotonically non-decreasing progress.
func (r *TaskRepository) SetProgress(ctx context.Context, id uuid.UUID, percent int) error {
	if percent > 100 {
		percent = 100
	}
	query := `
		UPDATE tasks SET progress = $1, updated_at = $2
		WHERE id = $3 AND status = 'processing' AND progress < $1
	`
	_, err := r.db.ExecContext(ctx, query, percent, time.Now().UTC(), id.String())
	return err
}

// MarkDeliveryFailed flags exhausted callback delivery.
func (r *TaskRepository) MarkDeliveryFailed(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE tasks SET delivery_failed = 1, updated_at = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id.String())
	return err
}

// DeleteTerminalBefore evicts terminal tasks past the retention window.
func (r *TaskRepository) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	query := `
		DELETE FROM tasks
		WHERE status IN ('completed', 'error') AND updated_at < $1
	`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	return int(affected), err
}

// placeholders renders $n,$n+1,... for IN clauses.
func placeholders(start, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("$%d", start+i)
	}
	return out
}
