package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/banuni/haxor-mk2/internal/storage"
	tasksdomain "github.com/banuni/haxor-mk2/internal/tasks/domain"
)

const taskColumns = `id, goal, target_name, algorithm_name, task_type, status,
started_at, estimated_seconds_to_complete, probability, created_at, archived_at`

// CreateTask persists a new task row.
func (s *Store) CreateTask(ctx context.Context, task tasksdomain.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(task.ID) == "" {
		return fmt.Errorf("task id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO tasks (`+taskColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		task.ID,
		task.Goal,
		task.TargetName,
		task.AlgorithmName,
		string(task.Type),
		string(task.Status),
		nullableMillis(task.StartedAt),
		task.EstimatedSeconds,
		task.Probability,
		task.CreatedAt.UTC().UnixMilli(),
		nullableMillis(task.ArchivedAt),
	)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// GetTask loads one task by id.
func (s *Store) GetTask(ctx context.Context, id string) (tasksdomain.Task, error) {
	if err := ctx.Err(); err != nil {
		return tasksdomain.Task{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tasksdomain.Task{}, storage.ErrNotFound
		}
		return tasksdomain.Task{}, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// UpdateTask overwrites the stored row for task.ID.
func (s *Store) UpdateTask(ctx context.Context, task tasksdomain.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE tasks SET
	goal = ?,
	target_name = ?,
	algorithm_name = ?,
	task_type = ?,
	status = ?,
	started_at = ?,
	estimated_seconds_to_complete = ?,
	probability = ?,
	archived_at = ?
WHERE id = ?
`,
		task.Goal,
		task.TargetName,
		task.AlgorithmName,
		string(task.Type),
		string(task.Status),
		nullableMillis(task.StartedAt),
		task.EstimatedSeconds,
		task.Probability,
		nullableMillis(task.ArchivedAt),
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update task rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// TransitionTask atomically applies a guarded status transition. When the
// stored status does not match expected, the current row is returned with
// applied=false and no error.
func (s *Store) TransitionTask(ctx context.Context, id string, expected tasksdomain.TaskStatus, apply func(tasksdomain.Task) (tasksdomain.Task, error)) (tasksdomain.Task, bool, error) {
	if err := ctx.Err(); err != nil {
		return tasksdomain.Task{}, false, err
	}
	if apply == nil {
		return tasksdomain.Task{}, false, fmt.Errorf("apply function is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return tasksdomain.Task{}, false, fmt.Errorf("begin transition: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	current, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tasksdomain.Task{}, false, storage.ErrNotFound
		}
		return tasksdomain.Task{}, false, fmt.Errorf("load task for transition: %w", err)
	}

	if current.Status != expected {
		return current, false, nil
	}

	updated, err := apply(current)
	if err != nil {
		return current, false, err
	}

	_, err = tx.ExecContext(ctx, `
UPDATE tasks SET
	status = ?,
	started_at = ?,
	estimated_seconds_to_complete = ?,
	probability = ?,
	archived_at = ?
WHERE id = ? AND status = ?
`,
		string(updated.Status),
		nullableMillis(updated.StartedAt),
		updated.EstimatedSeconds,
		updated.Probability,
		nullableMillis(updated.ArchivedAt),
		id,
		string(expected),
	)
	if err != nil {
		return tasksdomain.Task{}, false, fmt.Errorf("apply transition: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return tasksdomain.Task{}, false, fmt.Errorf("commit transition: %w", err)
	}
	return updated, true, nil
}

// ArchiveTask stamps archived_at in a single guarded UPDATE, so a status
// change landing at the same moment is never overwritten. Re-archiving is a
// no-op that returns the row with its original timestamp.
func (s *Store) ArchiveTask(ctx context.Context, id string, archivedAt time.Time) (tasksdomain.Task, bool, error) {
	if err := ctx.Err(); err != nil {
		return tasksdomain.Task{}, false, err
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE tasks SET archived_at = ? WHERE id = ? AND archived_at IS NULL
`, archivedAt.UTC().UnixMilli(), id)
	if err != nil {
		return tasksdomain.Task{}, false, fmt.Errorf("archive task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return tasksdomain.Task{}, false, fmt.Errorf("archive task rows affected: %w", err)
	}

	task, err := s.GetTask(ctx, id)
	if err != nil {
		return tasksdomain.Task{}, false, err
	}
	return task, affected > 0, nil
}

// ListTasks returns tasks oldest first, excluding aborted and archived tasks
// unless the filter includes them.
func (s *Store) ListTasks(ctx context.Context, filter storage.TaskFilter) ([]tasksdomain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	var args []any
	if !filter.IncludeArchived {
		query += ` AND archived_at IS NULL`
	}
	if !filter.IncludeAborted {
		query += ` AND status != ?`
		args = append(args, string(tasksdomain.StatusAborted))
	}
	query += ` ORDER BY created_at ASC, rowid ASC`

	return s.queryTasks(ctx, query, args...)
}

// ListTasksByStatus returns non-archived tasks in the given status, oldest
// first.
func (s *Store) ListTasksByStatus(ctx context.Context, status tasksdomain.TaskStatus) ([]tasksdomain.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.queryTasks(ctx, `
SELECT `+taskColumns+` FROM tasks
WHERE status = ? AND archived_at IS NULL
ORDER BY created_at ASC, rowid ASC
`, string(status))
}

func (s *Store) queryTasks(ctx context.Context, query string, args ...any) ([]tasksdomain.Task, error) {
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []tasksdomain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (tasksdomain.Task, error) {
	var task tasksdomain.Task
	var taskType, status string
	var startedAt, archivedAt sql.NullInt64
	var createdAt int64
	if err := row.Scan(
		&task.ID,
		&task.Goal,
		&task.TargetName,
		&task.AlgorithmName,
		&taskType,
		&status,
		&startedAt,
		&task.EstimatedSeconds,
		&task.Probability,
		&createdAt,
		&archivedAt,
	); err != nil {
		return tasksdomain.Task{}, err
	}
	task.Type = tasksdomain.TaskType(taskType)
	task.Status = tasksdomain.TaskStatus(status)
	task.StartedAt = millisToTime(startedAt)
	task.CreatedAt = millisUTC(createdAt)
	task.ArchivedAt = millisToTime(archivedAt)
	return task, nil
}
