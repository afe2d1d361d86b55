// Package storage defines the persistence contracts consumed by the session
// gateway and the task lifecycle engine.
package storage

import (
	"context"
	"errors"
	"time"

	chatdomain "github.com/banuni/haxor-mk2/internal/chat/domain"
	tasksdomain "github.com/banuni/haxor-mk2/internal/tasks/domain"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// MessageStore persists chat messages. Messages are soft-deleted only: a bulk
// clear stamps cleared_at and hides them from Recent.
type MessageStore interface {
	AppendMessage(ctx context.Context, fromName, fromRole, content string) (chatdomain.ChatMessage, error)
	// RecentMessages returns up to limit uncleared messages ordered oldest
	// to newest (newest-last).
	RecentMessages(ctx context.Context, limit int) ([]chatdomain.ChatMessage, error)
	SoftClearAll(ctx context.Context) error
}

// TaskFilter controls which tasks ListTasks returns. The default listing
// excludes aborted and archived tasks.
type TaskFilter struct {
	IncludeAborted  bool
	IncludeArchived bool
}

// TaskStore persists hacking tasks.
type TaskStore interface {
	CreateTask(ctx context.Context, task tasksdomain.Task) error
	GetTask(ctx context.Context, id string) (tasksdomain.Task, error)
	// UpdateTask overwrites the stored task. Returns ErrNotFound when absent.
	UpdateTask(ctx context.Context, task tasksdomain.Task) error
	// TransitionTask applies apply to the stored task only when its status
	// matches expected, atomically. When the guard does not match it returns
	// the current row and applied=false with no error, so racing completions
	// converge idempotently.
	TransitionTask(ctx context.Context, id string, expected tasksdomain.TaskStatus, apply func(tasksdomain.Task) (tasksdomain.Task, error)) (task tasksdomain.Task, applied bool, err error)
	// ArchiveTask stamps archived_at when it is still unset, touching no
	// other column. It returns the fresh row and whether this call archived
	// it; re-archiving returns applied=false with the original timestamp.
	ArchiveTask(ctx context.Context, id string, archivedAt time.Time) (task tasksdomain.Task, applied bool, err error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]tasksdomain.Task, error)
	// ListTasksByStatus returns non-archived tasks in the given status,
	// oldest first. Used for restart recovery of running tasks.
	ListTasksByStatus(ctx context.Context, status tasksdomain.TaskStatus) ([]tasksdomain.Task, error)
}
