// Package engine drives the task lifecycle state machine, including deferred
// completion timers and restart recovery.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/banuni/haxor-mk2/internal/chat/domain"
	"github.com/banuni/haxor-mk2/internal/chat/protocol"
	apperrors "github.com/banuni/haxor-mk2/internal/errors"
	"github.com/banuni/haxor-mk2/internal/platform/timeouts"
	"github.com/banuni/haxor-mk2/internal/storage"
	tasksdomain "github.com/banuni/haxor-mk2/internal/tasks/domain"
)

// Broadcaster fans out task events to every connected participant.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine clock.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithBroadcaster wires event fan-out.
func WithBroadcaster(broadcaster Broadcaster) Option {
	return func(e *Engine) { e.broadcaster = broadcaster }
}

// WithMessageStore wires the chat feed for system milestone messages.
func WithMessageStore(messages storage.MessageStore) Option {
	return func(e *Engine) { e.messages = messages }
}

// WithRoll overrides the success roll (returns 0-99) for deterministic tests.
func WithRoll(roll func() int) Option {
	return func(e *Engine) { e.roll = roll }
}

// Engine owns task lifecycle transitions. Direct API calls and deferred
// completion callbacks all go through the guarded store transition, so a
// manual resolve and an automatic completion converge instead of racing.
type Engine struct {
	store       storage.TaskStore
	messages    storage.MessageStore
	broadcaster Broadcaster
	sched       *Scheduler
	clock       func() time.Time
	roll        func() int
}

// New creates a task engine over the given store.
func New(store storage.TaskStore, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		clock: time.Now,
		roll:  func() int { return rand.Intn(100) },
	}
	for _, opt := range opts {
		opt(e)
	}
	e.sched = NewScheduler(e.clock, e.completeDue)
	return e
}

// Start recovers in-flight timers and launches the scheduler.
//
// Every task still in-progress is reloaded: if its deadline is in the future
// a deferred completion is scheduled for the remainder, otherwise the task is
// completed immediately as if the timer had fired while the process was down.
func (e *Engine) Start(ctx context.Context) error {
	running, err := e.store.ListTasksByStatus(ctx, tasksdomain.StatusInProgress)
	if err != nil {
		return fmt.Errorf("list running tasks: %w", err)
	}

	now := e.clock()
	recovered := 0
	for _, task := range running {
		deadline, ok := task.Deadline()
		if !ok || !deadline.After(now) {
			e.completeDue(task.ID)
			continue
		}
		e.sched.Schedule(task.ID, deadline)
		recovered++
	}
	if len(running) > 0 {
		log.Printf("task engine: restored %d running tasks (%d rescheduled)", len(running), recovered)
	}

	e.sched.Start()
	return nil
}

// Close stops the scheduler.
func (e *Engine) Close() {
	e.sched.Stop()
}

// Create registers a new task in the analyzing state.
func (e *Engine) Create(ctx context.Context, input tasksdomain.CreateTaskInput) (tasksdomain.Task, error) {
	task, err := tasksdomain.NewTask(input, e.clock, nil)
	if err != nil {
		return tasksdomain.Task{}, err
	}
	if err := e.store.CreateTask(ctx, task); err != nil {
		return tasksdomain.Task{}, err
	}
	e.emit(ctx, protocol.EventTaskCreated, task, tasksdomain.AnalysisStartedMessage(task))
	return task, nil
}

// ResolveAnalysis computes the estimate for an analyzing task and moves it to
// pending.
func (e *Engine) ResolveAnalysis(ctx context.Context, id string, input tasksdomain.AnalysisInput) (tasksdomain.Task, error) {
	current, err := e.store.GetTask(ctx, id)
	if err != nil {
		return tasksdomain.Task{}, notFoundOr(err, id)
	}

	input.TargetName = current.TargetName
	input.AlgorithmName = current.AlgorithmName
	seconds, probability, err := tasksdomain.Estimate(input)
	if err != nil {
		return tasksdomain.Task{}, err
	}

	updated, applied, err := e.store.TransitionTask(ctx, id, tasksdomain.StatusAnalyzing, func(task tasksdomain.Task) (tasksdomain.Task, error) {
		return task.ResolveAnalysis(seconds, probability)
	})
	if err != nil {
		return tasksdomain.Task{}, notFoundOr(err, id)
	}
	if !applied {
		return tasksdomain.Task{}, invalidTransition(updated.Status, "resolve analysis for")
	}
	e.emit(ctx, protocol.EventTaskUpdated, updated, tasksdomain.AnalysisResultMessage(updated))
	return updated, nil
}

// StartTask moves a pending task to in-progress and schedules its deferred
// completion.
func (e *Engine) StartTask(ctx context.Context, id string) (tasksdomain.Task, error) {
	updated, applied, err := e.store.TransitionTask(ctx, id, tasksdomain.StatusPending, func(task tasksdomain.Task) (tasksdomain.Task, error) {
		return task.Start(e.clock)
	})
	if err != nil {
		return tasksdomain.Task{}, notFoundOr(err, id)
	}
	if !applied {
		return tasksdomain.Task{}, invalidTransition(updated.Status, "start")
	}

	if deadline, ok := updated.Deadline(); ok {
		e.sched.Schedule(updated.ID, deadline)
	}
	e.emit(ctx, protocol.EventTaskUpdated, updated, tasksdomain.HackStartedMessage(updated))
	return updated, nil
}

// Abort cancels a task that has not finished and clears any pending deferred
// completion. Clearing a timer that has already fired is a no-op.
func (e *Engine) Abort(ctx context.Context, id string) (tasksdomain.Task, error) {
	current, err := e.store.GetTask(ctx, id)
	if err != nil {
		return tasksdomain.Task{}, notFoundOr(err, id)
	}

	updated, applied, err := e.store.TransitionTask(ctx, id, current.Status, func(task tasksdomain.Task) (tasksdomain.Task, error) {
		return task.Abort()
	})
	if err != nil {
		return tasksdomain.Task{}, notFoundOr(err, id)
	}
	if !applied {
		// The status moved between the read and the guard; surface it as a
		// transition failure against the fresh status.
		return tasksdomain.Task{}, invalidTransition(updated.Status, "abort")
	}

	e.sched.Cancel(id)
	e.emit(ctx, protocol.EventTaskCancelled, updated, "")
	return updated, nil
}

// Resolve manually finishes an in-progress task with the given outcome,
// superseding its deferred completion.
func (e *Engine) Resolve(ctx context.Context, id string, outcome tasksdomain.TaskStatus) (tasksdomain.Task, error) {
	updated, applied, err := e.store.TransitionTask(ctx, id, tasksdomain.StatusInProgress, func(task tasksdomain.Task) (tasksdomain.Task, error) {
		return task.Resolve(outcome)
	})
	if err != nil {
		return tasksdomain.Task{}, notFoundOr(err, id)
	}
	if !applied {
		return tasksdomain.Task{}, invalidTransition(updated.Status, "resolve")
	}

	e.sched.Cancel(id)
	e.emit(ctx, protocol.EventTaskCompleted, updated, tasksdomain.HackResultMessage(updated))
	return updated, nil
}

// Archive hides a task from the default listing. Re-archiving is a no-op
// that returns the original archive timestamp.
//
// The store stamps archived_at as its only write, so a completion or abort
// landing at the same moment keeps its status.
func (e *Engine) Archive(ctx context.Context, id string) (tasksdomain.Task, error) {
	updated, applied, err := e.store.ArchiveTask(ctx, id, e.clock())
	if err != nil {
		return tasksdomain.Task{}, notFoundOr(err, id)
	}
	if !applied {
		return updated, nil
	}
	e.emit(ctx, protocol.EventTaskUpdated, updated, "")
	return updated, nil
}

// Get loads one task.
func (e *Engine) Get(ctx context.Context, id string) (tasksdomain.Task, error) {
	task, err := e.store.GetTask(ctx, id)
	if err != nil {
		return tasksdomain.Task{}, notFoundOr(err, id)
	}
	return task, nil
}

// List returns tasks ordered by creation time under the given filter.
func (e *Engine) List(ctx context.Context, filter storage.TaskFilter) ([]tasksdomain.Task, error) {
	return e.store.ListTasks(ctx, filter)
}

// completeDue is the deferred-completion callback. It resolves the task by
// drawing against its success probability. The guarded transition makes the
// callback a benign no-op when the task already left in-progress.
func (e *Engine) completeDue(taskID string) {
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.Store)
	defer cancel()

	updated, applied, err := e.store.TransitionTask(ctx, taskID, tasksdomain.StatusInProgress, func(task tasksdomain.Task) (tasksdomain.Task, error) {
		outcome := tasksdomain.StatusFail
		if e.roll() < task.Probability {
			outcome = tasksdomain.StatusSuccess
		}
		return task.Resolve(outcome)
	})
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("task engine: complete %s: %v", taskID, err)
		}
		return
	}
	if !applied {
		return
	}
	e.emit(ctx, protocol.EventTaskCompleted, updated, tasksdomain.HackResultMessage(updated))
}

// emit persists an optional system chat message before broadcasting, so a
// client reconnecting right after the event re-reads consistent state.
func (e *Engine) emit(ctx context.Context, event string, task tasksdomain.Task, systemMessage string) {
	if systemMessage != "" && e.messages != nil {
		msg, err := e.messages.AppendMessage(ctx, "system", string(domain.RoleSystem), systemMessage)
		if err != nil {
			log.Printf("task engine: append system message: %v", err)
		} else if e.broadcaster != nil {
			e.broadcaster.Broadcast(protocol.EventNewMessage, msg)
		}
	}
	if e.broadcaster != nil {
		e.broadcaster.Broadcast(event, task)
	}
}

func notFoundOr(err error, id string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.WithMetadata(apperrors.CodeNotFound,
			fmt.Sprintf("task %q not found", id),
			map[string]string{"task_id": id})
	}
	return err
}

func invalidTransition(from tasksdomain.TaskStatus, op string) error {
	return apperrors.WithMetadata(apperrors.CodeInvalidTransition,
		fmt.Sprintf("cannot %s task in status %q", op, from),
		map[string]string{"status": string(from), "operation": op})
}
