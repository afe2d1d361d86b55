// Package domain models hacking tasks and their lifecycle.
//
// A task starts in the analyzing state, receives an estimate and success
// probability when analysis resolves, and then runs against a deadline once
// started. Archival is orthogonal to status: an archived task keeps its final
// status but is hidden from default listings.
package domain

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/banuni/haxor-mk2/internal/errors"
	"github.com/banuni/haxor-mk2/internal/platform/id"
)

// TaskStatus is the closed task status enum.
type TaskStatus string

const (
	StatusAnalyzing  TaskStatus = "analyzing"
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in-progress"
	StatusSuccess    TaskStatus = "success"
	StatusFail       TaskStatus = "fail"
	StatusAborted    TaskStatus = "aborted"
)

// TaskType is the hacking objective.
type TaskType string

const (
	TypeDisable TaskType = "disable"
	TypeScan    TaskType = "scan"
	TypeExtract TaskType = "extract"
	TypeDestroy TaskType = "destroy"
)

// ParseTaskType validates a task type string.
func ParseTaskType(value string) (TaskType, error) {
	switch TaskType(strings.TrimSpace(value)) {
	case TypeDisable:
		return TypeDisable, nil
	case TypeScan:
		return TypeScan, nil
	case TypeExtract:
		return TypeExtract, nil
	case TypeDestroy:
		return TypeDestroy, nil
	default:
		return "", apperrors.WithMetadata(apperrors.CodeTaskTypeInvalid,
			fmt.Sprintf("unknown task type %q", value),
			map[string]string{"task_type": value})
	}
}

// Task is a hacking task moving through the lifecycle state machine.
//
// StartedAt is set if and only if the task has reached in-progress at least
// once. EstimatedSeconds and Probability are set only once analysis resolves.
type Task struct {
	ID               string     `json:"id"`
	Goal             string     `json:"goal"`
	TargetName       string     `json:"target_name"`
	AlgorithmName    string     `json:"algorithm_name"`
	Type             TaskType   `json:"task_type"`
	Status           TaskStatus `json:"status"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	EstimatedSeconds int        `json:"estimated_seconds_to_complete,omitempty"`
	Probability      int        `json:"probability,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	ArchivedAt       *time.Time `json:"archived_at,omitempty"`
}

// Archived reports whether the task is hidden from default listings.
func (t Task) Archived() bool {
	return t.ArchivedAt != nil
}

// Terminal reports whether the status admits no further lifecycle transition.
func (t Task) Terminal() bool {
	switch t.Status {
	case StatusSuccess, StatusFail, StatusAborted:
		return true
	default:
		return false
	}
}

// CreateTaskInput carries the fields needed to create a task.
type CreateTaskInput struct {
	Goal          string
	TargetName    string
	AlgorithmName string
	Type          TaskType
}

// NewTask creates a task in the analyzing state with a generated ID.
func NewTask(input CreateTaskInput, now func() time.Time, idGenerator func() (string, error)) (Task, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	targetName := strings.TrimSpace(input.TargetName)
	if targetName == "" {
		return Task{}, apperrors.New(apperrors.CodeTaskTargetEmpty, "target name is required")
	}
	if _, ok := algorithmBase[strings.ToLower(strings.TrimSpace(input.AlgorithmName))]; !ok {
		return Task{}, apperrors.WithMetadata(apperrors.CodeTaskAlgorithmUnknown,
			fmt.Sprintf("unknown algorithm %q", input.AlgorithmName),
			map[string]string{"algorithm": input.AlgorithmName})
	}
	taskType, err := ParseTaskType(string(input.Type))
	if err != nil {
		return Task{}, err
	}

	taskID, err := idGenerator()
	if err != nil {
		return Task{}, fmt.Errorf("generate task id: %w", err)
	}

	return Task{
		ID:            taskID,
		Goal:          strings.TrimSpace(input.Goal),
		TargetName:    targetName,
		AlgorithmName: strings.ToLower(strings.TrimSpace(input.AlgorithmName)),
		Type:          taskType,
		Status:        StatusAnalyzing,
		CreatedAt:     now().UTC(),
	}, nil
}

func invalidTransition(from TaskStatus, op string) error {
	return apperrors.WithMetadata(apperrors.CodeInvalidTransition,
		fmt.Sprintf("cannot %s task in status %q", op, from),
		map[string]string{"status": string(from), "operation": op})
}

// ResolveAnalysis moves analyzing -> pending and records the estimate.
func (t Task) ResolveAnalysis(estimatedSeconds, probability int) (Task, error) {
	if t.Status != StatusAnalyzing {
		return t, invalidTransition(t.Status, "resolve analysis for")
	}
	if estimatedSeconds <= 0 {
		return t, apperrors.New(apperrors.CodeTaskEstimateInvalid, "estimated seconds must be positive")
	}
	if probability < 0 || probability > 100 {
		return t, apperrors.New(apperrors.CodeTaskEstimateInvalid, "probability must be within 0-100")
	}
	t.Status = StatusPending
	t.EstimatedSeconds = estimatedSeconds
	t.Probability = probability
	return t, nil
}

// Start moves pending -> in-progress and stamps StartedAt. Any other prior
// status is an invalid transition.
func (t Task) Start(now func() time.Time) (Task, error) {
	if now == nil {
		now = time.Now
	}
	if t.Status != StatusPending {
		return t, invalidTransition(t.Status, "start")
	}
	startedAt := now().UTC()
	t.Status = StatusInProgress
	t.StartedAt = &startedAt
	return t, nil
}

// Resolve moves in-progress -> success|fail.
func (t Task) Resolve(outcome TaskStatus) (Task, error) {
	if outcome != StatusSuccess && outcome != StatusFail {
		return t, apperrors.WithMetadata(apperrors.CodeTaskOutcomeInvalid,
			fmt.Sprintf("outcome must be success or fail, got %q", outcome),
			map[string]string{"outcome": string(outcome)})
	}
	if t.Status != StatusInProgress {
		return t, invalidTransition(t.Status, "resolve")
	}
	t.Status = outcome
	return t, nil
}

// Abort cancels a task that has not finished. Valid from analyzing, pending,
// and in-progress.
func (t Task) Abort() (Task, error) {
	switch t.Status {
	case StatusAnalyzing, StatusPending, StatusInProgress:
		t.Status = StatusAborted
		return t, nil
	default:
		return t, invalidTransition(t.Status, "abort")
	}
}

// Archive hides the task from default listings without changing its status.
// Re-archiving is a no-op that keeps the original timestamp.
func (t Task) Archive(now func() time.Time) Task {
	if t.ArchivedAt != nil {
		return t
	}
	if now == nil {
		now = time.Now
	}
	archivedAt := now().UTC()
	t.ArchivedAt = &archivedAt
	return t
}

// Deadline returns the moment a running task is due to complete. The second
// return is false when the task has no schedule (not started or no estimate).
func (t Task) Deadline() (time.Time, bool) {
	if t.Status != StatusInProgress || t.EstimatedSeconds <= 0 {
		return time.Time{}, false
	}
	anchor := t.CreatedAt
	if t.StartedAt != nil {
		anchor = *t.StartedAt
	}
	return anchor.Add(time.Duration(t.EstimatedSeconds) * time.Second), true
}
