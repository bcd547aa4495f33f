package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusInProgress indicates the task is being worked on.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusCancelled indicates the task was cancelled before completion.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted,
		TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is a final state.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// rank orders statuses along the forward-only transition path.
func (s TaskStatus) rank() int {
	switch s {
	case TaskStatusPending:
		return 0
	case TaskStatusInProgress:
		return 1
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return 2
	default:
		return -1
	}
}

// CanTransitionTo reports whether moving from s to next is a forward
// transition. Backward moves require an explicit reset.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	if s.Terminal() {
		return false
	}
	return next.rank() > s.rank()
}

// TaskPriority indicates how urgent a task is.
type TaskPriority string

const (
	// PriorityLow is for background work with no deadline pressure.
	PriorityLow TaskPriority = "low"
	// PriorityMedium is the default priority.
	PriorityMedium TaskPriority = "medium"
	// PriorityHigh is for work that should preempt medium and low tasks.
	PriorityHigh TaskPriority = "high"
	// PriorityCritical is for work that blocks everything else.
	PriorityCritical TaskPriority = "critical"
)

// Valid returns true if the priority is a known value.
func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	default:
		return false
	}
}

// Weight returns a numeric ordering for priorities, higher is more urgent.
func (p TaskPriority) Weight() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityCritical:
		return 4
	default:
		return 0
	}
}

// DependencyKind distinguishes gating edges from advisory ones.
type DependencyKind string

const (
	// DependencyHard gates executability: the dependency must be completed first.
	DependencyHard DependencyKind = "hard"
	// DependencySoft is advisory ordering only and never blocks execution.
	DependencySoft DependencyKind = "soft"
)

// Valid returns true if the kind is a known value.
func (k DependencyKind) Valid() bool {
	return k == DependencyHard || k == DependencySoft
}

// Task represents a unit of work in the system.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id" yaml:"id" validate:"required"`
	// Title is the short description of the task.
	Title string `json:"title" yaml:"title" validate:"required"`
	// Description provides detailed information about the task.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status" yaml:"status"`
	// AssignedAgent is the ID of the agent working on this task, if any.
	AssignedAgent string `json:"assigned_agent,omitempty" yaml:"assigned_agent,omitempty"`
	// Priority indicates scheduling urgency.
	Priority TaskPriority `json:"priority" yaml:"priority"`
	// EstimatedDuration is the planned effort for this task.
	EstimatedDuration time.Duration `json:"estimated_duration,omitempty" yaml:"estimated_duration,omitempty"`
	// ActualDuration is the measured effort, set on completion.
	ActualDuration time.Duration `json:"actual_duration,omitempty" yaml:"actual_duration,omitempty"`
	// RequiredResources lists the named resources this task must hold to run.
	RequiredResources []string `json:"required_resources,omitempty" yaml:"required_resources,omitempty"`
	// CreatedAt is when the task was registered.
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	// StartedAt is when the task moved to in_progress, if it has.
	StartedAt *time.Time `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	// CompletedAt is when the task reached a terminal state, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	cp := *t
	if t.RequiredResources != nil {
		cp.RequiredResources = append([]string(nil), t.RequiredResources...)
	}
	if t.StartedAt != nil {
		started := *t.StartedAt
		cp.StartedAt = &started
	}
	if t.CompletedAt != nil {
		completed := *t.CompletedAt
		cp.CompletedAt = &completed
	}
	return &cp
}

// DependencyEdge records that TaskID depends on DependsOn.
type DependencyEdge struct {
	// TaskID is the dependent task.
	TaskID string `json:"task_id" yaml:"task_id"`
	// DependsOn is the task that must come first.
	DependsOn string `json:"depends_on" yaml:"depends_on"`
	// Kind is hard (gating) or soft (advisory).
	Kind DependencyKind `json:"kind" yaml:"kind"`
}
