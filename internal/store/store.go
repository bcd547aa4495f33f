// Package store persists tasks, dependencies, and agent history. The
// engine works without a store (memory-only mode); persistence failures
// degrade gracefully and never corrupt in-memory state.
package store

import (
	"context"

	"github.com/squadronhq/squadron/pkg/models"
)

// Store is the persistence collaborator consumed by the engine.
type Store interface {
	// InitializeSchema creates tables if they do not exist.
	InitializeSchema(ctx context.Context) error
	// SaveTask upserts a task and returns the affected row count.
	SaveTask(ctx context.Context, task *models.Task) (int64, error)
	// GetTask loads a task by id.
	GetTask(ctx context.Context, id string) (*models.Task, error)
	// SaveDependency upserts a dependency edge and returns the affected
	// row count.
	SaveDependency(ctx context.Context, taskID, dependsOn string, kind models.DependencyKind) (int64, error)
	// ExecutableTasks returns persisted pending tasks whose hard
	// dependencies are all completed.
	ExecutableTasks(ctx context.Context) ([]*models.Task, error)
	// ListTasks returns every persisted task ordered by creation time.
	ListTasks(ctx context.Context) ([]*models.Task, error)
	// ListDependencies returns every persisted dependency edge.
	ListDependencies(ctx context.Context) ([]models.DependencyEdge, error)
	// SaveAgentHistory appends an agent-state snapshot and returns the
	// affected row count.
	SaveAgentHistory(ctx context.Context, state *models.AgentState) (int64, error)
	// ProgressSummary derives a summary from the persisted tasks and the
	// latest agent snapshots.
	ProgressSummary(ctx context.Context) (*models.ProgressSummary, error)
	// Close releases the underlying connection.
	Close() error
}
