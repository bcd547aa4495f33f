// Package graph owns the task records and their dependency edges. It is the
// source of truth for which tasks can run now.
package graph

import (
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/squadronhq/squadron/internal/logging"
	"github.com/squadronhq/squadron/pkg/errs"
	"github.com/squadronhq/squadron/pkg/models"
)

// ChangeKind identifies what mutated in the graph.
type ChangeKind string

const (
	// ChangeTaskAdded fires when a task is registered.
	ChangeTaskAdded ChangeKind = "task_added"
	// ChangeTaskUpdated fires when a task's status changes.
	ChangeTaskUpdated ChangeKind = "task_updated"
	// ChangeTaskCompleted fires when a task completes.
	ChangeTaskCompleted ChangeKind = "task_completed"
	// ChangeDependencyAdded fires when an edge is inserted.
	ChangeDependencyAdded ChangeKind = "dependency_added"
	// ChangeDependencyRemoved fires when an edge is removed.
	ChangeDependencyRemoved ChangeKind = "dependency_removed"
	// ChangeGraphReset fires when the whole graph is cleared.
	ChangeGraphReset ChangeKind = "graph_reset"
)

// Change is the notification emitted after each successful mutation.
type Change struct {
	// Kind is what happened.
	Kind ChangeKind
	// TaskID is the affected task, empty for graph-wide changes.
	TaskID string
	// Timestamp is when the mutation committed.
	Timestamp time.Time
}

// changeBuffer is the notification channel depth. Sends never block;
// overflow drops the oldest-style semantics are not needed here because
// subscribers drain continuously.
const changeBuffer = 256

// BlockedTask pairs a pending task with the hard dependencies holding it back.
type BlockedTask struct {
	// Task is the blocked task.
	Task *models.Task
	// UnmetBlockers are ids of hard dependencies not yet completed.
	UnmetBlockers []string
}

// Stats is a derived snapshot of graph composition.
type Stats struct {
	// TotalTasks is the number of registered tasks.
	TotalTasks int
	// ByStatus counts tasks per status.
	ByStatus map[models.TaskStatus]int
	// ExecutableTasks counts tasks runnable right now.
	ExecutableTasks int
	// BlockedTasks counts pending tasks with unmet hard dependencies.
	BlockedTasks int
	// Edges is the total number of dependency edges.
	Edges int
	// TotalEstimated sums estimated durations of non-terminal tasks.
	TotalEstimated time.Duration
}

// TaskGraph is a concurrency-safe directed acyclic graph of tasks.
// The hard-edge subgraph is acyclic at all times; insertions that would
// create a cycle are rejected atomically.
type TaskGraph struct {
	mu sync.RWMutex
	// tasks maps task ID to the task record.
	tasks map[string]*models.Task
	// deps maps task ID to its outgoing dependency edges, in insertion order.
	deps map[string][]models.DependencyEdge
	// dependents maps task ID to ids of tasks that depend on it.
	dependents map[string][]string
	// pathMemo caches longest-path lengths; nil means invalidated.
	pathMemo map[string]time.Duration
	// pathChoice remembers the maximizing dependency per task for
	// critical-path reconstruction.
	pathChoice map[string]string

	changes  chan Change
	validate *validator.Validate
	log      *logging.Logger
	clock    func() time.Time
}

// New creates an empty task graph.
func New(log *logging.Logger) *TaskGraph {
	if log == nil {
		log = logging.Nop()
	}
	return &TaskGraph{
		tasks:      make(map[string]*models.Task),
		deps:       make(map[string][]models.DependencyEdge),
		dependents: make(map[string][]string),
		changes:    make(chan Change, changeBuffer),
		validate:   validator.New(),
		log:        log,
		clock:      time.Now,
	}
}

// SetClock overrides the time source. Used by tests.
func (g *TaskGraph) SetClock(clock func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if clock != nil {
		g.clock = clock
	}
}

// Changes returns the task-changed notification stream.
func (g *TaskGraph) Changes() <-chan Change {
	return g.changes
}

// AddTask registers a new task. The id must be unique and non-empty.
// Status defaults to pending and priority to medium when unset.
func (g *TaskGraph) AddTask(task *models.Task) error {
	const op = "graph.AddTask"

	if task == nil {
		return errs.E(errs.KindInvalidInput, op, "task is nil")
	}
	if err := g.validate.Struct(task); err != nil {
		return errs.WrapMsg(errs.KindInvalidInput, op, err, "task %q failed validation", task.ID)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.tasks[task.ID]; exists {
		return errs.E(errs.KindInvalidInput, op, "task %q already exists", task.ID)
	}

	stored := task.Clone()
	if stored.Status == "" {
		stored.Status = models.TaskStatusPending
	}
	if !stored.Status.Valid() {
		return errs.E(errs.KindInvalidInput, op, "unknown status %q", stored.Status)
	}
	if stored.Priority == "" {
		stored.Priority = models.PriorityMedium
	}
	if !stored.Priority.Valid() {
		return errs.E(errs.KindInvalidInput, op, "unknown priority %q", stored.Priority)
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = g.clock()
	}

	g.tasks[stored.ID] = stored
	g.invalidateMemoLocked()
	g.log.Debugf("graph", "added task %s (%s)", stored.ID, stored.Title)
	g.notifyLocked(ChangeTaskAdded, stored.ID)
	return nil
}

// GetTask returns a copy of the task with the given id.
func (g *TaskGraph) GetTask(id string) (*models.Task, error) {
	const op = "graph.GetTask"

	g.mu.RLock()
	defer g.mu.RUnlock()

	task, ok := g.tasks[id]
	if !ok {
		return nil, errs.E(errs.KindNotFound, op, "task %q not found", id)
	}
	return task.Clone(), nil
}

// AllTasks returns copies of every task, ordered by id for determinism.
func (g *TaskGraph) AllTasks() []*models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*models.Task, 0, len(g.tasks))
	for _, task := range g.tasks {
		out = append(out, task.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Dependencies returns the outgoing dependency edges of a task.
func (g *TaskGraph) Dependencies(taskID string) ([]models.DependencyEdge, error) {
	const op = "graph.Dependencies"

	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.tasks[taskID]; !ok {
		return nil, errs.E(errs.KindNotFound, op, "task %q not found", taskID)
	}
	return append([]models.DependencyEdge(nil), g.deps[taskID]...), nil
}

// Dependents returns ids of tasks that depend on the given task.
func (g *TaskGraph) Dependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.dependents[taskID]...)
}

// AddDependency inserts the edge "taskID depends on dependsOn". Hard edges
// that would close a cycle are rejected atomically with the offending cycle
// reported; the graph is left unchanged.
func (g *TaskGraph) AddDependency(taskID, dependsOn string, kind models.DependencyKind) error {
	const op = "graph.AddDependency"

	if taskID == "" || dependsOn == "" {
		return errs.E(errs.KindInvalidInput, op, "task ids must be non-empty")
	}
	if taskID == dependsOn {
		return errs.E(errs.KindInvalidInput, op, "task %q cannot depend on itself", taskID)
	}
	if !kind.Valid() {
		return errs.E(errs.KindInvalidInput, op, "unknown dependency kind %q", kind)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.tasks[taskID]; !ok {
		return errs.E(errs.KindNotFound, op, "task %q not found", taskID)
	}
	if _, ok := g.tasks[dependsOn]; !ok {
		return errs.E(errs.KindNotFound, op, "task %q not found", dependsOn)
	}
	for _, edge := range g.deps[taskID] {
		if edge.DependsOn == dependsOn {
			return errs.E(errs.KindInvalidInput, op, "dependency %s -> %s already exists", taskID, dependsOn)
		}
	}

	if kind == models.DependencyHard {
		// A path from dependsOn back to taskID over hard edges means the
		// new edge would close a cycle.
		if path := g.findHardPathLocked(dependsOn, taskID); path != nil {
			cycle := append([]string{taskID}, path...)
			cycle = append(cycle, taskID)
			cerr := &CycleError{Cycle: cycle}
			g.log.Warnf("graph", "rejected edge %s -> %s: %v", taskID, dependsOn, cerr)
			return errs.Wrap(errs.KindCircularDependency, op, cerr)
		}
	}

	g.deps[taskID] = append(g.deps[taskID], models.DependencyEdge{
		TaskID:    taskID,
		DependsOn: dependsOn,
		Kind:      kind,
	})
	g.dependents[dependsOn] = append(g.dependents[dependsOn], taskID)
	g.invalidateMemoLocked()
	g.notifyLocked(ChangeDependencyAdded, taskID)
	return nil
}

// RemoveDependency deletes the edge "taskID depends on dependsOn".
func (g *TaskGraph) RemoveDependency(taskID, dependsOn string) error {
	const op = "graph.RemoveDependency"

	g.mu.Lock()
	defer g.mu.Unlock()

	edges := g.deps[taskID]
	idx := -1
	for i, edge := range edges {
		if edge.DependsOn == dependsOn {
			idx = i
			break
		}
	}
	if idx < 0 {
		return errs.E(errs.KindNotFound, op, "no dependency %s -> %s", taskID, dependsOn)
	}

	g.deps[taskID] = append(edges[:idx], edges[idx+1:]...)
	revs := g.dependents[dependsOn]
	for i, id := range revs {
		if id == taskID {
			g.dependents[dependsOn] = append(revs[:i], revs[i+1:]...)
			break
		}
	}
	g.invalidateMemoLocked()
	g.notifyLocked(ChangeDependencyRemoved, taskID)
	return nil
}

// ExecutableTasks returns copies of every task that can run now: status
// pending with all hard dependencies completed. Results are ordered by
// priority weight (descending), then id.
func (g *TaskGraph) ExecutableTasks() []*models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []*models.Task
	for _, task := range g.tasks {
		if g.executableLocked(task) {
			out = append(out, task.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		wi, wj := out[i].Priority.Weight(), out[j].Priority.Weight()
		if wi != wj {
			return wi > wj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// BlockedTasks returns pending tasks that cannot run, each with the list of
// hard dependencies still unmet.
func (g *TaskGraph) BlockedTasks() []BlockedTask {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []BlockedTask
	for _, task := range g.tasks {
		if task.Status != models.TaskStatusPending {
			continue
		}
		unmet := g.unmetBlockersLocked(task.ID)
		if len(unmet) > 0 {
			out = append(out, BlockedTask{Task: task.Clone(), UnmetBlockers: unmet})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Task.ID < out[j].Task.ID })
	return out
}

// CompleteTask marks a task completed and returns the tasks that became
// executable as a result.
func (g *TaskGraph) CompleteTask(id string) ([]*models.Task, error) {
	const op = "graph.CompleteTask"

	g.mu.Lock()
	defer g.mu.Unlock()

	task, ok := g.tasks[id]
	if !ok {
		return nil, errs.E(errs.KindNotFound, op, "task %q not found", id)
	}
	if task.Status.Terminal() {
		return nil, errs.E(errs.KindInvalidInput, op, "task %q already in terminal status %s", id, task.Status)
	}

	now := g.clock()
	task.Status = models.TaskStatusCompleted
	task.CompletedAt = &now
	if task.StartedAt != nil {
		task.ActualDuration = now.Sub(*task.StartedAt)
	}
	g.invalidateMemoLocked()

	// A hard dependent could not have been executable before this
	// completion, so every hard dependent that is executable now was newly
	// unblocked. Soft dependents are advisory and never gated on this task.
	var unblocked []*models.Task
	for _, depID := range g.dependents[id] {
		dep := g.tasks[depID]
		if dep == nil || !g.hardEdgeLocked(depID, id) {
			continue
		}
		if g.executableLocked(dep) {
			unblocked = append(unblocked, dep.Clone())
		}
	}
	sort.Slice(unblocked, func(i, j int) bool { return unblocked[i].ID < unblocked[j].ID })

	g.log.Infof("graph", "task %s completed, %d newly executable", id, len(unblocked))
	g.notifyLocked(ChangeTaskCompleted, id)
	return unblocked, nil
}

// UpdateStatus applies a forward status transition. Backward moves are
// rejected; use ResetTask for an explicit reset.
func (g *TaskGraph) UpdateStatus(id string, status models.TaskStatus) error {
	const op = "graph.UpdateStatus"

	if !status.Valid() {
		return errs.E(errs.KindInvalidInput, op, "unknown status %q", status)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	task, ok := g.tasks[id]
	if !ok {
		return errs.E(errs.KindNotFound, op, "task %q not found", id)
	}
	if !task.Status.CanTransitionTo(status) {
		return errs.E(errs.KindInvalidInput, op,
			"illegal transition %s -> %s for task %q", task.Status, status, id)
	}
	if task.Status == status {
		return nil
	}

	now := g.clock()
	task.Status = status
	switch status {
	case models.TaskStatusInProgress:
		if task.StartedAt == nil {
			task.StartedAt = &now
		}
	case models.TaskStatusCompleted, models.TaskStatusFailed, models.TaskStatusCancelled:
		task.CompletedAt = &now
		if task.StartedAt != nil {
			task.ActualDuration = now.Sub(*task.StartedAt)
		}
	}
	g.invalidateMemoLocked()
	g.notifyLocked(ChangeTaskUpdated, id)
	return nil
}

// ResetTask is the explicit escape from the forward-only transition rule:
// it returns a task to pending and clears execution timestamps.
func (g *TaskGraph) ResetTask(id string) error {
	const op = "graph.ResetTask"

	g.mu.Lock()
	defer g.mu.Unlock()

	task, ok := g.tasks[id]
	if !ok {
		return errs.E(errs.KindNotFound, op, "task %q not found", id)
	}

	task.Status = models.TaskStatusPending
	task.StartedAt = nil
	task.CompletedAt = nil
	task.ActualDuration = 0
	task.AssignedAgent = ""
	g.invalidateMemoLocked()
	g.notifyLocked(ChangeTaskUpdated, id)
	return nil
}

// AssignAgent records which agent a task is handed to.
func (g *TaskGraph) AssignAgent(taskID, agentID string) error {
	const op = "graph.AssignAgent"

	g.mu.Lock()
	defer g.mu.Unlock()

	task, ok := g.tasks[taskID]
	if !ok {
		return errs.E(errs.KindNotFound, op, "task %q not found", taskID)
	}
	task.AssignedAgent = agentID
	g.notifyLocked(ChangeTaskUpdated, taskID)
	return nil
}

// Stats computes a composition snapshot of the graph.
func (g *TaskGraph) Stats() Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	stats := Stats{
		TotalTasks: len(g.tasks),
		ByStatus:   make(map[models.TaskStatus]int),
	}
	for _, task := range g.tasks {
		stats.ByStatus[task.Status]++
		if !task.Status.Terminal() {
			stats.TotalEstimated += task.EstimatedDuration
		}
		if g.executableLocked(task) {
			stats.ExecutableTasks++
		}
		if task.Status == models.TaskStatusPending && len(g.unmetBlockersLocked(task.ID)) > 0 {
			stats.BlockedTasks++
		}
	}
	for _, edges := range g.deps {
		stats.Edges += len(edges)
	}
	return stats
}

// Reset clears all tasks and edges.
func (g *TaskGraph) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.tasks = make(map[string]*models.Task)
	g.deps = make(map[string][]models.DependencyEdge)
	g.dependents = make(map[string][]string)
	g.invalidateMemoLocked()
	g.log.Infof("graph", "graph reset")
	g.notifyLocked(ChangeGraphReset, "")
}

// RequiredResources returns the resource names a task needs. Used by the
// coordinator to re-fetch fresh requirements when retrying queued requests.
func (g *TaskGraph) RequiredResources(taskID string) ([]string, error) {
	const op = "graph.RequiredResources"

	g.mu.RLock()
	defer g.mu.RUnlock()

	task, ok := g.tasks[taskID]
	if !ok {
		return nil, errs.E(errs.KindNotFound, op, "task %q not found", taskID)
	}
	return append([]string(nil), task.RequiredResources...), nil
}

// executableLocked implements the executability rule. Caller holds the lock.
func (g *TaskGraph) executableLocked(task *models.Task) bool {
	if task.Status != models.TaskStatusPending {
		return false
	}
	for _, edge := range g.deps[task.ID] {
		if edge.Kind != models.DependencyHard {
			continue
		}
		dep, ok := g.tasks[edge.DependsOn]
		if !ok || dep.Status != models.TaskStatusCompleted {
			return false
		}
	}
	return true
}

// unmetBlockersLocked lists incomplete hard dependencies of a task.
// hardEdgeLocked reports whether taskID has a hard dependency on dependsOn.
func (g *TaskGraph) hardEdgeLocked(taskID, dependsOn string) bool {
	for _, edge := range g.deps[taskID] {
		if edge.DependsOn == dependsOn {
			return edge.Kind == models.DependencyHard
		}
	}
	return false
}

func (g *TaskGraph) unmetBlockersLocked(taskID string) []string {
	var unmet []string
	for _, edge := range g.deps[taskID] {
		if edge.Kind != models.DependencyHard {
			continue
		}
		dep, ok := g.tasks[edge.DependsOn]
		if !ok || dep.Status != models.TaskStatusCompleted {
			unmet = append(unmet, edge.DependsOn)
		}
	}
	return unmet
}

func (g *TaskGraph) invalidateMemoLocked() {
	g.pathMemo = nil
	g.pathChoice = nil
}

// notifyLocked emits a change notification without blocking the mutation.
func (g *TaskGraph) notifyLocked(kind ChangeKind, taskID string) {
	change := Change{Kind: kind, TaskID: taskID, Timestamp: g.clock()}
	select {
	case g.changes <- change:
	default:
		g.log.Warnf("graph", "change channel full, dropped %s for %s", kind, taskID)
	}
}
