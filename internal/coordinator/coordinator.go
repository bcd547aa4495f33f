// Package coordinator performs admission control for task execution. It owns
// the resource-lock table, the queue of conflicting requests, and the
// wait-for-graph deadlock detector. Locks are exclusive: a resource has at
// most one holder at a time.
package coordinator

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/squadronhq/squadron/internal/logging"
	"github.com/squadronhq/squadron/internal/ring"
	"github.com/squadronhq/squadron/pkg/errs"
)

// ResourceSource answers what resources a task actually requires. Queued
// requests are re-resolved through it on retry so stale queue data never
// drives an acquisition.
type ResourceSource interface {
	RequiredResources(taskID string) ([]string, error)
}

// EventKind tags coordinator notifications.
type EventKind string

const (
	EventTaskStarted      EventKind = "task_started"
	EventTaskCompleted    EventKind = "task_completed"
	EventConflictQueued   EventKind = "conflict_queued"
	EventDeadlockDetected EventKind = "deadlock_detected"
	EventSyncReached      EventKind = "synchronization_reached"
)

// Event is a coordinator notification.
type Event struct {
	Kind      EventKind
	AgentID   string
	TaskID    string
	Resources []string
	Agents    []string
	Timestamp time.Time
}

const eventBuffer = 256

// HeldResource names a requested resource and the agent holding it.
type HeldResource struct {
	Resource string
	Holder   string
}

// ConflictError reports every requested resource that was already held.
type ConflictError struct {
	Held []HeldResource
}

func (e *ConflictError) Error() string {
	parts := make([]string, len(e.Held))
	for i, h := range e.Held {
		parts[i] = fmt.Sprintf("%s held by %s", h.Resource, h.Holder)
	}
	return "resources in use: " + strings.Join(parts, ", ")
}

// LockInfo describes a held resource lock.
type LockInfo struct {
	Holder     string
	AcquiredAt time.Time
}

// Operation is an admitted task execution.
type Operation struct {
	ID        string
	AgentID   string
	TaskID    string
	Resources []string
	StartedAt time.Time
}

// ExecutionRecord is the history entry written when an operation completes.
type ExecutionRecord struct {
	OpID        string
	AgentID     string
	TaskID      string
	Resources   []string
	StartedAt   time.Time
	CompletedAt time.Time
}

type queuedRequest struct {
	AgentID   string
	TaskID    string
	Resources []string
	QueuedAt  time.Time
}

// Coordinator serializes resource acquisition across agents.
type Coordinator struct {
	mu       sync.RWMutex
	locks    map[string]LockInfo
	queue    []*queuedRequest
	ops      map[string]*Operation
	barriers map[string]*barrier
	history  *ring.Log[ExecutionRecord]

	source ResourceSource
	events chan Event
	log    *logging.Logger
	clock  func() time.Time
}

// New creates a coordinator. source may be nil; queued requests then retry
// with the resources they were queued with. historyCap bounds the execution
// history ring.
func New(source ResourceSource, historyCap int, log *logging.Logger) *Coordinator {
	if log == nil {
		log = logging.Nop()
	}
	if historyCap <= 0 {
		historyCap = 256
	}
	return &Coordinator{
		locks:    make(map[string]LockInfo),
		ops:      make(map[string]*Operation),
		barriers: make(map[string]*barrier),
		history:  ring.New[ExecutionRecord](historyCap),
		source:   source,
		events:   make(chan Event, eventBuffer),
		log:      log,
		clock:    time.Now,
	}
}

// SetClock overrides the time source. Used by tests.
func (c *Coordinator) SetClock(clock func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if clock != nil {
		c.clock = clock
	}
}

// Events returns the coordinator notification stream.
func (c *Coordinator) Events() <-chan Event {
	return c.events
}

// RequestTaskExecution admits an agent to run a task holding the named
// resources. Deadlock detection runs first: a requester already caught in a
// wait cycle is refused outright. If any resource is held the request is
// queued and a conflict error naming every held resource is returned. When
// all resources are free they are locked atomically and an operation record
// is created.
func (c *Coordinator) RequestTaskExecution(agentID, taskID string, resources []string) error {
	const op = "coordinator.RequestTaskExecution"

	if agentID == "" || taskID == "" {
		return errs.E(errs.KindInvalidInput, op, "agent and task ids must be non-empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if cycle := c.waitCycleLocked(agentID); len(cycle) > 0 {
		c.log.Errorf("coordinator", "refusing %s/%s: deadlock cycle %v", agentID, taskID, cycle)
		c.emitLocked(Event{Kind: EventDeadlockDetected, AgentID: agentID, TaskID: taskID, Agents: cycle, Timestamp: c.clock()})
		return errs.Wrap(errs.KindDeadlockDetected, op, &DeadlockError{Agents: cycle})
	}

	var held []HeldResource
	for _, res := range resources {
		if info, ok := c.locks[res]; ok && info.Holder != agentID {
			held = append(held, HeldResource{Resource: res, Holder: info.Holder})
		}
	}
	if len(held) > 0 {
		c.enqueueLocked(agentID, taskID, resources)
		c.log.Warnf("coordinator", "queued %s/%s: %d resource(s) held", agentID, taskID, len(held))
		c.emitLocked(Event{Kind: EventConflictQueued, AgentID: agentID, TaskID: taskID, Resources: resources, Timestamp: c.clock()})
		return errs.Wrap(errs.KindConflictDetected, op, &ConflictError{Held: held})
	}

	c.admitLocked(agentID, taskID, resources)
	return nil
}

// admitLocked locks every resource under the agent and records the
// operation. Callers must have verified all resources are free.
func (c *Coordinator) admitLocked(agentID, taskID string, resources []string) {
	now := c.clock()
	for _, res := range resources {
		c.locks[res] = LockInfo{Holder: agentID, AcquiredAt: now}
	}
	opID := uuid.New().String()[:8]
	c.ops[opID] = &Operation{
		ID:        opID,
		AgentID:   agentID,
		TaskID:    taskID,
		Resources: append([]string(nil), resources...),
		StartedAt: now,
	}
	c.log.Infof("coordinator", "started %s/%s (op %s, %d lock(s))", agentID, taskID, opID, len(resources))
	c.emitLocked(Event{Kind: EventTaskStarted, AgentID: agentID, TaskID: taskID, Resources: resources, Timestamp: now})
}

// enqueueLocked queues a conflicting request, replacing any earlier entry
// for the same agent and task.
func (c *Coordinator) enqueueLocked(agentID, taskID string, resources []string) {
	for _, req := range c.queue {
		if req.AgentID == agentID && req.TaskID == taskID {
			req.Resources = append([]string(nil), resources...)
			return
		}
	}
	c.queue = append(c.queue, &queuedRequest{
		AgentID:   agentID,
		TaskID:    taskID,
		Resources: append([]string(nil), resources...),
		QueuedAt:  c.clock(),
	})
}

// NotifyTaskCompletion releases the agent's locks on the named resources,
// retires the operation record into history, and retries every queued
// request once. Retried requests re-resolve their resource list through the
// resource source; requests that still conflict are re-queued.
func (c *Coordinator) NotifyTaskCompletion(agentID, taskID string, resources []string) error {
	const op = "coordinator.NotifyTaskCompletion"

	if agentID == "" || taskID == "" {
		return errs.E(errs.KindInvalidInput, op, "agent and task ids must be non-empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	for _, res := range resources {
		info, ok := c.locks[res]
		if !ok {
			continue
		}
		if info.Holder != agentID {
			c.log.Warnf("coordinator", "%s released %s held by %s, ignoring", agentID, res, info.Holder)
			continue
		}
		delete(c.locks, res)
	}

	for id, active := range c.ops {
		if active.AgentID == agentID && active.TaskID == taskID {
			c.history.Append(ExecutionRecord{
				OpID:        active.ID,
				AgentID:     active.AgentID,
				TaskID:      active.TaskID,
				Resources:   active.Resources,
				StartedAt:   active.StartedAt,
				CompletedAt: now,
			})
			delete(c.ops, id)
		}
	}

	c.log.Infof("coordinator", "completed %s/%s", agentID, taskID)
	c.emitLocked(Event{Kind: EventTaskCompleted, AgentID: agentID, TaskID: taskID, Resources: resources, Timestamp: now})

	c.retryQueueLocked()
	return nil
}

// retryQueueLocked replays every queued request exactly once. Requests that
// still conflict go back on the queue in their original order.
func (c *Coordinator) retryQueueLocked() {
	pending := c.queue
	c.queue = nil

	for _, req := range pending {
		resources := req.Resources
		if c.source != nil {
			if fetched, err := c.source.RequiredResources(req.TaskID); err == nil {
				resources = fetched
			} else {
				c.log.Warnf("coordinator", "retry %s/%s: resource lookup failed: %v", req.AgentID, req.TaskID, err)
			}
		}

		blocked := false
		for _, res := range resources {
			if info, ok := c.locks[res]; ok && info.Holder != req.AgentID {
				blocked = true
				break
			}
		}
		if blocked {
			req.Resources = resources
			c.queue = append(c.queue, req)
			continue
		}
		c.admitLocked(req.AgentID, req.TaskID, resources)
	}
}

// ConflictType classifies a conflict for strategy selection.
type ConflictType string

const (
	ConflictResource     ConflictType = "resource"
	ConflictTaskVsTask   ConflictType = "task_vs_task"
	ConflictAgentVsAgent ConflictType = "agent_vs_agent"
)

// Resolution is a chosen conflict-handling strategy.
type Resolution struct {
	// Strategy is one of queue, parallel, delegate.
	Strategy string
	// Assignee is set when the strategy delegates to a single agent.
	Assignee string
}

// ResolveConflict maps a conflict type to a fixed strategy: resource
// conflicts queue behind the holder, task-vs-task conflicts run in
// parallel, agent-vs-agent conflicts delegate to the first agent.
func (c *Coordinator) ResolveConflict(kind ConflictType, agents []string) Resolution {
	switch kind {
	case ConflictTaskVsTask:
		return Resolution{Strategy: "parallel"}
	case ConflictAgentVsAgent:
		assignee := ""
		if len(agents) > 0 {
			assignee = agents[0]
		}
		return Resolution{Strategy: "delegate", Assignee: assignee}
	default:
		return Resolution{Strategy: "queue"}
	}
}

// ActiveOperations returns copies of the admitted operations, ordered by id.
func (c *Coordinator) ActiveOperations() []Operation {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Operation, 0, len(c.ops))
	for _, active := range c.ops {
		cp := *active
		cp.Resources = append([]string(nil), active.Resources...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// HeldLocks returns a copy of the lock table.
func (c *Coordinator) HeldLocks() map[string]LockInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]LockInfo, len(c.locks))
	for res, info := range c.locks {
		out[res] = info
	}
	return out
}

// QueuedCount returns how many requests are waiting on held resources.
func (c *Coordinator) QueuedCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.queue)
}

// History snapshots the completed-execution records, oldest first.
func (c *Coordinator) History() []ExecutionRecord {
	return c.history.Snapshot()
}

// Stats summarizes the coordinator's current load.
type Stats struct {
	ActiveOperations    int
	HeldLocks           int
	QueuedRequests      int
	DistinctHolders     int
	CompletedExecutions int
}

// Stats reports current admission-control load.
func (c *Coordinator) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	holders := make(map[string]bool)
	for _, info := range c.locks {
		holders[info.Holder] = true
	}
	return Stats{
		ActiveOperations:    len(c.ops),
		HeldLocks:           len(c.locks),
		QueuedRequests:      len(c.queue),
		DistinctHolders:     len(holders),
		CompletedExecutions: c.history.Len(),
	}
}

// Efficiency is a derived view of coordination overhead.
type Efficiency struct {
	// LockContention is queued requests over queued plus active, in [0,1].
	LockContention float64
	// Parallelism is active operations per distinct lock holder.
	Parallelism float64
	// AvgExecution is the mean completed-operation duration.
	AvgExecution time.Duration
}

// EfficiencyAnalysis derives contention and throughput figures from the
// current tables and the execution history.
func (c *Coordinator) EfficiencyAnalysis() Efficiency {
	stats := c.Stats()
	records := c.history.Snapshot()

	var eff Efficiency
	if total := stats.QueuedRequests + stats.ActiveOperations; total > 0 {
		eff.LockContention = float64(stats.QueuedRequests) / float64(total)
	}
	if stats.DistinctHolders > 0 {
		eff.Parallelism = float64(stats.ActiveOperations) / float64(stats.DistinctHolders)
	}
	if len(records) > 0 {
		var sum time.Duration
		for _, rec := range records {
			sum += rec.CompletedAt.Sub(rec.StartedAt)
		}
		eff.AvgExecution = sum / time.Duration(len(records))
	}
	return eff
}

// Reset clears locks, queue, operations, and barriers. Waiters on open
// barriers are released.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.locks = make(map[string]LockInfo)
	c.queue = nil
	c.ops = make(map[string]*Operation)
	for reason, b := range c.barriers {
		close(b.done)
		delete(c.barriers, reason)
	}
	c.history.Reset()
}

// emitLocked publishes an event without blocking the critical section.
func (c *Coordinator) emitLocked(event Event) {
	select {
	case c.events <- event:
	default:
		c.log.Warnf("coordinator", "event channel full, dropped %s", event.Kind)
	}
}
