// Package engine composes the task graph, agent tracker, coordinator,
// escalation engine, virtual-time scheduler, and progress aggregator into
// one API surface. Component notifications are drained onto a topic bus
// and, when a store is attached, mirrored to persistence best-effort.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/squadronhq/squadron/internal/config"
	"github.com/squadronhq/squadron/internal/coordinator"
	"github.com/squadronhq/squadron/internal/escalation"
	"github.com/squadronhq/squadron/internal/graph"
	"github.com/squadronhq/squadron/internal/logging"
	"github.com/squadronhq/squadron/internal/progress"
	"github.com/squadronhq/squadron/internal/store"
	"github.com/squadronhq/squadron/internal/tracker"
	"github.com/squadronhq/squadron/internal/vtime"
	"github.com/squadronhq/squadron/pkg/errs"
	"github.com/squadronhq/squadron/pkg/models"
)

// Engine is the orchestration facade.
type Engine struct {
	cfg *config.Config
	log *logging.Logger

	graph   *graph.TaskGraph
	tracker *tracker.Tracker
	coord   *coordinator.Coordinator
	esc     *escalation.Engine
	calc    *vtime.Calculator
	sched   *vtime.Scheduler
	timers  *vtime.Processor
	agg     *progress.Aggregator
	store   store.Store

	bus       *Bus
	sessionID string
	stop      chan struct{}
	stopped   sync.Once
	wg        sync.WaitGroup
}

// Option customizes engine construction.
type Option func(*Engine)

// WithStore attaches a persistence store. Without one the engine runs
// memory-only.
func WithStore(st store.Store) Option {
	return func(e *Engine) { e.store = st }
}

// WithLogger replaces the default no-op logger.
func WithLogger(log *logging.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// New assembles an engine from configuration.
func New(cfg *config.Config, opts ...Option) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}

	e := &Engine{
		cfg:       cfg,
		log:       logging.Nop(),
		sessionID: uuid.New().String()[:8],
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.bus = NewBus(e.log)
	e.graph = graph.New(e.log)
	e.tracker = tracker.New(cfg.Agents.StaleWindow, e.log)
	e.coord = coordinator.New(e.graph, cfg.Escalation.HistoryCap, e.log)
	e.esc = escalation.New(escalation.Config{
		Enabled:               cfg.Escalation.Enabled,
		NotificationThreshold: models.ParseSeverity(cfg.Escalation.NotificationThreshold),
		MaxAutoRecovery:       cfg.Escalation.MaxAutoRecovery,
		HistoryCap:            cfg.Escalation.HistoryCap,
	}, e.graph, e.log)
	e.calc = vtime.NewCalculator(vtime.Config{
		RealPerVirtualHour:   cfg.VirtualTime.RealPerVirtualHour,
		DaysPerSprint:        cfg.VirtualTime.DaysPerSprint,
		StandupIntervalHours: cfg.VirtualTime.StandupIntervalHours,
	}, e.log)
	e.sched = vtime.NewScheduler(e.calc, e.log)
	e.timers = vtime.NewProcessor(e.log)
	e.agg = progress.New(e.graph, e.tracker, e.log)
	return e
}

// Start initializes persistence (when attached) and begins draining
// component notifications onto the bus.
func (e *Engine) Start(ctx context.Context) error {
	const op = "engine.Start"

	if e.store != nil {
		if err := e.store.InitializeSchema(ctx); err != nil {
			return errs.Wrap(errs.KindSystemError, op, err)
		}
	}
	e.wg.Add(1)
	go e.drain()
	e.log.Infof("engine", "session %s started", e.sessionID)
	return nil
}

// drain forwards every component's notification stream to the bus and
// mirrors state to the store. Persistence failures are logged, never
// propagated; in-memory state stays authoritative.
func (e *Engine) drain() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stop:
			return
		case change := <-e.graph.Changes():
			e.bus.Publish(TopicTasks, change)
			e.persistTask(change.TaskID)
		case change := <-e.tracker.Changes():
			e.bus.Publish(TopicAgents, change)
			e.persistAgent(change.AgentID)
		case event := <-e.coord.Events():
			e.bus.Publish(TopicCoordination, event)
			if event.Kind == coordinator.EventTaskStarted {
				e.markStarted(event.AgentID, event.TaskID)
			}
		case event := <-e.esc.Events():
			e.bus.Publish(TopicEscalations, event)
		case summary := <-e.agg.Changes():
			e.bus.Publish(TopicProgress, summary)
		}
	}
}

// markStarted moves an admitted task to in_progress and records the
// assignee. Direct admissions through RequestTaskExecution already did
// this synchronously; the drain loop calls it again for admissions made
// during queue replay, where no caller is on the stack. Same-state
// transitions are accepted, so the duplicate call is harmless.
func (e *Engine) markStarted(agentID, taskID string) {
	if err := e.graph.UpdateStatus(taskID, models.TaskStatusInProgress); err != nil {
		e.log.Warnf("engine", "mark %s in_progress: %v", taskID, err)
		return
	}
	if err := e.graph.AssignAgent(taskID, agentID); err != nil {
		e.log.Warnf("engine", "assign %s to %s: %v", taskID, agentID, err)
	}
}

func (e *Engine) persistTask(taskID string) {
	if e.store == nil || taskID == "" {
		return
	}
	task, err := e.graph.GetTask(taskID)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := e.store.SaveTask(ctx, task); err != nil {
		e.log.Warnf("engine", "persist task %s: %v", taskID, err)
	}
	for _, edge := range e.dependencyEdges(taskID) {
		if _, err := e.store.SaveDependency(ctx, edge.TaskID, edge.DependsOn, edge.Kind); err != nil {
			e.log.Warnf("engine", "persist dependency %s->%s: %v", edge.TaskID, edge.DependsOn, err)
		}
	}
}

func (e *Engine) dependencyEdges(taskID string) []models.DependencyEdge {
	edges, err := e.graph.Dependencies(taskID)
	if err != nil {
		return nil
	}
	return edges
}

func (e *Engine) persistAgent(agentID string) {
	if e.store == nil {
		return
	}
	state, err := e.tracker.GetState(agentID)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := e.store.SaveAgentHistory(ctx, state); err != nil {
		e.log.Warnf("engine", "persist agent %s: %v", agentID, err)
	}
}

// Stop shuts the engine down. Safe to call more than once.
func (e *Engine) Stop() {
	e.stopped.Do(func() {
		close(e.stop)
		e.wg.Wait()
		e.agg.Stop()
		e.bus.Close()
		if e.store != nil {
			if err := e.store.Close(); err != nil {
				e.log.Warnf("engine", "closing store: %v", err)
			}
		}
		e.log.Infof("engine", "session %s stopped", e.sessionID)
	})
}

// SessionID identifies this engine run.
func (e *Engine) SessionID() string { return e.sessionID }

// Subscribe returns a bus channel for one topic.
func (e *Engine) Subscribe(topic Topic) <-chan Message { return e.bus.Subscribe(topic) }

// SubscribeAll returns a bus channel for every topic.
func (e *Engine) SubscribeAll() <-chan Message { return e.bus.SubscribeAll() }

// Component accessors. Callers needing the full sub-API go through these;
// the composed operations below cover the common flows.

func (e *Engine) Graph() *graph.TaskGraph               { return e.graph }
func (e *Engine) Agents() *tracker.Tracker              { return e.tracker }
func (e *Engine) Coordinator() *coordinator.Coordinator { return e.coord }
func (e *Engine) Escalations() *escalation.Engine       { return e.esc }
func (e *Engine) Clock() *vtime.Calculator              { return e.calc }
func (e *Engine) Scheduler() *vtime.Scheduler           { return e.sched }
func (e *Engine) Timers() *vtime.Processor              { return e.timers }
func (e *Engine) Progress() *progress.Aggregator        { return e.agg }

// AddTask registers a task in the graph.
func (e *Engine) AddTask(task *models.Task) error {
	return e.graph.AddTask(task)
}

// AddDependency adds a dependency edge.
func (e *Engine) AddDependency(taskID, dependsOn string, kind models.DependencyKind) error {
	return e.graph.AddDependency(taskID, dependsOn, kind)
}

// RequestTaskExecution admits an agent onto a task, resolving the task's
// required resources from the graph.
func (e *Engine) RequestTaskExecution(agentID, taskID string) error {
	resources, err := e.graph.RequiredResources(taskID)
	if err != nil {
		return err
	}
	if err := e.coord.RequestTaskExecution(agentID, taskID, resources); err != nil {
		return err
	}
	if err := e.graph.UpdateStatus(taskID, models.TaskStatusInProgress); err != nil {
		e.log.Warnf("engine", "mark %s in_progress: %v", taskID, err)
	}
	if err := e.graph.AssignAgent(taskID, agentID); err != nil {
		e.log.Warnf("engine", "assign %s to %s: %v", taskID, agentID, err)
	}
	return nil
}

// CompleteTask finishes a task: the graph records completion, the
// coordinator releases the agent's locks and replays its queue. Newly
// unblocked tasks are returned.
func (e *Engine) CompleteTask(agentID, taskID string) ([]*models.Task, error) {
	resources, err := e.graph.RequiredResources(taskID)
	if err != nil {
		return nil, err
	}
	unblocked, err := e.graph.CompleteTask(taskID)
	if err != nil {
		return nil, err
	}
	if err := e.coord.NotifyTaskCompletion(agentID, taskID, resources); err != nil {
		e.log.Warnf("engine", "release locks for %s/%s: %v", agentID, taskID, err)
	}
	return unblocked, nil
}

// StartSprint opens a sprint and schedules its standups and review on the
// timer queue.
func (e *Engine) StartSprint(sprintID string) (*models.SprintContext, error) {
	ctx, err := e.calc.StartSprint(sprintID)
	if err != nil {
		return nil, err
	}
	interval := e.calc.Config().StandupIntervalHours
	for hour := interval; hour < ctx.TotalVirtualHours; hour += interval {
		if err := e.timers.Schedule(vtime.TimeEvent{
			Kind: vtime.EventStandupDue, SprintID: sprintID, VirtualHour: hour,
		}); err != nil {
			return nil, err
		}
	}
	if err := e.timers.Schedule(vtime.TimeEvent{
		Kind: vtime.EventReviewDue, SprintID: sprintID, VirtualHour: ctx.TotalVirtualHours,
	}); err != nil {
		return nil, err
	}
	return ctx, nil
}

// RunStandup collects every agent's state as its report and executes a
// standup for the sprint.
func (e *Engine) RunStandup(sprintID string) (*models.MeetingRecord, error) {
	reports := make(map[string]string)
	for _, state := range e.tracker.AllStates() {
		report := fmt.Sprintf("%s, %.0f%% done", state.Status, state.Progress)
		if state.CurrentTask != "" {
			report += " on " + state.CurrentTask
		}
		if state.Status == models.AgentStatusBlocked {
			report += " (blocked)"
		}
		reports[state.ID] = report
	}
	return e.sched.ExecuteStandup(sprintID, reports)
}

// RunReview executes the sprint review gate and returns the assessment
// and continuation decision.
func (e *Engine) RunReview(sprintID string) (models.CompletionAssessment, models.ContinuationDecision, error) {
	return e.sched.TriggerReview(sprintID, e.graph)
}

// Summary recomputes the current progress roll-up.
func (e *Engine) Summary() models.ProgressSummary {
	return e.agg.Summary()
}
