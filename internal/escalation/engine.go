// Package escalation runs the lifecycle of detected problems: classify the
// severity, try bounded auto-recovery, wait on a human decision when one is
// needed, and record how every escalation was resolved.
package escalation

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/squadronhq/squadron/internal/logging"
	"github.com/squadronhq/squadron/internal/ring"
	"github.com/squadronhq/squadron/pkg/errs"
	"github.com/squadronhq/squadron/pkg/models"
)

// DependentSource answers how many tasks transitively wait on a task.
// Satisfied by the task graph.
type DependentSource interface {
	Dependents(taskID string) []string
}

// Config holds the escalation policy knobs.
type Config struct {
	// Enabled gates all notifications. When false nothing is ever notified.
	Enabled bool
	// NotificationThreshold is the minimum severity that notifies a human.
	NotificationThreshold models.Severity
	// MaxAutoRecovery bounds recovery attempts per escalation.
	MaxAutoRecovery int
	// HistoryCap bounds the resolution history ring.
	HistoryCap int
}

// DefaultConfig returns the policy used when none is supplied.
func DefaultConfig() Config {
	return Config{
		Enabled:               true,
		NotificationThreshold: models.SeverityImportant,
		MaxAutoRecovery:       3,
		HistoryCap:            256,
	}
}

// EventKind tags escalation notifications.
type EventKind string

const (
	EventTriggered     EventKind = "escalation_triggered"
	EventAutoRecovered EventKind = "escalation_auto_recovered"
	EventResolved      EventKind = "escalation_resolved"
)

// Event is an escalation notification.
type Event struct {
	Kind         EventKind
	EscalationID string
	TaskID       string
	Severity     models.Severity
	Timestamp    time.Time
}

const eventBuffer = 128

// severityProfile is the lookup row TriggerEscalation derives factors from.
type severityProfile struct {
	impactScope         string
	timeConstraint      string
	riskLevel           string
	requiredActions     []string
	estimatedResolution time.Duration
}

var severityProfiles = map[models.Severity]severityProfile{
	models.SeverityMinor: {
		impactScope:         "task",
		timeConstraint:      "none",
		riskLevel:           "low",
		requiredActions:     []string{"log for later review"},
		estimatedResolution: 15 * time.Minute,
	},
	models.SeverityModerate: {
		impactScope:         "task",
		timeConstraint:      "within sprint",
		riskLevel:           "low",
		requiredActions:     []string{"monitor progress"},
		estimatedResolution: 30 * time.Minute,
	},
	models.SeverityImportant: {
		impactScope:         "project",
		timeConstraint:      "within day",
		riskLevel:           "medium",
		requiredActions:     []string{"notify product owner", "prepare alternatives"},
		estimatedResolution: time.Hour,
	},
	models.SeveritySevere: {
		impactScope:         "project",
		timeConstraint:      "within hours",
		riskLevel:           "high",
		requiredActions:     []string{"halt dependent work", "notify product owner"},
		estimatedResolution: 2 * time.Hour,
	},
	models.SeverityCritical: {
		impactScope:         "organization",
		timeConstraint:      "immediate",
		riskLevel:           "critical",
		requiredActions:     []string{"stop execution", "page on-call", "notify management"},
		estimatedResolution: 4 * time.Hour,
	},
}

// Engine owns the active escalation set and the resolution history.
type Engine struct {
	mu      sync.RWMutex
	cfg     Config
	active  map[string]*models.EscalationContext
	waiting map[string]chan poDecision
	history *ring.Log[models.ResolutionRecord]
	nextID  uint64

	recoveryAttempts  int
	recoverySuccesses int

	deps   DependentSource
	events chan Event
	log    *logging.Logger
	clock  func() time.Time
	draw   func() float64
}

// New creates an engine. deps may be nil; dependent-task counts are then 0.
func New(cfg Config, deps DependentSource, log *logging.Logger) *Engine {
	if log == nil {
		log = logging.Nop()
	}
	if cfg.MaxAutoRecovery <= 0 {
		cfg.MaxAutoRecovery = DefaultConfig().MaxAutoRecovery
	}
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = DefaultConfig().HistoryCap
	}
	if !cfg.NotificationThreshold.Valid() {
		cfg.NotificationThreshold = DefaultConfig().NotificationThreshold
	}
	return &Engine{
		cfg:     cfg,
		active:  make(map[string]*models.EscalationContext),
		waiting: make(map[string]chan poDecision),
		history: ring.New[models.ResolutionRecord](cfg.HistoryCap),
		deps:    deps,
		events:  make(chan Event, eventBuffer),
		log:     log,
		clock:   time.Now,
		draw:    rand.Float64,
	}
}

// SetClock overrides the time source. Used by tests.
func (e *Engine) SetClock(clock func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if clock != nil {
		e.clock = clock
	}
}

// SetDraw overrides the pseudo-random source behind recovery outcomes.
// Used by tests to force success or failure.
func (e *Engine) SetDraw(draw func() float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if draw != nil {
		e.draw = draw
	}
}

// Events returns the escalation notification stream.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// TriggerEscalation classifies the problem description and creates an
// active escalation with factors derived from the severity profile.
func (e *Engine) TriggerEscalation(taskID, agentID, description string) (*models.EscalationContext, error) {
	const op = "escalation.TriggerEscalation"

	if taskID == "" || agentID == "" {
		return nil, errs.E(errs.KindInvalidInput, op, "task and agent ids must be non-empty")
	}
	if strings.TrimSpace(description) == "" {
		return nil, errs.E(errs.KindInvalidInput, op, "description must be non-empty")
	}

	severity := EvaluateSeverity(description)
	profile := severityProfiles[severity]

	dependents := 0
	if e.deps != nil {
		dependents = len(e.deps.Dependents(taskID))
	}

	e.mu.Lock()
	e.nextID++
	ctx := &models.EscalationContext{
		ID:                  fmt.Sprintf("esc-%06d", e.nextID),
		TaskID:              taskID,
		AgentID:             agentID,
		Severity:            severity,
		ImpactScope:         profile.impactScope,
		TimeConstraint:      profile.timeConstraint,
		RiskLevel:           profile.riskLevel,
		BlockerType:         classifyBlocker(description),
		DependentTasks:      dependents,
		Description:         description,
		DetectedAt:          e.clock(),
		RequiredActions:     append([]string(nil), profile.requiredActions...),
		EstimatedResolution: profile.estimatedResolution,
	}
	e.active[ctx.ID] = ctx
	e.mu.Unlock()

	e.log.Warnf("escalation", "%s: %s on %s (%s blocker, %d dependent(s))",
		ctx.ID, severity, taskID, ctx.BlockerType, dependents)
	e.emit(Event{Kind: EventTriggered, EscalationID: ctx.ID, TaskID: taskID, Severity: severity, Timestamp: ctx.DetectedAt})
	return ctx.Clone(), nil
}

// Active returns a copy of the named active escalation.
func (e *Engine) Active(id string) (*models.EscalationContext, error) {
	const op = "escalation.Active"

	e.mu.RLock()
	defer e.mu.RUnlock()

	ctx, ok := e.active[id]
	if !ok {
		return nil, errs.E(errs.KindNotFound, op, "escalation %q not found", id)
	}
	return ctx.Clone(), nil
}

// ActiveEscalations snapshots every active escalation, ordered by id.
func (e *Engine) ActiveEscalations() []*models.EscalationContext {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*models.EscalationContext, 0, len(e.active))
	for _, ctx := range e.active {
		out = append(out, ctx.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// resolveLocked appends the resolution record and removes the escalation
// from the active set. Exactly one record is written per escalation.
func (e *Engine) resolveLocked(ctx *models.EscalationContext, method models.ResolutionMethod, action string, humanNotified, mitigated bool) models.ResolutionRecord {
	record := models.ResolutionRecord{
		EscalationID:    ctx.ID,
		TaskID:          ctx.TaskID,
		Severity:        ctx.Severity,
		Method:          method,
		ActionTaken:     action,
		BlockerType:     ctx.BlockerType,
		HumanNotified:   humanNotified,
		ImpactMitigated: mitigated,
		DetectedAt:      ctx.DetectedAt,
		ResolvedAt:      e.clock(),
	}
	e.history.Append(record)
	delete(e.active, ctx.ID)
	return record
}

// emit publishes an event without blocking.
func (e *Engine) emit(event Event) {
	select {
	case e.events <- event:
	default:
		e.log.Warnf("escalation", "event channel full, dropped %s", event.Kind)
	}
}
