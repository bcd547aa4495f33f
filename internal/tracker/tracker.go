// Package tracker owns per-agent status and progress. It is independent of
// the task graph; agents are external processes identified by string ids.
package tracker

import (
	"sort"
	"sync"
	"time"

	"github.com/squadronhq/squadron/internal/logging"
	"github.com/squadronhq/squadron/pkg/errs"
	"github.com/squadronhq/squadron/pkg/models"
)

// Change is the state-changed notification emitted on every successful update.
type Change struct {
	// AgentID is the agent whose state changed.
	AgentID string
	// Status is the agent's status after the update.
	Status models.AgentStatus
	// Timestamp is when the update committed.
	Timestamp time.Time
}

const changeBuffer = 256

// Update carries the fields of an agent-state update. Status is required;
// nil optional fields leave the current value untouched.
type Update struct {
	// Status is the new agent status.
	Status models.AgentStatus
	// Progress replaces the progress percentage when non-nil. Must be in [0,100].
	Progress *float64
	// CurrentTask replaces the current task id when non-nil.
	CurrentTask *string
	// WorkingDir replaces the working directory when non-nil.
	WorkingDir *string
	// PID replaces the process id when non-nil.
	PID *int
}

// Tracker is the concurrency-safe store of agent states.
type Tracker struct {
	mu     sync.RWMutex
	agents map[string]*models.AgentState
	// staleAfter is the window beyond which a silent working agent is stale.
	staleAfter time.Duration

	changes chan Change
	log     *logging.Logger
	clock   func() time.Time
}

// New creates an empty tracker with the given stale-agent window.
func New(staleAfter time.Duration, log *logging.Logger) *Tracker {
	if log == nil {
		log = logging.Nop()
	}
	return &Tracker{
		agents:     make(map[string]*models.AgentState),
		staleAfter: staleAfter,
		changes:    make(chan Change, changeBuffer),
		log:        log,
		clock:      time.Now,
	}
}

// SetClock overrides the time source. Used by tests.
func (t *Tracker) SetClock(clock func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if clock != nil {
		t.clock = clock
	}
}

// Changes returns the state-changed notification stream.
func (t *Tracker) Changes() <-chan Change {
	return t.changes
}

// UpdateState applies an update to the named agent, registering it on
// first sight. Progress outside [0,100] fails with invalid input.
func (t *Tracker) UpdateState(agentID string, upd Update) error {
	const op = "tracker.UpdateState"

	if agentID == "" {
		return errs.E(errs.KindInvalidInput, op, "agent id must be non-empty")
	}
	if !upd.Status.Valid() {
		return errs.E(errs.KindInvalidInput, op, "unknown status %q", upd.Status)
	}
	if upd.Progress != nil && (*upd.Progress < 0 || *upd.Progress > 100) {
		return errs.E(errs.KindInvalidInput, op, "progress %.1f out of range [0,100]", *upd.Progress)
	}

	t.mu.Lock()
	state, ok := t.agents[agentID]
	if !ok {
		state = &models.AgentState{ID: agentID}
		t.agents[agentID] = state
	}

	state.Status = upd.Status
	if upd.Progress != nil {
		state.Progress = *upd.Progress
	}
	if upd.CurrentTask != nil {
		state.CurrentTask = *upd.CurrentTask
	}
	if upd.WorkingDir != nil {
		state.WorkingDir = *upd.WorkingDir
	}
	if upd.PID != nil {
		state.PID = *upd.PID
	}
	state.LastUpdate = t.clock()
	change := Change{AgentID: agentID, Status: state.Status, Timestamp: state.LastUpdate}
	progress := state.Progress
	t.mu.Unlock()

	t.log.Debugf("tracker", "agent %s -> %s (%.0f%%)", agentID, change.Status, progress)
	select {
	case t.changes <- change:
	default:
		t.log.Warnf("tracker", "change channel full, dropped update for %s", agentID)
	}
	return nil
}

// GetState returns a copy of the named agent's state.
func (t *Tracker) GetState(agentID string) (*models.AgentState, error) {
	const op = "tracker.GetState"

	t.mu.RLock()
	defer t.mu.RUnlock()

	state, ok := t.agents[agentID]
	if !ok {
		return nil, errs.E(errs.KindNotFound, op, "agent %q not found", agentID)
	}
	return state.Clone(), nil
}

// AllStates snapshots every agent's state. The snapshot is taken under the
// read lock so callers never observe a torn write.
func (t *Tracker) AllStates() []*models.AgentState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*models.AgentState, 0, len(t.agents))
	for _, state := range t.agents {
		out = append(out, state.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ByStatus returns copies of agents currently in the given status.
func (t *Tracker) ByStatus(status models.AgentStatus) []*models.AgentState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []*models.AgentState
	for _, state := range t.agents {
		if state.Status == status {
			out = append(out, state.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Remove deletes an agent from the tracker.
func (t *Tracker) Remove(agentID string) error {
	const op = "tracker.Remove"

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.agents[agentID]; !ok {
		return errs.E(errs.KindNotFound, op, "agent %q not found", agentID)
	}
	delete(t.agents, agentID)
	return nil
}

// ActiveCount returns how many agents are working or blocked.
func (t *Tracker) ActiveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	for _, state := range t.agents {
		if state.Status.Active() {
			count++
		}
	}
	return count
}

// AverageProgress returns the mean progress of working agents, or 0 when
// none are working.
func (t *Tracker) AverageProgress() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var sum float64
	var n int
	for _, state := range t.agents {
		if state.Status == models.AgentStatusWorking {
			sum += state.Progress
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// HealthCheck returns agents whose status is working but whose last update
// is older than the stale window.
func (t *Tracker) HealthCheck() []*models.AgentState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.clock()
	var stale []*models.AgentState
	for _, state := range t.agents {
		if state.Stale(now, t.staleAfter) {
			stale = append(stale, state.Clone())
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].ID < stale[j].ID })
	return stale
}

// Reset removes every agent.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.agents = make(map[string]*models.AgentState)
}
