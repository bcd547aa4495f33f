package escalation

import (
	"context"
	"time"

	"github.com/squadronhq/squadron/pkg/errs"
	"github.com/squadronhq/squadron/pkg/models"
)

// Action is the outcome of a waiting decision.
type Action string

const (
	// ActionContinueAlternative means pick up other work while this waits.
	ActionContinueAlternative Action = "continue_with_alternative"
	// ActionStopExecution means halt work on the affected task.
	ActionStopExecution Action = "stop_execution"
)

// poDecision is what ProcessPODecision delivers to a waiting caller.
type poDecision struct {
	approved bool
}

// ManageWaitingDecision chooses what to do with an unresolved escalation.
// Minor and Moderate problems continue with alternative work. Important
// problems wait up to the timeout for a product-owner decision and stop on
// silence. Severe and Critical problems stop immediately.
func (e *Engine) ManageWaitingDecision(ctx context.Context, escalationID string, timeout time.Duration) (Action, error) {
	const op = "escalation.ManageWaitingDecision"

	e.mu.Lock()
	esc, ok := e.active[escalationID]
	if !ok {
		e.mu.Unlock()
		return "", errs.E(errs.KindNotFound, op, "escalation %q not found", escalationID)
	}

	switch {
	case esc.Severity <= models.SeverityModerate:
		e.mu.Unlock()
		return ActionContinueAlternative, nil
	case esc.Severity >= models.SeveritySevere:
		e.mu.Unlock()
		return ActionStopExecution, nil
	}

	if timeout <= 0 {
		e.mu.Unlock()
		return "", errs.E(errs.KindInvalidInput, op, "timeout must be positive")
	}

	if _, exists := e.waiting[escalationID]; exists {
		e.mu.Unlock()
		return "", errs.E(errs.KindConflictDetected, op, "a decision wait for %q is already registered", escalationID)
	}
	ch := make(chan poDecision, 1)
	e.waiting[escalationID] = ch
	e.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case decision := <-ch:
		if decision.approved {
			return ActionContinueAlternative, nil
		}
		return ActionStopExecution, nil
	case <-ctx.Done():
		e.dropWaiter(escalationID)
		return "", errs.Wrap(errs.KindEscalationFailed, op, ctx.Err())
	case <-timer.C:
		e.dropWaiter(escalationID)
		e.log.Warnf("escalation", "%s: no decision within %s, stopping task", escalationID, timeout)
		return ActionStopExecution, nil
	}
}

func (e *Engine) dropWaiter(escalationID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.waiting, escalationID)
}

// ProcessPODecision records a product-owner call on an active escalation
// and resolves it. A caller blocked in ManageWaitingDecision is released
// with the decision.
func (e *Engine) ProcessPODecision(escalationID string, approved bool, note string) error {
	const op = "escalation.ProcessPODecision"

	e.mu.Lock()
	esc, ok := e.active[escalationID]
	if !ok {
		e.mu.Unlock()
		return errs.E(errs.KindNotFound, op, "escalation %q not found", escalationID)
	}

	action := note
	if action == "" {
		if approved {
			action = "approved by product owner"
		} else {
			action = "rejected by product owner"
		}
	}
	record := e.resolveLocked(esc, models.ResolvedByPODecision, action, true, approved)

	if ch, waiting := e.waiting[escalationID]; waiting {
		ch <- poDecision{approved: approved}
		delete(e.waiting, escalationID)
	}
	e.mu.Unlock()

	e.log.Infof("escalation", "%s: product owner decided (%s)", escalationID, action)
	e.emit(Event{Kind: EventResolved, EscalationID: escalationID, TaskID: record.TaskID, Severity: record.Severity, Timestamp: record.ResolvedAt})
	return nil
}

// ExecuteEmergencyResponse resolves an escalation through the emergency
// path and returns the action taken.
func (e *Engine) ExecuteEmergencyResponse(escalationID string) (string, error) {
	const op = "escalation.ExecuteEmergencyResponse"

	e.mu.Lock()
	esc, ok := e.active[escalationID]
	if !ok {
		e.mu.Unlock()
		return "", errs.E(errs.KindNotFound, op, "escalation %q not found", escalationID)
	}

	var action string
	switch {
	case esc.Severity == models.SeverityCritical:
		action = "halted all execution, paged on-call"
	case esc.Severity == models.SeveritySevere:
		action = "halted dependent tasks"
	default:
		action = "paused affected task"
	}
	record := e.resolveLocked(esc, models.ResolvedByEmergency, action, true, true)
	if ch, waiting := e.waiting[escalationID]; waiting {
		ch <- poDecision{approved: false}
		delete(e.waiting, escalationID)
	}
	e.mu.Unlock()

	e.log.Errorf("escalation", "%s: emergency response: %s", escalationID, action)
	e.emit(Event{Kind: EventResolved, EscalationID: escalationID, TaskID: record.TaskID, Severity: record.Severity, Timestamp: record.ResolvedAt})
	return action, nil
}
