package escalation

import (
	"github.com/squadronhq/squadron/pkg/errs"
	"github.com/squadronhq/squadron/pkg/models"
)

// recoveryStrategy pairs a named strategy with its success probability.
type recoveryStrategy struct {
	name        string
	successProb float64
}

var recoveryStrategies = map[models.BlockerType]recoveryStrategy{
	models.BlockerTechnical:  {"retry_with_backoff", 0.6},
	models.BlockerDependency: {"reorder_pending_tasks", 0.5},
	models.BlockerResource:   {"wait_and_reacquire", 0.7},
	models.BlockerExternal:   {"retry_external_call", 0.4},
	models.BlockerUnknown:    {"generic_retry", 0.3},
}

// AttemptAutoRecovery tries to resolve an active escalation without a
// human. It refuses once the attempt budget is spent and never runs for
// Severe or Critical severities. The attempt counter increments whether or
// not the strategy succeeds.
func (e *Engine) AttemptAutoRecovery(escalationID string) (bool, error) {
	const op = "escalation.AttemptAutoRecovery"

	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, ok := e.active[escalationID]
	if !ok {
		return false, errs.E(errs.KindNotFound, op, "escalation %q not found", escalationID)
	}
	if ctx.Severity >= models.SeveritySevere {
		return false, errs.E(errs.KindEscalationFailed, op,
			"severity %s requires human handling", ctx.Severity)
	}
	if ctx.RecoveryAttempts >= e.cfg.MaxAutoRecovery {
		return false, errs.E(errs.KindEscalationFailed, op,
			"recovery budget spent (%d attempt(s))", ctx.RecoveryAttempts)
	}

	strategy, ok := recoveryStrategies[ctx.BlockerType]
	if !ok {
		strategy = recoveryStrategies[models.BlockerUnknown]
	}

	ctx.RecoveryAttempts++
	e.recoveryAttempts++
	success := e.draw() < strategy.successProb
	if !success {
		e.log.Warnf("escalation", "%s: %s failed (attempt %d/%d)",
			escalationID, strategy.name, ctx.RecoveryAttempts, e.cfg.MaxAutoRecovery)
		return false, nil
	}

	e.recoverySuccesses++
	record := e.resolveLocked(ctx, models.ResolvedByAutoRecovery, strategy.name, false, true)
	e.log.Infof("escalation", "%s: recovered via %s", escalationID, strategy.name)
	e.emit(Event{Kind: EventAutoRecovered, EscalationID: escalationID, TaskID: ctx.TaskID, Severity: ctx.Severity, Timestamp: record.ResolvedAt})
	return true, nil
}
