package coordinator

import (
	"context"
	"time"

	"github.com/squadronhq/squadron/pkg/errs"
)

// barrier is a rendezvous keyed by reason. done closes once every required
// participant has arrived.
type barrier struct {
	required map[string]bool
	ready    map[string]bool
	done     chan struct{}
}

// RequestSynchronization marks the calling agent ready at the barrier for
// the given reason and waits until every participant has arrived. The
// timeout is mandatory; a barrier that does not complete in time fails with
// a resource-unavailable error and the caller's readiness is withdrawn.
func (c *Coordinator) RequestSynchronization(ctx context.Context, agentID string, participants []string, reason string, timeout time.Duration) error {
	const op = "coordinator.RequestSynchronization"

	if agentID == "" || reason == "" {
		return errs.E(errs.KindInvalidInput, op, "agent id and reason must be non-empty")
	}
	if len(participants) == 0 {
		return errs.E(errs.KindInvalidInput, op, "participant list must be non-empty")
	}
	if timeout <= 0 {
		return errs.E(errs.KindInvalidInput, op, "timeout must be positive")
	}

	c.mu.Lock()
	b, ok := c.barriers[reason]
	if !ok {
		b = &barrier{
			required: make(map[string]bool, len(participants)),
			ready:    make(map[string]bool),
			done:     make(chan struct{}),
		}
		c.barriers[reason] = b
	}
	for _, p := range participants {
		b.required[p] = true
	}
	b.ready[agentID] = true

	complete := true
	for p := range b.required {
		if !b.ready[p] {
			complete = false
			break
		}
	}
	if complete {
		close(b.done)
		delete(c.barriers, reason)
		c.log.Infof("coordinator", "synchronization %q reached (%d agent(s))", reason, len(b.required))
		c.emitLocked(Event{Kind: EventSyncReached, AgentID: agentID, Timestamp: c.clock()})
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		c.withdrawReady(reason, agentID)
		return errs.Wrap(errs.KindResourceUnavailable, op, ctx.Err())
	case <-timer.C:
		c.withdrawReady(reason, agentID)
		return errs.E(errs.KindResourceUnavailable, op, "synchronization %q timed out after %s", reason, timeout)
	}
}

// withdrawReady removes an agent's readiness after an abandoned wait so a
// later arrival does not complete the barrier against a gone caller.
func (c *Coordinator) withdrawReady(reason, agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.barriers[reason]; ok {
		delete(b.ready, agentID)
	}
}
