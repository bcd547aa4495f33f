package engine

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// HealthReport is the result of a full engine health check.
type HealthReport struct {
	// DependencyCycles lists cycles found in the task graph. Hard edges
	// are kept acyclic on insertion, so entries here indicate corruption.
	DependencyCycles [][]string
	// DeadlockedAgents lists agents caught in a wait cycle.
	DeadlockedAgents []string
	// StaleAgents lists working agents silent beyond the stale window.
	StaleAgents []string
	// BlockedTasks lists pending tasks with unmet hard dependencies.
	BlockedTasks []string
}

// Healthy is true when nothing needs attention.
func (r HealthReport) Healthy() bool {
	return len(r.DependencyCycles) == 0 && len(r.DeadlockedAgents) == 0 &&
		len(r.StaleAgents) == 0
}

// HealthCheck runs the graph, coordinator, and tracker health probes
// concurrently and merges their findings.
func (e *Engine) HealthCheck(ctx context.Context) (HealthReport, error) {
	var report HealthReport

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		report.DependencyCycles = e.graph.DetectCycles()
		return nil
	})
	g.Go(func() error {
		report.DeadlockedAgents = e.coord.DetectDeadlock()
		return nil
	})
	g.Go(func() error {
		for _, state := range e.tracker.HealthCheck() {
			report.StaleAgents = append(report.StaleAgents, state.ID)
		}
		return nil
	})
	g.Go(func() error {
		for _, blocked := range e.graph.BlockedTasks() {
			report.BlockedTasks = append(report.BlockedTasks, blocked.Task.ID)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return report, err
	}

	if !report.Healthy() {
		e.log.Warnf("engine", "health check: %d cycle(s), %d deadlocked, %d stale",
			len(report.DependencyCycles), len(report.DeadlockedAgents), len(report.StaleAgents))
	}

	// Stale working agents are worth a human look.
	for _, agentID := range report.StaleAgents {
		if state, err := e.tracker.GetState(agentID); err == nil && state.CurrentTask != "" {
			if _, err := e.esc.TriggerEscalation(state.CurrentTask, agentID, "agent silent past stale window, possible timeout"); err != nil {
				e.log.Warnf("engine", "escalate stale agent %s: %v", agentID, err)
			}
		}
	}
	return report, nil
}
