// Package progress derives roll-up summaries from the task graph and the
// agent tracker. The aggregator holds no state of its own beyond the last
// computed summary, used to suppress no-change notifications.
package progress

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/squadronhq/squadron/internal/graph"
	"github.com/squadronhq/squadron/internal/logging"
	"github.com/squadronhq/squadron/pkg/models"
)

// TaskSource provides the task counts a summary needs.
type TaskSource interface {
	Stats() graph.Stats
}

// AgentSource provides the agent counts a summary needs.
type AgentSource interface {
	ActiveCount() int
	AverageProgress() float64
}

const changeBuffer = 64

// Aggregator recomputes progress summaries on demand.
type Aggregator struct {
	mu     sync.Mutex
	tasks  TaskSource
	agents AgentSource
	last   *models.ProgressSummary

	changes chan models.ProgressSummary
	stop    chan struct{}
	stopped sync.Once

	log   *logging.Logger
	clock func() time.Time
}

// New creates an aggregator over the given sources.
func New(tasks TaskSource, agents AgentSource, log *logging.Logger) *Aggregator {
	if log == nil {
		log = logging.Nop()
	}
	return &Aggregator{
		tasks:   tasks,
		agents:  agents,
		changes: make(chan models.ProgressSummary, changeBuffer),
		stop:    make(chan struct{}),
		log:     log,
		clock:   time.Now,
	}
}

// SetClock overrides the time source. Used by tests.
func (a *Aggregator) SetClock(clock func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if clock != nil {
		a.clock = clock
	}
}

// Changes returns the progress-changed notification stream. A summary is
// published only when it differs from the previously computed one.
func (a *Aggregator) Changes() <-chan models.ProgressSummary {
	return a.changes
}

// Summary recomputes the current progress roll-up.
func (a *Aggregator) Summary() models.ProgressSummary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.summaryLocked()
}

func (a *Aggregator) summaryLocked() models.ProgressSummary {
	stats := a.tasks.Stats()

	summary := models.ProgressSummary{
		TotalTasks:         stats.TotalTasks,
		CompletedTasks:     stats.ByStatus[models.TaskStatusCompleted],
		InProgressTasks:    stats.ByStatus[models.TaskStatusInProgress],
		BlockedTasks:       stats.BlockedTasks,
		ActiveAgents:       a.agents.ActiveCount(),
		EstimatedRemaining: stats.TotalEstimated,
		UpdatedAt:          a.clock(),
	}
	if summary.TotalTasks > 0 {
		summary.CompletionPercent = float64(summary.CompletedTasks) / float64(summary.TotalTasks) * 100
	}

	if a.last == nil || !a.last.Equal(summary) {
		a.last = &summary
		select {
		case a.changes <- summary:
		default:
			a.log.Warnf("progress", "change channel full, dropped summary")
		}
	}
	return summary
}

// Trends is a derived view of how the work is moving.
type Trends struct {
	// Velocity is overall progress per active agent.
	Velocity float64
	// Efficiency is completed over total tasks, in [0,1].
	Efficiency float64
	// BottleneckRisk is set when more tasks are blocked than running.
	BottleneckRisk bool
}

// Trends derives velocity, efficiency, and bottleneck risk from the
// current summary.
func (a *Aggregator) Trends() Trends {
	summary := a.Summary()

	var t Trends
	if summary.ActiveAgents > 0 {
		t.Velocity = summary.CompletionPercent / float64(summary.ActiveAgents)
	}
	if summary.TotalTasks > 0 {
		t.Efficiency = float64(summary.CompletedTasks) / float64(summary.TotalTasks)
	}
	t.BottleneckRisk = summary.BlockedTasks > summary.InProgressTasks
	return t
}

// Milestone is the judgment of one target percentage.
type Milestone struct {
	// TargetPercent is the milestone threshold.
	TargetPercent float64
	// Reached is true when completion has met or passed the target.
	Reached bool
	// GapPercent is how far completion is below the target, 0 when reached.
	GapPercent float64
}

// CheckMilestone judges completion against a target percentage.
func (a *Aggregator) CheckMilestone(targetPercent float64) Milestone {
	summary := a.Summary()

	m := Milestone{TargetPercent: targetPercent}
	if summary.CompletionPercent >= targetPercent {
		m.Reached = true
	} else {
		m.GapPercent = targetPercent - summary.CompletionPercent
	}
	return m
}

// Report renders a human-readable progress report.
func (a *Aggregator) Report() string {
	summary := a.Summary()
	trends := a.Trends()

	var b strings.Builder
	fmt.Fprintf(&b, "Progress: %.1f%% (%d/%d tasks completed)\n",
		summary.CompletionPercent, summary.CompletedTasks, summary.TotalTasks)
	fmt.Fprintf(&b, "In progress: %d, blocked: %d, active agents: %d\n",
		summary.InProgressTasks, summary.BlockedTasks, summary.ActiveAgents)
	fmt.Fprintf(&b, "Estimated remaining: %s\n", summary.EstimatedRemaining)
	if trends.BottleneckRisk {
		b.WriteString("Warning: more tasks blocked than running\n")
	}
	return b.String()
}

// StartPeriodic refreshes the summary on the given interval in a
// background goroutine. Three consecutive recover-caught failures disable
// the refresher instead of crashing the process. Stop ends it.
func (a *Aggregator) StartPeriodic(interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		failures := 0
		for {
			select {
			case <-a.stop:
				return
			case <-ticker.C:
				if a.safeRefresh() {
					failures = 0
					continue
				}
				failures++
				if failures >= 3 {
					a.log.Errorf("progress", "periodic refresh disabled after %d failures", failures)
					return
				}
			}
		}
	}()
}

// safeRefresh computes a summary, converting a panic in a source into a
// logged failure.
func (a *Aggregator) safeRefresh() (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Errorf("progress", "refresh panicked: %v", r)
			ok = false
		}
	}()
	a.Summary()
	return true
}

// Stop ends the periodic refresher. Safe to call more than once.
func (a *Aggregator) Stop() {
	a.stopped.Do(func() { close(a.stop) })
}
