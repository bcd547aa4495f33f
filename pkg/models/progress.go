package models

import "time"

// ProgressSummary is a derived roll-up of task and agent state.
// It is recomputed on demand and never independently mutated.
type ProgressSummary struct {
	// TotalTasks is the number of tasks known to the graph.
	TotalTasks int `json:"total_tasks"`
	// CompletedTasks is how many tasks finished successfully.
	CompletedTasks int `json:"completed_tasks"`
	// InProgressTasks is how many tasks are currently running.
	InProgressTasks int `json:"in_progress_tasks"`
	// BlockedTasks is how many pending tasks have unmet hard dependencies.
	BlockedTasks int `json:"blocked_tasks"`
	// ActiveAgents is how many agents are working or blocked.
	ActiveAgents int `json:"active_agents"`
	// CompletionPercent is overall completion in [0,100].
	CompletionPercent float64 `json:"completion_percent"`
	// EstimatedRemaining is the projected time to finish outstanding work.
	EstimatedRemaining time.Duration `json:"estimated_remaining"`
	// UpdatedAt is when this summary was computed.
	UpdatedAt time.Time `json:"updated_at"`
}

// Equal compares two summaries ignoring the computation timestamp.
// Used to decide whether a progress-changed notification should fire.
func (p ProgressSummary) Equal(other ProgressSummary) bool {
	p.UpdatedAt = time.Time{}
	other.UpdatedAt = time.Time{}
	return p == other
}
