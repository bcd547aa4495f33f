package models

import "time"

// AgentStatus represents the current state of an agent.
type AgentStatus string

const (
	// AgentStatusIdle indicates the agent has no assigned work.
	AgentStatusIdle AgentStatus = "idle"
	// AgentStatusWorking indicates the agent is actively executing a task.
	AgentStatusWorking AgentStatus = "working"
	// AgentStatusBlocked indicates the agent is waiting on something.
	AgentStatusBlocked AgentStatus = "blocked"
	// AgentStatusError indicates the agent hit an unrecoverable problem.
	AgentStatusError AgentStatus = "error"
	// AgentStatusCompleted indicates the agent finished its assignment.
	AgentStatusCompleted AgentStatus = "completed"
)

// Valid returns true if the status is a known value.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentStatusIdle, AgentStatusWorking, AgentStatusBlocked,
		AgentStatusError, AgentStatusCompleted:
		return true
	default:
		return false
	}
}

// Active returns true if the agent is participating in work (working or blocked).
func (s AgentStatus) Active() bool {
	return s == AgentStatusWorking || s == AgentStatusBlocked
}

// AgentState represents what an external agent process is doing right now.
type AgentState struct {
	// ID is the unique identifier for this agent.
	ID string `json:"id" validate:"required"`
	// Status is the current state of the agent.
	Status AgentStatus `json:"status"`
	// Progress is percent complete of the current task, in [0,100].
	Progress float64 `json:"progress"`
	// CurrentTask is the ID of the task the agent is working on, if any.
	CurrentTask string `json:"current_task,omitempty"`
	// WorkingDir is the agent's working directory.
	WorkingDir string `json:"working_dir,omitempty"`
	// PID is the process ID of the agent, if one is attached.
	PID int `json:"pid,omitempty"`
	// LastUpdate is when this state was last reported.
	LastUpdate time.Time `json:"last_update"`
}

// Clone returns a copy of the agent state.
func (a *AgentState) Clone() *AgentState {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}

// Stale reports whether a working agent has gone quiet for longer than window.
func (a *AgentState) Stale(now time.Time, window time.Duration) bool {
	if a.Status != AgentStatusWorking {
		return false
	}
	return now.Sub(a.LastUpdate) > window
}
