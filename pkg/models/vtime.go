package models

import (
	"fmt"
	"time"
)

// VirtualUnit names the granularity of a virtual time value.
type VirtualUnit string

const (
	// UnitHour is the base virtual unit.
	UnitHour VirtualUnit = "hour"
	// UnitDay is six virtual hours.
	UnitDay VirtualUnit = "day"
	// UnitSprint is a configured number of virtual days.
	UnitSprint VirtualUnit = "sprint"
)

// Valid returns true if the unit is a known value.
func (u VirtualUnit) Valid() bool {
	return u == UnitHour || u == UnitDay || u == UnitSprint
}

// VirtualTime is a tagged quantity of compressed time.
type VirtualTime struct {
	// Unit is the granularity of Amount.
	Unit VirtualUnit `json:"unit"`
	// Amount is the number of units.
	Amount float64 `json:"amount"`
}

// VirtualHours constructs an hour-unit value.
func VirtualHours(n float64) VirtualTime { return VirtualTime{Unit: UnitHour, Amount: n} }

// VirtualDays constructs a day-unit value.
func VirtualDays(n float64) VirtualTime { return VirtualTime{Unit: UnitDay, Amount: n} }

// VirtualSprints constructs a sprint-unit value.
func VirtualSprints(n float64) VirtualTime { return VirtualTime{Unit: UnitSprint, Amount: n} }

// String renders the value as e.g. "3.0 virtual days".
func (v VirtualTime) String() string {
	return fmt.Sprintf("%.1f virtual %ss", v.Amount, v.Unit)
}

// SprintContext tracks one running sprint's position in virtual time.
type SprintContext struct {
	// SprintID identifies the sprint.
	SprintID string `json:"sprint_id"`
	// StartedAt is the real wall-clock start of the sprint.
	StartedAt time.Time `json:"started_at"`
	// CurrentVirtualHours is the sprint's position on the virtual clock.
	CurrentVirtualHours float64 `json:"current_virtual_hours"`
	// ElapsedReal is how much real time has passed since start.
	ElapsedReal time.Duration `json:"elapsed_real"`
	// TotalVirtualHours is the full length of the sprint.
	TotalVirtualHours float64 `json:"total_virtual_hours"`
	// Active is false once the sprint has been stopped.
	Active bool `json:"active"`
}

// Clone returns a copy of the sprint context.
func (s *SprintContext) Clone() *SprintContext {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

// MeetingType distinguishes scheduled virtual-time checkpoints.
type MeetingType string

const (
	// MeetingStandup is the recurring progress check-in.
	MeetingStandup MeetingType = "standup"
	// MeetingReview is the sprint-end review gate.
	MeetingReview MeetingType = "review"
)

// MeetingRecord captures what happened at a standup or review.
type MeetingRecord struct {
	// Type is standup or review.
	Type MeetingType `json:"type"`
	// SprintID is the sprint the meeting belongs to.
	SprintID string `json:"sprint_id"`
	// VirtualHour is the virtual time the meeting was held at.
	VirtualHour float64 `json:"virtual_hour"`
	// Attendees lists the agents that reported.
	Attendees []string `json:"attendees,omitempty"`
	// Notes holds the raw per-agent progress text.
	Notes []string `json:"notes,omitempty"`
	// Decisions lists conclusions drawn from the reports.
	Decisions []string `json:"decisions,omitempty"`
	// Adjustments lists plan changes agreed at the meeting.
	Adjustments []string `json:"adjustments,omitempty"`
	// HeldAt is the real time the meeting executed.
	HeldAt time.Time `json:"held_at"`
}

// CompletionAssessment summarizes sprint health at review time.
type CompletionAssessment struct {
	// TotalTasks is the number of tasks in scope.
	TotalTasks int `json:"total_tasks"`
	// CompletedTasks is how many finished successfully.
	CompletedTasks int `json:"completed_tasks"`
	// InProgressTasks is how many are still running.
	InProgressTasks int `json:"in_progress_tasks"`
	// BlockedTasks is how many cannot currently proceed.
	BlockedTasks int `json:"blocked_tasks"`
	// CompletionRate is completed/total in [0,1].
	CompletionRate float64 `json:"completion_rate"`
	// QualityScore is a [0,1] score derived from the completion rate.
	QualityScore float64 `json:"quality_score"`
	// CriteriaMet records whether the acceptance criteria are satisfied.
	CriteriaMet bool `json:"criteria_met"`
	// POApprovalRequired is set when the plan flags this sprint for sign-off.
	POApprovalRequired bool `json:"po_approval_required"`
}

// ContinuationDecision is the outcome of a review gate.
type ContinuationDecision string

const (
	// AutoContinue lets work proceed without human involvement.
	AutoContinue ContinuationDecision = "auto_continue"
	// StopExecution halts further task execution.
	StopExecution ContinuationDecision = "stop_execution"
	// RequirePOApproval pauses for product-owner sign-off.
	RequirePOApproval ContinuationDecision = "require_po_approval"
	// EscalateToManagement raises the situation beyond the PO.
	EscalateToManagement ContinuationDecision = "escalate_to_management"
)
