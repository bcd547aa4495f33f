package models

import "time"

// Severity classifies how urgently a detected problem needs human attention.
// Values are ordered: higher means more urgent.
type Severity int

const (
	// SeverityMinor is a cosmetic or informational issue.
	SeverityMinor Severity = iota + 1
	// SeverityModerate is a problem worth tracking but not blocking.
	SeverityModerate
	// SeverityImportant is a problem that needs a decision soon.
	SeverityImportant
	// SeveritySevere is a problem actively blocking progress.
	SeveritySevere
	// SeverityCritical is a problem endangering the whole session.
	SeverityCritical
)

// String returns a human-readable name for the severity.
func (s Severity) String() string {
	switch s {
	case SeverityMinor:
		return "minor"
	case SeverityModerate:
		return "moderate"
	case SeverityImportant:
		return "important"
	case SeveritySevere:
		return "severe"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Valid returns true if the severity is a known value.
func (s Severity) Valid() bool {
	return s >= SeverityMinor && s <= SeverityCritical
}

// ParseSeverity converts a severity name back to its value.
// Unknown names map to SeverityModerate.
func ParseSeverity(name string) Severity {
	switch name {
	case "minor":
		return SeverityMinor
	case "moderate":
		return SeverityModerate
	case "important":
		return SeverityImportant
	case "severe":
		return SeveritySevere
	case "critical":
		return SeverityCritical
	default:
		return SeverityModerate
	}
}

// BlockerType categorizes what is standing in the way of progress.
type BlockerType string

const (
	// BlockerTechnical is a code or environment problem.
	BlockerTechnical BlockerType = "technical"
	// BlockerDependency is an unmet task dependency.
	BlockerDependency BlockerType = "dependency"
	// BlockerResource is contention over a shared resource.
	BlockerResource BlockerType = "resource"
	// BlockerExternal is something outside the system (API, human input).
	BlockerExternal BlockerType = "external"
	// BlockerUnknown is anything that could not be categorized.
	BlockerUnknown BlockerType = "unknown"
)

// EscalationContext carries everything known about an active escalation.
type EscalationContext struct {
	// ID is the unique identifier for this escalation.
	ID string `json:"id"`
	// TaskID is the task the problem was detected on.
	TaskID string `json:"task_id"`
	// AgentID is the agent that hit the problem.
	AgentID string `json:"agent_id"`
	// Severity is the classified urgency.
	Severity Severity `json:"severity"`
	// ImpactScope describes how far the problem reaches (task/project/organization).
	ImpactScope string `json:"impact_scope"`
	// TimeConstraint describes how quickly a decision is needed.
	TimeConstraint string `json:"time_constraint"`
	// RiskLevel describes the downside of leaving the problem unresolved.
	RiskLevel string `json:"risk_level"`
	// BlockerType categorizes what is blocking progress.
	BlockerType BlockerType `json:"blocker_type"`
	// RecoveryAttempts counts auto-recovery tries so far.
	RecoveryAttempts int `json:"recovery_attempts"`
	// DependentTasks is how many tasks transitively wait on the affected one.
	DependentTasks int `json:"dependent_tasks"`
	// Description is the free-text problem report.
	Description string `json:"description"`
	// DetectedAt is when the escalation was created.
	DetectedAt time.Time `json:"detected_at"`
	// RequiredActions lists what must happen for resolution.
	RequiredActions []string `json:"required_actions"`
	// EstimatedResolution is the expected time to resolve.
	EstimatedResolution time.Duration `json:"estimated_resolution"`
}

// Clone returns a deep copy of the escalation context.
func (e *EscalationContext) Clone() *EscalationContext {
	if e == nil {
		return nil
	}
	cp := *e
	if e.RequiredActions != nil {
		cp.RequiredActions = append([]string(nil), e.RequiredActions...)
	}
	return &cp
}

// ResolutionMethod records how an escalation was closed out.
type ResolutionMethod string

const (
	// ResolvedByAutoRecovery means a recovery strategy succeeded.
	ResolvedByAutoRecovery ResolutionMethod = "auto_recovery"
	// ResolvedByPODecision means a product owner made the call.
	ResolvedByPODecision ResolutionMethod = "po_decision"
	// ResolvedByEmergency means the emergency response path was taken.
	ResolvedByEmergency ResolutionMethod = "emergency_response"
)

// ResolutionRecord is the single history entry appended when an
// escalation is resolved.
type ResolutionRecord struct {
	// EscalationID identifies the resolved escalation.
	EscalationID string `json:"escalation_id"`
	// TaskID is the task the escalation was about.
	TaskID string `json:"task_id"`
	// Severity is the severity at resolution time.
	Severity Severity `json:"severity"`
	// Method is how the escalation was resolved.
	Method ResolutionMethod `json:"method"`
	// ActionTaken describes what was done.
	ActionTaken string `json:"action_taken"`
	// BlockerType is carried over for blocker statistics.
	BlockerType BlockerType `json:"blocker_type"`
	// HumanNotified records whether a human was informed.
	HumanNotified bool `json:"human_notified"`
	// ImpactMitigated records whether the impact was contained.
	ImpactMitigated bool `json:"impact_mitigated"`
	// DetectedAt is when the escalation was first raised.
	DetectedAt time.Time `json:"detected_at"`
	// ResolvedAt is when the escalation was closed.
	ResolvedAt time.Time `json:"resolved_at"`
}
