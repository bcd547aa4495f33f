package vtime

import "github.com/squadronhq/squadron/pkg/models"

// Continuation thresholds. Checked in DecideContinuation in a fixed order.
const (
	autoContinueRate  = 0.9
	unattendedRate    = 0.7
	escalateBelowRate = 0.3
)

// DecideContinuation maps a completion assessment to the review gate's
// outcome. Rule order matters: a blocked-heavy sprint stops even when its
// completion rate would otherwise escalate or continue.
func DecideContinuation(a models.CompletionAssessment) models.ContinuationDecision {
	if float64(a.BlockedTasks) > float64(a.CompletedTasks)/2 {
		return models.StopExecution
	}
	if a.CompletionRate < escalateBelowRate {
		return models.EscalateToManagement
	}
	if a.CompletionRate >= autoContinueRate && a.CriteriaMet {
		return models.AutoContinue
	}
	if a.CompletionRate >= unattendedRate && !a.POApprovalRequired {
		return models.AutoContinue
	}
	// Borderline: quality under par, criteria unmet, or flagged for sign-off.
	return models.RequirePOApproval
}
