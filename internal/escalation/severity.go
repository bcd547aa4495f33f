package escalation

import (
	"strings"

	"github.com/squadronhq/squadron/pkg/models"
)

// severityRule maps keyword signals to a severity. Rules are checked in
// order from most to least urgent; the first match wins.
type severityRule struct {
	keywords []string
	severity models.Severity
}

var severityRules = []severityRule{
	{[]string{"critical", "failure", "fatal", "corrupt"}, models.SeverityCritical},
	{[]string{"error", "exception", "panic", "crash"}, models.SeveritySevere},
	{[]string{"warning", "timeout", "slow", "degraded"}, models.SeverityImportant},
}

// EvaluateSeverity classifies free-text problem content into one of the
// five severities. Text matching no rule is Moderate.
func EvaluateSeverity(description string) models.Severity {
	lower := strings.ToLower(description)
	for _, rule := range severityRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.severity
			}
		}
	}
	return models.SeverityModerate
}

// blockerRule maps keyword signals to a blocker type, checked in order.
type blockerRule struct {
	keywords []string
	blocker  models.BlockerType
}

var blockerRules = []blockerRule{
	{[]string{"dependency", "blocked by", "waiting on", "prerequisite"}, models.BlockerDependency},
	{[]string{"resource", "lock", "conflict", "contention"}, models.BlockerResource},
	{[]string{"api", "network", "external", "service", "upstream"}, models.BlockerExternal},
	{[]string{"error", "exception", "bug", "compile", "test", "crash", "panic"}, models.BlockerTechnical},
}

// classifyBlocker derives what is standing in the way from the description.
func classifyBlocker(description string) models.BlockerType {
	lower := strings.ToLower(description)
	for _, rule := range blockerRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.blocker
			}
		}
	}
	return models.BlockerUnknown
}

// NotificationLevel says who, if anyone, gets told about an escalation.
type NotificationLevel string

const (
	// NotifyNone means escalation handling is disabled.
	NotifyNone NotificationLevel = "none"
	// NotifyLog means the problem is only logged.
	NotifyLog NotificationLevel = "log"
	// NotifyProductOwner means the product owner is asked for a decision.
	NotifyProductOwner NotificationLevel = "product_owner"
	// NotifyEmergency means on-call and management are paged.
	NotifyEmergency NotificationLevel = "emergency"
)

// DetermineNotificationLevel compares a severity against the configured
// threshold. When escalation is disabled the answer is always none.
func (e *Engine) DetermineNotificationLevel(severity models.Severity) NotificationLevel {
	e.mu.RLock()
	cfg := e.cfg
	e.mu.RUnlock()

	if !cfg.Enabled {
		return NotifyNone
	}
	if severity < cfg.NotificationThreshold {
		return NotifyLog
	}
	if severity == models.SeverityCritical {
		return NotifyEmergency
	}
	return NotifyProductOwner
}
