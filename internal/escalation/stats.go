package escalation

import (
	"sort"
	"time"

	"github.com/squadronhq/squadron/pkg/models"
)

// BlockerCount is a blocker type and how often it appeared in resolved
// escalations.
type BlockerCount struct {
	Blocker models.BlockerType
	Count   int
}

// Stats summarizes the escalation workload.
type Stats struct {
	Active              int
	Resolved            int
	BySeverity          map[string]int
	RecoverySuccessRate float64
	AvgResolution       time.Duration
	TopBlockers         []BlockerCount
}

// History snapshots the resolution records, oldest first.
func (e *Engine) History() []models.ResolutionRecord {
	return e.history.Snapshot()
}

// Stats derives counts, recovery success rate, average resolution time,
// and the most common blocker types from the resolution history.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	active := len(e.active)
	attempts := e.recoveryAttempts
	successes := e.recoverySuccesses
	e.mu.RUnlock()

	records := e.history.Snapshot()
	stats := Stats{
		Active:     active,
		Resolved:   len(records),
		BySeverity: make(map[string]int),
	}
	if attempts > 0 {
		stats.RecoverySuccessRate = float64(successes) / float64(attempts)
	}

	blockers := make(map[models.BlockerType]int)
	var totalResolution time.Duration
	for _, rec := range records {
		stats.BySeverity[rec.Severity.String()]++
		blockers[rec.BlockerType]++
		totalResolution += rec.ResolvedAt.Sub(rec.DetectedAt)
	}
	if len(records) > 0 {
		stats.AvgResolution = totalResolution / time.Duration(len(records))
	}

	for blocker, count := range blockers {
		stats.TopBlockers = append(stats.TopBlockers, BlockerCount{Blocker: blocker, Count: count})
	}
	sort.Slice(stats.TopBlockers, func(i, j int) bool {
		if stats.TopBlockers[i].Count != stats.TopBlockers[j].Count {
			return stats.TopBlockers[i].Count > stats.TopBlockers[j].Count
		}
		return stats.TopBlockers[i].Blocker < stats.TopBlockers[j].Blocker
	})
	return stats
}
