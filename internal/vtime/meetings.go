package vtime

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/squadronhq/squadron/internal/graph"
	"github.com/squadronhq/squadron/internal/logging"
	"github.com/squadronhq/squadron/pkg/errs"
	"github.com/squadronhq/squadron/pkg/models"
)

// Assessment thresholds used when computing a completion assessment.
const (
	criteriaCompletionRate = 0.95
	approvalQualityFloor   = 0.7
)

// TaskStatsSource answers the task counts a review needs. Satisfied by the
// task graph.
type TaskStatsSource interface {
	Stats() graph.Stats
}

// Scheduler runs standups and reviews on the virtual clock.
type Scheduler struct {
	mu       sync.RWMutex
	calc     *Calculator
	meetings []models.MeetingRecord

	log   *logging.Logger
	clock func() time.Time
}

// NewScheduler creates a meeting scheduler on top of a calculator.
func NewScheduler(calc *Calculator, log *logging.Logger) *Scheduler {
	if log == nil {
		log = logging.Nop()
	}
	return &Scheduler{calc: calc, log: log, clock: time.Now}
}

// SetClock overrides the time source. Used by tests.
func (s *Scheduler) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if clock != nil {
		s.clock = clock
	}
}

// NextStandup returns the virtual hour of the next standup: the next
// multiple of the standup interval strictly after the current hour.
func (s *Scheduler) NextStandup(currentVirtualHours float64) float64 {
	interval := s.calc.Config().StandupIntervalHours
	return (math.Floor(currentVirtualHours/interval) + 1) * interval
}

// ExecuteStandup collects per-agent progress text and derives decisions
// and adjustments from keyword scans of the reports.
func (s *Scheduler) ExecuteStandup(sprintID string, reports map[string]string) (*models.MeetingRecord, error) {
	const op = "vtime.ExecuteStandup"

	ctx, err := s.calc.CurrentTime(sprintID)
	if err != nil {
		return nil, errs.Wrap(errs.KindNotFound, op, err)
	}

	attendees := make([]string, 0, len(reports))
	for agent := range reports {
		attendees = append(attendees, agent)
	}
	sort.Strings(attendees)

	record := models.MeetingRecord{
		Type:        models.MeetingStandup,
		SprintID:    sprintID,
		VirtualHour: ctx.CurrentVirtualHours,
		Attendees:   attendees,
		HeldAt:      s.clock(),
	}
	for _, agent := range attendees {
		text := reports[agent]
		record.Notes = append(record.Notes, agent+": "+text)
		lower := strings.ToLower(text)
		if strings.Contains(lower, "blocked") {
			record.Decisions = append(record.Decisions, "unblock "+agent)
		}
		if strings.Contains(lower, "delay") {
			record.Adjustments = append(record.Adjustments, "revisit estimates for "+agent)
		}
		if strings.Contains(lower, "risk") {
			record.Decisions = append(record.Decisions, "review risk raised by "+agent)
		}
	}

	s.mu.Lock()
	s.meetings = append(s.meetings, record)
	s.mu.Unlock()

	s.log.Infof("vtime", "standup for %s at vhour %.1f: %d attendee(s), %d decision(s)",
		sprintID, record.VirtualHour, len(attendees), len(record.Decisions))
	return &record, nil
}

// AssessCompletion derives a completion assessment from the current task
// counts. The quality score scales with the completion rate; acceptance
// criteria require a near-complete, unblocked sprint.
func (s *Scheduler) AssessCompletion(src TaskStatsSource) models.CompletionAssessment {
	stats := src.Stats()

	a := models.CompletionAssessment{
		TotalTasks:      stats.TotalTasks,
		CompletedTasks:  stats.ByStatus[models.TaskStatusCompleted],
		InProgressTasks: stats.ByStatus[models.TaskStatusInProgress],
		BlockedTasks:    stats.BlockedTasks,
	}
	if a.TotalTasks > 0 {
		a.CompletionRate = float64(a.CompletedTasks) / float64(a.TotalTasks)
	}
	a.QualityScore = 0.5 + 0.45*a.CompletionRate
	a.CriteriaMet = a.CompletionRate >= criteriaCompletionRate && a.BlockedTasks == 0
	a.POApprovalRequired = a.BlockedTasks > 0 || a.QualityScore < approvalQualityFloor
	return a
}

// TriggerReview runs the sprint review gate: assess completion, decide
// continuation, and record the meeting.
func (s *Scheduler) TriggerReview(sprintID string, src TaskStatsSource) (models.CompletionAssessment, models.ContinuationDecision, error) {
	const op = "vtime.TriggerReview"

	ctx, err := s.calc.CurrentTime(sprintID)
	if err != nil {
		return models.CompletionAssessment{}, "", errs.Wrap(errs.KindNotFound, op, err)
	}

	assessment := s.AssessCompletion(src)
	decision := DecideContinuation(assessment)

	record := models.MeetingRecord{
		Type:        models.MeetingReview,
		SprintID:    sprintID,
		VirtualHour: ctx.CurrentVirtualHours,
		Decisions:   []string{string(decision)},
		HeldAt:      s.clock(),
	}
	s.mu.Lock()
	s.meetings = append(s.meetings, record)
	s.mu.Unlock()

	s.log.Infof("vtime", "review for %s: %.0f%% complete, decision %s",
		sprintID, assessment.CompletionRate*100, decision)
	return assessment, decision, nil
}

// Meetings snapshots the recorded meetings, oldest first.
func (s *Scheduler) Meetings() []models.MeetingRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.MeetingRecord, len(s.meetings))
	copy(out, s.meetings)
	return out
}
