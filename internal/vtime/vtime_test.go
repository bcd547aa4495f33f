package vtime

import (
	"testing"
	"time"

	"github.com/squadronhq/squadron/internal/graph"
	"github.com/squadronhq/squadron/pkg/errs"
	"github.com/squadronhq/squadron/pkg/models"
)

func testCalc() *Calculator {
	// 1 virtual hour = 1 real minute, 5-day sprints (30 virtual hours).
	return NewCalculator(Config{
		RealPerVirtualHour:   time.Minute,
		DaysPerSprint:        5,
		StandupIntervalHours: 6,
	}, nil)
}

func TestVirtualTimeRoundTrip(t *testing.T) {
	calc := testCalc()

	for _, hours := range []float64{0, 1, 3.5, 6, 12, 30, 60, 7} {
		got := calc.ToVirtualHours(calc.FromVirtualHours(hours))
		if got != hours {
			t.Errorf("round trip of %v hours = %v", hours, got)
		}
	}
}

func TestFromVirtualHoursPicksLargestUnit(t *testing.T) {
	calc := testCalc()

	cases := []struct {
		hours float64
		want  models.VirtualTime
	}{
		{30, models.VirtualSprints(1)},
		{60, models.VirtualSprints(2)},
		{6, models.VirtualDays(1)},
		{12, models.VirtualDays(2)},
		{5, models.VirtualHours(5)},
		{0, models.VirtualHours(0)},
	}
	for _, tc := range cases {
		if got := calc.FromVirtualHours(tc.hours); got != tc.want {
			t.Errorf("FromVirtualHours(%v) = %+v, want %+v", tc.hours, got, tc.want)
		}
	}
}

func TestRealVirtualConversion(t *testing.T) {
	calc := testCalc()

	if got := calc.RealToVirtual(6 * time.Minute); got != models.VirtualDays(1) {
		t.Errorf("6 real minutes should be 1 virtual day, got %+v", got)
	}
	if got := calc.VirtualToReal(models.VirtualSprints(1)); got != 30*time.Minute {
		t.Errorf("1 sprint should be 30 real minutes, got %s", got)
	}
}

func TestSprintLifecycle(t *testing.T) {
	calc := testCalc()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	calc.SetClock(func() time.Time { return now })

	ctx, err := calc.StartSprint("s1")
	if err != nil {
		t.Fatalf("StartSprint: %v", err)
	}
	if ctx.TotalVirtualHours != 30 || !ctx.Active {
		t.Errorf("unexpected sprint context %+v", ctx)
	}
	if _, err := calc.StartSprint("s1"); !errs.IsKind(err, errs.KindInvalidInput) {
		t.Errorf("duplicate start: expected invalid_input, got %v", err)
	}

	// 12 real minutes in = 12 virtual hours.
	now = now.Add(12 * time.Minute)
	ctx, err = calc.CurrentTime("s1")
	if err != nil {
		t.Fatalf("CurrentTime: %v", err)
	}
	if ctx.CurrentVirtualHours != 12 || ctx.ElapsedReal != 12*time.Minute {
		t.Errorf("unexpected refresh %+v", ctx)
	}

	if err := calc.StopSprint("s1"); err != nil {
		t.Fatalf("StopSprint: %v", err)
	}
	if _, err := calc.CurrentTime("s1"); !errs.IsKind(err, errs.KindNotFound) {
		t.Errorf("stopped sprint should be gone, got %v", err)
	}
}

func TestNextStandupIsStrictlyAfter(t *testing.T) {
	sched := NewScheduler(testCalc(), nil)

	cases := []struct {
		current float64
		want    float64
	}{
		{0, 6},
		{5.9, 6},
		{6, 12}, // exactly on a standup: the next one is strictly later
		{13, 18},
	}
	for _, tc := range cases {
		if got := sched.NextStandup(tc.current); got != tc.want {
			t.Errorf("NextStandup(%v) = %v, want %v", tc.current, got, tc.want)
		}
	}
}

func TestExecuteStandupDerivesDecisions(t *testing.T) {
	calc := testCalc()
	sched := NewScheduler(calc, nil)
	calc.StartSprint("s1")

	record, err := sched.ExecuteStandup("s1", map[string]string{
		"alice": "blocked on the schema migration",
		"bob":   "on track, slight delay expected",
		"carol": "done, no concerns",
	})
	if err != nil {
		t.Fatalf("ExecuteStandup: %v", err)
	}
	if record.Type != models.MeetingStandup || len(record.Attendees) != 3 {
		t.Errorf("unexpected record %+v", record)
	}
	if len(record.Decisions) != 1 || record.Decisions[0] != "unblock alice" {
		t.Errorf("expected an unblock decision for alice, got %v", record.Decisions)
	}
	if len(record.Adjustments) != 1 || record.Adjustments[0] != "revisit estimates for bob" {
		t.Errorf("expected an estimate adjustment for bob, got %v", record.Adjustments)
	}

	if _, err := sched.ExecuteStandup("nope", nil); !errs.IsKind(err, errs.KindNotFound) {
		t.Errorf("unknown sprint: expected not_found, got %v", err)
	}
}

type stubStats graph.Stats

func (s stubStats) Stats() graph.Stats { return graph.Stats(s) }

func TestAssessCompletion(t *testing.T) {
	sched := NewScheduler(testCalc(), nil)

	src := stubStats{
		TotalTasks: 10,
		ByStatus: map[models.TaskStatus]int{
			models.TaskStatusCompleted:  10,
			models.TaskStatusInProgress: 0,
		},
		BlockedTasks: 0,
	}
	a := sched.AssessCompletion(src)
	if a.CompletionRate != 1.0 || a.QualityScore != 0.95 {
		t.Errorf("unexpected assessment %+v", a)
	}
	if !a.CriteriaMet || a.POApprovalRequired {
		t.Errorf("fully complete sprint should meet criteria: %+v", a)
	}
}

func TestDecideContinuationScenarios(t *testing.T) {
	// Full completion, high quality, criteria met: continue unattended.
	auto := models.CompletionAssessment{
		CompletionRate: 1.0, QualityScore: 0.95, CriteriaMet: true,
		CompletedTasks: 10,
	}
	if got := DecideContinuation(auto); got != models.AutoContinue {
		t.Errorf("expected auto_continue, got %s", got)
	}

	// Blocked tasks exceed half the completed count: stop, even though the
	// low completion rate would otherwise escalate.
	stuck := models.CompletionAssessment{
		CompletionRate: 0.2, BlockedTasks: 8, CompletedTasks: 2,
	}
	if got := DecideContinuation(stuck); got != models.StopExecution {
		t.Errorf("expected stop_execution, got %s", got)
	}

	// Barely started with nothing blocked: escalate.
	stalled := models.CompletionAssessment{CompletionRate: 0.1, CompletedTasks: 1}
	if got := DecideContinuation(stalled); got != models.EscalateToManagement {
		t.Errorf("expected escalate_to_management, got %s", got)
	}

	// Decent progress but flagged for sign-off: require approval.
	flagged := models.CompletionAssessment{
		CompletionRate: 0.75, QualityScore: 0.8, POApprovalRequired: true,
		CompletedTasks: 6,
	}
	if got := DecideContinuation(flagged); got != models.RequirePOApproval {
		t.Errorf("expected require_po_approval, got %s", got)
	}
}

func TestTriggerReviewRecordsMeeting(t *testing.T) {
	calc := testCalc()
	sched := NewScheduler(calc, nil)
	calc.StartSprint("s1")

	src := stubStats{
		TotalTasks:   4,
		ByStatus:     map[models.TaskStatus]int{models.TaskStatusCompleted: 4},
		BlockedTasks: 0,
	}
	assessment, decision, err := sched.TriggerReview("s1", src)
	if err != nil {
		t.Fatalf("TriggerReview: %v", err)
	}
	if decision != models.AutoContinue {
		t.Errorf("expected auto_continue, got %s", decision)
	}
	if assessment.CompletedTasks != 4 {
		t.Errorf("unexpected assessment %+v", assessment)
	}

	meetings := sched.Meetings()
	if len(meetings) != 1 || meetings[0].Type != models.MeetingReview {
		t.Errorf("expected one review meeting, got %+v", meetings)
	}
}

func TestProcessorDispatchesDueEvents(t *testing.T) {
	p := NewProcessor(nil)

	var handled []TimeEvent
	p.Handle(EventStandupDue, func(e TimeEvent) { handled = append(handled, e) })

	p.Schedule(TimeEvent{Kind: EventStandupDue, SprintID: "s1", VirtualHour: 6})
	p.Schedule(TimeEvent{Kind: EventStandupDue, SprintID: "s1", VirtualHour: 12})
	p.Schedule(TimeEvent{Kind: EventReviewDue, SprintID: "s1", VirtualHour: 30})

	due := p.Process("s1", 12)
	if len(due) != 2 {
		t.Fatalf("expected 2 due events, got %d", len(due))
	}
	if due[0].VirtualHour != 6 || due[1].VirtualHour != 12 {
		t.Errorf("events should dispatch in due order, got %+v", due)
	}
	if len(handled) != 2 {
		t.Errorf("handler should run for each due event, ran %d", len(handled))
	}
	if p.Pending("s1") != 1 {
		t.Errorf("review should remain queued, pending = %d", p.Pending("s1"))
	}
}

func TestProcessorDropsDuplicates(t *testing.T) {
	p := NewProcessor(nil)
	event := TimeEvent{Kind: EventStandupDue, SprintID: "s1", VirtualHour: 6}

	p.Schedule(event)
	p.Schedule(event)
	if p.Pending("s1") != 1 {
		t.Errorf("structural duplicate should be dropped, pending = %d", p.Pending("s1"))
	}

	// Same kind at a different hour is not a duplicate.
	p.Schedule(TimeEvent{Kind: EventStandupDue, SprintID: "s1", VirtualHour: 12})
	if p.Pending("s1") != 2 {
		t.Errorf("distinct events should queue, pending = %d", p.Pending("s1"))
	}
}

func TestProcessorFilters(t *testing.T) {
	p := NewProcessor(nil)
	p.Schedule(TimeEvent{Kind: EventStandupDue, SprintID: "s1", VirtualHour: 6})
	p.Schedule(TimeEvent{Kind: EventReviewDue, SprintID: "s1", VirtualHour: 30})
	p.Schedule(TimeEvent{Kind: EventDeadlineNear, SprintID: "s1", VirtualHour: 24})

	if got := p.ByKind("s1", EventReviewDue); len(got) != 1 {
		t.Errorf("expected one review event, got %+v", got)
	}
	if got := p.InRange("s1", 20, 30); len(got) != 2 {
		t.Errorf("expected two events in [20,30], got %+v", got)
	}

	if err := p.Schedule(TimeEvent{Kind: "bogus", SprintID: "s1"}); !errs.IsKind(err, errs.KindInvalidInput) {
		t.Errorf("unknown kind: expected invalid_input, got %v", err)
	}
}
