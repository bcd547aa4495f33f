package tracker

import (
	"sync"
	"testing"
	"time"

	"github.com/squadronhq/squadron/pkg/errs"
	"github.com/squadronhq/squadron/pkg/models"
)

func ptr[T any](v T) *T { return &v }

func TestUpdateStateRegistersAndMutates(t *testing.T) {
	tr := New(time.Minute, nil)

	err := tr.UpdateState("agent-1", Update{
		Status:      models.AgentStatusWorking,
		Progress:    ptr(25.0),
		CurrentTask: ptr("t-1"),
		WorkingDir:  ptr("/work/agent-1"),
		PID:         ptr(4242),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	state, err := tr.GetState("agent-1")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if state.Status != models.AgentStatusWorking || state.Progress != 25 {
		t.Errorf("unexpected state: %+v", state)
	}
	if state.CurrentTask != "t-1" || state.PID != 4242 {
		t.Errorf("optional fields not applied: %+v", state)
	}

	// A later update with nil optionals keeps existing values.
	if err := tr.UpdateState("agent-1", Update{Status: models.AgentStatusBlocked}); err != nil {
		t.Fatal(err)
	}
	state, _ = tr.GetState("agent-1")
	if state.Progress != 25 || state.CurrentTask != "t-1" {
		t.Errorf("nil optional fields should not clear values: %+v", state)
	}
}

func TestConcurrentUpdatesOneAgent(t *testing.T) {
	tr := New(time.Minute, nil)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				err := tr.UpdateState("agent-1", Update{
					Status:   models.AgentStatusWorking,
					Progress: ptr(float64((g*200 + i) % 101)),
				})
				if err != nil {
					t.Errorf("UpdateState: %v", err)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	state, err := tr.GetState("agent-1")
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if state.Progress < 0 || state.Progress > 100 {
		t.Errorf("progress out of range after concurrent updates: %+v", state)
	}
}

func TestUpdateStateValidation(t *testing.T) {
	tr := New(time.Minute, nil)

	if err := tr.UpdateState("", Update{Status: models.AgentStatusIdle}); !errs.IsKind(err, errs.KindInvalidInput) {
		t.Errorf("empty id: expected invalid_input, got %v", err)
	}
	if err := tr.UpdateState("a", Update{Status: "bogus"}); !errs.IsKind(err, errs.KindInvalidInput) {
		t.Errorf("bad status: expected invalid_input, got %v", err)
	}
	if err := tr.UpdateState("a", Update{Status: models.AgentStatusWorking, Progress: ptr(101.0)}); !errs.IsKind(err, errs.KindInvalidInput) {
		t.Errorf("progress > 100: expected invalid_input, got %v", err)
	}
	if err := tr.UpdateState("a", Update{Status: models.AgentStatusWorking, Progress: ptr(-1.0)}); !errs.IsKind(err, errs.KindInvalidInput) {
		t.Errorf("negative progress: expected invalid_input, got %v", err)
	}

	// Failed updates must not register the agent.
	if _, err := tr.GetState("a"); !errs.IsKind(err, errs.KindNotFound) {
		t.Errorf("agent should not exist after failed updates, got %v", err)
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	tr := New(time.Minute, nil)
	tr.UpdateState("a", Update{Status: models.AgentStatusWorking})

	all := tr.AllStates()
	all[0].Status = models.AgentStatusError

	state, _ := tr.GetState("a")
	if state.Status != models.AgentStatusWorking {
		t.Error("AllStates should return defensive copies")
	}
}

func TestByStatusAndActiveCount(t *testing.T) {
	tr := New(time.Minute, nil)
	tr.UpdateState("w1", Update{Status: models.AgentStatusWorking})
	tr.UpdateState("w2", Update{Status: models.AgentStatusWorking})
	tr.UpdateState("b1", Update{Status: models.AgentStatusBlocked})
	tr.UpdateState("i1", Update{Status: models.AgentStatusIdle})

	if got := len(tr.ByStatus(models.AgentStatusWorking)); got != 2 {
		t.Errorf("expected 2 working agents, got %d", got)
	}
	if got := tr.ActiveCount(); got != 3 {
		t.Errorf("expected 3 active agents (working+blocked), got %d", got)
	}
}

func TestAverageProgressOnlyCountsWorking(t *testing.T) {
	tr := New(time.Minute, nil)
	tr.UpdateState("w1", Update{Status: models.AgentStatusWorking, Progress: ptr(40.0)})
	tr.UpdateState("w2", Update{Status: models.AgentStatusWorking, Progress: ptr(60.0)})
	tr.UpdateState("b1", Update{Status: models.AgentStatusBlocked, Progress: ptr(10.0)})

	if got := tr.AverageProgress(); got != 50 {
		t.Errorf("expected average 50, got %.1f", got)
	}

	tr.Reset()
	if got := tr.AverageProgress(); got != 0 {
		t.Errorf("expected 0 with no agents, got %.1f", got)
	}
}

func TestHealthCheckFindsStaleWorkers(t *testing.T) {
	tr := New(time.Minute, nil)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tr.SetClock(func() time.Time { return now })

	tr.UpdateState("fresh", Update{Status: models.AgentStatusWorking})
	tr.UpdateState("quiet", Update{Status: models.AgentStatusWorking})
	tr.UpdateState("idle", Update{Status: models.AgentStatusIdle})

	// Advance past the stale window; refresh only one worker.
	now = now.Add(2 * time.Minute)
	tr.UpdateState("fresh", Update{Status: models.AgentStatusWorking})

	stale := tr.HealthCheck()
	if len(stale) != 1 || stale[0].ID != "quiet" {
		t.Errorf("expected only quiet stale, got %+v", stale)
	}
}

func TestChangeNotifications(t *testing.T) {
	tr := New(time.Minute, nil)
	tr.UpdateState("a", Update{Status: models.AgentStatusWorking})

	select {
	case change := <-tr.Changes():
		if change.AgentID != "a" || change.Status != models.AgentStatusWorking {
			t.Errorf("unexpected change %+v", change)
		}
	default:
		t.Fatal("expected a state-changed notification")
	}
}

func TestRemove(t *testing.T) {
	tr := New(time.Minute, nil)
	tr.UpdateState("a", Update{Status: models.AgentStatusIdle})

	if err := tr.Remove("a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := tr.Remove("a"); !errs.IsKind(err, errs.KindNotFound) {
		t.Errorf("expected not_found, got %v", err)
	}
}
