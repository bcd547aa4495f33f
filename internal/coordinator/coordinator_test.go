package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/squadronhq/squadron/pkg/errs"
)

// stubSource maps task ids to required resources.
type stubSource map[string][]string

func (s stubSource) RequiredResources(taskID string) ([]string, error) {
	res, ok := s[taskID]
	if !ok {
		return nil, errs.E(errs.KindNotFound, "stub", "task %q not found", taskID)
	}
	return res, nil
}

func TestLockExclusivityAndQueuedRetry(t *testing.T) {
	src := stubSource{"t1": {"cpu"}, "t2": {"cpu"}}
	c := New(src, 0, nil)

	if err := c.RequestTaskExecution("a", "t1", []string{"cpu"}); err != nil {
		t.Fatalf("first acquisition should succeed: %v", err)
	}

	err := c.RequestTaskExecution("b", "t2", []string{"cpu"})
	if !errs.IsKind(err, errs.KindConflictDetected) {
		t.Fatalf("expected conflict_detected, got %v", err)
	}
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatal("expected a ConflictError in the chain")
	}
	if len(conflict.Held) != 1 || conflict.Held[0].Resource != "cpu" || conflict.Held[0].Holder != "a" {
		t.Errorf("conflict should name cpu held by a, got %+v", conflict.Held)
	}
	if c.QueuedCount() != 1 {
		t.Errorf("conflicting request should be queued, count = %d", c.QueuedCount())
	}

	// Completion releases the lock and replays the queue; b is admitted.
	if err := c.NotifyTaskCompletion("a", "t1", []string{"cpu"}); err != nil {
		t.Fatalf("NotifyTaskCompletion: %v", err)
	}
	if c.QueuedCount() != 0 {
		t.Errorf("queue should drain after release, count = %d", c.QueuedCount())
	}
	locks := c.HeldLocks()
	if info, ok := locks["cpu"]; !ok || info.Holder != "b" {
		t.Errorf("cpu should now be held by b, locks = %+v", locks)
	}
	ops := c.ActiveOperations()
	if len(ops) != 1 || ops[0].AgentID != "b" || ops[0].TaskID != "t2" {
		t.Errorf("expected one active operation for b/t2, got %+v", ops)
	}
}

func TestRetryRefetchesResourcesFromSource(t *testing.T) {
	// Queue b with stale data; the source says t2 actually needs disk only.
	src := stubSource{"t2": {"disk"}}
	c := New(src, 0, nil)

	c.RequestTaskExecution("a", "t1", []string{"cpu", "disk"})
	c.RequestTaskExecution("b", "t2", []string{"cpu"})

	// Releasing only disk frees what t2 truly requires even though the
	// queued request named cpu.
	c.NotifyTaskCompletion("a", "t1", []string{"disk"})

	locks := c.HeldLocks()
	if info, ok := locks["disk"]; !ok || info.Holder != "b" {
		t.Errorf("disk should be held by b after re-fetch, locks = %+v", locks)
	}
	if info := locks["cpu"]; info.Holder != "a" {
		t.Errorf("cpu should remain with a, locks = %+v", locks)
	}
}

func TestStillConflictingRequestsAreRequeued(t *testing.T) {
	src := stubSource{"t2": {"cpu"}, "t3": {"gpu"}}
	c := New(src, 0, nil)

	c.RequestTaskExecution("a", "t1", []string{"cpu", "gpu"})
	c.RequestTaskExecution("b", "t2", []string{"cpu"})
	c.RequestTaskExecution("d", "t3", []string{"gpu"})

	// a releases only gpu; d gets in, b stays queued.
	c.NotifyTaskCompletion("a", "t1", []string{"gpu"})

	if c.QueuedCount() != 1 {
		t.Errorf("b should still be queued, count = %d", c.QueuedCount())
	}
	if info := c.HeldLocks()["gpu"]; info.Holder != "d" {
		t.Errorf("gpu should be held by d, got %+v", info)
	}
}

func TestDeadlockSymmetry(t *testing.T) {
	c := New(nil, 0, nil)

	// a holds r1 and queues for r2; b holds r2 and queues for r1.
	c.RequestTaskExecution("a", "t1", []string{"r1"})
	c.RequestTaskExecution("b", "t2", []string{"r2"})
	if err := c.RequestTaskExecution("a", "t3", []string{"r2"}); !errs.IsKind(err, errs.KindConflictDetected) {
		t.Fatalf("expected conflict for a->r2, got %v", err)
	}
	if err := c.RequestTaskExecution("b", "t4", []string{"r1"}); !errs.IsKind(err, errs.KindConflictDetected) {
		t.Fatalf("expected conflict for b->r1, got %v", err)
	}

	cycle := c.DetectDeadlock()
	found := map[string]bool{}
	for _, id := range cycle {
		found[id] = true
	}
	if !found["a"] || !found["b"] {
		t.Errorf("deadlock cycle should contain a and b, got %v", cycle)
	}
}

func TestRequestRefusedWhenAlreadyInCycle(t *testing.T) {
	c := New(nil, 0, nil)

	c.RequestTaskExecution("a", "t1", []string{"r1"})
	c.RequestTaskExecution("b", "t2", []string{"r2"})
	c.RequestTaskExecution("a", "t3", []string{"r2"})
	c.RequestTaskExecution("b", "t4", []string{"r1"})

	// a is caught in the a<->b wait cycle; a fresh request is refused.
	err := c.RequestTaskExecution("a", "t5", []string{"r3"})
	if !errs.IsKind(err, errs.KindDeadlockDetected) {
		t.Fatalf("expected deadlock_detected, got %v", err)
	}
	var dl *DeadlockError
	if !errors.As(err, &dl) {
		t.Fatal("expected a DeadlockError in the chain")
	}

	// An uninvolved agent is not refused.
	if err := c.RequestTaskExecution("e", "t6", []string{"r3"}); err != nil {
		t.Errorf("uninvolved agent should be admitted: %v", err)
	}
}

func TestValidation(t *testing.T) {
	c := New(nil, 0, nil)

	if err := c.RequestTaskExecution("", "t1", nil); !errs.IsKind(err, errs.KindInvalidInput) {
		t.Errorf("empty agent: expected invalid_input, got %v", err)
	}
	if err := c.NotifyTaskCompletion("a", "", nil); !errs.IsKind(err, errs.KindInvalidInput) {
		t.Errorf("empty task: expected invalid_input, got %v", err)
	}
}

func TestResolveConflictPolicy(t *testing.T) {
	c := New(nil, 0, nil)

	if got := c.ResolveConflict(ConflictResource, nil); got.Strategy != "queue" {
		t.Errorf("resource conflicts should queue, got %q", got.Strategy)
	}
	if got := c.ResolveConflict(ConflictTaskVsTask, nil); got.Strategy != "parallel" {
		t.Errorf("task conflicts should run parallel, got %q", got.Strategy)
	}
	got := c.ResolveConflict(ConflictAgentVsAgent, []string{"a", "b"})
	if got.Strategy != "delegate" || got.Assignee != "a" {
		t.Errorf("agent conflicts should delegate to the first agent, got %+v", got)
	}
}

func TestSynchronizationBarrier(t *testing.T) {
	c := New(nil, 0, nil)
	participants := []string{"a", "b"}

	done := make(chan error, 1)
	go func() {
		done <- c.RequestSynchronization(context.Background(), "a", participants, "merge", time.Second)
	}()

	// Give the first waiter time to register, then complete the barrier.
	time.Sleep(20 * time.Millisecond)
	if err := c.RequestSynchronization(context.Background(), "b", participants, "merge", time.Second); err != nil {
		t.Fatalf("second arrival should complete the barrier: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("first waiter should be released: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("first waiter never released")
	}
}

func TestSynchronizationTimeout(t *testing.T) {
	c := New(nil, 0, nil)

	err := c.RequestSynchronization(context.Background(), "a", []string{"a", "b"}, "merge", 30*time.Millisecond)
	if !errs.IsKind(err, errs.KindResourceUnavailable) {
		t.Fatalf("expected resource_unavailable on timeout, got %v", err)
	}
}

func TestSynchronizationValidation(t *testing.T) {
	c := New(nil, 0, nil)
	ctx := context.Background()

	if err := c.RequestSynchronization(ctx, "", []string{"a"}, "r", time.Second); !errs.IsKind(err, errs.KindInvalidInput) {
		t.Errorf("empty agent: expected invalid_input, got %v", err)
	}
	if err := c.RequestSynchronization(ctx, "a", nil, "r", time.Second); !errs.IsKind(err, errs.KindInvalidInput) {
		t.Errorf("no participants: expected invalid_input, got %v", err)
	}
	if err := c.RequestSynchronization(ctx, "a", []string{"a"}, "r", 0); !errs.IsKind(err, errs.KindInvalidInput) {
		t.Errorf("zero timeout: expected invalid_input, got %v", err)
	}
}

func TestStatsAndEfficiency(t *testing.T) {
	c := New(nil, 0, nil)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c.SetClock(func() time.Time { return now })

	c.RequestTaskExecution("a", "t1", []string{"r1"})
	c.RequestTaskExecution("b", "t2", []string{"r2"})
	c.RequestTaskExecution("d", "t3", []string{"r1"})

	stats := c.Stats()
	if stats.ActiveOperations != 2 || stats.HeldLocks != 2 || stats.QueuedRequests != 1 || stats.DistinctHolders != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}

	now = now.Add(10 * time.Minute)
	c.NotifyTaskCompletion("a", "t1", []string{"r1"})

	eff := c.EfficiencyAnalysis()
	if eff.AvgExecution != 10*time.Minute {
		t.Errorf("expected 10m average execution, got %s", eff.AvgExecution)
	}
	history := c.History()
	if len(history) != 1 || history[0].AgentID != "a" {
		t.Errorf("expected one history record for a, got %+v", history)
	}
}

func TestEventsEmitted(t *testing.T) {
	c := New(nil, 0, nil)
	c.RequestTaskExecution("a", "t1", []string{"r1"})

	select {
	case event := <-c.Events():
		if event.Kind != EventTaskStarted || event.AgentID != "a" {
			t.Errorf("unexpected event %+v", event)
		}
	default:
		t.Fatal("expected a task_started event")
	}
}

func TestReset(t *testing.T) {
	c := New(nil, 0, nil)
	c.RequestTaskExecution("a", "t1", []string{"r1"})
	c.RequestTaskExecution("b", "t2", []string{"r1"})

	c.Reset()
	stats := c.Stats()
	if stats.ActiveOperations != 0 || stats.HeldLocks != 0 || stats.QueuedRequests != 0 {
		t.Errorf("reset should clear all tables, got %+v", stats)
	}
}
