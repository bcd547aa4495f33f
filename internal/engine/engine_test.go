package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squadronhq/squadron/internal/store"
	"github.com/squadronhq/squadron/internal/tracker"
	"github.com/squadronhq/squadron/pkg/errs"
	"github.com/squadronhq/squadron/pkg/models"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(nil)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(e.Stop)
	return e
}

func addTask(t *testing.T, e *Engine, id string, resources ...string) {
	t.Helper()
	require.NoError(t, e.AddTask(&models.Task{
		ID: id, Title: id, RequiredResources: resources,
		EstimatedDuration: time.Hour,
	}))
}

func TestExecutionFlow(t *testing.T) {
	e := newEngine(t)

	addTask(t, e, "t1", "repo")
	addTask(t, e, "t2", "repo")
	require.NoError(t, e.AddDependency("t2", "t1", models.DependencyHard))

	// t1 runs; t2 is gated on it.
	require.NoError(t, e.RequestTaskExecution("a", "t1"))
	task, err := e.Graph().GetTask("t1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusInProgress, task.Status)
	assert.Equal(t, "a", task.AssignedAgent)

	// Another agent wanting the same resource is queued.
	err = e.RequestTaskExecution("b", "t2")
	assert.True(t, errs.IsKind(err, errs.KindConflictDetected))

	// Completion unblocks t2 and hands the lock to the queued agent.
	unblocked, err := e.CompleteTask("a", "t1")
	require.NoError(t, err)
	require.Len(t, unblocked, 1)
	assert.Equal(t, "t2", unblocked[0].ID)

	locks := e.Coordinator().HeldLocks()
	require.Contains(t, locks, "repo")
	assert.Equal(t, "b", locks["repo"].Holder)
}

func TestReplayAdmissionMarksTaskStarted(t *testing.T) {
	e := newEngine(t)

	addTask(t, e, "t1", "repo")
	addTask(t, e, "t2", "repo")

	require.NoError(t, e.RequestTaskExecution("a", "t1"))
	err := e.RequestTaskExecution("b", "t2")
	require.True(t, errs.IsKind(err, errs.KindConflictDetected))

	// Completing t1 admits b's queued request during replay; the drain
	// loop must move t2 into in_progress and record the assignee.
	_, err = e.CompleteTask("a", "t1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		task, err := e.Graph().GetTask("t2")
		return err == nil && task.Status == models.TaskStatusInProgress && task.AssignedAgent == "b"
	}, 2*time.Second, 10*time.Millisecond, "replayed admission left t2 pending and unassigned")

	// A pending-but-locked t2 must not be offered to a third agent.
	exec := e.Graph().ExecutableTasks()
	for _, task := range exec {
		assert.NotEqual(t, "t2", task.ID)
	}
}

func TestBusForwardsComponentEvents(t *testing.T) {
	e := newEngine(t)
	tasks := e.Subscribe(TopicTasks)

	addTask(t, e, "t1")

	select {
	case msg := <-tasks:
		assert.Equal(t, TopicTasks, msg.Topic)
	case <-time.After(time.Second):
		t.Fatal("task change never reached the bus")
	}
}

func TestSprintFlow(t *testing.T) {
	e := newEngine(t)

	ctx, err := e.StartSprint("s1")
	require.NoError(t, err)
	assert.True(t, ctx.Active)
	// Standups across the sprint plus the final review.
	assert.Equal(t, 5, e.Timers().Pending("s1"))

	addTask(t, e, "t1")
	_, err = e.CompleteTask("a", "t1")
	require.NoError(t, err)
	progress := 80.0
	require.NoError(t, e.Agents().UpdateState("a", tracker.Update{
		Status: models.AgentStatusWorking, Progress: &progress,
	}))

	record, err := e.RunStandup("s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, record.Attendees)

	assessment, decision, err := e.RunReview("s1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, assessment.CompletionRate)
	assert.Equal(t, models.AutoContinue, decision)
}

func TestHealthCheck(t *testing.T) {
	e := newEngine(t)

	addTask(t, e, "t1")
	addTask(t, e, "t2")
	require.NoError(t, e.AddDependency("t2", "t1", models.DependencyHard))

	report, err := e.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Healthy())
	assert.Equal(t, []string{"t2"}, report.BlockedTasks)
}

func TestPersistenceMirrorsTaskChanges(t *testing.T) {
	st, err := store.Open(":memory:", nil)
	require.NoError(t, err)

	e := New(nil, WithStore(st))
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(e.Stop)

	addTask(t, e, "t1")

	// The drain goroutine persists asynchronously.
	require.Eventually(t, func() bool {
		task, err := st.GetTask(context.Background(), "t1")
		return err == nil && task.Status == models.TaskStatusPending
	}, 2*time.Second, 20*time.Millisecond)
}
