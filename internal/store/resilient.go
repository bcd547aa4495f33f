package store

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/squadronhq/squadron/internal/logging"
	"github.com/squadronhq/squadron/pkg/errs"
	"github.com/squadronhq/squadron/pkg/models"
)

// RetryConfig configures exponential-backoff retries on store operations.
type RetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	Multiplier      float64
}

// DefaultRetryConfig returns the default retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		MaxElapsedTime:  15 * time.Second,
		Multiplier:      2.0,
	}
}

// Resilient wraps a Store with a circuit breaker and bounded retries.
// Caller-fault errors (invalid input, not found) pass through untouched;
// transient failures are retried until the budget runs out, after which
// the breaker opens and fails fast.
type Resilient struct {
	inner Store
	cb    *gobreaker.CircuitBreaker
	retry RetryConfig
	log   *logging.Logger
}

// NewResilient wraps a store.
func NewResilient(inner Store, retry RetryConfig, log *logging.Logger) *Resilient {
	if log == nil {
		log = logging.Nop()
	}
	if retry == (RetryConfig{}) {
		retry = DefaultRetryConfig()
	}
	r := &Resilient{inner: inner, retry: retry, log: log}
	r.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "store",
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnf("store", "circuit breaker %s: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// Caller-fault errors do not count against the breaker.
			if err == nil {
				return true
			}
			kind := errs.KindOf(err)
			return kind == errs.KindInvalidInput || kind == errs.KindNotFound
		},
	})
	return r
}

// do runs fn through the breaker with exponential-backoff retries.
func (r *Resilient) do(ctx context.Context, op string, fn func() error) error {
	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		_, err := r.cb.Execute(func() (any, error) { return nil, fn() })
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(err)
		}
		switch errs.KindOf(err) {
		case errs.KindInvalidInput, errs.KindNotFound:
			return backoff.Permanent(err)
		}
		r.log.Warnf("store", "%s failed, will retry: %v", op, err)
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.retry.InitialInterval
	policy.MaxInterval = r.retry.MaxInterval
	policy.MaxElapsedTime = r.retry.MaxElapsedTime
	policy.Multiplier = r.retry.Multiplier

	return backoff.Retry(operation, backoff.WithContext(policy, ctx))
}

func (r *Resilient) InitializeSchema(ctx context.Context) error {
	return r.do(ctx, "InitializeSchema", func() error {
		return r.inner.InitializeSchema(ctx)
	})
}

func (r *Resilient) SaveTask(ctx context.Context, task *models.Task) (int64, error) {
	var n int64
	err := r.do(ctx, "SaveTask", func() error {
		var inner error
		n, inner = r.inner.SaveTask(ctx, task)
		return inner
	})
	return n, err
}

func (r *Resilient) GetTask(ctx context.Context, id string) (*models.Task, error) {
	var task *models.Task
	err := r.do(ctx, "GetTask", func() error {
		var inner error
		task, inner = r.inner.GetTask(ctx, id)
		return inner
	})
	return task, err
}

func (r *Resilient) SaveDependency(ctx context.Context, taskID, dependsOn string, kind models.DependencyKind) (int64, error) {
	var n int64
	err := r.do(ctx, "SaveDependency", func() error {
		var inner error
		n, inner = r.inner.SaveDependency(ctx, taskID, dependsOn, kind)
		return inner
	})
	return n, err
}

func (r *Resilient) ExecutableTasks(ctx context.Context) ([]*models.Task, error) {
	var tasks []*models.Task
	err := r.do(ctx, "ExecutableTasks", func() error {
		var inner error
		tasks, inner = r.inner.ExecutableTasks(ctx)
		return inner
	})
	return tasks, err
}

func (r *Resilient) ListTasks(ctx context.Context) ([]*models.Task, error) {
	var tasks []*models.Task
	err := r.do(ctx, "ListTasks", func() error {
		var inner error
		tasks, inner = r.inner.ListTasks(ctx)
		return inner
	})
	return tasks, err
}

func (r *Resilient) ListDependencies(ctx context.Context) ([]models.DependencyEdge, error) {
	var edges []models.DependencyEdge
	err := r.do(ctx, "ListDependencies", func() error {
		var inner error
		edges, inner = r.inner.ListDependencies(ctx)
		return inner
	})
	return edges, err
}

func (r *Resilient) SaveAgentHistory(ctx context.Context, state *models.AgentState) (int64, error) {
	var n int64
	err := r.do(ctx, "SaveAgentHistory", func() error {
		var inner error
		n, inner = r.inner.SaveAgentHistory(ctx, state)
		return inner
	})
	return n, err
}

func (r *Resilient) ProgressSummary(ctx context.Context) (*models.ProgressSummary, error) {
	var summary *models.ProgressSummary
	err := r.do(ctx, "ProgressSummary", func() error {
		var inner error
		summary, inner = r.inner.ProgressSummary(ctx)
		return inner
	})
	return summary, err
}

func (r *Resilient) Close() error {
	return r.inner.Close()
}
