package appointments

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/wolfman30/clinic-scheduling/pkg/logging"
)

// Engine is the function-call contract the transport layer drives.
// *Store implements it; Middleware decorates it.
type Engine interface {
	List(ctx context.Context, filters Filters) ([]Appointment, error)
	Get(ctx context.Context, id string) (Appointment, error)
	Create(ctx context.Context, p Payload, key string) (Appointment, error)
	UpdateStatus(ctx context.Context, id string, status Status, key string) (Appointment, error)
	Delete(ctx context.Context, id string) (bool, error)
	ListWithOverlaps(ctx context.Context, filters Filters) (OverlapReport, error)
	Dashboard(ctx context.Context) (Dashboard, error)
}

// Reviewer serves the administrative review queries.
type Reviewer interface {
	ConflictSummary(ctx context.Context, date string) (ConflictSummary, error)
	TimeSlots(ctx context.Context, date, doctor string) (map[string][]Appointment, error)
}

var (
	_ Engine   = (*Store)(nil)
	_ Reviewer = (*Store)(nil)
)

// Middleware wraps an Engine with cross-cutting behaviour.
type Middleware func(Engine) Engine

// Chain applies mws so the first one is the outermost.
func Chain(e Engine, mws ...Middleware) Engine {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			e = mws[i](e)
		}
	}
	return e
}

// call describes one Engine invocation to an interceptor.
type call struct {
	op string
	// safe is true when repeating the call cannot apply a mutation twice.
	safe bool
}

type aroundFunc func(ctx context.Context, c call, invoke func(context.Context) error) error

// interceptor routes every Engine method through around.
type interceptor struct {
	next   Engine
	around aroundFunc
}

func (i *interceptor) List(ctx context.Context, filters Filters) (out []Appointment, err error) {
	err = i.around(ctx, call{op: "list", safe: true}, func(ctx context.Context) error {
		var callErr error
		out, callErr = i.next.List(ctx, filters)
		return callErr
	})
	return out, err
}

func (i *interceptor) Get(ctx context.Context, id string) (out Appointment, err error) {
	err = i.around(ctx, call{op: "get", safe: true}, func(ctx context.Context) error {
		var callErr error
		out, callErr = i.next.Get(ctx, id)
		return callErr
	})
	return out, err
}

func (i *interceptor) Create(ctx context.Context, p Payload, key string) (out Appointment, err error) {
	err = i.around(ctx, call{op: "create", safe: key != ""}, func(ctx context.Context) error {
		var callErr error
		out, callErr = i.next.Create(ctx, p, key)
		return callErr
	})
	return out, err
}

func (i *interceptor) UpdateStatus(ctx context.Context, id string, status Status, key string) (out Appointment, err error) {
	err = i.around(ctx, call{op: "update_status", safe: key != ""}, func(ctx context.Context) error {
		var callErr error
		out, callErr = i.next.UpdateStatus(ctx, id, status, key)
		return callErr
	})
	return out, err
}

func (i *interceptor) Delete(ctx context.Context, id string) (out bool, err error) {
	err = i.around(ctx, call{op: "delete"}, func(ctx context.Context) error {
		var callErr error
		out, callErr = i.next.Delete(ctx, id)
		return callErr
	})
	return out, err
}

func (i *interceptor) ListWithOverlaps(ctx context.Context, filters Filters) (out OverlapReport, err error) {
	err = i.around(ctx, call{op: "list_with_overlaps", safe: true}, func(ctx context.Context) error {
		var callErr error
		out, callErr = i.next.ListWithOverlaps(ctx, filters)
		return callErr
	})
	return out, err
}

func (i *interceptor) Dashboard(ctx context.Context) (out Dashboard, err error) {
	err = i.around(ctx, call{op: "dashboard", safe: true}, func(ctx context.Context) error {
		var callErr error
		out, callErr = i.next.Dashboard(ctx)
		return callErr
	})
	return out, err
}

// RetryPolicy configures WithRetry.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter returns extra delay added to each backoff. Nil means a random
	// amount below BaseDelay.
	Jitter func(base time.Duration) time.Duration
}

// DefaultRetryPolicy is three attempts starting at 100ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second}
}

// backoff is BaseDelay*2^attempt plus jitter, capped at MaxDelay.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.BaseDelay << attempt
	if p.Jitter != nil {
		d += p.Jitter(p.BaseDelay)
	} else if p.BaseDelay > 0 {
		d += time.Duration(rand.Int64N(int64(p.BaseDelay)))
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// WithRetry retries calls that fail with ErrTransient. Creates and status
// updates are only retried when they carry an idempotency key, and deletes
// never are, so a retry cannot apply a mutation twice.
func WithRetry(policy RetryPolicy) Middleware {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return func(next Engine) Engine {
		return &interceptor{next: next, around: func(ctx context.Context, c call, invoke func(context.Context) error) error {
			var err error
			for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
				err = invoke(ctx)
				if err == nil || !c.safe || !errors.Is(err, ErrTransient) {
					return err
				}
				if attempt == policy.MaxAttempts-1 {
					break
				}
				timer := time.NewTimer(policy.backoff(attempt))
				select {
				case <-ctx.Done():
					timer.Stop()
					return fmt.Errorf("appointments: %s retry aborted: %w", c.op, ctx.Err())
				case <-timer.C:
				}
			}
			return err
		}}
	}
}

// ErrInjectedFault is wrapped by faults raised through WithFaultInjection.
var ErrInjectedFault = errors.New("injected fault")

var injectedFaults = []string{
	"Connection timeout",
	"Network unreachable",
	"Service temporarily unavailable",
	"DNS resolution failed",
	"Connection refused",
}

// WithFaultInjection fails a share of calls with a transient error before
// they reach the engine. roll returns values in [0, 1); nil uses math/rand.
func WithFaultInjection(rate float64, roll func() float64) Middleware {
	if roll == nil {
		roll = rand.Float64
	}
	return func(next Engine) Engine {
		if rate <= 0 {
			return next
		}
		return &interceptor{next: next, around: func(ctx context.Context, c call, invoke func(context.Context) error) error {
			if roll() < rate {
				msg := injectedFaults[int(roll()*float64(len(injectedFaults)))%len(injectedFaults)]
				return Transient(fmt.Errorf("%w: %s during %s", ErrInjectedFault, msg, c.op))
			}
			return invoke(ctx)
		}}
	}
}

// WithLogging logs every call with its duration and error kind.
func WithLogging(logger *logging.Logger) Middleware {
	logger = logger.WithComponent("appointments.engine")
	return func(next Engine) Engine {
		return &interceptor{next: next, around: func(ctx context.Context, c call, invoke func(context.Context) error) error {
			started := time.Now()
			err := invoke(ctx)
			elapsed := time.Since(started)
			if err != nil {
				kind := KindOf(err)
				if kind == "" {
					kind = "error"
				}
				logger.Warn("engine call failed",
					"op", c.op,
					"kind", kind,
					"duration_ms", elapsed.Milliseconds(),
					"error", err,
				)
				return err
			}
			logger.Debug("engine call", "op", c.op, "duration_ms", elapsed.Milliseconds())
			return nil
		}}
	}
}
