package appointments

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/clinic-scheduling/pkg/logging"
)

// flakyEngine fails the first failures calls of every method with a
// transient error before delegating.
type flakyEngine struct {
	Engine
	failures int
	calls    map[string]int
}

func newFlakyEngine(next Engine, failures int) *flakyEngine {
	return &flakyEngine{Engine: next, failures: failures, calls: map[string]int{}}
}

func (f *flakyEngine) fail(op string) error {
	f.calls[op]++
	if f.calls[op] <= f.failures {
		return Transient(errors.New("backend unavailable"))
	}
	return nil
}

func (f *flakyEngine) List(ctx context.Context, filters Filters) ([]Appointment, error) {
	if err := f.fail("list"); err != nil {
		return nil, err
	}
	return f.Engine.List(ctx, filters)
}

func (f *flakyEngine) Create(ctx context.Context, p Payload, key string) (Appointment, error) {
	if err := f.fail("create"); err != nil {
		return Appointment{}, err
	}
	return f.Engine.Create(ctx, p, key)
}

func (f *flakyEngine) Delete(ctx context.Context, id string) (bool, error) {
	if err := f.fail("delete"); err != nil {
		return false, err
	}
	return f.Engine.Delete(ctx, id)
}

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		Jitter:      func(time.Duration) time.Duration { return 0 },
	}
}

func TestWithRetryRetriesTransientReads(t *testing.T) {
	flaky := newFlakyEngine(newTestStore(), 2)
	engine := Chain(flaky, WithRetry(fastPolicy(3)))

	records, err := engine.List(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 3, flaky.calls["list"])
}

func TestWithRetryGivesUpAfterMaxAttempts(t *testing.T) {
	flaky := newFlakyEngine(newTestStore(), 5)
	engine := Chain(flaky, WithRetry(fastPolicy(3)))

	_, err := engine.List(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrTransient))
	assert.Equal(t, 3, flaky.calls["list"])
}

func TestWithRetryOnlyRetriesKeyedMutations(t *testing.T) {
	store := newTestStore()
	flaky := newFlakyEngine(store, 1)
	engine := Chain(flaky, WithRetry(fastPolicy(3)))
	ctx := context.Background()

	_, err := engine.Create(ctx, payload("A", "2024-02-01", "09:00", 30, "Dr. X"), "")
	assert.True(t, errors.Is(err, ErrTransient))
	assert.Equal(t, 1, flaky.calls["create"])

	flaky.calls["create"] = 0
	rec, err := engine.Create(ctx, payload("A", "2024-02-01", "09:00", 30, "Dr. X"), "k")
	require.NoError(t, err)
	assert.Equal(t, 2, flaky.calls["create"])

	_, err = engine.Delete(ctx, rec.ID)
	assert.True(t, errors.Is(err, ErrTransient))
	assert.Equal(t, 1, flaky.calls["delete"])
}

func TestWithRetryDoesNotRetryDomainErrors(t *testing.T) {
	flaky := newFlakyEngine(newTestStore(), 0)
	engine := Chain(flaky, WithRetry(fastPolicy(3)))

	_, err := engine.Create(context.Background(), Payload{}, "k")
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, 1, flaky.calls["create"])
}

func TestWithRetryHonoursCancellation(t *testing.T) {
	flaky := newFlakyEngine(newTestStore(), 5)
	engine := Chain(flaky, WithRetry(RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := engine.List(ctx, nil)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, flaky.calls["list"])
}

func TestRetryBackoffIsExponentialAndCapped(t *testing.T) {
	p := RetryPolicy{
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  time.Second,
		Jitter:    func(time.Duration) time.Duration { return 5 * time.Millisecond },
	}
	assert.Equal(t, 105*time.Millisecond, p.backoff(0))
	assert.Equal(t, 205*time.Millisecond, p.backoff(1))
	assert.Equal(t, 405*time.Millisecond, p.backoff(2))
	assert.Equal(t, time.Second, p.backoff(4))
}

func TestWithFaultInjection(t *testing.T) {
	store := newTestStore()
	always := Chain(store, WithFaultInjection(1, func() float64 { return 0 }))
	_, err := always.List(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrTransient))
	assert.True(t, errors.Is(err, ErrInjectedFault))
	assert.Contains(t, err.Error(), "Connection timeout during list")

	never := Chain(store, WithFaultInjection(0, nil))
	assert.Same(t, store, never.(*Store))
}

func TestFaultInjectionRecoveredByRetry(t *testing.T) {
	rolls := []float64{0.1, 0.0, 0.9}
	i := 0
	roll := func() float64 {
		v := rolls[i%len(rolls)]
		i++
		return v
	}
	engine := Chain(newTestStore(),
		WithRetry(fastPolicy(3)),
		WithFaultInjection(0.5, roll),
	)

	rec, err := engine.Create(context.Background(), payload("A", "2024-02-01", "09:00", 30, "Dr. X"), "k")
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
}

func TestWithLogging(t *testing.T) {
	var buf bytes.Buffer
	engine := Chain(newTestStore(), WithLogging(logging.NewWithWriter("debug", &buf)))

	_, err := engine.Get(context.Background(), "apt_missing")
	require.Error(t, err)
	assert.Contains(t, buf.String(), `"msg":"engine call failed"`)
	assert.Contains(t, buf.String(), `"kind":"not_found"`)

	buf.Reset()
	_, err = engine.Dashboard(context.Background())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"op":"dashboard"`)
}

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next Engine) Engine {
			return &interceptor{next: next, around: func(ctx context.Context, c call, invoke func(context.Context) error) error {
				order = append(order, name)
				return invoke(ctx)
			}}
		}
	}
	engine := Chain(newTestStore(), tag("outer"), nil, tag("inner"))
	_, err := engine.List(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, order)
}
