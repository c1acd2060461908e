package reports

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockrecon/internal/runlock"
)

type recorder struct {
	mu    sync.Mutex
	calls []Kind
}

func (r *recorder) step(kind Kind, fn func(ctx context.Context) error) Step {
	return func(ctx context.Context, _ time.Time) error {
		r.mu.Lock()
		r.calls = append(r.calls, kind)
		r.mu.Unlock()
		if fn != nil {
			return fn(ctx)
		}
		return nil
	}
}

func (r *recorder) count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, k := range r.calls {
		if k == kind {
			n++
		}
	}
	return n
}

func newLocker(t *testing.T) runlock.Locker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return runlock.NewRedisLocker(client, time.Minute)
}

func newPipeline(t *testing.T, steps map[Kind]Step, store RunStore, locker runlock.Locker) *Pipeline {
	t.Helper()
	p, err := NewPipeline(steps, DefaultDependencies(), store, locker, nil, nil)
	require.NoError(t, err)
	p.WithNow(func() time.Time { return day(time.October, 31).Add(9 * time.Hour) })
	return p
}

func TestPipelineRunsMissingDependenciesFirst(t *testing.T) {
	rec := &recorder{}
	store := newMemStore()
	steps := map[Kind]Step{
		KindDaily:   rec.step(KindDaily, nil),
		KindWeekly:  rec.step(KindWeekly, nil),
		KindMonthly: rec.step(KindMonthly, nil),
	}
	p := newPipeline(t, steps, store, newLocker(t))

	run, err := p.Run(context.Background(), KindMonthly, day(time.October, 31))
	require.NoError(t, err)
	require.Equal(t, StatusSucceeded, run.Status)
	require.Equal(t, "2025-10", run.PeriodKey)
	require.Equal(t, []Kind{KindDaily, KindWeekly, KindMonthly}, rec.calls)

	// Dependencies that already succeeded for the period are not re-run.
	_, err = p.Run(context.Background(), KindMonthly, day(time.October, 31))
	require.NoError(t, err)
	require.Equal(t, 1, rec.count(KindDaily))
	require.Equal(t, 1, rec.count(KindWeekly))
	require.Equal(t, 2, rec.count(KindMonthly))
}

func TestPipelineFailureRecordsFailedRun(t *testing.T) {
	rec := &recorder{}
	store := newMemStore()
	boom := errors.New("ledger unavailable")
	steps := map[Kind]Step{
		KindDaily:   rec.step(KindDaily, func(context.Context) error { return boom }),
		KindWeekly:  rec.step(KindWeekly, nil),
		KindMonthly: rec.step(KindMonthly, nil),
	}
	p := newPipeline(t, steps, store, newLocker(t))

	run, err := p.Run(context.Background(), KindDaily, day(time.October, 31))
	require.ErrorIs(t, err, ErrNotGenerated)
	require.ErrorIs(t, err, boom)
	require.Equal(t, StatusFailed, run.Status)
	require.Equal(t, "ledger unavailable", run.Error)
	require.Equal(t, []Status{StatusFailed}, store.statuses(KindDaily))

	// A weekly run cannot proceed past a failing dependency.
	_, err = p.Run(context.Background(), KindWeekly, day(time.October, 31))
	require.ErrorIs(t, err, ErrNotGenerated)
	require.Zero(t, rec.count(KindWeekly))
	require.Empty(t, store.statuses(KindWeekly))
}

func TestPipelineConcurrentMonthlyRuns(t *testing.T) {
	rec := &recorder{}
	store := newMemStore()
	entered := make(chan struct{})
	proceed := make(chan struct{})
	steps := map[Kind]Step{
		KindDaily:  rec.step(KindDaily, nil),
		KindWeekly: rec.step(KindWeekly, nil),
		KindMonthly: rec.step(KindMonthly, func(context.Context) error {
			close(entered)
			<-proceed
			return nil
		}),
	}
	p := newPipeline(t, steps, store, newLocker(t))
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		firstErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = p.Run(ctx, KindMonthly, day(time.October, 31))
	}()
	<-entered

	run, err := p.Run(ctx, KindMonthly, day(time.October, 31))
	require.ErrorIs(t, err, runlock.ErrConcurrentRun)
	require.Empty(t, run.ID)

	close(proceed)
	wg.Wait()
	require.NoError(t, firstErr)
	require.Equal(t, 1, rec.count(KindMonthly))
	require.Equal(t, []Status{StatusSucceeded}, store.statuses(KindMonthly))
}

func TestPipelineBusyDependencyIsNotAConcurrentRun(t *testing.T) {
	rec := &recorder{}
	store := newMemStore()
	locker := newLocker(t)
	ctx := context.Background()
	lease, err := locker.Acquire(ctx, string(KindDaily))
	require.NoError(t, err)

	steps := map[Kind]Step{
		KindDaily:   rec.step(KindDaily, nil),
		KindWeekly:  rec.step(KindWeekly, nil),
		KindMonthly: rec.step(KindMonthly, nil),
	}
	p := newPipeline(t, steps, store, locker)

	_, err = p.Run(ctx, KindMonthly, day(time.October, 31))
	require.ErrorIs(t, err, ErrDependencyBusy)
	require.NotErrorIs(t, err, runlock.ErrConcurrentRun)
	require.Zero(t, rec.count(KindMonthly))

	require.NoError(t, lease.Release(ctx))
	run, err := p.Run(ctx, KindMonthly, day(time.October, 31))
	require.NoError(t, err)
	require.Equal(t, StatusSucceeded, run.Status)
	require.Equal(t, []Kind{KindDaily, KindWeekly, KindMonthly}, rec.calls)
}

func TestPipelineTimeoutCoversDependencies(t *testing.T) {
	rec := &recorder{}
	store := newMemStore()
	steps := map[Kind]Step{
		KindDaily: rec.step(KindDaily, func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}),
		KindWeekly:  rec.step(KindWeekly, nil),
		KindMonthly: rec.step(KindMonthly, nil),
	}
	p := newPipeline(t, steps, store, newLocker(t))
	p.WithTimeout(20 * time.Millisecond)

	_, err := p.Run(context.Background(), KindMonthly, day(time.October, 31))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, []Status{StatusFailed}, store.statuses(KindDaily))
	require.Zero(t, rec.count(KindMonthly))
}

func TestPipelineDifferentKindsDoNotBlock(t *testing.T) {
	store := newMemStore()
	locker := newLocker(t)
	lease, err := locker.Acquire(context.Background(), string(KindMonthly))
	require.NoError(t, err)
	defer func() { _ = lease.Release(context.Background()) }()

	rec := &recorder{}
	steps := map[Kind]Step{
		KindDaily:   rec.step(KindDaily, nil),
		KindWeekly:  rec.step(KindWeekly, nil),
		KindMonthly: rec.step(KindMonthly, nil),
	}
	p := newPipeline(t, steps, store, locker)
	_, err = p.Run(context.Background(), KindDaily, day(time.October, 31))
	require.NoError(t, err)
	_, err = p.Run(context.Background(), KindMonthly, day(time.October, 31))
	require.ErrorIs(t, err, runlock.ErrConcurrentRun)
}

func TestDependenciesRejectCycles(t *testing.T) {
	steps := map[Kind]Step{KindDaily: nil, KindWeekly: nil, KindMonthly: nil}
	require.NoError(t, DefaultDependencies().Validate(steps))

	cyclic := Dependencies{KindDaily: {KindMonthly}, KindMonthly: {KindWeekly}, KindWeekly: {KindDaily}}
	require.ErrorIs(t, cyclic.Validate(steps), ErrDependencyCycle)

	missing := Dependencies{KindMonthly: {KindWeekly}}
	require.ErrorIs(t, missing.Validate(map[Kind]Step{KindMonthly: nil}), ErrUnknownKind)
}

func TestPipelineUnknownKind(t *testing.T) {
	p := newPipeline(t, map[Kind]Step{KindDaily: nil, KindWeekly: nil, KindMonthly: nil}, newMemStore(), nil)
	_, err := p.Run(context.Background(), Kind("yearly"), day(time.October, 31))
	require.ErrorIs(t, err, ErrUnknownKind)
}
