package readiness

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/virtual-lab/internal/schedule"
)

var errNotReady = errors.New("connection refused")

type recorder struct {
	results []Result
}

func (r *recorder) done(res Result) {
	r.results = append(r.results, res)
}

func newManual() *schedule.Manual {
	return schedule.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
}

func TestReadyOnFirstAttempt(t *testing.T) {
	sched := newManual()
	calls := 0
	p := NewProber(CheckFunc(func(context.Context, string) error {
		calls++
		return nil
	}), sched, DefaultConfig())

	rec := &recorder{}
	p.Start("http://x", rec.done)
	require.Empty(t, rec.results, "first attempt is scheduled, not run inline")

	sched.RunPending()
	require.Equal(t, 1, calls)
	require.Equal(t, []Result{{Attempts: 1}}, rec.results)
	require.Zero(t, sched.Pending())
}

func TestReadyAfterRetries(t *testing.T) {
	sched := newManual()
	calls := 0
	p := NewProber(CheckFunc(func(context.Context, string) error {
		calls++
		if calls < 5 {
			return errNotReady
		}
		return nil
	}), sched, DefaultConfig())

	rec := &recorder{}
	p.Start("http://x", rec.done)
	sched.RunPending()
	sched.Advance(30 * time.Second)
	require.Empty(t, rec.results)
	require.Equal(t, 4, calls)

	sched.Advance(10 * time.Second)
	require.Len(t, rec.results, 1)
	require.Equal(t, 5, rec.results[0].Attempts)
	require.False(t, rec.results[0].Forced)
	require.Equal(t, 40*time.Second, rec.results[0].Elapsed)
}

func TestNeverRespondingTargetIsForcedReadyAfter37Attempts(t *testing.T) {
	sched := newManual()
	calls := 0
	p := NewProber(CheckFunc(func(context.Context, string) error {
		calls++
		return errNotReady
	}), sched, DefaultConfig())

	rec := &recorder{}
	cycle := p.Start("http://x", rec.done)
	sched.RunPending()

	// attempts 2..37 happen every 10s
	sched.Advance(360 * time.Second)
	require.Equal(t, 37, calls)
	require.Empty(t, rec.results, "must not give up before the budget is spent")

	sched.Advance(10 * time.Second)
	require.Equal(t, 37, calls)
	require.Len(t, rec.results, 1)
	require.True(t, rec.results[0].Forced)
	require.Equal(t, 37, rec.results[0].Attempts)
	require.Equal(t, 37, cycle.Attempts())

	require.Zero(t, sched.Pending())
	sched.Advance(time.Hour)
	require.Equal(t, 37, calls, "no probing after the budget is exhausted")
	require.Len(t, rec.results, 1)
}

func TestZeroRetriesForcesAfterOneAttempt(t *testing.T) {
	sched := newManual()
	calls := 0
	cfg := DefaultConfig()
	cfg.MaxRetries = 0
	p := NewProber(CheckFunc(func(context.Context, string) error {
		calls++
		return errNotReady
	}), sched, cfg)

	rec := &recorder{}
	p.Start("http://x", rec.done)
	sched.Advance(10 * time.Second)
	require.Equal(t, 1, calls)
	require.Len(t, rec.results, 1)
	require.True(t, rec.results[0].Forced)
}

func TestCancelSuppressesPendingRetries(t *testing.T) {
	sched := newManual()
	calls := 0
	p := NewProber(CheckFunc(func(context.Context, string) error {
		calls++
		return errNotReady
	}), sched, DefaultConfig())

	rec := &recorder{}
	cycle := p.Start("http://x", rec.done)
	sched.RunPending()
	sched.Advance(20 * time.Second)
	require.Equal(t, 3, calls)

	cycle.Cancel()
	require.Zero(t, sched.Pending())
	sched.Advance(time.Hour)
	require.Equal(t, 3, calls)
	require.Empty(t, rec.results)
}

func TestCancelDuringInFlightAttemptDiscardsResult(t *testing.T) {
	sched := newManual()
	var cycle *Cycle
	p := NewProber(CheckFunc(func(ctx context.Context, _ string) error {
		cycle.Cancel()
		require.Error(t, ctx.Err(), "in-flight attempt is aborted")
		return nil
	}), sched, DefaultConfig())

	rec := &recorder{}
	cycle = p.Start("http://x", rec.done)
	sched.RunPending()
	require.Empty(t, rec.results)
	require.Zero(t, sched.Pending())
}

func TestHTTPChecker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	checker := HTTPChecker{}
	require.NoError(t, checker.Check(context.Background(), srv.URL), "any response counts as ready")

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.Error(t, checker.Check(ctx, slow.URL))

	closed := httptest.NewServer(http.NotFoundHandler())
	url := closed.URL
	closed.Close()
	require.Error(t, checker.Check(context.Background(), url))
}
