package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    attempts,
		BaseDelay:      time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		InitialTimeout: time.Second,
		TimeoutGrowth:  1.5,
	}
}

func TestDo_RetriesTransientUntilSuccess(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), fastPolicy(5), nil, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewError(KindTransient, "test", errors.New("flaky"))
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Errorf("got %q after %d calls, want ok after 3", got, calls)
	}
}

func TestDo_StopsOnNonTransient(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastPolicy(5), nil, func(ctx context.Context) (int, error) {
		calls++
		return 0, NewError(KindNotFound, "test", errors.New("missing"))
	})
	if !IsNotFound(err) {
		t.Fatalf("want NotFound, got %v", err)
	}
	if calls != 1 {
		t.Errorf("NotFound retried %d times, want 1 call", calls)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastPolicy(5), nil, func(ctx context.Context) (int, error) {
		calls++
		return 0, NewError(KindTransient, "test", errors.New("down"))
	})
	if !IsTransient(err) {
		t.Fatalf("want transient, got %v", err)
	}
	if calls != 5 {
		t.Errorf("made %d calls, want 5", calls)
	}
}

type countingRecorder struct {
	success, failure int
}

func (r *countingRecorder) Record(success bool, _ time.Duration) {
	if success {
		r.success++
	} else {
		r.failure++
	}
}

func TestDo_RecordsEveryAttempt(t *testing.T) {
	rec := &countingRecorder{}
	calls := 0
	_, err := Do(context.Background(), fastPolicy(5), rec, func(ctx context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, NewError(KindTransient, "test", errors.New("flaky"))
		}
		return 1, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if rec.failure != 1 || rec.success != 1 {
		t.Errorf("recorded %d failures, %d successes; want 1 and 1", rec.failure, rec.success)
	}
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Do(ctx, fastPolicy(5), nil, func(ctx context.Context) (int, error) {
		return 0, NewError(KindTransient, "test", errors.New("down"))
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestBackoff(t *testing.T) {
	p := DefaultRetryPolicy()
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second}, // capped
		{10, 30 * time.Second},
	}
	for _, tc := range cases {
		if got := p.Backoff(tc.attempt); got != tc.want {
			t.Errorf("Backoff(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestAttemptTimeout(t *testing.T) {
	p := DefaultRetryPolicy()
	if got := p.AttemptTimeout(0); got != 30*time.Second {
		t.Errorf("AttemptTimeout(0) = %v, want 30s", got)
	}
	if got := p.AttemptTimeout(1); got != 45*time.Second {
		t.Errorf("AttemptTimeout(1) = %v, want 45s", got)
	}
}

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		status int
		want   ErrKind
	}{
		{http.StatusNotFound, KindNotFound},
		{http.StatusUnauthorized, KindUnauthorized},
		{http.StatusForbidden, KindUnauthorized},
		{http.StatusNotAcceptable, KindUnauthorized},
		{http.StatusInternalServerError, KindTransient},
		{http.StatusBadGateway, KindTransient},
		{http.StatusTooManyRequests, KindTransient},
		{http.StatusBadRequest, KindMalformed},
	}
	for _, tc := range cases {
		if got := classifyStatus(tc.status); got != tc.want {
			t.Errorf("classifyStatus(%d) = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestKindOf_UnclassifiedIsTransient(t *testing.T) {
	if got := KindOf(errors.New("raw")); got != KindTransient {
		t.Errorf("KindOf(raw) = %v, want transient", got)
	}
	wrapped := fmt.Errorf("outer: %w", NewError(KindMalformed, "op", errors.New("inner")))
	if got := KindOf(wrapped); got != KindMalformed {
		t.Errorf("KindOf(wrapped) = %v, want malformed", got)
	}
}
