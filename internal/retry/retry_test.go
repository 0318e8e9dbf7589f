package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type fakeReporter struct {
	successes []string
	failures  []string
}

func (r *fakeReporter) OnSuccess(source string) { r.successes = append(r.successes, source) }
func (r *fakeReporter) OnFailure(source string) { r.failures = append(r.failures, source) }

func noSleep(_ context.Context, _ time.Duration) error { return nil }

func TestDelay_ExponentialWithCap(t *testing.T) {
	// WHAT: Delay doubles per attempt and is capped at max before jitter scaling.
	// WHY: The backoff curve must be bounded; jitter only shrinks it into [0.5,1.0)x.
	base := time.Second
	maxDelay := 10 * time.Second

	cases := []struct {
		attempt int
		want    time.Duration // with rand01=1.0 the factor is 1.0
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second}, // capped
		{20, 10 * time.Second},
	}
	for _, tc := range cases {
		if got := Delay(tc.attempt, base, maxDelay, 1.0); got != tc.want {
			t.Errorf("Delay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestDelay_JitterHalvesAtZero(t *testing.T) {
	// WHAT: rand01=0 yields half the raw delay.
	// WHY: Jitter factor is 0.5 + rand*0.5 per the backoff formula.
	if got := Delay(1, time.Second, time.Minute, 0); got != time.Second {
		t.Errorf("Delay with rand01=0 = %v, want 1s (half of 2s)", got)
	}
}

func TestDo_SucceedsFirstTry_ReportsSuccess(t *testing.T) {
	// WHAT: A successful op returns its value and reports exactly one success.
	// WHY: The governor's decay depends on every success being reported.
	rep := &fakeReporter{}
	got, err := Do(context.Background(), Config{Source: "forum", Reporter: rep, Sleep: noSleep},
		func(context.Context) (int, error) { return 42, nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Errorf("value = %d, want 42", got)
	}
	if len(rep.successes) != 1 || len(rep.failures) != 0 {
		t.Errorf("reports = %d successes / %d failures, want 1/0", len(rep.successes), len(rep.failures))
	}
}

func TestDo_EventualSuccess_ReportsEachOutcome(t *testing.T) {
	// WHAT: Two failures then success yields the value and 2 failure + 1 success reports.
	// WHY: Every attempt outcome must reach the governor, not just the final one.
	rep := &fakeReporter{}
	calls := 0
	got, err := Do(context.Background(), Config{MaxRetries: 3, Source: "forum", Reporter: rep, Sleep: noSleep},
		func(context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("boom")
			}
			return "ok", nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Errorf("got %q after %d calls", got, calls)
	}
	if len(rep.failures) != 2 || len(rep.successes) != 1 {
		t.Errorf("reports = %d failures / %d successes, want 2/1", len(rep.failures), len(rep.successes))
	}
}

func TestDo_Exhausted_WrapsLastError(t *testing.T) {
	// WHAT: After MaxRetries+1 failed attempts, Do returns ErrExhausted wrapping the last error.
	// WHY: Callers distinguish recoverable exhaustion from other failures via errors.Is.
	lastErr := errors.New("http 503")
	calls := 0
	_, err := Do(context.Background(), Config{MaxRetries: 2, Sleep: noSleep},
		func(context.Context) (struct{}, error) {
			calls++
			return struct{}{}, fmt.Errorf("attempt %d: %w", calls, lastErr)
		})
	if !errors.Is(err, ErrExhausted) {
		t.Errorf("expected ErrExhausted, got: %v", err)
	}
	if !errors.Is(err, lastErr) {
		t.Errorf("expected last error preserved, got: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (1 + 2 retries)", calls)
	}
}

func TestDo_ContextCancelled_StopsRetrying(t *testing.T) {
	// WHAT: Cancellation between attempts aborts the loop with the context error.
	// WHY: Run deadlines must cut retry loops short instead of burning attempts.
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Do(ctx, Config{MaxRetries: 10, Sleep: noSleep},
		func(context.Context) (struct{}, error) {
			calls++
			cancel()
			return struct{}{}, errors.New("boom")
		})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 after cancellation", calls)
	}
}
