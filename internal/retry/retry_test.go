package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marandi/trollreel/internal/faults"
)

func fastPolicy(maxRetries int) Policy {
	return Policy{
		MaxRetries: maxRetries,
		Delays:     []time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond},
	}
}

func TestDoReturnsFirstSuccess(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), fastPolicy(3), "test", func() (string, error) {
		calls++
		return "ok", nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Errorf("expected ok, got %q", result)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoRetriesRateLimited(t *testing.T) {
	calls := 0
	result, err := Do(context.Background(), fastPolicy(3), "test", func() (int, error) {
		calls++
		if calls < 3 {
			return 0, faults.New(faults.KindRateLimited, "quota exceeded")
		}
		return 42, nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 42 {
		t.Errorf("expected 42, got %d", result)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoExhaustsBudget(t *testing.T) {
	cause := faults.New(faults.KindRateLimited, "quota exceeded")
	calls := 0
	_, err := Do(context.Background(), fastPolicy(3), "test", func() (int, error) {
		calls++
		return 0, cause
	})

	// MaxRetries=3 means 4 total attempts
	if calls != 4 {
		t.Errorf("expected 4 calls, got %d", calls)
	}
	// The triggering error comes back unchanged
	if !errors.Is(err, cause) {
		t.Errorf("expected original error, got %v", err)
	}
}

func TestDoDoesNotRetryOtherKinds(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastPolicy(3), "test", func() (int, error) {
		calls++
		return 0, faults.New(faults.KindValidationFailed, "bad aspect ratio")
	})

	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if faults.KindOf(err) != faults.KindValidationFailed {
		t.Errorf("expected validation_failed, got %v", faults.KindOf(err))
	}
}

func TestDoNoWaitAfterFinalFailure(t *testing.T) {
	// With a long final delay, exhausting the budget must return immediately
	// rather than sleeping one more time.
	p := Policy{
		MaxRetries: 1,
		Delays:     []time.Duration{time.Millisecond, time.Hour},
	}

	start := time.Now()
	_, err := Do(context.Background(), p, "test", func() (int, error) {
		return 0, faults.New(faults.KindRateLimited, "quota exceeded")
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Do slept after the final attempt: %v", elapsed)
	}
}

func TestDoContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	p := Policy{MaxRetries: 3, Delays: []time.Duration{time.Hour}}

	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := Do(ctx, p, "test", func() (int, error) {
			calls++
			return 0, faults.New(faults.KindRateLimited, "quota exceeded")
		})
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if calls != 1 {
			t.Errorf("expected 1 call before cancellation, got %d", calls)
		}
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestDelayClampsToLastEntry(t *testing.T) {
	p := fastPolicy(10)

	if got := p.delay(0); got != time.Millisecond {
		t.Errorf("delay(0) = %v", got)
	}
	if got := p.delay(2); got != 3*time.Millisecond {
		t.Errorf("delay(2) = %v", got)
	}
	if got := p.delay(9); got != 3*time.Millisecond {
		t.Errorf("delay(9) should clamp to last entry, got %v", got)
	}
}

func TestDefaultSchedule(t *testing.T) {
	if Default.MaxRetries != 3 {
		t.Errorf("expected 3 retries, got %d", Default.MaxRetries)
	}
	want := []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second}
	for i, d := range want {
		if Default.Delays[i] != d {
			t.Errorf("delay %d: expected %v, got %v", i, d, Default.Delays[i])
		}
	}
}
