// Package retry recovers rate-limited remote calls with a fixed escalating
// delay schedule. Anything that is not a rate-limit fault propagates unchanged
// on the first attempt.
package retry

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/marandi/trollreel/internal/faults"
)

// Policy is an explicit, testable backoff schedule. MaxRetries bounds the
// number of re-attempts after the first call; Delays is the wait sequence
// between attempts, with the last entry repeating once exhausted.
type Policy struct {
	MaxRetries int
	Delays     []time.Duration
}

// Default matches the production schedule: 3 retries waiting 10s, 30s, 60s.
var Default = Policy{
	MaxRetries: 3,
	Delays:     []time.Duration{10 * time.Second, 30 * time.Second, 60 * time.Second},
}

// ForVideoStart uses a longer first wait — the video model 429s recover slower.
var ForVideoStart = Policy{
	MaxRetries: 3,
	Delays:     []time.Duration{20 * time.Second, 30 * time.Second, 60 * time.Second},
}

// ForPolling keeps polling recovery short so a stuck poll fails fast.
var ForPolling = Policy{
	MaxRetries: 3,
	Delays:     []time.Duration{5 * time.Second, 30 * time.Second, 60 * time.Second},
}

// delay returns the wait before retry n (0-based), clamping past the end of
// the schedule.
func (p Policy) delay(n int) time.Duration {
	if len(p.Delays) == 0 {
		return 0
	}
	if n >= len(p.Delays) {
		n = len(p.Delays) - 1
	}
	return p.Delays[n]
}

// Do invokes fn, retrying on rate-limit faults per the policy. The triggering
// error is returned unchanged once the budget is exhausted or the error is not
// a rate-limit signature.
func Do[T any](ctx context.Context, p Policy, label string, fn func() (T, error)) (T, error) {
	var zero T

	for attempt := 0; ; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		if faults.KindOf(err) != faults.KindRateLimited || attempt >= p.MaxRetries {
			return zero, err
		}

		wait := p.delay(attempt)
		log.Printf("[Retry] %s: quota hit, retrying in %v (attempt %d/%d)", label, wait, attempt+1, p.MaxRetries)

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("%s cancelled while backing off: %w", label, ctx.Err())
		case <-time.After(wait):
		}
	}
}
