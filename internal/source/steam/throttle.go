package steam

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// rateLimitDecayAfter is how long after the last 429 a success starts
	// shrinking the spacing again.
	rateLimitDecayAfter = 60 * time.Second
	// cooldownStreak is the consecutive-429 count that triggers a cooldown.
	cooldownStreak = 5
)

// throttle enforces a minimum spacing between detail requests. The spacing
// grows exponentially while the upstream keeps answering 429 and decays one
// step per success once the upstream has been quiet for a while.
type throttle struct {
	mu            sync.Mutex
	limiter       *rate.Limiter
	baseDelay     time.Duration
	maxDelay      time.Duration
	streak        int
	lastRateLimit time.Time
	cooldownUntil time.Time
}

func newThrottle(baseDelay, maxDelay time.Duration) *throttle {
	return &throttle{
		limiter:   rate.NewLimiter(rate.Every(baseDelay), 1),
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
	}
}

// wait blocks until the next request slot, honoring any active cooldown.
func (t *throttle) wait(ctx context.Context) error {
	t.mu.Lock()
	cooldown := time.Until(t.cooldownUntil)
	t.mu.Unlock()

	if cooldown > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cooldown):
		}
	}

	return t.limiter.Wait(ctx)
}

// onRateLimited reacts to an upstream 429: doubles the spacing per
// consecutive error and enters a cooldown once the streak is long enough.
func (t *throttle) onRateLimited() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.streak++
	t.lastRateLimit = time.Now()
	t.limiter.SetLimit(rate.Every(t.currentDelayLocked()))

	if t.streak >= cooldownStreak {
		t.cooldownUntil = time.Now().Add(time.Duration(t.streak) * time.Minute)
	}
}

// onSuccess decays the spacing one step if the upstream has been quiet since
// the last 429.
func (t *throttle) onSuccess() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.streak == 0 {
		return
	}
	if time.Since(t.lastRateLimit) < rateLimitDecayAfter {
		return
	}
	t.streak--
	t.limiter.SetLimit(rate.Every(t.currentDelayLocked()))
}

func (t *throttle) currentDelayLocked() time.Duration {
	delay := t.baseDelay
	for i := 0; i < t.streak; i++ {
		delay *= 2
		if delay >= t.maxDelay {
			return t.maxDelay
		}
	}
	return delay
}

func (t *throttle) currentDelay() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentDelayLocked()
}
