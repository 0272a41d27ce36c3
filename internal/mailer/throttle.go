package mailer

import (
	"context"
	"sync"
	"time"
)

// Throttle caps sends per minute across all workers using a sliding window.
type Throttle struct {
	mu           sync.Mutex
	timestamps   []time.Time
	maxPerMinute int
	now          func() time.Time
}

// NewThrottle returns a Throttle allowing maxPerMinute sends in any
// one-minute window. It returns nil when maxPerMinute is not positive; a nil
// Throttle never waits.
func NewThrottle(maxPerMinute int) *Throttle {
	if maxPerMinute <= 0 {
		return nil
	}
	return &Throttle{
		maxPerMinute: maxPerMinute,
		now:          time.Now,
	}
}

// Wait blocks until a send slot is free or ctx is done.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil {
		return nil
	}
	for {
		wait, ok := t.reserve()
		if ok {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// reserve takes a slot if one is free, otherwise reports how long until the
// oldest slot leaves the window.
func (t *Throttle) reserve() (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	cutoff := now.Add(-time.Minute)

	valid := t.timestamps[:0]
	for _, ts := range t.timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}
	t.timestamps = valid

	if len(t.timestamps) >= t.maxPerMinute {
		return t.timestamps[0].Sub(cutoff), false
	}

	t.timestamps = append(t.timestamps, now)
	return 0, true
}
