package logging

import (
	"context"
	"sync"
	"time"

	"github.com/annotify/annotify/internal/timex"
)

// Throttled wraps a Logger and suppresses repeats of the same message class
// within a minimum interval. The peer layer uses it to keep gossip churn from
// flooding the log: the first occurrence of a message is emitted, repeats
// within the interval are counted and dropped, and the next emitted
// occurrence carries the suppressed count.
type Throttled struct {
	base     Logger
	interval time.Duration
	clock    timex.Clock
	state    *throttleState
}

type throttleState struct {
	mu   sync.Mutex
	last map[string]throttleEntry
}

type throttleEntry struct {
	at         time.Time
	suppressed int
}

// NewThrottled returns a Throttled logger with the given minimum interval
// between repeats of the same msg.
func NewThrottled(base Logger, interval time.Duration, clock timex.Clock) *Throttled {
	return &Throttled{
		base:     base,
		interval: interval,
		clock:    clock,
		state:    &throttleState{last: make(map[string]throttleEntry)},
	}
}

// allow reports whether msg may be emitted now, and how many repeats were
// suppressed since the last emission.
func (t *Throttled) allow(msg string) (bool, int) {
	t.state.mu.Lock()
	defer t.state.mu.Unlock()

	now := t.clock.Now()
	e, seen := t.state.last[msg]
	if seen && now.Sub(e.at) < t.interval {
		e.suppressed++
		t.state.last[msg] = e
		return false, 0
	}
	t.state.last[msg] = throttleEntry{at: now}
	return true, e.suppressed
}

func (t *Throttled) log(fn func(ctx context.Context, msg string, args ...any), ctx context.Context, msg string, args ...any) {
	ok, suppressed := t.allow(msg)
	if !ok {
		return
	}
	if suppressed > 0 {
		args = append(args, "suppressed", suppressed)
	}
	fn(ctx, msg, args...)
}

func (t *Throttled) Debug(ctx context.Context, msg string, args ...any) {
	t.log(t.base.Debug, ctx, msg, args...)
}

func (t *Throttled) Info(ctx context.Context, msg string, args ...any) {
	t.log(t.base.Info, ctx, msg, args...)
}

func (t *Throttled) Warn(ctx context.Context, msg string, args ...any) {
	t.log(t.base.Warn, ctx, msg, args...)
}

func (t *Throttled) Error(ctx context.Context, msg string, args ...any) {
	t.log(t.base.Error, ctx, msg, args...)
}

// With derives a child logger sharing the same suppression state, so a
// message class stays throttled no matter which child emits it.
func (t *Throttled) With(args ...any) Logger {
	return &Throttled{base: t.base.With(args...), interval: t.interval, clock: t.clock, state: t.state}
}
