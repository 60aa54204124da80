package launch

import (
	"context"
	"errors"
	"time"

	"github.com/makimoto/kuroko2/backoff"
	"github.com/makimoto/kuroko2/definition"
	"github.com/makimoto/kuroko2/instance"
)

// ErrAdmissionTimeout is returned by AwaitLaunch when the definition was
// never admitted within the attempt budget.
var ErrAdmissionTimeout = errors.New("launch: admission not granted before deadline")

// Waiter retries a launch until admission is granted, backing off between
// attempts. It is the blocking counterpart to Launcher.TryLaunch.
type Waiter struct {
	launcher    *Launcher
	strategy    backoff.Strategy
	maxAttempts int
}

// WaiterOption configures a Waiter.
type WaiterOption func(*Waiter)

// WithStrategy sets the delay between admission attempts.
// Default is backoff.DefaultStrategy().
func WithStrategy(s backoff.Strategy) WaiterOption {
	return func(w *Waiter) { w.strategy = s }
}

// WithMaxAttempts bounds the number of admission attempts. Zero means
// retry until the context is cancelled.
func WithMaxAttempts(n int) WaiterOption {
	return func(w *Waiter) { w.maxAttempts = n }
}

// NewWaiter creates a Waiter around a Launcher.
func NewWaiter(launcher *Launcher, opts ...WaiterOption) *Waiter {
	w := &Waiter{
		launcher: launcher,
		strategy: backoff.DefaultStrategy(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// AwaitLaunch repeatedly attempts to launch def until admission is granted,
// the context is cancelled, or the attempt budget runs out.
func (w *Waiter) AwaitLaunch(ctx context.Context, def *definition.Definition) (*instance.Instance, error) {
	for attempt := 0; ; attempt++ {
		inst, admitted, err := w.launcher.TryLaunch(ctx, def)
		if err != nil {
			return nil, err
		}
		if admitted {
			return inst, nil
		}

		if w.maxAttempts > 0 && attempt+1 >= w.maxAttempts {
			return nil, ErrAdmissionTimeout
		}

		timer := time.NewTimer(w.strategy.Delay(attempt + 1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
