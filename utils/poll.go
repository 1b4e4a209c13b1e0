package utils

import (
	"context"
	"errors"
	"time"
)

// ErrPollExhausted is returned by Poll when every attempt ran without the
// condition being met.
var ErrPollExhausted = errors.New("poll attempts exhausted")

// PollConfig bounds a Poll run.
type PollConfig struct {
	// Interval is the wait between two attempts.
	Interval time.Duration
	// MaxAttempts is the total number of attempts, the first included.
	MaxAttempts int
	// AttemptTimeout bounds a single attempt. Zero means no bound.
	AttemptTimeout time.Duration
}

// PollFunc is one attempt. attempt starts at 1. Returning done=true or a
// non-nil error stops polling.
type PollFunc func(ctx context.Context, attempt int) (done bool, err error)

// Poll runs fn immediately and then once per Interval until fn reports done,
// fn fails, MaxAttempts is reached or ctx is cancelled. It does not wait after
// the last attempt.
//
// An attempt that has started is not interrupted by ctx: it runs on a context
// detached from cancellation and bounded only by AttemptTimeout. Cancellation
// prevents further attempts and makes Poll return ctx.Err().
//
// The returned count is the number of attempts that ran.
func Poll(ctx context.Context, cfg PollConfig, fn PollFunc) (int, error) {
	if cfg.MaxAttempts <= 0 {
		return 0, ErrPollExhausted
	}

	detached := context.WithoutCancel(ctx)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		done, err := runAttempt(detached, cfg.AttemptTimeout, attempt, fn)
		if err != nil || done {
			return attempt, err
		}
		if attempt >= cfg.MaxAttempts {
			return attempt, ErrPollExhausted
		}

		if timer == nil {
			timer = time.NewTimer(cfg.Interval)
		} else {
			timer.Reset(cfg.Interval)
		}
		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		case <-timer.C:
		}
	}
}

func runAttempt(ctx context.Context, timeout time.Duration, attempt int, fn PollFunc) (bool, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx, attempt)
}
