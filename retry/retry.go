// Package retry runs an operation again after failures, waiting between
// attempts with either an explicit delay schedule or exponential backoff.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 2 * time.Second
)

// Options controls a retry loop.
type Options struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// BaseDelay is the first backoff delay; it doubles on every retry.
	BaseDelay time.Duration
	// Delays overrides backoff. Retry n waits Delays[n-1]; once the list is
	// exhausted its last value is reused.
	Delays []time.Duration
	// OnRetry is called before each retry with the retry number (from 1) and
	// the error of the previous attempt.
	OnRetry func(attempt int, err error)
	// Retryable decides whether an error is worth retrying. Nil retries all.
	Retryable func(error) bool

	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures Options.
type Option func(*Options)

// WithMaxRetries sets the number of retries after the first attempt.
func WithMaxRetries(n int) Option {
	return func(o *Options) { o.MaxRetries = n }
}

// WithBaseDelay sets the first exponential backoff delay.
func WithBaseDelay(d time.Duration) Option {
	return func(o *Options) { o.BaseDelay = d }
}

// WithDelays sets an explicit delay schedule that replaces exponential backoff.
func WithDelays(delays ...time.Duration) Option {
	return func(o *Options) { o.Delays = append([]time.Duration(nil), delays...) }
}

// WithOnRetry sets the callback invoked before each retry.
func WithOnRetry(fn func(attempt int, err error)) Option {
	return func(o *Options) { o.OnRetry = fn }
}

// WithRetryable sets the predicate that decides whether an error is retried.
func WithRetryable(fn func(error) bool) Option {
	return func(o *Options) { o.Retryable = fn }
}

// DefaultOptions returns three retries starting at a two second delay.
func DefaultOptions() Options {
	return Options{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
	}
}

// NewOptions applies opts on top of DefaultOptions.
func NewOptions(opts ...Option) Options {
	o := DefaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.sleep == nil {
		o.sleep = sleepContext
	}
	return o
}

// Delay returns how long to wait before retry number attempt (from 1).
func (o Options) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	if len(o.Delays) > 0 {
		idx := attempt - 1
		if idx >= len(o.Delays) {
			idx = len(o.Delays) - 1
		}
		return o.Delays[idx]
	}
	d := o.BaseDelay
	for i := 1; i < attempt; i++ {
		if d > math.MaxInt64/2 {
			return time.Duration(math.MaxInt64)
		}
		d *= 2
	}
	return d
}

// Do calls op until it succeeds, the retries are used up, op returns an
// error that is not retryable, or ctx is done. The error of the last attempt
// is returned unchanged. Cancellation returns an error wrapping ctx.Err().
func Do[T any](ctx context.Context, op func(context.Context) (T, error), opts ...Option) (T, error) {
	o := NewOptions(opts...)
	var zero T
	var lastErr error

	for attempt := 0; attempt <= o.MaxRetries; attempt++ {
		if attempt > 0 {
			if o.OnRetry != nil {
				o.OnRetry(attempt, lastErr)
			}
			if err := o.sleep(ctx, o.Delay(attempt)); err != nil {
				return zero, aborted(err, attempt, lastErr)
			}
		}
		if err := ctx.Err(); err != nil {
			return zero, aborted(err, attempt, lastErr)
		}

		res, err := op(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if o.Retryable != nil && !o.Retryable(err) {
			return zero, err
		}
	}
	return zero, lastErr
}

// Run is Do for operations without a result.
func Run(ctx context.Context, op func(context.Context) error, opts ...Option) error {
	_, err := Do(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, opts...)
	return err
}

func aborted(ctxErr error, attempt int, lastErr error) error {
	if lastErr == nil {
		return ctxErr
	}
	return errors.WithMessagef(ctxErr, "retry aborted before attempt %d (last error: %v)", attempt, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
