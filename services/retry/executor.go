// Package retry runs a single provider call with bounded retries and
// exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/upb/finance-advisor/services/providers"
	"go.uber.org/zap"
)

// Policy bounds one retried call.
type Policy struct {
	// MaxRetries is the number of retries after the first invocation
	MaxRetries int

	// InitialDelay is the sleep after the first failure; it doubles on each retry
	InitialDelay time.Duration
}

// DefaultPolicy returns three retries starting at one second
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: time.Second,
	}
}

// Delay returns the sleep that follows the n-th failure (n starts at 1).
func (p Policy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	return p.InitialDelay << uint(n-1)
}

func (p Policy) attempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return 1 + p.MaxRetries
}

// Sleeper pauses between attempts. Implementations must return early with
// ctx.Err() when the context ends.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to the Sleeper interface
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep calls f
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// TimerSleeper sleeps on a real timer
var TimerSleeper Sleeper = SleeperFunc(sleepWithContext)

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Classifier reports whether an error is worth another attempt
type Classifier func(err error) bool

// Executor runs operations under a Policy
type Executor struct {
	sleeper   Sleeper
	retryable Classifier
	logger    *zap.Logger
}

// Option configures an Executor
type Option func(*Executor)

// WithSleeper replaces the wall-clock sleeper
func WithSleeper(s Sleeper) Option {
	return func(e *Executor) {
		if s != nil {
			e.sleeper = s
		}
	}
}

// WithClassifier replaces the retryable-error classifier
func WithClassifier(c Classifier) Option {
	return func(e *Executor) {
		if c != nil {
			e.retryable = c
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExecutor creates an executor that retries on providers.IsRetryable
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		sleeper:   TimerSleeper,
		retryable: providers.IsRetryable,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// policy's retry budget is spent. The last error is returned unchanged.
// A cancelled context stops the loop before the next attempt or during a sleep.
func Do[T any](ctx context.Context, e *Executor, p Policy, op func(context.Context) (T, error)) (T, error) {
	if e == nil {
		e = NewExecutor()
	}

	var zero T
	attempts := p.attempts()

	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		if !e.retryable(err) {
			return zero, err
		}
		if n >= attempts {
			e.logger.Debug("retry budget exhausted",
				zap.Int("attempts", n),
				zap.Error(err),
			)
			return zero, err
		}

		delay := p.Delay(n)
		e.logger.Info("retrying after transient failure",
			zap.Int("attempt", n),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if sleepErr := e.sleeper.Sleep(ctx, delay); sleepErr != nil {
			return zero, sleepErr
		}
	}
}
