// Package rate provides the token bucket and retry executor that guard calls
// to external matching collaborators. The matchers themselves stay free of
// I/O and rate concerns; jobs wrap their external stages with an Executor.
package rate

import (
	"context"
	"sync"
	"time"
)

// Limiter is a token bucket. The zero capacity bucket is disabled and always
// admits.
type Limiter struct {
	mu    sync.Mutex
	cap   float64
	level float64
	rate  float64 // tokens per second
	last  time.Time
	clk   func() time.Time
}

// NewLimiter creates a bucket admitting requestsPerMinute calls. clk is for
// tests; nil uses time.Now.
func NewLimiter(requestsPerMinute int, clk func() time.Time) *Limiter {
	if clk == nil {
		clk = time.Now
	}
	l := &Limiter{clk: clk}
	if requestsPerMinute > 0 {
		l.cap = float64(requestsPerMinute)
		l.level = l.cap
		l.rate = l.cap / 60.0
		l.last = clk()
	}
	return l
}

// Try takes one token if available without blocking
func (l *Limiter) Try() bool {
	if l.cap == 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()
	if l.level < 1 {
		return false
	}
	l.level--
	return true
}

// Wait blocks until a token is available or ctx is cancelled
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		if l.Try() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retryInterval()):
		}
	}
}

func (l *Limiter) refill() {
	now := l.clk()
	if now.Before(l.last) {
		// clock went backwards: treat as no elapsed time
		return
	}
	l.level += now.Sub(l.last).Seconds() * l.rate
	if l.level > l.cap {
		l.level = l.cap
	}
	l.last = now
}

func (l *Limiter) retryInterval() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rate <= 0 {
		return 50 * time.Millisecond
	}
	return time.Duration(float64(time.Second) / l.rate)
}

// RetryableFunc classifies whether an error is worth retrying
type RetryableFunc func(error) bool

// ExecutorConfig controls retry behavior
type ExecutorConfig struct {
	MaxAttempts    int           // total attempts including the first (default: 3)
	InitialBackoff time.Duration // backoff before the first retry (default: 500ms)
	MaxBackoff     time.Duration // backoff ceiling (default: 30s)
}

// DefaultExecutorConfig returns sensible defaults
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
	}
}

// Executor runs a call under the limiter with exponential backoff on
// retryable errors.
type Executor struct {
	limiter   *Limiter
	retryable RetryableFunc
	cfg       ExecutorConfig
	sleep     func(context.Context, time.Duration) error
}

// NewExecutor creates an executor. retryable may be nil, in which case no
// error is retried.
func NewExecutor(limiter *Limiter, retryable RetryableFunc, cfg ExecutorConfig) *Executor {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Executor{
		limiter:   limiter,
		retryable: retryable,
		cfg:       cfg,
		sleep:     sleepCtx,
	}
}

// Do runs fn once per attempt, waiting for a token before each attempt and
// backing off exponentially between retryable failures.
func (e *Executor) Do(ctx context.Context, fn func(context.Context) error) error {
	backoff := e.cfg.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if e.retryable == nil || !e.retryable(lastErr) {
			return lastErr
		}
		if attempt == e.cfg.MaxAttempts {
			break
		}

		if err := e.sleep(ctx, backoff); err != nil {
			return err
		}
		backoff *= 2
		if backoff > e.cfg.MaxBackoff {
			backoff = e.cfg.MaxBackoff
		}
	}
	return lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
