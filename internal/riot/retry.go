package riot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	logx "matchwatch/pkg/logx"
)

const (
	DefaultRetryMax  = 4
	DefaultRetryBase = 2 * time.Second
)

// Retrier repeats transient failures with exponential backoff: Base, 2*Base,
// 4*Base and so on, without jitter. MaxRetries retries means at most
// MaxRetries+1 attempts.
type Retrier struct {
	MaxRetries int
	Base       time.Duration
	Log        logx.Logger
	OnRetry    func(op string)
}

func (r Retrier) policy(ctx context.Context) (backoff.BackOff, *retryAfterBackOff) {
	base := r.Base
	if base <= 0 {
		base = DefaultRetryBase
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = base
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = base << 10
	exp.MaxElapsedTime = 0
	exp.Reset()

	retries := r.MaxRetries
	if retries < 0 {
		retries = 0
	}
	hinted := &retryAfterBackOff{inner: exp}
	return backoff.WithContext(backoff.WithMaxRetries(hinted, uint64(retries)), ctx), hinted
}

// Do runs fn until it succeeds, fails permanently, or the retry budget runs out.
func (r Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	log := r.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	policy, hints := r.policy(ctx)

	attempts := 0
	err := backoff.RetryNotify(func() error {
		attempts++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var se *StatusError
		if errors.As(err, &se) && se.Transient() {
			hints.hint = se.RetryAfter
			return err
		}
		return backoff.Permanent(err)
	}, policy, func(err error, wait time.Duration) {
		if r.OnRetry != nil {
			r.OnRetry(op)
		}
		log.Debug("upstream transient error; retrying",
			logx.String("op", op),
			logx.Int("attempt", attempts),
			logx.Duration("wait", wait),
			logx.Err(err),
		)
	})
	if err != nil && IsTransient(err) && ctx.Err() == nil {
		return fmt.Errorf("%s: %w after %d attempts: %w", op, ErrRetriesExhausted, attempts, err)
	}
	return err
}

// retryAfterBackOff waits at least as long as the last Retry-After hint.
type retryAfterBackOff struct {
	inner backoff.BackOff
	hint  time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	next := b.inner.NextBackOff()
	if b.hint > next {
		next = b.hint
	}
	b.hint = 0
	return next
}

func (b *retryAfterBackOff) Reset() {
	b.inner.Reset()
	b.hint = 0
}
