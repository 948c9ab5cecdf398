package router

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/time/rate"

	logx "matchwatch/pkg/logx"
)

// ErrRateLimited is returned by MWTenantLimit when a tenant sends commands too fast.
var ErrRateLimited = errors.New("rate limited")

// CommandObserver records the outcome of every handled command.
type CommandObserver interface {
	ObserveCommand(command, result string)
}

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if d <= 0 {
				return next(ctx, req)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					req.logger(log).Error("panic recovered",
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

// MWRequestLog logs failures at WARN and slow requests at INFO; the rest go to DEBUG.
func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			d := time.Since(start)

			logger := req.logger(log)
			fields := []logx.Field{
				logx.String("tenant", req.Tenant),
				logx.Int64("from_id", req.FromID),
				logx.Duration("dur", d),
			}
			switch {
			case err != nil:
				logger.Warn("request failed", append(fields, logx.Err(err))...)
			case d >= 750*time.Millisecond:
				logger.Info("request ok", fields...)
			default:
				logger.Debug("request ok", fields...)
			}
			return err
		}
	}
}

// MWObserve reports "ok", "error" or "limited" per command to obs.
func MWObserve(obs CommandObserver) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if obs == nil {
			return next
		}
		return func(ctx context.Context, req *Request) error {
			err := next(ctx, req)
			switch {
			case errors.Is(err, ErrRateLimited):
				obs.ObserveCommand(req.Command, "limited")
			case err != nil:
				obs.ObserveCommand(req.Command, "error")
			default:
				obs.ObserveCommand(req.Command, "ok")
			}
			return err
		}
	}
}

// tenantLimiter hands out one token bucket per tenant.
type tenantLimiter struct {
	mu      sync.Mutex
	perMin  int
	buckets map[string]*rate.Limiter
}

func newTenantLimiter(perMin int) *tenantLimiter {
	return &tenantLimiter{perMin: perMin, buckets: map[string]*rate.Limiter{}}
}

func (l *tenantLimiter) allow(tenant string) bool {
	if l == nil || l.perMin <= 0 {
		return true
	}
	l.mu.Lock()
	b, ok := l.buckets[tenant]
	if !ok {
		b = rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMin)), l.perMin)
		l.buckets[tenant] = b
	}
	l.mu.Unlock()
	return b.Allow()
}

// MWTenantLimit rejects a command when its tenant exceeded the per-minute
// budget. The user gets one short reply and the handler is not run.
func MWTenantLimit(l *tenantLimiter) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if !l.allow(req.Tenant) {
				_ = req.Reply(ctx, "Slow down, too many commands. Try again in a minute.")
				return ErrRateLimited
			}
			return next(ctx, req)
		}
	}
}
