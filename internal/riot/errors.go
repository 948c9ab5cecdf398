package riot

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidRiotID    = errors.New("riot id needs a name and a tagline (Name#Tag)")
	ErrRetriesExhausted = errors.New("retries exhausted")
	ErrNoAPIKey         = errors.New("riot api key is empty")
)

// StatusError is a non-2xx upstream response other than 404.
type StatusError struct {
	Op         string
	StatusCode int
	RetryAfter time.Duration
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s: upstream status %d", e.Op, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Transient reports whether the request may succeed if repeated.
func (e *StatusError) Transient() bool {
	return e.StatusCode == http.StatusServiceUnavailable || e.StatusCode == http.StatusTooManyRequests
}

// IsTransient reports whether err is a transient upstream failure.
func IsTransient(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Transient()
}

// ConnectivityError means the upstream could not be reached at all.
type ConnectivityError struct{ Err error }

func (e *ConnectivityError) Error() string { return "riot api unreachable: " + e.Err.Error() }
func (e *ConnectivityError) Unwrap() error { return e.Err }

// parseRetryAfter accepts delay-seconds; HTTP dates are ignored.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
