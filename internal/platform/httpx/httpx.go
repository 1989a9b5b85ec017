// Package httpx holds retry helpers shared by the raw-HTTP provider clients.
package httpx

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// StatusCoder is implemented by errors that carry an upstream HTTP status.
type StatusCoder interface {
	HTTPStatusCode() int
}

// RetryableStatus reports whether an upstream status is worth another attempt.
func RetryableStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	default:
		return code >= 500 && code <= 599
	}
}

// Retryable reports whether err is transient. Caller cancellation never is.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		return RetryableStatus(sc.HTTPStatusCode())
	}
	return false
}

// Backoff is an exponential retry schedule with jitter. A Retry-After
// header on the failed response replaces the computed delay.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

var DefaultBackoff = Backoff{Base: time.Second, Max: 10 * time.Second, Jitter: 0.2}

func (b Backoff) Delay(attempt int, resp *http.Response) time.Duration {
	d := b.Base
	for i := 0; i < attempt && (b.Max <= 0 || d < b.Max); i++ {
		d *= 2
	}
	if secs := retryAfterSeconds(resp); secs > 0 {
		d = time.Duration(secs) * time.Second
	}
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return jitter(d, b.Jitter)
}

// Wait sleeps for d or until ctx ends.
func Wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func retryAfterSeconds(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After")))
	if err != nil {
		return 0
	}
	return secs
}

func jitter(d time.Duration, frac float64) time.Duration {
	if d <= 0 || frac <= 0 {
		return d
	}
	delta := float64(d) * frac
	return time.Duration(float64(d) - delta + rand.Float64()*2*delta)
}
