package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type statusErr int

func (e statusErr) Error() string       { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) HTTPStatusCode() int { return int(e) }

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(context.Canceled))
	assert.True(t, Retryable(fmt.Errorf("call: %w", context.DeadlineExceeded)))
	assert.True(t, Retryable(statusErr(429)))
	assert.True(t, Retryable(fmt.Errorf("wrapped: %w", statusErr(503))))
	assert.False(t, Retryable(statusErr(400)))
	assert.False(t, Retryable(errors.New("boom")))
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Base: time.Second, Max: 10 * time.Second}
	assert.Equal(t, time.Second, b.Delay(0, nil))
	assert.Equal(t, 4*time.Second, b.Delay(2, nil))
	assert.Equal(t, 10*time.Second, b.Delay(6, nil))

	resp := &http.Response{Header: http.Header{"Retry-After": []string{"3"}}}
	assert.Equal(t, 3*time.Second, b.Delay(4, resp))
	resp.Header.Set("Retry-After", "60")
	assert.Equal(t, 10*time.Second, b.Delay(0, resp))

	j := Backoff{Base: time.Second, Jitter: 0.2}
	for i := 0; i < 20; i++ {
		d := j.Delay(0, nil)
		assert.GreaterOrEqual(t, d, 800*time.Millisecond)
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Wait(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Wait(context.Background(), time.Millisecond))
}
