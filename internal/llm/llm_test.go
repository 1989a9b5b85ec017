package llm

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		message string
		want    ErrorKind
	}{
		{"429", http.StatusTooManyRequests, "slow down", ErrRateLimited},
		{"quota text", 400, "RESOURCE_EXHAUSTED: quota exceeded", ErrRateLimited},
		{"401", http.StatusUnauthorized, "bad key", ErrInvalidAuth},
		{"model 404", http.StatusNotFound, "The model `gpt-x` does not exist", ErrModelUnavailable},
		{"503", http.StatusServiceUnavailable, "overloaded", ErrUnavailable},
		{"400", http.StatusBadRequest, "invalid input", ErrBadRequest},
		{"timeout", 0, "", ErrTimeout},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var cause error
			if tc.want == ErrTimeout {
				cause = context.DeadlineExceeded
			}
			pe := Classify("openai", tc.status, tc.message, cause)
			assert.Equal(t, tc.want, pe.Kind)
		})
	}
}

func TestProviderError_MessageKeepsProviderText(t *testing.T) {
	pe := Classify("openai", 429, "Rate limit reached for gpt-4o", nil)
	wrapped := errors.Join(errors.New("api call"), pe)

	assert.Contains(t, pe.Error(), "openai")
	assert.Contains(t, pe.Error(), "rate limit exceeded")
	assert.Contains(t, pe.Error(), "Rate limit reached for gpt-4o")

	got, ok := AsProviderError(wrapped)
	require.True(t, ok)
	assert.Equal(t, 429, got.HTTPStatusCode())
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry("")
	_, err := reg.Get("")
	require.Error(t, err)

	g := GeneratorFunc(func(ctx context.Context, req Request) (Response, error) {
		return Response{Text: req.User}, nil
	})
	reg.Register("OpenAI", g)
	reg.Register("gemini", g)

	got, err := reg.Get("")
	require.NoError(t, err)
	resp, err := got.Generate(context.Background(), Request{User: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Text)

	_, err = reg.Get("anthropic")
	assert.Error(t, err)
	assert.Equal(t, []string{"gemini", "openai"}, reg.Names())
}

func TestCachedEmbedder(t *testing.T) {
	calls := 0
	inner := EmbedderFunc(func(ctx context.Context, text string) ([]float32, error) {
		calls++
		if text == "fail" {
			return nil, errors.New("boom")
		}
		return []float32{float32(len(text)), 1}, nil
	})
	c, err := NewCachedEmbedder(inner, 8)
	require.NoError(t, err)

	ctx := context.Background()
	v1, err := c.Embed(ctx, "abc")
	require.NoError(t, err)
	v1[0] = 99 // callers mutating results must not poison the cache
	v2, err := c.Embed(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 1}, v2)
	assert.Equal(t, 1, calls)

	_, err = c.Embed(ctx, "fail")
	require.Error(t, err)
	_, err = c.Embed(ctx, "fail")
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 1, c.Len())
}
