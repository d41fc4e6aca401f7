package middleware

import (
	"context"
	"testing"
	"time"

	"llmrt/llm"

	"github.com/stretchr/testify/require"
)

func TestRateLimit_AllowsBurstUpToCapacity(t *testing.T) {
	stub := &stubService{
		requestFn: func(n int) (*llm.Response, error) {
			return &llm.Response{ContentText: "ok"}, nil
		},
	}
	svc := RateLimit(RateLimitConfig{Capacity: 3, RefillPerPeriod: 1, Period: time.Second})(stub)

	for i := 0; i < 3; i++ {
		_, err := svc.Request(context.Background(), llm.CallOptions{})
		require.NoError(t, err)
	}
	require.Equal(t, 3, stub.callCount())
}

func TestRateLimit_BlocksUntilCanceled(t *testing.T) {
	stub := &stubService{
		requestFn: func(n int) (*llm.Response, error) {
			return &llm.Response{ContentText: "ok"}, nil
		},
	}
	svc := RateLimit(RateLimitConfig{Capacity: 1, RefillPerPeriod: 1, Period: time.Hour})(stub)

	_, err := svc.Request(context.Background(), llm.CallOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = svc.Request(ctx, llm.CallOptions{})
	require.Error(t, err)
	require.True(t, llm.IsKind(err, llm.KindCanceled))
}
