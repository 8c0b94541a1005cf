package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/collabhub/server/internal/ratelimit"
)

func newTestLimiter(t *testing.T, limit int, window time.Duration) *ratelimit.Limiter {
	t.Helper()

	m, err := miniredis.Run()
	require.NoError(t, err)

	t.Cleanup(m.Close)

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return ratelimit.New(client, ratelimit.Config{Window: window, Limit: limit}, zerolog.Nop())
}

func TestLimiter_AllowsUpToLimitThenDenies(t *testing.T) {
	t.Parallel()

	limiter := newTestLimiter(t, 3, time.Minute)

	for i := 0; i < 3; i++ {
		res, err := limiter.Check(context.Background(), "user1", "execute")
		require.NoError(t, err)

		if !res.Allowed {
			t.Fatalf("expected request %d to be allowed within the limit", i+1)
		}
	}

	res, err := limiter.Check(context.Background(), "user1", "execute")
	require.NoError(t, err)

	if res.Allowed {
		t.Error("expected the request beyond the limit to be denied")
	}
}

func TestLimiter_BucketsAreIsolatedPerUser(t *testing.T) {
	t.Parallel()

	limiter := newTestLimiter(t, 1, time.Minute)

	res1, err := limiter.Check(context.Background(), "user1", "execute")
	require.NoError(t, err)
	require.True(t, res1.Allowed)

	res2, err := limiter.Check(context.Background(), "user2", "execute")
	require.NoError(t, err)

	if !res2.Allowed {
		t.Error("expected a different user's bucket to be independent")
	}
}

func TestLimiter_FailsClosedWhenRedisUnavailable(t *testing.T) {
	t.Parallel()

	m, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer client.Close()

	limiter := ratelimit.New(client, ratelimit.Config{Window: time.Minute, Limit: 10}, zerolog.Nop())

	m.Close() // simulate the backend going away

	res, err := limiter.Check(context.Background(), "user1", "execute")
	require.NoError(t, err) // Check itself never errors; it fails closed via Allowed=false

	if res.Allowed {
		t.Error("expected Check to fail closed when redis is unreachable")
	}
}


