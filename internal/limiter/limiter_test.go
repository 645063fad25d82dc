package limiter_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/SloanRudderham/tl-quotes-relay/internal/limiter"
)

func setup(t *testing.T, max int, window time.Duration) (*limiter.RedisLimiter, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return limiter.NewRedisLimiter(rdb, max, window), mr
}

func TestAllow_FixedWindow(t *testing.T) {
	lim, _ := setup(t, 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := lim.Allow(ctx, "1.2.3.4")
		if err != nil {
			t.Fatalf("Allow error: %v", err)
		}
		if !ok {
			t.Fatalf("Request %d should be allowed", i+1)
		}
	}

	ok, err := lim.Allow(ctx, "1.2.3.4")
	if err != nil {
		t.Fatalf("Allow error: %v", err)
	}
	if ok {
		t.Error("Third request in the window should be rejected")
	}
}

func TestAllow_WindowReset(t *testing.T) {
	lim, mr := setup(t, 1, time.Minute)
	ctx := context.Background()

	lim.Allow(ctx, "1.2.3.4")
	if ok, _ := lim.Allow(ctx, "1.2.3.4"); ok {
		t.Fatal("Second request should be rejected before the window resets")
	}

	mr.FastForward(2 * time.Minute)

	if ok, _ := lim.Allow(ctx, "1.2.3.4"); !ok {
		t.Error("Request after window expiry should be allowed")
	}
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	lim, _ := setup(t, 1, time.Minute)
	ctx := context.Background()

	lim.Allow(ctx, "1.2.3.4")
	if ok, _ := lim.Allow(ctx, "5.6.7.8"); !ok {
		t.Error("A different client must have its own counter")
	}
}

func TestAllow_RedisDown(t *testing.T) {
	lim, mr := setup(t, 1, time.Minute)
	mr.Close()

	if _, err := lim.Allow(context.Background(), "1.2.3.4"); err == nil {
		t.Error("Expected an error when Redis is unreachable")
	}
}
