package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestFixedWindowLimiterRedis(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(redis.Addr(), "", "test:ratelimit", 2, time.Second)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	if !limiter.Allow("ip-1") {
		t.Fatalf("first request should pass")
	}
	if !limiter.Allow("ip-1") {
		t.Fatalf("second request should pass")
	}
	if limiter.Allow("ip-1") {
		t.Fatalf("third request should be blocked")
	}
}

func TestFixedWindowLimiterRedisFailClosed(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(redis.Addr(), "", "test:ratelimit", 1, time.Second)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	redis.Close()
	if limiter.Allow("ip-1") {
		t.Fatalf("limiter should fail closed on redis errors")
	}
}

func TestFixedWindowLimiterRequiresRedisAddr(t *testing.T) {
	limiter, err := NewRedisFixedWindowLimiter("", "", "test:ratelimit", 1, time.Second)
	if err == nil || limiter != nil {
		t.Fatalf("expected constructor error for empty redis addr")
	}
}

func TestNewPicksImplementation(t *testing.T) {
	redis := miniredis.RunT(t)
	distributed, err := New(Config{RedisAddr: redis.Addr(), Limit: 1, Window: time.Second})
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	if _, ok := distributed.(*FixedWindowLimiter); !ok {
		t.Fatalf("expected redis limiter, got %T", distributed)
	}
	local, err := New(Config{Limit: 1, Window: time.Second})
	if err != nil {
		t.Fatalf("new local limiter: %v", err)
	}
	if _, ok := local.(*LocalLimiter); !ok {
		t.Fatalf("expected local limiter, got %T", local)
	}
	if _, err := New(Config{Limit: 0, Window: time.Second}); err == nil {
		t.Fatalf("expected error for zero limit")
	}
}
