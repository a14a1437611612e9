package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLimiterAllow(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	l := New(rdb, 2)
	now := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	allowed, used, resetAt, err := l.Allow(context.Background(), "default", now)
	if err != nil {
		t.Fatalf("allow#1: %v", err)
	}
	if !allowed || used != 1 {
		t.Fatalf("expected first call allowed with used=1, got allowed=%v used=%d", allowed, used)
	}
	if want := now.Add(time.Hour); !resetAt.Equal(want) {
		t.Fatalf("expected reset at %v, got %v", want, resetAt)
	}

	allowed, used, _, err = l.Allow(context.Background(), "default", now)
	if err != nil {
		t.Fatalf("allow#2: %v", err)
	}
	if !allowed || used != 2 {
		t.Fatalf("expected second call allowed with used=2, got allowed=%v used=%d", allowed, used)
	}

	allowed, used, _, err = l.Allow(context.Background(), "default", now)
	if err != nil {
		t.Fatalf("allow#3: %v", err)
	}
	if allowed || used != 3 {
		t.Fatalf("expected third call denied with used=3, got allowed=%v used=%d", allowed, used)
	}

	// Other tenants get their own window.
	allowed, used, _, err = l.Allow(context.Background(), "other", now)
	if err != nil {
		t.Fatalf("allow other tenant: %v", err)
	}
	if !allowed || used != 1 {
		t.Fatalf("expected other tenant allowed with used=1, got allowed=%v used=%d", allowed, used)
	}
}

func TestLimiterNilAllowsEverything(t *testing.T) {
	var l *Limiter
	allowed, _, _, err := l.Allow(context.Background(), "default", time.Now())
	if err != nil {
		t.Fatalf("nil limiter: %v", err)
	}
	if !allowed {
		t.Fatal("expected nil limiter to allow")
	}
}
