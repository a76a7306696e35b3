//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/medbook/booking/internal/platform/ratelimit"
)

func TestPGLimiter_SharedWindow(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	// Two limiters stand in for two server instances.
	a := ratelimit.NewPGLimiter(pool, 3, time.Minute)
	b := ratelimit.NewPGLimiter(pool, 3, time.Minute)
	key := randomPhone()

	for i, l := range []*ratelimit.PGLimiter{a, b, a} {
		ok, err := l.Allow(ctx, key)
		if err != nil || !ok {
			t.Fatalf("request %d: expected allowed, got %v %v", i+1, ok, err)
		}
	}
	if ok, _ := b.Allow(ctx, key); ok {
		t.Error("fourth request in the window must be denied across instances")
	}
	if ok, _ := a.Allow(ctx, randomPhone()); !ok {
		t.Error("other keys are independent")
	}
}

func TestPGLimiter_WindowResetsAndCleanup(t *testing.T) {
	resetDB(t)
	ctx := context.Background()
	l := ratelimit.NewPGLimiter(pool, 1, 200*time.Millisecond)
	key := randomPhone()

	if ok, _ := l.Allow(ctx, key); !ok {
		t.Fatal("first request must be allowed")
	}
	if ok, _ := l.Allow(ctx, key); ok {
		t.Fatal("second request must be denied")
	}

	time.Sleep(300 * time.Millisecond)
	if n, err := l.Cleanup(ctx); err != nil || n != 1 {
		t.Errorf("expected one finished window removed, got %d %v", n, err)
	}
	if ok, _ := l.Allow(ctx, key); !ok {
		t.Error("a new window must allow again")
	}
}
