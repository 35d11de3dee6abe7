package infra

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiter_BurstThenDeny(t *testing.T) {
	rl := NewRateLimiter(3, 1)

	for i := 0; i < 3; i++ {
		if !rl.TryAcquire() {
			t.Fatalf("expected token %d of burst to be available", i+1)
		}
	}
	if rl.TryAcquire() {
		t.Error("expected bucket to be empty after burst")
	}
}

func TestRateLimiter_Refills(t *testing.T) {
	rl := NewRateLimiter(1, 100) // 100 tokens/sec -> 10ms per token

	if !rl.TryAcquire() {
		t.Fatal("expected initial token")
	}
	if rl.TryAcquire() {
		t.Fatal("expected empty bucket")
	}

	time.Sleep(20 * time.Millisecond)
	if !rl.TryAcquire() {
		t.Error("expected a refilled token after 20ms at 100/s")
	}
}

func TestRateLimiter_WaitHonorsContext(t *testing.T) {
	rl := NewRateLimiter(1, 0.1) // Very slow refill.
	if !rl.TryAcquire() {
		t.Fatal("expected initial token")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if err := rl.Wait(ctx); err == nil {
		t.Error("expected Wait to fail once the context expires")
	}
}
