package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLockoutAfterThreshold(t *testing.T) {
	store := NewMemoryCounterStore()
	defer store.Close()

	guard := NewLockoutGuard(store, 5, time.Minute)
	ctx := context.Background()
	addr := "203.0.113.7"

	for i := 0; i < 4; i++ {
		guard.RecordFailure(ctx, addr)
		if d := guard.Check(ctx, addr); !d.Allowed {
			t.Fatalf("should not be locked after %d failures", i+1)
		}
	}

	guard.RecordFailure(ctx, addr)

	d := guard.Check(ctx, addr)
	if d.Allowed {
		t.Fatal("5th consecutive failure should lock the address")
	}
	if d.RetryAfter <= 0 {
		t.Errorf("locked decision should carry a retry-after, got %v", d.RetryAfter)
	}

	// Other addresses are unaffected.
	if d := guard.Check(ctx, "203.0.113.8"); !d.Allowed {
		t.Fatal("lockout must be scoped to the failing address")
	}
}

func TestLockoutExpires(t *testing.T) {
	store := NewMemoryCounterStore()
	defer store.Close()

	guard := NewLockoutGuard(store, 2, 60*time.Millisecond)
	ctx := context.Background()
	addr := "203.0.113.9"

	guard.RecordFailure(ctx, addr)
	guard.RecordFailure(ctx, addr)
	if d := guard.Check(ctx, addr); d.Allowed {
		t.Fatal("address should be locked")
	}

	time.Sleep(90 * time.Millisecond)

	if d := guard.Check(ctx, addr); !d.Allowed {
		t.Fatal("lock should have expired")
	}
}

func TestLockoutClearOnSuccess(t *testing.T) {
	store := NewMemoryCounterStore()
	defer store.Close()

	guard := NewLockoutGuard(store, 3, time.Minute)
	ctx := context.Background()
	addr := "203.0.113.10"

	guard.RecordFailure(ctx, addr)
	guard.RecordFailure(ctx, addr)
	guard.Clear(ctx, addr)

	// The streak restarts: two more failures stay under the threshold.
	guard.RecordFailure(ctx, addr)
	guard.RecordFailure(ctx, addr)
	if d := guard.Check(ctx, addr); !d.Allowed {
		t.Fatal("clear should reset the consecutive failure streak")
	}
}
