package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock makes refill deterministic.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(t *testing.T, rps float64, burst int) (*MemoryLimiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewMemoryLimiter(rps, burst)
	m.now = clock.Now
	t.Cleanup(func() {
		if err := m.Close(); err != nil {
			t.Fatalf("Close error: %v", err)
		}
	})
	return m, clock
}

func TestMemoryLimiterAllowsBurstThenDenies(t *testing.T) {
	m, _ := newTestLimiter(t, 1, 3)
	ctx := context.Background()

	for i := range 3 {
		d, err := m.Allow(ctx, "10.0.0.1")
		if err != nil {
			t.Fatalf("Allow error on request %d: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("expected request %d within burst to pass", i)
		}
	}

	d, err := m.Allow(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("Allow error: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected denial after burst exhausted")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Second {
		t.Fatalf("expected RetryAfter in (0, 1s], got %s", d.RetryAfter)
	}
}

func TestMemoryLimiterRefillsOverTime(t *testing.T) {
	m, clock := newTestLimiter(t, 2, 1) // one token every 500ms
	ctx := context.Background()

	if d, _ := m.Allow(ctx, "k"); !d.Allowed {
		t.Fatal("first request should pass")
	}
	if d, _ := m.Allow(ctx, "k"); d.Allowed {
		t.Fatal("second immediate request should be denied")
	}

	clock.Advance(500 * time.Millisecond)
	if d, _ := m.Allow(ctx, "k"); !d.Allowed {
		t.Fatal("expected a refilled token after 500ms")
	}
}

func TestMemoryLimiterDenialDoesNotConsume(t *testing.T) {
	m, clock := newTestLimiter(t, 1, 1)
	ctx := context.Background()

	_, _ = m.Allow(ctx, "k")
	for range 5 {
		if d, _ := m.Allow(ctx, "k"); d.Allowed {
			t.Fatal("expected denial while bucket is empty")
		}
	}
	// Denied calls were cancelled, so one second refills exactly one token.
	clock.Advance(time.Second)
	if d, _ := m.Allow(ctx, "k"); !d.Allowed {
		t.Fatal("expected token after one second despite earlier denials")
	}
}

func TestMemoryLimiterIndependentKeys(t *testing.T) {
	m, _ := newTestLimiter(t, 1, 1)
	ctx := context.Background()

	if d, _ := m.Allow(ctx, "a"); !d.Allowed {
		t.Fatal("first request for 'a' should pass")
	}
	if d, _ := m.Allow(ctx, "a"); d.Allowed {
		t.Fatal("second request for 'a' should be denied")
	}
	if d, _ := m.Allow(ctx, "b"); !d.Allowed {
		t.Fatal("key 'b' should be unaffected by 'a'")
	}
	if m.Len() != 2 {
		t.Fatalf("expected 2 tracked keys, got %d", m.Len())
	}
}

func TestMemoryLimiterConcurrentNeverExceedsBurst(t *testing.T) {
	m, _ := newTestLimiter(t, 1, 50)
	ctx := context.Background()

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				d, err := m.Allow(ctx, "shared")
				if err != nil {
					t.Errorf("Allow error: %v", err)
					return
				}
				if d.Allowed {
					allowed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != 50 {
		t.Fatalf("expected exactly 50 allowed with a frozen clock, got %d", got)
	}
}

func TestMemoryLimiterEvictsStaleKeys(t *testing.T) {
	m, clock := newTestLimiter(t, 10, 5)
	ctx := context.Background()

	_, _ = m.Allow(ctx, "stale")
	clock.Advance(15 * time.Minute)
	_, _ = m.Allow(ctx, "recent")

	m.evictStale(clock.Now().Add(-staleThreshold))

	m.mu.Lock()
	_, staleExists := m.entries["stale"]
	_, recentExists := m.entries["recent"]
	m.mu.Unlock()

	if staleExists {
		t.Fatal("expected stale key to be evicted")
	}
	if !recentExists {
		t.Fatal("expected recent key to survive eviction")
	}
}

func TestMemoryLimiterCloseIdempotent(t *testing.T) {
	m := NewMemoryLimiter(10, 5)
	if err := m.Close(); err != nil {
		t.Fatalf("first Close error: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}
}

func TestNoopLimiterAlwaysAllows(t *testing.T) {
	var l NoopLimiter
	for range 100 {
		d, err := l.Allow(context.Background(), "anything")
		if err != nil || !d.Allowed {
			t.Fatalf("NoopLimiter should always allow, got %+v, %v", d, err)
		}
	}
}
