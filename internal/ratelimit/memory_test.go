package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemLimiter_AllowsUpToLimit(t *testing.T) {
	l := NewMemLimiter()
	p := Policy{Limit: 3, Window: time.Minute}

	for i := range 3 {
		d, err := l.Allow(context.Background(), "user:a", p)
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("request %d denied, want allowed", i)
		}
		if d.Remaining != 3-i-1 {
			t.Errorf("request %d remaining = %d, want %d", i, d.Remaining, 3-i-1)
		}
	}

	d, err := l.Allow(context.Background(), "user:a", p)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if d.Allowed {
		t.Fatal("request over limit allowed")
	}
	if d.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want > 0", d.RetryAfter)
	}
}

func TestMemLimiter_KeysAreIndependent(t *testing.T) {
	l := NewMemLimiter()
	p := Policy{Limit: 1, Window: time.Minute}

	if d, _ := l.Allow(context.Background(), "user:a", p); !d.Allowed {
		t.Fatal("first key denied")
	}
	if d, _ := l.Allow(context.Background(), "user:b", p); !d.Allowed {
		t.Fatal("second key denied, keys should not share a window")
	}
	if d, _ := l.Allow(context.Background(), "user:a", p); d.Allowed {
		t.Fatal("first key allowed over limit")
	}
}

func TestMemLimiter_WindowSlides(t *testing.T) {
	l := NewMemLimiter()
	current := time.Now()
	l.now = func() time.Time { return current }
	p := Policy{Limit: 2, Window: time.Minute}

	l.Allow(context.Background(), "user:a", p)
	l.Allow(context.Background(), "user:a", p)
	if d, _ := l.Allow(context.Background(), "user:a", p); d.Allowed {
		t.Fatal("over limit allowed")
	}

	// Halfway through the window: still denied.
	current = current.Add(30 * time.Second)
	if d, _ := l.Allow(context.Background(), "user:a", p); d.Allowed {
		t.Fatal("allowed before window slid past first request")
	}

	// Past the window of the first two requests: allowed again.
	current = current.Add(31 * time.Second)
	if d, _ := l.Allow(context.Background(), "user:a", p); !d.Allowed {
		t.Fatal("denied after window slid")
	}
}

func TestMemLimiter_RetryAfterTracksOldestEntry(t *testing.T) {
	l := NewMemLimiter()
	current := time.Now()
	l.now = func() time.Time { return current }
	p := Policy{Limit: 1, Window: time.Minute}

	l.Allow(context.Background(), "user:a", p)

	current = current.Add(20 * time.Second)
	d, _ := l.Allow(context.Background(), "user:a", p)
	if d.Allowed {
		t.Fatal("over limit allowed")
	}
	if d.RetryAfter != 40*time.Second {
		t.Errorf("RetryAfter = %v, want 40s", d.RetryAfter)
	}
}

func TestMemLimiter_ConcurrentRequestsNeverExceedLimit(t *testing.T) {
	l := NewMemLimiter()
	p := Policy{Limit: 10, Window: time.Minute}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 50 {
		wg.Go(func() {
			d, err := l.Allow(context.Background(), "user:a", p)
			if err != nil {
				t.Errorf("allow: %v", err)
				return
			}
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	if allowed != 10 {
		t.Fatalf("allowed = %d, want exactly 10", allowed)
	}
}
