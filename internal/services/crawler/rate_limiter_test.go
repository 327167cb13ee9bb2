package crawler

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiterWaitEnforcesDelayPerDomain(t *testing.T) {
	rl := NewRateLimiter(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	if err := rl.Wait(ctx, "https://a.example.ac.jp/page1"); err != nil {
		t.Fatalf("first Wait returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Millisecond {
		t.Fatalf("first Wait for an unseen domain should not block, took %v", elapsed)
	}

	start = time.Now()
	if err := rl.Wait(ctx, "https://a.example.ac.jp/page2"); err != nil {
		t.Fatalf("second Wait returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("second Wait on same domain should block ~50ms, took %v", elapsed)
	}
}

func TestRateLimiterDomainsAreIndependent(t *testing.T) {
	rl := NewRateLimiter(50 * time.Millisecond)
	ctx := context.Background()

	if err := rl.Wait(ctx, "https://a.example.ac.jp/"); err != nil {
		t.Fatalf("Wait on domain a returned error: %v", err)
	}

	start := time.Now()
	if err := rl.Wait(ctx, "https://b.example.ac.jp/"); err != nil {
		t.Fatalf("Wait on domain b returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Millisecond {
		t.Fatalf("Wait on a different domain should not be throttled by domain a, took %v", elapsed)
	}
}

func TestRateLimiterWaitHonorsContextCancellation(t *testing.T) {
	rl := NewRateLimiter(time.Second)
	ctx := context.Background()
	if err := rl.Wait(ctx, "https://a.example.ac.jp/"); err != nil {
		t.Fatalf("first Wait returned error: %v", err)
	}

	cancelCtx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := rl.Wait(cancelCtx, "https://a.example.ac.jp/"); err == nil {
		t.Fatalf("Wait should return an error once the context is cancelled mid-wait")
	}
}

func TestSetAndGetDomainDelay(t *testing.T) {
	rl := NewRateLimiter(time.Second)

	if got := rl.GetDomainDelay("a.example.ac.jp"); got != time.Second {
		t.Fatalf("GetDomainDelay before any override = %v, want default %v", got, time.Second)
	}

	rl.SetDomainDelay("a.example.ac.jp", 5*time.Second)
	if got := rl.GetDomainDelay("a.example.ac.jp"); got != 5*time.Second {
		t.Fatalf("GetDomainDelay after override = %v, want %v", got, 5*time.Second)
	}
}

func TestExtractDomain(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://www.waseda.jp/admissions/", "www.waseda.jp"},
		{"http://example.ac.jp:8080/x", "example.ac.jp:8080"},
		{"not a url", ""},
	}
	for _, c := range cases {
		if got := extractDomain(c.url); got != c.want {
			t.Errorf("extractDomain(%q) = %q, want %q", c.url, got, c.want)
		}
	}
}
