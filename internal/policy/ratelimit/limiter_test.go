package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLimiter_Wait(t *testing.T) {
	var (
		mu       sync.Mutex
		observed []string
	)
	l := New(Config{
		DefaultRPS:   10, // 10 requests per second = 100ms interval
		DefaultBurst: 1,
		Observe: func(key string, _ time.Duration) {
			mu.Lock()
			defer mu.Unlock()
			observed = append(observed, key)
		},
	})
	ctx := context.Background()

	// Consume initial token
	if err := l.Wait(ctx, "tjba"); err != nil {
		t.Fatal(err)
	}

	// Next one should wait ~100ms
	start := time.Now()
	if err := l.Wait(ctx, "TJBA"); err != nil {
		t.Fatal(err)
	}
	if dur := time.Since(start); dur < 80*time.Millisecond {
		t.Errorf("expected wait ~100ms, got %v", dur)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(observed) != 1 || observed[0] != "TJBA" {
		t.Errorf("expected one TJBA observation, got %v", observed)
	}
}

func TestLimiter_DifferentCourts(t *testing.T) {
	l := New(Config{
		DefaultRPS:   1, // 1 RPS = 1s interval
		DefaultBurst: 1,
	})
	ctx := context.Background()

	if err := l.Wait(ctx, "TJBA"); err != nil {
		t.Fatal(err)
	}

	// TJSP should not be blocked by TJBA
	start := time.Now()
	if err := l.Wait(ctx, "TJSP"); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 10*time.Millisecond {
		t.Errorf("court TJSP blocked unexpectedly")
	}
}

func TestLimiter_OverrideAndCancel(t *testing.T) {
	l := New(Config{
		DefaultRPS:   0, // unlimited
		DefaultBurst: 1,
		PerCourtRPS:  map[string]float64{"tjsp": 0.01},
	})

	for i := 0; i < 5; i++ {
		if err := l.Wait(context.Background(), "TJBA"); err != nil {
			t.Fatalf("unlimited court should not wait: %v", err)
		}
	}

	if err := l.Wait(context.Background(), "TJSP"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "TJSP"); err == nil {
		t.Fatal("expected the throttled court to give up on context deadline")
	}
}
