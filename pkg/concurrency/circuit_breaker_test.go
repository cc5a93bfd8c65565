package concurrency

import (
	"context"
	"errors"
	"testing"
	"time"
)

func failingCall(context.Context) (interface{}, error) {
	return nil, errors.New("boom")
}

func succeedingCall(context.Context) (interface{}, error) {
	return "ok", nil
}

// After >=50% failures over a window of >=20 calls, the breaker opens
// and short-circuits without invoking the protected function again.
func TestCircuitBreaker_OpensOnFailureRate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WindowSize = 20
	cfg.MinWindowForTrip = 20
	cb := NewCircuitBreaker("test", cfg, nil)

	for i := 0; i < 20; i++ {
		_, _ = cb.Execute(context.Background(), failingCall)
	}

	if cb.State() != StateOpen {
		t.Fatalf("expected breaker OPEN after 20 failures, got %s", cb.State())
	}

	calls := 0
	probe := func(ctx context.Context) (interface{}, error) {
		calls++
		return "ok", nil
	}
	_, err := cb.Execute(context.Background(), probe)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("protected function must not run while OPEN, ran %d times", calls)
	}
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WindowSize = 20
	cfg.MinWindowForTrip = 20
	cfg.OpenTimeout = 10 * time.Millisecond
	cfg.HalfOpenMaxProbes = 2
	cfg.HalfOpenSuccessRatio = 0.5
	cb := NewCircuitBreaker("test", cfg, nil)

	for i := 0; i < 20; i++ {
		_, _ = cb.Execute(context.Background(), failingCall)
	}
	if cb.State() != StateOpen {
		t.Fatalf("expected OPEN, got %s", cb.State())
	}

	time.Sleep(15 * time.Millisecond)

	for i := 0; i < 2; i++ {
		if _, err := cb.Execute(context.Background(), succeedingCall); err != nil {
			t.Fatalf("probe %d failed: %v", i, err)
		}
	}

	if cb.State() != StateClosed {
		t.Fatalf("expected CLOSED after successful probes, got %s", cb.State())
	}
}

func TestCircuitBreaker_FallbackOnOpen(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WindowSize = 20
	cfg.MinWindowForTrip = 20
	cb := NewCircuitBreaker("test", cfg, nil)
	cb.SetFallback(func(ctx context.Context, cause error) (interface{}, error) {
		return "fallback-value", nil
	})

	for i := 0; i < 20; i++ {
		_, _ = cb.Execute(context.Background(), failingCall)
	}

	result, err := cb.Execute(context.Background(), succeedingCall)
	if err != nil {
		t.Fatalf("expected fallback to suppress error, got %v", err)
	}
	if result != "fallback-value" {
		t.Fatalf("expected fallback value, got %v", result)
	}
}

func TestManager_GetOrCreateIsolatesBreakers(t *testing.T) {
	mgr := NewManager(nil)
	importance := mgr.GetOrCreate("importance", DefaultConfig())
	embed := mgr.GetOrCreate("embed", DefaultConfig())

	if importance == embed {
		t.Fatal("expected distinct breaker instances per operation")
	}

	for i := 0; i < 20; i++ {
		_, _ = importance.Execute(context.Background(), failingCall)
	}
	if importance.State() != StateOpen {
		t.Fatalf("expected importance breaker OPEN, got %s", importance.State())
	}
	if embed.State() != StateClosed {
		t.Fatalf("expected embed breaker unaffected, got %s", embed.State())
	}
}
