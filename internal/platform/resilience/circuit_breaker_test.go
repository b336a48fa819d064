package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAndRecoversThroughProbe(t *testing.T) {
	t.Parallel()

	b := NewCircuitBreaker(2, 5*time.Second, 1)
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	var transitions []CircuitState
	b.OnStateChange(func(_, to CircuitState) { transitions = append(transitions, to) })

	boom := errors.New("boom")
	_ = b.Execute(func() error { return boom }, nil)
	if state := b.State(); state != CircuitStateClosed {
		t.Fatalf("expected closed after first failure, got %s", state)
	}
	_ = b.Execute(func() error { return boom }, nil)
	if state := b.State(); state != CircuitStateOpen {
		t.Fatalf("expected open after threshold failures, got %s", state)
	}

	if err := b.Execute(func() error { return nil }, nil); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected circuit open error, got %v", err)
	}

	now = now.Add(6 * time.Second)
	if err := b.Execute(func() error { return nil }, nil); err != nil {
		t.Fatalf("expected half-open probe to pass, got %v", err)
	}
	if state := b.State(); state != CircuitStateClosed {
		t.Fatalf("expected closed after successful probe, got %s", state)
	}

	want := []CircuitState{CircuitStateOpen, CircuitStateHalfOpen, CircuitStateClosed}
	if len(transitions) != len(want) {
		t.Fatalf("unexpected transitions: %v", transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("unexpected transitions: %v", transitions)
		}
	}
}

func TestCircuitBreaker_IgnoresUncountedErrors(t *testing.T) {
	t.Parallel()

	b := NewCircuitBreaker(1, time.Minute, 1)
	notFound := errors.New("not found")
	_ = b.Execute(func() error { return notFound }, func(err error) bool { return !errors.Is(err, notFound) })

	if state := b.State(); state != CircuitStateClosed {
		t.Fatalf("expected closed, got %s", state)
	}
}

func TestCircuitBreaker_NilAdmitsEverything(t *testing.T) {
	t.Parallel()

	var b *CircuitBreaker
	if err := b.Execute(func() error { return nil }, nil); err != nil {
		t.Fatalf("nil breaker should admit: %v", err)
	}
	if NewCircuitBreakerFromConfig(CircuitBreakerConfig{Enabled: false}) != nil {
		t.Fatalf("disabled config should yield nil breaker")
	}
}

func TestRetry_StopsOnPermanent(t *testing.T) {
	t.Parallel()

	var calls int
	_, err := Retry(context.Background(), RetryConfig{MaxAttempts: 5, InitialInterval: time.Millisecond}, func() (int, error) {
		calls++
		return 0, Permanent(errors.New("bad request"))
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected single attempt, got %d", calls)
	}
}

func TestRetry_RetriesTransient(t *testing.T) {
	t.Parallel()

	var calls int
	got, err := Retry(context.Background(), RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond}, func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("timeout")
		}
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Fatalf("unexpected result got=%q err=%v", got, err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestGroup_CollapsesConcurrentCalls(t *testing.T) {
	t.Parallel()

	var g Group[int]
	var calls atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})

	var wg sync.WaitGroup
	results := make([]int, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _, _ := g.Do("teams", func() (int, error) {
				if calls.Add(1) == 1 {
					close(started)
				}
				<-release
				return 42, nil
			})
			results[i] = v
		}(i)
	}

	<-started
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected one execution, got %d", calls.Load())
	}
	for _, v := range results {
		if v != 42 {
			t.Fatalf("unexpected results: %v", results)
		}
	}
}
