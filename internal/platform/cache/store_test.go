package cache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestStore_GetOrLoad_UsesSingleFlight(t *testing.T) {
	t.Parallel()

	store := NewStore[string](time.Minute)
	var calls atomic.Int32

	loader := func(context.Context) (string, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return "value", nil
	}

	const workers = 32
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(workers)
	errCh := make(chan error, workers)

	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			<-start
			v, err := store.GetOrLoad(context.Background(), "same-key", loader)
			if err != nil {
				errCh <- err
				return
			}
			if v != "value" {
				errCh <- errUnexpectedValue
			}
		}()
	}

	close(start)
	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if got := calls.Load(); got != 1 {
		t.Fatalf("loader called %d times, want 1", got)
	}
}

func TestStore_GetOrLoad_UsesCachedValueAfterFirstLoad(t *testing.T) {
	t.Parallel()

	store := NewStore[string](time.Minute)
	var calls atomic.Int32

	loader := func(context.Context) (string, error) {
		calls.Add(1)
		return "cached", nil
	}

	if _, err := store.GetOrLoad(context.Background(), "k", loader); err != nil {
		t.Fatalf("first GetOrLoad error: %v", err)
	}
	if _, err := store.GetOrLoad(context.Background(), "k", loader); err != nil {
		t.Fatalf("second GetOrLoad error: %v", err)
	}

	if got := calls.Load(); got != 1 {
		t.Fatalf("loader called %d times, want 1", got)
	}
}

func TestStore_ExpiresAfterTTL(t *testing.T) {
	t.Parallel()

	store := NewStore[int](time.Minute)
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	store.Set(context.Background(), "minor:teams", 7)
	if v, ok := store.Get(context.Background(), "minor:teams"); !ok || v != 7 {
		t.Fatalf("expected cached value, got %d ok=%v", v, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := store.Get(context.Background(), "minor:teams"); ok {
		t.Fatalf("expected expired entry")
	}
}

func TestStore_DeletePrefix(t *testing.T) {
	t.Parallel()

	store := NewStore[int](0)
	store.Set(context.Background(), "major:teams", 1)
	store.Set(context.Background(), "minor:teams", 2)
	store.DeletePrefix(context.Background(), "major:")

	if _, ok := store.Get(context.Background(), "major:teams"); ok {
		t.Fatalf("expected major entry removed")
	}
	if _, ok := store.Get(context.Background(), "minor:teams"); !ok {
		t.Fatalf("expected minor entry kept")
	}
}

func TestStore_SweepsExpiredEntriesOnWrite(t *testing.T) {
	t.Parallel()

	store := NewStore[int](time.Minute)
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	store.Set(context.Background(), "user:roles:stale", 1)
	now = now.Add(2 * time.Minute)
	for i := 1; i < sweepInterval; i++ {
		store.Set(context.Background(), "user:roles:"+strconv.Itoa(i), i)
	}

	if got := store.Len(); got != sweepInterval-1 {
		t.Fatalf("expected the stale entry swept, %d entries left", got)
	}
}

func TestStore_GetOrLoad_DoesNotCacheErrors(t *testing.T) {
	t.Parallel()

	store := NewStore[string](time.Minute)
	failing := func(context.Context) (string, error) { return "", errUnexpectedValue }
	if _, err := store.GetOrLoad(context.Background(), "k", failing); !errors.Is(err, errUnexpectedValue) {
		t.Fatalf("expected loader error, got %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("failed load was cached")
	}
	if _, err := store.GetOrLoad(context.Background(), "k", nil); err == nil {
		t.Fatalf("expected error for nil loader")
	}
}

var errUnexpectedValue = errors.New("unexpected loaded value")
