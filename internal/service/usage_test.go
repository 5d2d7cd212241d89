package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingStore struct {
	mu     sync.Mutex
	counts map[string]int
	fail   error
	calls  atomic.Int64
}

func (s *countingStore) IncrementAPIKeyUsage(_ context.Context, id string, _ time.Time) error {
	s.calls.Add(1)
	if s.fail != nil {
		return s.fail
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts == nil {
		s.counts = map[string]int{}
	}
	s.counts[id]++
	return nil
}

func (s *countingStore) count(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[id]
}

func TestUsageRecorderConcurrentRecords(t *testing.T) {
	svc, store := newTestKeys(t)
	ctx := context.Background()
	issued := mustIssue(t, svc, "busy")

	rec := NewUsageRecorder(store, UsageOptions{Workers: 4, QueueSize: 16})
	rec.Start(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.Record(issued.Key.ID)
		}()
	}
	wg.Wait()
	rec.Close()

	key, err := store.GetAPIKey(ctx, issued.Key.ID)
	if err != nil {
		t.Fatalf("GetAPIKey: %v", err)
	}
	if key.UsageCount != 100 {
		t.Errorf("usage_count: got %d, want 100", key.UsageCount)
	}
	if key.LastUsedAt == nil {
		t.Error("expected last_used_at to be set")
	}
}

func TestUsageRecorderOverflowDropsNothing(t *testing.T) {
	store := &countingStore{}
	rec := NewUsageRecorder(store, UsageOptions{Workers: 1, QueueSize: 0})

	// Nothing is consuming yet, so every record overflows.
	for i := 0; i < 25; i++ {
		rec.Record("k1")
	}
	rec.Start(context.Background())
	rec.Close()

	if got := store.count("k1"); got != 25 {
		t.Errorf("count: got %d, want 25", got)
	}
}

func TestUsageRecorderCloseDrainsWithoutStart(t *testing.T) {
	store := &countingStore{}
	rec := NewUsageRecorder(store, UsageOptions{Workers: 2, QueueSize: 10})

	for i := 0; i < 5; i++ {
		rec.Record("k1")
	}
	rec.Close()

	if got := store.count("k1"); got != 5 {
		t.Errorf("count: got %d, want 5", got)
	}
}

func TestUsageRecorderReportsErrors(t *testing.T) {
	boom := errors.New("boom")
	store := &countingStore{fail: boom}
	rec := NewUsageRecorder(store, UsageOptions{Workers: 1, QueueSize: 4})
	rec.Start(context.Background())

	rec.Record("k1")

	select {
	case err := <-rec.Errors():
		if !errors.Is(err, boom) {
			t.Errorf("got %v, want wrapped boom", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for usage error")
	}
	rec.Close()
}

func TestUsageRecorderErrorsDoNotBlock(t *testing.T) {
	store := &countingStore{fail: errors.New("boom")}
	rec := NewUsageRecorder(store, UsageOptions{Workers: 2, QueueSize: 8})
	rec.Start(context.Background())

	// Nobody reads Errors(); recording must still complete.
	for i := 0; i < 200; i++ {
		rec.Record("k1")
	}
	rec.Close()

	if got := store.calls.Load(); got != 200 {
		t.Errorf("calls: got %d, want 200", got)
	}
}

func TestUsageRecorderRecordAfterClose(t *testing.T) {
	store := &countingStore{}
	rec := NewUsageRecorder(store, UsageOptions{Workers: 1, QueueSize: 1})
	rec.Start(context.Background())
	rec.Close()
	rec.Close()

	rec.Record("late")

	select {
	case err := <-rec.Errors():
		if !errors.Is(err, ErrRecorderClosed) {
			t.Errorf("got %v, want ErrRecorderClosed", err)
		}
	default:
		t.Error("expected ErrRecorderClosed to be reported")
	}
	if got := store.count("late"); got != 0 {
		t.Errorf("late record applied: %d", got)
	}
}

func TestUsageRecorderUnknownKey(t *testing.T) {
	_, store := newTestKeys(t)
	rec := NewUsageRecorder(store, UsageOptions{Workers: 1, QueueSize: 1})
	rec.Start(context.Background())

	rec.Record("does-not-exist")
	rec.Close()

	select {
	case err := <-rec.Errors():
		if err == nil {
			t.Fatal("expected error")
		}
	default:
		t.Error("expected an error for an unknown key id")
	}
}
