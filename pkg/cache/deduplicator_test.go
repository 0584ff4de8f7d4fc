package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDeduplicator(t *testing.T) {
	dedup := NewDeduplicator[string]()

	response, err := dedup.Execute(context.Background(), "test-key", func(ctx context.Context) (string, error) {
		return "test response", nil
	})
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if response != "test response" {
		t.Errorf("Expected 'test response', got %s", response)
	}

	stats := dedup.Stats()
	if stats.Requests != 1 {
		t.Errorf("Expected 1 request, got %d", stats.Requests)
	}
	if stats.Deduplicated != 0 {
		t.Errorf("Expected 0 deduplicated, got %d", stats.Deduplicated)
	}
}

func TestDeduplicatorConcurrent(t *testing.T) {
	dedup := NewDeduplicator[string]()

	var calls atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	numRequests := 5
	for i := 0; i < numRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			response, err := dedup.Execute(context.Background(), "test-key", func(ctx context.Context) (string, error) {
				calls.Add(1)
				time.Sleep(100 * time.Millisecond)
				return "test response", nil
			})
			if err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
			if response != "test response" {
				t.Errorf("Expected 'test response', got %s", response)
			}
		}()
	}
	close(start)
	wg.Wait()

	if calls.Load() >= int32(numRequests) {
		t.Errorf("Expected concurrent calls to be deduplicated, got %d executions", calls.Load())
	}
}

func TestDeduplicatorExecuteWithCache(t *testing.T) {
	store, err := NewStore[string, string](Config{MaxSize: 10})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	dedup := NewDeduplicator[string]()

	calls := 0
	fn := func(ctx context.Context) (string, error) {
		calls++
		return "paper_search", nil
	}

	value, hit, err := dedup.ExecuteWithCache(context.Background(), "find papers on RAG", store, fn)
	if err != nil || hit || value != "paper_search" {
		t.Fatalf("unexpected first result: %q hit=%v err=%v", value, hit, err)
	}

	value, hit, err = dedup.ExecuteWithCache(context.Background(), "find papers on RAG", store, fn)
	if err != nil || !hit || value != "paper_search" {
		t.Fatalf("unexpected second result: %q hit=%v err=%v", value, hit, err)
	}

	if calls != 1 {
		t.Errorf("Expected 1 underlying call, got %d", calls)
	}
	if dedup.Stats().CacheHits != 1 {
		t.Errorf("Expected 1 cache hit, got %d", dedup.Stats().CacheHits)
	}
}

func TestDeduplicatorErrorNotCached(t *testing.T) {
	store, _ := NewStore[string, string](Config{MaxSize: 10})
	dedup := NewDeduplicator[string]()

	_, _, err := dedup.ExecuteWithCache(context.Background(), "k", store, func(ctx context.Context) (string, error) {
		return "", errors.New("model unavailable")
	})
	if err == nil {
		t.Fatal("Expected error")
	}
	if store.Len() != 0 {
		t.Error("Expected failed result not to be cached")
	}

	dedup.Reset()
	if dedup.Stats().Requests != 0 {
		t.Error("Expected stats reset")
	}
}
