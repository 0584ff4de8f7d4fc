package cache

import (
	"fmt"
	"testing"
)

func TestStore(t *testing.T) {
	store, err := NewStore[string, string](Config{MaxSize: 10})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	store.Set("test-key", "test response")

	value, exists := store.Get("test-key")
	if !exists {
		t.Error("Expected entry to exist")
	}
	if value != "test response" {
		t.Errorf("Expected 'test response', got %s", value)
	}

	if _, exists := store.Get("missing"); exists {
		t.Error("Expected missing key to be absent")
	}

	stats := store.Stats()
	if stats.Hits != 1 {
		t.Errorf("Expected 1 hit, got %d", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("Expected 1 miss, got %d", stats.Misses)
	}
	if stats.HitRate != 0.5 {
		t.Errorf("Expected hit rate 0.5, got %f", stats.HitRate)
	}
}

func TestStoreDefaultSize(t *testing.T) {
	store, err := NewStore[string, int](Config{})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if got := store.Stats().MaxSize; got != DefaultMaxSize {
		t.Errorf("Expected max size %d, got %d", DefaultMaxSize, got)
	}
}

func TestStoreEviction(t *testing.T) {
	store, err := NewStore[string, int](Config{MaxSize: 3})
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	for i := 0; i < 5; i++ {
		store.Set(fmt.Sprintf("key-%d", i), i)
	}

	if store.Len() != 3 {
		t.Errorf("Expected store size to be 3, got %d", store.Len())
	}

	stats := store.Stats()
	if stats.Evictions != 2 {
		t.Errorf("Expected 2 evictions, got %d", stats.Evictions)
	}

	if _, ok := store.Peek("key-0"); ok {
		t.Error("Expected oldest key to be evicted")
	}
}

func TestStoreClear(t *testing.T) {
	store, err := NewStore[string, int](DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	for i := 0; i < 3; i++ {
		store.Set(fmt.Sprintf("key-%d", i), i)
	}
	if store.Len() != 3 {
		t.Errorf("Expected store size to be 3, got %d", store.Len())
	}

	store.Clear()

	if store.Len() != 0 {
		t.Errorf("Expected store size to be 0, got %d", store.Len())
	}
	if store.Stats().Evictions != 0 {
		t.Errorf("Expected clear not to count as eviction, got %d", store.Stats().Evictions)
	}

	store.Delete("key-0")
	store.ResetStats()
	if len(store.Keys()) != 0 {
		t.Error("Expected no keys after clear")
	}
}
