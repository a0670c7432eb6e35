package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/cem-sucu/ia-familiale/internal/cache"
	"github.com/cem-sucu/ia-familiale/internal/cache/memory"
)

func TestCache_SetGet(t *testing.T) {
	c := memory.New(time.Minute, 0)
	defer c.Close()
	ctx := context.Background()

	err := c.Set(ctx, "key1", []byte("value1"), time.Minute)
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	val, err := c.Get(ctx, "key1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(val) != "value1" {
		t.Errorf("expected 'value1', got %q", string(val))
	}
}

func TestCache_GetNotFound(t *testing.T) {
	c := memory.New(time.Minute, 0)
	defer c.Close()

	_, err := c.Get(context.Background(), "nonexistent")
	if err != cache.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCache_Expiration(t *testing.T) {
	c := memory.New(time.Minute, 0)
	defer c.Close()
	ctx := context.Background()

	err := c.Set(ctx, "key1", []byte("value1"), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	_, err = c.Get(ctx, "key1")
	if err != cache.ErrExpired {
		t.Errorf("expected ErrExpired, got %v", err)
	}

	exists, _ := c.Exists(ctx, "key1")
	if exists {
		t.Error("expired key should not exist")
	}
}

func TestCache_Increment(t *testing.T) {
	c := memory.New(time.Minute, 0)
	defer c.Close()
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, _, err := c.Increment(ctx, "counter", 1, time.Minute)
		if err != nil {
			t.Fatalf("Increment failed: %v", err)
		}
		if n != i {
			t.Errorf("Increment = %d, want %d", n, i)
		}
	}

	n, err := c.GetCount(ctx, "counter")
	if err != nil {
		t.Fatalf("GetCount failed: %v", err)
	}
	if n != 3 {
		t.Errorf("GetCount = %d, want 3", n)
	}

	if err := c.Reset(ctx, "counter"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	n, _ = c.GetCount(ctx, "counter")
	if n != 0 {
		t.Errorf("GetCount after Reset = %d, want 0", n)
	}
}

func TestCache_IncrementExpiredWindowRestarts(t *testing.T) {
	c := memory.New(time.Minute, 0)
	defer c.Close()
	ctx := context.Background()

	if _, _, err := c.Increment(ctx, "counter", 5, 10*time.Millisecond); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	n, _, err := c.Increment(ctx, "counter", 1, time.Minute)
	if err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Increment after expiry = %d, want 1 (fresh window)", n)
	}
}
