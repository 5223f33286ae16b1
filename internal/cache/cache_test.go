package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGetMissLoadsAndPopulates(t *testing.T) {
	c, err := New(time.Minute)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer c.Close()

	loads := 0
	loader := func(context.Context) (any, error) {
		loads++
		return "profile-1", nil
	}

	got, err := c.Get(context.Background(), "profile", "U1", loader)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got != "profile-1" {
		t.Fatalf("expected loaded value, got %v", got)
	}
	if loads != 1 {
		t.Fatalf("expected 1 load, got %d", loads)
	}

	// Second get must hit the cache.
	got, err = c.Get(context.Background(), "profile", "U1", loader)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got != "profile-1" {
		t.Fatalf("expected cached value, got %v", got)
	}
	if loads != 1 {
		t.Fatalf("expected cache hit, got %d loads", loads)
	}
}

func TestGetPropagatesLoaderError(t *testing.T) {
	c, err := New(time.Minute)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer c.Close()

	wantErr := errors.New("db down")
	_, err = c.Get(context.Background(), "vibe", "C1", func(context.Context) (any, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected loader error, got %v", err)
	}
}

func TestEntryExpiresAfterTTL(t *testing.T) {
	c, err := New(time.Second)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer c.Close()

	loads := 0
	loader := func(context.Context) (any, error) {
		loads++
		return loads, nil
	}

	if _, err := c.Get(context.Background(), "vibe", "C1", loader); err != nil {
		t.Fatalf("Get returned error: %v", err)
	}

	time.Sleep(1100 * time.Millisecond)

	got, err := c.Get(context.Background(), "vibe", "C1", loader)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if loads != 2 {
		t.Fatalf("expected reload after TTL expiry, got %d loads", loads)
	}
	if got != 2 {
		t.Fatalf("expected fresh value, got %v", got)
	}
}

func TestInvalidateForcesReload(t *testing.T) {
	c, err := New(time.Minute)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer c.Close()

	value := "old"
	loader := func(context.Context) (any, error) {
		return value, nil
	}

	got, _ := c.Get(context.Background(), "profile", "U1", loader)
	if got != "old" {
		t.Fatalf("expected old value, got %v", got)
	}

	// Simulate a durable write to the backing entity, then invalidate.
	value = "new"
	c.Invalidate("profile", "U1")

	got, err = c.Get(context.Background(), "profile", "U1", loader)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got != "new" {
		t.Fatalf("stale value returned after invalidation: %v", got)
	}
}

func TestNilCacheFallsThroughToLoader(t *testing.T) {
	var c *EntityCache

	loads := 0
	for i := 0; i < 3; i++ {
		got, err := c.Get(context.Background(), "profile", "U1", func(context.Context) (any, error) {
			loads++
			return "v", nil
		})
		if err != nil {
			t.Fatalf("Get returned error: %v", err)
		}
		if got != "v" {
			t.Fatalf("expected loaded value, got %v", got)
		}
	}
	if loads != 3 {
		t.Fatalf("expected every get to load, got %d loads", loads)
	}

	// No-ops, must not panic.
	c.Invalidate("profile", "U1")
	c.Close()
}

func TestTTLSetMembershipExpires(t *testing.T) {
	s, err := NewTTLSet(time.Second)
	if err != nil {
		t.Fatalf("NewTTLSet returned error: %v", err)
	}
	defer s.Close()

	s.Add("C1")
	if !s.Contains("C1") {
		t.Fatalf("expected C1 to be a member")
	}
	if s.Contains("C2") {
		t.Fatalf("C2 must not be a member")
	}

	time.Sleep(1100 * time.Millisecond)
	if s.Contains("C1") {
		t.Fatalf("expected C1 membership to expire")
	}
}
