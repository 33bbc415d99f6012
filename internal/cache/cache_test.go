package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestCache_SetGet(t *testing.T) {
	c := New()
	c.Set(NSPreview+"abc", []byte("792000.bitmap"))

	got, ok := c.Get(NSPreview + "abc")
	if !ok {
		t.Fatal("expected hit")
	}
	if string(got.([]byte)) != "792000.bitmap" {
		t.Errorf("got %q", got)
	}
	if _, ok := c.Get(NSPreview + "missing"); ok {
		t.Error("expected miss for absent key")
	}
}

func TestCache_ExpiryOnAccess(t *testing.T) {
	c := New(WithTTL(10 * time.Millisecond))
	c.Set("k", "v")

	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Fatal("expired entry served")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry not discarded on access, len = %d", c.Len())
	}
}

func TestCache_SweepRemovesExpired(t *testing.T) {
	c := New(WithTTL(10 * time.Millisecond))
	for i := 0; i < 5; i++ {
		c.Set(fmt.Sprintf("old%d", i), i)
	}
	time.Sleep(20 * time.Millisecond)
	c.Set("fresh", 1)

	c.Sweep()

	if c.Len() != 1 {
		t.Errorf("len = %d after sweep, want 1", c.Len())
	}
	if _, ok := c.Get("fresh"); !ok {
		t.Error("fresh entry swept")
	}
}

func TestCache_EvictOldest(t *testing.T) {
	c := New()
	for i := 0; i < 10; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
		time.Sleep(time.Millisecond)
	}

	evicted := c.evictOldest(0.5)
	if evicted != 5 {
		t.Fatalf("evicted %d, want 5", evicted)
	}
	if c.Len() != 5 {
		t.Fatalf("len = %d, want 5", c.Len())
	}
	// The oldest half is gone, the newest half survives.
	for i := 0; i < 5; i++ {
		if _, ok := c.Get(fmt.Sprintf("k%d", i)); ok {
			t.Errorf("old entry k%d survived", i)
		}
	}
	for i := 5; i < 10; i++ {
		if _, ok := c.Get(fmt.Sprintf("k%d", i)); !ok {
			t.Errorf("new entry k%d evicted", i)
		}
	}
}

func TestCache_Overwrite(t *testing.T) {
	c := New()
	c.Set("k", "first")
	c.Set("k", "second")
	got, _ := c.Get("k")
	if got != "second" {
		t.Errorf("got %v, want second", got)
	}
	if c.Len() != 1 {
		t.Errorf("len = %d, want 1", c.Len())
	}
}
