package adaptive

import (
	"context"
	"testing"
	"time"
)

func record(m *Manager, n int, success bool, latency time.Duration) {
	for i := 0; i < n; i++ {
		m.Record(success, latency)
	}
}

func TestManager_RaisesOnHealthyWindow(t *testing.T) {
	m := NewManager(1, 50, 10)
	record(m, 100, true, 200*time.Millisecond)

	m.Adjust(context.Background())
	if got := m.Limit(); got != 12 {
		t.Errorf("limit = %d, want 12 after healthy window", got)
	}
}

func TestManager_LowersOnFailures(t *testing.T) {
	m := NewManager(1, 50, 10)
	record(m, 30, true, 200*time.Millisecond)
	record(m, 70, false, 200*time.Millisecond)

	m.Adjust(context.Background())
	if got := m.Limit(); got != 9 {
		t.Errorf("limit = %d, want 9 after failure-heavy window", got)
	}
}

func TestManager_LowersOnHighLatency(t *testing.T) {
	m := NewManager(1, 50, 10)
	record(m, 50, true, 6*time.Second)

	m.Adjust(context.Background())
	if got := m.Limit(); got != 9 {
		t.Errorf("limit = %d, want 9 after slow window", got)
	}
}

func TestManager_ClampsAtBounds(t *testing.T) {
	m := NewManager(1, 12, 11)
	record(m, 100, true, 100*time.Millisecond)
	m.Adjust(context.Background())
	if got := m.Limit(); got != 12 {
		t.Errorf("limit = %d, want clamp at max 12", got)
	}

	m2 := NewManager(1, 50, 1)
	record(m2, 100, false, 100*time.Millisecond)
	m2.Adjust(context.Background())
	if got := m2.Limit(); got != 1 {
		t.Errorf("limit = %d, want clamp at min 1", got)
	}
}

func TestManager_NoSamplesNoChange(t *testing.T) {
	m := NewManager(1, 50, 10)
	m.Adjust(context.Background())
	if got := m.Limit(); got != 10 {
		t.Errorf("limit = %d, want unchanged 10", got)
	}
}

func TestManager_SemaphoreTracksLimit(t *testing.T) {
	m := NewManager(1, 50, 2)
	ctx := context.Background()

	if err := m.Acquire(ctx); err != nil {
		t.Fatal(err)
	}
	if err := m.Acquire(ctx); err != nil {
		t.Fatal(err)
	}

	// A third slot must not be available while the limit is 2.
	probe, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := m.Acquire(probe); err == nil {
		t.Fatal("acquired beyond the limit")
	}

	// Growing the limit frees headroom immediately.
	record(m, 100, true, 100*time.Millisecond)
	m.Adjust(ctx)
	if err := m.Acquire(ctx); err != nil {
		t.Fatalf("acquire after raise: %v", err)
	}

	m.Release()
	m.Release()
	m.Release()
}

func TestBatchSizer_GrowsAfterConsecutiveSuccesses(t *testing.T) {
	b := NewBatchSizer(10, 200, 50)

	b.RecordSuccess()
	b.RecordSuccess()
	if got := b.Size(); got != 50 {
		t.Errorf("size = %d, want 50 before third success", got)
	}
	b.RecordSuccess()
	if got := b.Size(); got != 60 {
		t.Errorf("size = %d, want 60 after three successes", got)
	}
}

func TestBatchSizer_ShrinksOnFailure(t *testing.T) {
	b := NewBatchSizer(10, 200, 50)
	b.RecordFailure()
	if got := b.Size(); got != 40 {
		t.Errorf("size = %d, want 40 after failure", got)
	}
}

func TestBatchSizer_FailureResetsGrowthStreak(t *testing.T) {
	b := NewBatchSizer(10, 200, 50)
	b.RecordSuccess()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordSuccess()
	b.RecordSuccess()
	if got := b.Size(); got != 50 {
		t.Errorf("size = %d, want 40+10=50 after streak reset", got)
	}
}

func TestBatchSizer_Bounds(t *testing.T) {
	b := NewBatchSizer(10, 20, 15)
	for i := 0; i < 10; i++ {
		b.RecordFailure()
	}
	if got := b.Size(); got != 10 {
		t.Errorf("size = %d, want floor 10", got)
	}
	for i := 0; i < 30; i++ {
		b.RecordSuccess()
	}
	if got := b.Size(); got != 20 {
		t.Errorf("size = %d, want ceiling 20", got)
	}
}
