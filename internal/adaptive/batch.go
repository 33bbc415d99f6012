package adaptive

import "sync"

const (
	batchStep           = 10
	successesToGrow     = 3
	defaultBatchMin     = 10
	defaultBatchMax     = 200
	defaultBatchInitial = 50
)

// BatchSizer picks how many inscriptions a processing batch holds. Three
// consecutive successful batches grow it one step; any failure shrinks it
// immediately.
type BatchSizer struct {
	mu     sync.Mutex
	min    int
	max    int
	size   int
	streak int
}

func NewBatchSizer(min, max, initial int) *BatchSizer {
	if min <= 0 {
		min = defaultBatchMin
	}
	if max < min {
		max = defaultBatchMax
	}
	if initial < min {
		initial = min
	}
	if initial > max {
		initial = max
	}
	return &BatchSizer{min: min, max: max, size: initial}
}

// Size returns the current batch size.
func (b *BatchSizer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// RecordSuccess notes one completed batch.
func (b *BatchSizer) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streak++
	if b.streak >= successesToGrow {
		b.streak = 0
		b.size += batchStep
		if b.size > b.max {
			b.size = b.max
		}
	}
}

// RecordFailure notes a failed batch and shrinks immediately.
func (b *BatchSizer) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streak = 0
	b.size -= batchStep
	if b.size < b.min {
		b.size = b.min
	}
}
