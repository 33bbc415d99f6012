// Package adaptive holds the two feedback controllers: the concurrency
// manager bounding in-flight upstream calls and the dynamic batch sizer.
package adaptive

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

const (
	adjustInterval = 30 * time.Second
	sampleWindow   = 60 * time.Second
	maxSamples     = 100

	raiseSuccessRate = 0.95
	raiseLatency     = 2000 * time.Millisecond
	lowerSuccessRate = 0.80
	lowerLatency     = 5000 * time.Millisecond
)

type sample struct {
	at      time.Time
	success bool
	latency time.Duration
}

// Manager is the adaptive concurrency limiter. It exposes a semaphore whose
// effective size tracks rolling upstream success rate and latency. It also
// implements upstream.Recorder.
type Manager struct {
	min, max int
	sem      *semaphore.Weighted // capacity max; (max - limit) units held back

	mu      sync.Mutex
	limit   int
	samples []sample
}

// NewManager builds a limiter with limit ∈ [min, max] starting at initial.
func NewManager(min, max, initial int) *Manager {
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}
	if initial < min {
		initial = min
	}
	if initial > max {
		initial = max
	}
	m := &Manager{
		min:   min,
		max:   max,
		sem:   semaphore.NewWeighted(int64(max)),
		limit: initial,
	}
	// Hold back the headroom above the initial limit. Nothing is in flight
	// yet, so this cannot fail.
	if !m.sem.TryAcquire(int64(max - initial)) {
		panic("adaptive: reserving initial headroom failed")
	}
	return m
}

// Acquire blocks until a slot under the current limit is free.
func (m *Manager) Acquire(ctx context.Context) error {
	return m.sem.Acquire(ctx, 1)
}

// Release returns a slot.
func (m *Manager) Release() {
	m.sem.Release(1)
}

// Limit returns the current concurrency limit.
func (m *Manager) Limit() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.limit
}

// Record adds one call outcome to the rolling window.
func (m *Manager) Record(success bool, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, sample{at: time.Now(), success: success, latency: latency})
	if len(m.samples) > maxSamples {
		m.samples = m.samples[len(m.samples)-maxSamples:]
	}
}

// Run adjusts the limit every 30s until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(adjustInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Adjust(ctx)
		}
	}
}

// Adjust applies the control rule once. Exposed for tests.
func (m *Manager) Adjust(ctx context.Context) {
	successRate, avgLatency, n := m.windowStats()
	if n == 0 {
		return
	}

	m.mu.Lock()
	cur := m.limit
	m.mu.Unlock()

	target := cur
	switch {
	case successRate > raiseSuccessRate && avgLatency < raiseLatency && cur < m.max:
		target = cur + 2
	case successRate < lowerSuccessRate || avgLatency > lowerLatency:
		target = cur - 1
	}
	if target > m.max {
		target = m.max
	}
	if target < m.min {
		target = m.min
	}
	if target == cur {
		return
	}

	log.Printf("[Adaptive] concurrency %d -> %d (success %.2f, latency %dms over %d calls)",
		cur, target, successRate, avgLatency.Milliseconds(), n)
	m.applyLimit(ctx, target)
}

// applyLimit moves the held-back headroom so that exactly (max - target)
// units stay reserved. Shrinking waits for in-flight calls to drain, which
// is the intended backpressure.
func (m *Manager) applyLimit(ctx context.Context, target int) {
	m.mu.Lock()
	diff := target - m.limit
	m.limit = target
	m.mu.Unlock()

	if diff > 0 {
		m.sem.Release(int64(diff))
	} else if diff < 0 {
		if err := m.sem.Acquire(ctx, int64(-diff)); err != nil {
			// Shutdown; restore the accounting.
			m.mu.Lock()
			m.limit += -diff
			m.mu.Unlock()
		}
	}
}

// windowStats computes success rate and mean latency over the samples of the
// last 60s (at most 100).
func (m *Manager) windowStats() (successRate float64, avgLatency time.Duration, n int) {
	cutoff := time.Now().Add(-sampleWindow)

	m.mu.Lock()
	defer m.mu.Unlock()

	// Drop aged-out samples while we are here.
	first := 0
	for first < len(m.samples) && m.samples[first].at.Before(cutoff) {
		first++
	}
	m.samples = m.samples[first:]

	if len(m.samples) == 0 {
		return 0, 0, 0
	}
	var ok int
	var total time.Duration
	for _, s := range m.samples {
		if s.success {
			ok++
		}
		total += s.latency
	}
	n = len(m.samples)
	return float64(ok) / float64(n), total / time.Duration(n), n
}
