package upstream

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

const probeTimeout = 10 * time.Second

// reprobe after this many consecutive transient failures on the primary.
const reprobeThreshold = 5

// Endpoints tracks which base URL a client currently talks to. Local
// candidates are probed in order at startup; during operation, repeated
// transient failures trigger a re-probe and, unless localOnly is set, a fall
// back to the external URL.
type Endpoints struct {
	name       string // for logs: "ordinals" or "tx"
	candidates []string
	fallback   string
	localOnly  bool
	smoke      func(ctx context.Context, base string) error

	mu          sync.Mutex
	primary     string
	consecutive int
}

// NewEndpoints builds an endpoint selector. smoke issues one cheap call
// against a candidate base URL and returns nil on success.
func NewEndpoints(name string, candidates []string, fallback string, localOnly bool,
	smoke func(ctx context.Context, base string) error) *Endpoints {
	return &Endpoints{
		name:       name,
		candidates: candidates,
		fallback:   fallback,
		localOnly:  localOnly,
		smoke:      smoke,
	}
}

// Select probes the candidate list and picks the first healthy base URL.
// With no healthy local candidate, the external fallback is used unless
// local-only mode forbids it.
func (e *Endpoints) Select(ctx context.Context) error {
	for _, base := range e.candidates {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := e.smoke(probeCtx, base)
		cancel()
		if err == nil {
			e.mu.Lock()
			e.primary = base
			e.consecutive = 0
			e.mu.Unlock()
			log.Printf("[Upstream] %s: using local endpoint %s", e.name, base)
			return nil
		}
		log.Printf("[Upstream] %s: probe of %s failed: %v", e.name, base, err)
	}

	if e.localOnly || e.fallback == "" {
		return errors.New("no healthy local endpoint and external fallback disabled")
	}

	e.mu.Lock()
	e.primary = e.fallback
	e.consecutive = 0
	e.mu.Unlock()
	log.Printf("[Upstream] %s: no healthy local endpoint, falling back to %s", e.name, e.fallback)
	return nil
}

// Primary returns the current base URL.
func (e *Endpoints) Primary() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.primary
}

// Note records the outcome of a call against the primary. A run of transient
// failures re-runs selection; other outcomes reset the counter.
func (e *Endpoints) Note(err error) {
	e.mu.Lock()
	if err == nil || !IsTransient(err) {
		e.consecutive = 0
		e.mu.Unlock()
		return
	}
	e.consecutive++
	trigger := e.consecutive >= reprobeThreshold
	if trigger {
		e.consecutive = 0
	}
	e.mu.Unlock()

	if trigger {
		log.Printf("[Upstream] %s: %d consecutive transient failures, re-probing endpoints",
			e.name, reprobeThreshold)
		if err := e.Select(context.Background()); err != nil {
			log.Printf("[Upstream] %s: re-probe failed: %v", e.name, err)
		}
	}
}
