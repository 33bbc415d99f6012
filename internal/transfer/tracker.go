// Package transfer reconciles the current owner of every tracked
// inscription against the Ordinals service after each block.
package transfer

import (
	"context"
	"log"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/rawblock/ordinals-indexer/internal/upstream"
	"github.com/rawblock/ordinals-indexer/pkg/models"
)

// Store is the slice of persistence the tracker needs.
type Store interface {
	TrackedInscriptions(ctx context.Context) ([]models.Wallet, error)
	RecordTransfer(ctx context.Context, kind, inscriptionID, oldAddr, newAddr string, blockHeight int64) error
}

// OrdClient resolves the live owner; lookups bypass the content cache.
type OrdClient interface {
	CurrentAddress(ctx context.Context, id string) (string, error)
}

// Limiter shares the adaptive concurrency budget with the pipeline.
type Limiter interface {
	Acquire(ctx context.Context) error
	Release()
}

type Tracker struct {
	store Store
	ord   OrdClient
	lim   Limiter
}

func New(store Store, ord OrdClient, lim Limiter) *Tracker {
	return &Tracker{store: store, ord: ord, lim: lim}
}

// Reconcile compares the stored wallet of every tracked inscription to its
// live address and records a transfer for each mismatch. Individual lookup
// failures are logged and skipped; ownership catches up on a later block.
func (t *Tracker) Reconcile(ctx context.Context, blockHeight int64) error {
	tracked, err := t.store.TrackedInscriptions(ctx)
	if err != nil {
		return err
	}
	if len(tracked) == 0 {
		return nil
	}

	var moved, missed atomic.Int64

	eg, egCtx := errgroup.WithContext(ctx)
	for _, w := range tracked {
		eg.Go(func() error {
			if err := t.lim.Acquire(egCtx); err != nil {
				return err
			}
			defer t.lim.Release()

			addr, err := t.ord.CurrentAddress(egCtx, w.InscriptionID)
			if err != nil {
				if !upstream.IsNotFound(err) {
					missed.Add(1)
				}
				return nil
			}
			if addr == "" || addr == w.Address {
				return nil
			}
			if err := t.store.RecordTransfer(egCtx, w.Kind, w.InscriptionID, w.Address, addr, blockHeight); err != nil {
				log.Printf("[Transfer] recording %s %s move: %v", w.Kind, w.InscriptionID, err)
				return nil
			}
			moved.Add(1)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	if moved.Load() > 0 || missed.Load() > 0 {
		log.Printf("[Transfer] block %d: %d of %d tracked inscriptions moved (%d lookups failed)",
			blockHeight, moved.Load(), len(tracked), missed.Load())
	}
	return nil
}
