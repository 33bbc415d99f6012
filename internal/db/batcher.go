package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rawblock/ordinals-indexer/pkg/models"
)

// DefaultBatchSize is how many wallet upserts are coalesced per flush.
const DefaultBatchSize = 50

// WalletBatcher coalesces wallet upserts so a busy block does not issue one
// write transaction per inscription. Entries are buffered until the batch
// fills or Flush is called; the pipeline flushes at the end of every block.
type WalletBatcher struct {
	store *Store
	size  int

	mu      sync.Mutex
	pending []models.Wallet
}

func NewWalletBatcher(store *Store, size int) *WalletBatcher {
	if size <= 0 {
		size = DefaultBatchSize
	}
	return &WalletBatcher{store: store, size: size}
}

// Add buffers one wallet upsert, flushing when the buffer fills.
func (b *WalletBatcher) Add(ctx context.Context, w models.Wallet) error {
	b.mu.Lock()
	b.pending = append(b.pending, w)
	full := len(b.pending) >= b.size
	b.mu.Unlock()

	if full {
		return b.Flush(ctx)
	}
	return nil
}

// Flush writes all buffered entries inside one transaction and returns when
// they are durable. A failed flush leaves nothing half-written.
func (b *WalletBatcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	tx, err := b.store.db.BeginTx(ctx, nil)
	if err != nil {
		b.requeue(batch)
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO wallets (inscription_id, address, kind, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (inscription_id) DO UPDATE SET
			address = excluded.address,
			updated_at = excluded.updated_at`)
	if err != nil {
		b.requeue(batch)
		return err
	}
	defer stmt.Close()

	for _, w := range batch {
		updated := w.UpdatedAt
		if updated.IsZero() {
			updated = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, w.InscriptionID, w.Address, w.Kind, updated.Unix()); err != nil {
			b.requeue(batch)
			return fmt.Errorf("flush wallet %s: %w", w.InscriptionID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		b.requeue(batch)
		return err
	}
	return nil
}

// Pending returns the buffered entry count.
func (b *WalletBatcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *WalletBatcher) requeue(batch []models.Wallet) {
	b.mu.Lock()
	b.pending = append(batch, b.pending...)
	b.mu.Unlock()
}
