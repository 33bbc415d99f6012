// Package pattern computes the per-block transaction-size-class strings
// stored for bitmap visualisation. Generation is best-effort: a failure
// skips the pattern and never fails the block that triggered it.
package pattern

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/rawblock/ordinals-indexer/internal/txapi"
)

// TxClient is the slice of the tx service client the generator needs.
type TxClient interface {
	BlockHashByHeight(ctx context.Context, height int64) (string, error)
	BlockTxids(ctx context.Context, hash string) ([]string, error)
	Tx(ctx context.Context, txid string) (txapi.Tx, error)
}

// Store persists generated patterns.
type Store interface {
	UpsertPattern(ctx context.Context, bitmapNumber int64, pattern string) error
}

// fetchParallelism bounds concurrent tx fetches; the per-call semaphore in
// the upstream layer is the real limiter, this just keeps the fan-out sane
// for blocks with thousands of transactions.
const fetchParallelism = 8

type Generator struct {
	tx    TxClient
	store Store
}

func New(tx TxClient, store Store) *Generator {
	return &Generator{tx: tx, store: store}
}

// Generate computes and stores the pattern for a bitmap claiming
// blockHeight. One digit per transaction, in block order. Patterns are only
// ever built from real transaction values; when any value cannot be fetched
// the pattern is skipped rather than fabricated.
func (g *Generator) Generate(ctx context.Context, bitmapNumber, blockHeight int64) error {
	hash, err := g.tx.BlockHashByHeight(ctx, blockHeight)
	if err != nil {
		return fmt.Errorf("pattern %d: resolve block hash: %w", bitmapNumber, err)
	}
	txids, err := g.tx.BlockTxids(ctx, hash)
	if err != nil {
		return fmt.Errorf("pattern %d: list txids: %w", bitmapNumber, err)
	}
	if len(txids) == 0 {
		return fmt.Errorf("pattern %d: block %d has no transactions", bitmapNumber, blockHeight)
	}

	values := make([]int64, len(txids))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(fetchParallelism)
	for i, txid := range txids {
		eg.Go(func() error {
			tx, err := g.tx.Tx(egCtx, txid)
			if err != nil {
				return fmt.Errorf("fetch tx %s: %w", txid, err)
			}
			var total int64
			for _, out := range tx.Vout {
				total += out.Value
			}
			values[i] = total
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("pattern %d: %w", bitmapNumber, err)
	}

	p := FromValues(values)
	if err := g.store.UpsertPattern(ctx, bitmapNumber, p); err != nil {
		return fmt.Errorf("pattern %d: persist: %w", bitmapNumber, err)
	}
	log.Printf("[Pattern] bitmap %d: %d-digit pattern stored", bitmapNumber, len(p))
	return nil
}

// FromValues maps satoshi totals to the digit string, one digit per
// transaction in order.
func FromValues(values []int64) string {
	out := make([]byte, len(values))
	for i, v := range values {
		out[i] = Digit(v)
	}
	return string(out)
}

// Digit buckets a transaction's total output value into one of nine size
// classes. Thresholds are in BTC: ≤0.01, ≤0.1, ≤1, ≤10, ≤100, ≤1000,
// ≤10000, ≤100000, ≤1000000 and above.
func Digit(valueSats int64) byte {
	const sat = int64(1)
	thresholds := []int64{
		1_000_000 * sat,          // 0.01 BTC
		10_000_000 * sat,         // 0.1 BTC
		100_000_000 * sat,        // 1 BTC
		1_000_000_000 * sat,      // 10 BTC
		10_000_000_000 * sat,     // 100 BTC
		100_000_000_000 * sat,    // 1000 BTC
		1_000_000_000_000 * sat,  // 10000 BTC
		10_000_000_000_000 * sat, // 100000 BTC
	}
	for i, t := range thresholds {
		if valueSats <= t {
			return byte('1' + i)
		}
	}
	return '9'
}
