// Package scanner drives the indexer forward one block at a time: resume
// from the last processed height, sweep blocks that previously failed once
// their retry height is reached, and hand each new block to the pipeline.
package scanner

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rawblock/ordinals-indexer/internal/upstream"
	"github.com/rawblock/ordinals-indexer/pkg/models"
)

const (
	// maxConsecutiveFailures aborts the run when this many blocks in a row
	// fail; that is an upstream or database problem, not block data.
	maxConsecutiveFailures = 10

	// tipPollInterval is how long to wait before re-checking a height that
	// does not exist yet.
	tipPollInterval = 30 * time.Second

	progressLogEvery = 100
)

// Store is the slice of persistence the scanner itself touches.
type Store interface {
	IsBlockProcessed(ctx context.Context, height int64) (bool, error)
	MarkBlockProcessed(ctx context.Context, height int64) error
	HighestProcessedBlock(ctx context.Context) (height int64, ok bool, err error)
	UpsertErrorBlock(ctx context.Context, height int64, message string, retryAt int64) error
	DeleteErrorBlock(ctx context.Context, height int64) error
	DueErrorBlocks(ctx context.Context, currentHeight int64) ([]models.ErrorBlock, error)
}

// Processor runs the per-block pipeline; implemented by pipeline.Pipeline.
type Processor interface {
	ProcessBlock(ctx context.Context, height int64) (models.BlockStats, error)
}

// Transfers reconciles tracked ownership after each block; implemented by
// transfer.Tracker.
type Transfers interface {
	Reconcile(ctx context.Context, height int64) error
}

// Chain answers whether a height exists yet; implemented by txapi.Client.
type Chain interface {
	BlockHashByHeight(ctx context.Context, height int64) (string, error)
}

type Config struct {
	StartBlock int64
	// RetryDelayBlocks is how many blocks ahead a failed block is
	// rescheduled for retry.
	RetryDelayBlocks int64
	// ProcessTimeout caps one block's processing; zero means no cap.
	ProcessTimeout time.Duration
}

type Scanner struct {
	chain     Chain
	store     Store
	processor Processor
	transfers Transfers // optional
	cfg       Config

	currentHeight atomic.Int64
	blocksDone    atomic.Int64
	blocksFailed  atomic.Int64
	running       atomic.Bool

	stop     chan struct{}
	stopOnce sync.Once
}

// Progress is the scanner's state as served by the status endpoint.
type Progress struct {
	IsRunning     bool  `json:"isRunning"`
	CurrentHeight int64 `json:"currentHeight"`
	BlocksDone    int64 `json:"blocksDone"`
	BlocksFailed  int64 `json:"blocksFailed"`
}

func New(chain Chain, store Store, processor Processor, transfers Transfers, cfg Config) *Scanner {
	return &Scanner{
		chain:     chain,
		store:     store,
		processor: processor,
		transfers: transfers,
		cfg:       cfg,
		stop:      make(chan struct{}),
	}
}

// Stop requests a graceful halt: the block in flight runs to completion and
// the loop exits before starting the next one. Safe to call more than once.
func (s *Scanner) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Scanner) stopping() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// Progress returns the current scanning state (safe for concurrent reads).
func (s *Scanner) Progress() Progress {
	return Progress{
		IsRunning:     s.running.Load(),
		CurrentHeight: s.currentHeight.Load(),
		BlocksDone:    s.blocksDone.Load(),
		BlocksFailed:  s.blocksFailed.Load(),
	}
}

// Run scans blocks until the context is cancelled or too many blocks fail
// in a row. It blocks; callers run it in a goroutine.
func (s *Scanner) Run(ctx context.Context) error {
	s.running.Store(true)
	defer s.running.Store(false)

	height, err := s.resumeHeight(ctx)
	if err != nil {
		return fmt.Errorf("scanner: resume height: %w", err)
	}
	log.Printf("[Scanner] starting at block %d", height)

	consecutive := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.stopping() {
			log.Printf("[Scanner] stop requested, halting before block %d", height)
			return nil
		}
		s.currentHeight.Store(height)

		s.retryDue(ctx, height)

		done, err := s.store.IsBlockProcessed(ctx, height)
		if err != nil {
			return fmt.Errorf("scanner: check block %d: %w", height, err)
		}
		if done {
			height++
			continue
		}

		// Wait at the chain tip rather than treating "not yet mined" as a
		// failure.
		if _, err := s.chain.BlockHashByHeight(ctx, height); err != nil {
			if upstream.IsNotFound(err) {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-s.stop:
					log.Printf("[Scanner] stop requested while waiting at the chain tip")
					return nil
				case <-time.After(tipPollInterval):
				}
				continue
			}
			consecutive++
			if s.failBlock(ctx, height, err, consecutive) {
				return fmt.Errorf("scanner: %d consecutive block failures, last at %d: %w",
					consecutive, height, err)
			}
			height++
			continue
		}

		if err := s.processOne(ctx, height); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			consecutive++
			if s.failBlock(ctx, height, err, consecutive) {
				return fmt.Errorf("scanner: %d consecutive block failures, last at %d: %w",
					consecutive, height, err)
			}
		} else {
			consecutive = 0
			done := s.blocksDone.Add(1)
			if done%progressLogEvery == 0 {
				log.Printf("[Scanner] progress: block %d | %d blocks processed, %d deferred",
					height, done, s.blocksFailed.Load())
			}
		}
		height++
	}
}

// resumeHeight picks max(configured start, highest processed + 1).
func (s *Scanner) resumeHeight(ctx context.Context) (int64, error) {
	height := s.cfg.StartBlock
	last, ok, err := s.store.HighestProcessedBlock(ctx)
	if err != nil {
		return 0, err
	}
	if ok && last+1 > height {
		height = last + 1
	}
	return height, nil
}

// processOne runs the pipeline for a block, reconciles transfers, and marks
// it processed. Transfer reconciliation is best-effort.
func (s *Scanner) processOne(ctx context.Context, height int64) error {
	blockCtx := ctx
	if s.cfg.ProcessTimeout > 0 {
		var cancel context.CancelFunc
		blockCtx, cancel = context.WithTimeout(ctx, s.cfg.ProcessTimeout)
		defer cancel()
	}

	if _, err := s.processor.ProcessBlock(blockCtx, height); err != nil {
		return err
	}
	if s.transfers != nil {
		if err := s.transfers.Reconcile(blockCtx, height); err != nil {
			log.Printf("[Scanner] transfer reconciliation at block %d: %v", height, err)
		}
	}
	return s.store.MarkBlockProcessed(ctx, height)
}

// failBlock records a failed block for later retry and reports whether the
// consecutive-failure limit was hit.
func (s *Scanner) failBlock(ctx context.Context, height int64, cause error, consecutive int) bool {
	s.blocksFailed.Add(1)
	retryAt := height + s.cfg.RetryDelayBlocks
	log.Printf("[Scanner] block %d failed, retry at %d: %v", height, retryAt, cause)
	if err := s.store.UpsertErrorBlock(ctx, height, cause.Error(), retryAt); err != nil {
		log.Printf("[Scanner] recording error block %d: %v", height, err)
	}
	return consecutive >= maxConsecutiveFailures
}

// retryDue reprocesses error blocks whose retry height has been reached.
// A block that fails again gets rescheduled with a bumped retry count.
func (s *Scanner) retryDue(ctx context.Context, currentHeight int64) {
	due, err := s.store.DueErrorBlocks(ctx, currentHeight)
	if err != nil {
		log.Printf("[Scanner] listing due error blocks: %v", err)
		return
	}
	for _, eb := range due {
		if ctx.Err() != nil {
			return
		}
		log.Printf("[Scanner] retrying block %d (attempt %d)", eb.BlockHeight, eb.RetryCount+1)
		if err := s.processOne(ctx, eb.BlockHeight); err != nil {
			retryAt := currentHeight + s.cfg.RetryDelayBlocks
			if uerr := s.store.UpsertErrorBlock(ctx, eb.BlockHeight, err.Error(), retryAt); uerr != nil {
				log.Printf("[Scanner] rescheduling error block %d: %v", eb.BlockHeight, uerr)
			}
			continue
		}
		if err := s.store.DeleteErrorBlock(ctx, eb.BlockHeight); err != nil {
			log.Printf("[Scanner] clearing error block %d: %v", eb.BlockHeight, err)
		}
		s.blocksDone.Add(1)
	}
}
