// Package pipeline turns one block into validated, persisted artifacts:
// paginate inscription IDs, pre-filter by content type, classify previews,
// then validate in priority order under the adaptive concurrency limit.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rawblock/ordinals-indexer/internal/ord"
	"github.com/rawblock/ordinals-indexer/internal/upstream"
	"github.com/rawblock/ordinals-indexer/internal/validate"
	"github.com/rawblock/ordinals-indexer/pkg/models"
)

const (
	maxPages       = 10000 // pagination safety cap
	prefilterBatch = 100   // ids per content-type fetch batch
	taskAttempts   = 3
	taskBackoff    = time.Second
)

// OrdClient is the slice of the Ordinals client the pipeline drives.
type OrdClient interface {
	InscriptionsInBlock(ctx context.Context, height int64, page int) (ord.BlockPage, error)
	Inscription(ctx context.Context, id string) (models.Inscription, error)
	ContentPreview(ctx context.Context, id string, n int) ([]byte, error)
	Content(ctx context.Context, id string) ([]byte, error)
}

// TxCounter resolves a block's transaction count for the stats row.
type TxCounter interface {
	BlockTxCount(ctx context.Context, height int64) (int64, error)
}

// Store is the slice of persistence the pipeline writes directly.
type Store interface {
	InsertFailedInscription(ctx context.Context, f models.FailedInscription) error
	SaveBlockStats(ctx context.Context, st models.BlockStats) error
}

// Validator runs the protocol rules; implemented by validate.Validator.
type Validator interface {
	Deploy(ctx context.Context, ins models.Inscription, content []byte) (validate.Result, error)
	Mint(ctx context.Context, ins models.Inscription, sourceID string) (validate.Result, error)
	Bitmap(ctx context.Context, ins models.Inscription, content string, blockHeight int64) (validate.Result, error)
	Parcel(ctx context.Context, ins models.Inscription, content string, blockHeight int64) (validate.Result, error)
}

// Limiter bounds in-flight upstream work; implemented by adaptive.Manager.
type Limiter interface {
	Acquire(ctx context.Context) error
	Release()
}

// Batches sizes processing batches; implemented by adaptive.BatchSizer.
type Batches interface {
	Size() int
	RecordSuccess()
	RecordFailure()
}

// Flusher drains the wallet write batcher; implemented by db.WalletBatcher.
type Flusher interface {
	Flush(ctx context.Context) error
}

// PatternScheduler kicks off pattern generation for a committed bitmap.
type PatternScheduler interface {
	Generate(ctx context.Context, bitmapNumber, blockHeight int64) error
}

type Pipeline struct {
	ord       OrdClient
	txCounter TxCounter
	store     Store
	validator Validator
	limiter   Limiter
	batches   Batches
	wallets   Flusher
	patterns  PatternScheduler           // optional
	events    func(ev models.IndexEvent) // optional hub broadcast
}

func New(ordClient OrdClient, txCounter TxCounter, store Store, validator Validator,
	limiter Limiter, batches Batches, wallets Flusher) *Pipeline {
	return &Pipeline{
		ord:       ordClient,
		txCounter: txCounter,
		store:     store,
		validator: validator,
		limiter:   limiter,
		batches:   batches,
		wallets:   wallets,
	}
}

// WithPatterns wires the pattern generator.
func (p *Pipeline) WithPatterns(g PatternScheduler) *Pipeline {
	p.patterns = g
	return p
}

// WithEvents wires the index-event broadcast callback.
func (p *Pipeline) WithEvents(fn func(models.IndexEvent)) *Pipeline {
	p.events = fn
	return p
}

// task is one classified inscription awaiting validation.
type task struct {
	ins      models.Inscription
	kind     models.InscriptionKind
	content  string // full content, fetched for protocol kinds
	sourceID string // mint source reference
	priority int    // lower runs first
}

// ProcessBlock runs the whole per-block pipeline and returns the stats row
// it persisted. A single failing inscription never fails the block; only
// stage-level failures (pagination, persistence) do.
func (p *Pipeline) ProcessBlock(ctx context.Context, height int64) (models.BlockStats, error) {
	start := time.Now()
	stats := models.BlockStats{BlockHeight: height}

	// Fetching
	ids, err := p.fetchIDs(ctx, height)
	if err != nil {
		return stats, fmt.Errorf("block %d: fetch inscription ids: %w", height, err)
	}
	stats.TotalInscriptions = int64(len(ids))

	if txCount, err := p.txCounter.BlockTxCount(ctx, height); err == nil {
		stats.TotalTransactions = txCount
	}

	if len(ids) == 0 {
		return stats, p.finish(ctx, &stats)
	}

	// Filtering
	candidates := p.prefilter(ctx, height, ids)

	// Classifying
	tasks := p.classifyAll(ctx, height, candidates)

	// Processing, in priority batches
	p.process(ctx, height, tasks, &stats)

	log.Printf("[Pipeline] block %d: %d inscriptions, %d candidates | deploys %d, mints %d, bitmaps %d, parcels %d (%.1fs)",
		height, len(ids), len(tasks), stats.Brc420Deploys, stats.Brc420Mints,
		stats.Bitmaps, stats.Parcels, time.Since(start).Seconds())

	return stats, p.finish(ctx, &stats)
}

// finish flushes the wallet batcher and persists the stats row.
func (p *Pipeline) finish(ctx context.Context, stats *models.BlockStats) error {
	if err := p.wallets.Flush(ctx); err != nil {
		return fmt.Errorf("block %d: flush wallet batch: %w", stats.BlockHeight, err)
	}
	stats.ProcessedAt = time.Now().UTC()
	if err := p.store.SaveBlockStats(ctx, *stats); err != nil {
		return fmt.Errorf("block %d: save stats: %w", stats.BlockHeight, err)
	}
	return nil
}

// fetchIDs pages through the block's inscription ids, deduplicating across
// pages (the upstream is known to repeat ids).
func (p *Pipeline) fetchIDs(ctx context.Context, height int64) ([]string, error) {
	seen := make(map[string]struct{})
	var ids []string

	for page := 0; page < maxPages; page++ {
		pg, err := p.ord.InscriptionsInBlock(ctx, height, page)
		if err != nil {
			if upstream.IsNotFound(err) {
				// empty block
				return ids, nil
			}
			return nil, err
		}
		fresh := 0
		for _, id := range pg.IDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
			fresh++
		}
		if len(pg.IDs) == 0 || !pg.More {
			break
		}
		if fresh == 0 && page > 0 {
			// Duplicate-only pages keep the loop going while More is set,
			// but log them; the cap bounds a pathological upstream.
			log.Printf("[Pipeline] block %d: page %d produced no new ids", height, page)
		}
	}
	return ids, nil
}

// candidate is an id that survived the content-type pre-filter.
type candidate struct {
	ins      models.Inscription
	priority int
}

// prefilter fetches inscription details in batches of 100 and keeps only
// the textual content types the protocols live in.
func (p *Pipeline) prefilter(ctx context.Context, height int64, ids []string) []candidate {
	out := make([]candidate, 0, len(ids))
	results := make([]*candidate, len(ids))

	for base := 0; base < len(ids); base += prefilterBatch {
		end := base + prefilterBatch
		if end > len(ids) {
			end = len(ids)
		}
		eg, egCtx := errgroup.WithContext(ctx)
		for i := base; i < end; i++ {
			id := ids[i]
			eg.Go(func() error {
				if err := p.limiter.Acquire(egCtx); err != nil {
					return err
				}
				defer p.limiter.Release()

				ins, err := p.ord.Inscription(egCtx, id)
				if err != nil {
					if !upstream.IsNotFound(err) {
						p.recordFailure(egCtx, id, height, fmt.Sprintf("fetch details: %v", err))
					}
					return nil
				}
				if prio, ok := ContentTypePriority(ins.ContentType); ok {
					results[i] = &candidate{ins: ins, priority: prio}
				}
				return nil
			})
		}
		// Only context cancellation can surface here; per-id failures are
		// swallowed above.
		if err := eg.Wait(); err != nil {
			break
		}
	}
	for _, c := range results {
		if c != nil {
			out = append(out, *c)
		}
	}
	return out
}

// classifyAll fetches 50-byte previews and produces validation tasks for
// protocol kinds. For protocol candidates the full content is fetched too,
// since mint references never fit in a preview and bitmap/parcel share a
// suffix.
func (p *Pipeline) classifyAll(ctx context.Context, height int64, candidates []candidate) []task {
	results := make([]*task, len(candidates))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, c := range candidates {
		eg.Go(func() error {
			if err := p.limiter.Acquire(egCtx); err != nil {
				return err
			}
			defer p.limiter.Release()

			preview, err := p.ord.ContentPreview(egCtx, c.ins.ID, PreviewBytes)
			if err != nil {
				if !upstream.IsNotFound(err) {
					p.recordFailure(egCtx, c.ins.ID, height, fmt.Sprintf("fetch preview: %v", err))
				}
				return nil
			}
			kind := Classify(preview)
			t := task{ins: c.ins, kind: kind, priority: queuePriority(kind, c.priority)}

			switch kind {
			case models.KindBrc420Mint, models.KindBitmap, models.KindParcel:
				full, err := p.ord.Content(egCtx, c.ins.ID)
				if err != nil {
					if !upstream.IsNotFound(err) {
						p.recordFailure(egCtx, c.ins.ID, height, fmt.Sprintf("fetch content: %v", err))
					}
					return nil
				}
				t.content = string(full)
				// The preview split between bitmap and parcel is provisional;
				// settle it on the full content.
				if kind == models.KindBitmap || kind == models.KindParcel {
					if _, _, ok := validate.ParseParcelContent(t.content); ok {
						t.kind = models.KindParcel
					} else if _, ok := validate.ParseBitmapContent(t.content); ok {
						t.kind = models.KindBitmap
					} else {
						t.kind = models.KindText
					}
					t.priority = queuePriority(t.kind, c.priority)
				}
				if t.kind == models.KindBrc420Mint {
					src, ok := IsMintReference(t.content)
					if !ok {
						t.kind = models.KindText
						t.priority = queuePriority(t.kind, c.priority)
					}
					t.sourceID = src
				}
			case models.KindBrc420Deploy:
				full, err := p.ord.Content(egCtx, c.ins.ID)
				if err != nil {
					if !upstream.IsNotFound(err) {
						p.recordFailure(egCtx, c.ins.ID, height, fmt.Sprintf("fetch content: %v", err))
					}
					return nil
				}
				t.content = string(full)
			}
			results[i] = &t
			return nil
		})
	}
	_ = eg.Wait()

	tasks := make([]task, 0, len(results))
	for _, t := range results {
		if t != nil {
			tasks = append(tasks, *t)
		}
	}
	return tasks
}

// queuePriority orders the drain: deploys first, then mints/bitmaps/parcels,
// then the rest (which carry no validation work). contentPrio breaks ties
// within a band.
func queuePriority(kind models.InscriptionKind, contentPrio int) int {
	switch kind {
	case models.KindBrc420Deploy:
		return 0*10 + contentPrio
	case models.KindBrc420Mint, models.KindBitmap, models.KindParcel:
		return 1*10 + contentPrio
	case models.KindBinary:
		return 9 * 10 // skipped outright
	default:
		return 2*10 + contentPrio
	}
}

// process drains the protocol tasks in priority order, in batches sized by
// the dynamic batch sizer.
func (p *Pipeline) process(ctx context.Context, height int64, tasks []task, stats *models.BlockStats) {
	work := make([]task, 0, len(tasks))
	for _, t := range tasks {
		switch t.kind {
		case models.KindBrc420Deploy, models.KindBrc420Mint, models.KindBitmap, models.KindParcel:
			work = append(work, t)
		}
	}
	sort.SliceStable(work, func(i, j int) bool { return work[i].priority < work[j].priority })

	var committedBitmaps []int64

	// stats and committedBitmaps are shared by every goroutine in a batch.
	var mu sync.Mutex

	for base := 0; base < len(work); {
		size := p.batches.Size()
		end := base + size
		if end > len(work) {
			end = len(work)
		}
		batch := work[base:end]
		base = end

		var batchFailed atomic.Bool
		eg, egCtx := errgroup.WithContext(ctx)
		for _, t := range batch {
			eg.Go(func() error {
				if err := p.limiter.Acquire(egCtx); err != nil {
					return err
				}
				defer p.limiter.Release()

				res, err := p.runTask(egCtx, height, t)
				if err != nil {
					batchFailed.Store(true)
					p.recordFailure(egCtx, t.ins.ID, height, err.Error())
					return nil
				}
				if res.Committed {
					mu.Lock()
					switch t.kind {
					case models.KindBrc420Deploy:
						stats.Brc420Deploys++
					case models.KindBrc420Mint:
						stats.Brc420Mints++
					case models.KindBitmap:
						stats.Bitmaps++
						if n, ok := validate.ParseBitmapContent(t.content); ok {
							committedBitmaps = append(committedBitmaps, n)
						}
					case models.KindParcel:
						stats.Parcels++
					}
					mu.Unlock()
					p.emit(t, height)
				}
				return nil
			})
		}
		_ = eg.Wait()

		if batchFailed.Load() {
			p.batches.RecordFailure()
		} else {
			p.batches.RecordSuccess()
		}
	}

	p.generatePatterns(ctx, committedBitmaps)
}

// runTask dispatches one task to its validator with bounded retries; only
// transient errors are retried.
func (p *Pipeline) runTask(ctx context.Context, height int64, t task) (validate.Result, error) {
	var lastErr error
	for attempt := 0; attempt < taskAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return validate.Result{}, ctx.Err()
			case <-time.After(taskBackoff << uint(attempt-1)):
			}
		}

		var res validate.Result
		var err error
		switch t.kind {
		case models.KindBrc420Deploy:
			res, err = p.validator.Deploy(ctx, t.ins, []byte(t.content))
		case models.KindBrc420Mint:
			res, err = p.validator.Mint(ctx, t.ins, t.sourceID)
		case models.KindBitmap:
			res, err = p.validator.Bitmap(ctx, t.ins, t.content, height)
		case models.KindParcel:
			res, err = p.validator.Parcel(ctx, t.ins, t.content, height)
		default:
			return validate.Result{}, nil
		}
		if err == nil {
			return res, nil
		}
		if !upstream.IsTransient(err) {
			return validate.Result{}, err
		}
		lastErr = err
	}
	return validate.Result{}, lastErr
}

func (p *Pipeline) generatePatterns(ctx context.Context, bitmapNumbers []int64) {
	if p.patterns == nil {
		return
	}
	for _, n := range bitmapNumbers {
		// The bitmap's number is the block it claims.
		if err := p.patterns.Generate(ctx, n, n); err != nil {
			log.Printf("[Pipeline] pattern for bitmap %d skipped: %v", n, err)
		}
	}
}

func (p *Pipeline) emit(t task, height int64) {
	if p.events == nil {
		return
	}
	detail := t.content
	if t.kind == models.KindBrc420Mint {
		detail = t.sourceID
	}
	p.events(models.IndexEvent{
		Type:          t.kind.String(),
		InscriptionID: t.ins.ID,
		BlockHeight:   height,
		Address:       t.ins.Address,
		Detail:        detail,
		Timestamp:     time.Now().Format(time.RFC3339),
	})
}

// recordFailure writes a failed_inscriptions row; the pipeline never aborts
// a block for a single inscription.
func (p *Pipeline) recordFailure(ctx context.Context, inscriptionID string, height int64, msg string) {
	log.Printf("[Pipeline] inscription %s failed at block %d: %s", inscriptionID, height, msg)
	err := p.store.InsertFailedInscription(ctx, models.FailedInscription{
		ID:            uuid.New().String(),
		InscriptionID: inscriptionID,
		BlockHeight:   height,
		ErrorMessage:  msg,
		FailedAt:      time.Now().UTC(),
	})
	if err != nil {
		log.Printf("[Pipeline] recording failed inscription %s: %v", inscriptionID, err)
	}
}
