package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rawblock/ordinals-indexer/internal/ord"
	"github.com/rawblock/ordinals-indexer/internal/upstream"
	"github.com/rawblock/ordinals-indexer/internal/validate"
	"github.com/rawblock/ordinals-indexer/pkg/models"
)

// ─── Fakes ─────────────────────────────────────────────────────────────────

type fakeOrdClient struct {
	pages    map[int]ord.BlockPage
	details  map[string]models.Inscription
	contents map[string]string
}

func (f *fakeOrdClient) InscriptionsInBlock(_ context.Context, _ int64, page int) (ord.BlockPage, error) {
	pg, ok := f.pages[page]
	if !ok {
		return ord.BlockPage{}, upstream.NewError(upstream.KindNotFound, "ord", fmt.Errorf("no page %d", page))
	}
	return pg, nil
}

func (f *fakeOrdClient) Inscription(_ context.Context, id string) (models.Inscription, error) {
	ins, ok := f.details[id]
	if !ok {
		return models.Inscription{}, upstream.NewError(upstream.KindNotFound, "ord", fmt.Errorf("no %s", id))
	}
	return ins, nil
}

func (f *fakeOrdClient) ContentPreview(_ context.Context, id string, n int) ([]byte, error) {
	content, ok := f.contents[id]
	if !ok {
		return nil, upstream.NewError(upstream.KindNotFound, "ord", fmt.Errorf("no %s", id))
	}
	if len(content) > n {
		content = content[:n]
	}
	return []byte(content), nil
}

func (f *fakeOrdClient) Content(_ context.Context, id string) ([]byte, error) {
	content, ok := f.contents[id]
	if !ok {
		return nil, upstream.NewError(upstream.KindNotFound, "ord", fmt.Errorf("no %s", id))
	}
	return []byte(content), nil
}

type fakeTxCounter struct{ counts map[int64]int64 }

func (f *fakeTxCounter) BlockTxCount(_ context.Context, height int64) (int64, error) {
	if c, ok := f.counts[height]; ok {
		return c, nil
	}
	return 0, upstream.NewError(upstream.KindNotFound, "tx", fmt.Errorf("no block"))
}

type fakePipeStore struct {
	mu     sync.Mutex
	failed []models.FailedInscription
	stats  []models.BlockStats
}

func (f *fakePipeStore) InsertFailedInscription(_ context.Context, fi models.FailedInscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, fi)
	return nil
}

func (f *fakePipeStore) SaveBlockStats(_ context.Context, st models.BlockStats) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats = append(f.stats, st)
	return nil
}

// fakeValidator commits everything and records the dispatch order.
type fakeValidator struct {
	mu    sync.Mutex
	order []string // "<kind>:<id>"
	fail  map[string]error
}

func (f *fakeValidator) note(kind, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, kind+":"+id)
	return f.fail[id]
}

func (f *fakeValidator) result(kind, id string) (validate.Result, error) {
	if err := f.note(kind, id); err != nil {
		return validate.Result{}, err
	}
	return validate.Result{Committed: true}, nil
}

func (f *fakeValidator) Deploy(_ context.Context, ins models.Inscription, _ []byte) (validate.Result, error) {
	return f.result("deploy", ins.ID)
}

func (f *fakeValidator) Mint(_ context.Context, ins models.Inscription, _ string) (validate.Result, error) {
	return f.result("mint", ins.ID)
}

func (f *fakeValidator) Bitmap(_ context.Context, ins models.Inscription, _ string, _ int64) (validate.Result, error) {
	return f.result("bitmap", ins.ID)
}

func (f *fakeValidator) Parcel(_ context.Context, ins models.Inscription, _ string, _ int64) (validate.Result, error) {
	return f.result("parcel", ins.ID)
}

type nopLimiter struct{}

func (nopLimiter) Acquire(context.Context) error { return nil }
func (nopLimiter) Release()                      {}

type fixedBatches struct{ size int }

func (f fixedBatches) Size() int    { return f.size }
func (fixedBatches) RecordSuccess() {}
func (fixedBatches) RecordFailure() {}

type fakeFlusher struct{ flushes int }

func (f *fakeFlusher) Flush(context.Context) error {
	f.flushes++
	return nil
}

// ─── Fixtures ──────────────────────────────────────────────────────────────

func textIns(id string) models.Inscription {
	return models.Inscription{ID: id, Address: "bc1q" + id, ContentType: "text/plain", Height: 850000}
}

func pipelineFixture() (*Pipeline, *fakeOrdClient, *fakePipeStore, *fakeValidator, *fakeFlusher) {
	mintRef := "/content/" + strings.Repeat("ab", 32) + "i0"

	ordc := &fakeOrdClient{
		pages: map[int]ord.BlockPage{
			// Page 1 repeats an id from page 0; the dedupe must absorb it.
			0: {IDs: []string{"dep1", "bm1", "mint1"}, More: true},
			1: {IDs: []string{"bm1", "par1", "img1", "txt1"}, More: false},
		},
		details: map[string]models.Inscription{
			"dep1":  {ID: "dep1", Address: "bc1qd", ContentType: "application/json", Height: 850000},
			"bm1":   textIns("bm1"),
			"mint1": textIns("mint1"),
			"par1":  textIns("par1"),
			"img1":  {ID: "img1", ContentType: "image/png", Height: 850000},
			"txt1":  textIns("txt1"),
		},
		contents: map[string]string{
			"dep1":  `{"p":"brc-420","op":"deploy","id":"x","name":"n","max":"10","price":"0.1"}`,
			"bm1":   "850000.bitmap",
			"mint1": mintRef,
			"par1":  "3.100.bitmap",
			"txt1":  "just some prose",
		},
	}
	store := &fakePipeStore{}
	v := &fakeValidator{fail: map[string]error{}}
	flusher := &fakeFlusher{}
	p := New(ordc, &fakeTxCounter{counts: map[int64]int64{850000: 3000}}, store, v,
		nopLimiter{}, fixedBatches{size: 50}, flusher)
	return p, ordc, store, v, flusher
}

// ─── Tests ─────────────────────────────────────────────────────────────────

func TestProcessBlock_CountsAndDedupes(t *testing.T) {
	p, _, store, v, flusher := pipelineFixture()

	stats, err := p.ProcessBlock(context.Background(), 850000)
	if err != nil {
		t.Fatalf("ProcessBlock: %v", err)
	}

	if stats.TotalInscriptions != 6 {
		t.Errorf("total inscriptions = %d, want 6 (duplicate absorbed)", stats.TotalInscriptions)
	}
	if stats.TotalTransactions != 3000 {
		t.Errorf("total transactions = %d, want 3000", stats.TotalTransactions)
	}
	if stats.Brc420Deploys != 1 || stats.Brc420Mints != 1 || stats.Bitmaps != 1 || stats.Parcels != 1 {
		t.Errorf("counts = %+v", stats)
	}

	// bm1 appears on both pages but must be validated once.
	bitmapRuns := 0
	for _, step := range v.order {
		if step == "bitmap:bm1" {
			bitmapRuns++
		}
	}
	if bitmapRuns != 1 {
		t.Errorf("bitmap bm1 validated %d times, want 1", bitmapRuns)
	}

	if flusher.flushes != 1 {
		t.Errorf("wallet batcher flushed %d times, want 1", flusher.flushes)
	}
	if len(store.stats) != 1 {
		t.Fatalf("stats rows = %d, want 1", len(store.stats))
	}
	if len(store.failed) != 0 {
		t.Errorf("unexpected failed inscriptions: %+v", store.failed)
	}
}

func TestProcessBlock_DeploysRunFirst(t *testing.T) {
	p, _, _, v, _ := pipelineFixture()

	if _, err := p.ProcessBlock(context.Background(), 850000); err != nil {
		t.Fatal(err)
	}
	if len(v.order) == 0 || !strings.HasPrefix(v.order[0], "deploy:") {
		t.Errorf("first dispatched task = %v, want a deploy", v.order)
	}
}

func TestProcessBlock_EmptyBlock(t *testing.T) {
	p, ordc, store, _, flusher := pipelineFixture()
	ordc.pages = map[int]ord.BlockPage{}

	stats, err := p.ProcessBlock(context.Background(), 850000)
	if err != nil {
		t.Fatalf("empty block must not error: %v", err)
	}
	if stats.TotalInscriptions != 0 {
		t.Errorf("total = %d, want 0", stats.TotalInscriptions)
	}
	if flusher.flushes != 1 || len(store.stats) != 1 {
		t.Error("empty block must still flush and persist stats")
	}
}

func TestProcessBlock_TerminalTaskFailureIsRecorded(t *testing.T) {
	p, _, store, v, _ := pipelineFixture()
	v.fail["bm1"] = upstream.NewError(upstream.KindMalformed, "test", fmt.Errorf("boom"))

	stats, err := p.ProcessBlock(context.Background(), 850000)
	if err != nil {
		t.Fatalf("single failure must not fail the block: %v", err)
	}
	if stats.Bitmaps != 0 {
		t.Errorf("failed bitmap counted: %+v", stats)
	}
	found := false
	for _, fi := range store.failed {
		if fi.InscriptionID == "bm1" {
			found = true
			if fi.ID == "" {
				t.Error("failed inscription row has no id")
			}
		}
	}
	if !found {
		t.Errorf("no failed_inscriptions row for bm1: %+v", store.failed)
	}
}

// collidingValidator commits deploys and mints but makes the bitmap and
// parcel tasks rendezvous before both fail, so two failures land in the same
// batch at the same instant.
type collidingValidator struct {
	entered sync.WaitGroup
}

func (v *collidingValidator) Deploy(context.Context, models.Inscription, []byte) (validate.Result, error) {
	return validate.Result{Committed: true}, nil
}

func (v *collidingValidator) Mint(context.Context, models.Inscription, string) (validate.Result, error) {
	return validate.Result{Committed: true}, nil
}

func (v *collidingValidator) failTogether() (validate.Result, error) {
	v.entered.Done()
	v.entered.Wait()
	return validate.Result{}, upstream.NewError(upstream.KindMalformed, "test", fmt.Errorf("boom"))
}

func (v *collidingValidator) Bitmap(context.Context, models.Inscription, string, int64) (validate.Result, error) {
	return v.failTogether()
}

func (v *collidingValidator) Parcel(context.Context, models.Inscription, string, int64) (validate.Result, error) {
	return v.failTogether()
}

func TestProcessBlock_ConcurrentBatchFailures(t *testing.T) {
	_, ordc, store, _, flusher := pipelineFixture()

	v := &collidingValidator{}
	v.entered.Add(2)
	p := New(ordc, &fakeTxCounter{counts: map[int64]int64{850000: 3000}}, store, v,
		nopLimiter{}, fixedBatches{size: 50}, flusher)

	stats, err := p.ProcessBlock(context.Background(), 850000)
	if err != nil {
		t.Fatalf("ProcessBlock: %v", err)
	}
	if stats.Bitmaps != 0 || stats.Parcels != 0 {
		t.Errorf("failed tasks counted: %+v", stats)
	}
	ids := map[string]bool{}
	for _, fi := range store.failed {
		ids[fi.InscriptionID] = true
	}
	if !ids["bm1"] || !ids["par1"] {
		t.Errorf("failed rows = %+v, want bm1 and par1", store.failed)
	}
}

func TestProcessBlock_BinaryAndPlainTextSkipValidation(t *testing.T) {
	p, _, _, v, _ := pipelineFixture()

	if _, err := p.ProcessBlock(context.Background(), 850000); err != nil {
		t.Fatal(err)
	}
	for _, step := range v.order {
		if strings.HasSuffix(step, ":img1") || strings.HasSuffix(step, ":txt1") {
			t.Errorf("non-protocol inscription dispatched to a validator: %s", step)
		}
	}
}
