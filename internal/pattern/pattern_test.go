package pattern

import (
	"context"
	"fmt"
	"testing"

	"github.com/rawblock/ordinals-indexer/internal/txapi"
	"github.com/rawblock/ordinals-indexer/internal/upstream"
)

type fakeTxClient struct {
	hashes map[int64]string
	txids  map[string][]string
	txs    map[string]txapi.Tx
}

func (f *fakeTxClient) BlockHashByHeight(_ context.Context, height int64) (string, error) {
	h, ok := f.hashes[height]
	if !ok {
		return "", upstream.NewError(upstream.KindNotFound, "tx", fmt.Errorf("no block %d", height))
	}
	return h, nil
}

func (f *fakeTxClient) BlockTxids(_ context.Context, hash string) ([]string, error) {
	ids, ok := f.txids[hash]
	if !ok {
		return nil, upstream.NewError(upstream.KindNotFound, "tx", fmt.Errorf("no hash %s", hash))
	}
	return ids, nil
}

func (f *fakeTxClient) Tx(_ context.Context, txid string) (txapi.Tx, error) {
	tx, ok := f.txs[txid]
	if !ok {
		return txapi.Tx{}, upstream.NewError(upstream.KindTransient, "tx", fmt.Errorf("no tx %s", txid))
	}
	return tx, nil
}

type fakePatternStore struct {
	patterns map[int64]string
}

func (f *fakePatternStore) UpsertPattern(_ context.Context, n int64, p string) error {
	if f.patterns == nil {
		f.patterns = map[int64]string{}
	}
	f.patterns[n] = p
	return nil
}

func vouts(sats ...int64) txapi.Tx {
	tx := txapi.Tx{}
	for _, v := range sats {
		tx.Vout = append(tx.Vout, txapi.Vout{Value: v})
	}
	return tx
}

func TestDigit(t *testing.T) {
	cases := []struct {
		sats int64
		want byte
	}{
		{0, '1'},
		{1_000_000, '1'},         // 0.01 BTC, inclusive
		{1_000_001, '2'},
		{10_000_000, '2'},        // 0.1 BTC
		{100_000_000, '3'},       // 1 BTC
		{1_000_000_000, '4'},     // 10 BTC
		{10_000_000_000, '5'},    // 100 BTC
		{100_000_000_000, '6'},   // 1000 BTC
		{1_000_000_000_000, '7'}, // 10000 BTC
		{10_000_000_000_000, '8'},
		{10_000_000_000_001, '9'},
	}
	for _, tc := range cases {
		if got := Digit(tc.sats); got != tc.want {
			t.Errorf("Digit(%d) = %c, want %c", tc.sats, got, tc.want)
		}
	}
}

func TestFromValues(t *testing.T) {
	got := FromValues([]int64{500_000, 2_000_000, 150_000_000})
	if got != "124" {
		t.Errorf("FromValues = %q, want 124", got)
	}
	if FromValues(nil) != "" {
		t.Error("empty input must give an empty pattern")
	}
}

func TestGenerate_StoresDigitsInBlockOrder(t *testing.T) {
	tx := &fakeTxClient{
		hashes: map[int64]string{850000: "hash850000"},
		txids:  map[string][]string{"hash850000": {"t1", "t2", "t3"}},
		txs: map[string]txapi.Tx{
			"t1": vouts(600_000, 400_000),       // 0.01 BTC total
			"t2": vouts(50_000_000),             // 0.5 BTC
			"t3": vouts(200_000_000, 1_000_000), // just over 2 BTC
		},
	}
	store := &fakePatternStore{}
	g := New(tx, store)

	if err := g.Generate(context.Background(), 850000, 850000); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := store.patterns[850000]; got != "134" {
		t.Errorf("pattern = %q, want 134", got)
	}
}

func TestGenerate_MissingTxSkipsPersist(t *testing.T) {
	tx := &fakeTxClient{
		hashes: map[int64]string{850000: "hash850000"},
		txids:  map[string][]string{"hash850000": {"t1", "gone"}},
		txs:    map[string]txapi.Tx{"t1": vouts(1_000)},
	}
	store := &fakePatternStore{}
	g := New(tx, store)

	if err := g.Generate(context.Background(), 850000, 850000); err == nil {
		t.Fatal("missing tx value must fail generation")
	}
	if len(store.patterns) != 0 {
		t.Errorf("partial pattern persisted: %v", store.patterns)
	}
}

func TestGenerate_UnknownBlock(t *testing.T) {
	g := New(&fakeTxClient{}, &fakePatternStore{})
	if err := g.Generate(context.Background(), 850000, 850000); err == nil {
		t.Fatal("unknown block must fail generation")
	}
}

func TestGenerate_EmptyBlock(t *testing.T) {
	tx := &fakeTxClient{
		hashes: map[int64]string{850000: "h"},
		txids:  map[string][]string{"h": {}},
	}
	store := &fakePatternStore{}
	if err := New(tx, store).Generate(context.Background(), 850000, 850000); err == nil {
		t.Fatal("block with no transactions must fail generation")
	}
	if len(store.patterns) != 0 {
		t.Error("pattern persisted for empty block")
	}
}
