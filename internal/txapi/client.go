// Package txapi is the typed client for the upstream mempool-style
// Address/Transaction HTTP service.
package txapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rawblock/ordinals-indexer/internal/upstream"
)

// Vout is one transaction output as reported by the tx service. Value is in
// satoshis.
type Vout struct {
	ScriptPubKeyAddress string `json:"scriptpubkey_address"`
	Value               int64  `json:"value"`
}

// Tx is the decoded transaction payload. Only the fields the validators
// consume are modelled.
type Tx struct {
	Txid string `json:"txid"`
	Vout []Vout `json:"vout"`
}

// BlockInfo carries block metadata; TxCount drives parcel range checks.
type BlockInfo struct {
	ID      string `json:"id"`
	Height  int64  `json:"height"`
	TxCount int64  `json:"tx_count"`
}

// Client wraps the tx service with retry and endpoint failover.
type Client struct {
	hc        *http.Client
	endpoints *upstream.Endpoints
	rec       upstream.Recorder
	policy    upstream.RetryPolicy
}

func New(endpoints *upstream.Endpoints, rec upstream.Recorder) *Client {
	return &Client{
		hc:        &http.Client{},
		endpoints: endpoints,
		rec:       rec,
		policy:    upstream.DefaultRetryPolicy(),
	}
}

// Smoke is the endpoint probe: resolve the hash of block 0.
func Smoke(hc *http.Client) func(ctx context.Context, base string) error {
	return func(ctx context.Context, base string) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/block-height/0", nil)
		if err != nil {
			return err
		}
		_, err = upstream.GetBytes(hc, req, "tx.smoke", upstream.AcceptText, "")
		return err
	}
}

// Tx fetches a transaction by id.
func (c *Client) Tx(ctx context.Context, txid string) (Tx, error) {
	return do(c, ctx, func(ctx context.Context) (Tx, error) {
		var out Tx
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoints.Primary()+"/tx/"+txid, nil)
		if err != nil {
			return out, upstream.NewError(upstream.KindMalformed, "tx.tx", err)
		}
		err = upstream.GetJSON(c.hc, req, "tx.tx", &out)
		return out, err
	})
}

// BlockHashByHeight resolves a height to its block hash. The endpoint
// returns text/plain.
func (c *Client) BlockHashByHeight(ctx context.Context, height int64) (string, error) {
	return do(c, ctx, func(ctx context.Context) (string, error) {
		url := fmt.Sprintf("%s/block-height/%d", c.endpoints.Primary(), height)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return "", upstream.NewError(upstream.KindMalformed, "tx.block_hash", err)
		}
		body, err := upstream.GetBytes(c.hc, req, "tx.block_hash", upstream.AcceptText, "")
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(body)), nil
	})
}

// Block fetches block metadata by hash.
func (c *Client) Block(ctx context.Context, hash string) (BlockInfo, error) {
	return do(c, ctx, func(ctx context.Context) (BlockInfo, error) {
		var out BlockInfo
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoints.Primary()+"/block/"+hash, nil)
		if err != nil {
			return out, upstream.NewError(upstream.KindMalformed, "tx.block", err)
		}
		err = upstream.GetJSON(c.hc, req, "tx.block", &out)
		return out, err
	})
}

// BlockTxCount resolves a height straight to its transaction count. A 404 on
// either hop propagates as NotFound; the parcel validator treats that as
// "count unknown".
func (c *Client) BlockTxCount(ctx context.Context, height int64) (int64, error) {
	hash, err := c.BlockHashByHeight(ctx, height)
	if err != nil {
		return 0, err
	}
	info, err := c.Block(ctx, hash)
	if err != nil {
		return 0, err
	}
	return info.TxCount, nil
}

// BlockTxids lists the txids of a block, in block order. Input to the
// pattern generator.
func (c *Client) BlockTxids(ctx context.Context, hash string) ([]string, error) {
	return do(c, ctx, func(ctx context.Context) ([]string, error) {
		var out []string
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoints.Primary()+"/block/"+hash+"/txids", nil)
		if err != nil {
			return nil, upstream.NewError(upstream.KindMalformed, "tx.block_txids", err)
		}
		err = upstream.GetJSON(c.hc, req, "tx.block_txids", &out)
		return out, err
	})
}

func do[T any](c *Client, ctx context.Context, call func(ctx context.Context) (T, error)) (T, error) {
	v, err := upstream.Do(ctx, c.policy, c.rec, call)
	c.endpoints.Note(err)
	return v, err
}
