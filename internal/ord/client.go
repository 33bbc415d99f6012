// Package ord is the typed client for the upstream Ordinals HTTP service.
package ord

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rawblock/ordinals-indexer/internal/cache"
	"github.com/rawblock/ordinals-indexer/internal/upstream"
	"github.com/rawblock/ordinals-indexer/pkg/models"
)

// BlockPage is one page of inscription IDs for a block.
type BlockPage struct {
	IDs       []string `json:"ids"`
	More      bool     `json:"more"`
	PageIndex int      `json:"page_index"`
}

type childrenResponse struct {
	IDs []string `json:"ids"`
}

// Client wraps the Ordinals service with retry, endpoint failover and the
// shared preview cache.
type Client struct {
	hc        *http.Client
	endpoints *upstream.Endpoints
	cache     *cache.Cache
	rec       upstream.Recorder
	policy    upstream.RetryPolicy
}

// New builds a Client. cache and rec may be nil.
func New(endpoints *upstream.Endpoints, c *cache.Cache, rec upstream.Recorder) *Client {
	return &Client{
		// Per-attempt deadlines come from the retry policy's context, not the
		// transport.
		hc:        &http.Client{},
		endpoints: endpoints,
		cache:     c,
		rec:       rec,
		policy:    upstream.DefaultRetryPolicy(),
	}
}

// Smoke is the endpoint probe: one cheap page fetch against base.
func Smoke(hc *http.Client) func(ctx context.Context, base string) error {
	return func(ctx context.Context, base string) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/inscriptions/block/0", nil)
		if err != nil {
			return err
		}
		var page BlockPage
		return upstream.GetJSON(hc, req, "ord.smoke", &page)
	}
}

// InscriptionsInBlock fetches one page of inscription IDs. Page 0 uses the
// bare path; later pages use the path-parameter form (the query-parameter
// form is known to be buggy upstream).
func (c *Client) InscriptionsInBlock(ctx context.Context, height int64, page int) (BlockPage, error) {
	path := fmt.Sprintf("/inscriptions/block/%d", height)
	if page > 0 {
		path = fmt.Sprintf("/inscriptions/block/%d/%d", height, page)
	}
	return do(c, ctx, func(ctx context.Context) (BlockPage, error) {
		var out BlockPage
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoints.Primary()+path, nil)
		if err != nil {
			return out, upstream.NewError(upstream.KindMalformed, "ord.inscriptions_in_block", err)
		}
		err = upstream.GetJSON(c.hc, req, "ord.inscriptions_in_block", &out)
		return out, err
	})
}

// Inscription fetches inscription metadata, cached under details:<id>.
func (c *Client) Inscription(ctx context.Context, id string) (models.Inscription, error) {
	if c.cache != nil {
		if v, ok := c.cache.Get(cache.NSDetails + id); ok {
			return v.(models.Inscription), nil
		}
	}
	ins, err := c.fetchInscription(ctx, id)
	if err != nil {
		return models.Inscription{}, err
	}
	if c.cache != nil {
		c.cache.Set(cache.NSDetails+id, ins)
	}
	return ins, nil
}

// CurrentAddress fetches the holder of id, bypassing the details cache. The
// transfer tracker uses this so reconciliation never sees a stale address.
func (c *Client) CurrentAddress(ctx context.Context, id string) (string, error) {
	ins, err := c.fetchInscription(ctx, id)
	if err != nil {
		return "", err
	}
	if c.cache != nil {
		c.cache.Set(cache.NSDetails+id, ins)
	}
	return ins.Address, nil
}

// SourceOwner returns the current holder of a deploy's source inscription,
// cached under deployer:<id>. The holder only has to be accurate at deploy
// validation time, so TTL staleness is acceptable here.
func (c *Client) SourceOwner(ctx context.Context, id string) (string, error) {
	if c.cache != nil {
		if v, ok := c.cache.Get(cache.NSDeployer + id); ok {
			return v.(string), nil
		}
	}
	ins, err := c.fetchInscription(ctx, id)
	if err != nil {
		return "", err
	}
	if c.cache != nil {
		c.cache.Set(cache.NSDeployer+id, ins.Address)
	}
	return ins.Address, nil
}

func (c *Client) fetchInscription(ctx context.Context, id string) (models.Inscription, error) {
	return do(c, ctx, func(ctx context.Context) (models.Inscription, error) {
		var out models.Inscription
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoints.Primary()+"/inscription/"+id, nil)
		if err != nil {
			return out, upstream.NewError(upstream.KindMalformed, "ord.inscription", err)
		}
		if err := upstream.GetJSON(c.hc, req, "ord.inscription", &out); err != nil {
			return out, err
		}
		if out.ID == "" {
			out.ID = id
		}
		return out, nil
	})
}

// ContentPreview fetches the first n bytes of an inscription's content using
// a Range request where the server supports it, falling back to truncating
// the full body. Cached under preview:<id>.
func (c *Client) ContentPreview(ctx context.Context, id string, n int) ([]byte, error) {
	if c.cache != nil {
		if v, ok := c.cache.Get(cache.NSPreview + id); ok {
			return v.([]byte), nil
		}
	}
	body, err := do(c, ctx, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoints.Primary()+"/content/"+id, nil)
		if err != nil {
			return nil, upstream.NewError(upstream.KindMalformed, "ord.content_preview", err)
		}
		return upstream.GetBytes(c.hc, req, "ord.content_preview", upstream.AcceptText,
			fmt.Sprintf("bytes=0-%d", n-1))
	})
	if err != nil {
		return nil, err
	}
	if len(body) > n {
		body = body[:n]
	}
	if c.cache != nil {
		c.cache.Set(cache.NSPreview+id, body)
	}
	return body, nil
}

// Content fetches the full content of an inscription, cached under
// content:<id>.
func (c *Client) Content(ctx context.Context, id string) ([]byte, error) {
	if c.cache != nil {
		if v, ok := c.cache.Get(cache.NSContent + id); ok {
			return v.([]byte), nil
		}
	}
	body, err := do(c, ctx, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoints.Primary()+"/content/"+id, nil)
		if err != nil {
			return nil, upstream.NewError(upstream.KindMalformed, "ord.content", err)
		}
		return upstream.GetBytes(c.hc, req, "ord.content", upstream.AcceptText, "")
	})
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.Set(cache.NSContent+id, body)
	}
	return body, nil
}

// Children returns the child inscription IDs of id, cached under
// children:<id>. A 404 is an empty set, not an error.
func (c *Client) Children(ctx context.Context, id string) ([]string, error) {
	if c.cache != nil {
		if v, ok := c.cache.Get(cache.NSChildren + id); ok {
			return v.([]string), nil
		}
	}
	resp, err := do(c, ctx, func(ctx context.Context) (childrenResponse, error) {
		var out childrenResponse
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoints.Primary()+"/children/"+id, nil)
		if err != nil {
			return out, upstream.NewError(upstream.KindMalformed, "ord.children", err)
		}
		err = upstream.GetJSON(c.hc, req, "ord.children", &out)
		return out, err
	})
	if err != nil {
		if upstream.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if c.cache != nil {
		c.cache.Set(cache.NSChildren+id, resp.IDs)
	}
	return resp.IDs, nil
}

// do wraps the retry combinator with endpoint failure bookkeeping.
func do[T any](c *Client, ctx context.Context, call func(ctx context.Context) (T, error)) (T, error) {
	v, err := upstream.Do(ctx, c.policy, c.rec, call)
	c.endpoints.Note(err)
	return v, err
}
