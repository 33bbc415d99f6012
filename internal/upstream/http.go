package upstream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Both upstream services return 406 when the Accept header is omitted, so
// every request sets one explicitly.
const (
	AcceptJSON = "application/json"
	AcceptText = "text/plain"
)

// GetJSON issues a GET with Accept: application/json and decodes the body
// into out. Errors come back classified.
func GetJSON(hc *http.Client, req *http.Request, op string, out any) error {
	req.Header.Set("Accept", AcceptJSON)
	resp, err := hc.Do(req)
	if err != nil {
		return NewError(classifyNetErr(err), op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return NewError(classifyStatus(resp.StatusCode), op,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return NewError(KindMalformed, op, fmt.Errorf("decode: %w", err))
	}
	return nil
}

// GetBytes issues a GET with the given Accept header and returns the raw
// body. A Range header, when non-empty, is forwarded; servers without range
// support return the full body, which callers truncate themselves.
func GetBytes(hc *http.Client, req *http.Request, op, accept, byteRange string) ([]byte, error) {
	req.Header.Set("Accept", accept)
	if byteRange != "" {
		req.Header.Set("Range", byteRange)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, NewError(classifyNetErr(err), op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, NewError(classifyStatus(resp.StatusCode), op,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewError(KindTransient, op, fmt.Errorf("read body: %w", err))
	}
	return body, nil
}
