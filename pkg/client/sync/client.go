package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/stewones/borda-sub001/pkg/model"
)

const defaultRequestTimeout = 30 * time.Second

// TokenSource supplies the bearer credential attached to pull requests.
// It is re-read per request so sign-in/sign-out takes effect immediately.
type TokenSource func() string

// Client fetches pull-sync batches from the server.
type Client struct {
	http    *fasthttp.Client
	baseURL string
	token   TokenSource
}

// NewClient returns a batch client for the given server base URL.
func NewClient(baseURL string, token TokenSource) *Client {
	return &Client{
		http: &fasthttp.Client{
			ReadTimeout:  defaultRequestTimeout,
			WriteTimeout: defaultRequestTimeout,
		},
		baseURL: baseURL,
		token:   token,
	}
}

// Fetch requests one batch for a collection/activity pair. synced may be
// empty, in which case the server starts from its own clock.
func (c *Client) Fetch(ctx context.Context, collection string, activity model.SyncActivity, synced string) (model.SyncBatch, error) {
	var batch model.SyncBatch

	q := url.Values{}
	q.Set("activity", string(activity))
	if synced != "" {
		q.Set("synced", synced)
	}
	uri := fmt.Sprintf("%s/sync/%s?%s", c.baseURL, collection, q.Encode())

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(uri)
	req.Header.SetMethod(fasthttp.MethodGet)
	if c.token != nil {
		if t := c.token(); t != "" {
			req.Header.Set("Authorization", "Bearer "+t)
		}
	}

	deadline := time.Now().Add(defaultRequestTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return batch, fmt.Errorf("fetch %s %s: %w", collection, activity, err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return batch, fmt.Errorf("fetch %s %s: server returned %d", collection, activity, resp.StatusCode())
	}
	if err := json.Unmarshal(resp.Body(), &batch); err != nil {
		return batch, fmt.Errorf("fetch %s %s: decode: %w", collection, activity, err)
	}
	return batch, nil
}
