package httpclient

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-resty/resty/v2"
)

// RestyClient adapts resty.Client to the httpclient.Client interface.
type RestyClient struct {
	client  *resty.Client
	maxBody int64
}

// Option tweaks a RestyClient.
type Option func(*RestyClient)

// WithMaxBodyBytes rejects responses larger than n bytes.
func WithMaxBodyBytes(n int64) Option {
	return func(r *RestyClient) {
		r.maxBody = n
	}
}

// NewRestyClient creates a new RestyClient with the specified timeout.
func NewRestyClient(timeout time.Duration, opts ...Option) *RestyClient {
	rc := &RestyClient{client: newRestyBaseClient(timeout)}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// NewRestyHTTPClient exposes a configured resty.Client for callers needing custom verbs.
func NewRestyHTTPClient(timeout time.Duration) *resty.Client {
	return newRestyBaseClient(timeout)
}

// newRestyBaseClient creates a new resty.Client with the specified timeout.
func newRestyBaseClient(timeout time.Duration) *resty.Client {
	c := resty.New()
	c.SetTimeout(timeout)
	return c
}

// Get performs an HTTP GET request with the specified context, URL, and headers.
func (r *RestyClient) Get(ctx context.Context, url string, headers map[string]string) (Response, error) {
	req := r.client.R().SetContext(ctx)
	if len(headers) > 0 {
		req.SetHeaders(headers)
	}
	if r.maxBody <= 0 {
		resp, err := req.Get(url)
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", url, err)
		}
		return &bufferedResponse{body: resp.Body(), statusCode: resp.StatusCode()}, nil
	}

	// Stream the body ourselves so an oversized page is rejected instead of buffered whole.
	resp, err := req.SetDoNotParseResponse(true).Get(url)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	raw := resp.RawBody()
	defer raw.Close()

	body, err := io.ReadAll(io.LimitReader(raw, r.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read %s body: %w", url, err)
	}
	if int64(len(body)) > r.maxBody {
		return nil, fmt.Errorf("%s body exceeds %d bytes", url, r.maxBody)
	}
	return &bufferedResponse{body: body, statusCode: resp.StatusCode()}, nil
}

// bufferedResponse implements Response over an already-read body.
type bufferedResponse struct {
	body       []byte
	statusCode int
}

func (r *bufferedResponse) Body() []byte    { return r.body }
func (r *bufferedResponse) StatusCode() int { return r.statusCode }
