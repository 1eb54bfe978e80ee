package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Adda-Baaj/fia-docwatch/internal/digest"
	"github.com/Adda-Baaj/fia-docwatch/internal/domain"
	"github.com/Adda-Baaj/fia-docwatch/internal/fsutil"
	"github.com/Adda-Baaj/fia-docwatch/pkg/httpclient"
)

// HTTPClient aliases the shared httpclient.Client interface for clarity within sources.
type HTTPClient = httpclient.Client

const (
	// DefaultFetchTimeout bounds a single request made by the default client.
	DefaultFetchTimeout = 30 * time.Second
	// DefaultMaxBodyBytes caps index pages and documents fetched by the default client.
	DefaultMaxBodyBytes int64 = 8 << 20
)

// DefaultHTTPClient returns a resty-backed client with the same timeout and body cap as
// the configured defaults.
func DefaultHTTPClient() HTTPClient {
	return httpclient.NewRestyClient(DefaultFetchTimeout, httpclient.WithMaxBodyBytes(DefaultMaxBodyBytes))
}

// FetchError reports a failed fetch. StatusCode is zero for transport failures.
type FetchError struct {
	URL        string
	StatusCode int
	Snippet    string
	Cause      error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d body: %s", e.URL, e.StatusCode, e.Snippet)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// Fetcher retrieves index pages and documents for a source. It never retries; the
// scheduler's next tick is the retry.
type Fetcher struct {
	client HTTPClient
	hasher *digest.Hasher
	now    func() time.Time
}

// NewFetcher builds a fetcher around the given HTTP client (or the default one).
func NewFetcher(client HTTPClient) *Fetcher {
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &Fetcher{
		client: client,
		hasher: digest.New(),
		now:    time.Now,
	}
}

// Fetch downloads the source's index page and returns it as a snapshot.
func (f *Fetcher) Fetch(ctx context.Context, src Source) (domain.SourceSnapshot, error) {
	if strings.TrimSpace(src.SourceURL) == "" {
		return domain.SourceSnapshot{}, fmt.Errorf("source %q source_url is empty", src.ID)
	}

	body, err := f.get(ctx, src, src.SourceURL)
	if err != nil {
		return domain.SourceSnapshot{}, err
	}

	return domain.SourceSnapshot{
		SourceID:    src.ID,
		URL:         src.SourceURL,
		FetchedAt:   f.now().UTC(),
		Body:        body,
		ContentHash: f.hasher.Hash(body),
	}, nil
}

// Download fetches a document link and stores it at dest. The file only appears once the
// whole body was written and synced; on failure nothing is left at dest.
func (f *Fetcher) Download(ctx context.Context, src Source, link, dest string) (int64, error) {
	target, err := src.ResolveLink(link)
	if err != nil {
		return 0, err
	}

	body, err := f.get(ctx, src, target)
	if err != nil {
		return 0, err
	}
	if len(body) == 0 {
		return 0, &FetchError{URL: target, Cause: errors.New("empty document body")}
	}

	n, err := fsutil.WriteFileAtomic(dest, bytes.NewReader(body), 0o644)
	if err != nil {
		return 0, fmt.Errorf("store document %s: %w", target, err)
	}
	return n, nil
}

func (f *Fetcher) get(ctx context.Context, src Source, target string) ([]byte, error) {
	resp, err := f.client.Get(ctx, target, Headers(src))
	if err != nil {
		return nil, &FetchError{URL: target, Cause: err}
	}

	body := resp.Body()
	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		return nil, &FetchError{URL: target, StatusCode: resp.StatusCode(), Snippet: responseSnippet(body)}
	}
	return body, nil
}

func responseSnippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}
