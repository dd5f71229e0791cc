package harvester

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// DefaultMaxBodyBytes bounds a downloaded document when no limit is configured
const DefaultMaxBodyBytes int64 = 64 << 20

// ErrBodyTooLarge is returned when a document exceeds the fetcher's limit
var ErrBodyTooLarge = errors.New("document exceeds size limit")

// Document is a downloaded URL
type Document struct {
	URL         string
	ContentType string
	Body        []byte
}

// Fetcher downloads a URL
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Document, error)
}

// StatusError reports a non-2xx response
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d fetching %s", e.StatusCode, e.URL)
}

// HTTPFetcher fetches documents with a plain GET
type HTTPFetcher struct {
	client  *http.Client
	maxBody int64
}

// NewHTTPFetcher creates a fetcher. A nil client uses http.DefaultClient and
// maxBody <= 0 uses DefaultMaxBodyBytes.
func NewHTTPFetcher(client *http.Client, maxBody int64) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	return &HTTPFetcher{client: client, maxBody: maxBody}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", url, err)
	}
	if int64(len(body)) > f.maxBody {
		return nil, fmt.Errorf("%w: %s", ErrBodyTooLarge, url)
	}

	return &Document{
		URL:         url,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}
