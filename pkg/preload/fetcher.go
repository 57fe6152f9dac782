package preload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Fetcher retrieves url so that it ends up in the cache in front of it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) error
}

type FetcherFunc func(ctx context.Context, url string) error

func (f FetcherFunc) Fetch(ctx context.Context, url string) error {
	return f(ctx, url)
}

// HTTPFetcher issues preload requests against baseURL, normally the proxy
// itself. Cancelling the context aborts the transfer.
type HTTPFetcher struct {
	client  *http.Client
	baseURL string
	host    string
}

func NewHTTPFetcher(baseURL, host string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		host:    host,
	}
}

func (f *HTTPFetcher) URL(target string) string {
	if strings.Contains(target, "://") {
		return target
	}
	return f.baseURL + "/" + strings.TrimPrefix(target, "/")
}

func (f *HTTPFetcher) Fetch(ctx context.Context, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL(target), nil)
	if err != nil {
		return err
	}
	if f.host != "" {
		req.Host = f.host
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("preload %s: status %d", target, resp.StatusCode)
	}
	return nil
}
