package worker

import (
	"context"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// Fetcher performs the network half of a request. It fills resp or returns
// an error when no response could be obtained at all.
type Fetcher interface {
	Fetch(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) error
}

type FetcherFunc func(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) error

func (f FetcherFunc) Fetch(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) error {
	return f(ctx, req, resp)
}

// UpstreamFetcher sends requests to the origin server behind the proxy.
type UpstreamFetcher struct {
	client  *fasthttp.HostClient
	timeout time.Duration
}

func NewUpstreamFetcher(target string, timeout time.Duration) *UpstreamFetcher {
	addr := strings.TrimPrefix(strings.TrimPrefix(target, "http://"), "https://")
	return &UpstreamFetcher{
		client: &fasthttp.HostClient{
			Addr:  addr,
			IsTLS: strings.HasPrefix(target, "https://"),
		},
		timeout: timeout,
	}
}

func (f *UpstreamFetcher) Fetch(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline := time.Now().Add(f.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return f.client.DoDeadline(req, resp, deadline)
}

func (f *UpstreamFetcher) Addr() string {
	return f.client.Addr
}
