package preload

import (
	"context"
	"fmt"
	"reelcache/pkg/metrics"
	"reelcache/pkg/utils/logger"
	"sort"
	"sync"
)

const DefaultPreloadRange = 1

// Item is one entry of the carousel sequence.
type Item struct {
	VideoURL           string
	BackgroundVideoURL string
	Thumbnail          string
}

// MediaURL prefers the background video over the main video.
func (i Item) MediaURL() string {
	if i.BackgroundVideoURL != "" {
		return i.BackgroundVideoURL
	}
	return i.VideoURL
}

type Options struct {
	Items        []Item
	CurrentIndex int
	// PreloadRange is the neighborhood radius. Zero means DefaultPreloadRange,
	// a negative value preloads nothing.
	PreloadRange int
	Network      NetworkInfo
}

func (o Options) radius() int {
	if o.PreloadRange == 0 {
		return DefaultPreloadRange
	}
	return o.PreloadRange
}

type preloadURL struct {
	url  string
	kind HintKind
}

// Preloader warms the cache for the items around the current position and
// retracts work for items that move out of range. It is created by whoever
// drives the position and stopped when that owner goes away.
type Preloader struct {
	fetcher Fetcher
	hints   HintSink
	logger  *logger.Logger
	metrics *metrics.Metrics

	root    context.Context
	release context.CancelFunc
	wg      sync.WaitGroup

	mu        sync.Mutex
	stopped   bool
	preloaded map[string]struct{}
	cancels   map[string]context.CancelFunc
	hinted    map[string]Hint
}

func New(fetcher Fetcher, hints HintSink, logger *logger.Logger, m *metrics.Metrics) *Preloader {
	root, release := context.WithCancel(context.Background())
	return &Preloader{
		fetcher:   fetcher,
		hints:     hints,
		logger:    logger,
		metrics:   m,
		root:      root,
		release:   release,
		preloaded: make(map[string]struct{}),
		cancels:   make(map[string]context.CancelFunc),
		hinted:    make(map[string]Hint),
	}
}

// Update re-evaluates the neighborhood of opts.CurrentIndex. New URLs get a
// hint and a background fetch; URLs outside the neighborhood are cancelled
// and forgotten. Fetches are not waited for.
func (p *Preloader) Update(opts Options) {
	if IsSlow(opts.Network) {
		p.logger.Debug(fmt.Sprintf("Skipping preload on %s connection", opts.Network.EffectiveType()))
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}

	indices := Neighborhood(opts.CurrentIndex, len(opts.Items), opts.radius())
	wanted := make(map[string]struct{})

	for _, index := range indices {
		for _, u := range urlsOf(opts.Items[index]) {
			wanted[u.url] = struct{}{}
			if _, ok := p.preloaded[u.url]; ok {
				continue
			}
			p.start(u)
		}
	}

	for url, cancel := range p.cancels {
		if _, ok := wanted[url]; ok {
			continue
		}
		cancel()
		delete(p.cancels, url)
		delete(p.preloaded, url)
		p.metrics.Preload("cancelled")
		p.logger.Debug(fmt.Sprintf("Retracted preload of %s", url))
	}
}

func urlsOf(item Item) []preloadURL {
	var urls []preloadURL
	if media := item.MediaURL(); media != "" {
		urls = append(urls, preloadURL{url: media, kind: HintVideo})
	}
	if item.Thumbnail != "" {
		urls = append(urls, preloadURL{url: item.Thumbnail, kind: HintImage})
	}
	return urls
}

// start must be called with p.mu held.
func (p *Preloader) start(u preloadURL) {
	ctx, cancel := context.WithCancel(p.root)
	p.preloaded[u.url] = struct{}{}
	p.cancels[u.url] = cancel

	if _, ok := p.hinted[u.url]; !ok {
		hint := Hint{URL: u.url, As: u.kind, CrossOrigin: u.kind == HintVideo}
		if p.hints != nil {
			p.hints.Insert(hint)
		}
		p.hinted[u.url] = hint
	}

	p.metrics.Preload("started")
	p.logger.Debug(fmt.Sprintf("Preloading %s %s", u.kind, u.url))

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		err := p.fetcher.Fetch(ctx, u.url)
		switch {
		case err == nil:
			p.metrics.Preload("completed")
		case ctx.Err() != nil:
			p.logger.Debug(fmt.Sprintf("Preload of %s cancelled", u.url))
		default:
			p.metrics.Preload("failed")
			p.logger.Debug(fmt.Sprintf("Preload of %s failed: %v", u.url, err))
		}
	}()
}

// Preloaded lists the URLs currently registered, sorted.
func (p *Preloader) Preloaded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	urls := make([]string, 0, len(p.preloaded))
	for url := range p.preloaded {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	return urls
}

// Stop refuses further updates and waits for outstanding fetches. When ctx
// ends first the remaining fetches are cancelled.
func (p *Preloader) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.release()
		return nil
	case <-ctx.Done():
		p.release()
		<-done
		return ctx.Err()
	}
}
