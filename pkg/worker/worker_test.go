package worker

import (
	"context"
	"errors"
	"reelcache/pkg/cache"
	"reelcache/pkg/cachemanager"
	"reelcache/pkg/utils/logger"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

const origin = "http://portfolio.test"

var errNetwork = errors.New("network unreachable")

type route struct {
	status      int
	body        string
	contentType string
}

// fakeNetwork serves canned responses by path and counts calls.
type fakeNetwork struct {
	mu      sync.Mutex
	routes  map[string]route
	calls   map[string]int
	offline bool
	// arrivals, when set, holds every caller until all expected callers arrived.
	arrivals *sync.WaitGroup
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{routes: map[string]route{}, calls: map[string]int{}}
}

func (n *fakeNetwork) serve(path string, status int, body, contentType string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routes[path] = route{status: status, body: body, contentType: contentType}
}

func (n *fakeNetwork) setOffline(offline bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.offline = offline
}

func (n *fakeNetwork) count(path string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[path]
}

func (n *fakeNetwork) Fetch(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) error {
	path := string(req.URI().Path())

	n.mu.Lock()
	n.calls[path]++
	offline := n.offline
	r, ok := n.routes[path]
	arrivals := n.arrivals
	n.mu.Unlock()

	if arrivals != nil {
		arrivals.Done()
		arrivals.Wait()
	}
	if offline {
		return errNetwork
	}
	if !ok {
		resp.SetStatusCode(fasthttp.StatusNotFound)
		resp.SetBodyString("not found")
		return nil
	}
	resp.SetStatusCode(r.status)
	if r.contentType != "" {
		resp.Header.SetContentType(r.contentType)
	}
	resp.SetBodyString(r.body)
	return nil
}

// countingStore counts partition writes and can be told to fail them.
type countingStore struct {
	cache.Store
	mu       sync.Mutex
	writes   map[string]int
	failPuts bool
}

func newCountingStore() *countingStore {
	return &countingStore{Store: cache.NewMemoryStore(0), writes: map[string]int{}}
}

func (s *countingStore) Open(name string) (cache.Partition, error) {
	p, err := s.Store.Open(name)
	if err != nil {
		return nil, err
	}
	return &countingPartition{Partition: p, store: s}, nil
}

func (s *countingStore) writeCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[key]
}

type countingPartition struct {
	cache.Partition
	store *countingStore
}

func (p *countingPartition) Put(key string, entry *cache.Entry) error {
	p.store.mu.Lock()
	fail := p.store.failPuts
	p.store.writes[key]++
	p.store.mu.Unlock()
	if fail {
		return errors.New("quota exceeded")
	}
	return p.Partition.Put(key, entry)
}

var testNames = cachemanager.PartitionNames{Shell: "v1-shell", Media: "v1-media"}

func testOptions() Options {
	return Options{
		Names:       testNames,
		Origin:      origin,
		Seed:        []string{},
		SkipWaiting: true,
	}
}

func newActiveWorker(t *testing.T, net *fakeNetwork, store cache.Store, opts Options) *Worker {
	t.Helper()
	w := New(store, net, opts, logger.Nop(), nil)
	require.NoError(t, w.Install(context.Background()))
	require.True(t, w.Controlling())
	return w
}

func get(uri string) *fasthttp.Request {
	req := &fasthttp.Request{}
	req.SetRequestURI(uri)
	return req
}

// ==========================================
// Cache-first (media)
// ==========================================

func TestCacheFirst_MissThenHit(t *testing.T) {
	net := newFakeNetwork()
	net.serve("/videos/exps.webm", 200, "webm-bytes", "video/webm")
	store := newCountingStore()
	w := newActiveWorker(t, net, store, testOptions())
	ctx := context.Background()

	resp, err := w.Handle(ctx, get(origin+"/videos/exps.webm"))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode())
	assert.Equal(t, "webm-bytes", string(resp.Body()))
	assert.Equal(t, 1, net.count("/videos/exps.webm"))
	assert.Equal(t, 1, store.writeCount(origin+"/videos/exps.webm"))

	resp, err = w.Handle(ctx, get(origin+"/videos/exps.webm"))
	require.NoError(t, err)
	assert.Equal(t, "webm-bytes", string(resp.Body()))
	assert.Equal(t, "video/webm", string(resp.Header.ContentType()))
	assert.Equal(t, "HIT", string(resp.Header.Peek(HeaderCache)))
	assert.Equal(t, 1, net.count("/videos/exps.webm"), "second request must not reach the network")
}

func TestCacheFirst_HitDoesNotRevalidate(t *testing.T) {
	net := newFakeNetwork()
	store := newCountingStore()
	media, _ := store.Open(testNames.Media)
	media.Put(origin+"/images/exps.webp", &cache.Entry{StatusCode: 200, Body: []byte("stale-but-served")})
	w := newActiveWorker(t, net, store, testOptions())

	net.serve("/images/exps.webp", 200, "fresh", "image/webp")
	resp, err := w.Handle(context.Background(), get(origin+"/images/exps.webp"))
	require.NoError(t, err)
	assert.Equal(t, "stale-but-served", string(resp.Body()))
	assert.Zero(t, net.count("/images/exps.webp"))
}

func TestCacheFirst_NonOKIsReturnedButNotCached(t *testing.T) {
	for _, status := range []int{206, 204, 404, 500} {
		net := newFakeNetwork()
		net.serve("/videos/4x4.mp4", status, "partial", "video/mp4")
		store := newCountingStore()
		w := newActiveWorker(t, net, store, testOptions())

		resp, err := w.Handle(context.Background(), get(origin+"/videos/4x4.mp4"))
		require.NoError(t, err)
		assert.Equal(t, status, resp.StatusCode())
		assert.Zero(t, store.writeCount(origin+"/videos/4x4.mp4"), "status %d must not be cached", status)

		media, _ := store.Open(testNames.Media)
		_, ok, _ := media.Match(origin + "/videos/4x4.mp4")
		assert.False(t, ok)
	}
}

func TestCacheFirst_NetworkFailureYieldsPlaceholder(t *testing.T) {
	net := newFakeNetwork()
	net.setOffline(true)
	store := newCountingStore()
	w := newActiveWorker(t, net, store, testOptions())

	resp, err := w.Handle(context.Background(), get(origin+"/videos/exps.webm"))
	require.NoError(t, err, "media failures must never surface as errors")
	assert.Equal(t, 404, resp.StatusCode())
	assert.Equal(t, MediaUnavailableBody, string(resp.Body()))
	assert.Equal(t, "text/plain", string(resp.Header.ContentType()))
	assert.True(t, IsSynthetic(resp), "callers must be able to tell a placeholder from real media")
	assert.Zero(t, store.writeCount(origin+"/videos/exps.webm"))
}

func TestCacheFirst_ExtensionIsCaseInsensitive(t *testing.T) {
	net := newFakeNetwork()
	net.serve("/IMAGES/LOGO.PNG", 200, "png", "image/png")
	w := newActiveWorker(t, net, newCountingStore(), testOptions())
	ctx := context.Background()

	w.Handle(ctx, get(origin+"/IMAGES/LOGO.PNG"))
	w.Handle(ctx, get(origin+"/IMAGES/LOGO.PNG"))
	assert.Equal(t, 1, net.count("/IMAGES/LOGO.PNG"))
}

func TestCacheFirst_WriteFailureStillReturnsResponse(t *testing.T) {
	net := newFakeNetwork()
	net.serve("/videos/exps.webm", 200, "webm-bytes", "video/webm")
	store := newCountingStore()
	store.failPuts = true
	w := newActiveWorker(t, net, store, testOptions())

	resp, err := w.Handle(context.Background(), get(origin+"/videos/exps.webm"))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode())
	assert.Equal(t, "webm-bytes", string(resp.Body()))
	assert.Equal(t, 1, store.writeCount(origin+"/videos/exps.webm"))
}

func TestCacheFirst_CachedCopyIsIndependentOfReturnedResponse(t *testing.T) {
	net := newFakeNetwork()
	net.serve("/images/a.jpg", 200, "original", "image/jpeg")
	store := newCountingStore()
	w := newActiveWorker(t, net, store, testOptions())
	ctx := context.Background()

	resp, err := w.Handle(ctx, get(origin+"/images/a.jpg"))
	require.NoError(t, err)
	resp.SetBodyString("consumed by caller")

	resp, err = w.Handle(ctx, get(origin+"/images/a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "original", string(resp.Body()))
}

func TestCacheFirst_MaxContentSize(t *testing.T) {
	net := newFakeNetwork()
	net.serve("/videos/big.mp4", 200, "0123456789", "video/mp4")
	store := newCountingStore()
	opts := testOptions()
	opts.MaxContentSize = 4
	w := newActiveWorker(t, net, store, opts)

	resp, err := w.Handle(context.Background(), get(origin+"/videos/big.mp4"))
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(resp.Body()))
	assert.Zero(t, store.writeCount(origin+"/videos/big.mp4"))
}

func TestCacheFirst_ConcurrentMissesAreNotDeduplicated(t *testing.T) {
	net := newFakeNetwork()
	net.serve("/videos/exps.webm", 200, "webm-bytes", "video/webm")
	store := newCountingStore()
	w := newActiveWorker(t, net, store, testOptions())

	arrivals := &sync.WaitGroup{}
	arrivals.Add(2)
	net.mu.Lock()
	net.arrivals = arrivals
	net.mu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Handle(context.Background(), get(origin+"/videos/exps.webm"))
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, net.count("/videos/exps.webm"))
	assert.Equal(t, 2, store.writeCount(origin+"/videos/exps.webm"))
}

// ==========================================
// Network-first (shell)
// ==========================================

func TestNetworkFirst_CachesThenFallsBack(t *testing.T) {
	net := newFakeNetwork()
	net.serve("/app.js", 200, "console.log(1)", "application/javascript")
	store := newCountingStore()
	w := newActiveWorker(t, net, store, testOptions())
	ctx := context.Background()

	resp, err := w.Handle(ctx, get(origin+"/app.js"))
	require.NoError(t, err)
	assert.Equal(t, "console.log(1)", string(resp.Body()))
	assert.Equal(t, 1, store.writeCount(origin+"/app.js"))

	shell, _ := store.Open(testNames.Shell)
	_, ok, _ := shell.Match(origin + "/app.js")
	assert.True(t, ok, "shell response must be written to the shell partition")

	net.setOffline(true)
	resp, err = w.Handle(ctx, get(origin+"/app.js"))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode())
	assert.Equal(t, "console.log(1)", string(resp.Body()))
	assert.False(t, IsSynthetic(resp))
	assert.Equal(t, 2, net.count("/app.js"), "network is always tried first")
}

func TestNetworkFirst_OfflineWithoutCacheYields503(t *testing.T) {
	net := newFakeNetwork()
	net.setOffline(true)
	w := newActiveWorker(t, net, newCountingStore(), testOptions())

	resp, err := w.Handle(context.Background(), get(origin+"/styles/site.css"))
	require.NoError(t, err)
	assert.Equal(t, 503, resp.StatusCode())
	assert.Equal(t, OfflineBody, string(resp.Body()))
	assert.Equal(t, "text/plain", string(resp.Header.ContentType()))
	assert.True(t, IsSynthetic(resp))
}

func TestNetworkFirst_NonOKNotCached(t *testing.T) {
	net := newFakeNetwork()
	net.serve("/data.json", 500, "boom", "application/json")
	store := newCountingStore()
	w := newActiveWorker(t, net, store, testOptions())

	resp, err := w.Handle(context.Background(), get(origin+"/data.json"))
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode())
	assert.Zero(t, store.writeCount(origin+"/data.json"))
}

func TestNetworkFirst_RootDocumentIsShell(t *testing.T) {
	net := newFakeNetwork()
	net.serve("/", 200, "<html></html>", "text/html")
	store := newCountingStore()
	w := newActiveWorker(t, net, store, testOptions())

	_, err := w.Handle(context.Background(), get(origin+"/"))
	require.NoError(t, err)
	assert.Equal(t, 1, store.writeCount(origin+"/"))
}

// ==========================================
// Pass-through (unclassified)
// ==========================================

func TestPassThrough_NeverWrites(t *testing.T) {
	net := newFakeNetwork()
	net.serve("/fonts/inter.woff2", 200, "font", "font/woff2")
	store := newCountingStore()
	w := newActiveWorker(t, net, store, testOptions())

	resp, err := w.Handle(context.Background(), get(origin+"/fonts/inter.woff2"))
	require.NoError(t, err)
	assert.Equal(t, "font", string(resp.Body()))
	assert.Zero(t, store.writeCount(origin+"/fonts/inter.woff2"))
}

func TestPassThrough_FailurePropagatesWithoutCachedCopy(t *testing.T) {
	net := newFakeNetwork()
	net.setOffline(true)
	w := newActiveWorker(t, net, newCountingStore(), testOptions())

	resp, err := w.Handle(context.Background(), get(origin+"/fonts/inter.woff2"))
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, errNetwork)
}

func TestPassThrough_FallsBackToAnyPartition(t *testing.T) {
	net := newFakeNetwork()
	net.setOffline(true)
	store := newCountingStore()
	shell, _ := store.Open(testNames.Shell)
	shell.Put(origin+"/manifest.webmanifest", &cache.Entry{StatusCode: 200, Body: []byte("{}")})
	w := newActiveWorker(t, net, store, testOptions())

	resp, err := w.Handle(context.Background(), get(origin+"/manifest.webmanifest"))
	require.NoError(t, err)
	assert.Equal(t, "{}", string(resp.Body()))
}

func TestHandle_NonGetBypassesCache(t *testing.T) {
	net := newFakeNetwork()
	net.serve("/videos/exps.webm", 200, "webm-bytes", "video/webm")
	store := newCountingStore()
	w := newActiveWorker(t, net, store, testOptions())

	req := get(origin + "/videos/exps.webm")
	req.Header.SetMethod(fasthttp.MethodPost)
	_, err := w.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.Zero(t, store.writeCount(origin+"/videos/exps.webm"))
}

func TestHandle_BypassPatterns(t *testing.T) {
	net := newFakeNetwork()
	net.serve("/api/feed.json", 200, "[]", "application/json")
	store := newCountingStore()
	opts := testOptions()
	opts.Bypass = []string{"^/api/"}
	w := newActiveWorker(t, net, store, opts)

	_, err := w.Handle(context.Background(), get(origin+"/api/feed.json"))
	require.NoError(t, err)
	assert.Zero(t, store.writeCount(origin+"/api/feed.json"))
}

// ==========================================
// Lifecycle
// ==========================================

func TestInstall_SeedsShellPartition(t *testing.T) {
	net := newFakeNetwork()
	net.serve("/", 200, "<html>", "text/html")
	net.serve("/favicon.svg", 200, "<svg/>", "image/svg+xml")
	store := newCountingStore()
	opts := testOptions()
	opts.Seed = []string{"/", "/favicon.svg"}

	w := newActiveWorker(t, net, store, opts)
	assert.Equal(t, StateActivated, w.State())

	shell, _ := store.Open(testNames.Shell)
	keys, _ := shell.Keys()
	assert.ElementsMatch(t, []string{origin + "/", origin + "/favicon.svg"}, keys)
}

func TestInstall_AllOrNothing(t *testing.T) {
	net := newFakeNetwork()
	net.serve("/", 200, "<html>", "text/html")
	store := newCountingStore()
	opts := testOptions()
	opts.Seed = []string{"/", "/favicon.svg"}

	w := New(store, net, opts, logger.Nop(), nil)
	err := w.Install(context.Background())
	require.ErrorIs(t, err, ErrInstallFailed)
	assert.Equal(t, StateRedundant, w.State())
	assert.False(t, w.Controlling())

	shell, _ := store.Open(testNames.Shell)
	keys, _ := shell.Keys()
	assert.Empty(t, keys, "a partial shell must not be left behind")
}

func TestInstall_NetworkFailureFails(t *testing.T) {
	net := newFakeNetwork()
	net.setOffline(true)
	opts := testOptions()
	opts.Seed = []string{"/"}

	w := New(newCountingStore(), net, opts, logger.Nop(), nil)
	require.ErrorIs(t, w.Install(context.Background()), ErrInstallFailed)
}

func TestInstall_CanRetryAfterFailure(t *testing.T) {
	net := newFakeNetwork()
	opts := testOptions()
	opts.Seed = []string{"/"}
	w := New(newCountingStore(), net, opts, logger.Nop(), nil)

	require.Error(t, w.Install(context.Background()))
	net.serve("/", 200, "<html>", "text/html")
	require.NoError(t, w.Install(context.Background()))
	assert.True(t, w.Controlling())
}

func TestActivate_SweepsOldPartitions(t *testing.T) {
	store := cache.NewMemoryStore(0)
	for _, name := range []string{"v1-shell", "v1-media", "v0-shell"} {
		store.Open(name)
	}

	w := New(store, newFakeNetwork(), testOptions(), logger.Nop(), nil)
	require.NoError(t, w.Install(context.Background()))

	names, _ := store.Names()
	assert.Equal(t, []string{"v1-shell", "v1-media"}, names)

	// Idempotent.
	require.NoError(t, w.Activate(context.Background()))
	names, _ = store.Names()
	assert.Equal(t, []string{"v1-shell", "v1-media"}, names)
}

func TestActivate_RequiresInstall(t *testing.T) {
	w := New(cache.NewMemoryStore(0), newFakeNetwork(), testOptions(), logger.Nop(), nil)
	assert.ErrorIs(t, w.Activate(context.Background()), ErrNotInstalled)
}

func TestWaitingWorker_PassesThroughUntilSkipWaiting(t *testing.T) {
	net := newFakeNetwork()
	net.serve("/videos/exps.webm", 200, "webm-bytes", "video/webm")
	store := newCountingStore()
	store.Store.Open("v0-media")
	opts := testOptions()
	opts.SkipWaiting = false

	w := New(store, net, opts, logger.Nop(), nil)
	ctx := context.Background()
	require.NoError(t, w.Install(ctx))
	assert.Equal(t, StateInstalled, w.State())
	assert.False(t, w.Controlling())

	_, err := w.Handle(ctx, get(origin+"/videos/exps.webm"))
	require.NoError(t, err)
	assert.Zero(t, store.writeCount(origin+"/videos/exps.webm"), "a waiting worker does not intercept")

	require.NoError(t, w.HandleMessage(ctx, []byte(`{"type":"SKIP_WAITING"}`)))
	assert.Equal(t, StateActivated, w.State())
	assert.True(t, w.Controlling())
	ok, _ := store.Has("v0-media")
	assert.False(t, ok, "activation after SKIP_WAITING sweeps old partitions")

	// Idempotent.
	require.NoError(t, w.HandleMessage(ctx, []byte(`{"type":"SKIP_WAITING"}`)))
	assert.Equal(t, StateActivated, w.State())
}

func TestSkipWaiting_BeforeInstallActivatesAfterInstall(t *testing.T) {
	opts := testOptions()
	opts.SkipWaiting = false
	w := New(newCountingStore(), newFakeNetwork(), opts, logger.Nop(), nil)
	ctx := context.Background()

	require.NoError(t, w.SkipWaiting(ctx))
	assert.Equal(t, StateParsed, w.State())

	require.NoError(t, w.Install(ctx))
	assert.Equal(t, StateActivated, w.State())
}

// ==========================================
// Control messages
// ==========================================

func TestClearCache_ThenLookupMisses(t *testing.T) {
	net := newFakeNetwork()
	net.serve("/videos/exps.webm", 200, "webm-bytes", "video/webm")
	store := newCountingStore()
	w := newActiveWorker(t, net, store, testOptions())
	ctx := context.Background()

	w.Handle(ctx, get(origin+"/videos/exps.webm"))
	require.NoError(t, w.HandleMessage(ctx, []byte(`{"type":"CLEAR_CACHE"}`)))

	names, _ := store.Names()
	assert.Empty(t, names)

	w.Handle(ctx, get(origin+"/videos/exps.webm"))
	assert.Equal(t, 2, net.count("/videos/exps.webm"), "lookup after CLEAR_CACHE must miss")
}

func TestClearAll_IdempotentOnEmptyStore(t *testing.T) {
	w := New(cache.NewMemoryStore(0), newFakeNetwork(), testOptions(), logger.Nop(), nil)
	ctx := context.Background()
	assert.NoError(t, w.ClearAll(ctx))
	assert.NoError(t, w.ClearAll(ctx))
}

func TestHandleMessage_IgnoresUnknownShapes(t *testing.T) {
	store := cache.NewMemoryStore(0)
	store.Open("v1-media")
	opts := testOptions()
	opts.SkipWaiting = false
	w := New(store, newFakeNetwork(), opts, logger.Nop(), nil)
	ctx := context.Background()
	require.NoError(t, w.Install(ctx))

	for _, payload := range []string{
		`{"type":"RELOAD"}`,
		`{"type":42}`,
		`{"kind":"CLEAR_CACHE"}`,
		`not json`,
		``,
		`["CLEAR_CACHE"]`,
	} {
		assert.NoError(t, w.HandleMessage(ctx, []byte(payload)), payload)
	}

	assert.Equal(t, StateInstalled, w.State())
	ok, _ := store.Has("v1-media")
	assert.True(t, ok)
}

// ==========================================
// Classification
// ==========================================

func TestClassifier(t *testing.T) {
	c := NewClassifier(cachemanager.DefaultMediaExtensions, cachemanager.DefaultShellExtensions)

	cases := map[string]Class{
		"/videos/exps.webm":    ClassMedia,
		"/images/exps_11.WEBP": ClassMedia,
		"/a.jpeg":              ClassMedia,
		"/clip.MP4":            ClassMedia,
		"/":                    ClassShell,
		"/index.html":          ClassShell,
		"/_next/app.js":        ClassShell,
		"/data/brands.json":    ClassShell,
		"/about":               ClassUncached,
		"/favicon.svg":         ClassUncached,
		"/video.webm.map":      ClassUncached,
	}
	for path, want := range cases {
		assert.Equal(t, want, c.Classify(path), path)
	}
}

func TestUpstreamFetcher_HonoursCancelledContext(t *testing.T) {
	f := NewUpstreamFetcher("http://127.0.0.1:1", time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.Fetch(ctx, get("http://127.0.0.1:1/"), &fasthttp.Response{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "127.0.0.1:1", f.Addr())
}
