package worker

import (
	"context"
	"errors"
	"fmt"
	"reelcache/pkg/cache"
	"reelcache/pkg/cachemanager"
	"reelcache/pkg/metrics"
	"reelcache/pkg/models"
	"reelcache/pkg/utils/logger"
	"reelcache/pkg/utils/regex"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tidwall/gjson"
	"github.com/valyala/fasthttp"
	"golang.org/x/sync/errgroup"
)

type State int

const (
	StateParsed State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActivated
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateParsed:
		return "parsed"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	case StateRedundant:
		return "redundant"
	}
	return "unknown"
}

const (
	MessageSkipWaiting = "SKIP_WAITING"
	MessageClearCache  = "CLEAR_CACHE"
)

var (
	ErrInstallFailed = errors.New("install failed")
	ErrNotInstalled  = errors.New("worker not installed")
)

// Interceptor answers every request the proxy receives.
type Interceptor interface {
	Handle(ctx context.Context, req *fasthttp.Request) (*fasthttp.Response, error)
}

var _ Interceptor = (*Worker)(nil)

type Options struct {
	Names cachemanager.PartitionNames
	// Origin is the scheme://host seed requests are addressed to.
	Origin          string
	Seed            []string
	KeyConfig       *models.CacheKeyConfig
	MediaExtensions []string
	ShellExtensions []string
	Bypass          []string
	MaxContentSize  uint64
	SkipWaiting     bool
}

// OptionsFromConfig resolves a cache config section into worker options.
func OptionsFromConfig(config *models.CacheConfig) Options {
	config = cachemanager.Resolve(config)
	return Options{
		Names:           cachemanager.NewPartitionNames(config.NamePrefix, config.Version),
		Origin:          config.Origin,
		Seed:            config.Seed,
		KeyConfig:       config.KeyConfig,
		MediaExtensions: config.MediaExtensions,
		ShellExtensions: config.ShellExtensions,
		Bypass:          config.Bypass,
		MaxContentSize:  config.MaxContentSize,
		SkipWaiting:     *config.SkipWaiting,
	}
}

// Worker is the media cache proxy: it seeds and sweeps the partitions and
// decides per request between cache and network.
type Worker struct {
	store      cache.Store
	fetcher    Fetcher
	classifier *Classifier
	bypass     *regexp.Regexp
	opts       Options
	logger     *logger.Logger
	metrics    *metrics.Metrics

	mu          sync.Mutex
	state       State
	skipWaiting bool
	controlling atomic.Bool
}

func New(store cache.Store, fetcher Fetcher, opts Options, logger *logger.Logger, m *metrics.Metrics) *Worker {
	if opts.KeyConfig == nil {
		opts.KeyConfig = &models.CacheKeyConfig{Type: cachemanager.DefaultKeyTypes}
	}
	if opts.MediaExtensions == nil {
		opts.MediaExtensions = cachemanager.DefaultMediaExtensions
	}
	if opts.ShellExtensions == nil {
		opts.ShellExtensions = cachemanager.DefaultShellExtensions
	}

	w := &Worker{
		store:       store,
		fetcher:     fetcher,
		classifier:  NewClassifier(opts.MediaExtensions, opts.ShellExtensions),
		opts:        opts,
		logger:      logger,
		metrics:     m,
		skipWaiting: opts.SkipWaiting,
	}
	if len(opts.Bypass) > 0 {
		w.bypass = regex.CombinePatterns(opts.Bypass)
	}
	return w
}

func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Controlling reports whether requests are being intercepted.
func (w *Worker) Controlling() bool {
	return w.controlling.Load()
}

func (w *Worker) Names() cachemanager.PartitionNames {
	return w.opts.Names
}

// Install opens the shell partition and seeds it with every listed asset.
// Seeding is all or nothing: if any asset fails, nothing stays written and
// the worker becomes redundant.
func (w *Worker) Install(ctx context.Context) error {
	w.mu.Lock()
	if w.state != StateParsed && w.state != StateRedundant {
		w.mu.Unlock()
		return nil
	}
	w.state = StateInstalling
	w.mu.Unlock()

	w.logger.Info(fmt.Sprintf("Installing; seeding %d assets into %s", len(w.opts.Seed), w.opts.Names.Shell))

	if err := w.seed(ctx); err != nil {
		w.setState(StateRedundant)
		w.logger.Error(fmt.Sprintf("Install failed: %v", err))
		return fmt.Errorf("%w: %v", ErrInstallFailed, err)
	}

	w.mu.Lock()
	w.state = StateInstalled
	skip := w.skipWaiting
	w.mu.Unlock()
	w.logger.Info("Installed")

	if skip {
		return w.Activate(ctx)
	}
	w.logger.Info("Waiting for SKIP_WAITING before taking control")
	return nil
}

func (w *Worker) seed(ctx context.Context) error {
	shell, err := w.store.Open(w.opts.Names.Shell)
	if err != nil {
		return fmt.Errorf("open %s: %w", w.opts.Names.Shell, err)
	}

	entries := make([]*cache.Entry, len(w.opts.Seed))
	g, gctx := errgroup.WithContext(ctx)
	for i, asset := range w.opts.Seed {
		i, asset := i, asset
		g.Go(func() error {
			req := &fasthttp.Request{}
			req.SetRequestURI(w.seedURL(asset))
			req.Header.SetMethod(fasthttp.MethodGet)

			resp := &fasthttp.Response{}
			if err := w.fetcher.Fetch(gctx, req, resp); err != nil {
				return fmt.Errorf("seed %s: %w", asset, err)
			}
			status := resp.StatusCode()
			if status < 200 || status > 299 {
				return fmt.Errorf("seed %s: status %d", asset, status)
			}
			entries[i] = cache.EntryFromResponse(cachemanager.GetKey(w.opts.KeyConfig, req), resp)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var written []string
	for _, entry := range entries {
		if err := shell.Put(entry.Key, entry); err != nil {
			for _, key := range written {
				shell.Delete(key)
			}
			return fmt.Errorf("write %s: %w", entry.Key, err)
		}
		written = append(written, entry.Key)
		w.logger.Debug(fmt.Sprintf("Seeded %s", entry.Key))
	}
	return nil
}

func (w *Worker) seedURL(asset string) string {
	if strings.Contains(asset, "://") {
		return asset
	}
	return strings.TrimSuffix(w.opts.Origin, "/") + "/" + strings.TrimPrefix(asset, "/")
}

// Activate deletes every partition that does not belong to the current
// version and starts intercepting requests. Calling it again is harmless.
func (w *Worker) Activate(ctx context.Context) error {
	w.mu.Lock()
	switch w.state {
	case StateActivated:
		w.mu.Unlock()
		return nil
	case StateInstalled:
	default:
		state := w.state
		w.mu.Unlock()
		return fmt.Errorf("%w: state %s", ErrNotInstalled, state)
	}
	w.state = StateActivating
	w.mu.Unlock()

	w.logger.Info("Activating")
	if err := w.sweep(); err != nil {
		w.setState(StateInstalled)
		return err
	}

	w.setState(StateActivated)
	w.controlling.Store(true)
	w.logger.Info(fmt.Sprintf("Activated; intercepting with partitions %s and %s", w.opts.Names.Shell, w.opts.Names.Media))
	return nil
}

func (w *Worker) sweep() error {
	names, err := w.store.Names()
	if err != nil {
		return fmt.Errorf("list partitions: %w", err)
	}
	for _, name := range names {
		if w.opts.Names.Current(name) {
			continue
		}
		w.logger.Info(fmt.Sprintf("Deleting old partition: %s", name))
		if _, err := w.store.Delete(name); err != nil {
			return fmt.Errorf("delete partition %s: %w", name, err)
		}
		w.metrics.PartitionDeleted()
	}
	return nil
}

// SkipWaiting activates an installed worker right away. A worker that is
// still installing activates as soon as installation finishes.
func (w *Worker) SkipWaiting(ctx context.Context) error {
	w.mu.Lock()
	w.skipWaiting = true
	state := w.state
	w.mu.Unlock()

	if state == StateInstalled {
		return w.Activate(ctx)
	}
	return nil
}

// ClearAll deletes every partition regardless of version.
func (w *Worker) ClearAll(ctx context.Context) error {
	names, err := w.store.Names()
	if err != nil {
		return fmt.Errorf("list partitions: %w", err)
	}
	for _, name := range names {
		if _, err := w.store.Delete(name); err != nil {
			return fmt.Errorf("delete partition %s: %w", name, err)
		}
		w.metrics.PartitionDeleted()
	}
	w.logger.Info(fmt.Sprintf("Cleared %d partitions", len(names)))
	return nil
}

// HandleMessage applies a control message of the form {"type": "..."}.
// Unknown or malformed messages are ignored.
func (w *Worker) HandleMessage(ctx context.Context, payload []byte) error {
	if !gjson.ValidBytes(payload) {
		w.logger.Debug("Ignoring malformed control message")
		return nil
	}
	kind := gjson.GetBytes(payload, "type")
	if kind.Type != gjson.String {
		w.logger.Debug("Ignoring control message without a type")
		return nil
	}

	switch kind.Str {
	case MessageSkipWaiting:
		w.logger.Info("Received SKIP_WAITING")
		return w.SkipWaiting(ctx)
	case MessageClearCache:
		w.logger.Info("Received CLEAR_CACHE")
		return w.ClearAll(ctx)
	default:
		w.logger.Debug(fmt.Sprintf("Ignoring control message type %q", kind.Str))
		return nil
	}
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}
