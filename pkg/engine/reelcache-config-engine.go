package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reelcache/pkg/cache"
	"reelcache/pkg/cachemanager"
	"reelcache/pkg/carousel"
	"reelcache/pkg/metrics"
	"reelcache/pkg/models"
	"reelcache/pkg/preload"
	"reelcache/pkg/ratelimit"
	"reelcache/pkg/ratelimitmanager"
	"reelcache/pkg/utils/fs"
	"reelcache/pkg/utils/hash"
	"reelcache/pkg/utils/logger"
	"reelcache/pkg/worker"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/valyala/fasthttp"
	"gopkg.in/yaml.v3"
)

const APP_NAME = "reelcache"

type ReelcacheEngine struct {
	config           *models.ReelcacheConfig
	logger           *logger.Logger
	store            cache.Store
	worker           *worker.Worker
	metrics          *metrics.Metrics
	rateLimitManager *ratelimitmanager.RateLimitManager
	controlHandler   fasthttp.RequestHandler

	cursor    *carousel.Cursor
	preloader *preload.Preloader
	hints     *preload.HintSet
	network   *preload.NetworkState
	items     []preload.Item

	originScheme string
	originHost   string

	ctx    context.Context
	cancel context.CancelFunc
	pid    int
}

// envOverrides are applied on top of the yaml file.
type envOverrides struct {
	Port           uint16        `env:"REELCACHE_PORT"`
	UpstreamTarget string        `env:"REELCACHE_UPSTREAM_TARGET"`
	StoragePath    string        `env:"REELCACHE_STORAGE_PATH"`
	CacheOrigin    string        `env:"REELCACHE_CACHE_ORIGIN"`
	CacheBackend   string        `env:"REELCACHE_CACHE_BACKEND"`
	CacheVersion   string        `env:"REELCACHE_CACHE_VERSION"`
	RedisAddress   string        `env:"REELCACHE_REDIS_ADDRESS"`
	RedisPassword  string        `env:"REELCACHE_REDIS_PASSWORD"`
	PreloadRange   int           `env:"REELCACHE_PRELOAD_RANGE"`
	PreloadTimeout time.Duration `env:"REELCACHE_PRELOAD_TIMEOUT"`
	Debug          *bool         `env:"REELCACHE_DEBUG"`
}

func InstantiateReelcacheEngine(configPath string) *ReelcacheEngine {
	config, err := LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Unable to load the config at %s: %v", configPath, err)
	}

	logger_, err := logger.NewLogger(config.Log)
	if err != nil {
		log.Fatalf("Unable to instantiate the logger: %v", err)
	}

	store, err := cachemanager.NewStore(config.Cache, config.Storage.Path)
	if err != nil {
		log.Fatalf("Unable to instantiate the %s cache backend: %v", config.Cache.Backend, err)
	}

	if pinger, ok := store.(interface{ Ping() error }); ok {
		if err := pinger.Ping(); err != nil {
			logger_.Warn(fmt.Sprintf("The %s cache backend is not reachable yet: %v", config.Cache.Backend, err))
		}
	}

	upstream := worker.NewUpstreamFetcher(config.Upstream.Target, config.Upstream.Timeout)
	var origin fasthttp.URI
	if err := origin.Parse(nil, []byte(config.Cache.Origin)); err != nil {
		log.Fatalf("Invalid cache origin %s: %v", config.Cache.Origin, err)
	}
	preloadFetcher := preload.NewHTTPFetcher(config.Preload.BaseURL, string(origin.Host()), config.Preload.Timeout)

	engine, err := NewReelcacheEngine(config, logger_, store, upstream, preloadFetcher)
	if err != nil {
		log.Fatalf("Unable to instantiate the engine: %v", err)
	}
	return engine
}

// NewReelcacheEngine wires an engine around an already loaded config.
func NewReelcacheEngine(config *models.ReelcacheConfig, logger_ *logger.Logger, store cache.Store, upstream worker.Fetcher, preloadFetcher preload.Fetcher) (*ReelcacheEngine, error) {
	var origin fasthttp.URI
	if err := origin.Parse(nil, []byte(config.Cache.Origin)); err != nil {
		return nil, fmt.Errorf("invalid cache origin %q: %w", config.Cache.Origin, err)
	}

	var m *metrics.Metrics
	if config.Metrics.Enabled {
		m = metrics.New()
	}

	limiter, err := ratelimit.NewRateLimiter(config.RateLimit, logger_)
	if err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	rateLimitManager := ratelimitmanager.NewRateLimitManager(limiter, config.RateLimit, logger_)

	ctx, cancel := context.WithCancel(context.Background())

	engine := &ReelcacheEngine{
		config:           config,
		logger:           logger_,
		store:            store,
		worker:           worker.New(store, upstream, worker.OptionsFromConfig(config.Cache), logger_, m),
		metrics:          m,
		rateLimitManager: rateLimitManager,
		cursor:           carousel.NewCursor(len(config.Catalog), config.Carousel.AutoPlayDelay),
		hints:            &preload.HintSet{},
		network:          &preload.NetworkState{},
		originScheme:     string(origin.Scheme()),
		originHost:       string(origin.Host()),
		ctx:              ctx,
		cancel:           cancel,
	}
	engine.controlHandler = rateLimitManager.Guard(engine.handleControl)

	for _, item := range config.Catalog {
		engine.items = append(engine.items, preload.Item{
			VideoURL:           item.VideoURL,
			BackgroundVideoURL: item.BackgroundVideoURL,
			Thumbnail:          item.Thumbnail,
		})
	}

	if config.Preload.Enabled && len(engine.items) > 0 {
		engine.preloader = preload.New(preloadFetcher, engine.hints, logger_, m)
		engine.cursor.OnChange(engine.preloadAround)
	}

	return engine, nil
}

// LoadConfig reads the yaml config, applies REELCACHE_* environment
// overrides and fills in the defaults.
func LoadConfig(configPath string) (*models.ReelcacheConfig, error) {
	config, err := readConfig(configPath)
	if err != nil {
		return nil, err
	}
	if err := applyDefaults(config, configPath); err != nil {
		return nil, err
	}
	return config, nil
}

func readConfig(configPath string) (*models.ReelcacheConfig, error) {
	var config models.ReelcacheConfig

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := applyEnv(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func applyEnv(config *models.ReelcacheConfig) error {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if overrides.Port != 0 {
		if config.Server == nil {
			config.Server = &models.ServerConfig{}
		}
		config.Server.Port = overrides.Port
	}
	if overrides.UpstreamTarget != "" {
		if config.Upstream == nil {
			config.Upstream = &models.UpstreamConfig{}
		}
		config.Upstream.Target = overrides.UpstreamTarget
	}
	if overrides.StoragePath != "" {
		config.Storage = &models.StorageConfig{Path: overrides.StoragePath}
	}
	if config.Cache == nil {
		config.Cache = &models.CacheConfig{}
	}
	if overrides.CacheOrigin != "" {
		config.Cache.Origin = overrides.CacheOrigin
	}
	if overrides.CacheBackend != "" {
		config.Cache.Backend = overrides.CacheBackend
	}
	if overrides.CacheVersion != "" {
		config.Cache.Version = overrides.CacheVersion
	}
	if overrides.RedisAddress != "" || overrides.RedisPassword != "" {
		if config.Cache.Redis == nil {
			config.Cache.Redis = &models.RedisConfig{}
		}
		if overrides.RedisAddress != "" {
			config.Cache.Redis.Address = overrides.RedisAddress
		}
		if overrides.RedisPassword != "" {
			config.Cache.Redis.Password = overrides.RedisPassword
		}
	}
	if overrides.PreloadRange != 0 || overrides.PreloadTimeout != 0 {
		if config.Preload == nil {
			config.Preload = &models.PreloadConfig{Enabled: true}
		}
		if overrides.PreloadRange != 0 {
			config.Preload.Range = overrides.PreloadRange
		}
		if overrides.PreloadTimeout != 0 {
			config.Preload.Timeout = overrides.PreloadTimeout
		}
	}
	if overrides.Debug != nil {
		if config.Log == nil {
			config.Log = defaultLogConfig()
		}
		config.Log.DebugEnabled = *overrides.Debug
	}
	return nil
}

func defaultLogConfig() *models.LogConfig {
	return &models.LogConfig{
		ToStdout: true,
		Prefix:   APP_NAME,
	}
}

// Intelligent defaults
func applyDefaults(config *models.ReelcacheConfig, configPath string) error {
	if config.Log == nil {
		config.Log = defaultLogConfig()
	}
	if config.Server == nil {
		config.Server = &models.ServerConfig{}
	}
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}

	if config.Upstream == nil || config.Upstream.Target == "" {
		return fmt.Errorf("upstream.target is required")
	}
	if config.Upstream.Timeout == 0 {
		config.Upstream.Timeout = 10 * time.Second
	}

	if err := resolveStoragePath(config, configPath); err != nil {
		return err
	}

	config.Cache = cachemanager.Resolve(config.Cache)
	if config.Cache.Origin == "" {
		config.Cache.Origin = fmt.Sprintf("http://localhost:%d", config.Server.Port)
	}

	if config.Preload == nil {
		config.Preload = &models.PreloadConfig{Enabled: true}
	}
	if config.Preload.Range == 0 {
		config.Preload.Range = preload.DefaultPreloadRange
	}
	if config.Preload.BaseURL == "" {
		config.Preload.BaseURL = fmt.Sprintf("http://127.0.0.1:%d", config.Server.Port)
	}
	if config.Preload.Timeout == 0 {
		config.Preload.Timeout = 30 * time.Second
	}

	if config.Carousel == nil {
		config.Carousel = &models.CarouselConfig{}
	}
	if config.Carousel.AutoPlayDelay == 0 {
		config.Carousel.AutoPlayDelay = carousel.DefaultAutoPlayDelay
	}

	if config.RateLimit == nil {
		config.RateLimit = &models.RateLimitConfig{}
	}
	if config.RateLimit.Redis == nil {
		config.RateLimit.Redis = config.Cache.Redis
	}
	if config.RateLimit.Enabled {
		ratelimit.SetDefaults(config.RateLimit)
	}

	if config.Metrics == nil {
		config.Metrics = &models.MetricsConfig{Enabled: true}
	}
	if config.Metrics.Path == "" {
		config.Metrics.Path = "/metrics"
	}
	return nil
}

// resolveStoragePath places state for configs without a storage section in
// the user app data dir, keyed by the absolute config path.
func resolveStoragePath(config *models.ReelcacheConfig, configPath string) error {
	if config.Storage != nil && config.Storage.Path != "" {
		return nil
	}

	storageRoot, err := fs.GetUserAppDataDir(APP_NAME)
	if err != nil {
		return fmt.Errorf("failed to determine app data dir: %w", err)
	}
	absConfigPath, err := filepath.Abs(configPath)
	if err != nil {
		return fmt.Errorf("failed to resolve absolute config path: %w", err)
	}
	config.Storage = &models.StorageConfig{Path: filepath.Join(storageRoot, hash.HashString(absConfigPath))}
	return nil
}
