package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"reelcache/pkg/cachemanager"
	"reelcache/pkg/models"
	"reelcache/pkg/utils/fs"
	"reelcache/pkg/utils/hash"
	"reelcache/pkg/utils/system"
	"time"

	"gopkg.in/yaml.v3"
)

func InitConfig(configPath string) error {
	appData, err := fs.GetUserAppDataDir(APP_NAME)
	if err != nil {
		return err
	}

	absConfigPath, err := filepath.Abs(configPath)
	if err != nil {
		return err
	}
	storageDir := filepath.Join(appData, hash.HashString(absConfigPath))

	freePort, err := system.GetFreePort()
	if err != nil {
		return err
	}

	skipWaiting := true
	defaultConfig := &models.ReelcacheConfig{
		Log: &models.LogConfig{
			ToFile:   true,
			FilePath: filepath.Join(storageDir, "reelcache.log"),
			ToStdout: true,
			Prefix:   APP_NAME,
		},
		Server: &models.ServerConfig{
			Port: uint16(freePort),
		},
		Upstream: &models.UpstreamConfig{
			Target:  "localhost:3000",
			Timeout: 10 * time.Second,
		},
		Storage: &models.StorageConfig{
			Path: storageDir,
		},
		Cache: &models.CacheConfig{
			Origin:          fmt.Sprintf("http://localhost:%d", freePort),
			NamePrefix:      APP_NAME,
			Version:         "v1",
			Backend:         models.CACHE_BACKEND_DISK,
			Compress:        true,
			SkipWaiting:     &skipWaiting,
			Seed:            []string{"/", "/favicon.svg"},
			MediaExtensions: cachemanager.DefaultMediaExtensions,
			ShellExtensions: cachemanager.DefaultShellExtensions,
			Bypass:          []string{"^/api/"},
			KeyConfig: &models.CacheKeyConfig{
				Type: cachemanager.DefaultKeyTypes,
			},
		},
		Preload: &models.PreloadConfig{
			Enabled: true,
			Range:   1,
			Timeout: 30 * time.Second,
		},
		Carousel: &models.CarouselConfig{
			AutoPlay:      false,
			AutoPlayDelay: 5 * time.Second,
		},
		Catalog: []models.CatalogItem{
			{
				Title:              "Absence",
				Thumbnail:          "/images/exps_11.webp",
				VideoURL:           "/videos/4x4.mp4",
				BackgroundVideoURL: "/videos/exps_11.webm",
			},
			{
				Title:              "The Killer",
				Thumbnail:          "/images/exps.webp",
				VideoURL:           "/videos/4x4.mp4",
				BackgroundVideoURL: "/videos/exps.webm",
			},
			{
				Title:              "The Chaos",
				Thumbnail:          "/images/exps_9.webp",
				VideoURL:           "/videos/4x4.mp4",
				BackgroundVideoURL: "/videos/exps_9.webm",
			},
		},
		RateLimit: &models.RateLimitConfig{
			Enabled:  true,
			Requests: 60,
			Window:   time.Minute,
			Storage:  "memory",
			KeyBy:    []string{"ip"},
		},
		Metrics: &models.MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	f, err := os.Create(configPath)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	return enc.Encode(defaultConfig)
}
