package cachemanager

import (
	"fmt"
	"path/filepath"
	"reelcache/pkg/cache"
	"reelcache/pkg/models"
	"strings"

	"github.com/valyala/fasthttp"
)

var (
	DefaultMediaExtensions = []string{"webm", "webp", "jpg", "jpeg", "png", "gif", "mp4"}
	DefaultShellExtensions = []string{"html", "js", "css", "json"}
	DefaultKeyTypes        = []string{models.CACHE_KEY_ORIGIN, models.CACHE_KEY_PATH, models.CACHE_KEY_QUERY}
)

// PartitionNames are the two partition names of one cache version.
type PartitionNames struct {
	Shell string
	Media string
}

func NewPartitionNames(prefix, version string) PartitionNames {
	return PartitionNames{
		Shell: fmt.Sprintf("%s-shell-%s", prefix, version),
		Media: fmt.Sprintf("%s-media-%s", prefix, version),
	}
}

// Current reports whether name is one of the partitions of this version.
func (n PartitionNames) Current(name string) bool {
	return name == n.Shell || name == n.Media
}

// Resolve fills zero fields of config with the defaults.
func Resolve(config *models.CacheConfig) *models.CacheConfig {
	if config == nil {
		config = &models.CacheConfig{}
	}
	if config.NamePrefix == "" {
		config.NamePrefix = "reelcache"
	}
	if config.Version == "" {
		config.Version = "v1"
	}
	if config.Backend == "" {
		config.Backend = models.CACHE_BACKEND_DISK
	}
	if config.SkipWaiting == nil {
		skip := true
		config.SkipWaiting = &skip
	}
	if config.Seed == nil {
		config.Seed = []string{"/", "/favicon.svg"}
	}
	if len(config.MediaExtensions) == 0 {
		config.MediaExtensions = DefaultMediaExtensions
	}
	if len(config.ShellExtensions) == 0 {
		config.ShellExtensions = DefaultShellExtensions
	}
	if config.KeyConfig == nil {
		config.KeyConfig = &models.CacheKeyConfig{}
	}
	if len(config.KeyConfig.Type) == 0 {
		config.KeyConfig.Type = DefaultKeyTypes
	}
	return config
}

// NewStore builds the partition backend named by config.Backend.
func NewStore(config *models.CacheConfig, storagePath string) (cache.Store, error) {
	switch strings.ToLower(config.Backend) {
	case models.CACHE_BACKEND_MEMORY:
		return cache.NewMemoryStore(config.Capacity), nil
	case models.CACHE_BACKEND_DISK:
		if storagePath == "" {
			return nil, fmt.Errorf("storage path required for disk cache backend")
		}
		return cache.NewDiskStore(filepath.Join(storagePath, "partitions"), config.Compress)
	case models.CACHE_BACKEND_REDIS:
		if config.Redis == nil {
			return nil, fmt.Errorf("redis configuration required for redis cache backend")
		}
		return cache.NewRedisStore(config.Redis, config.Compress), nil
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", config.Backend)
	}
}

// GetKey builds the partition key of req. Parts are always joined in
// origin, path, query order so the key reads as a URL.
func GetKey(keyConfig *models.CacheKeyConfig, req *fasthttp.Request) string {
	var origin, path, query bool
	for _, keyType := range keyConfig.Type {
		switch strings.ToLower(keyType) {
		case models.CACHE_KEY_ORIGIN:
			origin = true
		case models.CACHE_KEY_PATH:
			path = true
		case models.CACHE_KEY_QUERY:
			query = true
		}
	}

	uri := req.URI()
	var b strings.Builder
	if origin {
		b.Write(uri.Scheme())
		b.WriteString("://")
		b.Write(uri.Host())
	}
	if path {
		b.Write(uri.Path())
	}
	if query {
		if qs := uri.QueryString(); len(qs) > 0 {
			b.WriteByte('?')
			b.Write(qs)
		}
	}
	return b.String()
}
