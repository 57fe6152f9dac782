package models

import "time"

const (
	CACHE_KEY_ORIGIN = "origin"
	CACHE_KEY_PATH   = "path"
	CACHE_KEY_QUERY  = "query"
)

const (
	CACHE_BACKEND_MEMORY = "memory"
	CACHE_BACKEND_DISK   = "disk"
	CACHE_BACKEND_REDIS  = "redis"
)

type LogConfig struct {
	ToFile       bool   `yaml:"toFile"`
	FilePath     string `yaml:"filePath"`
	ToStdout     bool   `yaml:"toStdout"`
	Prefix       string `yaml:"prefix"`
	DebugEnabled bool   `yaml:"debugEnabled"`
}

type ServerConfig struct {
	Port uint16 `yaml:"port"`
}

type UpstreamConfig struct {
	Target  string        `yaml:"target"`
	Timeout time.Duration `yaml:"timeout"`
}

type StorageConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address      string `yaml:"address"`
	Password     string `yaml:"password"`
	DB           *int   `yaml:"db"`
	KeyNamespace string `yaml:"keyNamespace"`
	FailOpen     *bool  `yaml:"failOpen"`
}

type CacheKeyConfig struct {
	Type []string `yaml:"type"`
}

type CacheConfig struct {
	Origin          string          `yaml:"origin"`
	NamePrefix      string          `yaml:"namePrefix"`
	Version         string          `yaml:"version"`
	Backend         string          `yaml:"backend"`
	Capacity        uint64          `yaml:"capacity"`
	MaxContentSize  uint64          `yaml:"maxContentSize"`
	Compress        bool            `yaml:"compress"`
	SkipWaiting     *bool           `yaml:"skipWaiting"`
	Seed            []string        `yaml:"seed"`
	MediaExtensions []string        `yaml:"mediaExtensions"`
	ShellExtensions []string        `yaml:"shellExtensions"`
	Bypass          []string        `yaml:"bypass"`
	KeyConfig       *CacheKeyConfig `yaml:"keyConfig"`
	Redis           *RedisConfig    `yaml:"redis"`
}

type PreloadConfig struct {
	Enabled bool          `yaml:"enabled"`
	Range   int           `yaml:"range"`
	BaseURL string        `yaml:"baseUrl"`
	Timeout time.Duration `yaml:"timeout"`
}

type CatalogItem struct {
	Title              string `yaml:"title" json:"title"`
	Thumbnail          string `yaml:"thumbnail" json:"thumbnail"`
	VideoURL           string `yaml:"videoUrl" json:"videoUrl,omitempty"`
	BackgroundVideoURL string `yaml:"backgroundVideoUrl" json:"backgroundVideoUrl,omitempty"`
}

type CarouselConfig struct {
	AutoPlay      bool          `yaml:"autoPlay"`
	AutoPlayDelay time.Duration `yaml:"autoPlayDelay"`
}

type RateLimitConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Requests   int64         `yaml:"requests"`
	Window     time.Duration `yaml:"window"`
	Storage    string        `yaml:"storage"`
	KeyBy      []string      `yaml:"keyBy"`
	StatusCode int           `yaml:"statusCode"`
	Message    string        `yaml:"message"`
	Redis      *RedisConfig  `yaml:"redis"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type ReelcacheConfig struct {
	Log       *LogConfig       `yaml:"log"`
	Server    *ServerConfig    `yaml:"server"`
	Upstream  *UpstreamConfig  `yaml:"upstream"`
	Storage   *StorageConfig   `yaml:"storage"`
	Cache     *CacheConfig     `yaml:"cache"`
	Preload   *PreloadConfig   `yaml:"preload"`
	Carousel  *CarouselConfig  `yaml:"carousel"`
	Catalog   []CatalogItem    `yaml:"catalog"`
	RateLimit *RateLimitConfig `yaml:"rateLimit"`
	Metrics   *MetricsConfig   `yaml:"metrics"`
}
