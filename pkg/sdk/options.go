package fedsearch

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	driver   string // "memory" or "redis"
	addrs    []string
	password string
	prefix   string

	catalogPath string
	catalogYAML []byte
	seedYAML    []byte

	embedder   Embedder
	dimensions int

	defaultPageSize int
	maxPageSize     int
	maxHits         int
	maxLifetimeSec  int
	sweepInterval   time.Duration
	compress        bool

	logger     *slog.Logger
	metricsReg prometheus.Registerer
}

// WithRedis stores records, preferences and put-aside result sets in Redis.
func WithRedis(addr, password string) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "redis"
		c.addrs = []string{addr}
		c.password = password
	})
}

// WithMemory keeps everything in process (default). seed is an optional YAML
// document of records, see the memory repository seed format.
func WithMemory(seed []byte) Option {
	return optionFunc(func(c *clientConfig) {
		c.driver = "memory"
		c.seedYAML = seed
	})
}

// WithKeyPrefix namespaces every Redis key. Default: "fedsearch:".
func WithKeyPrefix(prefix string) Option {
	return optionFunc(func(c *clientConfig) {
		c.prefix = prefix
	})
}

// WithCatalogFile loads the resource catalog from a YAML file.
func WithCatalogFile(path string) Option {
	return optionFunc(func(c *clientConfig) {
		c.catalogPath = path
	})
}

// WithCatalogYAML parses the resource catalog from raw YAML.
func WithCatalogYAML(data []byte) Option {
	return optionFunc(func(c *clientConfig) {
		c.catalogYAML = data
	})
}

// WithEmbedder sets the query embedder and its vector dimension.
// Only used with Redis; semantic ranking needs the vector index.
func WithEmbedder(e Embedder, dimensions int) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
		c.dimensions = dimensions
	})
}

// WithPageSize sets the default and maximum page sizes.
// Defaults: 50 and 1000.
func WithPageSize(defaultSize, maxSize int) Option {
	return optionFunc(func(c *clientConfig) {
		c.defaultPageSize = defaultSize
		c.maxPageSize = maxSize
	})
}

// WithMaxHits caps loaded rows per result set. 0 disables the cap (default).
func WithMaxHits(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxHits = n
	})
}

// WithSideBuffer sets the longest lifetime a put-aside result set may request
// and how often expired entries are swept. Compression applies to Redis only.
func WithSideBuffer(maxLifetime, sweepInterval time.Duration, compress bool) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxLifetimeSec = int(maxLifetime / time.Second)
		c.sweepInterval = sweepInterval
		c.compress = compress
	})
}

// WithLogger enables structured logging for SDK operations.
// Pass nil to disable (default). Uses standard library slog.
func WithLogger(l *slog.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}

// WithPrometheus registers SDK metrics (operation counts and durations)
// on the given registerer. Pass nil to disable (default).
func WithPrometheus(reg prometheus.Registerer) Option {
	return optionFunc(func(c *clientConfig) {
		c.metricsReg = reg
	})
}
