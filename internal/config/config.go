package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Side buffer backends.
const (
	SideBufferMemory = "memory"
	SideBufferRedis  = "redis"
)

// Config holds the fedsearch configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Search     SearchConfig     `yaml:"search"`
	SideBuffer SideBufferConfig `yaml:"side_buffer"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds Redis connection settings. Driver "memory" runs without Redis.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // redis, memory (default: redis)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	SeedPath         string   `yaml:"seed_path"` // fixture records loaded at startup
}

// StorageConfig holds key namespacing settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// EmbeddingConfig holds the query embedder used by federated-store resources.
// An empty api_key disables semantic ranking.
type EmbeddingConfig struct {
	Provider         string `yaml:"provider"`
	APIKey           string `yaml:"api_key"`
	BaseURL          string `yaml:"base_url"`
	Model            string `yaml:"model"`
	Dimensions       int    `yaml:"dimensions"`
	QueryInstruction string `yaml:"query_instruction"`
	MaxInputRunes    int    `yaml:"max_input_runes"`
	CacheTTLSec      int    `yaml:"cache_ttl_sec"`
	MaxK             int    `yaml:"max_k"`
}

// Enabled reports whether an embedding provider is configured.
func (e EmbeddingConfig) Enabled() bool {
	return e.APIKey != "" && e.Model != ""
}

// FieldDefault is a configured presentation default for one field.
type FieldDefault struct {
	Value  string `yaml:"value"`
	Locked bool   `yaml:"locked"`
}

// SearchConfig holds engine limits.
type SearchConfig struct {
	DefaultPageSize int                     `yaml:"default_page_size"`
	MaxPageSize     int                     `yaml:"max_page_size"`
	FetchSize       int                     `yaml:"fetch_size"`
	MaxHits         int                     `yaml:"max_hits"`          // 0 = unlimited
	MaxColumnLength int                     `yaml:"max_column_length"` // 0 = unlimited
	MaxResources    int                     `yaml:"max_resources"`     // 0 = unlimited
	MaxCursorKeys   int                     `yaml:"max_cursor_keys"`
	FieldDefaults   map[string]FieldDefault `yaml:"field_defaults"`
}

// SideBufferConfig holds put-aside settings.
type SideBufferConfig struct {
	Backend          string `yaml:"backend"` // memory, redis (default: memory)
	MaxLifetimeSec   int    `yaml:"max_lifetime_sec"`
	SweepIntervalSec int    `yaml:"sweep_interval_sec"`
	Compress         bool   `yaml:"compress"`
}

// CatalogConfig locates the resource catalog.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates raw YAML. ${VAR} references are expanded first.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "redis"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "fedsearch:"
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.CacheTTLSec <= 0 {
		c.Embedding.CacheTTLSec = 86400
	}
	if c.Embedding.MaxK <= 0 {
		c.Embedding.MaxK = 1000
	}
	if c.Search.DefaultPageSize <= 0 {
		c.Search.DefaultPageSize = 50
	}
	if c.Search.MaxPageSize <= 0 {
		c.Search.MaxPageSize = 1000
	}
	if c.Search.FetchSize <= 0 {
		c.Search.FetchSize = 200
	}
	if c.Search.MaxCursorKeys <= 0 {
		c.Search.MaxCursorKeys = 10000
	}
	if c.SideBuffer.Backend == "" {
		c.SideBuffer.Backend = SideBufferMemory
	}
	if c.SideBuffer.MaxLifetimeSec <= 0 {
		c.SideBuffer.MaxLifetimeSec = 7200
	}
	if c.SideBuffer.SweepIntervalSec <= 0 {
		c.SideBuffer.SweepIntervalSec = 60
	}
	if c.Catalog.Path == "" {
		c.Catalog.Path = filepath.Join("config", "catalog.yaml")
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case "redis":
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required")
		}
	case "memory":
	default:
		return fmt.Errorf("database.driver must be \"redis\" or \"memory\", got %q", c.Database.Driver)
	}
	switch c.SideBuffer.Backend {
	case SideBufferMemory:
	case SideBufferRedis:
		if c.Database.Driver != "redis" {
			return fmt.Errorf("side_buffer.backend \"redis\" requires database.driver \"redis\"")
		}
	default:
		return fmt.Errorf("side_buffer.backend must be %q or %q, got %q",
			SideBufferMemory, SideBufferRedis, c.SideBuffer.Backend)
	}
	if c.SideBuffer.MaxLifetimeSec > 7200 {
		return fmt.Errorf("side_buffer.max_lifetime_sec must not exceed 7200, got %d", c.SideBuffer.MaxLifetimeSec)
	}
	if c.Search.DefaultPageSize > c.Search.MaxPageSize {
		return fmt.Errorf("search.default_page_size %d exceeds search.max_page_size %d",
			c.Search.DefaultPageSize, c.Search.MaxPageSize)
	}
	if c.Embedding.Enabled() && c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions is required when an embedding provider is configured")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
