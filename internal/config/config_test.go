package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	cfg := Config{
		HTTP:     HTTPConfig{Port: 8080},
		Database: DatabaseConfig{Addrs: []string{"localhost:6379"}},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"invalid port", func(c *Config) { c.HTTP.Port = 0 }, "http.port"},
		{"missing redis addrs", func(c *Config) { c.Database.Addrs = nil }, "database.addrs"},
		{"memory driver needs no addrs", func(c *Config) {
			c.Database.Driver = "memory"
			c.Database.Addrs = nil
		}, ""},
		{"unknown driver", func(c *Config) { c.Database.Driver = "valkey" }, "database.driver"},
		{"unknown side buffer backend", func(c *Config) { c.SideBuffer.Backend = "disk" }, "side_buffer.backend"},
		{"redis side buffer without redis", func(c *Config) {
			c.Database.Driver = "memory"
			c.SideBuffer.Backend = SideBufferRedis
		}, "requires database.driver"},
		{"lifetime above two hours", func(c *Config) { c.SideBuffer.MaxLifetimeSec = 7201 }, "max_lifetime_sec"},
		{"default page above max", func(c *Config) { c.Search.DefaultPageSize = 2000 }, "default_page_size"},
		{"embedding without dimensions", func(c *Config) {
			c.Embedding.APIKey = "k"
			c.Embedding.Model = "text-embedding-3-small"
		}, "embedding.dimensions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			switch {
			case tt.wantErr == "" && err != nil:
				t.Fatalf("unexpected error: %v", err)
			case tt.wantErr != "" && (err == nil || !strings.Contains(err.Error(), tt.wantErr)):
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 || cfg.HTTP.WriteTimeoutSec != 30 || cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("http defaults = %+v", cfg.HTTP)
	}
	if cfg.Database.Driver != "redis" || cfg.Database.ReadinessTimeout != 10 {
		t.Errorf("database defaults = %+v", cfg.Database)
	}
	if cfg.Storage.KeyPrefix != "fedsearch:" {
		t.Errorf("expected KeyPrefix='fedsearch:', got %q", cfg.Storage.KeyPrefix)
	}
	if cfg.Search.DefaultPageSize != 50 || cfg.Search.MaxPageSize != 1000 || cfg.Search.FetchSize != 200 {
		t.Errorf("search defaults = %+v", cfg.Search)
	}
	if cfg.SideBuffer.Backend != SideBufferMemory || cfg.SideBuffer.MaxLifetimeSec != 7200 {
		t.Errorf("side buffer defaults = %+v", cfg.SideBuffer)
	}
	if cfg.Embedding.Enabled() {
		t.Error("embedding must be disabled without an api key")
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:       HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Database:   DatabaseConfig{Driver: "memory", ReadinessTimeout: 15},
		Search:     SearchConfig{DefaultPageSize: 25, MaxPageSize: 500},
		SideBuffer: SideBufferConfig{Backend: SideBufferRedis, MaxLifetimeSec: 600},
		Storage:    StorageConfig{KeyPrefix: "custom:"},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 || cfg.HTTP.WriteTimeoutSec != 60 {
		t.Errorf("http = %+v", cfg.HTTP)
	}
	if cfg.Database.Driver != "memory" || cfg.Search.DefaultPageSize != 25 || cfg.SideBuffer.MaxLifetimeSec != 600 {
		t.Errorf("overrides lost: %+v", cfg)
	}
	if cfg.Storage.KeyPrefix != "custom:" {
		t.Errorf("expected KeyPrefix='custom:', got %q", cfg.Storage.KeyPrefix)
	}
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("FEDSEARCH_REDIS", "redis.internal:6380")
	cfg, err := Parse([]byte(`
http:
  port: ${FEDSEARCH_PORT:-9090}
database:
  addrs: ["${FEDSEARCH_REDIS}"]
search:
  field_defaults:
    status:
      value: open
      locked: true
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("port = %d", cfg.HTTP.Port)
	}
	if cfg.Database.Addrs[0] != "redis.internal:6380" {
		t.Errorf("addrs = %v", cfg.Database.Addrs)
	}
	if d := cfg.Search.FieldDefaults["status"]; d.Value != "open" || !d.Locked {
		t.Errorf("field default = %+v", d)
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse([]byte("http: [")); err == nil {
		t.Error("expected parse error")
	}
	if _, err := Parse([]byte("http:\n  port: 8080\n")); err == nil {
		t.Error("expected validation error for missing addrs")
	}
}
