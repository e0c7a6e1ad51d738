// Package config provides configuration management for the proxy: the YAML
// configuration model, loading with defaults and validation, and hot reload
// through a file watcher.
package config

import (
	"fmt"
	"time"
)

// Config holds all configuration settings for the proxy.
type Config struct {
	Proxy     ProxyConfig     `yaml:"proxy"`
	Control   ControlConfig   `yaml:"control"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Tapes     TapesConfig     `yaml:"tapes"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
}

// ProxyConfig configures the client-facing proxy listener.
type ProxyConfig struct {
	Port         int      `yaml:"port"`
	Address      string   `yaml:"address"`
	ReadTimeout  Duration `yaml:"readTimeout"`
	WriteTimeout Duration `yaml:"writeTimeout"`
	IdleTimeout  Duration `yaml:"idleTimeout"`
}

// ControlConfig configures the control API listener.
type ControlConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
}

// UpstreamConfig configures the shared outbound connection pool and the
// optional circuit breaker around origin calls.
type UpstreamConfig struct {
	MaxIdleConns          int      `yaml:"maxIdleConns"`
	MaxIdleConnsPerHost   int      `yaml:"maxIdleConnsPerHost"`
	MaxConnsPerHost       int      `yaml:"maxConnsPerHost"`
	IdleConnTimeout       Duration `yaml:"idleConnTimeout"`
	ResponseHeaderTimeout Duration `yaml:"responseHeaderTimeout"`
	DialTimeout           Duration `yaml:"dialTimeout"`

	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// CircuitBreakerConfig configures the upstream circuit breaker.
type CircuitBreakerConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Threshold int      `yaml:"threshold"`
	Timeout   Duration `yaml:"timeout"`
}

// TapesConfig configures tape storage and the startup tape.
type TapesConfig struct {
	// Store selects the tape store backend: memory, file, or redis.
	Store string `yaml:"store"`

	// Dir is the tape directory for the file store.
	Dir string `yaml:"dir"`

	// Redis configures the redis store.
	Redis RedisConfig `yaml:"redis"`

	// Default names a tape to insert at startup; empty leaves the deck
	// empty.
	Default string `yaml:"default"`

	// ReadOnly inserts the default tape in replay-only mode.
	ReadOnly bool `yaml:"readOnly"`
}

// RedisConfig configures the Redis tape store.
type RedisConfig struct {
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"keyPrefix"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlpEndpoint"`
	SampleRate   float64 `yaml:"sampleRate"`
	ServiceName  string  `yaml:"serviceName"`
}

// RateLimitConfig configures inbound rate limiting on the proxy listener.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerSecond int  `yaml:"requestsPerSecond"`
	Burst             int  `yaml:"burst"`
	PerClient         bool `yaml:"perClient"`
}

// Tape store backends.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Proxy: ProxyConfig{
			Port:         5555,
			ReadTimeout:  Duration(30 * time.Second),
			WriteTimeout: Duration(30 * time.Second),
			IdleTimeout:  Duration(120 * time.Second),
		},
		Control: ControlConfig{
			Enabled: true,
			Port:    5556,
		},
		Upstream: UpstreamConfig{
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			MaxConnsPerHost:       100,
			IdleConnTimeout:       Duration(90 * time.Second),
			ResponseHeaderTimeout: Duration(30 * time.Second),
			DialTimeout:           Duration(30 * time.Second),
		},
		Tapes: TapesConfig{
			Store: StoreFile,
			Dir:   "tapes",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			SampleRate:  1.0,
			ServiceName: "tapedeck",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
		},
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Proxy.Port <= 0 || c.Proxy.Port > 65535 {
		return fmt.Errorf("proxy: invalid port %d", c.Proxy.Port)
	}
	if c.Control.Enabled {
		if c.Control.Port <= 0 || c.Control.Port > 65535 {
			return fmt.Errorf("control: invalid port %d", c.Control.Port)
		}
		if c.Control.Port == c.Proxy.Port {
			return fmt.Errorf("control: port %d collides with proxy port", c.Control.Port)
		}
	}

	switch c.Tapes.Store {
	case StoreMemory:
	case StoreFile:
		if c.Tapes.Dir == "" {
			return fmt.Errorf("tapes: file store requires a directory")
		}
	case StoreRedis:
		if c.Tapes.Redis.Address == "" {
			return fmt.Errorf("tapes: redis store requires an address")
		}
	default:
		return fmt.Errorf("tapes: unknown store %q", c.Tapes.Store)
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
			return fmt.Errorf("metrics: invalid port %d", c.Metrics.Port)
		}
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("rateLimit: requestsPerSecond must be positive")
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing: sampleRate must be within [0,1]")
	}

	return nil
}
