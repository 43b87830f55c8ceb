package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Pipeline      PipelineConfig       `toml:"pipeline"`
	Proxy         ProxyConfig          `toml:"proxy"`
	Resolvers     []ResolverConfig     `toml:"resolvers"`
	HTTPResolvers []HTTPResolverConfig `toml:"http_resolvers"`
	Collection    CollectionConfig     `toml:"collection"`
	Database      DatabaseConfig       `toml:"database"`
	Server        ServerConfig         `toml:"server"`
	Log           LogConfig            `toml:"log"`
}

// PipelineConfig contains resolution pipeline settings.
type PipelineConfig struct {
	DefaultTimeoutMS int `toml:"default_timeout_ms"` // used when a resolver does not announce a timeout
	MaxRestarts      int `toml:"max_restarts"`
	ReadyTimeoutMS   int `toml:"ready_timeout_ms"` // how long CLI commands wait for resolvers to announce themselves
}

// ProxyConfig is delivered to external resolvers in the config message.
type ProxyConfig struct {
	Type         string   `toml:"type"` // "none" or "socks5"
	Host         string   `toml:"host"`
	Port         int      `toml:"port"`
	User         string   `toml:"user"`
	Password     string   `toml:"password"`
	NoProxyHosts []string `toml:"no_proxy_hosts"`
}

// ResolverConfig describes one external-process resolver.
type ResolverConfig struct {
	Path       string `toml:"path"`
	Enabled    bool   `toml:"enabled"`
	Preference uint   `toml:"preference"`
}

// HTTPResolverConfig describes a resolver backed by a JSON search endpoint.
type HTTPResolverConfig struct {
	Name       string  `toml:"name"`
	BaseURL    string  `toml:"base_url"`
	Weight     uint    `toml:"weight"`
	Preference uint    `toml:"preference"`
	TimeoutMS  int     `toml:"timeout_ms"`
	RateLimit  float64 `toml:"rate_limit"` // requests per second
	// HeadersFile holds a cURL command whose headers and cookie are sent with every search.
	HeadersFile string `toml:"headers_file"`
	Enabled     bool   `toml:"enabled"`
}

// CollectionConfig toggles the local collection resolver.
type CollectionConfig struct {
	Enabled bool `toml:"enabled"`
	Weight  uint `toml:"weight"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// DefaultTimeout returns the pipeline default resolver timeout, falling back to five seconds.
func (c PipelineConfig) DefaultTimeout() time.Duration {
	if c.DefaultTimeoutMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.DefaultTimeoutMS) * time.Millisecond
}

// ReadyTimeout returns how long to wait for external resolvers to become ready.
func (c PipelineConfig) ReadyTimeout() time.Duration {
	if c.ReadyTimeoutMS <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.ReadyTimeoutMS) * time.Millisecond
}

// Timeout returns the configured request timeout for an HTTP resolver.
func (c HTTPResolverConfig) Timeout() time.Duration {
	if c.TimeoutMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// Addr returns the host:port the HTTP API listens on.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	for i, r := range c.Resolvers {
		if r.Enabled && r.Path == "" {
			return fmt.Errorf("%w: resolvers[%d] has no path", ErrInvalidConfig, i)
		}
	}
	for i, r := range c.HTTPResolvers {
		if r.Enabled && r.BaseURL == "" {
			return fmt.Errorf("%w: http_resolvers[%d] has no base_url", ErrInvalidConfig, i)
		}
	}
	switch c.Proxy.Type {
	case "", "none", "socks5":
	default:
		return fmt.Errorf("%w: unsupported proxy type %q", ErrInvalidConfig, c.Proxy.Type)
	}
	if c.Pipeline.MaxRestarts < 0 {
		return fmt.Errorf("%w: max_restarts must not be negative", ErrInvalidConfig)
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
