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

// Config holds the relayseek service configuration.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Cache   CacheConfig   `yaml:"cache"`
	Relays  RelaysConfig  `yaml:"relays"`
	Search  SearchConfig  `yaml:"search"`
	Resolve ResolveConfig `yaml:"resolve"`
	Logging LoggingConfig `yaml:"logging"`
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

// CacheConfig holds the persistent cache connection settings. An empty
// address list degrades the engine to in-memory caching.
type CacheConfig struct {
	Driver           string   `yaml:"driver"` // redis, memory (default: memory)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// RelaysConfig holds the purpose-tagged relay groups.
type RelaysConfig struct {
	Default  []string `yaml:"default"`
	Search   []string `yaml:"search"`
	Profiles []string `yaml:"profiles"`
	Premium  []string `yaml:"premium"`
	DVM      []string `yaml:"dvm"`
}

// SearchConfig holds search execution settings.
type SearchConfig struct {
	TimeoutSec       int   `yaml:"timeout_sec"`
	DefaultLimit     int   `yaml:"default_limit"`
	MaxLimit         int   `yaml:"max_limit"`
	SnapshotEveryMs  int   `yaml:"snapshot_every_ms"`
	DefaultKinds     []int `yaml:"default_kinds"`
	ProfileCacheSize int   `yaml:"profile_cache_size"`
}

// ResolveConfig holds identity resolution settings.
type ResolveConfig struct {
	PositiveTTLSec        int  `yaml:"positive_ttl_sec"`
	NegativeTTLSec        int  `yaml:"negative_ttl_sec"`
	VerifyTTLSec          int  `yaml:"verify_ttl_sec"`
	RequireLoginForOracle bool `yaml:"require_login_for_oracle"`
	OracleDisabled        bool `yaml:"oracle_disabled"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
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
		// Streaming responses hold the connection far longer than a plain
		// request-response exchange.
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Cache.Driver == "" {
		if len(c.Cache.Addrs) > 0 {
			c.Cache.Driver = "redis"
		} else {
			c.Cache.Driver = "memory"
		}
	}
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
	if c.Search.TimeoutSec <= 0 {
		c.Search.TimeoutSec = 30
	}
	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = 50
	}
	if c.Search.MaxLimit <= 0 {
		c.Search.MaxLimit = 500
	}
	if c.Search.SnapshotEveryMs <= 0 {
		c.Search.SnapshotEveryMs = 250
	}
	if len(c.Search.DefaultKinds) == 0 {
		c.Search.DefaultKinds = []int{1}
	}
	if c.Search.ProfileCacheSize <= 0 {
		c.Search.ProfileCacheSize = 4096
	}
	if c.Resolve.PositiveTTLSec <= 0 {
		c.Resolve.PositiveTTLSec = 6 * 60 * 60
	}
	if c.Resolve.NegativeTTLSec <= 0 {
		c.Resolve.NegativeTTLSec = 90
	}
	if c.Resolve.VerifyTTLSec <= 0 {
		c.Resolve.VerifyTTLSec = 24 * 60 * 60
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Cache.Driver {
	case "redis", "memory":
		// ok
	default:
		return fmt.Errorf("cache.driver must be \"redis\" or \"memory\", got %q", c.Cache.Driver)
	}
	if c.Cache.Driver == "redis" && len(c.Cache.Addrs) == 0 {
		return fmt.Errorf("cache.addrs is required for the redis driver")
	}
	if len(c.Relays.Default) == 0 {
		return fmt.Errorf("relays.default is required")
	}
	if c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf(
			"search.default_limit %d exceeds search.max_limit %d",
			c.Search.DefaultLimit, c.Search.MaxLimit,
		)
	}
	return nil
}

// RelaySets converts the relay groups into the purpose map the provider
// consumes.
func (c *Config) RelaySets() map[string][]string {
	return map[string][]string{
		"default":  c.Relays.Default,
		"search":   c.Relays.Search,
		"profiles": c.Relays.Profiles,
		"premium":  c.Relays.Premium,
		"dvm":      c.Relays.DVM,
	}
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
