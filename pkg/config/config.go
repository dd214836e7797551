package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultConfigPath is read when no explicit path is given.
const DefaultConfigPath = "config.yaml"

// Config holds all configuration for querykit.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Target database the engine introspects and queries
	Datasource DatasourceConfig `yaml:"datasource"`

	// Connection registry lifetime settings
	Registry RegistryConfig `yaml:"registry"`

	Engine EngineConfig `yaml:"engine"`

	LLM LLMConfig `yaml:"llm"`

	Metrics MetricsConfig `yaml:"metrics"`
}

// DatasourceConfig describes the target database.
type DatasourceConfig struct {
	Type     string `yaml:"type" env:"QK_DB_TYPE" env-default:"postgres"`
	Host     string `yaml:"host" env:"QK_DB_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"QK_DB_PORT" env-default:"0"` // 0 means the adapter default
	User     string `yaml:"user" env:"QK_DB_USER" env-default:""`
	Password string `yaml:"-" env:"QK_DB_PASSWORD"` // Secret - not in YAML
	Database string `yaml:"database" env:"QK_DB_NAME" env-default:""`
	SSL      bool   `yaml:"ssl" env:"QK_DB_SSL" env-default:"false"`
}

// Address returns host:port with the docker host rewrite applied.
func (d *DatasourceConfig) Address() (string, int) {
	return ResolveHostForDocker(d.Host), d.Port
}

// RegistryConfig holds connection registry settings.
type RegistryConfig struct {
	// ConnectionTTLMinutes is how long idle connections are kept alive.
	ConnectionTTLMinutes int `yaml:"connection_ttl_minutes" env:"QK_CONNECTION_TTL_MINUTES" env-default:"5"`
	// PoolMaxConns is the maximum number of connections per datasource pool.
	PoolMaxConns int32 `yaml:"pool_max_conns" env:"QK_POOL_MAX_CONNS" env-default:"10"`
	// PoolMinConns is the minimum number of connections per datasource pool.
	PoolMinConns int32 `yaml:"pool_min_conns" env:"QK_POOL_MIN_CONNS" env-default:"1"`
	// ConnectRetries is the number of extra attempts when opening a connection.
	ConnectRetries int `yaml:"connect_retries" env:"QK_CONNECT_RETRIES" env-default:"0"`
}

// EngineConfig bounds the fallback and normalization passes.
type EngineConfig struct {
	FallbackLimit  int           `yaml:"fallback_limit" env:"QK_FALLBACK_LIMIT" env-default:"5"`
	RelatedLimit   int           `yaml:"related_limit" env:"QK_RELATED_LIMIT" env-default:"5"`
	NormalizeLimit int           `yaml:"normalize_limit" env:"QK_NORMALIZE_LIMIT" env-default:"100"`
	QueryTimeout   time.Duration `yaml:"query_timeout" env:"QK_QUERY_TIMEOUT" env-default:"30s"`
	// FallbackMinConfidence is the weakest relationship ("low", "medium",
	// "high", "explicit") the fallback query joins.
	FallbackMinConfidence string `yaml:"fallback_min_confidence" env:"QK_FALLBACK_MIN_CONFIDENCE" env-default:"medium"`
}

// LLMConfig configures the text service used by the ask command.
type LLMConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint, including Ollama) or "anthropic".
	Provider    string  `yaml:"provider" env:"QK_LLM_PROVIDER" env-default:"openai"`
	Endpoint    string  `yaml:"endpoint" env:"QK_LLM_ENDPOINT" env-default:"http://localhost:11434/v1"`
	Model       string  `yaml:"model" env:"QK_LLM_MODEL" env-default:""`
	APIKey      string  `yaml:"-" env:"QK_LLM_API_KEY"` // Secret - not in YAML
	Temperature float64 `yaml:"temperature" env:"QK_LLM_TEMPERATURE" env-default:"0"`
	MaxRetries  int     `yaml:"max_retries" env:"QK_LLM_MAX_RETRIES" env-default:"2"`
}

// IsAvailable returns true if a model is configured.
func (c *LLMConfig) IsAvailable() bool {
	return c.Model != "" && (c.Endpoint != "" || c.Provider == "anthropic")
}

// MetricsConfig toggles prometheus instrumentation.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"QK_METRICS_ENABLED" env-default:"true"`
}

// Load reads configuration from config.yaml with environment variable overrides.
func Load(version string) (*Config, error) {
	return LoadFrom(DefaultConfigPath, version)
}

// LoadFrom reads configuration from path. A missing file is not an error:
// the config is then built from environment variables and defaults alone.
func LoadFrom(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Engine.FallbackLimit <= 0 {
		return fmt.Errorf("engine.fallback_limit must be positive")
	}
	if c.Engine.RelatedLimit <= 0 {
		return fmt.Errorf("engine.related_limit must be positive")
	}
	if c.Engine.NormalizeLimit <= 0 {
		return fmt.Errorf("engine.normalize_limit must be positive")
	}
	switch strings.ToLower(c.Engine.FallbackMinConfidence) {
	case "low", "medium", "high", "explicit":
	default:
		return fmt.Errorf("engine.fallback_min_confidence must be low, medium, high or explicit, got %q", c.Engine.FallbackMinConfidence)
	}
	if c.Registry.ConnectRetries < 0 {
		return fmt.Errorf("registry.connect_retries must not be negative")
	}
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("llm.provider must be openai or anthropic, got %q", c.LLM.Provider)
	}
	return nil
}
