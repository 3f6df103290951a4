package rerun

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Executor names accepted by Config.Executor.
const (
	ExecutorAuto   = "auto"
	ExecutorSpawn  = "spawn"
	ExecutorInline = "inline"
)

const (
	defaultMaxRetryAttempts = 3
	maxRetryAttemptsCap     = 5
)

// Config defines the configuration for the connection.
type Config struct {
	// Endpoint is the host:port of the search service.
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	// Token is the bearer credential attached to every request. Optional.
	Token string `json:"token" yaml:"token"`
	// TLS enables transport security.
	TLS bool `json:"tls" yaml:"tls"`
	// MaxRetryAttempts is the number of attempts for opening a search stream.
	// Zero selects the default of 3 attempts; 1 disables retries.
	MaxRetryAttempts int `json:"max_retry_attempts" yaml:"max_retry_attempts"`
	// Executor selects how asynchronous work is driven: auto, spawn or inline.
	Executor string `json:"executor" yaml:"executor"`
	// Logging configures the logger built by the CLI.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Env   string `json:"env" yaml:"env"`     // prod, dev or local
	Level string `json:"level" yaml:"level"` // debug, info, warn, error
}

// LoadConfig reads configuration from a YAML file.
//
// Values of the form ${VAR} and ${VAR:-default} are substituted from the environment.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(expandEnvVars(data), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigFromEnv builds a configuration from RERUN_ENDPOINT and RERUN_TOKEN.
//
// It returns nil if RERUN_ENDPOINT is not set.
func ConfigFromEnv() *Config {
	endpoint := os.Getenv("RERUN_ENDPOINT")
	if endpoint == "" {
		return nil
	}
	cfg := &Config{
		Endpoint: endpoint,
		Token:    os.Getenv("RERUN_TOKEN"),
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.MaxRetryAttempts == 0 {
		c.MaxRetryAttempts = defaultMaxRetryAttempts
	}
	if c.Executor == "" {
		c.Executor = ExecutorAuto
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "prod"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c == nil {
		return newError(ErrConfiguration, "config is required")
	}
	if strings.TrimSpace(c.Endpoint) == "" {
		return newError(ErrConfiguration, "endpoint is required")
	}
	if c.MaxRetryAttempts < 0 || c.MaxRetryAttempts > maxRetryAttemptsCap {
		return newError(ErrConfiguration,
			fmt.Sprintf("max_retry_attempts must be between 0 and %d, got %d", maxRetryAttemptsCap, c.MaxRetryAttempts))
	}
	switch c.Executor {
	case "", ExecutorAuto, ExecutorSpawn, ExecutorInline:
	default:
		return newError(ErrConfiguration, fmt.Sprintf("executor must be auto, spawn or inline, got %q", c.Executor))
	}
	return nil
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
