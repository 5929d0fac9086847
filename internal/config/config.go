// ABOUTME: Configuration loading and parsing for widgetd
// ABOUTME: YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete widgetd configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Agent   AgentConfig   `yaml:"agent"`
	Storage StorageConfig `yaml:"storage"`
	Widget  WidgetConfig  `yaml:"widget"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds the HTTP listener address.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// AgentConfig holds the outbound agent endpoint settings.
type AgentConfig struct {
	EndpointURL    string        `yaml:"endpoint_url"`
	AgentID        string        `yaml:"agent_id"`
	RequestTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	RequestTimeoutRaw string `yaml:"request_timeout"`
}

// StorageConfig selects and locates the persistence slot.
type StorageConfig struct {
	// Backend is "sqlite" or "file".
	Backend  string `yaml:"backend"`
	Path     string `yaml:"path"`
	SlotName string `yaml:"slot_name"`
}

// WidgetConfig holds widget behavior settings.
type WidgetConfig struct {
	MaxMessageLength int           `yaml:"max_message_length"`
	DedupeTTL        time.Duration `yaml:"-"`

	DedupeTTLRaw string `yaml:"dedupe_ttl"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded, and
// duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := defaults()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-filled with the values that hold when the
// file leaves them unset.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{HTTPAddr: "localhost:8390"},
		Agent: AgentConfig{
			RequestTimeoutRaw: "30s",
		},
		Storage: StorageConfig{
			Backend:  "sqlite",
			SlotName: "chat_conversations",
		},
		Widget: WidgetConfig{
			MaxMessageLength: 500,
			DedupeTTLRaw:     "30s",
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that required fields are present and consistent. Returns
// an error describing the first failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Agent.EndpointURL == "" {
		return fmt.Errorf("agent.endpoint_url is required")
	}
	if c.Agent.AgentID == "" {
		return fmt.Errorf("agent.agent_id is required")
	}

	switch c.Storage.Backend {
	case "sqlite", "file":
	default:
		return fmt.Errorf("storage.backend must be \"sqlite\" or \"file\", got %q", c.Storage.Backend)
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}

	if c.Widget.MaxMessageLength <= 0 {
		return fmt.Errorf("widget.max_message_length must be positive")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Agent.RequestTimeoutRaw != "" {
		cfg.Agent.RequestTimeout, err = time.ParseDuration(cfg.Agent.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing request_timeout %q: %w", cfg.Agent.RequestTimeoutRaw, err)
		}
	}

	if cfg.Widget.DedupeTTLRaw != "" {
		cfg.Widget.DedupeTTL, err = time.ParseDuration(cfg.Widget.DedupeTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing dedupe_ttl %q: %w", cfg.Widget.DedupeTTLRaw, err)
		}
	}

	return nil
}
