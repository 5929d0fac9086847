// ABOUTME: Tests for configuration loading and validation
// ABOUTME: Covers defaults, env expansion, duration parsing, and validation errors

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Complete(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "0.0.0.0:9000"
agent:
  endpoint_url: "https://agents.example.com/api/ask"
  agent_id: "support-agent"
  request_timeout: "45s"
storage:
  backend: "sqlite"
  path: "/tmp/widget.db"
  slot_name: "chat_conversations"
widget:
  max_message_length: 280
  dedupe_ttl: "1m"
logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Server.HTTPAddr)
	assert.Equal(t, "https://agents.example.com/api/ask", cfg.Agent.EndpointURL)
	assert.Equal(t, "support-agent", cfg.Agent.AgentID)
	assert.Equal(t, 45*time.Second, cfg.Agent.RequestTimeout)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "/tmp/widget.db", cfg.Storage.Path)
	assert.Equal(t, 280, cfg.Widget.MaxMessageLength)
	assert.Equal(t, time.Minute, cfg.Widget.DedupeTTL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
agent:
  endpoint_url: "https://agents.example.com/api/ask"
  agent_id: "support-agent"
storage:
  path: "/tmp/widget.db"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "localhost:8390", cfg.Server.HTTPAddr)
	assert.Equal(t, 30*time.Second, cfg.Agent.RequestTimeout)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "chat_conversations", cfg.Storage.SlotName)
	assert.Equal(t, 500, cfg.Widget.MaxMessageLength)
	assert.Equal(t, 30*time.Second, cfg.Widget.DedupeTTL)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("WIDGET_AGENT_ID", "agent-from-env")
	path := writeConfig(t, `
agent:
  endpoint_url: "https://agents.example.com/api/ask"
  agent_id: "${WIDGET_AGENT_ID}"
storage:
  path: "/tmp/widget.db"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "agent-from-env", cfg.Agent.AgentID)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "reading config file")
}

func TestLoad_BadDuration(t *testing.T) {
	path := writeConfig(t, `
agent:
  endpoint_url: "https://agents.example.com/api/ask"
  agent_id: "support-agent"
  request_timeout: "soon"
storage:
  path: "/tmp/widget.db"
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "request_timeout")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := defaults()
		cfg.Agent.EndpointURL = "https://agents.example.com/api/ask"
		cfg.Agent.AgentID = "support-agent"
		cfg.Storage.Path = "/tmp/widget.db"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing http addr", func(c *Config) { c.Server.HTTPAddr = "" }, "http_addr"},
		{"missing endpoint", func(c *Config) { c.Agent.EndpointURL = "" }, "endpoint_url"},
		{"missing agent id", func(c *Config) { c.Agent.AgentID = "" }, "agent_id"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "redis" }, "storage.backend"},
		{"missing path", func(c *Config) { c.Storage.Path = "" }, "storage.path"},
		{"zero max length", func(c *Config) { c.Widget.MaxMessageLength = 0 }, "max_message_length"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}
