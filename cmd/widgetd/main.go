// ABOUTME: Entry point for widgetd, the support widget session server
// ABOUTME: Wires config, persistence, the agent client, and the HTTP API

package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"

	"github.com/halcyonware/support-widget/internal/agent"
	"github.com/halcyonware/support-widget/internal/api"
	"github.com/halcyonware/support-widget/internal/config"
	"github.com/halcyonware/support-widget/internal/dedupe"
	"github.com/halcyonware/support-widget/internal/persist"
	"github.com/halcyonware/support-widget/internal/session"
	"github.com/halcyonware/support-widget/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
          _     _            _      _
__      _(_) __| | __ _  ___| |_ __| |
\ \ /\ / / |/ _' |/ _' |/ _ \ __/ _' |
 \ V  V /| | (_| | (_| |  __/ || (_| |
  \_/\_/ |_|\__,_|\__, |\___|\__\__,_|
                  |___/
`

// getConfigPath returns the path to the widgetd config file.
// Priority: WIDGETD_CONFIG env var > XDG_CONFIG_HOME/widgetd/config.yaml > ~/.config/widgetd/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("WIDGETD_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "widgetd", "config.yaml")
}

// getDataPath returns the path to the widgetd data directory.
// Priority: XDG_DATA_HOME/widgetd > ~/.local/share/widgetd
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "widgetd")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: widgetd <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve   Start the widget session server")
		fmt.Println("  init    Create a new config file interactively")
		fmt.Println("  health  Check server health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)

	// Startup info
	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Config:  %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:    %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Agent:   %s\n", cfg.Agent.EndpointURL)
	green.Print("    ▶ ")
	fmt.Printf("Storage: %s (%s)\n", cfg.Storage.Path, cfg.Storage.Backend)
	fmt.Println()

	logger.Info("starting widgetd",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"agent_endpoint", cfg.Agent.EndpointURL,
	)

	// Open the persistence slot
	slot, err := openSlot(cfg.Storage)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer slot.Close()

	repo := persist.NewRepository(slot, logger)
	caller := agent.NewClient(cfg.Agent.EndpointURL, cfg.Agent.AgentID, cfg.Agent.RequestTimeout, logger)

	actionCache := dedupe.New(cfg.Widget.DedupeTTL, 1000)
	defer actionCache.Close()

	controller := session.New(
		store.NewMemoryStore(),
		repo,
		caller,
		logger,
		session.WithMaxMessageLength(cfg.Widget.MaxMessageLength),
		session.WithActionCache(actionCache),
	)
	if err := controller.Init(ctx); err != nil {
		return fmt.Errorf("restoring conversations: %w", err)
	}

	server := api.NewServer(cfg.Server.HTTPAddr, controller, logger)
	return server.Run(ctx)
}

// openSlot creates the persistence slot selected by the storage config.
func openSlot(cfg config.StorageConfig) (persist.Slot, error) {
	name := cfg.SlotName
	if name == "" {
		name = persist.DefaultSlotName
	}

	switch cfg.Backend {
	case "file":
		return persist.NewFileSlot(cfg.Path), nil
	default:
		return persist.NewSQLiteSlot(cfg.Path, name)
	}
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Make HTTP request to health endpoint with context
	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("widgetd configuration setup")
	fmt.Println("===========================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "widget.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Server configuration
	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8390")

	// Agent endpoint
	fmt.Println("\n--- Agent Configuration ---")
	endpointURL := prompt(reader, "Agent endpoint URL", "")
	agentID := prompt(reader, "Agent ID", "")
	requestTimeout := prompt(reader, "Request timeout", "30s")

	// Storage
	fmt.Println("\n--- Storage Configuration ---")
	backend := prompt(reader, "Storage backend (sqlite/file)", "sqlite")
	storagePath := prompt(reader, "Storage path", defaultDbPath)

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# widgetd configuration\n")
	cfg.WriteString("# Generated by widgetd init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("agent:\n")
	cfg.WriteString(fmt.Sprintf("  endpoint_url: \"%s\"\n", endpointURL))
	cfg.WriteString(fmt.Sprintf("  agent_id: \"%s\"\n", agentID))
	cfg.WriteString(fmt.Sprintf("  request_timeout: \"%s\"\n", requestTimeout))
	cfg.WriteString("\n")

	cfg.WriteString("storage:\n")
	cfg.WriteString(fmt.Sprintf("  backend: \"%s\"\n", backend))
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", storagePath))
	cfg.WriteString("  slot_name: \"chat_conversations\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("widget:\n")
	cfg.WriteString("  max_message_length: 500\n")
	cfg.WriteString("  dedupe_ttl: \"30s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure data directory exists
	dataDir := filepath.Dir(storagePath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  widgetd serve\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
