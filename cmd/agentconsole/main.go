package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"AgentConsole/internal/backend"
	"AgentConsole/internal/cache"
	"AgentConsole/internal/catalog"
	"AgentConsole/internal/config"
	"AgentConsole/internal/console"
	"AgentConsole/internal/extract"
	"AgentConsole/internal/mcp"
	"AgentConsole/internal/session"
	"AgentConsole/internal/store"
	"AgentConsole/internal/telemetry"
	"AgentConsole/internal/voice"

	"github.com/spf13/cobra"
)

var (
	configPath    string
	flagBackend   string
	flagAgent     string
	flagSessionID string
	flagDebug     bool
	flagMCP       bool
	flagMCPLocal  string
	flagMCPRemote string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "agentconsole",
		Short:        "Chat with LLM backends and registered agents",
		Long:         "Agent Console is a terminal chat client for Ollama, Anthropic, OpenAI, Grok and catalog agents, with MCP tool support.",
		Version:      telemetry.Version,
		SilenceUsage: true,
		RunE:         runChat,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: ~/.agentconsole/config.yaml)")
	pf.StringVar(&flagBackend, "backend", config.BackendOllama, "LLM backend ("+strings.Join(config.Backends, "|")+")")
	pf.StringVar(&flagAgent, "agent", "", "talk to a registered agent instead of an LLM backend")
	pf.StringVar(&flagSessionID, "session-id", "", "Load existing session by ID")
	pf.BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	pf.BoolVar(&flagMCP, "mcp-enabled", false, "Enable MCP tool support")
	pf.StringVar(&flagMCPLocal, "mcp-local", "", "Comma-separated commands that start stdio MCP servers")
	pf.StringVar(&flagMCPRemote, "mcp-remote", "", "Comma-separated http(s):// or ws(s):// MCP server URLs")

	root.AddCommand(extractCmd())
	root.AddCommand(agentsCmd())
	root.AddCommand(mcpCmd())
	return root
}

// loadConfig reads the config file and lays explicitly set flags over it.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Backend = flagBackend
	}
	if flags.Changed("agent") {
		cfg.Agent = flagAgent
		cfg.Backend = config.BackendAgent
	}
	if flags.Changed("debug") {
		cfg.Debug = flagDebug
	}
	if flags.Changed("mcp-enabled") {
		cfg.MCP.Enabled = flagMCP
	}
	cfg.MCP.LocalServers = append(cfg.MCP.LocalServers, splitList(flagMCPLocal)...)
	cfg.MCP.RemoteServers = append(cfg.MCP.RemoteServers, splitList(flagMCPRemote)...)
	cfg.SessionID = flagSessionID

	if err := config.Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// app is what every subcommand needs: config, logging and the database.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	store   *store.Store
	catalog *catalog.Catalog
	logs    io.Closer
}

func openApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger, logs, err := telemetry.InitLogger(cfg.LogDir(), cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if cfg.Debug {
		logger.Info("Debug mode enabled")
	}

	st, err := store.Open(cfg.DBPath(), logger)
	if err != nil {
		logs.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	cat, err := catalog.New(ctx, st.DB())
	if err != nil {
		st.Close()
		logs.Close()
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, store: st, catalog: cat, logs: logs}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close database", "error", err)
	}
	a.logs.Close()
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	shutdown, err := telemetry.InitTelemetry(ctx, cfg.LogDir())
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer shutdown()

	blobs, err := cache.NewBlobStore(cfg.BlobDir(), cfg.Cache.BlobTTL, cfg.Cache.MaxBlobSize)
	if err != nil {
		return err
	}
	if n, err := blobs.Sweep(); err != nil {
		a.logger.Warn("failed to sweep expired blobs", "error", err)
	} else if n > 0 {
		a.logger.Info("removed expired blobs", "count", n)
	}

	var responses *cache.ResponseCache
	if cfg.Cache.Enabled {
		responses = cache.NewResponseCache(cfg.Cache.ResponseTTL)
	}

	var registry *mcp.Registry
	if cfg.MCP.Enabled {
		registry = connectMCP(ctx, cfg.MCP, a.catalog, a.logger)
		defer registry.Close()
	}

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	factory := func(ctx context.Context, name string, cfg config.Config, history backend.HistoryFunc) (session.Backend, error) {
		deps := backend.Deps{
			HTTPClient: httpClient,
			Logger:     a.logger,
			History:    history,
			Catalog:    a.catalog,
			Cache:      responses,
		}
		if registry != nil {
			deps.Tools = registry
		}
		return backend.New(ctx, name, cfg, deps)
	}

	// transcripts go to whichever backend is selected when the note arrives
	var con *console.Console
	current := session.BackendFunc(func(ctx context.Context, content string, atts []session.AttachedFile) (session.ChatMessage, error) {
		return con.Backend().SendMessage(ctx, content, atts)
	})
	processor, err := voice.New(cfg.Voice, current, a.logger)
	if err != nil {
		return err
	}

	con, err = console.New(ctx, console.Options{
		Config:     cfg,
		In:         os.Stdin,
		Out:        os.Stdout,
		Err:        os.Stderr,
		Logger:     a.logger,
		Store:      a.store,
		Catalog:    a.catalog,
		Blobs:      blobs,
		MCP:        registry,
		Voice:      processor,
		NewBackend: factory,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize console: %w", err)
	}
	return con.Run(ctx)
}

// connectMCP connects the configured and catalogued MCP servers and loads
// their tools. Servers that fail are logged and skipped.
func connectMCP(ctx context.Context, cfg config.MCPConfig, cat *catalog.Catalog, logger *slog.Logger) *mcp.Registry {
	registry := mcp.NewRegistry(logger)

	servers := configuredServers(cfg)
	registered, err := cat.ListMCPServers(ctx)
	if err != nil {
		logger.Warn("failed to list registered MCP servers", "error", err)
	}
	servers = append(servers, registered...)

	for _, server := range servers {
		if err := registry.Connect(ctx, server); err != nil {
			logger.Warn("failed to connect MCP server", "server", server.Name, "error", err)
		}
	}
	if err := registry.Refresh(ctx); err != nil {
		logger.Warn("failed to refresh MCP tools", "error", err)
	}

	logger.Info("MCP initialized", "servers", registry.Count(), "tools", len(registry.Tools()))
	return registry
}

// configuredServers turns --mcp-local commands and --mcp-remote URLs into
// server entries named after themselves.
func configuredServers(cfg config.MCPConfig) []catalog.MCPServer {
	var servers []catalog.MCPServer
	for _, line := range cfg.LocalServers {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		servers = append(servers, catalog.MCPServer{
			Name:      line,
			Transport: catalog.TransportStdio,
			Command:   fields[0],
			Args:      fields[1:],
		})
	}
	for _, url := range cfg.RemoteServers {
		transport := catalog.TransportHTTP
		if strings.HasPrefix(url, "ws://") || strings.HasPrefix(url, "wss://") {
			transport = catalog.TransportWebSocket
		}
		servers = append(servers, catalog.MCPServer{Name: url, Transport: transport, URL: url})
	}
	return servers
}

func extractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract",
		Short: "Print the user-facing text of a raw backend reply read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), extract.ExtractResponseFromContent(string(raw)))
			return nil
		},
	}
}
