package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/tobert/chainscope/internal/ingest"
	"github.com/tobert/chainscope/internal/mcpserver"
	"github.com/tobert/chainscope/internal/storage"
	"github.com/tobert/chainscope/internal/webui"
)

// ServeCommand returns the CLI command definition for the 'serve' subcommand.
// This command starts the MCP server and any configured report watchers.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the MCP server and watch report directories",
		Description: `Starts an MCP server (stdio by default, or streamable HTTP) exposing
critical request chain analysis of Lighthouse reports. Reports are
analyzed when an agent calls analyze_report, or automatically when they
appear in a watched directory (--report-dir, or the outputDir of a
Lighthouse CI config given with --lhci-config).

Configuration is layered: defaults, ~/.config/chainscope/config.{json,yaml},
the nearest .chainscope.{json,yaml} up to the git root (or --config), then
flags.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Explicit config file (JSON or YAML)",
			},
			&cli.IntFlag{
				Name:  "history-size",
				Usage: "Number of analyzed runs to keep",
				Value: storage.DefaultHistorySize,
			},
			&cli.StringFlag{
				Name:  "data-dir",
				Usage: "Persist run history in this directory (empty = memory only)",
			},
			&cli.StringSliceFlag{
				Name:  "report-dir",
				Usage: "Watch a directory for report JSON files (repeatable)",
			},
			&cli.StringFlag{
				Name:  "lhci-config",
				Usage: "Lighthouse CI config whose report directories should be watched",
			},
			&cli.StringFlag{
				Name:  "label",
				Usage: "Label applied to runs from watched directories",
			},
			&cli.StringFlag{
				Name:  "transport",
				Usage: "MCP transport: stdio or http",
				Value: "stdio",
			},
			&cli.StringFlag{
				Name:  "http-host",
				Usage: "HTTP transport bind address",
				Value: "127.0.0.1",
			},
			&cli.IntFlag{
				Name:  "http-port",
				Usage: "HTTP transport port",
				Value: 4390,
			},
			&cli.BoolFlag{
				Name:  "stateless",
				Usage: "Run the HTTP transport without sessions",
			},
			&cli.StringFlag{
				Name:  "webui-host",
				Usage: "Web UI bind address",
				Value: "127.0.0.1",
			},
			&cli.IntFlag{
				Name:  "webui-port",
				Usage: "Web UI port (0 = share the HTTP transport port, disabled on stdio)",
			},
			&cli.StringFlag{
				Name:  "otlp-endpoint",
				Usage: "Default OTLP gRPC collector for export_otlp (host:port)",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable verbose logging",
			},
		},
		Action: runServe,
	}
}

// applyFlags overlays explicitly set flags on cfg. Flags win over every
// config file layer.
func applyFlags(cfg *Config, cmd *cli.Command) *Config {
	overlay := &Config{}
	if cmd.IsSet("history-size") {
		overlay.HistorySize = cmd.Int("history-size")
	}
	if cmd.IsSet("data-dir") {
		overlay.DataDir = cmd.String("data-dir")
	}
	if cmd.IsSet("report-dir") {
		overlay.ReportDirs = cmd.StringSlice("report-dir")
	}
	if cmd.IsSet("lhci-config") {
		overlay.LHCIConfig = cmd.String("lhci-config")
	}
	if cmd.IsSet("label") {
		overlay.ReportLabel = cmd.String("label")
	}
	if cmd.IsSet("transport") {
		overlay.Transport = cmd.String("transport")
	}
	if cmd.IsSet("http-host") {
		overlay.HTTPHost = cmd.String("http-host")
	}
	if cmd.IsSet("http-port") {
		overlay.HTTPPort = cmd.Int("http-port")
	}
	if cmd.IsSet("stateless") {
		overlay.Stateless = cmd.Bool("stateless")
	}
	if cmd.IsSet("webui-host") {
		overlay.WebUIHost = cmd.String("webui-host")
	}
	if cmd.IsSet("webui-port") {
		overlay.WebUIPort = cmd.Int("webui-port")
	}
	if cmd.IsSet("otlp-endpoint") {
		overlay.OTLPEndpoint = cmd.String("otlp-endpoint")
	}
	if cmd.IsSet("verbose") {
		overlay.Verbose = cmd.Bool("verbose")
	}
	return MergeConfigs(cfg, overlay)
}

// runServe is the action handler for the serve command.
// It wires together all components: storage, ingest, watchers, MCP server and web UI.
func runServe(cliCtx context.Context, cmd *cli.Command) error {
	cfg, err := LoadEffectiveConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	cfg = applyFlags(cfg, cmd)
	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.Verbose {
		log.Println("🔧 Configuration:")
		log.Printf("  History: %d runs\n", cfg.HistorySize)
		if cfg.DataDir != "" {
			log.Printf("  Data dir: %s\n", cfg.DataDir)
		}
		log.Printf("  Transport: %s\n", cfg.Transport)
		log.Println()
	}

	ctx, stop := signal.NotifyContext(cliCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Run history, optionally persisted
	var persister storage.Persister
	if cfg.DataDir != "" {
		bp, err := storage.OpenBadger(cfg.DataDir, cfg.Verbose)
		if err != nil {
			return err
		}
		defer bp.Close()
		persister = bp
	}

	store := storage.NewRunStore(cfg.HistorySize, persister)
	restored, err := store.Restore(ctx)
	if err != nil {
		return err
	}
	if restored > 0 {
		log.Printf("💾 Restored %d runs from %s\n", restored, cfg.DataDir)
	}

	// 2. Ingest pipeline and MCP server
	ing, err := ingest.New(store, cfg.Verbose)
	if err != nil {
		return fmt.Errorf("failed to create ingester: %w", err)
	}
	baselines := storage.NewBaselineManager()

	mcpServer, err := mcpserver.NewServer(ing, baselines, mcpserver.ServerOptions{
		Verbose:      cfg.Verbose,
		OTLPEndpoint: cfg.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer mcpServer.Shutdown()

	// 3. Report directories
	dirs, err := reportDirs(cfg)
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		if err := mcpServer.AddReportSource(ctx, dir, cfg.ReportLabel); err != nil {
			return fmt.Errorf("failed to watch report directory: %w", err)
		}
		log.Printf("📁 Watching %s for reports\n", dir)
	}

	ui := webui.New(store, baselines)

	if cfg.Transport == "http" {
		return serveHTTPTransport(ctx, cfg, mcpServer, ui)
	}
	return serveStdio(ctx, cfg, mcpServer, ui)
}

// reportDirs returns the configured report directories followed by those
// named in the Lighthouse CI config. LHCI directories are created when
// missing so reports written later are still picked up.
func reportDirs(cfg *Config) ([]string, error) {
	dirs := append([]string(nil), cfg.ReportDirs...)
	if cfg.LHCIConfig == "" {
		return dirs, nil
	}

	lhciDirs, err := ParseLHCIConfig(cfg.LHCIConfig)
	if err != nil {
		return nil, err
	}
	if len(lhciDirs) == 0 {
		log.Printf("⚠️  %s names no report directories\n", cfg.LHCIConfig)
	}
	for _, dir := range lhciDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create report directory %s: %w", dir, err)
		}
	}
	return appendUnique(dirs, lhciDirs...), nil
}

// serveStdio runs the MCP server on stdio, plus the web UI when it has its
// own port. Closing stdin stops everything.
func serveStdio(ctx context.Context, cfg *Config, mcpServer *mcpserver.Server, ui *webui.Server) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		log.Println("🎯 MCP server ready on stdio")
		if err := mcpServer.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP server error: %w", err)
		}
		return nil
	})

	if cfg.WebUIPort > 0 {
		addr := net.JoinHostPort(cfg.WebUIHost, strconv.Itoa(cfg.WebUIPort))
		mux := http.NewServeMux()
		ui.RegisterRoutes(mux)
		mux.Handle("GET /metrics", promhttp.Handler())
		g.Go(func() error {
			log.Printf("🖥️  Web UI on http://%s/ui/\n", addr)
			return listenAndServe(gctx, addr, mux)
		})
	}

	return g.Wait()
}

// serveHTTPTransport serves MCP over streamable HTTP at /mcp. The web UI and
// /metrics share the listener unless the web UI has its own port.
func serveHTTPTransport(ctx context.Context, cfg *Config, mcpServer *mcpserver.Server, ui *webui.Server) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return mcpServer.MCPServer()
	}, &mcp.StreamableHTTPOptions{Stateless: cfg.Stateless})

	addr := net.JoinHostPort(cfg.HTTPHost, strconv.Itoa(cfg.HTTPPort))
	mux := http.NewServeMux()
	mux.Handle("/mcp", handler)
	mux.Handle("GET /metrics", promhttp.Handler())

	g, gctx := errgroup.WithContext(ctx)

	if cfg.WebUIPort > 0 && cfg.WebUIPort != cfg.HTTPPort {
		uiAddr := net.JoinHostPort(cfg.WebUIHost, strconv.Itoa(cfg.WebUIPort))
		uiMux := http.NewServeMux()
		ui.RegisterRoutes(uiMux)
		g.Go(func() error {
			log.Printf("🖥️  Web UI on http://%s/ui/\n", uiAddr)
			return listenAndServe(gctx, uiAddr, uiMux)
		})
	} else {
		ui.RegisterRoutes(mux)
		log.Printf("🖥️  Web UI on http://%s/ui/\n", addr)
	}

	g.Go(func() error {
		log.Printf("🎯 MCP server ready on http://%s/mcp\n", addr)
		return listenAndServe(gctx, addr, mux)
	})

	return g.Wait()
}

// listenAndServe runs an HTTP server until ctx is cancelled, then shuts it
// down gracefully.
func listenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// WebSocket streams end with the server
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server on %s: %w", addr, err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
