package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/mailreader/internal/gmail"
	"github.com/teemow/mailreader/internal/google"
	"github.com/teemow/mailreader/internal/instrumentation"
	"github.com/teemow/mailreader/internal/logging"
	"github.com/teemow/mailreader/internal/resources"
	"github.com/teemow/mailreader/internal/server"
	"github.com/teemow/mailreader/internal/tools/gmail_tools"
	"github.com/teemow/mailreader/internal/tools/google_tools"
)

const (
	transportStdio          = "stdio"
	transportStreamableHTTP = "streamable-http"
)

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

type serveOptions struct {
	google           googleOptions
	debugMode        bool
	transport        string
	httpAddr         string
	fetchConcurrency int64
	metrics          MetricsConfig
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server that reads the authorized
Gmail mailbox for AI assistants.

Supports multiple transport types:
  - stdio: Standard input/output (default)
  - streamable-http: Streamable HTTP transport

Authorization:
  A token saved by "mailreader auth" is picked up at startup. Without one,
  the google_get_auth_url and google_save_auth_code tools complete the
  authorization from the MCP client.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := applyServeEnv(cmd, &opts); err != nil {
				return err
			}
			return runServe(opts)
		},
	}

	opts.addFlags(cmd)

	return cmd
}

func (o *serveOptions) addFlags(cmd *cobra.Command) {
	o.google.addFlags(cmd)
	cmd.Flags().BoolVar(&o.debugMode, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&o.transport, "transport", transportStdio, "Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&o.httpAddr, "http-addr", ":8080", "HTTP server address (for streamable-http transport). Can also use MCP_HTTP_ADDR env var.")
	cmd.Flags().Int64Var(&o.fetchConcurrency, "fetch-concurrency", gmail.DefaultConcurrency, "Maximum number of concurrent message fetches. Can also use FETCH_CONCURRENCY env var.")
	cmd.Flags().BoolVar(&o.metrics.Enabled, "metrics", true, "Enable the metrics server on a dedicated port (streamable-http only). Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&o.metrics.Addr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")
}

// applyServeEnv overrides flags that were not set explicitly with their
// environment variables.
func applyServeEnv(cmd *cobra.Command, opts *serveOptions) error {
	flags := cmd.Flags()
	if v := os.Getenv("MCP_TRANSPORT"); v != "" && !flags.Changed("transport") {
		opts.transport = v
	}
	if v := os.Getenv("MCP_HTTP_ADDR"); v != "" && !flags.Changed("http-addr") {
		opts.httpAddr = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" && !flags.Changed("metrics-addr") {
		opts.metrics.Addr = v
	}
	if v := os.Getenv("METRICS_ENABLED"); v != "" && !flags.Changed("metrics") {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid METRICS_ENABLED %q: %w", v, err)
		}
		opts.metrics.Enabled = enabled
	}
	if v := os.Getenv("FETCH_CONCURRENCY"); v != "" && !flags.Changed("fetch-concurrency") {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid FETCH_CONCURRENCY %q: %w", v, err)
		}
		opts.fetchConcurrency = n
	}
	if opts.fetchConcurrency < 1 {
		return fmt.Errorf("fetch concurrency must be at least 1, got %d", opts.fetchConcurrency)
	}
	switch opts.transport {
	case transportStdio, transportStreamableHTTP:
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", opts.transport)
	}
	return nil
}

func runServe(opts serveOptions) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// stdout carries MCP frames in stdio mode
	logger := logging.New(os.Stderr, opts.debugMode)
	slog.SetDefault(logger)

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Warn("error during instrumentation shutdown", logging.Err(err))
		}
	}()

	var metrics *instrumentation.Metrics
	if provider.Enabled() {
		metrics = provider.Metrics()
	}

	authorizer, err := opts.google.newAuthorizer(logger, google.WithMetrics(metrics))
	if err != nil {
		return err
	}
	if authorizer.Resume() {
		logger.Info("using stored Gmail token", "path", opts.google.tokenPath)
	} else {
		logger.Warn("Gmail access is not authorized yet; call google_get_auth_url from the MCP client or run `mailreader auth`")
	}

	serverContext, err := server.NewServerContext(shutdownCtx, server.Config{
		Authorizer: authorizer,
		Mailbox:    gmail.Config{Concurrency: opts.fetchConcurrency},
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}

	// Set metrics and audit logger on server context for tool instrumentation
	if provider.Enabled() {
		serverContext.SetMetrics(metrics)
		serverContext.SetAuditLogger(instrumentation.NewAuditLogger(logger, instrConfig.AuditLogging))
	}

	// Start metrics server if enabled and not in stdio mode
	var metricsServer *server.MetricsServer
	if opts.transport != transportStdio && opts.metrics.Enabled && provider.Enabled() && provider.ServesPrometheus() {
		metricsServer, err = startMetricsServer(opts.metrics.Addr, provider, logger)
		if err != nil {
			return err
		}
	}

	defer func() {
		// Shutdown metrics server first
		if metricsServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(ctx); err != nil {
				logger.Warn("error during metrics server shutdown", logging.Err(err))
			}
		}
		if err := serverContext.Shutdown(); err != nil {
			logger.Warn("error during server context shutdown", logging.Err(err))
		}
	}()

	mcpSrv := newMCPServer()
	if err := registerAllTools(mcpSrv, serverContext); err != nil {
		return err
	}

	switch opts.transport {
	case transportStdio:
		return runStdioServer(mcpSrv)
	case transportStreamableHTTP:
		return runStreamableHTTPServer(shutdownCtx, mcpSrv, serverContext, opts.httpAddr, logger)
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", opts.transport)
	}
}

// newMCPServer returns the MCP server with tool and resource capabilities. A
// panicking tool handler yields an error response instead of ending the process.
func newMCPServer() *mcpserver.MCPServer {
	return mcpserver.NewMCPServer("mailreader", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false), // Subscribe and listChanged
		mcpserver.WithRecovery(),
	)
}

func startMetricsServer(addr string, provider *instrumentation.Provider, logger *slog.Logger) (*server.MetricsServer, error) {
	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    addr,
		InstrumentationProvider: provider,
		Logger:                  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}

	// Use ready channel to confirm metrics server started successfully
	metricsReady := make(chan struct{})
	metricsErr := make(chan error, 1)
	go func() {
		if err := metricsServer.StartWithReadySignal(metricsReady); err != nil && !errors.Is(err, http.ErrServerClosed) {
			metricsErr <- err
		}
		close(metricsErr)
	}()

	select {
	case <-metricsReady:
		logger.Info("metrics server started", "addr", metricsServer.Addr())
		return metricsServer, nil
	case err := <-metricsErr:
		return nil, fmt.Errorf("metrics server failed to start: %w", err)
	case <-time.After(5 * time.Second):
		return nil, errors.New("metrics server startup timed out")
	}
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	err := <-serverDone
	if err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

// registerAllTools registers all MCP tools and resources
func registerAllTools(mcpSrv *mcpserver.MCPServer, sc *server.ServerContext) error {
	type toolRegistration struct {
		name     string
		register func() error
	}

	registrations := []toolRegistration{
		{
			name: "Google authorization tools",
			register: func() error {
				return google_tools.RegisterGoogleTools(mcpSrv, sc)
			},
		},
		{
			name: "Gmail tools",
			register: func() error {
				return gmail_tools.RegisterGmailTools(mcpSrv, sc)
			},
		},
		{
			name: "mailbox resource",
			register: func() error {
				return resources.RegisterMailboxResources(mcpSrv, sc)
			},
		},
	}

	for _, reg := range registrations {
		if err := reg.register(); err != nil {
			return fmt.Errorf("failed to register %s: %w", reg.name, err)
		}
	}

	return nil
}

// newHTTPHandler mounts the MCP endpoint and the health endpoints.
func newHTTPHandler(mcpSrv *mcpserver.MCPServer, sc *server.ServerContext) (http.Handler, *server.HealthChecker) {
	mux := http.NewServeMux()
	mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(mcpSrv))

	healthChecker := server.NewHealthChecker(sc)
	healthChecker.RegisterHealthEndpoints(mux)
	return mux, healthChecker
}

func runStreamableHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, addr string, logger *slog.Logger) error {
	handler, healthChecker := newHTTPHandler(mcpSrv, sc)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("streamable HTTP server starting",
		"addr", addr,
		"mcp_endpoint", "/mcp",
		"health_endpoints", "/healthz, /readyz, /healthz/detailed")

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping HTTP server")
		healthChecker.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
		logger.Info("HTTP server stopped normally")
	}

	logger.Info("HTTP server gracefully stopped")
	return nil
}
