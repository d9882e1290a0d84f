package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/malbeclabs/assetbot/internal/app"
	"github.com/malbeclabs/assetbot/internal/logger"
	"github.com/malbeclabs/assetbot/pkg/config"
	"github.com/malbeclabs/assetbot/pkg/mcpserver"
	"github.com/malbeclabs/assetbot/pkg/server"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultReadHeaderTimeout = 10 * time.Second
	defaultRequestTimeout    = 2 * time.Minute
	defaultShutdownTimeout   = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	configFlag := flag.String("config", "", "path to a YAML profile")
	dbFlag := flag.String("db", "", "path to the SQLite database (overrides the profile)")
	listenAddrFlag := flag.String("listen-addr", "", "chat HTTP listen address (overrides the profile)")
	mcpListenAddrFlag := flag.String("mcp-listen-addr", "", "MCP streamable HTTP listen address (empty disables MCP unless set in the profile)")
	mcpTokensFlag := flag.String("mcp-allowed-tokens", "", "comma-separated bearer tokens accepted by the MCP endpoint (or set MCP_ALLOWED_TOKENS)")
	metricsAddrFlag := flag.String("metrics-addr", "", "address to listen on for prometheus metrics (overrides the profile)")
	readHeaderTimeoutFlag := flag.Duration("read-header-timeout", defaultReadHeaderTimeout, "HTTP read header timeout")
	requestTimeoutFlag := flag.Duration("request-timeout", defaultRequestTimeout, "upper bound on one chat request")
	shutdownTimeoutFlag := flag.Duration("shutdown-timeout", defaultShutdownTimeout, "server shutdown timeout")
	flag.Parse()

	log := logger.New(os.Stdout, *verboseFlag)

	cfg, err := config.Load(*configFlag)
	if err != nil {
		return err
	}
	if *dbFlag != "" {
		cfg.Database.Path = *dbFlag
	}
	if *listenAddrFlag != "" {
		cfg.Server.ListenAddr = *listenAddrFlag
	}
	if *mcpListenAddrFlag != "" {
		cfg.Server.MCPAddr = *mcpListenAddrFlag
	}
	if *metricsAddrFlag != "" {
		cfg.Server.MetricsAddr = *metricsAddrFlag
	}
	tokens := *mcpTokensFlag
	if env := os.Getenv("MCP_ALLOWED_TOKENS"); tokens == "" && env != "" {
		tokens = env
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	metricsServerErrCh := make(chan error, 1)
	if cfg.Server.MetricsAddr != "" {
		server.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		go func() {
			listener, err := net.Listen("tcp", cfg.Server.MetricsAddr)
			if err != nil {
				log.Error("failed to start prometheus metrics server listener", "error", err)
				metricsServerErrCh <- err
				return
			}
			log.Info("prometheus metrics server listening", "address", listener.Addr().String())
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.Serve(listener, mux); err != nil {
				log.Error("failed to start prometheus metrics server", "error", err)
				metricsServerErrCh <- err
			}
		}()
	}

	a, err := app.Open(ctx, log, cfg, app.Options{Pipeline: true, Writer: true})
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("failed to close", "error", err)
		}
	}()
	log.Info("using asset database", "path", cfg.Database.Path, "table", cfg.Database.Table, "provider", cfg.LLM.Provider, "mode", cfg.Pipeline.Mode)

	httpListener, err := net.Listen("tcp", cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to create HTTP listener: %w", err)
	}
	defer httpListener.Close()

	srv, err := server.New(server.Config{
		Logger:            log,
		Listener:          httpListener,
		Pipeline:          a.Pipeline,
		Uploader:          a.Uploader,
		CORSOrigins:       cfg.Server.CORSOrigins,
		ReadHeaderTimeout: *readHeaderTimeoutFlag,
		RequestTimeout:    *requestTimeoutFlag,
		ShutdownTimeout:   *shutdownTimeoutFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	serverErrCh := make(chan error, 2)
	running := 1
	go func() { serverErrCh <- srv.Run(ctx) }()

	if cfg.Server.MCPAddr != "" {
		mcpListener, err := net.Listen("tcp", cfg.Server.MCPAddr)
		if err != nil {
			return errors.Join(fmt.Errorf("failed to create MCP listener: %w", err), drain(cancel, serverErrCh, running))
		}
		defer mcpListener.Close()

		mcpCfg := mcpserver.Config{
			Logger:            log,
			Listener:          mcpListener,
			Pipeline:          a.Pipeline,
			Version:           version,
			AllowedTokens:     splitTokens(tokens),
			ReadHeaderTimeout: *readHeaderTimeoutFlag,
			ShutdownTimeout:   *shutdownTimeoutFlag,
		}
		if a.Index != nil {
			mcpCfg.Retriever = a.Index
		}
		mcpSrv, err := mcpserver.New(mcpCfg)
		if err != nil {
			return errors.Join(fmt.Errorf("failed to create MCP server: %w", err), drain(cancel, serverErrCh, running))
		}
		running++
		go func() { serverErrCh <- mcpSrv.Run(ctx) }()
	}

	var runErr error
	select {
	case err := <-serverErrCh:
		running--
		if err != nil {
			log.Error("server: server error causing shutdown", "error", err)
			runErr = err
		}
	case err := <-metricsServerErrCh:
		log.Error("server: metrics server error causing shutdown", "error", err)
		runErr = err
	case <-ctx.Done():
		log.Info("server: shutting down", "reason", ctx.Err())
	}
	if err := drain(cancel, serverErrCh, running); runErr == nil {
		runErr = err
	}
	return runErr
}

// drain cancels the servers and waits until each of the running ones has
// returned, so nothing they use is closed under them.
func drain(cancel context.CancelFunc, errCh <-chan error, running int) error {
	cancel()
	var errs []error
	for ; running > 0; running-- {
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func splitTokens(s string) []string {
	var tokens []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}
