package mcpserver

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/malbeclabs/assetbot/pkg/pipeline"
	"github.com/malbeclabs/assetbot/pkg/retrieval"
	"github.com/malbeclabs/assetbot/pkg/schema"
	"github.com/malbeclabs/assetbot/pkg/store"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Pipeline is the subset of the question pipeline exposed as tools.
type Pipeline interface {
	Ask(ctx context.Context, question string) (*pipeline.Result, error)
	Describe(ctx context.Context) (*schema.Descriptor, error)
	Execute(ctx context.Context, sql pipeline.SQL) (*store.ResultSet, error)
	Profile() pipeline.Profile
}

// Retriever finds asset records similar to a question.
type Retriever interface {
	RetrieveSimilar(ctx context.Context, question string, topK int) ([]retrieval.Hit, error)
}

type Config struct {
	Logger    *slog.Logger
	Listener  net.Listener
	Pipeline  Pipeline
	Retriever Retriever // Optional; the search tool is registered only when set
	Version   string

	// Bearer tokens accepted on the MCP endpoint. Empty disables auth.
	AllowedTokens []string

	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Listener == nil {
		return errors.New("listener is required")
	}
	if cfg.Pipeline == nil {
		return errors.New("pipeline is required")
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return nil
}

type Server struct {
	log  *slog.Logger
	cfg  Config
	mcp  *mcp.Server
	http *http.Server
}

func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "Asset Assistant MCP Server",
		Version: cfg.Version,
	}, nil)

	s := &Server{log: cfg.Logger, cfg: cfg, mcp: mcpServer}

	if err := RegisterAskTool(s.log, mcpServer, cfg.Pipeline); err != nil {
		return nil, fmt.Errorf("failed to create ask tool: %w", err)
	}
	if err := RegisterSchemaTool(s.log, mcpServer, cfg.Pipeline); err != nil {
		return nil, fmt.Errorf("failed to create schema tool: %w", err)
	}
	if err := RegisterQueryTool(s.log, mcpServer, cfg.Pipeline); err != nil {
		return nil, fmt.Errorf("failed to create query tool: %w", err)
	}
	if cfg.Retriever != nil {
		if err := RegisterSearchTool(s.log, mcpServer, cfg.Retriever); err != nil {
			return nil, fmt.Errorf("failed to create search tool: %w", err)
		}
	}

	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	return s, nil
}

// Handler serves the streamable MCP endpoint at / plus health probes.
func (s *Server) Handler() http.Handler {
	handler := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.mcp
	}, &mcp.StreamableHTTPOptions{
		Stateless: true,
	})

	var root http.Handler = handler
	if len(s.cfg.AllowedTokens) > 0 {
		root = s.authMiddleware(root)
	}

	mux := http.NewServeMux()
	mux.Handle("/", s.metricsMiddleware(root))
	mux.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok\n")); err != nil {
			s.log.Error("failed to write healthz response", "error", err)
		}
	}))
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	serveErrCh := make(chan error, 1)
	go func() {
		if err := s.http.Serve(s.cfg.Listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- fmt.Errorf("failed to serve: %w", err)
		}
	}()
	s.log.Info("mcpserver: streamable http listening", "address", s.cfg.Listener.Addr())

	select {
	case <-ctx.Done():
		s.log.Info("mcpserver: stopping", "reason", ctx.Err())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		return nil
	case err := <-serveErrCh:
		s.log.Error("mcpserver: http server error causing shutdown", "error", err)
		return err
	}
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		reason := ""
		switch {
		case r.Header.Get("Authorization") == "":
			reason = "missing_header"
		case !ok || !strings.EqualFold(scheme, "bearer"):
			reason = "invalid_format"
		case !s.tokenAllowed(strings.TrimSpace(token)):
			reason = "invalid_token"
		}
		if reason != "" {
			AuthFailuresTotal.WithLabelValues(reason).Inc()
			w.Header().Set("WWW-Authenticate", "Bearer")
			w.WriteHeader(http.StatusUnauthorized)
			if _, err := w.Write([]byte("unauthorized\n")); err != nil {
				s.log.Error("failed to write auth error response", "error", err)
			}
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) tokenAllowed(token string) bool {
	if token == "" {
		return false
	}
	for _, allowed := range s.cfg.AllowedTokens {
		if subtle.ConstantTimeCompare([]byte(token), []byte(allowed)) == 1 {
			return true
		}
	}
	return false
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(wrapped.statusCode)).Inc()
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming responses working through the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
