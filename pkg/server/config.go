package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/malbeclabs/assetbot/pkg/pipeline"
	"github.com/malbeclabs/assetbot/pkg/schema"
	"github.com/malbeclabs/assetbot/pkg/upload"
)

// Pipeline is the question answering surface served over HTTP.
type Pipeline interface {
	Ask(ctx context.Context, question string) (*pipeline.Result, error)
	FindDocuments(ctx context.Context, question string) (*pipeline.DocumentsResult, error)
	Describe(ctx context.Context) (*schema.Descriptor, error)
}

// Uploader stores uploaded equipment documents.
type Uploader interface {
	Store(ctx context.Context, f upload.File) (*upload.Receipt, error)
	MaxBytes() int64
}

type Config struct {
	Logger   *slog.Logger
	Listener net.Listener
	Pipeline Pipeline
	Uploader Uploader // Optional; /upload answers 404 without it

	CORSOrigins       []string
	ReadHeaderTimeout time.Duration
	RequestTimeout    time.Duration // Upper bound on one /chat or /documents request
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
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Minute
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return nil
}
