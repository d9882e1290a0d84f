// Package app assembles the assetbot components from a loaded profile. Both
// binaries use it so the CLI and the server answer questions identically.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/malbeclabs/assetbot/pkg/config"
	"github.com/malbeclabs/assetbot/pkg/llm"
	"github.com/malbeclabs/assetbot/pkg/pipeline"
	"github.com/malbeclabs/assetbot/pkg/retrieval"
	"github.com/malbeclabs/assetbot/pkg/schema"
	"github.com/malbeclabs/assetbot/pkg/store"
	"github.com/malbeclabs/assetbot/pkg/upload"
)

// Options selects which components Open builds.
type Options struct {
	Pipeline bool // LLM client and question pipeline
	Index    bool // Retrieval index, also built when the profile enables retrieval
	Writer   bool // Read-write connection and uploader
}

type App struct {
	Log    *slog.Logger
	Config *config.Config

	Store    *store.Store
	Schema   schema.Describer
	Writer   *store.Writer
	Uploader *upload.Uploader
	LLM      llm.Client
	Index    *retrieval.Index
	Pipeline *pipeline.Pipeline
}

// Open builds the components selected by opts. The writer is opened first so
// that a missing database file is created before the read-only pool opens it.
func Open(ctx context.Context, log *slog.Logger, cfg *config.Config, opts Options) (_ *App, err error) {
	a := &App{Log: log, Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if opts.Writer {
		a.Writer, err = store.OpenWriter(ctx, cfg.WriterConfig(log))
		if err != nil {
			return nil, fmt.Errorf("failed to open writer: %w", err)
		}
		a.Uploader, err = upload.New(upload.Config{
			Logger:   log,
			Writer:   a.Writer,
			Table:    cfg.Database.Table,
			IDColumn: cfg.Database.IDColumn,
			MaxBytes: cfg.Server.MaxUploadBytes,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create uploader: %w", err)
		}
	}

	a.Store, err = store.Open(ctx, cfg.StoreConfig(log))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	a.Schema = cfg.Describer(a.Store.DB())

	if opts.Index || cfg.Retrieval.Enabled {
		a.Index, err = BuildIndex(ctx, log, cfg, a.Store)
		if err != nil {
			return nil, err
		}
	}

	if !opts.Pipeline {
		return a, nil
	}
	a.LLM, err = cfg.NewLLMClient(log)
	if err != nil {
		return nil, err
	}
	profile, err := cfg.Profile()
	if err != nil {
		return nil, err
	}
	pcfg := pipeline.Config{
		Logger:  log,
		LLM:     a.LLM,
		Store:   a.Store,
		Schema:  a.Schema,
		Profile: profile,
	}
	if a.Index != nil {
		pcfg.Retriever = a.Index
	}
	a.Pipeline, err = pipeline.New(pcfg)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// BuildIndex embeds every row of the asset table.
func BuildIndex(ctx context.Context, log *slog.Logger, cfg *config.Config, st retrieval.Executor) (*retrieval.Index, error) {
	embedder, err := cfg.NewEmbedder()
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	texts, err := retrieval.LoadRowTexts(ctx, st, cfg.Database.Table)
	if err != nil {
		return nil, err
	}
	ix, err := retrieval.Build(ctx, cfg.IndexConfig(log, embedder), texts)
	if err != nil {
		return nil, fmt.Errorf("failed to build retrieval index: %w", err)
	}
	log.Info("app: retrieval index built", "rows", ix.Len(), "dimensions", ix.Dimensions(), "embedder", cfg.Retrieval.Embedder)
	return ix, nil
}

func (a *App) Close() error {
	var errs []error
	if a.Index != nil {
		a.Index.Close()
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.Writer != nil {
		errs = append(errs, a.Writer.Close())
	}
	return errors.Join(errs...)
}
