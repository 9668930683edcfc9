// Package app assembles the question pipeline from configuration. Every
// binary that answers questions builds its dependencies through New.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/querychat/querychat/internal/config"
	"github.com/querychat/querychat/internal/llm"
	"github.com/querychat/querychat/internal/nl2sql"
	"github.com/querychat/querychat/internal/pipeline"
	"github.com/querychat/querychat/internal/query/sqlgateway"
	"github.com/querychat/querychat/internal/retrieval"
	"github.com/querychat/querychat/internal/schema"
	"github.com/querychat/querychat/internal/sqlguard"
	"github.com/querychat/querychat/internal/storage"
	localstore "github.com/querychat/querychat/internal/storage/local"
	s3store "github.com/querychat/querychat/internal/storage/s3"
)

type Options struct {
	Logger *slog.Logger
	// Provider replaces the configured language model provider.
	Provider llm.Provider
	// Open replaces sql.Open inside the gateway.
	Open sqlgateway.OpenFunc
	// Index replaces the configured retrieval index.
	Index retrieval.Index
	// ObjectStore replaces the configured snapshot store.
	ObjectStore storage.ObjectStore
}

type App struct {
	Config    config.Config
	Logger    *slog.Logger
	Provider  llm.Provider
	Catalog   *schema.Catalog
	Gateway   *sqlgateway.Gateway
	Retriever *retrieval.Retriever
	Pipeline  *pipeline.Pipeline

	closers []func() error
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	a := &App{Config: cfg, Logger: logger}
	ready := false
	defer func() {
		if !ready {
			_ = a.Close()
		}
	}()

	var err error
	a.Catalog, err = LoadCatalog(cfg.Schema)
	if err != nil {
		return nil, err
	}

	a.Provider = opts.Provider
	if a.Provider == nil {
		a.Provider, err = llm.New(ctx, cfg.AI)
		if err != nil {
			return nil, fmt.Errorf("init language model: %w", err)
		}
		a.closers = append(a.closers, a.Provider.Close)
	}

	if cfg.RAG.Enabled {
		a.Retriever, err = a.buildRetriever(ctx, opts)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, a.Retriever.Close)
	}

	a.Gateway = sqlgateway.New(sqlgateway.Config{
		QueryTimeout: cfg.Database.QueryTimeout,
		RowLimit:     cfg.Database.RowLimit,
		Logger:       logger,
		Open:         opts.Open,
	})

	guardMode, err := sqlguard.ParseMode(cfg.Pipeline.SQLGuard)
	if err != nil {
		return nil, err
	}

	pipelineCfg := pipeline.Config{
		Generator:        nl2sql.NewQueryGenerator(a.Provider, a.Catalog, nl2sql.DialectForDriver(cfg.Database.Driver), logger),
		Executor:         a.Gateway,
		Humanizer:        nl2sql.NewResponseHumanizer(a.Provider, logger),
		Guard:            sqlguard.New(guardMode),
		TopK:             cfg.RAG.TopK,
		AllowEmptyResult: cfg.Pipeline.AllowEmptyResult,
		Logger:           logger,
	}
	if a.Retriever != nil {
		pipelineCfg.Retriever = a.Retriever
	}
	a.Pipeline, err = pipeline.New(pipelineCfg)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "pipeline_ready",
		slog.String("provider", a.Provider.Name()),
		slog.String("driver", cfg.Database.Driver),
		slog.Bool("rag", a.Retriever != nil),
		slog.String("sql_guard", string(guardMode)),
	)
	ready = true
	return a, nil
}

func (a *App) buildRetriever(ctx context.Context, opts Options) (*retrieval.Retriever, error) {
	index := opts.Index
	if index == nil {
		var err error
		index, err = NewIndex(a.Config.RAG.Index)
		if err != nil {
			return nil, err
		}
	}

	var snapshot *retrieval.SnapshotWriter
	if a.Config.RAG.SnapshotKey != "" {
		store := opts.ObjectStore
		if store == nil {
			var err error
			store, err = OpenObjectStore(ctx, a.Config.ObjectStore)
			if err != nil {
				_ = index.Close()
				return nil, err
			}
		}
		var err error
		snapshot, err = retrieval.NewSnapshotWriter(store, a.Config.RAG.SnapshotKey)
		if err != nil {
			_ = index.Close()
			return nil, err
		}
	}

	retriever, err := retrieval.Build(ctx, retrieval.Config{
		Embedder: a.Provider,
		Index:    index,
		Texts:    a.Catalog.Snippets(),
		TopK:     a.Config.RAG.TopK,
		Snapshot: snapshot,
		Logger:   a.Logger,
	})
	if err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("build schema index: %w", err)
	}
	return retriever, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// LoadCatalog reads the configured schema file, falling back to the built-in
// sales catalog.
func LoadCatalog(cfg config.SchemaConfig) (*schema.Catalog, error) {
	catalog, err := schema.Load(cfg.File)
	if err != nil {
		return nil, fmt.Errorf("load schema catalog: %w", err)
	}
	return catalog, nil
}

func NewIndex(kind string) (retrieval.Index, error) {
	switch kind {
	case "", config.IndexSQLiteVec:
		return retrieval.NewSQLiteVecIndex()
	case config.IndexMemory:
		return retrieval.NewMemoryIndex(), nil
	default:
		return nil, fmt.Errorf("unknown retrieval index %q", kind)
	}
}

func OpenObjectStore(ctx context.Context, cfg config.ObjectStoreConfig) (storage.ObjectStore, error) {
	switch cfg.Kind {
	case "", config.ObjectStoreLocal:
		store, err := localstore.New(cfg.Root)
		if err != nil {
			return nil, fmt.Errorf("init local object store: %w", err)
		}
		return store, nil
	case config.ObjectStoreS3:
		store, err := OpenS3(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown object store %q", cfg.Kind)
	}
}

func OpenS3(ctx context.Context, cfg config.ObjectStoreConfig) (*s3store.Store, error) {
	store, err := s3store.New(ctx, s3store.Config{
		Endpoint:         cfg.Endpoint,
		Region:           cfg.Region,
		Bucket:           cfg.Bucket,
		AccessKeyID:      cfg.AccessKeyID,
		SecretAccessKey:  cfg.SecretAccessKey,
		UseSSL:           cfg.UseSSL,
		Prefix:           cfg.Prefix,
		AutoCreateBucket: cfg.AutoCreateBucket,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 object store: %w", err)
	}
	return store, nil
}
