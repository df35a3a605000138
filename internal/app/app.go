// Package app assembles quill's services from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/custodia-labs/quill/internal/adapters/driven/cache/redis"
	"github.com/custodia-labs/quill/internal/adapters/driven/embedding/cached"
	"github.com/custodia-labs/quill/internal/adapters/driven/embedding/worker"
	"github.com/custodia-labs/quill/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/quill/internal/adapters/driven/storage/sqlite"
	vecmemory "github.com/custodia-labs/quill/internal/adapters/driven/vectorstore/memory"
	"github.com/custodia-labs/quill/internal/adapters/driven/vectorstore/sqlitevec"
	workerserver "github.com/custodia-labs/quill/internal/adapters/driving/worker"
	"github.com/custodia-labs/quill/internal/config"
	"github.com/custodia-labs/quill/internal/core/ports/driven"
	"github.com/custodia-labs/quill/internal/core/services"
	"github.com/custodia-labs/quill/internal/logger"
	"github.com/custodia-labs/quill/internal/postprocessors"
)

// WorkerCommand is the hidden subcommand a spawned embedding worker runs.
const WorkerCommand = "embed-worker"

// Options adjust how New wires the services.
type Options struct {
	// ConfigPath is forwarded to the spawned worker so it reads the same file.
	ConfigPath string

	// Ephemeral keeps every store in memory and runs the worker in-process.
	Ephemeral bool
}

// App holds the wired services and everything that must be closed with them.
type App struct {
	Config     *config.Config
	Articles   *services.ArticleService
	Indexer    *services.Indexer
	Retrieval  *services.RetrievalService
	Reconciler *services.Reconciler
	Scheduler  *services.Scheduler
	Worker     *worker.Client

	closers []func() error
}

// stores groups the structural store ports.
type stores struct {
	articles driven.ArticleStore
	keyword  driven.KeywordSearch
	chunks   driven.ChunkStore
	entities driven.EntityStore
	states   driven.IndexStateStore
	runs     driven.ReconcileLog
}

// New opens the stores and builds every service. Close releases them.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg}

	st, err := a.openStores(opts.Ephemeral)
	if err != nil {
		return nil, a.fail(err)
	}

	vectors, err := a.openVectors(opts.Ephemeral)
	if err != nil {
		return nil, a.fail(err)
	}

	client, err := newWorkerClient(cfg, opts)
	if err != nil {
		return nil, a.fail(err)
	}
	a.Worker = client

	var embedder driven.Embedder = client
	if len(cfg.Cache.Addrs) > 0 {
		c, err := redis.New(redis.Config{
			Addrs:    cfg.Cache.Addrs,
			Username: cfg.Cache.Username,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
			TTL:      cfg.CacheTTL(),
			Logger:   logger.L().Named("cache"),
		})
		switch {
		case err != nil:
			logger.Warn("Embedding cache disabled: %v", err)
		default:
			if err := c.Ping(ctx); err != nil {
				logger.Warn("Embedding cache unreachable, continuing without it: %v", err)
				c.Close()
			} else {
				a.closers = append(a.closers, func() error { c.Close(); return nil })
				embedder = cached.New(client, c, cfg.Embedding.Model)
			}
		}
	}
	a.closers = append(a.closers, embedder.Close)

	registry := postprocessors.NewRegistry()
	postprocessors.RegisterDefaults(registry)
	pipeline, err := postprocessors.Build(registry, cfg.Stages())
	if err != nil {
		return nil, a.fail(err)
	}

	a.Indexer = services.NewIndexer(services.IndexerDeps{
		Articles:  st.articles,
		Chunks:    st.chunks,
		Entities:  st.entities,
		Vectors:   vectors,
		Embedder:  embedder,
		Processor: pipeline,
		States:    st.states,
	}, services.IndexerConfig{
		Model:      cfg.Embedding.Model,
		EmbedBatch: cfg.Embedding.BatchSize,
	})
	// The indexer closes first so no drain step outlives its stores.
	a.closers = append(a.closers, a.Indexer.Close)

	r := cfg.Retrieval
	a.Retrieval = services.NewRetrievalService(services.RetrievalDeps{
		Chunks:   st.chunks,
		Entities: st.entities,
		Vectors:  vectors,
		Embedder: embedder,
		Keyword:  st.keyword,
	}, services.RetrievalConfig{
		Model:         cfg.Embedding.Model,
		KeywordScore:  r.KeywordScore,
		SemanticTopK:  r.SemanticTopK,
		KeywordDocs:   r.KeywordDocs,
		KeywordChunks: r.KeywordChunks,
		EntityTopK:    r.EntityTopK,
	})

	a.Articles = services.NewArticleService(st.articles, st.chunks, a.Indexer)
	a.Reconciler = services.NewReconciler(st.articles, st.states, st.entities, a.Indexer)
	a.Scheduler = services.NewScheduler(cfg.Reconcile.Schedule, st.runs, a.Reconciler)

	return a, nil
}

func (a *App) openStores(ephemeral bool) (*stores, error) {
	if ephemeral {
		articles := memory.NewArticleStore()
		return &stores{
			articles: articles,
			keyword:  articles,
			chunks:   memory.NewChunkStore(),
			entities: memory.NewEntityStore(),
			states:   memory.NewIndexStateStore(),
			runs:     memory.NewReconcileLog(),
		}, nil
	}

	db, err := sqlite.NewStore(a.Config.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}
	a.closers = append(a.closers, db.Close)

	return &stores{
		articles: db.ArticleStore(),
		keyword:  db.KeywordSearch(sqlite.KeywordMode(a.Config.Retrieval.KeywordMode)),
		chunks:   db.ChunkStore(),
		entities: db.EntityStore(),
		states:   db.IndexStateStore(),
		runs:     db.ReconcileLog(),
	}, nil
}

func (a *App) openVectors(ephemeral bool) (driven.VectorStore, error) {
	if ephemeral || a.Config.VectorStore == config.VectorStoreMemory {
		return vecmemory.NewStore(), nil
	}
	vs, err := sqlitevec.NewStore(a.Config.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	a.closers = append(a.closers, vs.Close)
	return vs, nil
}

func newWorkerClient(cfg *config.Config, opts Options) (*worker.Client, error) {
	var spawner worker.Spawner
	if opts.Ephemeral || cfg.Embedding.InProcess {
		srv := NewWorkerServer(cfg, logger.L().Named("embed-worker"))
		spawner = &worker.FuncSpawner{Serve: srv.Serve}
	} else {
		args := []string{WorkerCommand}
		if opts.ConfigPath != "" {
			args = append(args, "--config", opts.ConfigPath)
		}
		spawner = &worker.ExecSpawner{Args: args}
	}

	client, err := worker.NewClient(worker.Config{
		Spawner:      spawner,
		DefaultModel: cfg.Embedding.Model,
		Timeout:      cfg.EmbedTimeout(),
		Logger:       logger.L().Named("embedding"),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding client: %w", err)
	}
	return client, nil
}

// NewWorkerServer builds the worker-side server with backends from cfg.
func NewWorkerServer(cfg *config.Config, log *zap.Logger) *workerserver.Server {
	backends := workerserver.NewBackends(workerserver.BackendConfig{
		OllamaURL:         cfg.Embedding.OllamaURL,
		OpenAIAPIKey:      cfg.Embedding.OpenAIAPIKey,
		OpenAIBaseURL:     cfg.Embedding.OpenAIBaseURL,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		HTTPTimeout:       cfg.EmbedTimeout(),
	})
	return workerserver.NewServer(backends, log)
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

func (a *App) fail(err error) error {
	if cerr := a.Close(); cerr != nil {
		logger.Warn("Cleanup after failed start: %v", cerr)
	}
	return err
}
