package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/maibvn/pal/internal/ai"
	"github.com/maibvn/pal/internal/config"
	"github.com/maibvn/pal/internal/db"
	"github.com/maibvn/pal/internal/embedcache"
	"github.com/maibvn/pal/internal/filestore"
	"github.com/maibvn/pal/internal/handler"
	"github.com/maibvn/pal/internal/index"
	"github.com/maibvn/pal/internal/job"
	"github.com/maibvn/pal/internal/middleware"
	"github.com/maibvn/pal/internal/repo"
	"github.com/maibvn/pal/internal/schedule"
	"github.com/maibvn/pal/internal/service"
	"github.com/maibvn/pal/internal/websearch"
	"github.com/maibvn/pal/internal/worker"
)

const shutdownTimeout = 30 * time.Second

type app struct {
	cfg       *config.Config
	db        *db.DB
	runner    *worker.Runner
	index     *index.Index
	documents *service.DocumentService
	chat      *service.ChatService
	docRepo   *repo.DocumentRepo
	chunkRepo *repo.ChunkRepo
	cacheRepo *repo.EmbeddingCacheRepo
}

func newApp(cfg *config.Config) (*app, error) {
	logger := logutil.GetLogger(context.Background())
	conn, err := db.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("init file store: %w", err)
	}

	docRepo := repo.NewDocumentRepo(conn)
	chunkRepo := repo.NewChunkRepo(conn)
	cacheRepo := repo.NewEmbeddingCacheRepo(conn)

	chatProvider, err := ai.NewProvider(cfg.AI.Provider, providerArgs(cfg, cfg.AI.Provider))
	if err != nil {
		logger.Warn("chat provider unavailable, chat requests will fail", zap.String("provider", cfg.AI.Provider), zap.Error(err))
		chatProvider = nil
	}
	embedder := buildEmbedder(cfg, cacheRepo)
	g := cfg.AI.Generation
	manager := ai.NewManager(chatProvider, embedder, ai.ManagerConfig{
		Model:   cfg.AI.Model,
		Timeout: cfg.AI.Timeout,
		Params: ai.GenerateParams{
			MaxTokens:        g.MaxTokens,
			Temperature:      g.Temperature,
			TopP:             g.TopP,
			TopK:             g.TopK,
			FrequencyPenalty: g.FrequencyPenalty,
			PresencePenalty:  g.PresencePenalty,
		},
	})
	logger.Info("ai configured",
		zap.String("provider", manager.ProviderName()),
		zap.String("model", manager.Model()),
		zap.String("embedder", manager.EmbeddingModelName()),
	)

	idx := index.New(chunkRepo, embedder)
	runner := worker.NewRunner(cfg.Worker.Concurrency)
	pipeline := service.NewPipeline(docRepo, chunkRepo, store, idx, manager, ai.NewChunker(cfg.Chunking.Size, cfg.Chunking.Overlap))
	documents := service.NewDocumentService(docRepo, chunkRepo, store, idx, pipeline, runner, cfg.Upload.MaxFileSize)
	web := websearch.New(websearch.Config{
		SerpAPIKey: cfg.WebSearch.SerpAPIKey,
		BingKey:    cfg.WebSearch.BingKey,
		Timeout:    time.Duration(cfg.WebSearch.Timeout) * time.Second,
	})
	logger.Info("web search", zap.Bool("available", web.Available()), zap.String("engine", web.Engine()))
	retrieval := service.NewRetrievalService(idx, web, service.RetrievalConfig{
		Threshold:     *cfg.Retrieval.Threshold,
		ContextChunks: cfg.Retrieval.ContextChunks,
		WebResults:    cfg.Retrieval.WebResults,
	})
	chat := service.NewChatService(repo.NewChatSessionRepo(conn), repo.NewChatMessageRepo(conn), retrieval, manager)

	return &app{
		cfg:       cfg,
		db:        conn,
		runner:    runner,
		index:     idx,
		documents: documents,
		chat:      chat,
		docRepo:   docRepo,
		chunkRepo: chunkRepo,
		cacheRepo: cacheRepo,
	}, nil
}

func providerArgs(cfg *config.Config, name string) interface{} {
	if args, ok := cfg.AI.Providers[name]; ok {
		return args
	}
	return map[string]interface{}{}
}

// buildEmbedder returns the provider embedding chain: lru -> db cache -> provider, then the
// optional fallback provider. It errors when every provider fails so the index can switch to
// keyword search; the manager turns that error into the local hash embedding.
func buildEmbedder(cfg *config.Config, cacheRepo *repo.EmbeddingCacheRepo) ai.IEmbedder {
	if cfg.Embedding.Provider == "local" {
		return ai.NewHashEmbedder()
	}
	entries := []ai.EmbedderEntry{
		cachedEmbedder(cfg, cacheRepo, cfg.Embedding.Provider, cfg.Embedding.Model),
	}
	if fb := cfg.Embedding.FallbackProvider; fb != "" && fb != "local" {
		entries = append(entries, cachedEmbedder(cfg, cacheRepo, fb, cfg.Embedding.FallbackModel))
	}
	e := ai.NewGroupEmbedder(entries)
	if e == nil {
		return ai.NewHashEmbedder()
	}
	return e
}

func cachedEmbedder(cfg *config.Config, cacheRepo *repo.EmbeddingCacheRepo, provider, model string) ai.EmbedderEntry {
	p, err := ai.NewProvider(provider, providerArgs(cfg, provider))
	if err != nil {
		logutil.GetLogger(context.Background()).Warn("embedding provider unavailable",
			zap.String("provider", provider), zap.Error(err))
		return ai.EmbedderEntry{Name: provider}
	}
	e := ai.NewEmbedder(p, model)
	name := e.ModelName()
	if cfg.Embedding.DBCache {
		e = embedcache.WrapDBCacheToEmbedder(e, cacheRepo)
	}
	e = embedcache.WrapLruCacheToEmbedder(e, cfg.Embedding.LRUSize, time.Duration(cfg.Embedding.LRUTTLSeconds)*time.Second)
	return ai.EmbedderEntry{Name: name, Embedder: e}
}

func (a *app) Serve() error {
	cfg := a.cfg
	logger := logutil.GetLogger(context.Background())
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.index.Load(ctx); err != nil {
		logger.Error("initial index load failed", zap.Error(err))
	}

	scheduler := schedule.NewCronScheduler()
	jobs := []struct {
		job  schedule.Job
		spec string
	}{
		{job.NewIndexRefreshJob(a.index), cfg.Jobs.IndexRefresh},
		{job.NewStaleDocumentJob(a.docRepo, a.chunkRepo, a.index, time.Duration(cfg.Jobs.StaleAfterMinutes)*time.Minute), cfg.Jobs.StaleDocuments},
		{job.NewEmbeddingCacheCleanupJob(a.cacheRepo, cfg.Jobs.EmbeddingCacheKeepDays), cfg.Jobs.EmbeddingCacheCleanup},
	}
	for _, item := range jobs {
		if err := scheduler.AddJob(item.job, item.spec); err != nil {
			return err
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	deps := handler.RouterDeps{
		Documents:       handler.NewDocumentHandler(a.documents, cfg.Upload.MaxFileSize),
		Chat:            handler.NewChatHandler(a.chat),
		Health:          handler.NewHealthHandler(version, cfg.Env),
		ShowErrorDetail: !cfg.IsProduction(),
		RateLimitWindow: time.Duration(cfg.RateLimit.WindowSeconds) * time.Second,
		RateLimitMax:    cfg.RateLimit.MaxRequests,
	}
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logger.Info("http server listening", zap.String("addr", addr), zap.String("env", cfg.Env))

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("server stopping...")
	return nil
}

// Close drains background document tasks before the database goes away.
func (a *app) Close() {
	a.runner.Close(shutdownTimeout)
	if err := a.db.Close(); err != nil {
		logutil.GetLogger(context.Background()).Warn("close db failed", zap.Error(err))
	}
}
