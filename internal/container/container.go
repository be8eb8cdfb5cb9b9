// Package container wires every collaborator package behind go.uber.org/dig,
// grounded on the teacher's internal/container package: one BuildContainer
// entry point, a handful of init* provider functions, "must" panicking on
// a wiring error since misconfiguration should fail fast at startup.
package container

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/dig"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/wekui/ragcore/internal/agent"
	"github.com/wekui/ragcore/internal/bm25"
	"github.com/wekui/ragcore/internal/cache"
	"github.com/wekui/ragcore/internal/common"
	"github.com/wekui/ragcore/internal/config"
	"github.com/wekui/ragcore/internal/core"
	"github.com/wekui/ragcore/internal/embeddingclient"
	"github.com/wekui/ragcore/internal/kvstore"
	"github.com/wekui/ragcore/internal/llmclient"
	"github.com/wekui/ragcore/internal/logger"
	"github.com/wekui/ragcore/internal/rerank"
	"github.com/wekui/ragcore/internal/retrieval"
	"github.com/wekui/ragcore/internal/tracing"
	"github.com/wekui/ragcore/internal/vectorstore"
)

// BuildContainer constructs the dependency injection container, registering
// every collaborator the RetrievalPipeline and AgentSession depend on.
func BuildContainer(container *dig.Container) *dig.Container {
	must(container.Provide(NewResourceCleaner, dig.As(new(core.ResourceCleaner))))

	must(container.Provide(config.LoadConfig))
	must(container.Provide(initTracer))
	must(container.Provide(initDatabase))
	must(container.Provide(initAntsPool))
	must(container.Invoke(registerPoolCleanup))

	must(container.Provide(initEmbedder))
	must(container.Provide(initChatModel))
	must(container.Provide(initVectorStore))
	must(container.Provide(initKVStore))
	must(container.Provide(initCache))
	must(container.Provide(initBM25Index))
	must(container.Invoke(registerBM25Scheduler))
	must(container.Provide(initReranker))
	must(container.Provide(initPipeline))
	must(container.Provide(initToolRegistry))

	return container
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func initTracer() (*tracing.Tracer, error) {
	return tracing.InitTracer()
}

// initDatabase connects to Postgres and migrates the chunk table the
// vector store persists, grounded on the teacher's own initDatabase.
func initDatabase(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		os.Getenv("DB_HOST"), os.Getenv("DB_PORT"), os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"), os.Getenv("DB_NAME"), "disable",
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(10 * time.Minute)
	return db, nil
}

func initAntsPool(cfg *config.Config) (*ants.Pool, error) {
	poolSize := cfg.BM25.IndexWorkerPool
	if poolSize <= 0 {
		poolSize = 5
	}
	return ants.NewPool(poolSize, ants.WithPreAlloc(true))
}

func registerPoolCleanup(pool *ants.Pool, cleaner core.ResourceCleaner) {
	cleaner.RegisterWithName("AntsPool", func() error {
		pool.Release()
		return nil
	})
}

// modelConfig looks up one configured model by its role (embedding/chat),
// grounded on the teacher's ModelService lookups by model type.
func modelConfig(cfg *config.Config, modelType string) (*config.ModelConfig, error) {
	for i := range cfg.Models {
		if cfg.Models[i].Type == modelType {
			return &cfg.Models[i], nil
		}
	}
	return nil, fmt.Errorf("container: no %s model configured", modelType)
}

func initEmbedder(cfg *config.Config, pool *ants.Pool) (embeddingclient.Embedder, error) {
	m, err := modelConfig(cfg, "embedding")
	if err != nil {
		return nil, err
	}
	embedPool := embeddingclient.NewPool(pool, 64)
	return embeddingclient.New(embeddingclient.Config{
		Source:     embeddingclient.Source(m.Source),
		BaseURL:    m.BaseURL,
		ModelName:  m.ModelName,
		APIKey:     m.APIKey,
		Dimensions: m.Dimensions,
		ModelID:    m.ModelID,
	}, embedPool)
}

func initChatModel(cfg *config.Config) (llmclient.Chat, error) {
	m, err := modelConfig(cfg, "chat")
	if err != nil {
		return nil, err
	}
	return llmclient.New(llmclient.Config{
		Source:    llmclient.Source(m.Source),
		BaseURL:   m.BaseURL,
		ModelName: m.ModelName,
		APIKey:    m.APIKey,
		ModelID:   m.ModelID,
	})
}

func initVectorStore(db *gorm.DB) vectorstore.VectorStore {
	return vectorstore.NewPGVectorStore(db)
}

// initKVStore wires the cache's shared tier to Redis, falling back to nil
// (local-only degraded mode) when no address is configured — the teacher's
// stream package offers the same memory/Redis choice for its manager.
func initKVStore(cfg *config.Config) (kvstore.DurableKVStore, error) {
	if cfg.Cache.Redis.Address == "" {
		logger.GetLogger(context.Background()).Warnf("container: no redis address configured, cache running local-tier-only")
		return nil, nil
	}
	return kvstore.NewRedisStore(cfg.Cache.Redis.Address, cfg.Cache.Redis.Password, cfg.Cache.Redis.DB, cfg.Cache.Redis.Prefix)
}

func initCache(shared kvstore.DurableKVStore, cfg *config.Config) *cache.Cache {
	return cache.New(shared, cache.Config{
		LocalCapacity: cfg.Cache.LocalCapacity,
		LocalTTL:      cfg.Cache.LocalTTL,
		SharedTTL:     cfg.Cache.SharedTTL,
	})
}

func initBM25Index(store vectorstore.VectorStore, pool *ants.Pool) (*bm25.Index, error) {
	idx := bm25.New(store, pool)
	if err := idx.Initialize(context.Background()); err != nil {
		return nil, fmt.Errorf("container: bm25 initialize: %w", err)
	}
	return idx, nil
}

// registerBM25Scheduler registers BM25's periodic refresh/rebuild
// handlers on the shared asyncq server the teacher's internal/common
// package starts, then enqueues the first round of each. Handlers must
// be registered before InitAsyncq starts the server's mux.
func registerBM25Scheduler(idx *bm25.Index, cfg *config.Config) error {
	refreshEvery := cfg.BM25.RefreshInterval
	sweepEvery := cfg.BM25.FullRebuildPeriod

	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr: cfg.Asynq.Addr, Username: cfg.Asynq.Username, Password: cfg.Asynq.Password,
	})
	common.RegisterHandlerFunc(bm25.TypeRefresh, idx.RefreshHandler(client, refreshEvery))
	common.RegisterHandlerFunc(bm25.TypeRebuildSweep, idx.RebuildSweepHandler(client, sweepEvery))

	if err := common.InitAsyncq(cfg); err != nil {
		return fmt.Errorf("container: init asyncq: %w", err)
	}
	return bm25.EnqueueInitial(context.Background(), client, refreshEvery, sweepEvery)
}

func initReranker(chat llmclient.Chat) rerank.Reranker {
	return rerank.New(chat)
}

func initPipeline(c *cache.Cache, embedder embeddingclient.Embedder, store vectorstore.VectorStore,
	idx *bm25.Index, reranker rerank.Reranker, chat llmclient.Chat, cfg *config.Config,
) *retrieval.Pipeline {
	return retrieval.New(c, embedder, store, idx, reranker, chat, retrieval.Config{
		DefaultTopK:        cfg.Retrieval.DefaultTopK,
		DefaultRerankTopK:  cfg.Retrieval.DefaultRerankTopK,
		MinFanoutK:         cfg.Retrieval.MinFanoutK,
		RRFConstant:        cfg.Retrieval.RRFConstant,
		HyDEPrompt:         cfg.Retrieval.HyDEPrompt,
		AnswerPromptSystem: cfg.Retrieval.AnswerPromptSystem,
		AnswerPromptUser:   cfg.Retrieval.AnswerPromptUser,
		NoMatchAnswer:      cfg.Retrieval.NoMatchAnswer,
		MergeExcerpts:      cfg.Retrieval.MergeExcerpts,
	})
}

// initToolRegistry returns an empty registry; concrete tools (e.g. a
// passthrough to the retrieval pipeline itself) are registered by the
// caller once it knows which tools a given deployment exposes.
func initToolRegistry() *agent.Registry {
	return agent.NewRegistry()
}
