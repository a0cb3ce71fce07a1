package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/milvus-io/milvus/client/v2/milvusclient"
	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"docqa/internal/ai"
	"docqa/internal/app"
	"docqa/internal/cache"
	"docqa/internal/config"
	"docqa/internal/metrics"
	"docqa/internal/model"
	"docqa/internal/objectstore"
	"docqa/internal/platform/logger"
	milvusClient "docqa/internal/platform/milvus"
	mysqlClient "docqa/internal/platform/mysql"
	rabbitmqClient "docqa/internal/platform/rabbitmq"
	redisClient "docqa/internal/platform/redis"
	"docqa/internal/rag"
	"docqa/internal/repository"
	"docqa/internal/vectorstore/memstore"
	"docqa/internal/vectorstore/milvusstore"
	"docqa/internal/vectorstore/sqlstore"
	"docqa/internal/worker"
)

// VectorBackend is a vector store the health check can probe.
type VectorBackend interface {
	app.VectorStore
	Ping(ctx context.Context) error
}

type Options struct {
	// StartWorker consumes the ingest queue in this process.
	StartWorker bool
}

type App struct {
	Config *config.Config
	Logger *zap.Logger

	MySQL  *gorm.DB
	Redis  *redis.Client
	MQConn *amqp.Connection
	Milvus *milvusclient.Client

	VectorStore VectorBackend
	Registry    *prometheus.Registry
	Limiter     *cache.RateLimiter

	Auth         *app.AuthService
	Tenants      *app.TenantService
	RAG          *app.RAGService
	IngestWorker *worker.IngestWorker

	StartedAt time.Time
}

func New(ctx context.Context, opts Options) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	log, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: log, StartedAt: time.Now()}
	if err := a.init(ctx, opts); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context, opts Options) error {
	cfg := a.Config

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN(), mysqlClient.DefaultPool())
	if err != nil {
		return err
	}
	a.MySQL = mysqlDB
	if err := mysqlDB.WithContext(ctx).AutoMigrate(&model.User{}, &model.Document{}); err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}

	redisCli, err := redisClient.New(ctx, redisClient.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return err
	}
	a.Redis = redisCli
	a.Limiter = cache.NewRateLimiter(redisCli)

	if a.VectorStore, err = a.openVectorStore(ctx); err != nil {
		return err
	}

	objects, err := objectstore.NewLocal(cfg.Storage.RootDir)
	if err != nil {
		return err
	}

	var publisher app.JobPublisher
	if cfg.RabbitMQ.URL != "" {
		mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			return err
		}
		a.MQConn = mqConn
		publisher = rabbitmqClient.NewIngestPublisher(mqConn, cfg.RabbitMQ.IngestQueue)
	}

	registry, ragMetrics := metrics.NewRegistry()
	a.Registry = registry

	llmClient := ai.NewOpenAICompatibleClient(ai.ClientConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Timeout: cfg.LLMTimeout(),
	})

	userRepo := repository.NewUserRepository(mysqlDB)
	a.Auth = app.NewAuthService(userRepo, cfg.Auth.JWTSecret, time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute)
	a.Tenants = app.NewTenantService(userRepo, cfg.RAG.DefaultSystemPrompt, cfg.RAG.MaxSystemPromptLength)

	a.RAG, err = app.NewRAGService(app.RAGDeps{
		Chunker: rag.NewChunker(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap),
		Embedder: ai.NewEmbedder(llmClient, ai.EmbeddingConfig{
			Model:      cfg.LLM.EmbeddingModel,
			Dimension:  cfg.LLM.EmbeddingDimension,
			RatePerSec: cfg.LLM.EmbeddingRatePerSec,
			Burst:      cfg.LLM.EmbeddingRateBurst,
		}),
		Store: a.VectorStore,
		Cache: cache.NewAnswerCache(redisCli),
		Generator: ai.NewGenerator(llmClient, ai.GeneratorConfig{
			Model:      cfg.LLM.Model,
			MaxRetries: cfg.LLM.MaxRetries,
		}),
		Documents: repository.NewDocumentRepository(mysqlDB),
		Objects:   objects,
		Publisher: publisher,
		Prompts:   a.Tenants,
		Metrics:   ragMetrics,
		Logger:    a.Logger,
	}, app.RAGOptions{
		Defaults: rag.AskSettings{
			SystemPrompt: cfg.RAG.DefaultSystemPrompt,
			TopK:         cfg.RAG.TopK,
			MaxTokens:    cfg.LLM.MaxResponseTokens,
		},
		CacheTTL:              cfg.CacheTTL(),
		MaxQueryLength:        cfg.RAG.MaxQueryLength,
		MaxSystemPromptLength: cfg.RAG.MaxSystemPromptLength,
		EmbedBatchSize:        cfg.RAG.EmbedBatchSize,
		EmbedConcurrency:      cfg.RAG.EmbedConcurrency,
		AskTimeout:            cfg.RequestTimeout(),
	})
	if err != nil {
		return err
	}

	if opts.StartWorker && a.MQConn != nil {
		a.IngestWorker = worker.NewIngestWorker(a.MQConn, a.RAG, cfg.RabbitMQ.IngestQueue, 5*cfg.RequestTimeout(), a.Logger)
		if err := a.IngestWorker.Start(ctx); err != nil {
			return fmt.Errorf("start ingest worker failed: %w", err)
		}
	}

	a.Logger.Info("application initialized",
		zap.String("env", cfg.App.Env),
		zap.String("vector_backend", cfg.VectorStore.Backend),
		zap.Bool("ingest_worker", a.IngestWorker != nil))
	return nil
}

func (a *App) openVectorStore(ctx context.Context) (VectorBackend, error) {
	cfg := a.Config
	dim := cfg.LLM.EmbeddingDimension

	switch cfg.VectorStore.Backend {
	case config.VectorBackendMySQL:
		store := sqlstore.New(a.MySQL, dim)
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case config.VectorBackendMilvus:
		client, err := milvusClient.New(ctx, milvusClient.Options{
			Address:  cfg.VectorStore.MilvusAddress,
			Username: cfg.VectorStore.MilvusUsername,
			Password: cfg.VectorStore.MilvusPassword,
			DBName:   cfg.VectorStore.MilvusDBName,
		})
		if err != nil {
			return nil, err
		}
		a.Milvus = client
		store := milvusstore.New(client, cfg.VectorStore.MilvusCollection, dim, a.Logger)
		if err := store.EnsureCollection(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case config.VectorBackendMemory:
		a.Logger.Warn("using in-memory vector store, the index is lost on restart")
		return memstore.New(dim), nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.VectorStore.Backend)
	}
}

func (a *App) Close() error {
	var errs []error
	if a.IngestWorker != nil {
		a.IngestWorker.Close()
	}
	if a.RAG != nil {
		a.RAG.Close()
	}
	if a.MQConn != nil && !a.MQConn.IsClosed() {
		if err := a.MQConn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close rabbitmq failed: %w", err))
		}
	}
	if a.Milvus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := a.Milvus.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close milvus failed: %w", err))
		}
		cancel()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis failed: %w", err))
		}
	}
	if a.MySQL != nil {
		if sqlDB, err := a.MySQL.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close mysql failed: %w", err))
			}
		}
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return errors.Join(errs...)
}
