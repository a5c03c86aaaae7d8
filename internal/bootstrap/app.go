package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"kbassist/internal/ai"
	appsvc "kbassist/internal/app"
	"kbassist/internal/cache"
	"kbassist/internal/config"
	"kbassist/internal/logging"
	mysqlClient "kbassist/internal/platform/mysql"
	rabbitmqClient "kbassist/internal/platform/rabbitmq"
	redisClient "kbassist/internal/platform/redis"
	"kbassist/internal/repository"
	"kbassist/internal/storage"
	"kbassist/internal/worker"
)

// Services are the application services the HTTP layer and workers share.
type Services struct {
	Auth      *appsvc.AuthService
	Knowledge *appsvc.KnowledgeService
	Documents *appsvc.DocumentService
	Chat      *appsvc.ChatService
	TagSearch *appsvc.TagSearchService
}

type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	MySQL    *gorm.DB
	Redis    *redis.Client
	MQConn   *amqp.Connection
	Store    storage.Store
	Services Services

	workers   []*worker.QueueWorker
	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger failed: %w", err)
	}

	app := &App{Config: cfg, Logger: logger, StartedAt: time.Now()}
	if err := app.connect(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	app.buildServices()
	if err := app.startWorkers(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN(), a.Logger)
	if err != nil {
		return err
	}
	a.MySQL = mysqlDB

	redisCli, err := redisClient.New(ctx, cfg.Redis, a.Logger)
	if err != nil {
		return err
	}
	a.Redis = redisCli

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL,
		cfg.RabbitMQ.MessagePersistQueue,
		cfg.RabbitMQ.DocumentIngestQueue,
	)
	if err != nil {
		return err
	}
	a.MQConn = mqConn

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	a.Store = store
	return nil
}

func (a *App) buildServices() {
	cfg := a.Config

	userRepo := repository.NewUserRepository(a.MySQL)
	kbRepo := repository.NewKnowledgeBaseRepository(a.MySQL)
	docRepo := repository.NewDocumentRepository(a.MySQL)
	chunkRepo := repository.NewChunkRepository(a.MySQL)
	sessionRepo := repository.NewChatSessionRepository(a.MySQL)
	messageRepo := repository.NewChatMessageRepository(a.MySQL)

	llm := ai.NewOpenAICompatibleClient(ai.Config{
		BaseURL:        cfg.LLM.BaseURL,
		APIKey:         cfg.LLM.APIKey,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
	}, &http.Client{Timeout: 60 * time.Second})
	embedder := ai.WrapLRU(llm,
		cfg.LLM.EmbeddingCacheSize,
		time.Duration(cfg.LLM.EmbeddingCacheTTL)*time.Second,
		a.Logger.Named("embedding"),
	)

	historyCache := cache.NewHistoryCache(a.Redis,
		time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)
	ingestPublisher := rabbitmqClient.NewJSONPublisher(a.MQConn, cfg.RabbitMQ.DocumentIngestQueue)
	messagePublisher := rabbitmqClient.NewJSONPublisher(a.MQConn, cfg.RabbitMQ.MessagePersistQueue)

	knowledge := appsvc.NewKnowledgeService(kbRepo, docRepo, chunkRepo, a.Store, cfg.LLM.EmbeddingModel, a.Logger.Named("knowledge"))
	documents := appsvc.NewDocumentService(knowledge, docRepo, chunkRepo, a.Store, embedder, ingestPublisher,
		appsvc.DocumentServiceOptions{
			ChunkSize:      cfg.RAG.ChunkSize,
			ChunkOverlap:   cfg.RAG.ChunkOverlap,
			MaxUploadBytes: int64(cfg.Storage.MaxUploadMB) << 20,
		},
		a.Logger.Named("documents"),
	)

	chat := appsvc.NewChatService(sessionRepo, messageRepo, kbRepo, chunkRepo, documents, messagePublisher,
		historyCache, llm, embedder,
		appsvc.ChatOptions{
			HistoryTurns: cfg.RAG.HistoryTurns,
			TopK:         cfg.RAG.TopK,
			SnippetRunes: cfg.RAG.SnippetRunes,
		},
		a.Logger.Named("chat"),
	)
	// sessions go before knowledge bases when an account is deleted
	auth := appsvc.NewAuthService(userRepo, cfg.Auth.JWTSecret, cfg.JWTExpiration(), cfg.LLM.EmbeddingModel, chat, knowledge)
	a.Services = Services{
		Auth:      auth,
		Knowledge: knowledge,
		Documents: documents,
		Chat:      chat,
		TagSearch: appsvc.NewTagSearchService(kbRepo, chunkRepo, llm, a.Logger.Named("tag-search")),
	}

	a.workers = []*worker.QueueWorker{
		worker.NewQueueWorker(a.MQConn, cfg.RabbitMQ.MessagePersistQueue,
			worker.PersistMessages(messageRepo), a.Logger.Named("message-worker")),
		worker.NewQueueWorker(a.MQConn, cfg.RabbitMQ.DocumentIngestQueue,
			worker.IngestDocuments(documents), a.Logger.Named("ingest-worker")),
	}
}

func (a *App) startWorkers(ctx context.Context) error {
	for _, w := range a.workers {
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("start worker failed: %w", err)
		}
	}
	return nil
}

func (a *App) Close() error {
	var closeErr error
	for _, w := range a.workers {
		w.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return closeErr
}
