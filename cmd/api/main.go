package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/signal-ai/backend/internal/ai"
	"github.com/signal-ai/backend/internal/api"
	"github.com/signal-ai/backend/internal/api/handlers"
	"github.com/signal-ai/backend/internal/cache/redis"
	"github.com/signal-ai/backend/internal/chat"
	"github.com/signal-ai/backend/internal/chat/session"
	"github.com/signal-ai/backend/internal/enrich"
	"github.com/signal-ai/backend/internal/metrics"
	"github.com/signal-ai/backend/internal/queue/kafka"
	"github.com/signal-ai/backend/internal/search"
	"github.com/signal-ai/backend/internal/storage/sqlite"
	"github.com/signal-ai/backend/internal/vector/milvus"
	"github.com/signal-ai/backend/pkg/config"
	"github.com/signal-ai/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	metrics.Init()

	store, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		logger.Fatal("Failed to open sqlite", zap.Error(err))
	}
	defer store.Close()

	if err := store.InitSchema(); err != nil {
		logger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	vectors, err := milvus.NewClient(cfg.Milvus.Endpoint, cfg.Milvus.APIKey, cfg.Milvus.CollectionName, cfg.Milvus.VectorDim)
	if err != nil {
		logger.Fatal("Failed to connect to milvus", zap.Error(err))
	}
	defer vectors.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := vectors.EnsureCollection(ctx); err != nil {
		cancel()
		logger.Fatal("Failed to ensure collection", zap.Error(err))
	}
	cancel()

	aiClient := ai.NewClient(
		cfg.AI.APIKey,
		cfg.AI.Model,
		cfg.AI.EmbeddingModel,
		cfg.AI.Temperature,
		cfg.AI.MaxTokens,
	)

	// Redis is optional; without it sessions stay in memory and
	// embeddings are regenerated on every call.
	var cache *redis.Client
	cache, err = redis.NewClient(
		fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		cfg.Redis.Password,
		cfg.Redis.DB,
	)
	if err != nil {
		logger.Warn("Redis unavailable, continuing without cache", zap.Error(err))
		cache = nil
	} else {
		defer cache.Close()
	}

	var sessions session.Store
	if cache != nil && cfg.Redis.Sessions {
		sessions = session.NewRedisStore(cache, cfg.Chat.MaxSessionTurns)
	} else {
		sessions = session.NewMemoryStore(cfg.Chat.MaxSessionTurns)
	}

	var publisher *kafka.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer publisher.Close()
	}

	var searcher *search.Client
	if cfg.Search.Enabled && cfg.Search.Endpoint != "" {
		searcher = search.NewClient(cfg.Search.Endpoint, cfg.Search.APIToken, cfg.Search.IndexName)
	}

	var embeddingCache enrich.EmbeddingCache
	if cache != nil {
		embeddingCache = cache
	}
	var queuePublisher enrich.Publisher
	if publisher != nil {
		queuePublisher = publisher
	}

	pipeline := enrich.NewPipeline(aiClient, store, vectors, queuePublisher, embeddingCache)

	var engineSearcher chat.Searcher
	if searcher != nil {
		engineSearcher = searcher
	}
	engine := chat.NewEngine(aiClient, vectors, store, engineSearcher, sessions, cfg.Chat.MaxSources, cfg.Chat.HistoryReplay)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(fiberlogger.New())

	api.SetupRoutes(app, api.Handlers{
		Feedback:  handlers.NewFeedbackHandler(pipeline, store, aiClient, vectors),
		Chat:      handlers.NewChatHandler(engine),
		Search:    handlers.NewSearchHandler(aiClient, vectors, store, engine),
		WebSocket: handlers.NewWebSocketHandler(engine),
	})

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		logger.Info("Server starting", zap.String("addr", addr))
		if err := app.Listen(addr); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
	}
}
