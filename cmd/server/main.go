package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/docuchat/docuchat/api/handlers"
	"github.com/docuchat/docuchat/api/routes"
	"github.com/docuchat/docuchat/config"
	"github.com/docuchat/docuchat/internal/cache"
	"github.com/docuchat/docuchat/internal/history"
	"github.com/docuchat/docuchat/internal/index"
	"github.com/docuchat/docuchat/internal/llm"
	"github.com/docuchat/docuchat/internal/registry"
	"github.com/docuchat/docuchat/internal/service/chat"
	"github.com/docuchat/docuchat/internal/service/document"
	"github.com/docuchat/docuchat/internal/vectorstore/qdrant"
	"github.com/docuchat/docuchat/pkg/logger"
	"github.com/docuchat/docuchat/pkg/queue"
	"github.com/docuchat/docuchat/pkg/storage"
)

func main() {
	cfg := config.Get()

	log, err := logger.NewLogger(
		logger.WithLevel("info"),
		logger.WithEncoding("json"),
		logger.WithOutputPaths([]string{"stdout", "logs/app.log"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	store, err := storage.NewStorage(cfg.Storage, log)
	if err != nil {
		log.Fatal("Failed to init storage", logger.Error(err))
	}

	files, err := registry.NewFileMap(cfg.Storage.MapPath, store)
	if err != nil {
		log.Fatal("Failed to load file map", logger.Error(err))
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})
	states := registry.NewStateStore(redisClient)
	histStore := history.NewRedisStore(redisClient)

	taskQueue, err := queue.NewAsynqQueue(&queue.Config{
		RedisAddr: cfg.Redis.Addr,
		RedisDB:   cfg.Redis.DB,
	})
	if err != nil {
		log.Fatal("Failed to init task queue", logger.Error(err))
	}
	defer taskQueue.Close()

	vectors := qdrant.NewIndex(cfg.Qdrant)
	embedder := llm.NewOpenAIEmbedder(cfg.LLM)
	generator := llm.NewOpenAIGenerator(cfg.LLM)
	splitter := index.NewSplitter(cfg.LLM.MaxPassageLen, 1)
	pipeline := index.NewPipeline(store, embedder, vectors, splitter, log)
	chainCache := cache.New()

	docService := document.NewService(files, states, store, taskQueue, pipeline, vectors, chainCache, histStore, log)
	engine := chat.NewEngine(chainCache, pipeline, embedder, generator, histStore, log, cfg.LLM.TopK)

	probes := map[string]handlers.Pinger{
		"redis":  histStore,
		"qdrant": vectors,
	}

	h := handlers.NewHandlers(docService, engine, probes, log, cfg.Server.MaxUploadSize, cfg.Server.ActivateOnUpload)
	r := gin.New()
	r.Use(gin.Recovery())
	routes.SetupRoutes(r, h)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	go func() {
		log.Info("Server starting", logger.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}
}
