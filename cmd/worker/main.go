package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/docuchat/docuchat/config"
	"github.com/docuchat/docuchat/internal/cache"
	"github.com/docuchat/docuchat/internal/history"
	"github.com/docuchat/docuchat/internal/index"
	"github.com/docuchat/docuchat/internal/llm"
	"github.com/docuchat/docuchat/internal/registry"
	"github.com/docuchat/docuchat/internal/service/document"
	"github.com/docuchat/docuchat/internal/vectorstore/qdrant"
	"github.com/docuchat/docuchat/pkg/logger"
	"github.com/docuchat/docuchat/pkg/queue"
	"github.com/docuchat/docuchat/pkg/storage"
	"github.com/docuchat/docuchat/pkg/worker"
)

func main() {
	cfg := config.Get()

	log, err := logger.NewLogger(
		logger.WithLevel("info"),
		logger.WithEncoding("json"),
		logger.WithOutputPaths([]string{"stdout", "logs/worker.log"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	store, err := storage.NewStorage(cfg.Storage, log)
	if err != nil {
		log.Error("Failed to init storage", logger.Error(err))
		os.Exit(1)
	}

	files, err := registry.NewFileMap(cfg.Storage.MapPath, store)
	if err != nil {
		log.Error("Failed to load file map", logger.Error(err))
		os.Exit(1)
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
		log.Error("Failed to init task queue", logger.Error(err))
		os.Exit(1)
	}
	defer taskQueue.Close()

	vectors := qdrant.NewIndex(cfg.Qdrant)
	embedder := llm.NewOpenAIEmbedder(cfg.LLM)
	splitter := index.NewSplitter(cfg.LLM.MaxPassageLen, 1)
	pipeline := index.NewPipeline(store, embedder, vectors, splitter, log)

	docService := document.NewService(files, states, store, taskQueue, pipeline, vectors, cache.New(), histStore, log)

	workerCfg := &worker.Config{
		RedisAddr:   cfg.Redis.Addr,
		RedisDB:     cfg.Redis.DB,
		Concurrency: cfg.Worker.Concurrency,
		Queues:      cfg.Worker.Queues,
	}

	indexWorker, err := worker.NewIndexWorker(workerCfg, docService, log)
	if err != nil {
		log.Error("Failed to create index worker", logger.Error(err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := indexWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down worker...")
	indexWorker.Stop()
	log.Info("Worker stopped")
}
