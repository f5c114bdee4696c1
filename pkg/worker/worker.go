package worker

import (
	"context"

	"github.com/hibiken/asynq"

	"github.com/docuchat/docuchat/pkg/logger"
)

// Worker consumes background jobs until stopped.
type Worker interface {
	Start(ctx context.Context) error
	Stop() error
}

// Config defines worker configuration
type Config struct {
	RedisAddr   string
	RedisDB     int
	Concurrency int
	Queues      map[string]int
}

type BaseWorker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger logger.Logger
}

func (w *BaseWorker) Stop() error {
	w.server.Stop()
	w.server.Shutdown()
	return nil
}
