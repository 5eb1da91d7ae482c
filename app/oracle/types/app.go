package types

import (
	"context"
	"net/http"
	"time"

	"github.com/edgeandnode/qos-oracle/pkg/config"
	oracledb "github.com/edgeandnode/qos-oracle/pkg/db/oracle"
	"github.com/edgeandnode/qos-oracle/pkg/entity"
	"github.com/edgeandnode/qos-oracle/pkg/oracle"
	"github.com/edgeandnode/qos-oracle/pkg/redis"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type App struct {
	// Zap Logger
	Logger *zap.Logger

	// Config holds the topic and submitter allow-lists.
	Config config.Config

	// Stores are the write-through entity stores the pipeline reads and
	// writes. Reads hit memory; saves also land in the sink's buffers.
	Stores *entity.Stores

	// Processor folds submissions into the stores.
	Processor *oracle.Processor

	// OracleDB is the ClickHouse database behind the sink.
	OracleDB *oracledb.DB

	// Sink batches entity saves into ClickHouse inserts.
	Sink *oracledb.Sink

	// RedisClient backs the submissions stream.
	RedisClient *redis.Client

	// Stream is the Redis stream submissions arrive on.
	Stream string

	// Consumer reads the submissions stream, one entry at a time.
	Consumer *redis.StreamConsumer

	// Intake translates stream entries into submissions for the processor.
	Intake redis.MessageHandler

	// Cron drives the flush, stats report and compaction schedules.
	Cron *cron.Cron

	// Server represents the HTTP server instance used to handle incoming client requests and manage HTTP routes.
	Server *http.Server
}

// Start starts the application and blocks until the context is canceled.
func (a *App) Start(ctx context.Context) {
	a.Cron.Start()
	go func() { _ = a.Server.ListenAndServe() }()
	go func() { _ = a.Consumer.Run(ctx, a.Intake) }()

	<-ctx.Done()
	a.Stop()
}

// Stop drains what is in flight and shuts everything down.
func (a *App) Stop() {
	<-a.Cron.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// One last flush so entities saved since the previous tick survive.
	if err := a.Sink.Flush(shutdownCtx); err != nil {
		a.Logger.Error("Final flush failed", zap.Error(err))
	}

	if err := a.OracleDB.Close(); err != nil {
		a.Logger.Error("Failed to close database connection", zap.Error(err))
	}
	if err := a.RedisClient.Close(); err != nil {
		a.Logger.Error("Failed to close redis connection", zap.Error(err))
	}

	_ = a.Server.Shutdown(shutdownCtx)
	time.Sleep(200 * time.Millisecond)
	a.Logger.Info("さようなら!")
}
