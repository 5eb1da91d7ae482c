package oracle

import (
	"context"
	"strconv"
	"time"

	"github.com/edgeandnode/qos-oracle/app/oracle/types"
	"github.com/edgeandnode/qos-oracle/pkg/config"
	oracledb "github.com/edgeandnode/qos-oracle/pkg/db/oracle"
	"github.com/edgeandnode/qos-oracle/pkg/entity"
	"github.com/edgeandnode/qos-oracle/pkg/ipfs"
	"github.com/edgeandnode/qos-oracle/pkg/logging"
	"github.com/edgeandnode/qos-oracle/pkg/oracle"
	"github.com/edgeandnode/qos-oracle/pkg/redis"
	"github.com/edgeandnode/qos-oracle/pkg/utils"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Initialize initializes the application.
func Initialize(ctx context.Context) *types.App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr'
		panic(err)
	}

	cfg := config.FromEnv()

	oracleDb, dbErr := oracledb.New(ctx, logger)
	if dbErr != nil {
		logger.Fatal("Unable to initialize oracle database", zap.Error(dbErr))
	}

	sink := oracledb.NewSink(logger, oracleDb)
	stores := sink.Stores(entity.NewMemoryStores())

	fetcher := ipfs.NewFromEnv()
	processor := oracle.NewProcessor(logger, cfg, stores, fetcher)

	redisClient, redisErr := redis.NewClient(ctx, logger)
	if redisErr != nil {
		logger.Fatal("Unable to initialize redis client", zap.Error(redisErr))
	}

	stream := utils.Env("QOS_STREAM", "qos:payloads")
	consumer, consumerErr := redis.NewStreamConsumer(redisClient, redis.StreamConsumerConfig{
		Stream:   stream,
		Group:    utils.Env("QOS_GROUP", "qos-oracle"),
		Consumer: utils.Env("QOS_CONSUMER", "oracle-1"),
		Logger:   logger,
	})
	if consumerErr != nil {
		logger.Fatal("Unable to initialize stream consumer", zap.Error(consumerErr))
	}

	app := &types.App{
		Logger:      logger,
		Config:      cfg,
		Stores:      stores,
		Processor:   processor,
		OracleDB:    oracleDb,
		Sink:        sink,
		RedisClient: redisClient,
		Stream:      stream,
		Consumer:    consumer,
		Intake:      handleSubmission(logger, processor),
	}

	if err := setupScheduler(ctx, app); err != nil {
		logger.Fatal("Unable to set up scheduler", zap.Error(err))
	}

	if err := NewServer(app); err != nil {
		logger.Fatal("Unable to set up server", zap.Error(err))
	}

	return app
}

// setupScheduler registers the flush, stats and compaction jobs.
func setupScheduler(ctx context.Context, app *types.App) error {
	c := cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cron.DefaultLogger)))

	flushSpec := utils.Env("FLUSH_CRON", "*/10 * * * * *")
	if _, err := c.AddFunc(flushSpec, func() {
		// keep each run bounded
		fctx, cancel := context.WithTimeout(ctx, 25*time.Second)
		defer cancel()
		if err := app.Sink.Flush(fctx); err != nil {
			app.Logger.Error("Scheduled flush failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	if _, err := c.AddFunc("0 * * * * *", func() {
		app.Processor.Stats().Report(app.Logger)
	}); err != nil {
		return err
	}

	compactSpec := utils.Env("COMPACTION_CRON", "0 0 * * * *")
	if _, err := c.AddFunc(compactSpec, func() {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()
		if err := app.OracleDB.CompactRollups(cctx); err != nil {
			app.Logger.Error("Scheduled compaction failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	app.Cron = c
	return nil
}

// handleSubmission turns a stream entry into a Submission and processes it.
// Malformed entries are acknowledged and dropped; redelivering them would
// loop forever without ever folding anything in.
func handleSubmission(logger *zap.Logger, processor *oracle.Processor) redis.MessageHandler {
	return func(ctx context.Context, msg redis.Message) error {
		txHash := stringField(msg.Values, "tx_hash")
		payload := stringField(msg.Values, "payload")
		if txHash == "" || payload == "" {
			logger.Warn("Dropping malformed stream entry", zap.String("id", msg.ID))
			return nil
		}

		ts, _ := strconv.ParseInt(stringField(msg.Values, "timestamp"), 10, 64)
		block, _ := strconv.ParseUint(stringField(msg.Values, "block"), 10, 64)

		return processor.ProcessSubmission(ctx, oracle.Submission{
			ID:        txHash,
			Payload:   []byte(payload),
			Submitter: stringField(msg.Values, "submitter"),
			Timestamp: ts,
			Block:     block,
		})
	}
}

func stringField(values map[string]interface{}, key string) string {
	if v, ok := values[key].(string); ok {
		return v
	}
	return ""
}
