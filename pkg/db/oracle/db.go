// Package oracle persists the oracle's entities to ClickHouse. Tables use
// ReplacingMergeTree keyed by entity id so replayed inserts and successive
// rollup versions collapse to the latest row; the scheduled compaction
// forces that collapse.
package oracle

import (
	"context"
	"fmt"

	"github.com/edgeandnode/qos-oracle/pkg/db/clickhouse"
	"github.com/edgeandnode/qos-oracle/pkg/utils"
	"go.uber.org/zap"
)

// DB is the oracle's ClickHouse database.
type DB struct {
	clickhouse.Client
	Name string
}

// New connects and bootstraps the oracle database and its tables.
func New(ctx context.Context, logger *zap.Logger) (*DB, error) {
	dbName := clickhouse.SanitizeName(utils.Env("ORACLE_DB", "qos_oracle"))

	client, err := clickhouse.New(ctx, logger.With(zap.String("db", dbName)), dbName)
	if err != nil {
		return nil, err
	}

	db := &DB{
		Client: client,
		Name:   dbName,
	}

	if err := db.InitializeDB(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// InitializeDB ensures the database and every entity table exists.
func (db *DB) InitializeDB(ctx context.Context) error {
	if err := db.CreateDbIfNotExists(ctx, db.Name); err != nil {
		return fmt.Errorf("failed to create database %s: %w", db.Name, err)
	}

	initOps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"oracle_messages", db.initOracleMessages},
		{"message_data_points", db.initMessageDataPoints},
		{"indexers", db.initIndexers},
		{"subgraph_deployments", db.initSubgraphDeployments},
		{"indexer_data_points", db.initIndexerDataPoints},
		{"query_data_points", db.initQueryDataPoints},
		{"indexer_daily_data_points", db.initIndexerDailyDataPoints},
		{"query_daily_data_points", db.initQueryDailyDataPoints},
	}

	for _, op := range initOps {
		if err := op.fn(ctx); err != nil {
			return fmt.Errorf("create %s: %w", op.name, err)
		}
	}

	db.Logger.Info("Oracle database initialized", zap.String("database", db.Name))
	return nil
}

// CompactRollups forces a merge of the rollup tables so superseded rollup
// versions are dropped and reads without FINAL see the latest state.
func (db *DB) CompactRollups(ctx context.Context) error {
	for _, table := range []string{"indexer_daily_data_points", "query_daily_data_points"} {
		query := fmt.Sprintf(`OPTIMIZE TABLE "%s"."%s" FINAL`, db.Name, table)
		if err := db.Exec(ctx, query); err != nil {
			return fmt.Errorf("compact %s: %w", table, err)
		}
		db.Logger.Info("Rollup table compacted", zap.String("table", table))
	}
	return nil
}
