package oracle

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/edgeandnode/qos-oracle/pkg/entity"
)

// Rollup rows are re-inserted on every merge; ReplacingMergeTree keyed on the
// rollup id with data_point_count as the version column keeps the latest
// merge state after compaction, since the count grows monotonically.

func (db *DB) initIndexerDailyDataPoints(ctx context.Context) error {
	query := fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS "%s".indexer_daily_data_points (
			id String CODEC(ZSTD(1)),
			day_start Int64 CODEC(DoubleDelta, LZ4),
			day_end Int64 CODEC(DoubleDelta, LZ4),
			day_number Int64 CODEC(DoubleDelta, LZ4),
			indexer String CODEC(ZSTD(1)),
			deployment String CODEC(ZSTD(1)),
			data_point_count Int64,
			indexer_url String CODEC(ZSTD(1)),
			indexer_wallet String CODEC(ZSTD(1)),
			subgraph_deployment_ipfs_hash String CODEC(ZSTD(1)),
			query_count String,
			start_epoch String,
			end_epoch String,
			avg_indexer_blocks_behind String,
			avg_indexer_latency_ms String,
			avg_query_fee String,
			max_indexer_blocks_behind String,
			max_indexer_latency_ms String,
			max_query_fee String,
			num_indexer_200_responses String,
			proportion_indexer_200_responses String,
			total_query_fees String
		) ENGINE = ReplacingMergeTree(data_point_count)
		ORDER BY id
	`, db.Name)
	return db.Exec(ctx, query)
}

// InsertIndexerDailyDataPoints writes the current state of a set of
// (indexer, deployment, day) rollups.
func (db *DB) InsertIndexerDailyDataPoints(ctx context.Context, rollups []*entity.IndexerDailyDataPoint) error {
	if len(rollups) == 0 {
		return nil
	}

	query := fmt.Sprintf(
		`INSERT INTO "%s".indexer_daily_data_points (id, day_start, day_end, day_number, indexer, deployment, data_point_count, indexer_url, indexer_wallet, subgraph_deployment_ipfs_hash, query_count, start_epoch, end_epoch, avg_indexer_blocks_behind, avg_indexer_latency_ms, avg_query_fee, max_indexer_blocks_behind, max_indexer_latency_ms, max_query_fee, num_indexer_200_responses, proportion_indexer_200_responses, total_query_fees) VALUES`,
		db.Name,
	)
	batch, err := db.PrepareBatch(ctx, query)
	if err != nil {
		return err
	}
	defer func(batch driver.Batch) {
		_ = batch.Abort()
	}(batch)

	for _, r := range rollups {
		err = batch.Append(
			r.ID,
			r.DayStart,
			r.DayEnd,
			r.DayNumber,
			r.Indexer,
			r.Deployment,
			r.DataPointCount,
			r.IndexerURL,
			r.IndexerWallet,
			r.SubgraphDeploymentIPFSHash,
			r.QueryCount.String(),
			r.StartEpoch.String(),
			r.EndEpoch.String(),
			r.AvgIndexerBlocksBehind.String(),
			r.AvgIndexerLatencyMs.String(),
			r.AvgQueryFee.String(),
			r.MaxIndexerBlocksBehind.String(),
			r.MaxIndexerLatencyMs.String(),
			r.MaxQueryFee.String(),
			r.NumIndexer200Responses.String(),
			r.ProportionIndexer200Responses.String(),
			r.TotalQueryFees.String(),
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}

func (db *DB) initQueryDailyDataPoints(ctx context.Context) error {
	query := fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS "%s".query_daily_data_points (
			id String CODEC(ZSTD(1)),
			day_start Int64 CODEC(DoubleDelta, LZ4),
			day_end Int64 CODEC(DoubleDelta, LZ4),
			day_number Int64 CODEC(DoubleDelta, LZ4),
			deployment String CODEC(ZSTD(1)),
			data_point_count Int64,
			subgraph_deployment_ipfs_hash String CODEC(ZSTD(1)),
			query_count String,
			start_epoch String,
			end_epoch String,
			avg_gateway_latency_ms String,
			avg_query_fee String,
			gateway_query_success_rate String,
			max_gateway_latency_ms String,
			max_query_fee String,
			most_recent_query_ts String,
			total_query_fees String,
			user_attributed_error_rate String
		) ENGINE = ReplacingMergeTree(data_point_count)
		ORDER BY id
	`, db.Name)
	return db.Exec(ctx, query)
}

// InsertQueryDailyDataPoints writes the current state of a set of
// (deployment, day) rollups.
func (db *DB) InsertQueryDailyDataPoints(ctx context.Context, rollups []*entity.QueryDailyDataPoint) error {
	if len(rollups) == 0 {
		return nil
	}

	query := fmt.Sprintf(
		`INSERT INTO "%s".query_daily_data_points (id, day_start, day_end, day_number, deployment, data_point_count, subgraph_deployment_ipfs_hash, query_count, start_epoch, end_epoch, avg_gateway_latency_ms, avg_query_fee, gateway_query_success_rate, max_gateway_latency_ms, max_query_fee, most_recent_query_ts, total_query_fees, user_attributed_error_rate) VALUES`,
		db.Name,
	)
	batch, err := db.PrepareBatch(ctx, query)
	if err != nil {
		return err
	}
	defer func(batch driver.Batch) {
		_ = batch.Abort()
	}(batch)

	for _, r := range rollups {
		err = batch.Append(
			r.ID,
			r.DayStart,
			r.DayEnd,
			r.DayNumber,
			r.Deployment,
			r.DataPointCount,
			r.SubgraphDeploymentIPFSHash,
			r.QueryCount.String(),
			r.StartEpoch.String(),
			r.EndEpoch.String(),
			r.AvgGatewayLatencyMs.String(),
			r.AvgQueryFee.String(),
			r.GatewayQuerySuccessRate.String(),
			r.MaxGatewayLatencyMs.String(),
			r.MaxQueryFee.String(),
			r.MostRecentQueryTs.String(),
			r.TotalQueryFees.String(),
			r.UserAttributedErrorRate.String(),
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}
