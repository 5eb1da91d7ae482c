package oracle

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/edgeandnode/qos-oracle/pkg/db/clickhouse"
	"github.com/edgeandnode/qos-oracle/pkg/entity"
)

// Decimal metric fields are stored as String columns: the oracle's fee and
// latency samples are arbitrary-precision and must survive round trips
// exactly. Analytical reads cast with toDecimal256 as needed.

func (db *DB) initIndexerDataPoints(ctx context.Context) error {
	query := fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS "%s".indexer_data_points (
			id String CODEC(ZSTD(1)),
			raw_data String CODEC(ZSTD(3)),
			message_data_point String CODEC(ZSTD(1)),
			indexer String CODEC(ZSTD(1)),
			deployment String CODEC(ZSTD(1)),
			indexer_url String CODEC(ZSTD(1)),
			indexer_wallet String CODEC(ZSTD(1)),
			subgraph_deployment_ipfs_hash String CODEC(ZSTD(1)),
			chain_id String CODEC(ZSTD(1)),
			gateway_id String CODEC(ZSTD(1)),
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
			total_query_fees String,
			day_number Int64 CODEC(DoubleDelta, LZ4),
			day_start Int64 CODEC(DoubleDelta, LZ4),
			day_end Int64 CODEC(DoubleDelta, LZ4)
		) ENGINE = %s
		ORDER BY (day_number, id)
	`, db.Name, clickhouse.ReplacingMergeTree)
	return db.Exec(ctx, query)
}

// InsertIndexerDataPoints writes a batch of indexer metric records.
func (db *DB) InsertIndexerDataPoints(ctx context.Context, points []*entity.IndexerDataPoint) error {
	if len(points) == 0 {
		return nil
	}

	query := fmt.Sprintf(
		`INSERT INTO "%s".indexer_data_points (id, raw_data, message_data_point, indexer, deployment, indexer_url, indexer_wallet, subgraph_deployment_ipfs_hash, chain_id, gateway_id, query_count, start_epoch, end_epoch, avg_indexer_blocks_behind, avg_indexer_latency_ms, avg_query_fee, max_indexer_blocks_behind, max_indexer_latency_ms, max_query_fee, num_indexer_200_responses, proportion_indexer_200_responses, total_query_fees, day_number, day_start, day_end) VALUES`,
		db.Name,
	)
	batch, err := db.PrepareBatch(ctx, query)
	if err != nil {
		return err
	}
	defer func(batch driver.Batch) {
		_ = batch.Abort()
	}(batch)

	for _, p := range points {
		err = batch.Append(
			p.ID,
			p.RawData,
			p.MessageDataPoint,
			p.Indexer,
			p.Deployment,
			p.IndexerURL,
			p.IndexerWallet,
			p.SubgraphDeploymentIPFSHash,
			p.ChainID,
			p.GatewayID,
			p.QueryCount.String(),
			p.StartEpoch.String(),
			p.EndEpoch.String(),
			p.AvgIndexerBlocksBehind.String(),
			p.AvgIndexerLatencyMs.String(),
			p.AvgQueryFee.String(),
			p.MaxIndexerBlocksBehind.String(),
			p.MaxIndexerLatencyMs.String(),
			p.MaxQueryFee.String(),
			p.NumIndexer200Responses.String(),
			p.ProportionIndexer200Responses.String(),
			p.TotalQueryFees.String(),
			p.DayNumber,
			p.DayStart,
			p.DayEnd,
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}

func (db *DB) initQueryDataPoints(ctx context.Context) error {
	query := fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS "%s".query_data_points (
			id String CODEC(ZSTD(1)),
			raw_data String CODEC(ZSTD(3)),
			message_data_point String CODEC(ZSTD(1)),
			deployment String CODEC(ZSTD(1)),
			subgraph_deployment_ipfs_hash String CODEC(ZSTD(1)),
			chain_id String CODEC(ZSTD(1)),
			gateway_id String CODEC(ZSTD(1)),
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
			user_attributed_error_rate String,
			day_number Int64 CODEC(DoubleDelta, LZ4),
			day_start Int64 CODEC(DoubleDelta, LZ4),
			day_end Int64 CODEC(DoubleDelta, LZ4)
		) ENGINE = %s
		ORDER BY (day_number, id)
	`, db.Name, clickhouse.ReplacingMergeTree)
	return db.Exec(ctx, query)
}

// InsertQueryDataPoints writes a batch of query metric records.
func (db *DB) InsertQueryDataPoints(ctx context.Context, points []*entity.QueryDataPoint) error {
	if len(points) == 0 {
		return nil
	}

	query := fmt.Sprintf(
		`INSERT INTO "%s".query_data_points (id, raw_data, message_data_point, deployment, subgraph_deployment_ipfs_hash, chain_id, gateway_id, query_count, start_epoch, end_epoch, avg_gateway_latency_ms, avg_query_fee, gateway_query_success_rate, max_gateway_latency_ms, max_query_fee, most_recent_query_ts, total_query_fees, user_attributed_error_rate, day_number, day_start, day_end) VALUES`,
		db.Name,
	)
	batch, err := db.PrepareBatch(ctx, query)
	if err != nil {
		return err
	}
	defer func(batch driver.Batch) {
		_ = batch.Abort()
	}(batch)

	for _, p := range points {
		err = batch.Append(
			p.ID,
			p.RawData,
			p.MessageDataPoint,
			p.Deployment,
			p.SubgraphDeploymentIPFSHash,
			p.ChainID,
			p.GatewayID,
			p.QueryCount.String(),
			p.StartEpoch.String(),
			p.EndEpoch.String(),
			p.AvgGatewayLatencyMs.String(),
			p.AvgQueryFee.String(),
			p.GatewayQuerySuccessRate.String(),
			p.MaxGatewayLatencyMs.String(),
			p.MaxQueryFee.String(),
			p.MostRecentQueryTs.String(),
			p.TotalQueryFees.String(),
			p.UserAttributedErrorRate.String(),
			p.DayNumber,
			p.DayStart,
			p.DayEnd,
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}
