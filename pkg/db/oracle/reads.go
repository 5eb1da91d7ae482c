package oracle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/edgeandnode/qos-oracle/pkg/decimal"
	"github.com/edgeandnode/qos-oracle/pkg/entity"
)

// Point reads use FINAL so a lookup between compactions still sees exactly
// one row per id. They back the HTTP rollup lookups when the in-memory
// store misses, e.g. for buckets written before the current process start.

// SelectIndexerDaily reads one indexer rollup by id. Returns (nil, nil)
// when the id is unknown.
func (db *DB) SelectIndexerDaily(ctx context.Context, id string) (*entity.IndexerDailyDataPoint, error) {
	query := fmt.Sprintf(`
		SELECT id, day_start, day_end, day_number, indexer, deployment, data_point_count,
			indexer_url, indexer_wallet, subgraph_deployment_ipfs_hash,
			query_count, start_epoch, end_epoch,
			avg_indexer_blocks_behind, avg_indexer_latency_ms, avg_query_fee,
			max_indexer_blocks_behind, max_indexer_latency_ms, max_query_fee,
			num_indexer_200_responses, proportion_indexer_200_responses, total_query_fees
		FROM "%s".indexer_daily_data_points FINAL
		WHERE id = ?
	`, db.Name)

	var r entity.IndexerDailyDataPoint
	dec := make([]string, 12)
	err := db.Db.QueryRow(ctx, query, id).Scan(
		&r.ID, &r.DayStart, &r.DayEnd, &r.DayNumber, &r.Indexer, &r.Deployment, &r.DataPointCount,
		&r.IndexerURL, &r.IndexerWallet, &r.SubgraphDeploymentIPFSHash,
		&dec[0], &dec[1], &dec[2], &dec[3], &dec[4], &dec[5],
		&dec[6], &dec[7], &dec[8], &dec[9], &dec[10], &dec[11],
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select indexer rollup %s: %w", id, err)
	}

	fields := []*decimal.Decimal{
		&r.QueryCount, &r.StartEpoch, &r.EndEpoch,
		&r.AvgIndexerBlocksBehind, &r.AvgIndexerLatencyMs, &r.AvgQueryFee,
		&r.MaxIndexerBlocksBehind, &r.MaxIndexerLatencyMs, &r.MaxQueryFee,
		&r.NumIndexer200Responses, &r.ProportionIndexer200Responses, &r.TotalQueryFees,
	}
	if err := parseDecimals(dec, fields); err != nil {
		return nil, fmt.Errorf("indexer rollup %s: %w", id, err)
	}
	return &r, nil
}

// SelectQueryDaily reads one query rollup by id. Returns (nil, nil) when
// the id is unknown.
func (db *DB) SelectQueryDaily(ctx context.Context, id string) (*entity.QueryDailyDataPoint, error) {
	query := fmt.Sprintf(`
		SELECT id, day_start, day_end, day_number, deployment, data_point_count,
			subgraph_deployment_ipfs_hash,
			query_count, start_epoch, end_epoch,
			avg_gateway_latency_ms, avg_query_fee, gateway_query_success_rate,
			max_gateway_latency_ms, max_query_fee, most_recent_query_ts,
			total_query_fees, user_attributed_error_rate
		FROM "%s".query_daily_data_points FINAL
		WHERE id = ?
	`, db.Name)

	var r entity.QueryDailyDataPoint
	dec := make([]string, 11)
	err := db.Db.QueryRow(ctx, query, id).Scan(
		&r.ID, &r.DayStart, &r.DayEnd, &r.DayNumber, &r.Deployment, &r.DataPointCount,
		&r.SubgraphDeploymentIPFSHash,
		&dec[0], &dec[1], &dec[2],
		&dec[3], &dec[4], &dec[5],
		&dec[6], &dec[7], &dec[8],
		&dec[9], &dec[10],
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select query rollup %s: %w", id, err)
	}

	fields := []*decimal.Decimal{
		&r.QueryCount, &r.StartEpoch, &r.EndEpoch,
		&r.AvgGatewayLatencyMs, &r.AvgQueryFee, &r.GatewayQuerySuccessRate,
		&r.MaxGatewayLatencyMs, &r.MaxQueryFee, &r.MostRecentQueryTs,
		&r.TotalQueryFees, &r.UserAttributedErrorRate,
	}
	if err := parseDecimals(dec, fields); err != nil {
		return nil, fmt.Errorf("query rollup %s: %w", id, err)
	}
	return &r, nil
}

func parseDecimals(src []string, dst []*decimal.Decimal) error {
	for i, s := range src {
		d, err := decimal.New(s)
		if err != nil {
			return fmt.Errorf("decimal column %d: %w", i, err)
		}
		*dst[i] = d
	}
	return nil
}
