package oracle

import (
	"context"
	"fmt"

	"github.com/edgeandnode/qos-oracle/pkg/config"
	"github.com/edgeandnode/qos-oracle/pkg/decimal"
	"github.com/edgeandnode/qos-oracle/pkg/entity"
)

// Engine folds metric records into daily rollups. One rollup exists per
// (dimension, day) bucket; the engine looks it up, merges the sample in
// place and persists it. Merges for a given bucket must be serialized by
// the caller, and a given sample must be merged at most once: re-merging
// skews the weighted averages (the batch-level dedup in Processor is what
// upholds that contract).
type Engine struct {
	cfg    config.Config
	stores *entity.Stores
	stats  *Stats
}

// NewEngine returns an Engine persisting through the given stores. stats
// may be nil.
func NewEngine(cfg config.Config, stores *entity.Stores, stats *Stats) *Engine {
	return &Engine{cfg: cfg, stores: stores, stats: stats}
}

// WeightedAverage merges one weighted sample into a running weighted
// average. Defined as zero when the combined weight is zero; the division
// is branched away, never epsilon-guarded. Pure: callers must capture the
// prior weight before mutating the rollup.
func WeightedAverage(prior, priorWeight, value, weight decimal.Decimal) decimal.Decimal {
	total := priorWeight.Add(weight)
	if total.IsZero() {
		return decimal.Zero
	}
	return prior.Mul(priorWeight).Add(value.Mul(weight)).Div(total)
}

// MergeIndexer folds one indexer data point into its (indexer, deployment,
// day) rollup and returns the updated rollup.
func (e *Engine) MergeIndexer(ctx context.Context, dp *entity.IndexerDataPoint, timestamp int64) (*entity.IndexerDailyDataPoint, error) {
	dayNumber := DayNumber(timestamp, e.cfg.LaunchDay)
	dimension := CompoundID(dp.IndexerWallet, dp.SubgraphDeploymentIPFSHash)
	id := CompoundID(dimension, formatInt(dayNumber))

	daily, err := e.stores.IndexerDaily.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load indexer rollup %s: %w", id, err)
	}
	if daily == nil {
		dayStart, dayEnd := DayBounds(timestamp)
		daily = &entity.IndexerDailyDataPoint{
			ID:                         id,
			DayStart:                   dayStart,
			DayEnd:                     dayEnd,
			DayNumber:                  dayNumber,
			Indexer:                    dp.Indexer,
			Deployment:                 dp.Deployment,
			IndexerURL:                 dp.IndexerURL,
			IndexerWallet:              dp.IndexerWallet,
			SubgraphDeploymentIPFSHash: dp.SubgraphDeploymentIPFSHash,
			StartEpoch:                 dp.StartEpoch,
		}
	}

	// The weight is itself one of the aggregated fields: read it before it
	// is overwritten.
	prevWeight := daily.QueryCount

	daily.DataPointCount++
	daily.QueryCount = daily.QueryCount.Add(dp.QueryCount)

	daily.AvgIndexerBlocksBehind = WeightedAverage(daily.AvgIndexerBlocksBehind, prevWeight, dp.AvgIndexerBlocksBehind, dp.QueryCount)
	daily.AvgIndexerLatencyMs = WeightedAverage(daily.AvgIndexerLatencyMs, prevWeight, dp.AvgIndexerLatencyMs, dp.QueryCount)
	daily.AvgQueryFee = WeightedAverage(daily.AvgQueryFee, prevWeight, dp.AvgQueryFee, dp.QueryCount)
	daily.EndEpoch = dp.EndEpoch
	daily.MaxIndexerBlocksBehind = decimal.Max(daily.MaxIndexerBlocksBehind, dp.MaxIndexerBlocksBehind)
	daily.MaxIndexerLatencyMs = decimal.Max(daily.MaxIndexerLatencyMs, dp.MaxIndexerLatencyMs)
	daily.MaxQueryFee = decimal.Max(daily.MaxQueryFee, dp.MaxQueryFee)
	daily.NumIndexer200Responses = daily.NumIndexer200Responses.Add(dp.NumIndexer200Responses)
	daily.ProportionIndexer200Responses = WeightedAverage(daily.ProportionIndexer200Responses, prevWeight, dp.ProportionIndexer200Responses, dp.QueryCount)
	daily.TotalQueryFees = daily.TotalQueryFees.Add(dp.TotalQueryFees)

	if err := e.stores.IndexerDaily.Save(ctx, daily); err != nil {
		return nil, fmt.Errorf("save indexer rollup %s: %w", id, err)
	}
	if e.stats != nil {
		e.stats.Merges.Add(1)
	}
	return daily, nil
}

// MergeQuery folds one query data point into its (deployment, day) rollup
// and returns the updated rollup.
func (e *Engine) MergeQuery(ctx context.Context, dp *entity.QueryDataPoint, timestamp int64) (*entity.QueryDailyDataPoint, error) {
	dayNumber := DayNumber(timestamp, e.cfg.LaunchDay)
	id := CompoundID(dp.SubgraphDeploymentIPFSHash, formatInt(dayNumber))

	daily, err := e.stores.QueryDaily.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load query rollup %s: %w", id, err)
	}
	if daily == nil {
		dayStart, dayEnd := DayBounds(timestamp)
		daily = &entity.QueryDailyDataPoint{
			ID:                         id,
			DayStart:                   dayStart,
			DayEnd:                     dayEnd,
			DayNumber:                  dayNumber,
			Deployment:                 dp.Deployment,
			SubgraphDeploymentIPFSHash: dp.SubgraphDeploymentIPFSHash,
			StartEpoch:                 dp.StartEpoch,
		}
	}

	prevWeight := daily.QueryCount

	daily.DataPointCount++
	daily.QueryCount = daily.QueryCount.Add(dp.QueryCount)

	daily.AvgGatewayLatencyMs = WeightedAverage(daily.AvgGatewayLatencyMs, prevWeight, dp.AvgGatewayLatencyMs, dp.QueryCount)
	daily.AvgQueryFee = WeightedAverage(daily.AvgQueryFee, prevWeight, dp.AvgQueryFee, dp.QueryCount)
	daily.EndEpoch = dp.EndEpoch
	daily.GatewayQuerySuccessRate = WeightedAverage(daily.GatewayQuerySuccessRate, prevWeight, dp.GatewayQuerySuccessRate, dp.QueryCount)
	daily.MaxGatewayLatencyMs = decimal.Max(daily.MaxGatewayLatencyMs, dp.MaxGatewayLatencyMs)
	daily.MaxQueryFee = decimal.Max(daily.MaxQueryFee, dp.MaxQueryFee)
	daily.MostRecentQueryTs = dp.MostRecentQueryTs
	daily.TotalQueryFees = daily.TotalQueryFees.Add(dp.TotalQueryFees)
	daily.UserAttributedErrorRate = WeightedAverage(daily.UserAttributedErrorRate, prevWeight, dp.UserAttributedErrorRate, dp.QueryCount)

	if err := e.stores.QueryDaily.Save(ctx, daily); err != nil {
		return nil, fmt.Errorf("save query rollup %s: %w", id, err)
	}
	if e.stats != nil {
		e.stats.Merges.Add(1)
	}
	return daily, nil
}
