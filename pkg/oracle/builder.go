package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/edgeandnode/qos-oracle/pkg/entity"
	"github.com/edgeandnode/qos-oracle/pkg/jsonval"
	"go.uber.org/zap"
)

// BlobFetcher retrieves a byte blob by its content hash.
type BlobFetcher interface {
	Cat(ctx context.Context, hash string) ([]byte, error)
}

// subjectKind selects the extraction path for a blob's elements.
type subjectKind int

const (
	subjectUnknown subjectKind = iota
	subjectIndexer
	subjectQuery
)

// classifyTopic picks the extraction path by substring match on the blob's
// topic name. Topics that name neither subject produce no child records.
func classifyTopic(topic string) subjectKind {
	switch {
	case strings.Contains(topic, "indexer"), strings.Contains(topic, "allocation"):
		return subjectIndexer
	case strings.Contains(topic, "query"):
		return subjectQuery
	default:
		return subjectUnknown
	}
}

// Builder turns one retrieved blob into typed data point records and hands
// each to the aggregation engine.
type Builder struct {
	log    *zap.Logger
	stores *entity.Stores
	fetch  BlobFetcher
	engine *Engine
}

// NewBuilder returns a Builder.
func NewBuilder(log *zap.Logger, stores *entity.Stores, fetch BlobFetcher, engine *Engine) *Builder {
	return &Builder{log: log, stores: stores, fetch: fetch, engine: engine}
}

// ProcessEntry handles one accepted batch entry: fetch the blob, decode its
// array of metric objects, build one data point per element and merge each
// into its daily rollup. Failures are scoped to this blob; the
// MessageDataPoint is created regardless to mark that an attempt occurred.
//
// The MessageDataPoint is also the per-entry replay marker. It is saved
// before any sample is merged, and an entry whose marker already exists is
// skipped, so a batch redelivered after a partial failure resumes at the
// first unattempted entry instead of folding completed entries in again.
// Returns false when the entry was skipped.
func (b *Builder) ProcessEntry(ctx context.Context, messageID string, e BatchEntry) (bool, error) {
	id := CompoundID(messageID, formatInt(int64(e.Index)))

	prior, err := b.stores.MessageDataPoints.Load(ctx, id)
	if err != nil {
		return false, fmt.Errorf("load message data point %s: %w", id, err)
	}
	if prior != nil {
		b.log.Debug("entry already attempted, skipping",
			zap.String("messageDataPoint", id))
		return false, nil
	}

	mdp := &entity.MessageDataPoint{
		ID:            id,
		IPFSHash:      e.Hash,
		Timestamp:     e.Timestamp,
		OracleMessage: messageID,
	}
	if err := b.stores.MessageDataPoints.Save(ctx, mdp); err != nil {
		return false, fmt.Errorf("save message data point %s: %w", id, err)
	}

	data, err := b.fetch.Cat(ctx, e.Hash)
	if err != nil {
		b.log.Warn("blob not retrievable, recording empty data point",
			zap.String("hash", e.Hash),
			zap.String("topic", e.Topic),
			zap.Error(err))
		return true, nil
	}
	mdp.RawData = string(data)

	root, err := jsonval.Parse(data)
	if err != nil || root.Kind != jsonval.Array {
		b.log.Warn("blob is not a json array, skipping",
			zap.String("hash", e.Hash),
			zap.Error(err))
		return true, b.stores.MessageDataPoints.Save(ctx, mdp)
	}

	switch classifyTopic(e.Topic) {
	case subjectIndexer:
		n, err := b.buildIndexerRecords(ctx, mdp, root.Items, e.Timestamp)
		if err != nil {
			return false, err
		}
		mdp.IndexerDataPointCount = n
	case subjectQuery:
		n, err := b.buildQueryRecords(ctx, mdp, root.Items, e.Timestamp)
		if err != nil {
			return false, err
		}
		mdp.QueryDataPointCount = n
	default:
		b.log.Warn("topic names no known subject, no records produced",
			zap.String("topic", e.Topic))
	}

	return true, b.stores.MessageDataPoints.Save(ctx, mdp)
}

func (b *Builder) buildIndexerRecords(ctx context.Context, mdp *entity.MessageDataPoint, items []*jsonval.Value, timestamp int64) (int64, error) {
	var count int64
	for i, item := range items {
		if item.Kind != jsonval.Object {
			b.log.Warn("blob element is not an object, skipping",
				zap.String("messageDataPoint", mdp.ID),
				zap.Int("index", i))
			continue
		}

		dp := &entity.IndexerDataPoint{
			ID:               CompoundID(mdp.ID, formatInt(int64(i))),
			RawData:          jsonval.Canonical(item),
			MessageDataPoint: mdp.ID,

			IndexerURL:                    jsonval.ToString(item.Get("indexer_url")),
			IndexerWallet:                 jsonval.ToString(item.Get("indexer_wallet")),
			SubgraphDeploymentIPFSHash:    jsonval.ToString(item.Get("subgraph_deployment_ipfs_hash")),
			ChainID:                       jsonval.ToString(item.Get("chain_id")),
			GatewayID:                     jsonval.ToString(item.Get("gateway_id")),
			QueryCount:                    jsonval.ToDecimal(item.Get("query_count")),
			StartEpoch:                    jsonval.ToDecimal(item.Get("start_epoch")),
			EndEpoch:                      jsonval.ToDecimal(item.Get("end_epoch")),
			AvgIndexerBlocksBehind:        jsonval.ToDecimal(item.Get("avg_indexer_blocks_behind")),
			AvgIndexerLatencyMs:           jsonval.ToDecimal(item.Get("avg_indexer_latency_ms")),
			AvgQueryFee:                   jsonval.ToDecimal(item.Get("avg_query_fee")),
			MaxIndexerBlocksBehind:        jsonval.ToDecimal(item.Get("max_indexer_blocks_behind")),
			MaxIndexerLatencyMs:           jsonval.ToDecimal(item.Get("max_indexer_latency_ms")),
			MaxQueryFee:                   jsonval.ToDecimal(item.Get("max_query_fee")),
			NumIndexer200Responses:        jsonval.ToDecimal(item.Get("num_indexer_200_responses")),
			ProportionIndexer200Responses: jsonval.ToDecimal(item.Get("proportion_indexer_200_responses")),
			TotalQueryFees:                jsonval.ToDecimal(item.Get("total_query_fees")),
		}

		indexer, err := entity.GetOrCreate(ctx, b.stores.Indexers, dp.IndexerWallet, func(id string) *entity.Indexer {
			return &entity.Indexer{ID: id}
		})
		if err != nil {
			return count, fmt.Errorf("get or create indexer %s: %w", dp.IndexerWallet, err)
		}
		deployment, err := entity.GetOrCreate(ctx, b.stores.Deployments, dp.SubgraphDeploymentIPFSHash, func(id string) *entity.SubgraphDeployment {
			return &entity.SubgraphDeployment{ID: id}
		})
		if err != nil {
			return count, fmt.Errorf("get or create deployment %s: %w", dp.SubgraphDeploymentIPFSHash, err)
		}
		dp.Indexer = indexer.ID
		dp.Deployment = deployment.ID

		daily, err := b.engine.MergeIndexer(ctx, dp, timestamp)
		if err != nil {
			return count, err
		}
		dp.DayNumber = daily.DayNumber
		dp.DayStart = daily.DayStart
		dp.DayEnd = daily.DayEnd

		if err := b.stores.IndexerDataPoints.Save(ctx, dp); err != nil {
			return count, fmt.Errorf("save indexer data point %s: %w", dp.ID, err)
		}
		count++
	}
	return count, nil
}

func (b *Builder) buildQueryRecords(ctx context.Context, mdp *entity.MessageDataPoint, items []*jsonval.Value, timestamp int64) (int64, error) {
	var count int64
	for i, item := range items {
		if item.Kind != jsonval.Object {
			b.log.Warn("blob element is not an object, skipping",
				zap.String("messageDataPoint", mdp.ID),
				zap.Int("index", i))
			continue
		}

		dp := &entity.QueryDataPoint{
			ID:               CompoundID(mdp.ID, formatInt(int64(i))),
			RawData:          jsonval.Canonical(item),
			MessageDataPoint: mdp.ID,

			SubgraphDeploymentIPFSHash: jsonval.ToString(item.Get("subgraph_deployment_ipfs_hash")),
			ChainID:                    jsonval.ToString(item.Get("chain_id")),
			GatewayID:                  jsonval.ToString(item.Get("gateway_id")),
			QueryCount:                 jsonval.ToDecimal(item.Get("query_count")),
			StartEpoch:                 jsonval.ToDecimal(item.Get("start_epoch")),
			EndEpoch:                   jsonval.ToDecimal(item.Get("end_epoch")),
			AvgGatewayLatencyMs:        jsonval.ToDecimal(item.Get("avg_gateway_latency_ms")),
			AvgQueryFee:                jsonval.ToDecimal(item.Get("avg_query_fee")),
			GatewayQuerySuccessRate:    jsonval.ToDecimal(item.Get("gateway_query_success_rate")),
			MaxGatewayLatencyMs:        jsonval.ToDecimal(item.Get("max_gateway_latency_ms")),
			MaxQueryFee:                jsonval.ToDecimal(item.Get("max_query_fee")),
			MostRecentQueryTs:          jsonval.ToDecimal(item.Get("most_recent_query_ts")),
			TotalQueryFees:             jsonval.ToDecimal(item.Get("total_query_fees")),
			UserAttributedErrorRate:    jsonval.ToDecimal(item.Get("user_attributed_error_rate")),
		}

		deployment, err := entity.GetOrCreate(ctx, b.stores.Deployments, dp.SubgraphDeploymentIPFSHash, func(id string) *entity.SubgraphDeployment {
			return &entity.SubgraphDeployment{ID: id}
		})
		if err != nil {
			return count, fmt.Errorf("get or create deployment %s: %w", dp.SubgraphDeploymentIPFSHash, err)
		}
		dp.Deployment = deployment.ID

		daily, err := b.engine.MergeQuery(ctx, dp, timestamp)
		if err != nil {
			return count, err
		}
		dp.DayNumber = daily.DayNumber
		dp.DayStart = daily.DayStart
		dp.DayEnd = daily.DayEnd

		if err := b.stores.QueryDataPoints.Save(ctx, dp); err != nil {
			return count, fmt.Errorf("save query data point %s: %w", dp.ID, err)
		}
		count++
	}
	return count, nil
}
