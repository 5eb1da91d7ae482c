// Package entity defines the persisted shapes of the oracle: the raw
// submission trail (OracleMessage, MessageDataPoint), the per-record metric
// entities, and the mutable daily rollups that are the queryable output.
package entity

import (
	"github.com/edgeandnode/qos-oracle/pkg/decimal"
)

// OracleMessage records one submitted batch. Created once per submission;
// validity and the rejection reason are set before its single save.
type OracleMessage struct {
	ID        string `ch:"id" json:"id"` // submission tx hash
	Payload   string `ch:"payload" json:"payload"`
	CreatedAt int64  `ch:"created_at" json:"createdAt"` // arrival timestamp, unix seconds
	Block     uint64 `ch:"block" json:"block"`
	Valid     bool   `ch:"valid" json:"valid"`
	Error     string `ch:"error" json:"error,omitempty"`
}

func (m *OracleMessage) EntityID() string { return m.ID }

// MessageDataPoint marks one blob-fetch attempt of a batch. RawData stays
// empty and both counts stay zero when the fetch or the parse failed.
type MessageDataPoint struct {
	ID                    string `ch:"id" json:"id"` // <message id>-<batch index>
	RawData               string `ch:"raw_data" json:"rawData"`
	IPFSHash              string `ch:"ipfs_hash" json:"ipfsHash"`
	Timestamp             int64  `ch:"timestamp" json:"timestamp"`
	OracleMessage         string `ch:"oracle_message" json:"oracleMessage"`
	IndexerDataPointCount int64  `ch:"indexer_data_point_count" json:"indexerDataPointCount"`
	QueryDataPointCount   int64  `ch:"query_data_point_count" json:"queryDataPointCount"`
}

func (m *MessageDataPoint) EntityID() string { return m.ID }

// Indexer is an identity-only dimension entity, created on first reference.
type Indexer struct {
	ID string `ch:"id" json:"id"` // indexer wallet address
}

func (i *Indexer) EntityID() string { return i.ID }

// SubgraphDeployment is an identity-only dimension entity.
type SubgraphDeployment struct {
	ID string `ch:"id" json:"id"` // deployment ipfs hash
}

func (d *SubgraphDeployment) EntityID() string { return d.ID }

// IndexerDataPoint is one element of an indexer-attempt blob, immutable
// after creation. The Day* fields are denormalized from the rollup bucket
// the record was merged into.
type IndexerDataPoint struct {
	ID               string `ch:"id" json:"id"` // <message data point id>-<element index>
	RawData          string `ch:"raw_data" json:"rawData"`
	MessageDataPoint string `ch:"message_data_point" json:"messageDataPoint"`
	Indexer          string `ch:"indexer" json:"indexer"`
	Deployment       string `ch:"deployment" json:"deployment"`

	IndexerURL                    string          `ch:"indexer_url" json:"indexer_url"`
	IndexerWallet                 string          `ch:"indexer_wallet" json:"indexer_wallet"`
	SubgraphDeploymentIPFSHash    string          `ch:"subgraph_deployment_ipfs_hash" json:"subgraph_deployment_ipfs_hash"`
	ChainID                       string          `ch:"chain_id" json:"chain_id"`
	GatewayID                     string          `ch:"gateway_id" json:"gateway_id"`
	QueryCount                    decimal.Decimal `ch:"query_count" json:"query_count"`
	StartEpoch                    decimal.Decimal `ch:"start_epoch" json:"start_epoch"`
	EndEpoch                      decimal.Decimal `ch:"end_epoch" json:"end_epoch"`
	AvgIndexerBlocksBehind        decimal.Decimal `ch:"avg_indexer_blocks_behind" json:"avg_indexer_blocks_behind"`
	AvgIndexerLatencyMs           decimal.Decimal `ch:"avg_indexer_latency_ms" json:"avg_indexer_latency_ms"`
	AvgQueryFee                   decimal.Decimal `ch:"avg_query_fee" json:"avg_query_fee"`
	MaxIndexerBlocksBehind        decimal.Decimal `ch:"max_indexer_blocks_behind" json:"max_indexer_blocks_behind"`
	MaxIndexerLatencyMs           decimal.Decimal `ch:"max_indexer_latency_ms" json:"max_indexer_latency_ms"`
	MaxQueryFee                   decimal.Decimal `ch:"max_query_fee" json:"max_query_fee"`
	NumIndexer200Responses        decimal.Decimal `ch:"num_indexer_200_responses" json:"num_indexer_200_responses"`
	ProportionIndexer200Responses decimal.Decimal `ch:"proportion_indexer_200_responses" json:"proportion_indexer_200_responses"`
	TotalQueryFees                decimal.Decimal `ch:"total_query_fees" json:"total_query_fees"`

	DayNumber int64 `ch:"day_number" json:"dayNumber"`
	DayStart  int64 `ch:"day_start" json:"dayStart"`
	DayEnd    int64 `ch:"day_end" json:"dayEnd"`
}

func (p *IndexerDataPoint) EntityID() string { return p.ID }

// QueryDataPoint is one element of a query-result blob, immutable after
// creation.
type QueryDataPoint struct {
	ID               string `ch:"id" json:"id"`
	RawData          string `ch:"raw_data" json:"rawData"`
	MessageDataPoint string `ch:"message_data_point" json:"messageDataPoint"`
	Deployment       string `ch:"deployment" json:"deployment"`

	SubgraphDeploymentIPFSHash string          `ch:"subgraph_deployment_ipfs_hash" json:"subgraph_deployment_ipfs_hash"`
	ChainID                    string          `ch:"chain_id" json:"chain_id"`
	GatewayID                  string          `ch:"gateway_id" json:"gateway_id"`
	QueryCount                 decimal.Decimal `ch:"query_count" json:"query_count"`
	StartEpoch                 decimal.Decimal `ch:"start_epoch" json:"start_epoch"`
	EndEpoch                   decimal.Decimal `ch:"end_epoch" json:"end_epoch"`
	AvgGatewayLatencyMs        decimal.Decimal `ch:"avg_gateway_latency_ms" json:"avg_gateway_latency_ms"`
	AvgQueryFee                decimal.Decimal `ch:"avg_query_fee" json:"avg_query_fee"`
	GatewayQuerySuccessRate    decimal.Decimal `ch:"gateway_query_success_rate" json:"gateway_query_success_rate"`
	MaxGatewayLatencyMs        decimal.Decimal `ch:"max_gateway_latency_ms" json:"max_gateway_latency_ms"`
	MaxQueryFee                decimal.Decimal `ch:"max_query_fee" json:"max_query_fee"`
	MostRecentQueryTs          decimal.Decimal `ch:"most_recent_query_ts" json:"most_recent_query_ts"`
	TotalQueryFees             decimal.Decimal `ch:"total_query_fees" json:"total_query_fees"`
	UserAttributedErrorRate    decimal.Decimal `ch:"user_attributed_error_rate" json:"user_attributed_error_rate"`

	DayNumber int64 `ch:"day_number" json:"dayNumber"`
	DayStart  int64 `ch:"day_start" json:"dayStart"`
	DayEnd    int64 `ch:"day_end" json:"dayEnd"`
}

func (p *QueryDataPoint) EntityID() string { return p.ID }

// IndexerDailyDataPoint is the running rollup for one
// (indexer, deployment, day) bucket. Mutated on every merge, never deleted.
type IndexerDailyDataPoint struct {
	ID         string `ch:"id" json:"id"` // <wallet>-<deployment>-<day>
	DayStart   int64  `ch:"day_start" json:"dayStart"`
	DayEnd     int64  `ch:"day_end" json:"dayEnd"`
	DayNumber  int64  `ch:"day_number" json:"dayNumber"`
	Indexer    string `ch:"indexer" json:"indexer"`
	Deployment string `ch:"deployment" json:"deployment"`

	DataPointCount int64 `ch:"data_point_count" json:"dataPointCount"`

	IndexerURL                    string          `ch:"indexer_url" json:"indexer_url"`
	IndexerWallet                 string          `ch:"indexer_wallet" json:"indexer_wallet"`
	SubgraphDeploymentIPFSHash    string          `ch:"subgraph_deployment_ipfs_hash" json:"subgraph_deployment_ipfs_hash"`
	QueryCount                    decimal.Decimal `ch:"query_count" json:"query_count"`
	StartEpoch                    decimal.Decimal `ch:"start_epoch" json:"start_epoch"`
	EndEpoch                      decimal.Decimal `ch:"end_epoch" json:"end_epoch"`
	AvgIndexerBlocksBehind        decimal.Decimal `ch:"avg_indexer_blocks_behind" json:"avg_indexer_blocks_behind"`
	AvgIndexerLatencyMs           decimal.Decimal `ch:"avg_indexer_latency_ms" json:"avg_indexer_latency_ms"`
	AvgQueryFee                   decimal.Decimal `ch:"avg_query_fee" json:"avg_query_fee"`
	MaxIndexerBlocksBehind        decimal.Decimal `ch:"max_indexer_blocks_behind" json:"max_indexer_blocks_behind"`
	MaxIndexerLatencyMs           decimal.Decimal `ch:"max_indexer_latency_ms" json:"max_indexer_latency_ms"`
	MaxQueryFee                   decimal.Decimal `ch:"max_query_fee" json:"max_query_fee"`
	NumIndexer200Responses        decimal.Decimal `ch:"num_indexer_200_responses" json:"num_indexer_200_responses"`
	ProportionIndexer200Responses decimal.Decimal `ch:"proportion_indexer_200_responses" json:"proportion_indexer_200_responses"`
	TotalQueryFees                decimal.Decimal `ch:"total_query_fees" json:"total_query_fees"`
}

func (d *IndexerDailyDataPoint) EntityID() string { return d.ID }

// QueryDailyDataPoint is the running rollup for one (deployment, day)
// bucket.
type QueryDailyDataPoint struct {
	ID         string `ch:"id" json:"id"` // <deployment>-<day>
	DayStart   int64  `ch:"day_start" json:"dayStart"`
	DayEnd     int64  `ch:"day_end" json:"dayEnd"`
	DayNumber  int64  `ch:"day_number" json:"dayNumber"`
	Deployment string `ch:"deployment" json:"deployment"`

	DataPointCount int64 `ch:"data_point_count" json:"dataPointCount"`

	SubgraphDeploymentIPFSHash string          `ch:"subgraph_deployment_ipfs_hash" json:"subgraph_deployment_ipfs_hash"`
	QueryCount                 decimal.Decimal `ch:"query_count" json:"query_count"`
	StartEpoch                 decimal.Decimal `ch:"start_epoch" json:"start_epoch"`
	EndEpoch                   decimal.Decimal `ch:"end_epoch" json:"end_epoch"`
	AvgGatewayLatencyMs        decimal.Decimal `ch:"avg_gateway_latency_ms" json:"avg_gateway_latency_ms"`
	AvgQueryFee                decimal.Decimal `ch:"avg_query_fee" json:"avg_query_fee"`
	GatewayQuerySuccessRate    decimal.Decimal `ch:"gateway_query_success_rate" json:"gateway_query_success_rate"`
	MaxGatewayLatencyMs        decimal.Decimal `ch:"max_gateway_latency_ms" json:"max_gateway_latency_ms"`
	MaxQueryFee                decimal.Decimal `ch:"max_query_fee" json:"max_query_fee"`
	MostRecentQueryTs          decimal.Decimal `ch:"most_recent_query_ts" json:"most_recent_query_ts"`
	TotalQueryFees             decimal.Decimal `ch:"total_query_fees" json:"total_query_fees"`
	UserAttributedErrorRate    decimal.Decimal `ch:"user_attributed_error_rate" json:"user_attributed_error_rate"`
}

func (d *QueryDailyDataPoint) EntityID() string { return d.ID }
