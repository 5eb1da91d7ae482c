package oracle

import (
	"context"
	"testing"

	"github.com/edgeandnode/qos-oracle/pkg/config"
	"github.com/edgeandnode/qos-oracle/pkg/decimal"
	"github.com/edgeandnode/qos-oracle/pkg/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.New(s)
	require.NoError(t, err)
	return d
}

// dayTS returns a timestamp offset seconds into rollup day n.
func dayTS(n int64, offset int64) int64 {
	return (config.LaunchDay+n)*config.SecondsPerDay + offset
}

func newTestEngine() (*Engine, *entity.Stores) {
	stores := entity.NewMemoryStores()
	return NewEngine(config.Default(), stores, nil), stores
}

// TestWeightedAverage verifies the merge formula, including the
// zero-weight branch.
func TestWeightedAverage(t *testing.T) {
	tests := []struct {
		name        string
		prior       string
		priorWeight string
		value       string
		weight      string
		expected    string
	}{
		{
			name:  "both weights zero yields zero",
			prior: "5", priorWeight: "0", value: "7", weight: "0",
			expected: "0",
		},
		{
			name:  "first sample dominates empty prior",
			prior: "0", priorWeight: "0", value: "12.5", weight: "40",
			expected: "12.5",
		},
		{
			name:  "equal weights average evenly",
			prior: "10", priorWeight: "5", value: "20", weight: "5",
			expected: "15",
		},
		{
			name:  "heavier prior pulls the result",
			prior: "1", priorWeight: "3", value: "5", weight: "1",
			expected: "2",
		},
		{
			name:  "zero-weight sample leaves prior untouched",
			prior: "42", priorWeight: "10", value: "999", weight: "0",
			expected: "42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WeightedAverage(
				dec(t, tt.prior), dec(t, tt.priorWeight),
				dec(t, tt.value), dec(t, tt.weight),
			)
			assert.Zero(t, got.Cmp(dec(t, tt.expected)),
				"expected %s, got %s", tt.expected, got.String())
		})
	}
}

// TestMergeIndexerCreatesRollup verifies the rollup created by the first
// sample of a (indexer, deployment, day) bucket.
func TestMergeIndexerCreatesRollup(t *testing.T) {
	ctx := context.Background()
	engine, stores := newTestEngine()

	ts := dayTS(100, 3600)
	dp := &entity.IndexerDataPoint{
		ID:                         "msg-0-0",
		Indexer:                    "0xabc",
		Deployment:                 "QmDeploy",
		IndexerWallet:              "0xabc",
		SubgraphDeploymentIPFSHash: "QmDeploy",
		QueryCount:                 dec(t, "10"),
		StartEpoch:                 dec(t, "500"),
		EndEpoch:                   dec(t, "505"),
		AvgIndexerLatencyMs:        dec(t, "120.5"),
		MaxIndexerLatencyMs:        dec(t, "900"),
		NumIndexer200Responses:     dec(t, "9"),
		TotalQueryFees:             dec(t, "0.0003"),
	}

	daily, err := engine.MergeIndexer(ctx, dp, ts)
	require.NoError(t, err)

	assert.Equal(t, "0xabc-QmDeploy-100", daily.ID)
	assert.Equal(t, int64(100), daily.DayNumber)
	assert.Equal(t, int64((config.LaunchDay+100)*config.SecondsPerDay), daily.DayStart)
	assert.Equal(t, daily.DayStart+config.SecondsPerDay, daily.DayEnd)
	assert.Equal(t, int64(1), daily.DataPointCount)
	assert.Zero(t, daily.QueryCount.Cmp(dec(t, "10")))
	assert.Zero(t, daily.StartEpoch.Cmp(dec(t, "500")), "first sample fixes the start epoch")
	assert.Zero(t, daily.EndEpoch.Cmp(dec(t, "505")))
	assert.Zero(t, daily.AvgIndexerLatencyMs.Cmp(dec(t, "120.5")))
	assert.Zero(t, daily.MaxIndexerLatencyMs.Cmp(dec(t, "900")))
	assert.Zero(t, daily.TotalQueryFees.Cmp(dec(t, "0.0003")))

	stored, err := stores.IndexerDaily.Load(ctx, daily.ID)
	require.NoError(t, err)
	require.NotNil(t, stored, "rollup should be persisted")
}

// TestMergeIndexerAccumulates verifies the per-field merge rules across two
// samples of the same bucket.
func TestMergeIndexerAccumulates(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine()

	ts := dayTS(7, 0)
	first := &entity.IndexerDataPoint{
		IndexerWallet:              "0xabc",
		SubgraphDeploymentIPFSHash: "QmDeploy",
		QueryCount:                 dec(t, "30"),
		StartEpoch:                 dec(t, "100"),
		EndEpoch:                   dec(t, "101"),
		AvgIndexerLatencyMs:        dec(t, "100"),
		AvgIndexerBlocksBehind:     dec(t, "2"),
		MaxIndexerLatencyMs:        dec(t, "400"),
		MaxQueryFee:                dec(t, "0.002"),
		NumIndexer200Responses:     dec(t, "30"),
		TotalQueryFees:             dec(t, "0.06"),
	}
	second := &entity.IndexerDataPoint{
		IndexerWallet:              "0xabc",
		SubgraphDeploymentIPFSHash: "QmDeploy",
		QueryCount:                 dec(t, "10"),
		StartEpoch:                 dec(t, "200"),
		EndEpoch:                   dec(t, "205"),
		AvgIndexerLatencyMs:        dec(t, "500"),
		AvgIndexerBlocksBehind:     dec(t, "6"),
		MaxIndexerLatencyMs:        dec(t, "300"),
		MaxQueryFee:                dec(t, "0.005"),
		NumIndexer200Responses:     dec(t, "8"),
		TotalQueryFees:             dec(t, "0.01"),
	}

	_, err := engine.MergeIndexer(ctx, first, ts)
	require.NoError(t, err)
	// later in the same day, same dimension
	daily, err := engine.MergeIndexer(ctx, second, ts+7200)
	require.NoError(t, err)

	assert.Equal(t, int64(2), daily.DataPointCount)
	assert.Zero(t, daily.QueryCount.Cmp(dec(t, "40")))
	// (100*30 + 500*10) / 40
	assert.Zero(t, daily.AvgIndexerLatencyMs.Cmp(dec(t, "200")))
	// (2*30 + 6*10) / 40
	assert.Zero(t, daily.AvgIndexerBlocksBehind.Cmp(dec(t, "3")))
	assert.Zero(t, daily.MaxIndexerLatencyMs.Cmp(dec(t, "400")), "max keeps the larger prior")
	assert.Zero(t, daily.MaxQueryFee.Cmp(dec(t, "0.005")), "max adopts the larger sample")
	assert.Zero(t, daily.NumIndexer200Responses.Cmp(dec(t, "38")))
	assert.Zero(t, daily.TotalQueryFees.Cmp(dec(t, "0.07")))
	assert.Zero(t, daily.StartEpoch.Cmp(dec(t, "100")), "start epoch never moves after creation")
	assert.Zero(t, daily.EndEpoch.Cmp(dec(t, "205")), "end epoch follows the latest sample")
}

// TestMergeIndexerDayBoundaries verifies that samples land in distinct
// rollups per day and per dimension.
func TestMergeIndexerDayBoundaries(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine()

	dp := func(wallet string) *entity.IndexerDataPoint {
		return &entity.IndexerDataPoint{
			IndexerWallet:              wallet,
			SubgraphDeploymentIPFSHash: "QmDeploy",
			QueryCount:                 dec(t, "1"),
		}
	}

	startOfDay, err := engine.MergeIndexer(ctx, dp("0xabc"), dayTS(3, 0))
	require.NoError(t, err)
	endOfDay, err := engine.MergeIndexer(ctx, dp("0xabc"), dayTS(3, config.SecondsPerDay-1))
	require.NoError(t, err)
	nextDay, err := engine.MergeIndexer(ctx, dp("0xabc"), dayTS(4, 0))
	require.NoError(t, err)
	otherWallet, err := engine.MergeIndexer(ctx, dp("0xdef"), dayTS(3, 0))
	require.NoError(t, err)

	assert.Equal(t, startOfDay.ID, endOfDay.ID, "same day, same bucket")
	assert.Equal(t, int64(2), endOfDay.DataPointCount)
	assert.NotEqual(t, startOfDay.ID, nextDay.ID, "next day opens a new bucket")
	assert.NotEqual(t, startOfDay.ID, otherWallet.ID, "other wallet is a separate dimension")
}

// TestMergeQueryAccumulates verifies the query-side merge rules, in
// particular the last-write fields.
func TestMergeQueryAccumulates(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine()

	ts := dayTS(12, 600)
	first := &entity.QueryDataPoint{
		SubgraphDeploymentIPFSHash: "QmDeploy",
		QueryCount:                 dec(t, "4"),
		StartEpoch:                 dec(t, "50"),
		EndEpoch:                   dec(t, "51"),
		GatewayQuerySuccessRate:    dec(t, "1"),
		MostRecentQueryTs:          dec(t, "1700000000"),
		UserAttributedErrorRate:    dec(t, "0"),
		TotalQueryFees:             dec(t, "0.004"),
	}
	second := &entity.QueryDataPoint{
		SubgraphDeploymentIPFSHash: "QmDeploy",
		QueryCount:                 dec(t, "12"),
		StartEpoch:                 dec(t, "60"),
		EndEpoch:                   dec(t, "62"),
		GatewayQuerySuccessRate:    dec(t, "0.5"),
		MostRecentQueryTs:          dec(t, "1700000300"),
		UserAttributedErrorRate:    dec(t, "0.25"),
		TotalQueryFees:             dec(t, "0.012"),
	}

	_, err := engine.MergeQuery(ctx, first, ts)
	require.NoError(t, err)
	daily, err := engine.MergeQuery(ctx, second, ts+60)
	require.NoError(t, err)

	assert.Equal(t, "QmDeploy-12", daily.ID)
	assert.Equal(t, int64(2), daily.DataPointCount)
	assert.Zero(t, daily.QueryCount.Cmp(dec(t, "16")))
	// (1*4 + 0.5*12) / 16
	assert.Zero(t, daily.GatewayQuerySuccessRate.Cmp(dec(t, "0.625")))
	// (0*4 + 0.25*12) / 16
	assert.Zero(t, daily.UserAttributedErrorRate.Cmp(dec(t, "0.1875")))
	assert.Zero(t, daily.MostRecentQueryTs.Cmp(dec(t, "1700000300")), "most recent ts follows the latest sample")
	assert.Zero(t, daily.StartEpoch.Cmp(dec(t, "50")))
	assert.Zero(t, daily.EndEpoch.Cmp(dec(t, "62")))
	assert.Zero(t, daily.TotalQueryFees.Cmp(dec(t, "0.016")))
}

// TestMergeZeroWeightSamples verifies that weightless samples are counted
// but leave every average at zero instead of dividing by zero.
func TestMergeZeroWeightSamples(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine()

	dp := &entity.QueryDataPoint{
		SubgraphDeploymentIPFSHash: "QmDeploy",
		QueryCount:                 dec(t, "0"),
		AvgGatewayLatencyMs:        dec(t, "250"),
	}

	daily, err := engine.MergeQuery(ctx, dp, dayTS(1, 0))
	require.NoError(t, err)
	daily, err = engine.MergeQuery(ctx, dp, dayTS(1, 60))
	require.NoError(t, err)

	assert.Equal(t, int64(2), daily.DataPointCount)
	assert.True(t, daily.QueryCount.IsZero())
	assert.True(t, daily.AvgGatewayLatencyMs.IsZero(), "zero total weight defines the average as zero")
}

// TestMergeIsNotIdempotent documents that folding the same sample twice
// counts it twice. Replay protection lives at the batch level, not here.
func TestMergeIsNotIdempotent(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngine()

	dp := &entity.IndexerDataPoint{
		ID:                         "msg-0-0",
		IndexerWallet:              "0xabc",
		SubgraphDeploymentIPFSHash: "QmDeploy",
		QueryCount:                 dec(t, "10"),
		TotalQueryFees:             dec(t, "0.5"),
	}

	ts := dayTS(2, 0)
	_, err := engine.MergeIndexer(ctx, dp, ts)
	require.NoError(t, err)
	daily, err := engine.MergeIndexer(ctx, dp, ts)
	require.NoError(t, err)

	assert.Equal(t, int64(2), daily.DataPointCount)
	assert.Zero(t, daily.QueryCount.Cmp(dec(t, "20")))
	assert.Zero(t, daily.TotalQueryFees.Cmp(dec(t, "1.0")))
}
