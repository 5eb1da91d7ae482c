package oracle

import (
	"context"
	"fmt"
	"testing"

	"github.com/edgeandnode/qos-oracle/pkg/config"
	"github.com/edgeandnode/qos-oracle/pkg/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mapFetcher serves blobs from memory and fails on unknown hashes.
type mapFetcher map[string][]byte

func (m mapFetcher) Cat(_ context.Context, hash string) ([]byte, error) {
	data, ok := m[hash]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", hash)
	}
	return data, nil
}

const (
	goodSubmitter = "0x187489bec3d7883bdcdb3c72fa8de6ac1a0e3d16"
	indexerTopic  = "gateway_indexer_attempt_qos_5_minutes_prod_v2"
	queryTopic    = "gateway_query_result_qos_5_minutes_prod_v2"
)

func newTestProcessor(blobs mapFetcher) (*Processor, *entity.Stores) {
	stores := entity.NewMemoryStores()
	return NewProcessor(zap.NewNop(), config.Default(), stores, blobs), stores
}

func TestProcessSubmissionFullPipeline(t *testing.T) {
	ctx := context.Background()

	ts := int64((config.LaunchDay + 50) * config.SecondsPerDay)
	blobs := mapFetcher{
		"QmIndexerBlob": []byte(`[
			{"indexer_wallet":"0xaaa","subgraph_deployment_ipfs_hash":"QmDeploy","indexer_url":"https://indexer.example","query_count":10,"avg_indexer_latency_ms":100,"max_indexer_latency_ms":400,"num_indexer_200_responses":10,"total_query_fees":"0.01"},
			{"indexer_wallet":"0xaaa","subgraph_deployment_ipfs_hash":"QmDeploy","indexer_url":"https://indexer.example","query_count":30,"avg_indexer_latency_ms":300,"max_indexer_latency_ms":350,"num_indexer_200_responses":28,"total_query_fees":"0.03"}
		]`),
		"QmQueryBlob": []byte(`[
			{"subgraph_deployment_ipfs_hash":"QmDeploy","query_count":5,"gateway_query_success_rate":1,"total_query_fees":"0.005"}
		]`),
	}
	processor, stores := newTestProcessor(blobs)

	payload := fmt.Sprintf(`[
		{"topic":"%s","hash":"QmIndexerBlob","timestamp":%d},
		{"topic":"%s","hash":"QmQueryBlob","timestamp":%d}
	]`, indexerTopic, ts, queryTopic, ts)

	err := processor.ProcessSubmission(ctx, Submission{
		ID:        "0xtx1",
		Payload:   []byte(payload),
		Submitter: goodSubmitter,
		Timestamp: ts,
		Block:     42,
	})
	require.NoError(t, err)

	msg, err := stores.Messages.Load(ctx, "0xtx1")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.True(t, msg.Valid)
	assert.Equal(t, uint64(42), msg.Block)

	indexerMdp, err := stores.MessageDataPoints.Load(ctx, "0xtx1-0")
	require.NoError(t, err)
	require.NotNil(t, indexerMdp)
	assert.Equal(t, int64(2), indexerMdp.IndexerDataPointCount)
	assert.Equal(t, "QmIndexerBlob", indexerMdp.IPFSHash)

	queryMdp, err := stores.MessageDataPoints.Load(ctx, "0xtx1-1")
	require.NoError(t, err)
	require.NotNil(t, queryMdp)
	assert.Equal(t, int64(1), queryMdp.QueryDataPointCount)

	// Both indexer samples folded into one (wallet, deployment, day) bucket.
	rollup, err := stores.IndexerDaily.Load(ctx, "0xaaa-QmDeploy-50")
	require.NoError(t, err)
	require.NotNil(t, rollup)
	assert.Equal(t, int64(2), rollup.DataPointCount)
	assert.Zero(t, rollup.QueryCount.Cmp(dec(t, "40")))
	// (100*10 + 300*30) / 40
	assert.Zero(t, rollup.AvgIndexerLatencyMs.Cmp(dec(t, "250")))
	assert.Zero(t, rollup.MaxIndexerLatencyMs.Cmp(dec(t, "400")))
	assert.Zero(t, rollup.TotalQueryFees.Cmp(dec(t, "0.04")))

	queryRollup, err := stores.QueryDaily.Load(ctx, "QmDeploy-50")
	require.NoError(t, err)
	require.NotNil(t, queryRollup)
	assert.Equal(t, int64(1), queryRollup.DataPointCount)

	indexer, err := stores.Indexers.Load(ctx, "0xaaa")
	require.NoError(t, err)
	assert.NotNil(t, indexer, "indexer dimension created on first reference")
	deployment, err := stores.Deployments.Load(ctx, "QmDeploy")
	require.NoError(t, err)
	assert.NotNil(t, deployment)

	snap := processor.Stats().Snapshot()
	assert.Equal(t, int64(1), snap.Messages)
	assert.Equal(t, int64(2), snap.DataPoints)
	assert.Equal(t, int64(3), snap.Merges)
}

func TestProcessSubmissionDedup(t *testing.T) {
	ctx := context.Background()

	ts := int64((config.LaunchDay + 50) * config.SecondsPerDay)
	blobs := mapFetcher{
		"QmIndexerBlob": []byte(`[{"indexer_wallet":"0xaaa","subgraph_deployment_ipfs_hash":"QmDeploy","query_count":10,"total_query_fees":"0.01"}]`),
	}
	processor, stores := newTestProcessor(blobs)

	sub := Submission{
		ID:        "0xtx1",
		Payload:   []byte(fmt.Sprintf(`{"topic":"%s","hash":"QmIndexerBlob","timestamp":%d}`, indexerTopic, ts)),
		Submitter: goodSubmitter,
		Timestamp: ts,
	}

	require.NoError(t, processor.ProcessSubmission(ctx, sub))
	// Redelivery of the same batch must not fold anything in twice.
	require.NoError(t, processor.ProcessSubmission(ctx, sub))

	rollup, err := stores.IndexerDaily.Load(ctx, "0xaaa-QmDeploy-50")
	require.NoError(t, err)
	require.NotNil(t, rollup)
	assert.Equal(t, int64(1), rollup.DataPointCount, "replayed batch must be skipped")
	assert.Zero(t, rollup.QueryCount.Cmp(dec(t, "10")))

	snap := processor.Stats().Snapshot()
	assert.Equal(t, int64(1), snap.Messages)
	assert.Equal(t, int64(1), snap.Duplicates)
}

// failingStore fails exactly one Save, by call order.
type failingStore[E entity.Keyed] struct {
	entity.Store[E]
	saves  int
	failAt int
}

func (s *failingStore[E]) Save(ctx context.Context, e E) error {
	s.saves++
	if s.saves == s.failAt {
		return fmt.Errorf("store unavailable")
	}
	return s.Store.Save(ctx, e)
}

func TestProcessSubmissionPartialFailureReplay(t *testing.T) {
	ts := int64((config.LaunchDay + 50) * config.SecondsPerDay)
	blobs := mapFetcher{
		"QmBlobA": []byte(`[{"indexer_wallet":"0xaaa","subgraph_deployment_ipfs_hash":"QmDeploy","query_count":10,"total_query_fees":"0.01"}]`),
		"QmBlobB": []byte(`[{"indexer_wallet":"0xaaa","subgraph_deployment_ipfs_hash":"QmDeploy","query_count":30,"total_query_fees":"0.03"}]`),
	}
	payload := fmt.Sprintf(`[
		{"topic":"%s","hash":"QmBlobA","timestamp":%d},
		{"topic":"%s","hash":"QmBlobB","timestamp":%d}
	]`, indexerTopic, ts, indexerTopic, ts)

	// Each entry saves its replay marker first and its final state second.
	// Failing either save of the second entry must not fold the first
	// entry's sample in twice when the batch comes back.
	tests := []struct {
		name   string
		failAt int
	}{
		{name: "marker save fails", failAt: 3},
		{name: "final save fails", failAt: 4},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			stores := entity.NewMemoryStores()
			stores.MessageDataPoints = &failingStore[*entity.MessageDataPoint]{
				Store:  stores.MessageDataPoints,
				failAt: tc.failAt,
			}
			processor := NewProcessor(zap.NewNop(), config.Default(), stores, blobs)

			sub := Submission{
				ID:        "0xtx1",
				Payload:   []byte(payload),
				Submitter: goodSubmitter,
				Timestamp: ts,
			}

			require.Error(t, processor.ProcessSubmission(ctx, sub))
			// The transport does not ack a failed batch and delivers it again.
			require.NoError(t, processor.ProcessSubmission(ctx, sub))

			rollup, err := stores.IndexerDaily.Load(ctx, "0xaaa-QmDeploy-50")
			require.NoError(t, err)
			require.NotNil(t, rollup)
			assert.Equal(t, int64(2), rollup.DataPointCount, "each sample folded exactly once")
			assert.Zero(t, rollup.QueryCount.Cmp(dec(t, "40")))
			assert.Zero(t, rollup.TotalQueryFees.Cmp(dec(t, "0.04")))

			msg, err := stores.Messages.Load(ctx, "0xtx1")
			require.NoError(t, err)
			require.NotNil(t, msg, "the batch completes on redelivery")
		})
	}
}

func TestProcessSubmissionRejectedSubmitter(t *testing.T) {
	ctx := context.Background()
	processor, stores := newTestProcessor(mapFetcher{})

	err := processor.ProcessSubmission(ctx, Submission{
		ID:        "0xtx1",
		Payload:   []byte(`[]`),
		Submitter: "0x0000000000000000000000000000000000000000",
		Timestamp: 1700000000,
	})
	require.NoError(t, err)

	msg, err := stores.Messages.Load(ctx, "0xtx1")
	require.NoError(t, err)
	require.NotNil(t, msg, "rejected batches are still recorded")
	assert.False(t, msg.Valid)
	assert.NotEmpty(t, msg.Error)
	assert.Equal(t, int64(1), processor.Stats().Snapshot().Rejected)
}

func TestProcessSubmissionUndecodablePayload(t *testing.T) {
	ctx := context.Background()
	processor, stores := newTestProcessor(mapFetcher{})

	err := processor.ProcessSubmission(ctx, Submission{
		ID:        "0xtx1",
		Payload:   []byte(`not json at all`),
		Submitter: goodSubmitter,
		Timestamp: 1700000000,
	})
	require.NoError(t, err)

	msg, err := stores.Messages.Load(ctx, "0xtx1")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.False(t, msg.Valid)
}

func TestProcessSubmissionBlobFailures(t *testing.T) {
	ctx := context.Background()

	ts := int64(1700000000)
	blobs := mapFetcher{
		"QmNotArray": []byte(`{"oops":"an object"}`),
	}
	processor, stores := newTestProcessor(blobs)

	payload := fmt.Sprintf(`[
		{"topic":"%s","hash":"QmMissing","timestamp":%d},
		{"topic":"%s","hash":"QmNotArray","timestamp":%d}
	]`, indexerTopic, ts, queryTopic, ts)

	err := processor.ProcessSubmission(ctx, Submission{
		ID:        "0xtx1",
		Payload:   []byte(payload),
		Submitter: goodSubmitter,
		Timestamp: ts,
	})
	require.NoError(t, err)

	msg, err := stores.Messages.Load(ctx, "0xtx1")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.True(t, msg.Valid, "per-blob failures do not invalidate the batch")

	missing, err := stores.MessageDataPoints.Load(ctx, "0xtx1-0")
	require.NoError(t, err)
	require.NotNil(t, missing, "the fetch attempt is recorded even on failure")
	assert.Empty(t, missing.RawData)
	assert.Zero(t, missing.IndexerDataPointCount)

	notArray, err := stores.MessageDataPoints.Load(ctx, "0xtx1-1")
	require.NoError(t, err)
	require.NotNil(t, notArray)
	assert.NotEmpty(t, notArray.RawData, "retrieved bytes are archived even when undecodable")
	assert.Zero(t, notArray.QueryDataPointCount)
}
