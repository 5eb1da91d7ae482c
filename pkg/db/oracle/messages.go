package oracle

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/edgeandnode/qos-oracle/pkg/db/clickhouse"
	"github.com/edgeandnode/qos-oracle/pkg/entity"
	"github.com/edgeandnode/qos-oracle/pkg/utils"
)

func (db *DB) initOracleMessages(ctx context.Context) error {
	query := fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS "%s".oracle_messages (
			id String CODEC(ZSTD(1)),
			payload String CODEC(ZSTD(3)),
			created_at Int64 CODEC(DoubleDelta, LZ4),
			block UInt64 CODEC(DoubleDelta, LZ4),
			valid UInt8,
			error String CODEC(ZSTD(1))
		) ENGINE = %s
		ORDER BY id
	`, db.Name, clickhouse.ReplacingMergeTree)
	return db.Exec(ctx, query)
}

// InsertOracleMessages writes a batch of submitted messages.
func (db *DB) InsertOracleMessages(ctx context.Context, messages []*entity.OracleMessage) error {
	if len(messages) == 0 {
		return nil
	}

	query := fmt.Sprintf(
		`INSERT INTO "%s".oracle_messages (id, payload, created_at, block, valid, error) VALUES`,
		db.Name,
	)
	batch, err := db.PrepareBatch(ctx, query)
	if err != nil {
		return err
	}
	defer func(batch driver.Batch) {
		_ = batch.Abort()
	}(batch)

	for _, m := range messages {
		err = batch.Append(
			m.ID,
			m.Payload,
			m.CreatedAt,
			m.Block,
			utils.BoolToUInt8(m.Valid),
			m.Error,
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}

func (db *DB) initMessageDataPoints(ctx context.Context) error {
	query := fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS "%s".message_data_points (
			id String CODEC(ZSTD(1)),
			raw_data String CODEC(ZSTD(3)),
			ipfs_hash String CODEC(ZSTD(1)),
			timestamp Int64 CODEC(DoubleDelta, LZ4),
			oracle_message String CODEC(ZSTD(1)),
			indexer_data_point_count Int64 CODEC(Delta, LZ4),
			query_data_point_count Int64 CODEC(Delta, LZ4)
		) ENGINE = %s
		ORDER BY id
	`, db.Name, clickhouse.ReplacingMergeTree)
	return db.Exec(ctx, query)
}

// InsertMessageDataPoints writes a batch of per-blob attempt markers.
func (db *DB) InsertMessageDataPoints(ctx context.Context, points []*entity.MessageDataPoint) error {
	if len(points) == 0 {
		return nil
	}

	query := fmt.Sprintf(
		`INSERT INTO "%s".message_data_points (id, raw_data, ipfs_hash, timestamp, oracle_message, indexer_data_point_count, query_data_point_count) VALUES`,
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
			p.IPFSHash,
			p.Timestamp,
			p.OracleMessage,
			p.IndexerDataPointCount,
			p.QueryDataPointCount,
		)
		if err != nil {
			return err
		}
	}

	return batch.Send()
}
