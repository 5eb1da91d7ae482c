package oracle

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/edgeandnode/qos-oracle/pkg/db/clickhouse"
	"github.com/edgeandnode/qos-oracle/pkg/entity"
)

func (db *DB) initIndexers(ctx context.Context) error {
	query := fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS "%s".indexers (
			id String CODEC(ZSTD(1))
		) ENGINE = %s
		ORDER BY id
	`, db.Name, clickhouse.ReplacingMergeTree)
	return db.Exec(ctx, query)
}

func (db *DB) initSubgraphDeployments(ctx context.Context) error {
	query := fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS "%s".subgraph_deployments (
			id String CODEC(ZSTD(1))
		) ENGINE = %s
		ORDER BY id
	`, db.Name, clickhouse.ReplacingMergeTree)
	return db.Exec(ctx, query)
}

// InsertIndexers writes indexer dimension rows. Duplicates collapse on
// merge since the table replaces by id.
func (db *DB) InsertIndexers(ctx context.Context, indexers []*entity.Indexer) error {
	if len(indexers) == 0 {
		return nil
	}

	query := fmt.Sprintf(`INSERT INTO "%s".indexers (id) VALUES`, db.Name)
	batch, err := db.PrepareBatch(ctx, query)
	if err != nil {
		return err
	}
	defer func(batch driver.Batch) {
		_ = batch.Abort()
	}(batch)

	for _, i := range indexers {
		if err = batch.Append(i.ID); err != nil {
			return err
		}
	}
	return batch.Send()
}

// InsertSubgraphDeployments writes deployment dimension rows.
func (db *DB) InsertSubgraphDeployments(ctx context.Context, deployments []*entity.SubgraphDeployment) error {
	if len(deployments) == 0 {
		return nil
	}

	query := fmt.Sprintf(`INSERT INTO "%s".subgraph_deployments (id) VALUES`, db.Name)
	batch, err := db.PrepareBatch(ctx, query)
	if err != nil {
		return err
	}
	defer func(batch driver.Batch) {
		_ = batch.Abort()
	}(batch)

	for _, d := range deployments {
		if err = batch.Append(d.ID); err != nil {
			return err
		}
	}
	return batch.Send()
}
