package oracle

import (
	"context"
	"sync"

	"github.com/edgeandnode/qos-oracle/pkg/entity"
	"go.uber.org/zap"
)

// buffer accumulates dirty entities between flushes, keyed by id so a rollup
// mutated many times between flushes is written once, at its latest state.
type buffer[E entity.Keyed] struct {
	mu      sync.Mutex
	pending map[string]E
}

func newBuffer[E entity.Keyed]() *buffer[E] {
	return &buffer[E]{pending: make(map[string]E)}
}

func (b *buffer[E]) put(e E) {
	b.mu.Lock()
	b.pending[e.EntityID()] = e
	b.mu.Unlock()
}

func (b *buffer[E]) drain() []E {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) == 0 {
		return nil
	}
	out := make([]E, 0, len(b.pending))
	for _, e := range b.pending {
		out = append(out, e)
	}
	b.pending = make(map[string]E)
	return out
}

func (b *buffer[E]) requeue(items []E) {
	b.mu.Lock()
	for _, e := range items {
		// A newer version saved during the failed flush wins.
		if _, ok := b.pending[e.EntityID()]; !ok {
			b.pending[e.EntityID()] = e
		}
	}
	b.mu.Unlock()
}

// writeThrough reads from the in-memory store and marks every save dirty in
// the sink's buffer. The memory store stays the source of truth for reads;
// ClickHouse receives the batched write side.
type writeThrough[E entity.Keyed] struct {
	mem entity.Store[E]
	buf *buffer[E]
}

func (w *writeThrough[E]) Load(ctx context.Context, id string) (E, error) {
	return w.mem.Load(ctx, id)
}

func (w *writeThrough[E]) Save(ctx context.Context, e E) error {
	if err := w.mem.Save(ctx, e); err != nil {
		return err
	}
	w.buf.put(e)
	return nil
}

// rollupReader is the ClickHouse point-read side for the two rollup shapes.
type rollupReader interface {
	SelectIndexerDaily(ctx context.Context, id string) (*entity.IndexerDailyDataPoint, error)
	SelectQueryDaily(ctx context.Context, id string) (*entity.QueryDailyDataPoint, error)
}

// indexerDailyStore falls back to ClickHouse when memory misses, so a
// restarted process resumes a pre-existing (indexer, deployment, day) bucket
// from its persisted state instead of rebuilding it from zero. Without the
// fallback a post-restart row would also carry a data_point_count below the
// stale row's and lose to it at compaction.
type indexerDailyStore struct {
	writeThrough[*entity.IndexerDailyDataPoint]
	reads rollupReader
}

func (s *indexerDailyStore) Load(ctx context.Context, id string) (*entity.IndexerDailyDataPoint, error) {
	r, err := s.mem.Load(ctx, id)
	if r != nil || err != nil {
		return r, err
	}
	if s.reads == nil {
		return nil, nil
	}
	r, err = s.reads.SelectIndexerDaily(ctx, id)
	if r == nil || err != nil {
		return nil, err
	}
	// Cache in memory without marking dirty; the next merge buffers the row.
	if err := s.mem.Save(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// queryDailyStore is the (deployment, day) counterpart of indexerDailyStore.
type queryDailyStore struct {
	writeThrough[*entity.QueryDailyDataPoint]
	reads rollupReader
}

func (s *queryDailyStore) Load(ctx context.Context, id string) (*entity.QueryDailyDataPoint, error) {
	r, err := s.mem.Load(ctx, id)
	if r != nil || err != nil {
		return r, err
	}
	if s.reads == nil {
		return nil, nil
	}
	r, err = s.reads.SelectQueryDaily(ctx, id)
	if r == nil || err != nil {
		return nil, err
	}
	if err := s.mem.Save(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Sink collects entity saves and flushes them to ClickHouse in batches.
// Entities that fail to insert stay buffered for the next flush.
type Sink struct {
	log   *zap.Logger
	db    *DB
	reads rollupReader

	messages          *buffer[*entity.OracleMessage]
	messageDataPoints *buffer[*entity.MessageDataPoint]
	indexers          *buffer[*entity.Indexer]
	deployments       *buffer[*entity.SubgraphDeployment]
	indexerDataPoints *buffer[*entity.IndexerDataPoint]
	queryDataPoints   *buffer[*entity.QueryDataPoint]
	indexerDaily      *buffer[*entity.IndexerDailyDataPoint]
	queryDaily        *buffer[*entity.QueryDailyDataPoint]
}

// NewSink returns a Sink writing to db.
func NewSink(log *zap.Logger, db *DB) *Sink {
	var reads rollupReader
	if db != nil {
		reads = db
	}
	return &Sink{
		log:               log,
		db:                db,
		reads:             reads,
		messages:          newBuffer[*entity.OracleMessage](),
		messageDataPoints: newBuffer[*entity.MessageDataPoint](),
		indexers:          newBuffer[*entity.Indexer](),
		deployments:       newBuffer[*entity.SubgraphDeployment](),
		indexerDataPoints: newBuffer[*entity.IndexerDataPoint](),
		queryDataPoints:   newBuffer[*entity.QueryDataPoint](),
		indexerDaily:      newBuffer[*entity.IndexerDailyDataPoint](),
		queryDaily:        newBuffer[*entity.QueryDailyDataPoint](),
	}
}

// Stores wraps mem so every save also lands in the sink's buffers.
func (s *Sink) Stores(mem *entity.Stores) *entity.Stores {
	return &entity.Stores{
		Messages:          &writeThrough[*entity.OracleMessage]{mem: mem.Messages, buf: s.messages},
		MessageDataPoints: &writeThrough[*entity.MessageDataPoint]{mem: mem.MessageDataPoints, buf: s.messageDataPoints},
		Indexers:          &writeThrough[*entity.Indexer]{mem: mem.Indexers, buf: s.indexers},
		Deployments:       &writeThrough[*entity.SubgraphDeployment]{mem: mem.Deployments, buf: s.deployments},
		IndexerDataPoints: &writeThrough[*entity.IndexerDataPoint]{mem: mem.IndexerDataPoints, buf: s.indexerDataPoints},
		QueryDataPoints:   &writeThrough[*entity.QueryDataPoint]{mem: mem.QueryDataPoints, buf: s.queryDataPoints},
		IndexerDaily: &indexerDailyStore{
			writeThrough: writeThrough[*entity.IndexerDailyDataPoint]{mem: mem.IndexerDaily, buf: s.indexerDaily},
			reads:        s.reads,
		},
		QueryDaily: &queryDailyStore{
			writeThrough: writeThrough[*entity.QueryDailyDataPoint]{mem: mem.QueryDaily, buf: s.queryDaily},
			reads:        s.reads,
		},
	}
}

// Flush drains every buffer into its ClickHouse table. The first insert
// failure aborts the pass; the failed batch is requeued.
func (s *Sink) Flush(ctx context.Context) error {
	total := 0

	flush := func(n int, err error, table string, requeue func()) error {
		if err != nil {
			requeue()
			s.log.Error("Flush failed", zap.String("table", table), zap.Error(err))
			return err
		}
		total += n
		return nil
	}

	if batch := s.messages.drain(); len(batch) > 0 {
		if err := flush(len(batch), s.db.InsertOracleMessages(ctx, batch), "oracle_messages",
			func() { s.messages.requeue(batch) }); err != nil {
			return err
		}
	}
	if batch := s.messageDataPoints.drain(); len(batch) > 0 {
		if err := flush(len(batch), s.db.InsertMessageDataPoints(ctx, batch), "message_data_points",
			func() { s.messageDataPoints.requeue(batch) }); err != nil {
			return err
		}
	}
	if batch := s.indexers.drain(); len(batch) > 0 {
		if err := flush(len(batch), s.db.InsertIndexers(ctx, batch), "indexers",
			func() { s.indexers.requeue(batch) }); err != nil {
			return err
		}
	}
	if batch := s.deployments.drain(); len(batch) > 0 {
		if err := flush(len(batch), s.db.InsertSubgraphDeployments(ctx, batch), "subgraph_deployments",
			func() { s.deployments.requeue(batch) }); err != nil {
			return err
		}
	}
	if batch := s.indexerDataPoints.drain(); len(batch) > 0 {
		if err := flush(len(batch), s.db.InsertIndexerDataPoints(ctx, batch), "indexer_data_points",
			func() { s.indexerDataPoints.requeue(batch) }); err != nil {
			return err
		}
	}
	if batch := s.queryDataPoints.drain(); len(batch) > 0 {
		if err := flush(len(batch), s.db.InsertQueryDataPoints(ctx, batch), "query_data_points",
			func() { s.queryDataPoints.requeue(batch) }); err != nil {
			return err
		}
	}
	if batch := s.indexerDaily.drain(); len(batch) > 0 {
		if err := flush(len(batch), s.db.InsertIndexerDailyDataPoints(ctx, batch), "indexer_daily_data_points",
			func() { s.indexerDaily.requeue(batch) }); err != nil {
			return err
		}
	}
	if batch := s.queryDaily.drain(); len(batch) > 0 {
		if err := flush(len(batch), s.db.InsertQueryDailyDataPoints(ctx, batch), "query_daily_data_points",
			func() { s.queryDaily.requeue(batch) }); err != nil {
			return err
		}
	}

	if total > 0 {
		s.log.Info("Entities flushed", zap.Int("count", total))
	}
	return nil
}
