package oracle

import (
	"context"
	"fmt"

	"github.com/edgeandnode/qos-oracle/pkg/config"
	"github.com/edgeandnode/qos-oracle/pkg/entity"
	"go.uber.org/zap"
)

// Submission is one delivered batch: the opaque payload plus its transport
// envelope. ID is the submission transaction hash and doubles as the
// batch-level dedup key.
type Submission struct {
	ID        string
	Payload   []byte
	Submitter string
	Timestamp int64
	Block     uint64
}

// Processor drives one submission through gate, router, builder and engine.
// Invocations are strictly sequential; nothing here locks because the
// transport delivers one submission at a time.
type Processor struct {
	log     *zap.Logger
	cfg     config.Config
	stores  *entity.Stores
	builder *Builder
	stats   *Stats
}

// NewProcessor wires a Processor over the given stores and blob fetcher.
func NewProcessor(log *zap.Logger, cfg config.Config, stores *entity.Stores, fetch BlobFetcher) *Processor {
	stats := &Stats{}
	engine := NewEngine(cfg, stores, stats)
	return &Processor{
		log:     log,
		cfg:     cfg,
		stores:  stores,
		builder: NewBuilder(log, stores, fetch, engine),
		stats:   stats,
	}
}

// Stats returns the processor's running counters.
func (p *Processor) Stats() *Stats {
	return p.stats
}

// ProcessSubmission ingests one batch. A batch whose OracleMessage id was
// already stored is skipped wholesale: the platform redelivers on replay
// and the merge is not idempotent, so each batch must be folded in at most
// once. The OracleMessage is saved only after every entry succeeded, so a
// batch that failed partway is redelivered; the per-entry markers kept by
// the builder make that redelivery resume at the first unattempted entry
// rather than re-fold the ones already merged. Per-blob failures are logged
// and scoped to that blob.
func (p *Processor) ProcessSubmission(ctx context.Context, sub Submission) error {
	existing, err := p.stores.Messages.Load(ctx, sub.ID)
	if err != nil {
		return fmt.Errorf("load oracle message %s: %w", sub.ID, err)
	}
	if existing != nil {
		p.log.Debug("submission already processed, skipping", zap.String("id", sub.ID))
		p.stats.Duplicates.Add(1)
		return nil
	}

	msg := &entity.OracleMessage{
		ID:        sub.ID,
		Payload:   string(sub.Payload),
		CreatedAt: sub.Timestamp,
		Block:     sub.Block,
		Valid:     true,
	}

	if verdict := Admit(p.cfg, sub.Submitter); !verdict.Accepted {
		msg.Valid = false
		msg.Error = verdict.Reason
		p.log.Warn("submission rejected",
			zap.String("id", sub.ID),
			zap.String("submitter", sub.Submitter),
			zap.String("reason", verdict.Reason))
		p.stats.Rejected.Add(1)
		return p.stores.Messages.Save(ctx, msg)
	}

	entries, err := RoutePayload(p.cfg, sub.Payload)
	if err != nil {
		// Not valid JSON or not the expected shape: record the batch and
		// move on, siblings are unaffected.
		msg.Valid = false
		msg.Error = err.Error()
		p.log.Warn("payload not decodable",
			zap.String("id", sub.ID),
			zap.Error(err))
		p.stats.Rejected.Add(1)
		return p.stores.Messages.Save(ctx, msg)
	}

	for _, e := range entries {
		processed, err := p.builder.ProcessEntry(ctx, msg.ID, e)
		if err != nil {
			return fmt.Errorf("process entry %d of %s: %w", e.Index, sub.ID, err)
		}
		if processed {
			p.stats.DataPoints.Add(1)
		}
	}

	if err := p.stores.Messages.Save(ctx, msg); err != nil {
		return fmt.Errorf("save oracle message %s: %w", sub.ID, err)
	}
	p.stats.Messages.Add(1)
	return nil
}
