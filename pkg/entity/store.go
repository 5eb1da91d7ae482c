package entity

import (
	"context"

	"github.com/puzpuzpuz/xsync/v4"
)

// Keyed is satisfied by every persisted entity.
type Keyed interface {
	EntityID() string
}

// Store is keyed durable storage for one entity shape. Load returns
// (nil, nil) when the id is unknown. The caller serializes access to a
// given id; Store implementations assume no concurrent writers per key.
type Store[E Keyed] interface {
	Load(ctx context.Context, id string) (E, error)
	Save(ctx context.Context, e E) error
}

// GetOrCreate loads the entity with the given id, creating and saving it via
// factory when absent. Creation is idempotent: re-running with the same id
// returns the stored entity untouched.
func GetOrCreate[E Keyed](ctx context.Context, store Store[E], id string, factory func(id string) E) (E, error) {
	e, err := store.Load(ctx, id)
	if err != nil {
		var zero E
		return zero, err
	}
	if !isNil(e) {
		return e, nil
	}
	e = factory(id)
	if err := store.Save(ctx, e); err != nil {
		var zero E
		return zero, err
	}
	return e, nil
}

// Stores bundles one Store per entity shape. Every pipeline component takes
// this by pointer so tests can swap in-memory stores freely.
type Stores struct {
	Messages          Store[*OracleMessage]
	MessageDataPoints Store[*MessageDataPoint]
	Indexers          Store[*Indexer]
	Deployments       Store[*SubgraphDeployment]
	IndexerDataPoints Store[*IndexerDataPoint]
	QueryDataPoints   Store[*QueryDataPoint]
	IndexerDaily      Store[*IndexerDailyDataPoint]
	QueryDaily        Store[*QueryDailyDataPoint]
}

// NewMemoryStores returns Stores backed by in-process maps. This is the
// read side in production (write-through to ClickHouse happens behind the
// same interface) and the whole store in tests.
func NewMemoryStores() *Stores {
	return &Stores{
		Messages:          NewMemoryStore[*OracleMessage](),
		MessageDataPoints: NewMemoryStore[*MessageDataPoint](),
		Indexers:          NewMemoryStore[*Indexer](),
		Deployments:       NewMemoryStore[*SubgraphDeployment](),
		IndexerDataPoints: NewMemoryStore[*IndexerDataPoint](),
		QueryDataPoints:   NewMemoryStore[*QueryDataPoint](),
		IndexerDaily:      NewMemoryStore[*IndexerDailyDataPoint](),
		QueryDaily:        NewMemoryStore[*QueryDailyDataPoint](),
	}
}

// MemoryStore is a map-backed Store.
type MemoryStore[E Keyed] struct {
	m *xsync.Map[string, E]
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore[E Keyed]() *MemoryStore[E] {
	return &MemoryStore[E]{m: xsync.NewMap[string, E]()}
}

func (s *MemoryStore[E]) Load(_ context.Context, id string) (E, error) {
	e, ok := s.m.Load(id)
	if !ok {
		var zero E
		return zero, nil
	}
	return e, nil
}

func (s *MemoryStore[E]) Save(_ context.Context, e E) error {
	s.m.Store(e.EntityID(), e)
	return nil
}

// Len returns the number of stored entities.
func (s *MemoryStore[E]) Len() int {
	return s.m.Size()
}

// Range calls fn for every stored entity until fn returns false.
func (s *MemoryStore[E]) Range(fn func(id string, e E) bool) {
	s.m.Range(fn)
}

func isNil[E Keyed](e E) bool {
	// Stores hold pointer types; a nil interface value or nil pointer both
	// mean "absent".
	var zero E
	return any(e) == any(zero)
}
