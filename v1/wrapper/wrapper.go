// Package wrapper is the public entry point of the coordination layer.
// It normalizes adapter signatures, adds the cross-cutting behavior
// adapters do not implement themselves and owns the transaction
// subsystem.
package wrapper

import (
	"context"
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto"
	uuid "github.com/hashicorp/go-uuid"

	"github.com/mirkobrombin/go-strata/v1/adapter"
	"github.com/mirkobrombin/go-strata/v1/bus"
	"github.com/mirkobrombin/go-strata/v1/commitlog"
	"github.com/mirkobrombin/go-strata/v1/config"
	"github.com/mirkobrombin/go-strata/v1/criteria"
	"github.com/mirkobrombin/go-strata/v1/journal"
	"github.com/mirkobrombin/go-strata/v1/schema"
	"github.com/mirkobrombin/go-strata/v1/txn"
)

// Wrapper coordinates one adapter. All state is explicit and owned by
// the instance; two wrappers over one store coordinate only through the
// shared commit-log collection.
type Wrapper struct {
	adapter  adapter.Adapter
	cfg      config.Config
	instance string
	coord    *txn.Coordinator
	cache    *ristretto.Cache

	defsMu sync.RWMutex
	defs   map[string]schema.Definition
}

// Option configures a Wrapper.
type Option func(*options)

type options struct {
	cfg            config.Config
	bus            bus.Bus
	journal        journal.Journal
	noCoordination bool
	schemaCache    bool
}

// WithConfig overrides the default configuration.
func WithConfig(cfg config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithBus wires cross-process release notifications into the
// transaction subsystem.
func WithBus(b bus.Bus) Option {
	return func(o *options) { o.bus = b }
}

// WithJournal wires lock lifecycle auditing.
func WithJournal(j journal.Journal) Option {
	return func(o *options) { o.journal = j }
}

// WithoutCoordination opts out of commit-log locking. Transactions on
// adapters without a native primitive then run unserialized.
func WithoutCoordination() Option {
	return func(o *options) { o.noCoordination = true }
}

// WithSchemaCache enables the read-through Describe cache.
func WithSchemaCache() Option {
	return func(o *options) { o.schemaCache = true }
}

// New builds a Wrapper over the adapter, bootstrapping the commit-log
// collection unless the adapter transacts natively or coordination was
// disabled. The commit-log collection itself is always accessed without
// coordination.
func New(ctx context.Context, a adapter.Adapter, opts ...Option) (*Wrapper, error) {
	if a == nil {
		return nil, fmt.Errorf("wrapper: nil adapter")
	}
	o := options{cfg: config.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	instance, err := uuid.GenerateUUID()
	if err != nil {
		return nil, err
	}
	w := &Wrapper{
		adapter:  a,
		cfg:      o.cfg,
		instance: instance,
		defs:     make(map[string]schema.Definition),
	}

	var log commitlog.Log
	_, native := a.(adapter.Transactor)
	if !native && !o.noCoordination {
		log, err = commitlog.NewAdapterLog(ctx, a, o.cfg.CommitLogCollection)
		if err != nil {
			return nil, err
		}
	}
	w.coord = txn.New(a, log,
		txn.WithConfig(o.cfg),
		txn.WithBus(o.bus),
		txn.WithJournal(o.journal),
	)

	if o.schemaCache {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: 1 << 12,
			MaxCost:     1 << 10,
			BufferItems: 64,
		})
		if err != nil {
			return nil, err
		}
		w.cache = cache
	}
	return w, nil
}

// Instance returns the wrapper's unique identity.
func (w *Wrapper) Instance() string {
	return w.instance
}

// Strategy reports how transactions are coordinated.
func (w *Wrapper) Strategy() txn.Strategy {
	return w.coord.Strategy()
}

// Close releases the coordinator and cache resources.
func (w *Wrapper) Close() {
	w.coord.Close()
	if w.cache != nil {
		w.cache.Close()
	}
}

// Definitions returns a snapshot of the layouts defined through this
// wrapper. It feeds the schema drift validator.
func (w *Wrapper) Definitions() map[string]schema.Definition {
	w.defsMu.RLock()
	defer w.defsMu.RUnlock()
	out := make(map[string]schema.Definition, len(w.defs))
	for name, def := range w.defs {
		out[name] = def.Clone()
	}
	return out
}

// Adapter exposes the underlying adapter for collaborators such as the
// validator.
func (w *Wrapper) Adapter() adapter.Adapter {
	return w.adapter
}

// pk returns the primary key attribute for a collection, defaulting to
// "id" when the collection was never defined through this wrapper.
func (w *Wrapper) pk(collection string) string {
	w.defsMu.RLock()
	def, ok := w.defs[collection]
	w.defsMu.RUnlock()
	if !ok {
		return "id"
	}
	return def.PrimaryKey()
}

func (w *Wrapper) normalize(collection string, raw any) (criteria.Criteria, error) {
	return criteria.Normalize(raw, w.pk(collection))
}
