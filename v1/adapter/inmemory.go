package adapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/mirkobrombin/go-strata/v1/criteria"
	"github.com/mirkobrombin/go-strata/v1/schema"
)

type collection struct {
	def     schema.Definition
	nextID  int64
	records map[int64]map[string]any
}

// InMemory is an Adapter backed by local maps. It deliberately does not
// implement Transactor; wrappers built on it use commit-log
// coordination. See InMemoryTx for the native-transaction variant.
type InMemory struct {
	mu          sync.Mutex
	collections map[string]*collection
}

// NewInMemory returns an empty in-memory adapter.
func NewInMemory() *InMemory {
	return &InMemory{collections: make(map[string]*collection)}
}

// Define implements Adapter.Define.
func (a *InMemory) Define(ctx context.Context, name string, def schema.Definition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if col, ok := a.collections[name]; ok {
		col.def = def.Clone()
		return nil
	}
	a.collections[name] = &collection{
		def:     def.Clone(),
		nextID:  1,
		records: make(map[int64]map[string]any),
	}
	return nil
}

// Describe implements Adapter.Describe.
func (a *InMemory) Describe(ctx context.Context, name string) (schema.Definition, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	col, ok := a.collections[name]
	if !ok {
		return nil, false, nil
	}
	return col.def.Clone(), true, nil
}

// Drop implements Adapter.Drop. Dropping an absent collection is not an
// error.
func (a *InMemory) Drop(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	delete(a.collections, name)
	a.mu.Unlock()
	return nil
}

// Create implements Adapter.Create.
func (a *InMemory) Create(ctx context.Context, name string, record map[string]any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	col, ok := a.collections[name]
	if !ok {
		return nil, fmt.Errorf("adapter: unknown collection %q", name)
	}
	stored := make(map[string]any, len(record)+1)
	for k, v := range record {
		stored[k] = v
	}
	stored["id"] = col.nextID
	col.records[col.nextID] = stored
	col.nextID++
	return cloneRecord(stored), nil
}

// Find implements Adapter.Find.
func (a *InMemory) Find(ctx context.Context, name string, c criteria.Criteria) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	col, ok := a.collections[name]
	if !ok {
		return nil, nil
	}
	all := make([]map[string]any, 0, len(col.records))
	for _, r := range col.records {
		all = append(all, cloneRecord(r))
	}
	return c.Apply(all), nil
}

// Count implements Adapter.Count.
func (a *InMemory) Count(ctx context.Context, name string, c criteria.Criteria) (int64, error) {
	records, err := a.Find(ctx, name, c)
	if err != nil {
		return 0, err
	}
	return int64(len(records)), nil
}

// Update implements Adapter.Update.
func (a *InMemory) Update(ctx context.Context, name string, c criteria.Criteria, values map[string]any) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	col, ok := a.collections[name]
	if !ok {
		return nil, nil
	}
	var updated []map[string]any
	for id, r := range col.records {
		if !c.Matches(r) {
			continue
		}
		for k, v := range values {
			if k == "id" {
				continue // the ordinal is immutable
			}
			r[k] = v
		}
		col.records[id] = r
		updated = append(updated, cloneRecord(r))
	}
	return updated, nil
}

// Destroy implements Adapter.Destroy.
func (a *InMemory) Destroy(ctx context.Context, name string, c criteria.Criteria) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	col, ok := a.collections[name]
	if !ok {
		return nil
	}
	for id, r := range col.records {
		if c.Matches(r) {
			delete(col.records, id)
		}
	}
	return nil
}

// InMemoryTx extends InMemory with a native transaction primitive
// backed by a per-name mutex table.
type InMemoryTx struct {
	*InMemory

	txMu    sync.Mutex
	txLocks map[string]*sync.Mutex
}

// NewInMemoryTx returns an in-memory adapter implementing Transactor.
func NewInMemoryTx() *InMemoryTx {
	return &InMemoryTx{
		InMemory: NewInMemory(),
		txLocks:  make(map[string]*sync.Mutex),
	}
}

// Transaction implements Transactor with a per-name in-process mutex.
func (a *InMemoryTx) Transaction(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	a.txMu.Lock()
	mu, ok := a.txLocks[name]
	if !ok {
		mu = &sync.Mutex{}
		a.txLocks[name] = mu
	}
	a.txMu.Unlock()

	mu.Lock()
	defer mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}

func cloneRecord(r map[string]any) map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
