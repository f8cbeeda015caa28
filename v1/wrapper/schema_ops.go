package wrapper

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/mirkobrombin/go-strata/v1/adapter"
	"github.com/mirkobrombin/go-strata/v1/criteria"
	strataerrors "github.com/mirkobrombin/go-strata/v1/errors"
	"github.com/mirkobrombin/go-strata/v1/schema"
)

// Define validates and installs a collection layout.
func (w *Wrapper) Define(ctx context.Context, collection string, def schema.Definition) error {
	if collection == w.cfg.CommitLogCollection {
		return fmt.Errorf("wrapper: %q is reserved for the commit log", collection)
	}
	if err := def.Validate(); err != nil {
		return err
	}
	if err := w.adapter.Define(ctx, collection, def); err != nil {
		return err
	}
	w.defsMu.Lock()
	w.defs[collection] = def.Clone()
	w.defsMu.Unlock()
	if w.cache != nil {
		w.cache.Del(collection)
	}
	return nil
}

// Describe returns a collection layout through the read-through cache
// when one is enabled.
func (w *Wrapper) Describe(ctx context.Context, collection string) (schema.Definition, bool, error) {
	if w.cache != nil {
		if v, ok := w.cache.Get(collection); ok {
			return v.(schema.Definition).Clone(), true, nil
		}
	}
	def, ok, err := w.adapter.Describe(ctx, collection)
	if err != nil || !ok {
		return nil, ok, err
	}
	if w.cache != nil {
		w.cache.Set(collection, def.Clone(), 1)
	}
	return def, true, nil
}

// Drop removes a collection and forgets its cached layout.
func (w *Wrapper) Drop(ctx context.Context, collection string) error {
	if err := w.adapter.Drop(ctx, collection); err != nil {
		return err
	}
	w.defsMu.Lock()
	delete(w.defs, collection)
	w.defsMu.Unlock()
	if w.cache != nil {
		w.cache.Del(collection)
	}
	return nil
}

// Alter changes a collection layout. Adapters with a native alter get
// the whole definition; otherwise the generic fallback applies the
// attribute diff: the new layout is installed and values of removed
// attributes are cleared from existing records.
func (w *Wrapper) Alter(ctx context.Context, collection string, def schema.Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	if alterer, ok := w.adapter.(adapter.Alterer); ok {
		if err := alterer.Alter(ctx, collection, def); err != nil {
			return err
		}
		w.remember(collection, def)
		return nil
	}

	old, ok, err := w.adapter.Describe(ctx, collection)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("wrapper: alter of undefined collection %q", collection)
	}
	diff := schema.Compare(old, def)
	if diff.Empty() {
		return nil
	}
	if err := w.adapter.Define(ctx, collection, def); err != nil {
		return err
	}
	if len(diff.Removed) > 0 {
		cleared := make(map[string]any, len(diff.Removed))
		for _, name := range diff.Removed {
			if _, kept := def[name]; kept {
				continue // type change, value survives
			}
			cleared[name] = nil
		}
		if len(cleared) > 0 {
			if _, err := w.adapter.Update(ctx, collection, criteria.All(), cleared); err != nil {
				return err
			}
		}
	}
	w.remember(collection, def)
	return nil
}

func (w *Wrapper) remember(collection string, def schema.Definition) {
	w.defsMu.Lock()
	w.defs[collection] = def.Clone()
	w.defsMu.Unlock()
	if w.cache != nil {
		w.cache.Del(collection)
	}
}

// SyncMode selects a schema reconciliation strategy.
type SyncMode int

const (
	// SyncSafe defines collections that do not exist and never touches
	// existing ones.
	SyncSafe SyncMode = iota
	// SyncAlter reconciles existing collections through Alter.
	SyncAlter
	// SyncDrop drops and redefines every collection.
	SyncDrop
)

// Sync reconciles a set of collection layouts against the store.
// Collections are processed concurrently; the first error cancels the
// rest.
func (w *Wrapper) Sync(ctx context.Context, mode SyncMode, collections map[string]schema.Definition) error {
	g, gctx := errgroup.WithContext(ctx)
	for name, def := range collections {
		name, def := name, def
		g.Go(func() error {
			switch mode {
			case SyncSafe:
				_, ok, err := w.adapter.Describe(gctx, name)
				if err != nil {
					return err
				}
				if ok {
					return nil
				}
				return w.Define(gctx, name, def)
			case SyncAlter:
				_, ok, err := w.adapter.Describe(gctx, name)
				if err != nil {
					return err
				}
				if !ok {
					return w.Define(gctx, name, def)
				}
				return w.Alter(gctx, name, def)
			case SyncDrop:
				if err := w.Drop(gctx, name); err != nil {
					return err
				}
				return w.Define(gctx, name, def)
			default:
				return fmt.Errorf("wrapper: %w: unknown sync mode %d", strataerrors.ErrMissingCapability, mode)
			}
		})
	}
	return g.Wait()
}
