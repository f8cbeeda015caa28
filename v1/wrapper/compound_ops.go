package wrapper

import (
	"context"

	"github.com/mirkobrombin/go-strata/v1/adapter"
	"github.com/mirkobrombin/go-strata/v1/criteria"
	"github.com/mirkobrombin/go-strata/v1/txn"
)

// Transaction runs critical under mutual exclusion for the given name.
// The strategy (native, passthrough or commit-log) was fixed when the
// wrapper was built.
func (w *Wrapper) Transaction(ctx context.Context, name string, critical txn.CriticalSection, onReleased txn.OnReleased) {
	w.coord.Transaction(ctx, name, critical, onReleased)
}

// FindOrCreate returns the first record matching the criteria, creating
// record if none exists. Without an adapter-native implementation the
// find-then-create pair runs inside a transaction named after the
// collection, so concurrent callers cannot both create.
func (w *Wrapper) FindOrCreate(ctx context.Context, collection string, raw any, record map[string]any) (map[string]any, error) {
	if native, ok := w.adapter.(adapter.FindOrCreator); ok {
		c, err := w.normalize(collection, raw)
		if err != nil {
			return nil, err
		}
		return native.FindOrCreate(ctx, collection, c, record)
	}

	type result struct {
		rec map[string]any
		err error
	}
	done := make(chan result, 1)
	w.Transaction(ctx, collection+".compound", func(ctx context.Context, release txn.ReleaseFunc, err error) {
		defer release()
		if err != nil {
			done <- result{err: err}
			return
		}
		found, err := w.Find(ctx, collection, raw)
		if err != nil {
			done <- result{err: err}
			return
		}
		if found != nil {
			done <- result{rec: found}
			return
		}
		created, err := w.Create(ctx, collection, record)
		done <- result{rec: created, err: err}
	}, nil)

	select {
	case r := <-done:
		return r.rec, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CreateEach inserts records in order. Without an adapter-native bulk
// create the loop runs inside a collection-scoped transaction.
func (w *Wrapper) CreateEach(ctx context.Context, collection string, records []map[string]any) ([]map[string]any, error) {
	if native, ok := w.adapter.(adapter.BulkCreator); ok {
		return native.CreateEach(ctx, collection, records)
	}

	type result struct {
		recs []map[string]any
		err  error
	}
	done := make(chan result, 1)
	w.Transaction(ctx, collection+".compound", func(ctx context.Context, release txn.ReleaseFunc, err error) {
		defer release()
		if err != nil {
			done <- result{err: err}
			return
		}
		out := make([]map[string]any, 0, len(records))
		for _, rec := range records {
			created, err := w.Create(ctx, collection, rec)
			if err != nil {
				done <- result{recs: out, err: err}
				return
			}
			out = append(out, created)
		}
		done <- result{recs: out}
	}, nil)

	select {
	case r := <-done:
		return r.recs, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// FindOrCreateEach applies FindOrCreate per record, matching on the
// given attribute, inside one collection-scoped transaction.
func (w *Wrapper) FindOrCreateEach(ctx context.Context, collection, matchAttr string, records []map[string]any) ([]map[string]any, error) {
	type result struct {
		recs []map[string]any
		err  error
	}
	done := make(chan result, 1)
	w.Transaction(ctx, collection+".compound", func(ctx context.Context, release txn.ReleaseFunc, err error) {
		defer release()
		if err != nil {
			done <- result{err: err}
			return
		}
		out := make([]map[string]any, 0, len(records))
		for _, rec := range records {
			c := criteria.Criteria{Where: map[string]any{matchAttr: rec[matchAttr]}, Limit: 1}
			found, err := w.adapter.Find(ctx, collection, c)
			if err != nil {
				done <- result{recs: out, err: err}
				return
			}
			if len(found) > 0 {
				out = append(out, found[0])
				continue
			}
			created, err := w.Create(ctx, collection, rec)
			if err != nil {
				done <- result{recs: out, err: err}
				return
			}
			out = append(out, created)
		}
		done <- result{recs: out}
	}, nil)

	select {
	case r := <-done:
		return r.recs, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Join delegates to the adapter's native remote join and quietly
// returns nothing when unsupported.
func (w *Wrapper) Join(ctx context.Context, collection string, raw any, children []string) ([]map[string]any, error) {
	joiner, ok := w.adapter.(adapter.Joiner)
	if !ok {
		return nil, nil
	}
	c, err := w.normalize(collection, raw)
	if err != nil {
		return nil, err
	}
	return joiner.Join(ctx, collection, c, children)
}
