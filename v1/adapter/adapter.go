// Package adapter defines the primitive storage contract the
// coordination layer sits on, plus the optional capabilities an
// adapter may implement natively.
package adapter

import (
	"context"

	"github.com/mirkobrombin/go-strata/v1/criteria"
	"github.com/mirkobrombin/go-strata/v1/schema"
)

// Adapter abstracts one store technology behind primitive schema and
// data operations. Records are plain maps; the "id" attribute is a
// store-assigned, monotonically increasing ordinal that is never
// reused.
type Adapter interface {
	// Define creates a collection with the given layout. Defining an
	// existing collection replaces its layout without touching data.
	Define(ctx context.Context, collection string, def schema.Definition) error
	// Describe returns the collection layout. The boolean reports
	// whether the collection exists.
	Describe(ctx context.Context, collection string) (schema.Definition, bool, error)
	// Drop removes a collection and all of its records.
	Drop(ctx context.Context, collection string) error

	// Create inserts a record and returns it with its generated id.
	Create(ctx context.Context, collection string, record map[string]any) (map[string]any, error)
	// Find returns the records matching the criteria.
	Find(ctx context.Context, collection string, c criteria.Criteria) ([]map[string]any, error)
	// Count returns the number of records matching the criteria.
	Count(ctx context.Context, collection string, c criteria.Criteria) (int64, error)
	// Update applies values to every matching record and returns the
	// updated records.
	Update(ctx context.Context, collection string, c criteria.Criteria, values map[string]any) ([]map[string]any, error)
	// Destroy removes every matching record.
	Destroy(ctx context.Context, collection string, c criteria.Criteria) error
}

// Transactor is implemented by adapters with a native transaction
// primitive. When present, the coordinator delegates to it entirely and
// the commit log is never consulted.
type Transactor interface {
	Transaction(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

// Alterer is implemented by adapters with a native alter operation.
// Adapters without it get the generic add/remove-attribute fallback.
type Alterer interface {
	Alter(ctx context.Context, collection string, def schema.Definition) error
}

// Joiner is implemented by adapters that can perform remote joins.
type Joiner interface {
	Join(ctx context.Context, collection string, c criteria.Criteria, children []string) ([]map[string]any, error)
}

// FindOrCreator is implemented by adapters with an optimized atomic
// find-or-create.
type FindOrCreator interface {
	FindOrCreate(ctx context.Context, collection string, c criteria.Criteria, record map[string]any) (map[string]any, error)
}

// BulkCreator is implemented by adapters with an optimized bulk create.
type BulkCreator interface {
	CreateEach(ctx context.Context, collection string, records []map[string]any) ([]map[string]any, error)
}
