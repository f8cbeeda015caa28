package commitlog

import (
	"context"
	"fmt"

	"github.com/mirkobrombin/go-strata/v1/adapter"
	"github.com/mirkobrombin/go-strata/v1/criteria"
	"github.com/mirkobrombin/go-strata/v1/schema"
)

// Definition is the layout of the commit-log collection.
var Definition = schema.Definition{
	"id":        {Type: "integer", PrimaryKey: true, AutoIncrement: true},
	"requestId": {Type: "string", Unique: true},
	"name":      {Type: "string"},
}

// AdapterLog is a Log persisted through an ordinary adapter collection.
// It uses only Create, Find and Destroy, so any adapter can back the
// lock queue.
//
// The backing collection must never itself be accessed through
// commit-log coordination; AdapterLog talks straight to the adapter.
type AdapterLog struct {
	adapter    adapter.Adapter
	collection string
}

// NewAdapterLog bootstraps the commit-log collection on the adapter and
// returns a Log over it.
func NewAdapterLog(ctx context.Context, a adapter.Adapter, collection string) (*AdapterLog, error) {
	if a == nil {
		return nil, fmt.Errorf("commitlog: nil adapter")
	}
	if collection == "" {
		return nil, fmt.Errorf("commitlog: empty collection name")
	}
	if err := a.Define(ctx, collection, Definition); err != nil {
		return nil, fmt.Errorf("commitlog: bootstrap %q: %w", collection, err)
	}
	return &AdapterLog{adapter: a, collection: collection}, nil
}

// Append implements Log.Append.
func (l *AdapterLog) Append(ctx context.Context, rec Record) (Record, error) {
	stored, err := l.adapter.Create(ctx, l.collection, map[string]any{
		"requestId": rec.RequestID,
		"name":      rec.Name,
	})
	if err != nil {
		return Record{}, err
	}
	id, ok := recordID(stored["id"])
	if !ok {
		return Record{}, fmt.Errorf("commitlog: adapter returned non-numeric id %v", stored["id"])
	}
	rec.ID = id
	return rec, nil
}

// Scan implements Log.Scan.
func (l *AdapterLog) Scan(ctx context.Context) ([]Record, error) {
	rows, err := l.adapter.Find(ctx, l.collection, criteria.All())
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		id, ok := recordID(row["id"])
		if !ok {
			continue
		}
		reqID, _ := row["requestId"].(string)
		name, _ := row["name"].(string)
		out = append(out, Record{ID: id, RequestID: reqID, Name: name})
	}
	return out, nil
}

// Delete implements Log.Delete.
func (l *AdapterLog) Delete(ctx context.Context, id int64) error {
	return l.adapter.Destroy(ctx, l.collection, criteria.ByID("id", id))
}

func recordID(v any) (int64, bool) {
	switch id := v.(type) {
	case int64:
		return id, true
	case int:
		return int64(id), true
	case float64:
		return int64(id), true
	default:
		return 0, false
	}
}
